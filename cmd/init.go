// cmd/init.go
package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aceteam-ai/shiftclock/internal/config"
	"github.com/aceteam-ai/shiftclock/internal/tui"
	"github.com/aceteam-ai/shiftclock/internal/tzconv"
	"github.com/aceteam-ai/shiftclock/internal/ui"
)

var (
	initSample bool
	initForce  bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write ~/.shiftclock/config.yaml",
	Long: `Creates the shiftclock config file. Runs interactively on a terminal, or
takes --server, --zone and --api-key for automation.

With --sample, a starter job catalog is also written for 'shiftclock serve'.`,
	Example: `  # Interactive
  shiftclock init

  # Non-interactive
  shiftclock init --server https://time.example.com --zone IST --api-key $KEY`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		cfg, err := config.Load(path)
		if err != nil && !initForce {
			return err
		}
		if cfg == nil {
			cfg = config.DefaultConfig()
		}

		interactive := tui.ShouldUseInteractive(noColor) && serverURL == "" && zoneName == ""
		if interactive {
			if err := askConfig(cfg); err != nil {
				if errors.Is(err, ui.ErrCanceled) {
					fmt.Println("Canceled.")
					return nil
				}
				return err
			}
		} else {
			if serverURL != "" {
				cfg.Server = serverURL
			}
			if zoneName != "" {
				cfg.Zone = zoneName
			}
			if apiKey != "" {
				cfg.APIKey = apiKey
			}
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if err := cfg.Save(path); err != nil {
			return err
		}
		goodColor.Printf("✅ Wrote %s\n", path)

		if initSample {
			written, err := config.WriteSampleCatalog(cfg.Serve.Catalog, time.Now())
			if err != nil {
				return err
			}
			if written {
				goodColor.Printf("✅ Wrote sample job catalog %s\n", cfg.Serve.Catalog)
			} else {
				fmt.Printf("   - Kept existing job catalog %s\n", cfg.Serve.Catalog)
			}
		}
		return nil
	},
}

// askConfig fills cfg from interactive prompts
func askConfig(cfg *config.Config) error {
	server, err := ui.AskInput("Time log service URL:", "http://localhost:8787", cfg.Server, validateServerURL)
	if err != nil {
		return err
	}
	cfg.Server = server

	zones := []string{"Local"}
	defaultIndex := 0
	for _, z := range tzconv.Catalog {
		zones = append(zones, fmt.Sprintf("%s (%s)", z.Label, z.Name))
		if z.Label == cfg.Zone || z.Name == cfg.Zone {
			defaultIndex = len(zones) - 1
		}
	}
	choice, err := ui.AskSelect("Your time zone:", zones, defaultIndex)
	if err != nil {
		return err
	}
	cfg.Zone = zoneLabel(choice)

	key, err := ui.AskInput("API key (leave empty if the service has none):", "", cfg.APIKey, nil)
	if err != nil {
		return err
	}
	cfg.APIKey = key
	return nil
}

// zoneLabel turns a selector entry like "IST (Asia/Kolkata)" back into "IST"
func zoneLabel(choice string) string {
	for _, z := range tzconv.Catalog {
		if choice == fmt.Sprintf("%s (%s)", z.Label, z.Name) {
			return z.Label
		}
	}
	return choice
}

func validateServerURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("enter an http:// or https:// URL")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initSample, "sample", false, "also write a sample job catalog")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}
