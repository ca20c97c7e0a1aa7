// cmd/version.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// Version will be set at build time
var Version = "dev"

var versionCheckServer bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of shiftclock",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("shiftclock version %s\n", Version)
		if !versionCheckServer {
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		v, err := newHTTPClient(cfg).CheckServerVersion(ctx)
		if err != nil {
			return fmt.Errorf("server %s: %w", cfg.Server, err)
		}
		fmt.Printf("server %s version %s\n", cfg.Server, v)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionCheckServer, "server-check", false, "Also report the service version and check compatibility")
}
