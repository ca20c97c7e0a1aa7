// cmd/root.go
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aceteam-ai/shiftclock/internal/config"
	"github.com/aceteam-ai/shiftclock/internal/timelog"
)

var cfgFile string
var serverURL string
var apiKey string
var zoneName string
var debugMode bool
var noColor bool

// debugLogFile is the file handle for debug logging
var debugLogFile *os.File
var debugLogMu sync.Mutex
var debugLogInitOnce sync.Once

// initDebugLogFile opens ~/.shiftclock/logs/debug.log for appending
func initDebugLogFile() {
	logDir := filepath.Join(config.Dir(), "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return
	}

	f, err := os.OpenFile(filepath.Join(logDir, "debug.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	debugLogFile = f

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(debugLogFile, "\n=== Debug session started: %s ===\n", timestamp)
}

// Debug prints a message if debug mode is enabled and writes to log file
func Debug(format string, args ...any) {
	if !debugMode {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)

	fmt.Fprintf(os.Stderr, "[DEBUG] %s\n", msg)

	debugLogMu.Lock()
	debugLogInitOnce.Do(initDebugLogFile)
	if debugLogFile != nil {
		fmt.Fprintf(debugLogFile, "[%s] %s\n", timestamp, msg)
	}
	debugLogMu.Unlock()
}

// logFn adapts Debug to the LogFn callbacks used by internal packages.
// Warnings and errors are always shown.
func logFn(level, msg string) {
	switch level {
	case "warning", "error":
		fmt.Fprintf(os.Stderr, "%s %s\n", warnColor.Sprint("["+level+"]"), msg)
		if debugMode {
			Debug("%s: %s", level, msg)
		}
	default:
		Debug("%s: %s", level, msg)
	}
}

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	goodColor   = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	badColor    = color.New(color.FgRed)
	labelColor  = color.New(color.Bold)
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "shiftclock",
	Short: "Track work sessions against jobs and their shifts",
	Long: `shiftclock starts, pauses, resumes and stops timed work sessions on jobs,
enforcing each job's date range and daily shift windows in your own time zone.

Run 'shiftclock serve' for the reference time log service.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
		if debugMode {
			fullCmd := "shiftclock"
			if cmd.Name() != "shiftclock" {
				fullCmd += " " + cmd.Name()
			}
			cmd.Flags().Visit(func(f *pflag.Flag) {
				if f.Name == "debug" || f.Name == "api-key" {
					return
				}
				if f.Value.Type() == "bool" {
					fullCmd += " --" + f.Name
				} else {
					fullCmd += " --" + f.Name + "=" + f.Value.String()
				}
			})
			if len(args) > 0 {
				fullCmd += " " + strings.Join(args, " ")
			}
			Debug("command: %s", fullCmd)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		badColor.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.Server = serverURL
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	if zoneName != "" {
		cfg.Zone = zoneName
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	Debug("config: server=%s zone=%s", cfg.Server, cfg.Zone)
	return cfg, nil
}

func newHTTPClient(cfg *config.Config) *timelog.HTTPClient {
	return timelog.NewHTTPClient(timelog.HTTPClientConfig{
		BaseURL: cfg.Server,
		APIKey:  cfg.APIKey,
		LogFn:   logFn,
	})
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.shiftclock/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "time log service URL (overrides config and SHIFTCLOCK_SERVER)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for the time log service")
	rootCmd.PersistentFlags().StringVar(&zoneName, "zone", "", "your time zone: IANA name, catalog label (IST, ET...) or Local")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}
