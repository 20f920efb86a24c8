package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marscolony/airlock-go/pkg/config"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "airlockd",
	Short: "Airlock supervisory controller",
	Long: `airlockd drives the pressure valves, the door and the lights of an airlock
from an operator panel, arbitrating emergencies ahead of every command.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Configuration file (YAML); defaults apply when empty")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

// loadConfig reads the file named by --config and applies flag overrides.
// The result is validated.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if f := flags.Lookup("simulate"); f != nil && f.Changed {
		cfg.Simulate.Enabled, _ = flags.GetBool("simulate")
	}
	if f := flags.Lookup("metrics-addr"); f != nil && f.Changed {
		cfg.Metrics.Addr, _ = flags.GetString("metrics-addr")
	}
	if f := flags.Lookup("trace"); f != nil && f.Changed {
		cfg.Log.Trace, _ = flags.GetString("trace")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
