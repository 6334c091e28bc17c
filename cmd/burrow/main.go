package main

import (
	"fmt"
	"os"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/manager"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "Burrow - private cloud resource control plane",
	Long: `Burrow tracks the resources of a private cloud (virtual machines,
file shares, service endpoints), deploys them onto hosts through
pluggable providers and keeps watching their health.

Configuration is read from --config, BURROW_* environment variables
and flags, in increasing order of precedence.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Burrow version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("data-dir", "", "Data directory (default /var/lib/burrow)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.Bool("log-json", false, "Log as JSON")
	flags.String("metrics-addr", "", "Address of the metrics and health endpoints")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(resourcesCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Burrow version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

// loadConfig resolves the configuration and initializes logging
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	return cfg, nil
}

// openManager opens the control plane without starting background work
func openManager(cmd *cobra.Command) (*manager.Manager, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := manager.NewManager(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open manager: %w", err)
	}
	return mgr, cfg, nil
}
