package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/neurofed/axon/pkg/config"
	"github.com/neurofed/axon/pkg/log"
	"github.com/neurofed/axon/pkg/metrics"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	flagRoot     string
	flagConfig   string
	flagLogLevel string
	flagLogJSON  bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "axon",
	Short: "Axon - federated remote-analysis node",
	Long: `Axon is a privacy-preserving remote-analysis node. Researchers submit
analysis requests against locally-curated catalogs; operators review and
approve them; approved analyses run as sandboxed processes and only
results that clear the cohort-size privacy gate are released.

Each institution runs its own independent node over its own data.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Axon version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Global flags
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", "./axon-data", "Node root directory")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file (default <root>/axon.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(requestCmd)
	rootCmd.AddCommand(uploadCmd)
}

func initLogging() {
	log.Init(log.Config{
		Level:      log.Level(flagLogLevel),
		JSONOutput: flagLogJSON,
	})
	metrics.SetVersion(Version)
}

// loadConfig resolves the effective configuration for the chosen root.
func loadConfig() (*config.Config, error) {
	path := flagConfig
	if path == "" {
		path = flagRoot + "/axon.yaml"
	}
	cfg, err := config.Load(path, flagRoot)
	if err != nil {
		return nil, err
	}
	if cfg.Log.File != "" || cfg.Log.JSON || cfg.Log.Level != "info" {
		log.Init(log.Config{
			Level:      log.Level(cfg.Log.Level),
			JSONOutput: cfg.Log.JSON || flagLogJSON,
			File:       cfg.Log.File,
		})
	}
	return cfg, nil
}
