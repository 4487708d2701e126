// resonanced - touch emotion classification and resonance daemon
//
//	resonanced serve              Run the pipeline and HTTP API
//	resonanced validate           Check the configuration file
//	resonanced export [--private] Write the stored profile as JSON
//	resonanced import <file>      Load a profile document into the store
//	resonanced init               Write a default configuration file
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"resonance/internal/config"
)

// Version is set at build time.
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "resonanced",
	Short: "Touch emotion classification and resonance daemon",
	Long: `resonanced classifies touch samples into emotional states, maps them
to interaction modes and adapts the result to a locally stored profile.

Profiles never leave the machine unless exported explicitly.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"configuration file (default: search the platform config directory)")
	rootCmd.AddCommand(serveCmd, validateCmd, initCmd, exportCmd, importCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the --config value or the first config file
// found in the platform directory.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if found := config.FindConfigFile(); found != "" {
		return found
	}
	return config.ConfigPath()
}

// loadConfig reads and validates the configuration.
func loadConfig() (*config.Loader, *config.Config, error) {
	loader := config.NewLoader(resolveConfigPath())
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", loader.Path(), err)
	}
	return loader, cfg, nil
}
