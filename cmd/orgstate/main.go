// Command orgstate serves the resource lifecycle API and carries the
// admin commands that go with it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/neomorfeo/orgstate/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "orgstate",
	Short: "Resource lifecycle and cache consistency service",
	Long: `orgstate moves organization-owned resources through their lifecycle,
keeps singleton flags (current fiscal year, default contact) consistent and
broadcasts the cache tags each write makes stale.

Configuration comes from orgstate.toml (or --config) and ORGSTATE_* variables.

Examples:
  orgstate serve
  orgstate migrate
  orgstate grant --actor alice --org acme
  orgstate token --actor alice`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ./orgstate.toml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(grantCmd)
	rootCmd.AddCommand(revokeCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
