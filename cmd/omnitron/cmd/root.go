package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/luxquant/omnitron/config"
)

var configPath string

// loadConfig reads the configured file, falling back to built-in defaults
// when it does not exist yet.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

var rootCmd = &cobra.Command{
	Use:   "omnitron",
	Short: "Omnitron is an access gateway for SSH, HTTP and database targets",
	Long: `A smart bastion that authenticates users, authorizes them against
configured targets and records every session it carries.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "omnitron.yaml", "Path to the configuration file")
}
