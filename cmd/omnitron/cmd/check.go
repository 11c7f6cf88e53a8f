package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luxquant/omnitron/config"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		fmt.Printf("Configuration %s is valid (storage backend %q, admin on %s).\n",
			configPath, cfg.Storage.Backend, cfg.Admin.Listen)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
