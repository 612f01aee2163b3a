package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voltlabs/volt/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitPath string

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a configuration file populated with the default values.

Without --config the file is created in the user configuration directory
(for example ~/.config/volt/config.yaml). An existing file is not
overwritten.`,
	Example: `  # Create the default configuration file
  volt-server config init

  # Create it somewhere else
  volt-server config init --config ./volt.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.CreateDefaultConfig(configInitPath)
		if err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", path)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the default configuration file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitPath, "config", "", "Path of the file to create")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}
