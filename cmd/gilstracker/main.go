package main

import (
	"os"

	"github.com/TheNickoos/GilsTracker/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gilstracker",
		Short:        "Track gil gained and spent during a game session",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to config.yaml (default $XDG_CONFIG_HOME/gilstracker/config.yaml)")
	root.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newServeCmd(),
		newStatusCmd(),
		newResetCmd(),
		newTokenCmd(),
	)
	return root
}

func configPath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p
	}
	return config.DefaultPath()
}
