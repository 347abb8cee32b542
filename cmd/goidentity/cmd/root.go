package cmd

import (
	"fmt"
	"os"

	"github.com/MrEthical07/goIdentity/config"
	"github.com/spf13/cobra"
)

var settings config.Settings

var rootCmd = &cobra.Command{
	Use:   "goidentity",
	Short: "Session-cookie identity service",
	Long: `goidentity serves email/password and OAuth sign-in backed by Redis sessions.
Configuration is read from GOIDENTITY_* environment variables; flags override them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		settings = s
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(keygenCmd)
}
