package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mcdev12/facescan/go/internal/config"
)

const programName = "facescan"

var globalFlags = struct {
	debug   bool
	envFile string
}{}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   programName,
		Short: "Face scan attendance: relay, admin publisher and kiosk subscriber",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if it exists
			if globalFlags.envFile != "" {
				config.LoadDotEnv(globalFlags.envFile)
			} else {
				config.LoadDotEnv()
			}
			setupLogging(globalFlags.debug)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&globalFlags.envFile, "env-file", "", "path to .env file")

	// Subcommands
	rootCmd.AddCommand(relayCommand())
	rootCmd.AddCommand(adminCommand())
	rootCmd.AddCommand(kioskCommand())

	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}
