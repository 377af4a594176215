// Package cmd provides command-line interface functionality for the smartlists application.
//
// This package implements the root command and manages the command-line interface
// using the cobra library. It handles configuration, logging setup, and command
// execution for the smartlists application.
//
// The package integrates with several components:
//   - Configuration management through pkg/config
//   - Sync, mirror and seeding through the internal job manager
//   - Manual pages through pkg/man
//   - Version information through pkg/version
//
// Example usage:
//
//	import "github.com/toozej/smartlists/cmd/smartlists"
//
//	func main() {
//		cmd.Execute()
//	}
package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/toozej/smartlists/pkg/config"
	"github.com/toozej/smartlists/pkg/man"
	"github.com/toozej/smartlists/pkg/version"
)

// conf holds the application configuration loaded from environment variables.
// It is populated before every command runs.
var (
	conf config.Config
	// debug controls the logging level for the application.
	// When true, debug-level logging is enabled through logrus.
	debug bool
)

// rootCmd defines the base command for the smartlists CLI application.
var rootCmd = &cobra.Command{
	Use:              "smartlists",
	Short:            "Keep rule-based smart playlists in sync with Spotify",
	Long:             `smartlists evaluates rule-based smart playlists against a local music library and keeps matching Spotify playlists up to date. It also mirrors Spotify collections into the library and enriches tracks with audio features.`,
	Args:             cobra.ExactArgs(0),
	PersistentPreRun: rootCmdPreRun,
	Run:              rootCmdRun,
}

// rootCmdRun is the main execution function for the root command.
func rootCmdRun(cmd *cobra.Command, args []string) {
	log.Info("Use 'smartlists sync <playlist>' or 'smartlists sync --all' to push smart playlists to Spotify")
	log.Info("Use 'smartlists serve' to run the scheduler and HTTP API")
}

// rootCmdPreRun loads configuration and sets the log level before any command runs.
func rootCmdPreRun(cmd *cobra.Command, args []string) {
	// Load configuration
	conf = config.GetEnvVars()
	if debug {
		log.SetLevel(log.DebugLevel)
	}
}

// Execute starts the command-line interface execution.
// If command execution fails, it prints the error and exits with status 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
}

func init() {
	// create rootCmd-level flags
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug-level logging")

	// add sub-commands
	rootCmd.AddCommand(
		newSyncCmd(),
		newMirrorCmd(),
		newPreviewCmd(),
		newSearchCmd(),
		newSeedCmd(),
		newServeCmd(),
		newJobsCmd(),
		man.NewManCmd(),
		version.Command(),
	)
}
