// Package cmd implements the knime-bridge CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"yqhp/knime-bridge/pkg/logger"
)

// Version is the current release version.
const Version = "0.1.0"

var (
	cfgFile string
	debug   bool
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "knime-bridge",
	Short: "Drive KNIME workflows from the command line",
	Long: `knime-bridge executes KNIME workflows as a black box: it feeds wire-format
data tables to container input nodes, runs the workflow through the local
batch executor or a KNIME server, and collects the container output tables.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		switch {
		case debug:
			logger.SetLevel(logger.LevelDebug)
		case quiet:
			logger.SetLevel(logger.LevelError)
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log errors")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
