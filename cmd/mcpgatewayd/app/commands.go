// Package app provides the command-line surface for the mcpgatewayd daemon.
package app

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpgate/gateway/pkg/config"
	"github.com/mcpgate/gateway/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "mcpgatewayd",
	DisableAutoGenTag: true,
	Short:             "mcpgatewayd aggregates MCP servers behind a single local gateway",
	Long: `mcpgatewayd is a desktop-local gateway that supervises a pool of MCP servers
(local sandboxed subprocesses or remote HTTP endpoints) and exposes them to
MCP-capable clients through one HTTP surface.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			_ = os.Setenv("LOG_LEVEL", "debug")
		}
		logger.Initialize()
	},
}

// NewRootCmd creates the root command for the mcpgatewayd CLI.
func NewRootCmd() *cobra.Command {
	v := config.NewViper()

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := v.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("error binding debug flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd(v))
	rootCmd.SilenceUsage = true
	return rootCmd
}
