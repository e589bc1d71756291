// Package main provides cocgw-cli, a command-line tool for checking a cocgw
// configuration and inspecting the keys its developer accounts hold.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clashkit/cocgw/internal/logging"
	"github.com/clashkit/cocgw/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "cocgw-cli",
		Short:         "cocgw command line tool",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logging.SetupWriter(cmd.ErrOrStderr(), logLevel, os.Getenv("LOG_FORMAT"))
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newValidateCmd(),
		newKeysCmd(),
		newTokenCmd(),
		newRevokeCmd(),
		newTagCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cocgw-cli %s\n", version.String())
		},
	}
}
