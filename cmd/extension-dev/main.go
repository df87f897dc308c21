package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// install: go install ./cmd/extension-dev
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "extension-dev",
		Short: "Live development server for browser extensions",
		Long: `extension-dev builds a browser extension, serves the output and reloads it
in the running browser whenever the sources change.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default: info)")

	rootCmd.AddCommand(
		newDevCmd(&logLevel),
		newInstallCmd(&logLevel),
		newPortsCmd(),
		newMCPCmd(&logLevel),
	)
	return rootCmd
}
