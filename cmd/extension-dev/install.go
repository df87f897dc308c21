package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/xhd2015/extension-dev/debug/rdp"
	"github.com/xhd2015/extension-dev/messages"
)

func newInstallCmd(logLevel *string) *cobra.Command {
	var (
		host    string
		port    int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "install <addon-dir>",
		Short: "Install an extension directory as a temporary add-on through the remote debugging protocol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addonPath, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			logger, closeLog, err := openLogger(*logLevel)
			if err != nil {
				return err
			}
			defer closeLog()

			client := rdp.NewClient(rdp.Options{Timeout: timeout, Logger: logger})
			ok, err := client.LoadAddon(cmd.Context(), rdp.Address(host, port), addonPath)
			fmt.Fprintln(cmd.OutOrStdout(), messages.AddonInstalled(addonPath, ok))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("browser rejected %s", addonPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "debugger server host")
	cmd.Flags().IntVar(&port, "port", 6000, "debugger server port")
	cmd.Flags().DurationVar(&timeout, "timeout", rdp.DefaultTimeout, "give up after this long, 0 waits forever")
	return cmd
}
