package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/xhd2015/extension-dev/messages"
	"github.com/xhd2015/extension-dev/port"
)

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports <start>",
		Short: "Print the port a dev server asking for <start> would get",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := strconv.Atoi(args[0])
			if err != nil || start < 1 || start > 65535 {
				return fmt.Errorf("invalid port: %s", args[0])
			}
			alloc := port.Negotiate(start)
			if alloc.Reassigned() {
				fmt.Fprintln(cmd.ErrOrStderr(), messages.PortInUse(alloc.Requested, alloc.Resolved))
			}
			fmt.Fprintln(cmd.OutOrStdout(), alloc.Resolved)
			return nil
		},
	}
}
