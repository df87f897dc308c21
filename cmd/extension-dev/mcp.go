package main

import (
	"strings"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/xhd2015/extension-dev/tools/dev"
)

func newMCPCmd(logLevel *string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the dev tools over the Model Context Protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, closeLog, err := openLogger(*logLevel)
			if err != nil {
				return err
			}
			defer closeLog()

			s := server.NewMCPServer(
				"Browser Extension Dev MCP",
				"1.0.0",
				server.WithToolCapabilities(true),
			)
			if err := dev.RegisterTools(s, dev.ToolOptions{Logger: logger}); err != nil {
				return err
			}

			if listen == "" {
				logger.Infof("MCP Server listening on stdio...")
				return server.ServeStdio(s)
			}
			logger.Infof("MCP Server listening on %s...", listen)
			return server.NewSSEServer(s, sseBaseURL(listen)).Start(listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "serve SSE on this address instead of stdio, e.g. 127.0.0.1:12763")
	return cmd
}

// sseBaseURL is the URL clients are told to post messages to.
func sseBaseURL(listen string) string {
	if strings.HasPrefix(listen, ":") {
		listen = "127.0.0.1" + listen
	}
	return "http://" + listen
}
