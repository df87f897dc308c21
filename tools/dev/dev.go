package dev

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/xhd2015/extension-dev/config"
	"github.com/xhd2015/extension-dev/debug"
	"github.com/xhd2015/extension-dev/debug/common"
	"github.com/xhd2015/extension-dev/debug/rdp"
	"github.com/xhd2015/extension-dev/launch"
	"github.com/xhd2015/extension-dev/log"
	"github.com/xhd2015/extension-dev/manager"
	"github.com/xhd2015/extension-dev/port"
)

var browserEnum = []string{
	string(config.Chrome),
	string(config.Edge),
	string(config.Firefox),
	string(config.GeckoBased),
}

type ToolOptions struct {
	Logger log.Logger
	// SessionManager defaults to an rdp session manager.
	SessionManager common.SessionManager
	Provisioner    *manager.Provisioner
	Prober         port.Prober
}

// RegisterTools registers the extension dev tools with the MCP server
func RegisterTools(s *server.MCPServer, opts ToolOptions) error {
	sessionManager := opts.SessionManager
	if sessionManager == nil {
		var err error
		sessionManager, err = debug.NewSessionManager(rdp.DebuggerType, opts.Logger)
		if err != nil {
			return fmt.Errorf("failed to create session manager: %v", err)
		}
	}
	if opts.Provisioner == nil {
		opts.Provisioner = manager.New(opts.Logger)
	}
	if opts.Prober.IsFree == nil {
		opts.Prober = port.Default
	}

	registerInstallAddonTool(s, sessionManager)
	registerListSessionsTool(s, sessionManager)
	registerFindAvailablePortTool(s, opts.Prober)
	registerProvisionTool(s, opts.Provisioner)
	registerLaunchArgsTool(s)

	return nil
}

// registerInstallAddonTool registers the install addon tool
func registerInstallAddonTool(s *server.MCPServer, sessionManager common.SessionManager) {
	tool := mcp.NewTool("install_addon",
		mcp.WithDescription("Install an unpacked extension directory as a temporary add-on into a running Firefox-family browser through its remote debugging port"),
		mcp.WithString("addon_path",
			mcp.Required(),
			mcp.Description("Path to the extension directory (absolute or relative)"),
		),
		mcp.WithNumber("port",
			mcp.Required(),
			mcp.Description("Remote debugging port of the browser, usually the dev server port + 100"),
		),
		mcp.WithString("host",
			mcp.Description("Host of the browser's debugger server (default: 127.0.0.1)"),
		),
		mcp.WithBoolean("wait",
			mcp.Description("Wait for the install to finish instead of returning the session ID right away"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		addonPath, _ := request.Params.Arguments["addon_path"].(string)
		portFloat, _ := request.Params.Arguments["port"].(float64)
		host, _ := request.Params.Arguments["host"].(string)
		wait, _ := request.Params.Arguments["wait"].(bool)

		if addonPath == "" {
			return mcp.NewToolResultError("addon_path is required"), nil
		}
		if host == "" {
			host = "127.0.0.1"
		}
		if !filepath.IsAbs(addonPath) {
			absPath, err := filepath.Abs(addonPath)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Failed to get absolute path: %v", err)), nil
			}
			addonPath = absPath
		}

		session, err := sessionManager.StartInstall(ctx, rdp.Address(host, int(portFloat)), addonPath)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to start install: %v", err)), nil
		}
		if !wait {
			return mcp.NewToolResultText(fmt.Sprintf("Install session started with ID: %s\nAddon: %s\nDebugger: %s",
				session.ID, session.AddonPath, session.Addr)), nil
		}

		session, err = sessionManager.Wait(ctx, session.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed waiting for install: %v", err)), nil
		}
		if session.State != common.StateInstalled {
			msg := fmt.Sprintf("Install session %s failed", session.ID)
			if session.Error != "" {
				msg += ": " + session.Error
			}
			return mcp.NewToolResultError(msg), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Temporary add-on installed: %s", session.AddonPath)), nil
	})
}

// registerListSessionsTool registers the list sessions tool
func registerListSessionsTool(s *server.MCPServer, sessionManager common.SessionManager) {
	tool := mcp.NewTool("list_install_sessions",
		mcp.WithDescription("List temporary add-on install sessions"),
	)

	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessions := sessionManager.ListSessions()
		if len(sessions) == 0 {
			return mcp.NewToolResultText("No install sessions"), nil
		}

		var b strings.Builder
		b.WriteString("Install sessions:\n\n")
		for _, session := range sessions {
			fmt.Fprintf(&b, "ID: %s\nAddon: %s\nDebugger: %s\nState: %s\n",
				session.ID, session.AddonPath, session.Addr, session.State)
			if session.Error != "" {
				fmt.Fprintf(&b, "Error: %s\n", session.Error)
			}
			b.WriteString("\n")
		}
		return mcp.NewToolResultText(b.String()), nil
	})
}

func registerFindAvailablePortTool(s *server.MCPServer, prober port.Prober) {
	tool := mcp.NewTool("find_available_port",
		mcp.WithDescription("Check whether a port is free and, if not, find the next free one"),
		mcp.WithNumber("port",
			mcp.Required(),
			mcp.Description("Requested port"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		portFloat, _ := request.Params.Arguments["port"].(float64)
		requested := int(portFloat)
		if requested < 1 || requested > 65535 {
			return mcp.NewToolResultError(fmt.Sprintf("invalid port: %d", requested)), nil
		}

		alloc := prober.Negotiate(requested)
		if alloc.Reassigned() {
			return mcp.NewToolResultText(fmt.Sprintf("Port %d is in use, next available port: %d",
				alloc.Requested, alloc.Resolved)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Port %d is available", alloc.Resolved)), nil
	})
}

func registerProvisionTool(s *server.MCPServer, provisioner *manager.Provisioner) {
	tool := mcp.NewTool("provision_manager_extension",
		mcp.WithDescription("Stage the reload manager extension for a browser into a build output directory and point it at the dev server port"),
		mcp.WithString("output_dir",
			mcp.Required(),
			mcp.Description("Build output root; the extension is placed under extension-js/extensions/<browser>-manager"),
		),
		mcp.WithString("browser",
			mcp.Required(),
			mcp.Description("Target browser: chrome, edge, firefox or gecko-based"),
			mcp.Enum(browserEnum...),
		),
		mcp.WithNumber("port",
			mcp.Required(),
			mcp.Description("Dev server port the reload port is derived from"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		outputDir, _ := request.Params.Arguments["output_dir"].(string)
		browser, _ := request.Params.Arguments["browser"].(string)
		portFloat, _ := request.Params.Arguments["port"].(float64)

		if outputDir == "" {
			return mcp.NewToolResultError("output_dir is required"), nil
		}
		res, err := provisioner.Apply(outputDir, config.ParseBrowser(browser), int(portFloat))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to provision manager extension: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Manager extension: %s\nReload port: %d\nCopied: %t\nPatched: %t",
			res.Target, res.Port, res.Copied, res.Patched)), nil
	})
}

func registerLaunchArgsTool(s *server.MCPServer) {
	tool := mcp.NewTool("browser_launch_args",
		mcp.WithDescription("Compute the browser invocation for a dev session"),
		mcp.WithString("browser",
			mcp.Required(),
			mcp.Description("Target browser: chrome, edge, firefox or gecko-based"),
			mcp.Enum(browserEnum...),
		),
		mcp.WithString("profile",
			mcp.Required(),
			mcp.Description("Browser profile directory"),
		),
		mcp.WithString("starting_url",
			mcp.Description("URL to open on start"),
		),
		mcp.WithString("flags",
			mcp.Description("Extra browser flags separated by spaces, passed verbatim in order"),
		),
		mcp.WithString("extensions",
			mcp.Description("Comma separated unpacked extension directories (chrome and edge only)"),
		),
		mcp.WithNumber("port",
			mcp.Description("Dev server port; the debug port is derived from it (default debug port 9222)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		browser, _ := request.Params.Arguments["browser"].(string)
		profile, _ := request.Params.Arguments["profile"].(string)
		startingURL, _ := request.Params.Arguments["starting_url"].(string)
		flags, _ := request.Params.Arguments["flags"].(string)
		extensions, _ := request.Params.Arguments["extensions"].(string)

		var devServerPort *int
		if portFloat, ok := request.Params.Arguments["port"].(float64); ok {
			p := int(portFloat)
			devServerPort = &p
		}

		opts := launch.Options{
			Browser:      config.ParseBrowser(browser),
			StartingURL:  startingURL,
			BrowserFlags: strings.Fields(flags),
			ProfilePath:  profile,
		}

		switch {
		case opts.Browser.IsGecko():
			inv, err := launch.FirefoxArgs(opts, devServerPort)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(inv.String()), nil
		case opts.Browser.IsChromium():
			var dirs []string
			for _, d := range strings.Split(extensions, ",") {
				if d = strings.TrimSpace(d); d != "" {
					dirs = append(dirs, d)
				}
			}
			args, err := launch.ChromiumArgs(opts, dirs, devServerPort)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(strings.Join(args, " ")), nil
		default:
			return mcp.NewToolResultError(fmt.Sprintf("unsupported browser: %s", browser)), nil
		}
	})
}
