package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/xhd2015/extension-dev/config"
	"github.com/xhd2015/extension-dev/debug"
	"github.com/xhd2015/extension-dev/debug/rdp"
	"github.com/xhd2015/extension-dev/devserver"
	"github.com/xhd2015/extension-dev/launch"
	"github.com/xhd2015/extension-dev/log"
	"github.com/xhd2015/extension-dev/manager"
	"github.com/xhd2015/extension-dev/messages"
)

const (
	debuggerReadyTimeout = 30 * time.Second
	browserStopTimeout   = 5 * time.Second
)

type devFlags struct {
	browser     string
	port        string
	startingURL string
	flags       []string
	profile     string
	binary      string
	open        bool
	source      string
	output      string
	build       []string
	ignore      []string
}

func newDevCmd(logLevel *string) *cobra.Command {
	var f devFlags

	cmd := &cobra.Command{
		Use:   "dev [project]",
		Short: "Build, serve and live-reload an extension",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project := "."
			if len(args) > 0 {
				project = args[0]
			}
			cli, err := f.section(cmd, *logLevel)
			if err != nil {
				return err
			}
			return runDev(cmd.Context(), cmd.OutOrStdout(), project, cli)
		},
	}

	cmd.Flags().StringVar(&f.browser, "browser", "", "target browser: chrome, edge, firefox, gecko-based (default: chrome)")
	cmd.Flags().StringVar(&f.port, "port", "", `dev server port or "auto" (default: auto)`)
	cmd.Flags().StringVar(&f.startingURL, "starting-url", "", "URL to open when the browser starts")
	cmd.Flags().StringArrayVar(&f.flags, "browser-flag", nil, "extra browser flag, repeatable, passed in order")
	cmd.Flags().StringVar(&f.profile, "profile", "", "browser profile directory")
	cmd.Flags().StringVar(&f.binary, "binary", "", "browser executable")
	cmd.Flags().BoolVar(&f.open, "open", false, "launch the browser once the server is up")
	cmd.Flags().StringVar(&f.source, "source", "", "directory to watch (default: project)")
	cmd.Flags().StringVar(&f.output, "output", "", "build output directory (default: <project>/dist/<browser>)")
	cmd.Flags().StringArrayVar(&f.build, "build", nil, "bundler command and its arguments, one per flag")
	cmd.Flags().StringArrayVar(&f.ignore, "ignore", nil, "glob of paths the watcher ignores, repeatable")
	return cmd
}

// section keeps only the flags given on the command line so that they
// override the config file without clobbering it with defaults.
func (f *devFlags) section(cmd *cobra.Command, logLevel string) (config.Section, error) {
	s := config.Section{
		Browser:      f.browser,
		StartingURL:  f.startingURL,
		BrowserFlags: f.flags,
		Profile:      f.profile,
		Binary:       f.binary,
		Source:       f.source,
		Output:       f.output,
		Build:        f.build,
		Ignore:       f.ignore,
		LogLevel:     logLevel,
	}
	if cmd.Flags().Changed("port") {
		p, err := config.ParsePort(f.port)
		if err != nil {
			return s, err
		}
		s.Port = &p
	}
	if cmd.Flags().Changed("open") {
		s.Open = &f.open
	}
	return s, nil
}

func runDev(ctx context.Context, out io.Writer, project string, cli config.Section) error {
	opts, err := config.Resolve(project, cli)
	if err != nil {
		return err
	}
	logger, closeLog, err := openLogger(opts.LogLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	var bundler devserver.Bundler
	if len(opts.Build) > 0 {
		bundler = &devserver.CommandBundler{
			Command: opts.Build,
			Dir:     opts.ProjectPath,
			Stdout:  os.Stdout,
			Stderr:  os.Stderr,
		}
	}

	srv := devserver.New(devserver.Options{
		Dev:     opts,
		Bundler: bundler,
		Logger:  logger,
		Out:     out,
	})
	// an interrupt during the first build must still go through Stop
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lifecycle, err := srv.Start(ctx)
	if err != nil {
		var inUse *devserver.PortInUseError
		if errors.As(err, &inUse) {
			fmt.Fprintln(out, messages.PortInUse(inUse.Port, inUse.Port+1))
		}
		return err
	}

	var browser *launch.Process
	if opts.Open && ctx.Err() == nil {
		browser, err = openBrowser(ctx, out, srv, opts, logger)
		if err != nil {
			logger.Errorf("failed to open browser: %v", err)
			fmt.Fprintln(out, messages.RunnerError(err))
		}
	}

	<-ctx.Done()
	logger.Infof("shutting down dev server")
	if browser != nil {
		if err := browser.Stop(browserStopTimeout); err != nil {
			logger.Errorf("failed to stop browser: %v", err)
		}
	}
	if err := lifecycle.Stop(); err != nil {
		logger.Errorf("failed to stop dev server: %v", err)
	}
	return nil
}

func openBrowser(ctx context.Context, out io.Writer, srv *devserver.Server, opts config.DevOptions, logger log.Logger) (*launch.Process, error) {
	if opts.Binary == "" {
		return nil, fmt.Errorf("no browser binary configured for %s", opts.Browser)
	}
	lopts := launch.OptionsFrom(opts)
	if lopts.ProfilePath == "" {
		lopts.ProfilePath = srv.ProfileDir()
	}
	devServerPort := srv.Port()

	if !opts.Browser.IsGecko() {
		dirs := []string{opts.Output, manager.TargetPath(srv.ManagerRoot(), opts.Browser)}
		args, err := launch.ChromiumArgs(lopts, dirs, &devServerPort)
		if err != nil {
			return nil, err
		}
		return launch.Start(ctx, opts.Binary, args, logger)
	}

	if _, err := launch.WriteFirefoxPrefs(lopts.ProfilePath, opts.Preferences); err != nil {
		return nil, err
	}
	args, err := launch.FirefoxCommand(lopts, &devServerPort)
	if err != nil {
		return nil, err
	}
	proc, err := launch.Start(ctx, opts.Binary, args, logger)
	if err != nil {
		return nil, err
	}

	addr := rdp.Address("127.0.0.1", launch.DebugPort(&devServerPort))
	waitCtx, cancel := context.WithTimeout(ctx, debuggerReadyTimeout)
	defer cancel()
	if err := launch.WaitForPort(waitCtx, addr, 0); err != nil {
		return proc, err
	}

	installer, err := debug.NewInstaller(opts.Browser, rdp.Options{Timeout: rdp.DefaultTimeout, Logger: logger})
	if err != nil {
		return proc, err
	}
	for _, dir := range []string{manager.TargetPath(srv.ManagerRoot(), opts.Browser), opts.Output} {
		ok, err := installer.LoadAddon(ctx, addr, dir)
		if err != nil {
			logger.Warnf("install %s: %v", dir, err)
		}
		fmt.Fprintln(out, messages.AddonInstalled(dir, ok))
	}
	return proc, nil
}
