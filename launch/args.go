// Package launch turns dev options into browser process invocations and
// runs the browser process.
package launch

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xhd2015/extension-dev/config"
)

const (
	// DefaultDebugPort is used when no dev server port is known.
	DefaultDebugPort = 9222
	// debug port = dev server port + debugPortOffset
	debugPortOffset = 100
)

// ErrMissingField is wrapped by *ConfigError.
var ErrMissingField = errors.New("missing required launch option")

// ConfigError names the launch option that was absent.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("launch: %s is required", e.Field)
}

func (e *ConfigError) Unwrap() error {
	return ErrMissingField
}

// Options is the subset of dev options a browser invocation depends on.
type Options struct {
	Browser      config.BrowserTarget
	StartingURL  string
	BrowserFlags []string
	ProfilePath  string
}

// OptionsFrom picks the launch options out of resolved dev options.
func OptionsFrom(o config.DevOptions) Options {
	return Options{
		Browser:      o.Browser,
		StartingURL:  o.StartingURL,
		BrowserFlags: o.BrowserFlags,
		ProfilePath:  o.Profile,
	}
}

func (o Options) validate() error {
	if o.Browser == "" {
		return &ConfigError{Field: "browser"}
	}
	if o.ProfilePath == "" {
		return &ConfigError{Field: "profile path"}
	}
	return nil
}

// DebugPort derives the remote debugging port from the dev server port.
func DebugPort(devServerPort *int) int {
	if devServerPort == nil {
		return DefaultDebugPort
	}
	return *devServerPort + debugPortOffset
}

// Invocation is the argument list of a Firefox runner.
type Invocation struct {
	// BinaryArgs are passed through to the browser binary.
	BinaryArgs []string
	// Args are the runner arguments, BinaryArgs bundled into one of them.
	Args      []string
	DebugPort int
}

func (i Invocation) String() string {
	return strings.Join(i.Args, " ")
}

// FirefoxArgs builds the runner invocation for Firefox-family browsers.
func FirefoxArgs(opts Options, devServerPort *int) (Invocation, error) {
	if err := opts.validate(); err != nil {
		return Invocation{}, err
	}

	var binaryArgs []string
	if opts.StartingURL != "" {
		binaryArgs = append(binaryArgs, "--url="+opts.StartingURL)
	}
	binaryArgs = append(binaryArgs, opts.BrowserFlags...)

	debugPort := DebugPort(devServerPort)
	return Invocation{
		BinaryArgs: binaryArgs,
		Args: []string{
			`--binary-args="` + strings.Join(binaryArgs, " ") + `"`,
			`--profile="` + opts.ProfilePath + `"`,
			"--listen=" + strconv.Itoa(debugPort),
			"--verbose",
		},
		DebugPort: debugPort,
	}, nil
}

// FirefoxCommand is the argument list for starting the Firefox binary
// directly with its debugger server listening on the derived port.
func FirefoxCommand(opts Options, devServerPort *int) ([]string, error) {
	inv, err := FirefoxArgs(opts, devServerPort)
	if err != nil {
		return nil, err
	}
	args := []string{
		"-no-remote",
		"-profile", opts.ProfilePath,
		"-start-debugger-server", strconv.Itoa(inv.DebugPort),
	}
	return append(args, inv.BinaryArgs...), nil
}

// ChromiumArgs builds the argument list for Chrome and Edge. Unpacked
// extensions are loaded through --load-extension.
func ChromiumArgs(opts Options, extensionDirs []string, devServerPort *int) ([]string, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", DebugPort(devServerPort)),
		fmt.Sprintf("--user-data-dir=%s", opts.ProfilePath),
	}
	if len(extensionDirs) > 0 {
		args = append(args, "--load-extension="+strings.Join(extensionDirs, ","))
	}
	args = append(args,
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-sync",
		"--disable-component-update",
		"--hide-crash-restore-bubble",
		"--password-store=basic",
	)
	args = append(args, opts.BrowserFlags...)

	if opts.StartingURL != "" {
		args = append(args, opts.StartingURL)
	}
	return args, nil
}
