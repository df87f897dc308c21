package launch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhd2015/extension-dev/config"
)

func intPtr(v int) *int {
	return &v
}

func TestDebugPort(t *testing.T) {
	assert.Equal(t, 9222, DebugPort(nil))
	assert.Equal(t, 8180, DebugPort(intPtr(8080)))
}

func TestFirefoxArgs(t *testing.T) {
	inv, err := FirefoxArgs(Options{
		Browser:      config.Firefox,
		StartingURL:  "https://example.com",
		BrowserFlags: []string{"--devtools", "--private-window"},
		ProfilePath:  "/tmp/profile",
	}, intPtr(8080))
	require.NoError(t, err)

	assert.Equal(t, []string{"--url=https://example.com", "--devtools", "--private-window"}, inv.BinaryArgs)
	assert.Equal(t, []string{
		`--binary-args="--url=https://example.com --devtools --private-window"`,
		`--profile="/tmp/profile"`,
		"--listen=8180",
		"--verbose",
	}, inv.Args)
	assert.Equal(t, 8180, inv.DebugPort)
	assert.Equal(t,
		`--binary-args="--url=https://example.com --devtools --private-window" --profile="/tmp/profile" --listen=8180 --verbose`,
		inv.String())
}

func TestFirefoxArgsDefaults(t *testing.T) {
	inv, err := FirefoxArgs(Options{Browser: config.GeckoBased, ProfilePath: "/p"}, nil)
	require.NoError(t, err)
	assert.Empty(t, inv.BinaryArgs)
	assert.Equal(t, `--binary-args="" --profile="/p" --listen=9222 --verbose`, inv.String())
}

func TestFirefoxArgsKeepRawText(t *testing.T) {
	inv, err := FirefoxArgs(Options{
		Browser:      config.Firefox,
		ProfilePath:  `C:\Users\dev\profile`,
		BrowserFlags: []string{`--title="dev build"`},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, `--binary-args="--title="dev build""`, inv.Args[0])
	assert.Equal(t, `--profile="C:\Users\dev\profile"`, inv.Args[1])
}

func TestMissingFields(t *testing.T) {
	_, err := FirefoxArgs(Options{ProfilePath: "/p"}, nil)
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = FirefoxArgs(Options{Browser: config.Firefox}, nil)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "profile path", cfgErr.Field)

	_, err = ChromiumArgs(Options{Browser: config.Chrome}, nil, nil)
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = FirefoxCommand(Options{}, nil)
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestFirefoxCommand(t *testing.T) {
	args, err := FirefoxCommand(Options{
		Browser:      config.Firefox,
		StartingURL:  "about:debugging",
		BrowserFlags: []string{"--jsconsole"},
		ProfilePath:  "/tmp/ff",
	}, intPtr(3000))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-no-remote",
		"-profile", "/tmp/ff",
		"-start-debugger-server", "3100",
		"--url=about:debugging",
		"--jsconsole",
	}, args)
}

func TestChromiumArgs(t *testing.T) {
	args, err := ChromiumArgs(Options{
		Browser:      config.Edge,
		StartingURL:  "https://example.com",
		BrowserFlags: []string{"--auto-open-devtools-for-tabs", "--lang=en"},
		ProfilePath:  "/tmp/edge",
	}, []string{"/out/edge", "/out/extension-js/extensions/edge-manager"}, intPtr(8000))
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(args), 5)
	assert.Equal(t, "--remote-debugging-port=8100", args[0])
	assert.Equal(t, "--user-data-dir=/tmp/edge", args[1])
	assert.Equal(t, "--load-extension=/out/edge,/out/extension-js/extensions/edge-manager", args[2])
	assert.Contains(t, args, "--no-first-run")

	n := len(args)
	assert.Equal(t, []string{"--auto-open-devtools-for-tabs", "--lang=en", "https://example.com"}, args[n-3:])
}

func TestChromiumArgsWithoutURL(t *testing.T) {
	args, err := ChromiumArgs(Options{Browser: config.Chrome, ProfilePath: "/p"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "--remote-debugging-port=9222", args[0])
	assert.Equal(t, "--password-store=basic", args[len(args)-1])
	for _, a := range args {
		assert.NotContains(t, a, "--load-extension")
	}
}

func TestOptionsFrom(t *testing.T) {
	o := OptionsFrom(config.DevOptions{
		Browser:      config.Firefox,
		StartingURL:  "https://a.test",
		BrowserFlags: []string{"-x"},
		Profile:      "/prof",
	})
	assert.Equal(t, Options{
		Browser:      config.Firefox,
		StartingURL:  "https://a.test",
		BrowserFlags: []string{"-x"},
		ProfilePath:  "/prof",
	}, o)
}
