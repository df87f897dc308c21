// Package config holds the developer-facing options of a dev session and
// resolves them from extension.config.yaml, .env and command line input.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// BrowserTarget selects the browser family a dev session runs against.
// It determines the reload port offset and the manager extension variant.
type BrowserTarget string

const (
	Chrome     BrowserTarget = "chrome"
	Edge       BrowserTarget = "edge"
	Firefox    BrowserTarget = "firefox"
	GeckoBased BrowserTarget = "gecko-based"
)

// ParseBrowser normalizes s. Unknown names are kept as-is and treated as "other".
func ParseBrowser(s string) BrowserTarget {
	return BrowserTarget(strings.ToLower(strings.TrimSpace(s)))
}

// IsGecko reports whether the target is Firefox or a Firefox derivative,
// i.e. a browser that needs the remote debugging protocol to load an add-on.
func (b BrowserTarget) IsGecko() bool {
	return b == Firefox || b == GeckoBased
}

// IsChromium reports whether the target loads unpacked extensions from flags.
func (b BrowserTarget) IsChromium() bool {
	return b == Chrome || b == Edge
}

// Known reports whether b is one of the supported targets.
func (b BrowserTarget) Known() bool {
	return b.IsChromium() || b.IsGecko()
}

const autoPort = "auto"

// ErrInvalidPort is returned for port values that are neither "auto" nor
// an integer in [1, 65535].
var ErrInvalidPort = errors.New("invalid port")

// Port is either a concrete TCP port or "auto", which lets the asset server
// pick one.
type Port struct {
	Auto  bool
	Value int
}

// AutoPort is the "auto" selection.
var AutoPort = Port{Auto: true}

// NumericPort returns a concrete port selection.
func NumericPort(p int) Port {
	return Port{Value: p}
}

// ParsePort accepts "auto", the empty string (same as auto) or a decimal port.
func ParsePort(s string) (Port, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, autoPort) {
		return AutoPort, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		return Port{}, fmt.Errorf("%w: %q", ErrInvalidPort, s)
	}
	return NumericPort(n), nil
}

func (p Port) String() string {
	if p.Auto {
		return autoPort
	}
	return strconv.Itoa(p.Value)
}

// UnmarshalYAML accepts both `port: 8080` and `port: auto`.
func (p *Port) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParsePort(value.Value)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalYAML writes auto as a string and numbers as ints.
func (p Port) MarshalYAML() (interface{}, error) {
	if p.Auto {
		return autoPort, nil
	}
	return p.Value, nil
}

// DevOptions is the resolved, read-only input of one dev session.
type DevOptions struct {
	Browser      BrowserTarget
	Port         Port
	StartingURL  string
	BrowserFlags []string
	Profile      string
	Preferences  map[string]interface{}

	// Binary is the browser executable; launching is skipped when empty.
	Binary string
	// Open launches the browser once the server is up.
	Open bool

	ProjectPath string
	// Source is the watched directory, Output the compiled tree served to the browser.
	Source string
	Output string
	// Build is the external bundler command; empty means the output tree is
	// produced by someone else.
	Build  []string
	Ignore []string

	LogLevel string
}
