package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// File names looked up in the project root.
var configFileNames = []string{"extension.config.yaml", "extension.config.yml"}

const envFileName = ".env"

// Environment overrides.
const (
	EnvBrowser  = "EXTENSION_BROWSER"
	EnvPort     = "EXTENSION_PORT"
	EnvLogLevel = "EXTENSION_LOG_LEVEL"
	EnvMode     = "EXTENSION_ENV"
)

// Section is one block of options. Zero values mean "not set", so sections
// can be layered on top of each other.
type Section struct {
	Browser      string                 `yaml:"browser,omitempty"`
	Port         *Port                  `yaml:"port,omitempty"`
	StartingURL  string                 `yaml:"startingUrl,omitempty"`
	BrowserFlags []string               `yaml:"browserFlags,omitempty"`
	Profile      string                 `yaml:"profile,omitempty"`
	Preferences  map[string]interface{} `yaml:"preferences,omitempty"`
	Binary       string                 `yaml:"binary,omitempty"`
	Open         *bool                  `yaml:"open,omitempty"`
	Source       string                 `yaml:"source,omitempty"`
	Output       string                 `yaml:"output,omitempty"`
	Build        []string               `yaml:"build,omitempty"`
	Ignore       []string               `yaml:"ignore,omitempty"`
	LogLevel     string                 `yaml:"logLevel,omitempty"`
}

// FileConfig is the content of extension.config.yaml.
//
//	commands:
//	  dev:
//	    port: 8080
//	browsers:
//	  firefox:
//	    binary: /usr/bin/firefox
type FileConfig struct {
	Commands struct {
		Dev Section `yaml:"dev"`
	} `yaml:"commands"`
	Browsers map[string]Section `yaml:"browsers"`
}

// LoadFile reads the project config file. A project without one yields an
// empty config.
func LoadFile(projectPath string) (*FileConfig, error) {
	var cfg FileConfig
	for _, name := range configFileNames {
		data, err := os.ReadFile(filepath.Join(projectPath, name))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		return &cfg, nil
	}
	return &cfg, nil
}

// LoadEnv loads the project's .env file into the process environment without
// overriding variables that are already set.
func LoadEnv(projectPath string) error {
	path := filepath.Join(projectPath, envFileName)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Resolve merges defaults, the dev command section, the browser section,
// environment overrides and finally cli, in increasing precedence.
func Resolve(projectPath string, cli Section) (DevOptions, error) {
	absProject, err := filepath.Abs(projectPath)
	if err != nil {
		return DevOptions{}, err
	}
	if err := LoadEnv(absProject); err != nil {
		return DevOptions{}, err
	}
	file, err := LoadFile(absProject)
	if err != nil {
		return DevOptions{}, err
	}

	env, err := envSection()
	if err != nil {
		return DevOptions{}, err
	}

	browser := firstNonEmpty(cli.Browser, env.Browser, file.Commands.Dev.Browser, string(Chrome))

	opts := DevOptions{
		Browser:     ParseBrowser(browser),
		Port:        AutoPort,
		ProjectPath: absProject,
	}
	opts.apply(file.Commands.Dev)
	opts.apply(file.Browsers[string(opts.Browser)])
	opts.apply(env)
	opts.apply(cli)
	// the browser is fixed before sections are applied
	opts.Browser = ParseBrowser(browser)

	if opts.Source == "" {
		opts.Source = absProject
	} else if !filepath.IsAbs(opts.Source) {
		opts.Source = filepath.Join(absProject, opts.Source)
	}
	if opts.Output == "" {
		opts.Output = filepath.Join(absProject, "dist", string(opts.Browser))
	} else if !filepath.IsAbs(opts.Output) {
		opts.Output = filepath.Join(absProject, opts.Output)
	}
	if opts.Profile != "" && !filepath.IsAbs(opts.Profile) {
		opts.Profile = filepath.Join(absProject, opts.Profile)
	}
	return opts, nil
}

func envSection() (Section, error) {
	s := Section{
		Browser:  os.Getenv(EnvBrowser),
		LogLevel: os.Getenv(EnvLogLevel),
	}
	if v := os.Getenv(EnvPort); v != "" {
		p, err := ParsePort(v)
		if err != nil {
			return s, fmt.Errorf("%s: %w", EnvPort, err)
		}
		s.Port = &p
	}
	return s, nil
}

func (o *DevOptions) apply(s Section) {
	if s.Port != nil {
		o.Port = *s.Port
	}
	if s.StartingURL != "" {
		o.StartingURL = s.StartingURL
	}
	if len(s.BrowserFlags) > 0 {
		o.BrowserFlags = append([]string(nil), s.BrowserFlags...)
	}
	if s.Profile != "" {
		o.Profile = s.Profile
	}
	if len(s.Preferences) > 0 {
		if o.Preferences == nil {
			o.Preferences = make(map[string]interface{}, len(s.Preferences))
		}
		for k, v := range s.Preferences {
			o.Preferences[k] = v
		}
	}
	if s.Binary != "" {
		o.Binary = s.Binary
	}
	if s.Open != nil {
		o.Open = *s.Open
	}
	if s.Source != "" {
		o.Source = s.Source
	}
	if s.Output != "" {
		o.Output = s.Output
	}
	if len(s.Build) > 0 {
		o.Build = append([]string(nil), s.Build...)
	}
	if len(s.Ignore) > 0 {
		o.Ignore = append(o.Ignore, s.Ignore...)
	}
	if s.LogLevel != "" {
		o.LogLevel = s.LogLevel
	}
}

// IsDevelopmentMode reports whether EXTENSION_ENV asks for verbose tooling output.
func IsDevelopmentMode() bool {
	return strings.EqualFold(os.Getenv(EnvMode), "development")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
