package devserver

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"github.com/xhd2015/extension-dev/config"
)

// BuildConfig is handed to the bundler on every build.
type BuildConfig struct {
	Browser config.BrowserTarget
	Source  string
	Output  string
	// Port is the resolved dev server port.
	Port int
	Mode string
	// Changed lists the paths that triggered the build, nil for the first one.
	Changed []string
}

// Bundler produces the output tree from the source tree.
type Bundler interface {
	Build(ctx context.Context, cfg BuildConfig) error
}

// BundlerFunc adapts a function to Bundler.
type BundlerFunc func(ctx context.Context, cfg BuildConfig) error

func (f BundlerFunc) Build(ctx context.Context, cfg BuildConfig) error {
	return f(ctx, cfg)
}

// CommandBundler runs an external build command in Dir. The build
// configuration is passed through EXTENSION_* environment variables.
type CommandBundler struct {
	Command []string
	Dir     string
	Stdout  io.Writer
	Stderr  io.Writer
}

func (b *CommandBundler) Build(ctx context.Context, cfg BuildConfig) error {
	if len(b.Command) == 0 {
		return nil
	}
	cmd := exec.CommandContext(ctx, b.Command[0], b.Command[1:]...)
	cmd.Dir = b.Dir
	cmd.Stdout = b.Stdout
	cmd.Stderr = b.Stderr
	cmd.Env = append(os.Environ(),
		config.EnvBrowser+"="+string(cfg.Browser),
		config.EnvPort+"="+strconv.Itoa(cfg.Port),
		config.EnvMode+"="+cfg.Mode,
		"EXTENSION_SOURCE="+cfg.Source,
		"EXTENSION_OUTPUT="+cfg.Output,
	)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", b.Command[0], err)
	}
	return nil
}
