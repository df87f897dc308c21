// Package manager stages the per-browser manager extension, the companion
// extension that connects to the dev server and reloads the extension under
// development, into a build output tree.
package manager

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/xhd2015/extension-dev/config"
	"github.com/xhd2015/extension-dev/log"
)

const (
	outputDir     = "extension-js"
	extensionsDir = "extensions"

	// ReloadServiceFile is the bundle file carrying the reload port.
	ReloadServiceFile = "reload-service.js"
	// Placeholder is the port value of a freshly copied bundle.
	Placeholder = "__RELOAD_PORT__"

	// FallbackPort is the reload port of browsers without a known offset.
	FallbackPort = 8888
)

// ErrBundleNotFound means the binary ships no manager extension for a browser.
var ErrBundleNotFound = errors.New("manager extension bundle not found")

var portPattern = regexp.MustCompile(`\bport\s*=\s*['"](` + Placeholder + `|\d+)['"]`)

// PortForBrowser derives the reload port the manager extension of browser
// connects to.
func PortForBrowser(basePort int, browser config.BrowserTarget) int {
	switch browser {
	case config.Chrome:
		return basePort
	case config.Edge:
		return basePort + 1
	case config.Firefox, config.GeckoBased:
		return basePort + 2
	default:
		return FallbackPort
	}
}

// TargetPath is where the manager extension of browser lives inside outputDir.
func TargetPath(outputPath string, browser config.BrowserTarget) string {
	return filepath.Join(outputPath, outputDir, extensionsDir, string(browser)+"-manager")
}

func bundleName(browser config.BrowserTarget) string {
	return string(browser) + "-manager-extension"
}

// Result reports what Apply did.
type Result struct {
	Target string
	// Copied is true when the bundle was copied because Target was absent.
	Copied bool
	// Patched is true when the reload service file was rewritten.
	Patched bool
	// Port is the reload port the bundle now points at.
	Port int
}

// Provisioner copies bundles from Source. It is not safe to run two calls
// against the same output tree concurrently.
type Provisioner struct {
	Source fs.FS
	Logger log.Logger
}

// New returns a Provisioner over the bundled extensions.
func New(logger log.Logger) *Provisioner {
	return &Provisioner{Source: Bundled(), Logger: logger}
}

// Apply makes sure the manager extension for browser exists under outputPath
// and points at the reload port derived from basePort. The bundle is copied
// only when the target does not exist yet; the port is checked every time.
func (p *Provisioner) Apply(outputPath string, browser config.BrowserTarget, basePort int) (Result, error) {
	logger := log.OrNop(p.Logger)
	res := Result{
		Target: TargetPath(outputPath, browser),
		Port:   PortForBrowser(basePort, browser),
	}

	exists, err := dirExists(res.Target)
	if err != nil {
		return res, err
	}
	if !exists {
		if err := p.CopyBundle(res.Target, browser); err != nil {
			return res, err
		}
		res.Copied = true
		logger.Infof("manager extension for %s copied to %s", browser, res.Target)
	}

	res.Patched, err = PatchReloadPort(res.Target, res.Port)
	if err != nil {
		return res, err
	}
	if res.Patched {
		logger.Debugf("manager extension for %s now reloads on port %d", browser, res.Port)
	}
	return res, nil
}

// CopyBundle copies the bundle of browser to target. The tree is staged next
// to target and renamed into place, so target never holds a partial copy.
func (p *Provisioner) CopyBundle(target string, browser config.BrowserTarget) error {
	name := bundleName(browser)
	info, err := fs.Stat(p.Source, name)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrBundleNotFound, name)
	}

	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("create %s: %w", parent, err)
	}
	staging, err := os.MkdirTemp(parent, ".staging-"+string(browser)+"-")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	err = fs.WalkDir(p.Source, name, func(src string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := src[len(name):]
		dst := filepath.Join(staging, filepath.FromSlash(path.Clean("/"+rel)))
		if d.IsDir() {
			return os.MkdirAll(dst, 0755)
		}
		return copyFile(p.Source, src, dst)
	})
	if err != nil {
		return fmt.Errorf("copy %s: %w", name, err)
	}
	if err := os.Chmod(staging, 0755); err != nil {
		return err
	}
	if err := os.Rename(staging, target); err != nil {
		return fmt.Errorf("move %s into place: %w", name, err)
	}
	return nil
}

func copyFile(fsys fs.FS, src string, dst string) error {
	in, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// PatchReloadPort rewrites the port literal of the reload service file in
// target when it is the placeholder or a different number. Only the literal
// changes. A bundle without the file has nothing to patch.
func PatchReloadPort(target string, port int) (bool, error) {
	file := filepath.Join(target, ReloadServiceFile)
	content, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	loc := portPattern.FindSubmatchIndex(content)
	if loc == nil {
		return false, nil
	}
	current := string(content[loc[2]:loc[3]])
	want := strconv.Itoa(port)
	if current != Placeholder {
		if n, err := strconv.Atoi(current); err == nil && n == port {
			return false, nil
		}
	}

	patched := make([]byte, 0, len(content)+len(want))
	patched = append(patched, content[:loc[2]]...)
	patched = append(patched, want...)
	patched = append(patched, content[loc[3]:]...)

	info, err := os.Stat(file)
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(file, patched, info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("write %s: %w", file, err)
	}
	return true, nil
}

func dirExists(p string) (bool, error) {
	_, err := os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
