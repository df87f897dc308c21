package devserver

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/xhd2015/extension-dev/log"
)

// DefaultIgnore is always applied by the watcher.
var DefaultIgnore = []string{
	"**/node_modules/**",
	"**/.git/**",
}

const defaultDebounce = 200 * time.Millisecond

// Watcher reports changes below a directory tree, coalescing bursts of
// events into one callback.
//
// Ignore patterns are matched against the slash separated path relative to
// the root, with a leading "/"; directories are also tried with a trailing
// "/". So "**/node_modules/**" covers node_modules at any depth.
type Watcher struct {
	root     string
	ignore   []glob.Glob
	debounce time.Duration
	logger   log.Logger
	onChange func(ctx context.Context, changed []string)
}

// NewWatcher compiles the ignore patterns. onChange receives the changed
// paths relative to root, sorted.
func NewWatcher(root string, ignore []string, debounce time.Duration, logger log.Logger, onChange func(ctx context.Context, changed []string)) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	w := &Watcher{
		root:     abs,
		debounce: debounce,
		logger:   log.OrNop(logger),
		onChange: onChange,
	}
	for _, p := range append(append([]string(nil), DefaultIgnore...), ignore...) {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", p, err)
		}
		w.ignore = append(w.ignore, g)
	}
	return w, nil
}

// IgnorePath returns the pattern that ignores dir, an absolute or
// root-relative directory, and everything below it. ok is false when dir is
// outside root.
func (w *Watcher) IgnorePath(dir string) (pattern string, ok bool) {
	rel, ok := w.rel(dir)
	if !ok || rel == "/" {
		return "", false
	}
	return glob.QuoteMeta(rel) + "/**", true
}

// AddIgnore adds a compiled ignore pattern.
func (w *Watcher) AddIgnore(pattern string) error {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return fmt.Errorf("invalid ignore pattern %q: %w", pattern, err)
	}
	w.ignore = append(w.ignore, g)
	return nil
}

func (w *Watcher) rel(p string) (string, bool) {
	if !filepath.IsAbs(p) {
		p = filepath.Join(w.root, p)
	}
	r, err := filepath.Rel(w.root, p)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	if r == "." {
		return "/", true
	}
	return "/" + filepath.ToSlash(r), true
}

// Ignored reports whether p is excluded from watching.
func (w *Watcher) Ignored(p string) bool {
	rel, ok := w.rel(p)
	if !ok {
		return true
	}
	if rel == "/" {
		return false
	}
	for _, g := range w.ignore {
		if g.Match(rel) || g.Match(rel+"/") {
			return true
		}
	}
	return false
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}
	w.logger.Infof("watching %s for changes", w.root)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	pending := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(fw, event) {
				continue
			}
			rel, _ := w.rel(event.Name)
			pending[strings.TrimPrefix(rel, "/")] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warnf("watcher error: %v", err)

		case <-timer.C:
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = make(map[string]struct{})
			if len(changed) > 0 && w.onChange != nil {
				w.onChange(ctx, changed)
			}
		}
	}
}

func (w *Watcher) relevant(fw *fsnotify.Watcher, event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod || w.Ignored(event.Name) {
		return false
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(fw, event.Name); err != nil {
				w.logger.Warnf("watch %s: %v", event.Name, err)
			}
		}
	}
	return true
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.Ignored(p) {
			return filepath.SkipDir
		}
		return fw.Add(p)
	})
}
