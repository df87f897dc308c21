// Package devserver runs one dev session: it claims a port, serves the build
// output, provisions the manager extension and tells it to reload whenever
// the sources change.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/xhd2015/extension-dev/config"
	"github.com/xhd2015/extension-dev/log"
	"github.com/xhd2015/extension-dev/manager"
	"github.com/xhd2015/extension-dev/messages"
	"github.com/xhd2015/extension-dev/port"
)

// Host is the interface the dev server binds to.
const Host = "127.0.0.1"

const defaultShutdownTimeout = 5 * time.Second

// ErrPortInUse is returned by Start when the asset server cannot bind its port.
var ErrPortInUse = errors.New("port is already in use")

// PortInUseError carries the port that could not be bound.
type PortInUseError struct {
	Port int
	Err  error
}

func (e *PortInUseError) Error() string {
	return fmt.Sprintf("port %d is already in use: %v", e.Port, e.Err)
}

func (e *PortInUseError) Unwrap() []error {
	return []error{ErrPortInUse, e.Err}
}

// Options configures a Server.
type Options struct {
	Dev config.DevOptions

	// Bundler builds the output tree; nil means it is produced elsewhere.
	Bundler Bundler
	// Provisioner defaults to the bundled manager extensions.
	Provisioner *manager.Provisioner
	// Prober defaults to port.Default.
	Prober port.Prober

	Logger log.Logger
	// Out receives user-facing messages; nil discards them.
	Out io.Writer

	Debounce        time.Duration
	ShutdownTimeout time.Duration
}

// Server is one dev session.
type Server struct {
	opts   Options
	logger log.Logger
	out    io.Writer
	hub    *Hub

	allocation port.Allocation
	port       int
	reloadPort int

	httpServer   *http.Server
	reloadServer *http.Server

	buildMu sync.Mutex
	builds  int

	stopWatch context.CancelFunc
	watchDone chan struct{}

	lifecycle *Lifecycle
}

// New creates a server. Nothing is bound until Start.
func New(opts Options) *Server {
	if opts.Provisioner == nil {
		opts.Provisioner = manager.New(opts.Logger)
	}
	if opts.Prober.IsFree == nil {
		opts.Prober = port.Default
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	logger := log.OrNop(opts.Logger)
	return &Server{
		opts:   opts,
		logger: logger,
		out:    out,
		hub:    NewHub(logger),
	}
}

// Port returns the port the asset server listens on, valid after Start.
func (s *Server) Port() int {
	return s.port
}

// ReloadPort is the port the manager extension connects to.
func (s *Server) ReloadPort() int {
	return s.reloadPort
}

// Allocation is the port negotiation result. It is zero for "auto".
func (s *Server) Allocation() port.Allocation {
	return s.allocation
}

// Hub returns the reload hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ManagerRoot is the directory the manager extensions are staged into,
// next to the browser output directory.
func (s *Server) ManagerRoot() string {
	return filepath.Dir(s.opts.Dev.Output)
}

// ProfileDir is the browser profile used when the dev session opens a
// browser: the configured profile, or one next to the manager extensions.
func (s *Server) ProfileDir() string {
	if s.opts.Dev.Profile != "" {
		return s.opts.Dev.Profile
	}
	return filepath.Join(s.ManagerRoot(), "extension-profile-"+string(s.opts.Dev.Browser))
}

// Handler is the asset server's router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/reload", s.hub.ServeHTTP)
	if s.opts.Dev.Output != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.opts.Dev.Output)))
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"browser": s.opts.Dev.Browser,
		"port":    s.port,
		"clients": s.hub.Clients(),
	})
}

// Start binds the asset server, runs the first build, provisions the manager
// extension and starts watching the sources. The returned Lifecycle stops
// everything Start started.
func (s *Server) Start(ctx context.Context) (*Lifecycle, error) {
	dev := s.opts.Dev
	if dev.Output == "" {
		return nil, fmt.Errorf("output directory is required")
	}

	ln, err := s.listen()
	if err != nil {
		return nil, err
	}
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.reloadPort = manager.PortForBrowser(s.port, dev.Browser)

	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go s.serve(s.httpServer, ln)

	s.lifecycle = newLifecycle(s.shutdown)

	if s.reloadPort != s.port {
		s.startReloadListener()
	}

	if err := s.Rebuild(ctx, nil); err != nil {
		if errors.Is(err, manager.ErrBundleNotFound) {
			s.lifecycle.Stop()
			return nil, err
		}
		s.logger.Errorf("initial build failed: %v", err)
		fmt.Fprintln(s.out, messages.RunnerError(err))
	}

	if dev.Source != "" {
		if err := s.startWatcher(); err != nil {
			s.lifecycle.Stop()
			return nil, err
		}
	}

	fmt.Fprintln(s.out, messages.ServerReady(string(dev.Browser), s.port))
	return s.lifecycle, nil
}

func (s *Server) listen() (net.Listener, error) {
	p := s.opts.Dev.Port
	if p.Auto {
		return net.Listen("tcp", net.JoinHostPort(Host, "0"))
	}

	s.allocation = s.opts.Prober.Negotiate(p.Value)
	if s.allocation.Reassigned() {
		s.logger.Infof("port %d busy, using %d", s.allocation.Requested, s.allocation.Resolved)
		fmt.Fprintln(s.out, messages.PortInUse(s.allocation.Requested, s.allocation.Resolved))
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(Host, strconv.Itoa(s.allocation.Resolved)))
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, &PortInUseError{Port: s.allocation.Resolved, Err: err}
		}
		return nil, err
	}
	return ln, nil
}

func (s *Server) serve(srv *http.Server, ln net.Listener) {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Errorf("server on %s stopped: %v", ln.Addr(), err)
	}
}

// startReloadListener serves the hub on the manager extension's port too.
func (s *Server) startReloadListener() {
	ln, err := net.Listen("tcp", net.JoinHostPort(Host, strconv.Itoa(s.reloadPort)))
	if err != nil {
		s.logger.Warnf("reload port %d unavailable, manager extension will not connect: %v", s.reloadPort, err)
		return
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/reload", s.hub.ServeHTTP)
	s.reloadServer = &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go s.serve(s.reloadServer, ln)
}

func (s *Server) startWatcher() error {
	dev := s.opts.Dev
	w, err := NewWatcher(dev.Source, dev.Ignore, s.opts.Debounce, s.logger, s.onChange)
	if err != nil {
		return err
	}
	// the browser writes to its profile constantly
	for _, dir := range []string{dev.Output, filepath.Join(s.ManagerRoot(), "extension-js"), s.ProfileDir()} {
		if pattern, ok := w.IgnorePath(dir); ok {
			if err := w.AddIgnore(pattern); err != nil {
				return err
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopWatch = cancel
	s.watchDone = make(chan struct{})
	go func() {
		defer close(s.watchDone)
		if err := w.Run(ctx); err != nil {
			s.logger.Errorf("watcher stopped: %v", err)
		}
	}()
	return nil
}

func (s *Server) onChange(ctx context.Context, changed []string) {
	fmt.Fprintln(s.out, messages.Reloading(strings.Join(changed, ", ")))
	if err := s.Rebuild(ctx, changed); err != nil {
		s.logger.Errorf("rebuild failed: %v", err)
		fmt.Fprintln(s.out, messages.RunnerError(err))
	}
}

// Rebuild runs the bundler, provisions the manager extension and, when
// changed is non-nil, asks connected manager extensions to reload.
// Builds are serialized.
func (s *Server) Rebuild(ctx context.Context, changed []string) error {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	s.builds++

	dev := s.opts.Dev
	if s.opts.Bundler != nil {
		err := s.opts.Bundler.Build(ctx, BuildConfig{
			Browser: dev.Browser,
			Source:  dev.Source,
			Output:  dev.Output,
			Port:    s.port,
			Mode:    "development",
			Changed: changed,
		})
		if err != nil {
			return fmt.Errorf("build: %w", err)
		}
	}

	res, err := s.opts.Provisioner.Apply(s.ManagerRoot(), dev.Browser, s.port)
	if err != nil {
		return err
	}
	if res.Copied {
		fmt.Fprintln(s.out, messages.ManagerExtensionReady(res.Target, res.Port))
	}

	if changed != nil {
		n := s.hub.Broadcast(ReloadMessage{Type: "reload", Changed: changed})
		s.logger.Debugf("reload sent to %d client(s)", n)
	}
	return nil
}

// Builds returns how many builds ran.
func (s *Server) Builds() int {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	return s.builds
}

func (s *Server) shutdown() error {
	if s.stopWatch != nil {
		s.stopWatch()
		<-s.watchDone
	}
	s.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	var errs []error
	for _, srv := range []*http.Server{s.httpServer, s.reloadServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		s.logger.Errorf("dev server forced to shutdown: %v", err)
	}
	return err
}
