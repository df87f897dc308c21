// Package rdp installs extensions into Firefox-family browsers through the
// browser's remote debugging protocol: length-prefixed JSON packets exchanged
// with actors over a plain TCP connection.
package rdp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/xhd2015/extension-dev/log"
)

const (
	// DefaultTimeout bounds a whole install session.
	DefaultTimeout = 30 * time.Second
	// DefaultDialTimeout bounds establishing the connection.
	DefaultDialTimeout = 10 * time.Second
)

// ErrTimeout is returned when the browser never answered within Options.Timeout.
var ErrTimeout = errors.New("remote debugging session timed out")

// Options configures a Client.
type Options struct {
	// Timeout bounds the session from connect to close. Zero waits forever.
	Timeout     time.Duration
	DialTimeout time.Duration
	Logger      log.Logger
}

// DefaultOptions returns the options used by NewDefaultClient.
func DefaultOptions() Options {
	return Options{
		Timeout:     DefaultTimeout,
		DialTimeout: DefaultDialTimeout,
	}
}

// Client opens one session per LoadAddon call. It holds no connection state,
// so a single Client may serve concurrent installs.
type Client struct {
	opts   Options
	logger log.Logger
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	return &Client{
		opts:   opts,
		logger: log.OrNop(opts.Logger),
	}
}

// NewDefaultClient creates a Client with DefaultOptions.
func NewDefaultClient(logger log.Logger) *Client {
	opts := DefaultOptions()
	opts.Logger = logger
	return NewClient(opts)
}

// LoadAddon connects to host:port and installs addonPath as a temporary add-on.
func LoadAddon(ctx context.Context, port int, host string, addonPath string) (bool, error) {
	return NewClient(DefaultOptions()).LoadAddon(ctx, Address(host, port), addonPath)
}

// Address joins host and port.
func Address(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// LoadAddon runs one install session against the debugger listening on addr.
//
// The result is reported once the connection is closed: true only if the
// browser acknowledged the install with an "addon" packet. The error explains
// a false result (dial failure, protocol violation, timeout, socket error);
// it is nil when the browser itself rejected the install or simply hung up.
func (c *Client) LoadAddon(ctx context.Context, addr string, addonPath string) (bool, error) {
	d := net.Dialer{Timeout: c.opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false, fmt.Errorf("failed to connect to remote debugger at %s: %w", addr, err)
	}
	c.logger.Debugf("rdp: connected to %s", addr)

	s := newSession(conn, addonPath, c.logger)
	return s.run(ctx, c.opts.Timeout)
}

type sessionState int

const (
	stateAwaitingRoot sessionState = iota
	stateAwaitingAddonsActor
	stateInstallRequested
	stateInstalled
	stateErrored
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateAwaitingRoot:
		return "awaiting-root"
	case stateAwaitingAddonsActor:
		return "awaiting-addons-actor"
	case stateInstallRequested:
		return "install-requested"
	case stateInstalled:
		return "installed"
	case stateErrored:
		return "errored"
	default:
		return "closed"
	}
}

// session owns exactly one connection and drives it to completion on the
// calling goroutine.
type session struct {
	conn      net.Conn
	addonPath string
	logger    log.Logger

	state   sessionState
	success bool
	decoder Decoder
}

func newSession(conn net.Conn, addonPath string, logger log.Logger) *session {
	s := &session{
		conn:      conn,
		addonPath: addonPath,
		logger:    logger,
		state:     stateAwaitingRoot,
	}
	s.decoder.OnMalformed = func(body []byte, err error) {
		s.logger.Warnf("rdp: dropping malformed packet %q: %v", body, err)
	}
	return s
}

func (s *session) run(ctx context.Context, timeout time.Duration) (bool, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// closing the socket is the only way to interrupt a blocked Read
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.conn.Close()
		case <-done:
		}
	}()

	err := s.loop()
	s.conn.Close()
	s.state = stateClosed

	if !s.success && ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return false, ErrTimeout
		}
		return false, ctx.Err()
	}
	return s.success, err
}

func (s *session) loop() error {
	if err := s.send(Request{To: "root", Type: "getRoot"}); err != nil {
		return err
	}
	s.state = stateAwaitingAddonsActor

	buf := make([]byte, 32*1024)
	for {
		n, readErr := s.conn.Read(buf)
		if n > 0 {
			msgs, err := s.decoder.Feed(buf[:n])
			for _, msg := range msgs {
				if err := s.handle(msg); err != nil {
					return err
				}
				if s.finished() {
					return nil
				}
			}
			if err != nil {
				return err
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return fmt.Errorf("read from remote debugger: %w", readErr)
		}
	}
}

func (s *session) finished() bool {
	return s.state == stateInstalled || s.state == stateErrored
}

func (s *session) handle(msg Message) error {
	if actor, ok := msg["addonsActor"].(string); ok && actor != "" && s.state == stateAwaitingAddonsActor {
		s.logger.Debugf("rdp: addons actor is %s", actor)
		if err := s.send(Request{To: actor, Type: "installTemporaryAddon", AddonPath: s.addonPath}); err != nil {
			return err
		}
		s.state = stateInstallRequested
	}

	if truthy(msg["addon"]) && s.state == stateInstallRequested {
		s.success = true
		s.state = stateInstalled
		return nil
	}

	if truthy(msg["error"]) {
		s.logger.Warnf("rdp: browser reported error: %v %v", msg["error"], msg["message"])
		s.state = stateErrored
	}
	return nil
}

func (s *session) send(req Request) error {
	frame, err := Encode(req)
	if err != nil {
		return err
	}
	if _, err := s.conn.Write(frame); err != nil {
		return fmt.Errorf("send %s to %s: %w", req.Type, req.To, err)
	}
	return nil
}

func truthy(v interface{}) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	default:
		return true
	}
}
