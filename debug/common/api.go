package common

import (
	"context"
	"time"
)

// AddonInstaller installs an unpacked extension directory into a running browser.
type AddonInstaller interface {
	// LoadAddon runs one install session against addr and reports whether
	// the browser accepted the add-on.
	LoadAddon(ctx context.Context, addr string, addonPath string) (bool, error)
}

// SessionManager tracks install sessions started in the background
type SessionManager interface {
	// GetDebuggerType returns the protocol spoken by the sessions
	GetDebuggerType() string

	// StartInstall starts a session and returns without waiting for it
	StartInstall(ctx context.Context, addr string, addonPath string) (*SessionInfo, error)

	// Wait blocks until the session finished or ctx is done
	Wait(ctx context.Context, sessionID string) (*SessionInfo, error)

	// GetSession returns a snapshot of a session by ID
	GetSession(sessionID string) (*SessionInfo, error)

	// ListSessions returns snapshots of all known sessions
	ListSessions() []*SessionInfo

	// RemoveSession forgets a finished session
	RemoveSession(sessionID string) error
}

// Session states
const (
	StateConnecting = "connecting"
	StateInstalled  = "installed"
	StateFailed     = "failed"
)

// SessionInfo holds information about an install session
type SessionInfo struct {
	ID        string
	Addr      string
	AddonPath string
	State     string
	Error     string
	StartedAt time.Time
	EndedAt   time.Time
}

// Done reports whether the session reached a final state
func (s *SessionInfo) Done() bool {
	return s.State == StateInstalled || s.State == StateFailed
}
