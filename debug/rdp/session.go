package rdp

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xhd2015/extension-dev/debug/common"
	"github.com/xhd2015/extension-dev/log"
)

// DebuggerType names the protocol served by this package.
const DebuggerType = "rdp"

// SessionManager runs install sessions in the background. Sessions share no
// state with each other; the manager only guards its registry.
type SessionManager struct {
	installer common.AddonInstaller
	logger    log.Logger

	mu       sync.Mutex
	sessions map[string]*installSession
}

type installSession struct {
	info common.SessionInfo
	done chan struct{}
}

var _ common.SessionManager = (*SessionManager)(nil)

// NewSessionManager creates a manager whose sessions are run by installer.
func NewSessionManager(installer common.AddonInstaller, logger log.Logger) *SessionManager {
	return &SessionManager{
		installer: installer,
		logger:    log.OrNop(logger),
		sessions:  make(map[string]*installSession),
	}
}

// GetDebuggerType returns the type of debugger being used
func (sm *SessionManager) GetDebuggerType() string {
	return DebuggerType
}

// StartInstall starts an install session. The session outlives ctx's
// cancellation but keeps its values.
func (sm *SessionManager) StartInstall(ctx context.Context, addr string, addonPath string) (*common.SessionInfo, error) {
	if addr == "" {
		return nil, fmt.Errorf("debugger address is required")
	}
	if addonPath == "" {
		return nil, fmt.Errorf("addon path is required")
	}

	s := &installSession{
		info: common.SessionInfo{
			ID:        fmt.Sprintf("install-%d", uuid.New().ID()),
			Addr:      addr,
			AddonPath: addonPath,
			State:     common.StateConnecting,
			StartedAt: time.Now(),
		},
		done: make(chan struct{}),
	}

	sm.mu.Lock()
	sm.sessions[s.info.ID] = s
	info := s.info
	sm.mu.Unlock()

	sm.logger.Infof("install session %s: installing %s via %s", info.ID, addonPath, addr)
	go sm.run(context.WithoutCancel(ctx), s)

	return &info, nil
}

func (sm *SessionManager) run(ctx context.Context, s *installSession) {
	defer close(s.done)

	ok, err := sm.installer.LoadAddon(ctx, s.info.Addr, s.info.AddonPath)

	sm.mu.Lock()
	defer sm.mu.Unlock()
	s.info.EndedAt = time.Now()
	if ok {
		s.info.State = common.StateInstalled
	} else {
		s.info.State = common.StateFailed
	}
	if err != nil {
		s.info.Error = err.Error()
	}
	sm.logger.Infof("install session %s finished: %s", s.info.ID, s.info.State)
}

// Wait blocks until the session is done or ctx expires.
func (sm *SessionManager) Wait(ctx context.Context, sessionID string) (*common.SessionInfo, error) {
	sm.mu.Lock()
	s, ok := sm.sessions[sessionID]
	sm.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return sm.GetSession(sessionID)
}

// GetSession returns a session snapshot by ID
func (sm *SessionManager) GetSession(sessionID string) (*common.SessionInfo, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s, ok := sm.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	info := s.info
	return &info, nil
}

// ListSessions returns all sessions, oldest first
func (sm *SessionManager) ListSessions() []*common.SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	result := make([]*common.SessionInfo, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		info := s.info
		result = append(result, &info)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.Before(result[j].StartedAt)
	})
	return result
}

// RemoveSession forgets a finished session
func (sm *SessionManager) RemoveSession(sessionID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s, ok := sm.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	if !s.info.Done() {
		return fmt.Errorf("session %s is still running", sessionID)
	}
	delete(sm.sessions, sessionID)
	return nil
}
