package rdp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhd2015/extension-dev/debug/common"
)

type stubInstaller struct {
	ok      bool
	err     error
	release chan struct{}
}

func (s *stubInstaller) LoadAddon(ctx context.Context, addr string, addonPath string) (bool, error) {
	if s.release != nil {
		<-s.release
	}
	return s.ok, s.err
}

func TestSessionManagerInstallSuccess(t *testing.T) {
	sm := NewSessionManager(&stubInstaller{ok: true}, nil)
	assert.Equal(t, "rdp", sm.GetDebuggerType())

	info, err := sm.StartInstall(context.Background(), "127.0.0.1:6000", "/tmp/ext")
	require.NoError(t, err)
	assert.Contains(t, info.ID, "install-")
	assert.Equal(t, common.StateConnecting, info.State)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done, err := sm.Wait(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, common.StateInstalled, done.State)
	assert.Empty(t, done.Error)
	assert.True(t, done.Done())
	assert.False(t, done.EndedAt.IsZero())
}

func TestSessionManagerInstallFailureRecordsError(t *testing.T) {
	sm := NewSessionManager(&stubInstaller{err: errors.New("connection refused")}, nil)

	info, err := sm.StartInstall(context.Background(), "127.0.0.1:6000", "/tmp/ext")
	require.NoError(t, err)

	done, err := sm.Wait(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, common.StateFailed, done.State)
	assert.Equal(t, "connection refused", done.Error)
}

func TestSessionManagerSurvivesCallerCancel(t *testing.T) {
	release := make(chan struct{})
	sm := NewSessionManager(&stubInstaller{ok: true, release: release}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	info, err := sm.StartInstall(ctx, "127.0.0.1:6000", "/tmp/ext")
	require.NoError(t, err)
	cancel()
	close(release)

	done, err := sm.Wait(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, common.StateInstalled, done.State)
}

func TestSessionManagerWaitHonorsContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	sm := NewSessionManager(&stubInstaller{release: release}, nil)

	info, err := sm.StartInstall(context.Background(), "127.0.0.1:6000", "/tmp/ext")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = sm.Wait(ctx, info.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Error(t, sm.RemoveSession(info.ID), "running sessions cannot be removed")
}

func TestSessionManagerValidation(t *testing.T) {
	sm := NewSessionManager(&stubInstaller{}, nil)

	_, err := sm.StartInstall(context.Background(), "", "/tmp/ext")
	assert.Error(t, err)
	_, err = sm.StartInstall(context.Background(), "127.0.0.1:6000", "")
	assert.Error(t, err)

	_, err = sm.GetSession("missing")
	assert.Error(t, err)
	_, err = sm.Wait(context.Background(), "missing")
	assert.Error(t, err)
	assert.Error(t, sm.RemoveSession("missing"))
}

func TestSessionManagerListAndRemove(t *testing.T) {
	sm := NewSessionManager(&stubInstaller{ok: true}, nil)

	first, err := sm.StartInstall(context.Background(), "127.0.0.1:6000", "/tmp/a")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	second, err := sm.StartInstall(context.Background(), "127.0.0.1:6000", "/tmp/b")
	require.NoError(t, err)

	for _, id := range []string{first.ID, second.ID} {
		_, err := sm.Wait(context.Background(), id)
		require.NoError(t, err)
	}

	list := sm.ListSessions()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	require.NoError(t, sm.RemoveSession(first.ID))
	assert.Len(t, sm.ListSessions(), 1)
}

func TestSessionManagerWithRealClient(t *testing.T) {
	addr, _, done := startFakeDebugger(t, func(f *fakeDebugger) {
		f.next()
		f.send(Message{"addonsActor": "actor-1"})
		f.next()
		f.send(Message{"addon": map[string]interface{}{"id": "x"}})
		f.drain()
	})

	sm := NewSessionManager(testClient(), nil)
	info, err := sm.StartInstall(context.Background(), addr, "/tmp/ext")
	require.NoError(t, err)

	res, err := sm.Wait(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, common.StateInstalled, res.State)
	waitDone(t, done)
}
