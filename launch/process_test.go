package launch

import (
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFirefoxPrefs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "profile")
	file, err := WriteFirefoxPrefs(dir, map[string]interface{}{
		"devtools.debugger.prompt-connection": true,
		"browser.startup.homepage":            "about:blank",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, `user_pref("devtools.debugger.remote-enabled", true);`)
	assert.Contains(t, content, `user_pref("devtools.debugger.prompt-connection", true);`)
	assert.Contains(t, content, `user_pref("browser.startup.homepage", "about:blank");`)

	_, err = WriteFirefoxPrefs("", nil)
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestProcessStop(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs sleep(1)")
	}
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not found")
	}

	p, err := Start(context.Background(), sleep, []string{"30"}, nil)
	require.NoError(t, err)
	assert.NotZero(t, p.Pid())

	require.NoError(t, p.Stop(2*time.Second))
	select {
	case <-p.Done():
	default:
		t.Fatal("process still running after Stop")
	}
	assert.NoError(t, p.Stop(time.Second))
}

func TestStartRequiresBinary(t *testing.T) {
	_, err := Start(context.Background(), "", nil, nil)
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = Start(context.Background(), filepath.Join(t.TempDir(), "missing-browser"), nil, nil)
	assert.Error(t, err)
}

func TestWaitForPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, WaitForPort(ctx, ln.Addr().String(), 50*time.Millisecond))
}

func TestWaitForPortTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err = WaitForPort(ctx, addr, 50*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
