package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhd2015/extension-dev/config"
	"github.com/xhd2015/extension-dev/debug/rdp"
	"github.com/xhd2015/extension-dev/manager"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func isolateHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{config.EnvBrowser, config.EnvPort, config.EnvLogLevel, config.EnvMode} {
		t.Setenv(k, "")
	}
}

func execute(ctx context.Context, args ...string) (string, string, error) {
	cmd := newRootCmd()
	stdout, stderr := &syncBuffer{}, &syncBuffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func TestPortsCommand(t *testing.T) {
	isolateHome(t)

	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()
	busy := ln.Addr().(*net.TCPAddr).Port

	stdout, stderr, err := execute(context.Background(), "ports", strconv.Itoa(busy))
	require.NoError(t, err)

	got, err := strconv.Atoi(strings.TrimSpace(stdout))
	require.NoError(t, err)
	assert.Greater(t, got, busy)
	assert.Contains(t, stderr, fmt.Sprintf("Port %d is in use", busy))

	_, _, err = execute(context.Background(), "ports", "abc")
	assert.Error(t, err)
}

// serveInstall accepts one connection and acknowledges the install.
func serveInstall(t *testing.T, accept bool) (int, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	installed := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		var dec rdp.Decoder
		buf := make([]byte, 4096)
		next := func() rdp.Message {
			for {
				n, err := conn.Read(buf)
				if n > 0 {
					msgs, _ := dec.Feed(buf[:n])
					if len(msgs) > 0 {
						return msgs[0]
					}
				}
				if err != nil {
					return nil
				}
			}
		}
		send := func(m rdp.Message) {
			frame, _ := rdp.Encode(m)
			conn.Write(frame)
		}

		next()
		send(rdp.Message{"from": "root", "addonsActor": "server1.conn0.addonsActor2"})
		req := next()
		if req == nil {
			return
		}
		installed <- fmt.Sprint(req["addonPath"])
		if accept {
			send(rdp.Message{"from": "server1.conn0.addonsActor2", "addon": map[string]interface{}{"id": "dev@example"}})
		} else {
			send(rdp.Message{"from": "server1.conn0.addonsActor2", "error": "installTemporaryAddonError"})
		}
		next()
	}()
	return ln.Addr().(*net.TCPAddr).Port, installed
}

func TestInstallCommand(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	port, installed := serveInstall(t, true)

	stdout, _, err := execute(context.Background(), "install", "--port", strconv.Itoa(port), "--timeout", "5s", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Temporary add-on installed")
	assert.Equal(t, dir, <-installed)

	_, err = os.Stat(filepath.Join(os.Getenv("HOME"), ".extension-dev", "extension-dev.log"))
	assert.NoError(t, err)
}

func TestInstallCommandRejected(t *testing.T) {
	isolateHome(t)
	port, _ := serveInstall(t, false)

	stdout, _, err := execute(context.Background(), "install", "--port", strconv.Itoa(port), "--timeout", "5s", t.TempDir())
	assert.Error(t, err)
	assert.Contains(t, stdout, "Failed to install temporary add-on")
}

func TestDevCommandStartsAndStops(t *testing.T) {
	isolateHome(t)
	project := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(project, "manifest.json"), []byte(`{"manifest_version":3}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(project, "extension.config.yaml"), []byte("commands:\n  dev:\n    browser: edge\n"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := newRootCmd()
	stdout := &syncBuffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(&syncBuffer{})
	cmd.SetArgs([]string{"dev", project, "--port", "auto"})

	done := make(chan error, 1)
	go func() {
		done <- cmd.ExecuteContext(ctx)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "Dev server for edge running on")
	}, 10*time.Second, 20*time.Millisecond)

	target := manager.TargetPath(filepath.Join(project, "dist"), config.Edge)
	data, err := os.ReadFile(filepath.Join(target, manager.ReloadServiceFile))
	require.NoError(t, err)
	assert.NotContains(t, string(data), manager.Placeholder)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("dev command did not stop")
	}
}

func TestDevCommandInterruptDuringFirstBuild(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	isolateHome(t)
	project := t.TempDir()
	marker := filepath.Join(project, "building")
	cfg := fmt.Sprintf("commands:\n  dev:\n    browser: chrome\n    build: [\"sh\", \"-c\", \"touch %s; exec sleep 30\"]\n", marker)
	require.NoError(t, os.WriteFile(filepath.Join(project, "extension.config.yaml"), []byte(cfg), 0644))

	done := make(chan error, 1)
	go func() {
		_, _, err := execute(context.Background(), "dev", project, "--port", "auto")
		done <- err
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 10*time.Second, 20*time.Millisecond)
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("dev command did not stop after interrupt")
	}
}

func TestDevCommandInvalidPort(t *testing.T) {
	isolateHome(t)
	_, _, err := execute(context.Background(), "dev", t.TempDir(), "--port", "70000")
	assert.ErrorIs(t, err, config.ErrInvalidPort)
}

func TestSSEBaseURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:12763", sseBaseURL("127.0.0.1:12763"))
	assert.Equal(t, "http://127.0.0.1:8080", sseBaseURL(":8080"))
	assert.Equal(t, "http://localhost:9000", sseBaseURL("localhost:9000"))
}
