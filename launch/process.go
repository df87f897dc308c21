package launch

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/xhd2015/extension-dev/log"
)

// Process is a running browser.
type Process struct {
	cmd    *exec.Cmd
	logger log.Logger

	done chan struct{}
	err  error
}

// Start runs binary with args. The process is not tied to ctx; use Stop.
func Start(ctx context.Context, binary string, args []string, logger log.Logger) (*Process, error) {
	if binary == "" {
		return nil, &ConfigError{Field: "browser binary"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(binary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", binary, err)
	}

	p := &Process{
		cmd:    cmd,
		logger: log.OrNop(logger),
		done:   make(chan struct{}),
	}
	p.logger.Infof("started %s (pid %d)", binary, cmd.Process.Pid)
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// Pid returns the process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed once the process exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process exited and returns its exit error.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Stop interrupts the process and kills it if it is still running after
// timeout. Stopping an exited process is a no-op.
func (p *Process) Stop(timeout time.Duration) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	// Try graceful shutdown first
	_ = p.cmd.Process.Signal(os.Interrupt)

	select {
	case <-p.done:
		return nil
	case <-time.After(timeout):
		p.logger.Warnf("browser pid %d did not exit after %s, killing", p.Pid(), timeout)
		if err := p.cmd.Process.Kill(); err != nil {
			return err
		}
		<-p.done
		return nil
	}
}

// WaitForPort polls addr until it accepts TCP connections or ctx is done.
func WaitForPort(ctx context.Context, addr string, interval time.Duration) error {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	for {
		d := net.Dialer{Timeout: interval}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s did not accept connections: %w", addr, ctx.Err())
		case <-time.After(interval):
		}
	}
}
