package port

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func busy(ports ...int) Prober {
	taken := make(map[int]bool, len(ports))
	for _, p := range ports {
		taken[p] = true
	}
	return Prober{IsFree: func(port int) bool { return !taken[port] }}
}

func TestFindAvailablePortReturnsStartWhenFree(t *testing.T) {
	p := busy()
	assert.Equal(t, 8080, p.FindAvailablePort(8080))
}

func TestFindAvailablePortSkipsBusyPorts(t *testing.T) {
	p := busy(8080, 8081, 8082)
	got := p.FindAvailablePort(8080)

	assert.Equal(t, 8083, got)
	assert.True(t, p.IsFree(got))
}

func TestNegotiate(t *testing.T) {
	alloc := busy().Negotiate(3000)
	assert.Equal(t, Allocation{Requested: 3000, Resolved: 3000}, alloc)
	assert.False(t, alloc.Reassigned())

	alloc = busy(3000, 3001).Negotiate(3000)
	assert.Equal(t, 3002, alloc.Resolved)
	assert.True(t, alloc.Reassigned())
	assert.GreaterOrEqual(t, alloc.Resolved, alloc.Requested)
}

func TestIsPortFreeWithRealListener(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()

	taken := ln.Addr().(*net.TCPAddr).Port
	assert.False(t, IsPortFree(taken))

	got := FindAvailablePort(taken)
	assert.Greater(t, got, taken)
	assert.True(t, IsPortFree(got))
}

func TestIsPortFreeReleasesTheProbe(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	free := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	assert.True(t, IsPortFree(free))
	assert.True(t, IsPortFree(free), "a probe must not keep the port bound")
}
