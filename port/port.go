// Package port finds a free TCP port for the dev server.
package port

import (
	"fmt"
	"net"
)

// Allocation is the outcome of negotiating a requested port.
// Resolved >= Requested; equality means no contention was observed.
type Allocation struct {
	Requested int
	Resolved  int
}

// Reassigned reports whether the requested port was busy.
func (a Allocation) Reassigned() bool {
	return a.Resolved != a.Requested
}

// IsPortFree probes whether port can be bound on all interfaces.
// It opens and immediately closes a TCP listener; the probe leaves nothing behind.
func IsPortFree(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// Prober runs the probing algorithm on top of an injectable occupancy check.
type Prober struct {
	IsFree func(port int) bool
}

// Default probes real sockets.
var Default = Prober{IsFree: IsPortFree}

// FindAvailablePort returns the first port >= start reported free.
//
// There is no upper bound: if every port above start is taken this does not
// return. Ports are probed one at a time.
func (p Prober) FindAvailablePort(start int) int {
	port := start
	for !p.IsFree(port) {
		port++
	}
	return port
}

// Negotiate keeps requested when it is free, otherwise probes upwards from
// requested+1.
func (p Prober) Negotiate(requested int) Allocation {
	if p.IsFree(requested) {
		return Allocation{Requested: requested, Resolved: requested}
	}
	return Allocation{Requested: requested, Resolved: p.FindAvailablePort(requested + 1)}
}

// FindAvailablePort probes real sockets starting at start.
func FindAvailablePort(start int) int {
	return Default.FindAvailablePort(start)
}

// Negotiate probes real sockets for requested.
func Negotiate(requested int) Allocation {
	return Default.Negotiate(requested)
}
