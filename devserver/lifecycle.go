package devserver

import "sync"

// Lifecycle is the single stop capability of a running dev session. It is
// handed to signal handling glue at the process boundary.
type Lifecycle struct {
	once sync.Once
	stop func() error
	err  error
	done chan struct{}
}

func newLifecycle(stop func() error) *Lifecycle {
	return &Lifecycle{stop: stop, done: make(chan struct{})}
}

// Stop shuts the session down. Only the first call does work; later calls
// return its result.
func (l *Lifecycle) Stop() error {
	l.once.Do(func() {
		l.err = l.stop()
		close(l.done)
	})
	return l.err
}

// Done is closed once Stop finished.
func (l *Lifecycle) Done() <-chan struct{} {
	return l.done
}
