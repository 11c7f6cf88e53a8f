package session

import "sync"

// Handle is the capability to request termination of a session's underlying
// connection. It does not own the connection; it only signals it. One
// implementation exists per protocol; closing an already-closed session is a
// no-op.
type Handle interface {
	Close()
}

// ChannelHandle signals the connection-handling goroutine by closing a
// channel the goroutine selects on. It never blocks and is safe to Close
// any number of times from any goroutine.
type ChannelHandle struct {
	once sync.Once
	done chan struct{}
}

var _ Handle = (*ChannelHandle)(nil)

// NewChannelHandle creates a handle whose Done channel is closed on the
// first Close call.
func NewChannelHandle() *ChannelHandle {
	return &ChannelHandle{done: make(chan struct{})}
}

// Close signals the owning protocol task to terminate.
func (h *ChannelHandle) Close() {
	h.once.Do(func() { close(h.done) })
}

// Done returns the channel the protocol task should select on; it is closed
// once termination has been requested.
func (h *ChannelHandle) Done() <-chan struct{} {
	return h.done
}
