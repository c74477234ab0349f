package session

import (
	"context"
	"sync"
)

// Handshake is the pending result of Configure. It settles exactly once: it
// resolves on a ready frame, or rejects on an error frame, a connection
// failure, or a disconnect.
type Handshake struct {
	done  chan struct{}
	once  sync.Once
	err   error
	ready map[string]any
}

func newHandshake() *Handshake {
	return &Handshake{done: make(chan struct{})}
}

// Done is closed once the handshake has settled.
func (h *Handshake) Done() <-chan struct{} {
	return h.done
}

// Err returns nil while pending or after success.
func (h *Handshake) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Ready returns the setup metadata carried by the ready frame, if any.
func (h *Handshake) Ready() map[string]any {
	select {
	case <-h.done:
		return h.ready
	default:
		return nil
	}
}

// Wait blocks until the handshake settles or ctx ends. A ctx error does not
// settle the handshake; callers layering a timeout should Disconnect.
func (h *Handshake) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handshake) resolve(metadata map[string]any) bool {
	settled := false
	h.once.Do(func() {
		h.ready = metadata
		close(h.done)
		settled = true
	})
	return settled
}

func (h *Handshake) reject(err error) bool {
	settled := false
	h.once.Do(func() {
		h.err = err
		close(h.done)
		settled = true
	})
	return settled
}
