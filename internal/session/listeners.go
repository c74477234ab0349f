package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/rbright/parley/internal/fsm"
	"github.com/rbright/parley/internal/protocol"
)

type (
	// MessageListener receives transcript content and presence changes.
	MessageListener func(protocol.Message)
	// StatusListener receives every lifecycle state the session enters.
	StatusListener func(fsm.State)
	// ErrorListener receives remote, device, and malformed-frame errors.
	ErrorListener func(error)
	// AnalysisListener receives end-of-session results.
	AnalysisListener func(protocol.Analysis)
)

// registry holds the four append-only listener lists. Dispatch runs on a
// snapshot, outside any transport lock, in registration order.
type registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	message  []MessageListener
	status   []StatusListener
	errors   []ErrorListener
	analysis []AnalysisListener

	// pending statuses are queued under the transport lock in transition
	// order and delivered by one goroutine at a time.
	statusMu    sync.Mutex
	pending     []fsm.State
	dispatching bool
}

func (r *registry) addMessage(fn MessageListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.message = append(r.message, fn)
}

func (r *registry) addStatus(fn StatusListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = append(r.status, fn)
}

func (r *registry) addError(fn ErrorListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, fn)
}

func (r *registry) addAnalysis(fn AnalysisListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analysis = append(r.analysis, fn)
}

func (r *registry) emitMessage(msg protocol.Message) {
	r.mu.RLock()
	listeners := append([]MessageListener(nil), r.message...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		r.invoke("message", func() { fn(msg) })
	}
}

// queueStatus records a state the session just entered. Callers hold the
// transport lock so the queue matches the order of transitions.
func (r *registry) queueStatus(state fsm.State) {
	r.statusMu.Lock()
	r.pending = append(r.pending, state)
	r.statusMu.Unlock()
}

// flushStatus delivers queued states in order. If another goroutine, or a
// listener further up this stack, is already delivering, it returns at once
// and the active deliverer drains the queue.
func (r *registry) flushStatus() {
	r.statusMu.Lock()
	if r.dispatching {
		r.statusMu.Unlock()
		return
	}
	r.dispatching = true
	for len(r.pending) > 0 {
		state := r.pending[0]
		r.pending = r.pending[1:]
		r.statusMu.Unlock()
		r.emitStatus(state)
		r.statusMu.Lock()
	}
	r.dispatching = false
	r.statusMu.Unlock()
}

func (r *registry) emitStatus(state fsm.State) {
	r.mu.RLock()
	listeners := append([]StatusListener(nil), r.status...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		r.invoke("status", func() { fn(state) })
	}
}

func (r *registry) emitError(err error) {
	r.mu.RLock()
	listeners := append([]ErrorListener(nil), r.errors...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		r.invoke("error", func() { fn(err) })
	}
}

func (r *registry) emitAnalysis(analysis protocol.Analysis) {
	r.mu.RLock()
	listeners := append([]AnalysisListener(nil), r.analysis...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		r.invoke("analysis", func() { fn(analysis) })
	}
}

// invoke isolates one listener so a panic cannot skip the rest.
func (r *registry) invoke(kind string, call func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("listener panicked", "listener", kind, "panic", fmt.Sprint(recovered))
		}
	}()
	call()
}
