package session

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rbright/parley/internal/fsm"
	"github.com/rbright/parley/internal/protocol"
)

// inbound routes traffic from one dialed connection. Events from a connection
// that no longer belongs to the current session are dropped.
type inbound[P any] struct {
	t   *Transport[P]
	gen uint64
}

func (h *inbound[P]) HandleText(data []byte) {
	t := h.t

	t.mu.RLock()
	live := t.liveLocked(h.gen)
	log := t.log
	t.mu.RUnlock()
	if !live {
		return
	}

	if t.frames != nil {
		t.frames.write(data)
	}

	frame, err := protocol.Parse(data)
	if err != nil {
		log.Warn("unrecognized inbound frame", "error", err.Error())
		t.listeners.emitError(err)
		return
	}

	switch frame.Kind {
	case protocol.KindReady:
		h.handleReady(frame)
	case protocol.KindError:
		h.handleRemoteError(frame)
	case protocol.KindContent:
		t.listeners.emitMessage(frame.Content)
	case protocol.KindPresence:
		if !t.multiParty {
			t.listeners.emitError(&protocol.FrameError{
				Raw: string(frame.Raw),
				Err: fmt.Errorf("%w: presence in a single-party session", protocol.ErrUnrecognized),
			})
			return
		}
		presence := frame.Presence
		t.listeners.emitMessage(protocol.Message{Speaker: presence.UserName, Presence: &presence})
	case protocol.KindComplete, protocol.KindAnalysis:
		h.handleComplete(frame)
	}
}

// HandleBinary drops binary frames; the remote service only sends text.
func (h *inbound[P]) HandleBinary(data []byte) {
	h.t.mu.RLock()
	log := h.t.log
	h.t.mu.RUnlock()
	log.Debug("ignoring inbound binary frame", "bytes", len(data))
}

// HandleClose forces the session to disconnected, whoever closed the socket.
func (h *inbound[P]) HandleClose(cause error) {
	t := h.t

	t.mu.Lock()
	if !t.liveLocked(h.gen) {
		t.mu.Unlock()
		return
	}
	res := t.detachLocked()
	log := t.log
	t.mu.Unlock()

	reason := ErrDisconnected
	if cause != nil {
		reason = fmt.Errorf("%w: %w", ErrDisconnected, cause)
		log.Warn("connection lost", "error", cause.Error())
	} else {
		log.Info("connection closed by remote")
	}
	res.release(reason)
	t.listeners.flushStatus()
}

func (h *inbound[P]) handleReady(frame protocol.Frame) {
	t := h.t

	t.mu.Lock()
	if !t.liveLocked(h.gen) || t.state != fsm.StateConnecting {
		state, log := t.state, t.log
		t.mu.Unlock()
		log.Debug("ignoring ready frame", "state", string(state))
		return
	}
	t.state, _ = fsm.Transition(t.state, fsm.EventReady)
	t.listeners.queueStatus(t.state)
	hs, log := t.handshake, t.log
	t.handshake = nil
	t.mu.Unlock()

	log.Info("session ready")
	if hs != nil {
		hs.resolve(frame.Ready)
	}
	t.listeners.flushStatus()
}

func (h *inbound[P]) handleRemoteError(frame protocol.Frame) {
	t := h.t

	t.mu.Lock()
	if t.liveLocked(h.gen) && t.state == fsm.StateConnecting {
		remote := &RemoteError{Message: frame.Message, Fatal: true}
		t.failHandshakeLocked(fmt.Errorf("%w: %w", ErrHandshakeRejected, remote), remote, nil)
		return
	}
	log := t.log
	t.mu.Unlock()

	log.Warn("remote error", "message", frame.Message)
	t.listeners.emitError(&RemoteError{Message: frame.Message})
}

// handleComplete ends the session on goodbye/complete/analysis frames. A
// complete frame with results and every analysis frame reach the analysis
// listeners.
func (h *inbound[P]) handleComplete(frame protocol.Frame) {
	t := h.t

	t.mu.Lock()
	if !t.liveLocked(h.gen) {
		t.mu.Unlock()
		return
	}
	next, err := fsm.Transition(t.state, fsm.EventComplete)
	changed := err == nil
	if changed {
		t.state = next
		t.listeners.queueStatus(next)
	}
	state, p, log := t.state, t.pipeline, t.log
	t.mu.Unlock()

	deliver := frame.Kind == protocol.KindAnalysis || frame.Analysis.HasResults()
	if !changed {
		if frame.Kind != protocol.KindAnalysis || !fsm.Configured(state) {
			log.Debug("ignoring completion frame", "state", string(state), "kind", frame.Kind.String())
			return
		}
	} else {
		if p != nil {
			_ = p.Stop()
		}
		log.Info("session complete")
		t.listeners.flushStatus()
	}

	if deliver && frame.Analysis != nil {
		t.listeners.emitAnalysis(*frame.Analysis)
	}
}

// frameDump appends inbound text frames as JSON lines.
type frameDump struct {
	mu sync.Mutex
	w  io.Writer
}

type dumpedFrame struct {
	Time  string          `json:"time"`
	Frame json.RawMessage `json:"frame,omitempty"`
	Text  string          `json:"text,omitempty"`
}

func (d *frameDump) write(data []byte) {
	entry := dumpedFrame{Time: time.Now().UTC().Format(time.RFC3339Nano)}
	if json.Valid(data) {
		entry.Frame = append(json.RawMessage(nil), data...)
	} else {
		entry.Text = string(data)
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	_, _ = d.w.Write(append(line, '\n'))
}
