package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rbright/parley/internal/fsm"
	"github.com/rbright/parley/internal/pipeline"
	"github.com/rbright/parley/internal/protocol"
)

var errNotStreaming = errors.New("session is not streaming audio")

// StartRecording acquires the capture device and moves ready -> recording.
// A device failure is reported to the error listeners and returned; the
// session stays ready.
func (t *Transport[P]) StartRecording(ctx context.Context) error {
	t.mu.Lock()
	if t.state != fsm.StateReady {
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("%w: cannot record from %s", ErrInvalidState, state)
	}
	gen, p, log := t.generation, t.pipeline, t.log
	t.mu.Unlock()

	// Device acquisition can take a while; keep it outside the lock.
	if err := p.Start(ctx); err != nil {
		err = fmt.Errorf("start audio capture: %w", err)
		log.Error("audio capture failed", "error", err.Error())
		t.listeners.emitError(err)
		return err
	}

	t.mu.Lock()
	if gen != t.generation || t.state != fsm.StateReady {
		state := t.state
		t.mu.Unlock()
		if gen == t.generation && fsm.Capturing(state) {
			// A concurrent StartRecording won; the pipeline is shared.
			return nil
		}
		_ = p.Stop()
		return fmt.Errorf("%w: session moved to %s while acquiring audio", ErrInvalidState, state)
	}
	t.state, _ = fsm.Transition(t.state, fsm.EventRecord)
	t.listeners.queueStatus(t.state)
	t.mu.Unlock()

	log.Info("recording started")
	t.listeners.flushStatus()
	return nil
}

// StopRecording releases the capture device and returns to ready. It reports
// false, without side effects, when nothing is being captured.
func (t *Transport[P]) StopRecording() bool {
	t.mu.Lock()
	if !fsm.Capturing(t.state) {
		t.mu.Unlock()
		return false
	}
	t.state, _ = fsm.Transition(t.state, fsm.EventStop)
	t.listeners.queueStatus(t.state)
	p, log := t.pipeline, t.log
	t.mu.Unlock()

	_ = p.Stop()
	stats := p.Stats()
	log.Info("recording stopped", "blocks", stats.Blocks, "sent", stats.Sent, "muted", stats.Muted, "dropped", stats.Dropped)
	t.listeners.flushStatus()
	return true
}

// PauseAudio gates transmission while keeping the device warm. It is a no-op
// unless recording.
func (t *Transport[P]) PauseAudio() bool {
	t.mu.Lock()
	if t.state != fsm.StateRecording {
		t.mu.Unlock()
		return false
	}
	t.state, _ = fsm.Transition(t.state, fsm.EventMute)
	t.pipeline.Mute()
	t.listeners.queueStatus(t.state)
	log := t.log
	t.mu.Unlock()

	log.Info("audio muted")
	t.listeners.flushStatus()
	return true
}

// ResumeAudio clears the mute gate. It is a no-op unless muted.
func (t *Transport[P]) ResumeAudio() bool {
	t.mu.Lock()
	if t.state != fsm.StateMuted {
		t.mu.Unlock()
		return false
	}
	t.pipeline.Unmute()
	t.state, _ = fsm.Transition(t.state, fsm.EventUnmute)
	t.listeners.queueStatus(t.state)
	log := t.log
	t.mu.Unlock()

	log.Info("audio unmuted")
	t.listeners.flushStatus()
	return true
}

// RequestAnalysis asks the remote service to score the session.
func (t *Transport[P]) RequestAnalysis() error {
	return t.request(protocol.RequestAnalysis)
}

// EndSession asks the remote service to end the session.
func (t *Transport[P]) EndSession() error {
	return t.request(protocol.RequestEnd)
}

// request sends a control request, stops audio, and moves to ending. Valid
// from recording or muted.
func (t *Transport[P]) request(req protocol.Request) error {
	payload, err := t.requests.Encode(req)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if !fsm.Capturing(t.state) || t.conn == nil {
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("%w: cannot send %s request from %s", ErrInvalidState, req, state)
	}
	if err := t.conn.WriteText(payload); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("send %s request: %w", req, err)
	}
	t.state, _ = fsm.Transition(t.state, fsm.EventEnd)
	t.listeners.queueStatus(t.state)
	p, log := t.pipeline, t.log
	t.mu.Unlock()

	_ = p.Stop()
	log.Info("control request sent", "request", req.String())
	t.listeners.flushStatus()
	return nil
}

// Disconnect tears the session down from any state. Only the first call in a
// row has effects: audio stops, the connection closes, the state becomes
// disconnected, and status listeners see disconnected once. A pending
// handshake is rejected with ErrDisconnected.
func (t *Transport[P]) Disconnect() {
	t.mu.Lock()
	if t.state == fsm.StateDisconnected {
		t.mu.Unlock()
		return
	}
	res := t.detachLocked()
	log := t.log
	t.mu.Unlock()

	res.release(ErrDisconnected)
	log.Info("session disconnected")
	t.listeners.flushStatus()
}

// audioSink forwards frames for session gen only while recording. It runs on
// the capture goroutine and takes the read lock only.
func (t *Transport[P]) audioSink(gen uint64) pipeline.Sink {
	return func(frame []byte) error {
		t.mu.RLock()
		defer t.mu.RUnlock()
		if gen != t.generation || t.state != fsm.StateRecording || t.conn == nil {
			return errNotStreaming
		}
		return t.conn.WriteBinary(frame)
	}
}
