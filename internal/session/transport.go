// Package session implements the voice-session transport: handshake, audio
// streaming, control requests, inbound routing, and teardown.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/rbright/parley/internal/audio"
	"github.com/rbright/parley/internal/fsm"
	"github.com/rbright/parley/internal/pipeline"
	"github.com/rbright/parley/internal/protocol"
	"github.com/rbright/parley/internal/wsconn"
)

// Options wires a Transport. P is the flavor's handshake payload type.
type Options[P any] struct {
	Flavor string
	Dial   DialFunc
	// Encode renders the handshake payload. Defaults to encoding/json.
	Encode func(P) ([]byte, error)
	// Requests maps control requests to wire names. Defaults to
	// protocol.DefaultRequests.
	Requests protocol.RequestTable
	// MultiParty enables presence frames.
	MultiParty bool

	Source    audio.Source
	BlockSize int
	DumpAudio bool
	// FrameDump, when set, receives one JSON line per inbound text frame.
	FrameDump io.Writer

	Logger *slog.Logger
}

// Controls is the payload-independent surface of a Transport.
type Controls interface {
	State() fsm.State
	SessionID() string
	Configured() bool
	Recording() bool
	Muted() bool
	Stats() pipeline.Stats

	StartRecording(context.Context) error
	StopRecording() bool
	PauseAudio() bool
	ResumeAudio() bool
	RequestAnalysis() error
	EndSession() error
	Disconnect()
}

// Transport is one reusable voice session against the remote service.
type Transport[P any] struct {
	flavor     string
	dial       DialFunc
	encode     func(P) ([]byte, error)
	requests   protocol.RequestTable
	multiParty bool
	source     audio.Source
	blockSize  int
	dumpAudio  bool
	frames     *frameDump
	logger     *slog.Logger

	listeners registry

	mu         sync.RWMutex
	state      fsm.State
	generation uint64
	sessionID  string
	log        *slog.Logger
	conn       Conn
	handshake  *Handshake
	pipeline   *pipeline.Pipeline
}

var _ Controls = (*Transport[struct{}])(nil)

// New constructs an idle transport with safe default fallbacks.
func New[P any](opts Options[P]) *Transport[P] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	encode := opts.Encode
	if encode == nil {
		encode = func(payload P) ([]byte, error) { return json.Marshal(payload) }
	}
	requests := opts.Requests
	if requests == nil {
		requests = protocol.DefaultRequests
	}
	dial := opts.Dial
	if dial == nil {
		dial = func(context.Context, wsconn.Handler) (Conn, error) {
			return nil, errors.New("no dialer configured")
		}
	}

	t := &Transport[P]{
		flavor:     opts.Flavor,
		dial:       dial,
		encode:     encode,
		requests:   requests,
		multiParty: opts.MultiParty,
		source:     opts.Source,
		blockSize:  opts.BlockSize,
		dumpAudio:  opts.DumpAudio,
		logger:     logger,
		listeners:  registry{logger: logger},
		state:      fsm.StateIdle,
		log:        logger,
	}
	if opts.FrameDump != nil {
		t.frames = &frameDump{w: opts.FrameDump}
	}
	return t
}

// OnMessage registers a transcript/presence listener.
func (t *Transport[P]) OnMessage(fn MessageListener) { t.listeners.addMessage(fn) }

// OnStatus registers a lifecycle listener.
func (t *Transport[P]) OnStatus(fn StatusListener) { t.listeners.addStatus(fn) }

// OnError registers an error listener.
func (t *Transport[P]) OnError(fn ErrorListener) { t.listeners.addError(fn) }

// OnAnalysis registers an end-of-session result listener.
func (t *Transport[P]) OnAnalysis(fn AnalysisListener) { t.listeners.addAnalysis(fn) }

// State returns the current lifecycle state snapshot.
func (t *Transport[P]) State() fsm.State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// SessionID returns the id minted by the most recent Configure.
func (t *Transport[P]) SessionID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessionID
}

// Configured reports whether the handshake has completed for a live session.
func (t *Transport[P]) Configured() bool {
	return fsm.Configured(t.State())
}

// Recording reports whether the capture device is held.
func (t *Transport[P]) Recording() bool {
	return fsm.Capturing(t.State())
}

// Muted reports whether transmission is gated while the device stays held.
func (t *Transport[P]) Muted() bool {
	return t.State() == fsm.StateMuted
}

// Stats returns pipeline counters for the current or last session.
func (t *Transport[P]) Stats() pipeline.Stats {
	t.mu.RLock()
	p := t.pipeline
	t.mu.RUnlock()
	if p == nil {
		return pipeline.Stats{}
	}
	return p.Stats()
}

// Configure starts a new session: it dials, sends payload as the first text
// frame, and returns a Handshake that settles on ready, error, or disconnect.
// Valid from idle and disconnected. Callers must serialize Configure.
func (t *Transport[P]) Configure(ctx context.Context, payload P) *Handshake {
	hs := newHandshake()

	data, err := t.encode(payload)
	if err != nil {
		hs.reject(fmt.Errorf("encode handshake payload: %w", err))
		return hs
	}

	t.mu.Lock()
	next, err := fsm.Transition(t.state, fsm.EventConfigure)
	if err != nil {
		state := t.state
		t.mu.Unlock()
		hs.reject(fmt.Errorf("%w: cannot configure from %s", ErrInvalidState, state))
		return hs
	}
	t.state = next
	t.listeners.queueStatus(next)
	t.generation++
	gen := t.generation
	t.sessionID = uuid.NewString()
	t.log = t.logger.With("session_id", t.sessionID, "flavor", t.flavor)
	t.handshake = hs
	t.pipeline = pipeline.New(pipeline.Config{
		Source:    t.source,
		BlockSize: t.blockSize,
		Sink:      t.audioSink(gen),
		Logger:    t.log,
		DumpAudio: t.dumpAudio,
	})
	log := t.log
	t.mu.Unlock()

	log.Info("session configuring")
	t.listeners.flushStatus()

	go t.connect(ctx, gen, data)
	return hs
}

// connect dials and sends the handshake payload for session gen.
func (t *Transport[P]) connect(ctx context.Context, gen uint64, payload []byte) {
	conn, err := t.dial(ctx, &inbound[P]{t: t, gen: gen})

	t.mu.Lock()
	if gen != t.generation || t.state != fsm.StateConnecting {
		// Disconnected or closed while dialing.
		t.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err == nil {
		if werr := conn.WriteText(payload); werr != nil {
			err = fmt.Errorf("send handshake payload: %w", werr)
		} else {
			t.conn = conn
			t.mu.Unlock()
			return
		}
	} else {
		err = fmt.Errorf("connect: %w", err)
	}
	t.failHandshakeLocked(err, err, conn)
}

// failHandshakeLocked moves a connecting session to error and then
// disconnected. It unlocks t.mu before dispatching; the handshake is rejected
// last so waiters observe the final state.
func (t *Transport[P]) failHandshakeLocked(reason error, reported error, extra Conn) {
	log := t.log
	errState, _ := fsm.Transition(t.state, fsm.EventFail)
	t.state = errState
	t.listeners.queueStatus(errState)
	res := t.detachLocked()
	hs := res.handshake
	res.handshake = nil
	t.mu.Unlock()

	log.Error("handshake failed", "error", reason.Error())
	t.listeners.emitError(reported)

	res.release(ErrDisconnected)
	if extra != nil {
		_ = extra.Close()
	}
	t.listeners.flushStatus()
	if hs != nil {
		hs.reject(reason)
	}
}

// teardown holds the resources detached from a session under lock, released
// after unlock.
type teardown struct {
	conn      Conn
	pipeline  *pipeline.Pipeline
	handshake *Handshake
}

// detachLocked moves to disconnected, queues that status, and hands back the
// session resources.
func (t *Transport[P]) detachLocked() teardown {
	res := teardown{conn: t.conn, pipeline: t.pipeline, handshake: t.handshake}
	t.conn = nil
	t.handshake = nil
	t.state, _ = fsm.Transition(t.state, fsm.EventDisconnect)
	t.listeners.queueStatus(t.state)
	return res
}

// release stops audio before closing the connection, then rejects any
// pending handshake with cause.
func (r teardown) release(cause error) {
	if r.pipeline != nil {
		_ = r.pipeline.Stop()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
	if r.handshake != nil {
		r.handshake.reject(cause)
	}
}

// liveLocked reports whether gen is the current, not yet torn down session.
func (t *Transport[P]) liveLocked(gen uint64) bool {
	return gen == t.generation && t.state != fsm.StateIdle && t.state != fsm.StateDisconnected
}
