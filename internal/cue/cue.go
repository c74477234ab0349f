// Package cue plays short audible tones when the session changes state.
package cue

import (
	"log/slog"
	"sync"

	"github.com/rbright/parley/internal/fsm"
)

// Kind names one cue tone.
type Kind int

const (
	None Kind = iota
	Start
	Mute
	Unmute
	Stop
	Complete
	Error
)

func (k Kind) String() string {
	switch k {
	case Start:
		return "start"
	case Mute:
		return "mute"
	case Unmute:
		return "unmute"
	case Stop:
		return "stop"
	case Complete:
		return "complete"
	case Error:
		return "error"
	default:
		return "none"
	}
}

// ForTransition picks the cue for moving from prev to next.
func ForTransition(prev, next fsm.State) Kind {
	switch next {
	case fsm.StateRecording:
		if prev == fsm.StateMuted {
			return Unmute
		}
		return Start
	case fsm.StateMuted:
		return Mute
	case fsm.StateReady:
		if fsm.Capturing(prev) {
			return Stop
		}
	case fsm.StateComplete:
		return Complete
	case fsm.StateError:
		return Error
	}
	return None
}

const queueSize = 8

// Cues turns status changes into tones, played one at a time in order.
type Cues struct {
	player Player
	logger *slog.Logger

	mu     sync.Mutex
	last   fsm.State
	queue  chan Kind
	closed bool
	done   chan struct{}
}

// New starts the playback worker. A nil player disables playback but still
// tracks state.
func New(player Player, logger *slog.Logger) *Cues {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Cues{
		player: player,
		logger: logger,
		last:   fsm.StateIdle,
		queue:  make(chan Kind, queueSize),
		done:   make(chan struct{}),
	}
	go c.run()
	return c
}

// Status is a session status listener.
func (c *Cues) Status(next fsm.State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kind := ForTransition(c.last, next)
	c.last = next
	if kind == None || c.closed || c.player == nil {
		return
	}
	select {
	case c.queue <- kind:
	default:
		c.logger.Debug("cue queue full; dropping cue", "cue", kind.String())
	}
}

// Close drains queued cues and stops the worker.
func (c *Cues) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()
	<-c.done
}

func (c *Cues) run() {
	defer close(c.done)
	for kind := range c.queue {
		if err := c.player.Play(Samples(kind)); err != nil {
			c.logger.Debug("audio cue failed", "cue", kind.String(), "error", err.Error())
		}
	}
}
