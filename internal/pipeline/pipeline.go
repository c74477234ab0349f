// Package pipeline turns captured sample blocks into PCM16 audio frames and
// gates them on the mute flag.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rbright/parley/internal/audio"
)

// ErrNoSource is returned by Start when no capture source was configured.
var ErrNoSource = errors.New("no audio source configured")

// Sink receives one encoded frame. The frame is not retained by the pipeline.
type Sink func(frame []byte) error

// Config wires a Pipeline.
type Config struct {
	Source    audio.Source
	BlockSize int
	Sink      Sink
	Logger    *slog.Logger
	// DumpAudio writes every encoded frame to a WAV file under the state dir.
	DumpAudio bool
}

// Stats counts block outcomes since the pipeline was created.
type Stats struct {
	Blocks  int64
	Sent    int64
	Muted   int64
	Dropped int64
	Acquire int64
	Release int64
}

// Pipeline owns one capture device at a time. Mute keeps the device running
// and discards blocks; Stop releases the device.
type Pipeline struct {
	source    audio.Source
	blockSize int
	sink      Sink
	logger    *slog.Logger
	dumpAudio bool

	mu     sync.Mutex
	stream audio.Stream
	dump   atomic.Pointer[wavDump]

	active atomic.Bool
	muted  atomic.Bool

	blocks   atomic.Int64
	sent     atomic.Int64
	discards atomic.Int64
	dropped  atomic.Int64
	acquires atomic.Int64
	releases atomic.Int64
}

// New constructs an idle pipeline.
func New(cfg Config) *Pipeline {
	blockSize := cfg.BlockSize
	if blockSize <= 0 {
		blockSize = audio.DefaultBlockSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		source:    cfg.Source,
		blockSize: blockSize,
		sink:      cfg.Sink,
		logger:    logger,
		dumpAudio: cfg.DumpAudio,
	}
}

// Start acquires the capture device unmuted. Starting an already running
// pipeline only clears the mute flag.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.muted.Store(false)
	if p.stream != nil {
		return nil
	}
	if p.source == nil {
		return ErrNoSource
	}

	if p.dumpAudio {
		dump, err := newWAVDump()
		if err != nil {
			p.logger.Warn("unable to create debug audio dump", "error", err.Error())
		} else {
			p.dump.Store(dump)
		}
	}

	p.active.Store(true)
	stream, err := p.source.Acquire(ctx, p.blockSize, p.handleBlock)
	if err != nil {
		p.active.Store(false)
		p.closeDump()
		return err
	}
	p.stream = stream
	p.acquires.Add(1)
	return nil
}

// Stop releases the capture device. Safe to call repeatedly.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	stream := p.stream
	p.stream = nil
	p.active.Store(false)
	p.mu.Unlock()

	if stream == nil {
		return nil
	}

	err := stream.Stop()
	p.releases.Add(1)
	p.closeDump()
	return err
}

// Mute discards subsequent blocks without releasing the device.
func (p *Pipeline) Mute() { p.muted.Store(true) }

// Unmute resumes forwarding blocks to the sink.
func (p *Pipeline) Unmute() { p.muted.Store(false) }

// Muted reports the mute flag.
func (p *Pipeline) Muted() bool { return p.muted.Load() }

// Running reports whether a capture device is held.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stream != nil
}

// Stats returns a snapshot of the block counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Blocks:  p.blocks.Load(),
		Sent:    p.sent.Load(),
		Muted:   p.discards.Load(),
		Dropped: p.dropped.Load(),
		Acquire: p.acquires.Load(),
		Release: p.releases.Load(),
	}
}

// handleBlock runs on the capture goroutine and must not take p.mu: Start holds
// it while the device starts delivering.
func (p *Pipeline) handleBlock(samples []float32) {
	if !p.active.Load() {
		return
	}
	p.blocks.Add(1)
	if p.muted.Load() {
		p.discards.Add(1)
		return
	}

	frame := audio.EncodePCM16(samples)
	if p.sink == nil {
		p.dropped.Add(1)
		return
	}
	if err := p.sink(frame); err != nil {
		p.dropped.Add(1)
		p.logger.Debug("audio frame dropped", "error", err.Error())
		return
	}
	p.sent.Add(1)
	p.dumpFrame(frame)
}

func (p *Pipeline) dumpFrame(frame []byte) {
	if dump := p.dump.Load(); dump != nil {
		dump.append(frame)
	}
}

// closeDump flushes the WAV dump, if any.
func (p *Pipeline) closeDump() {
	dump := p.dump.Swap(nil)
	if dump == nil {
		return
	}
	if err := dump.close(); err != nil {
		p.logger.Warn("unable to write debug audio dump", "error", err.Error())
	}
}
