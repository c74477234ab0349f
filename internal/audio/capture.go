package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
)

// Source acquires a capture device and delivers fixed-size sample blocks.
type Source interface {
	Acquire(ctx context.Context, blockSize int, onBlock func([]float32)) (Stream, error)
}

// Stream is one acquired capture device. Stop releases it; after Stop returns
// no further blocks are delivered.
type Stream interface {
	Stop() error
}

// PulseSource captures from the Pulse source chosen by Input/Fallback.
type PulseSource struct {
	Input    string
	Fallback string
	Logger   *slog.Logger
}

// Acquire resolves the device and starts a float32 record stream. ctx bounds
// device resolution only; the stream lives until Stop.
func (s PulseSource) Acquire(ctx context.Context, blockSize int, onBlock func([]float32)) (Stream, error) {
	selection, err := SelectDevice(ctx, s.Input, s.Fallback)
	if err != nil {
		return nil, err
	}
	if selection.Warning != "" && s.Logger != nil {
		s.Logger.Warn(selection.Warning)
	}
	capture, err := StartCapture(selection.Device, blockSize, onBlock)
	if err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Debug("audio capture started", "device", selection.Device.String(), "block_size", blockSize)
	}
	return capture, nil
}

// Capture streams fixed-size float32 blocks from one selected Pulse source.
type Capture struct {
	device    Device
	blockSize int
	onBlock   func([]float32)

	client *pulse.Client
	stream *pulse.RecordStream

	stopCh chan struct{}

	mu      sync.Mutex
	pending []float32
	stopped bool

	inflight sync.WaitGroup
	samples  atomic.Int64
	blocks   atomic.Int64
}

// StartCapture creates and starts a 16kHz mono float32 record stream.
// onBlock is called sequentially from the Pulse client goroutine and must not
// block on anything held by a caller of Stop.
func StartCapture(selected Device, blockSize int, onBlock func([]float32)) (*Capture, error) {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}

	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	capture := newCapture(selected, blockSize, onBlock)
	capture.client = client

	stream, err := client.NewRecord(
		pulse.Float32Writer(capture.onSamples),
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(SampleRate),
		pulse.RecordBufferFragmentSize(uint32(blockSize*4)),
		pulse.RecordMediaName("parley voice session"),
	)
	if err != nil {
		_ = capture.Stop()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	capture.stream = stream
	stream.Start()
	return capture, nil
}

func newCapture(device Device, blockSize int, onBlock func([]float32)) *Capture {
	return &Capture{
		device:    device,
		blockSize: blockSize,
		onBlock:   onBlock,
		stopCh:    make(chan struct{}),
	}
}

// Device returns capture metadata for logging and diagnostics.
func (c *Capture) Device() Device {
	return c.device
}

// SamplesCaptured reports total samples accepted from Pulse.
func (c *Capture) SamplesCaptured() int64 {
	return c.samples.Load()
}

// BlocksDelivered reports how many full blocks reached onBlock.
func (c *Capture) BlocksDelivered() int64 {
	return c.blocks.Load()
}

// Stop halts the stream and releases the device exactly once. A trailing
// partial block is discarded.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.stopCh)
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	c.inflight.Wait()

	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
	return nil
}

// onSamples receives raw Pulse samples and emits blockSize slices to onBlock.
func (c *Capture) onSamples(buffer []float32) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-c.stopCh:
		return 0, io.EOF
	default:
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as c.stopped so Stop's Wait cannot race it.
	c.inflight.Add(1)

	c.pending = append(c.pending, buffer...)
	blocks := make([][]float32, 0, len(c.pending)/c.blockSize)
	for len(c.pending) >= c.blockSize {
		block := make([]float32, c.blockSize)
		copy(block, c.pending[:c.blockSize])
		c.pending = c.pending[c.blockSize:]
		blocks = append(blocks, block)
	}
	c.mu.Unlock()
	defer c.inflight.Done()

	c.samples.Add(int64(len(buffer)))

	for _, block := range blocks {
		select {
		case <-c.stopCh:
			return 0, io.EOF
		default:
		}
		if c.onBlock != nil {
			c.onBlock(block)
		}
		c.blocks.Add(1)
	}

	return len(buffer), nil
}
