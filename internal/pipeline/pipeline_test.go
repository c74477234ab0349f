package pipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rbright/parley/internal/audio"
	"github.com/stretchr/testify/require"
)

// fakeSource hands the block callback back to the test and counts device use.
type fakeSource struct {
	mu       sync.Mutex
	acquires int
	releases int
	err      error
	onBlock  func([]float32)
	lastSize int
}

func (s *fakeSource) Acquire(_ context.Context, blockSize int, onBlock func([]float32)) (audio.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.acquires++
	s.onBlock = onBlock
	s.lastSize = blockSize
	return &fakeStream{source: s}, nil
}

func (s *fakeSource) emit(n int) {
	s.mu.Lock()
	onBlock := s.onBlock
	s.mu.Unlock()
	for range n {
		onBlock([]float32{0.25, -0.25})
	}
}

func (s *fakeSource) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquires, s.releases
}

type fakeStream struct {
	source *fakeSource
	once   sync.Once
}

func (f *fakeStream) Stop() error {
	f.once.Do(func() {
		f.source.mu.Lock()
		f.source.releases++
		f.source.mu.Unlock()
	})
	return nil
}

type frameRecorder struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (r *frameRecorder) sink(frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, frame)
	return nil
}

func (r *frameRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func TestPipelineSendsEveryUnmutedBlock(t *testing.T) {
	source := &fakeSource{}
	recorder := &frameRecorder{}
	p := New(Config{Source: source, Sink: recorder.sink})

	require.NoError(t, p.Start(context.Background()))
	require.Equal(t, audio.DefaultBlockSize, source.lastSize)
	source.emit(10)

	require.Equal(t, 10, recorder.count())
	require.Len(t, recorder.frames[0], 4)
	require.Equal(t, Stats{Blocks: 10, Sent: 10, Acquire: 1}, p.Stats())
}

func TestPipelineMuteDiscardsWithoutReleasing(t *testing.T) {
	source := &fakeSource{}
	recorder := &frameRecorder{}
	p := New(Config{Source: source, Sink: recorder.sink, BlockSize: 2})

	require.NoError(t, p.Start(context.Background()))
	source.emit(5)
	p.Mute()
	require.True(t, p.Muted())
	source.emit(5)
	require.Equal(t, 5, recorder.count())

	p.Unmute()
	source.emit(1)
	require.Equal(t, 6, recorder.count())

	acquires, releases := source.counts()
	require.Equal(t, 1, acquires)
	require.Equal(t, 0, releases)
	require.Equal(t, int64(5), p.Stats().Muted)
}

func TestPipelineStopReleasesOncePerAcquire(t *testing.T) {
	source := &fakeSource{}
	p := New(Config{Source: source, Sink: (&frameRecorder{}).sink})

	for range 2 {
		require.NoError(t, p.Start(context.Background()))
		require.True(t, p.Running())
		require.NoError(t, p.Stop())
		require.NoError(t, p.Stop())
		require.False(t, p.Running())
	}

	acquires, releases := source.counts()
	require.Equal(t, 2, acquires)
	require.Equal(t, 2, releases)
}

func TestPipelineStartWhileRunningKeepsDevice(t *testing.T) {
	source := &fakeSource{}
	p := New(Config{Source: source})

	require.NoError(t, p.Start(context.Background()))
	p.Mute()
	require.NoError(t, p.Start(context.Background()))
	require.False(t, p.Muted())

	acquires, _ := source.counts()
	require.Equal(t, 1, acquires)
}

func TestPipelineBlocksAfterStopAreIgnored(t *testing.T) {
	source := &fakeSource{}
	recorder := &frameRecorder{}
	p := New(Config{Source: source, Sink: recorder.sink})

	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Stop())
	source.emit(3)
	require.Zero(t, recorder.count())
}

func TestPipelineSinkErrorsCountAsDropped(t *testing.T) {
	source := &fakeSource{}
	recorder := &frameRecorder{err: errors.New("not recording")}
	p := New(Config{Source: source, Sink: recorder.sink})

	require.NoError(t, p.Start(context.Background()))
	source.emit(3)
	stats := p.Stats()
	require.Equal(t, int64(3), stats.Dropped)
	require.Zero(t, stats.Sent)
}

func TestPipelineAcquireFailureLeavesPipelineIdle(t *testing.T) {
	source := &fakeSource{err: errors.New("permission denied")}
	p := New(Config{Source: source})

	err := p.Start(context.Background())
	require.ErrorContains(t, err, "permission denied")
	require.False(t, p.Running())
	require.NoError(t, p.Stop())
}

func TestPipelineWithoutSource(t *testing.T) {
	p := New(Config{})
	require.ErrorIs(t, p.Start(context.Background()), ErrNoSource)
}

func TestPipelineDumpsTransmittedAudio(t *testing.T) {
	xdgStateHome := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)

	source := &fakeSource{}
	p := New(Config{Source: source, Sink: (&frameRecorder{}).sink, DumpAudio: true})
	require.NoError(t, p.Start(context.Background()))
	source.emit(2)
	require.NoError(t, p.Stop())

	matches, err := filepath.Glob(filepath.Join(xdgStateHome, "parley", "debug", "audio-*.wav"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	require.Len(t, data, 44+8)
}

func TestWritePCM16WAVWritesHeaderAndPCM(t *testing.T) {
	file, err := os.CreateTemp(t.TempDir(), "*.wav")
	require.NoError(t, err)

	pcm := []byte{0x01, 0x00, 0xFF, 0x7F}
	require.NoError(t, writePCM16WAV(file, pcm, 16000, 0))
	require.NoError(t, file.Close())

	data, err := os.ReadFile(file.Name())
	require.NoError(t, err)
	require.Len(t, data, 44+len(pcm))

	require.Equal(t, "RIFF", string(data[0:4]))
	require.Equal(t, "WAVE", string(data[8:12]))
	require.Equal(t, "fmt ", string(data[12:16]))
	require.Equal(t, "data", string(data[36:40]))
	require.Equal(t, uint16(1), binary.LittleEndian.Uint16(data[22:24])) // channels default to mono
	require.Equal(t, uint32(16000), binary.LittleEndian.Uint32(data[24:28]))
	require.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(data[40:44]))
	require.Equal(t, pcm, data[44:])
}
