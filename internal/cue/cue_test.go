package cue

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/parley/internal/audio"
	"github.com/rbright/parley/internal/fsm"
)

type fakePlayer struct {
	mu     sync.Mutex
	played [][]int16
	err    error
}

func (p *fakePlayer) Play(samples []int16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, samples)
	return p.err
}

func (p *fakePlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.played)
}

func TestForTransition(t *testing.T) {
	tests := []struct {
		prev, next fsm.State
		want       Kind
	}{
		{fsm.StateReady, fsm.StateRecording, Start},
		{fsm.StateRecording, fsm.StateMuted, Mute},
		{fsm.StateMuted, fsm.StateRecording, Unmute},
		{fsm.StateRecording, fsm.StateReady, Stop},
		{fsm.StateMuted, fsm.StateReady, Stop},
		{fsm.StateConnecting, fsm.StateReady, None},
		{fsm.StateEnding, fsm.StateComplete, Complete},
		{fsm.StateConnecting, fsm.StateError, Error},
		{fsm.StateRecording, fsm.StateDisconnected, None},
		{fsm.StateIdle, fsm.StateConnecting, None},
	}
	for _, tc := range tests {
		t.Run(string(tc.prev)+"->"+string(tc.next), func(t *testing.T) {
			require.Equal(t, tc.want, ForTransition(tc.prev, tc.next))
		})
	}
}

func TestSamplesPresentForEveryCue(t *testing.T) {
	for _, kind := range []Kind{Start, Mute, Unmute, Stop, Complete, Error} {
		require.NotEmpty(t, Samples(kind), kind.String())
	}
	require.Empty(t, Samples(None))
}

func TestSynthesizeToneDuration(t *testing.T) {
	got := synthesizeTone(toneSpec{frequencyHz: 440, duration: 100 * time.Millisecond, volume: 0.2})
	require.Len(t, got, audio.SampleRate/10)
}

func TestSynthesizeToneInvalidSpecReturnsEmpty(t *testing.T) {
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 0, duration: 100 * time.Millisecond, volume: 0.2}))
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 440, duration: 0, volume: 0.2}))
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 440, duration: 100 * time.Millisecond, volume: 0}))
}

func TestCuesPlayStatusSequenceInOrder(t *testing.T) {
	player := &fakePlayer{}
	cues := New(player, nil)

	for _, state := range []fsm.State{
		fsm.StateConnecting,
		fsm.StateReady,
		fsm.StateRecording,
		fsm.StateMuted,
		fsm.StateRecording,
		fsm.StateEnding,
		fsm.StateComplete,
	} {
		cues.Status(state)
	}
	cues.Close()

	require.Equal(t, [][]int16{startPCM, mutePCM, startPCM, completePCM}, player.played)
}

func TestCuesSurvivePlaybackErrorsAndClose(t *testing.T) {
	player := &fakePlayer{err: errors.New("no sink")}
	cues := New(player, nil)

	cues.Status(fsm.StateError)
	cues.Close()
	cues.Close()
	cues.Status(fsm.StateRecording)

	require.Equal(t, 1, player.count())
}

func TestCuesWithoutPlayerOnlyTrackState(t *testing.T) {
	cues := New(nil, nil)
	cues.Status(fsm.StateRecording)
	cues.Close()
	require.Equal(t, fsm.StateRecording, cues.last)
}
