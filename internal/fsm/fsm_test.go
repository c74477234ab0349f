package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionHappyPath(t *testing.T) {
	steps := []struct {
		event Event
		want  State
	}{
		{EventConfigure, StateConnecting},
		{EventReady, StateReady},
		{EventRecord, StateRecording},
		{EventMute, StateMuted},
		{EventUnmute, StateRecording},
		{EventEnd, StateEnding},
		{EventComplete, StateComplete},
		{EventDisconnect, StateDisconnected},
		{EventConfigure, StateConnecting},
	}

	s := StateIdle
	for _, step := range steps {
		next, err := Transition(s, step.event)
		require.NoError(t, err, "%s --(%s)-->", s, step.event)
		require.Equal(t, step.want, next)
		s = next
	}
}

func TestTransitionDisconnectFromAnyState(t *testing.T) {
	states := []State{
		StateIdle, StateConnecting, StateReady, StateRecording, StateMuted,
		StateEnding, StateComplete, StateError, StateDisconnected,
	}
	for _, state := range states {
		next, err := Transition(state, EventDisconnect)
		require.NoError(t, err)
		require.Equal(t, StateDisconnected, next)
	}
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		event   Event
		want    State
		wantErr bool
	}{
		{name: "idle record invalid", state: StateIdle, event: EventRecord, want: StateIdle, wantErr: true},
		{name: "connecting record invalid", state: StateConnecting, event: EventRecord, want: StateConnecting, wantErr: true},
		{name: "connecting configure invalid", state: StateConnecting, event: EventConfigure, want: StateConnecting, wantErr: true},
		{name: "ready mute invalid", state: StateReady, event: EventMute, want: StateReady, wantErr: true},
		{name: "ready end invalid", state: StateReady, event: EventEnd, want: StateReady, wantErr: true},
		{name: "recording unmute invalid", state: StateRecording, event: EventUnmute, want: StateRecording, wantErr: true},
		{name: "recording fail invalid", state: StateRecording, event: EventFail, want: StateRecording, wantErr: true},
		{name: "muted mute invalid", state: StateMuted, event: EventMute, want: StateMuted, wantErr: true},
		{name: "ending record invalid", state: StateEnding, event: EventRecord, want: StateEnding, wantErr: true},
		{name: "complete record invalid", state: StateComplete, event: EventRecord, want: StateComplete, wantErr: true},
		{name: "error ready invalid", state: StateError, event: EventReady, want: StateError, wantErr: true},
		{name: "ready complete valid", state: StateReady, event: EventComplete, want: StateComplete},
		{name: "muted stop valid", state: StateMuted, event: EventStop, want: StateReady},
		{name: "connecting fail valid", state: StateConnecting, event: EventFail, want: StateError},
		{name: "ready fail invalid", state: StateReady, event: EventFail, want: StateReady, wantErr: true},
		{name: "muted fail invalid", state: StateMuted, event: EventFail, want: StateMuted, wantErr: true},
		{name: "ending fail invalid", state: StateEnding, event: EventFail, want: StateEnding, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event)
			require.Equal(t, tc.want, next)
			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "invalid transition")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	next, err := Transition(State("mystery"), EventConfigure)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown state")
	require.Equal(t, State("mystery"), next)

	_, err = Transition(State("mystery"), EventDisconnect)
	require.Error(t, err)
}

func TestCapturingAndConfigured(t *testing.T) {
	require.True(t, Capturing(StateRecording))
	require.True(t, Capturing(StateMuted))
	require.False(t, Capturing(StateReady))
	require.False(t, Capturing(StateEnding))

	require.True(t, Configured(StateReady))
	require.True(t, Configured(StateComplete))
	require.False(t, Configured(StateConnecting))
	require.False(t, Configured(StateDisconnected))
}
