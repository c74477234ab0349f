// Package fsm defines the voice-session lifecycle state machine.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateReady        State = "ready"
	StateRecording    State = "recording"
	StateMuted        State = "muted"
	StateEnding       State = "ending"
	StateComplete     State = "complete"
	StateError        State = "error"
	StateDisconnected State = "disconnected"
)

const (
	EventConfigure  Event = "configure"
	EventReady      Event = "ready"
	EventRecord     Event = "record"
	EventStop       Event = "stop"
	EventMute       Event = "mute"
	EventUnmute     Event = "unmute"
	EventEnd        Event = "end"
	EventComplete   Event = "complete"
	EventFail       Event = "fail"
	EventDisconnect Event = "disconnect"
)

// Transition returns the state reached by applying event to current.
//
// EventDisconnect is accepted from every state. EventFail is only accepted
// while the handshake is pending; once ready, remote errors are reported
// without a state change.
func Transition(current State, event Event) (State, error) {
	if event == EventDisconnect {
		if !known(current) {
			return current, fmt.Errorf("unknown state %q", current)
		}
		return StateDisconnected, nil
	}

	switch current {
	case StateIdle, StateDisconnected:
		switch event {
		case EventConfigure:
			return StateConnecting, nil
		}
	case StateConnecting:
		switch event {
		case EventReady:
			return StateReady, nil
		case EventFail:
			return StateError, nil
		}
	case StateReady:
		switch event {
		case EventRecord:
			return StateRecording, nil
		case EventComplete:
			return StateComplete, nil
		}
	case StateRecording:
		switch event {
		case EventStop:
			return StateReady, nil
		case EventMute:
			return StateMuted, nil
		case EventEnd:
			return StateEnding, nil
		case EventComplete:
			return StateComplete, nil
		}
	case StateMuted:
		switch event {
		case EventStop:
			return StateReady, nil
		case EventUnmute:
			return StateRecording, nil
		case EventEnd:
			return StateEnding, nil
		case EventComplete:
			return StateComplete, nil
		}
	case StateEnding:
		switch event {
		case EventComplete:
			return StateComplete, nil
		}
	case StateComplete, StateError:
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
	return current, invalidTransition(current, event)
}

// Capturing reports whether the audio pipeline may be active in state.
func Capturing(state State) bool {
	return state == StateRecording || state == StateMuted
}

// Configured reports whether the handshake has been accepted and the
// connection is still owned by the session.
func Configured(state State) bool {
	switch state {
	case StateReady, StateRecording, StateMuted, StateEnding, StateComplete:
		return true
	default:
		return false
	}
}

func known(state State) bool {
	switch state {
	case StateIdle, StateConnecting, StateReady, StateRecording, StateMuted,
		StateEnding, StateComplete, StateError, StateDisconnected:
		return true
	default:
		return false
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
