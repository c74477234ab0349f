// Package protocol classifies inbound control frames and builds outbound requests.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind tags the variant carried by a Frame.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindReady
	KindError
	KindContent
	KindPresence
	KindComplete
	KindAnalysis
)

func (k Kind) String() string {
	switch k {
	case KindReady:
		return "ready"
	case KindError:
		return "error"
	case KindContent:
		return "content"
	case KindPresence:
		return "presence"
	case KindComplete:
		return "complete"
	case KindAnalysis:
		return "analysis"
	default:
		return "unrecognized"
	}
}

// Frame is one classified inbound text frame. Exactly the fields relevant to
// Kind are populated; Raw always holds the original payload.
type Frame struct {
	Kind Kind
	Raw  []byte

	// Ready carries setup metadata (every field other than status).
	Ready map[string]any
	// Message is the error text, the goodbye message, or the analysis summary.
	Message  string
	Content  Message
	Presence Presence
	// Analysis is set for complete and analysis frames.
	Analysis *Analysis
}

// Message is one transcript line, or a presence change in multi-party sessions.
type Message struct {
	Speaker  string
	Text     string
	Presence *Presence
}

// Presence is a participant join/leave notification.
type Presence struct {
	UserName    string
	Joined      bool
	ActiveUsers int
}

// Analysis is the end-of-session result delivered by the remote service.
type Analysis struct {
	Message string
	History []json.RawMessage
	Result  json.RawMessage
}

// HasResults reports whether the analysis carries structured results beyond a message.
func (a *Analysis) HasResults() bool {
	if a == nil {
		return false
	}
	return a.History != nil || len(a.Result) > 0
}

// FrameError reports an inbound frame that could not be classified.
type FrameError struct {
	Raw string
	Err error
}

func (e *FrameError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unrecognized frame: %s", e.Raw)
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Raw)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

var (
	ErrMalformed    = errors.New("malformed frame")
	ErrUnrecognized = errors.New("unrecognized frame")
)

// wireFrame is the union of every field the remote service is known to send.
type wireFrame struct {
	Status      *string           `json:"status"`
	Type        *string           `json:"type"`
	Message     *string           `json:"message"`
	Name        *string           `json:"name"`
	UserName    *string           `json:"user_name"`
	Content     *string           `json:"content"`
	Text        *string           `json:"text"`
	ActiveUsers *int              `json:"active_users"`
	History     []json.RawMessage `json:"history"`
	Analysis    json.RawMessage   `json:"analysis"`
	Result      json.RawMessage   `json:"result"`
}

// Parse classifies one inbound text frame.
//
// A recognized status field takes priority over everything else. Records with
// both an author and a text field and no status are transcript content.
// Anything else yields a *FrameError carrying the raw payload.
func Parse(data []byte) (Frame, error) {
	raw := append([]byte(nil), data...)
	frame := Frame{Kind: KindUnrecognized, Raw: raw}

	var wire wireFrame
	if err := json.Unmarshal(data, &wire); err != nil {
		return frame, &FrameError{Raw: string(data), Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}

	if status, ok := discriminant(wire); ok {
		switch status {
		case "ready":
			frame.Kind = KindReady
			frame.Ready = readyMetadata(data)
		case "error":
			frame.Kind = KindError
			frame.Message = deref(wire.Message)
			if frame.Message == "" {
				frame.Message = "remote error"
			}
		case "goodbye", "complete", "completed":
			frame.Kind = KindComplete
			frame.Message = deref(wire.Message)
			frame.Analysis = analysisFrom(wire)
		case "analysis":
			frame.Kind = KindAnalysis
			frame.Message = deref(wire.Message)
			frame.Analysis = analysisFrom(wire)
		case "user_joined", "user_left":
			frame.Kind = KindPresence
			frame.Presence = Presence{
				UserName: firstNonEmpty(wire.UserName, wire.Name),
				Joined:   status == "user_joined",
			}
			if wire.ActiveUsers != nil {
				frame.Presence.ActiveUsers = *wire.ActiveUsers
			}
		default:
			return frame, &FrameError{Raw: string(data), Err: fmt.Errorf("%w: status %q", ErrUnrecognized, status)}
		}
		return frame, nil
	}

	speaker := firstNonEmpty(wire.Name, wire.UserName)
	text := firstSet(wire.Content, wire.Message, wire.Text)
	if speaker != "" && text != nil {
		frame.Kind = KindContent
		frame.Content = Message{Speaker: speaker, Text: *text}
		return frame, nil
	}

	return frame, &FrameError{Raw: string(data), Err: ErrUnrecognized}
}

// discriminant returns the normalized status. A type field only stands in for
// a missing status when it names a known status.
func discriminant(wire wireFrame) (string, bool) {
	if wire.Status != nil {
		if value := normalize(*wire.Status); value != "" {
			return value, true
		}
	}
	if wire.Type != nil {
		value := normalize(*wire.Type)
		if _, ok := knownStatuses[value]; ok {
			return value, true
		}
	}
	return "", false
}

var knownStatuses = map[string]struct{}{
	"ready":       {},
	"error":       {},
	"goodbye":     {},
	"complete":    {},
	"completed":   {},
	"analysis":    {},
	"user_joined": {},
	"user_left":   {},
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func analysisFrom(wire wireFrame) *Analysis {
	analysis := &Analysis{Message: deref(wire.Message), History: wire.History}
	switch {
	case len(wire.Analysis) > 0 && string(wire.Analysis) != "null":
		analysis.Result = wire.Analysis
	case len(wire.Result) > 0 && string(wire.Result) != "null":
		analysis.Result = wire.Result
	}
	return analysis
}

func readyMetadata(data []byte) map[string]any {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	delete(fields, "status")
	delete(fields, "type")
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func firstNonEmpty(values ...*string) string {
	for _, value := range values {
		if value != nil && strings.TrimSpace(*value) != "" {
			return *value
		}
	}
	return ""
}

func firstSet(values ...*string) *string {
	for _, value := range values {
		if value != nil {
			return value
		}
	}
	return nil
}
