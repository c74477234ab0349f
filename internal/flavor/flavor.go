// Package flavor parameterizes the voice-session transport for each kind of
// session the remote service offers: payload type, request names, and codec.
package flavor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/rbright/parley/internal/audio"
	"github.com/rbright/parley/internal/protocol"
	"github.com/rbright/parley/internal/session"
)

// Spec describes one flavor.
type Spec[P any] struct {
	Name       string
	Requests   protocol.RequestTable
	MultiParty bool
	// Decode builds the payload from config JSON. Defaults to strict JSON.
	Decode func(json.RawMessage) (P, error)
	// Encode renders the handshake frame. Defaults to encoding/json.
	Encode   func(P) ([]byte, error)
	Validate func(P) error
}

// Options carries the payload-independent transport wiring.
type Options struct {
	Dial      session.DialFunc
	Source    audio.Source
	BlockSize int
	DumpAudio bool
	FrameDump io.Writer
	Logger    *slog.Logger
}

// Session is a transport bound to a decoded payload.
type Session interface {
	session.Controls
	Flavor() string
	Configure(ctx context.Context) *session.Handshake
	OnMessage(session.MessageListener)
	OnStatus(session.StatusListener)
	OnError(session.ErrorListener)
	OnAnalysis(session.AnalysisListener)
}

// Prepared pairs a Transport with the payload sent on every Configure.
type Prepared[P any] struct {
	*session.Transport[P]
	name    string
	payload P
}

// Configure starts a session with the prepared payload.
func (p *Prepared[P]) Configure(ctx context.Context) *session.Handshake {
	return p.Transport.Configure(ctx, p.payload)
}

// Flavor returns the flavor name.
func (p *Prepared[P]) Flavor() string { return p.name }

// Payload returns the decoded handshake payload.
func (p *Prepared[P]) Payload() P { return p.payload }

// Prepare decodes raw, validates it, and builds the transport.
func Prepare[P any](spec Spec[P], raw json.RawMessage, opts Options) (*Prepared[P], error) {
	decode := spec.Decode
	if decode == nil {
		decode = decodeStrict[P]
	}
	payload, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", spec.Name, err)
	}
	if spec.Validate != nil {
		if err := spec.Validate(payload); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", spec.Name, err)
		}
	}

	transport := session.New(session.Options[P]{
		Flavor:     spec.Name,
		Dial:       opts.Dial,
		Encode:     spec.Encode,
		Requests:   spec.Requests,
		MultiParty: spec.MultiParty,
		Source:     opts.Source,
		BlockSize:  opts.BlockSize,
		DumpAudio:  opts.DumpAudio,
		FrameDump:  opts.FrameDump,
		Logger:     opts.Logger,
	})
	return &Prepared[P]{Transport: transport, name: spec.Name, payload: payload}, nil
}

// Open prepares the flavor registered under name.
func Open(name string, raw json.RawMessage, opts Options) (Session, error) {
	open, ok := registry[normalize(name)]
	if !ok {
		return nil, fmt.Errorf("unknown flavor %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return open(raw, opts)
}

// Known reports whether name is a registered flavor.
func Known(name string) bool {
	_, ok := registry[normalize(name)]
	return ok
}

// Names lists registered flavors in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type opener func(json.RawMessage, Options) (Session, error)

func register[P any](spec Spec[P]) opener {
	return func(raw json.RawMessage, opts Options) (Session, error) {
		prepared, err := Prepare(spec, raw, opts)
		if err != nil {
			return nil, err
		}
		return prepared, nil
	}
}

var registry = map[string]opener{
	InterviewSpec.Name:  register(InterviewSpec),
	SubjectSpec.Name:    register(SubjectSpec),
	TutorSpec.Name:      register(TutorSpec),
	DiscussionSpec.Name: register(DiscussionSpec),
	BilingualSpec.Name:  register(BilingualSpec),
	CustomSpec.Name:     register(CustomSpec),
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// decodeStrict decodes one JSON object, rejecting unknown fields. An empty or
// null payload yields the zero value.
func decodeStrict[P any](raw json.RawMessage) (P, error) {
	var payload P
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return payload, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return payload, err
	}
	if dec.More() {
		return payload, errors.New("payload must contain a single JSON object")
	}
	return payload, nil
}

func required(fields map[string]string) error {
	missing := make([]string, 0, len(fields))
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("missing required field(s): %s", strings.Join(missing, ", "))
}
