package flavor

import (
	"encoding/json"
	"errors"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rbright/parley/internal/protocol"
)

// Interview is the handshake for a mock job interview.
type Interview struct {
	Resume          string `json:"resume"`
	JobDescription  string `json:"job_description"`
	Role            string `json:"role"`
	ExperienceLevel string `json:"experience_level,omitempty"`
}

// Subject is the handshake for a subject-specific technical interview.
type Subject struct {
	Subject    string `json:"subject"`
	Difficulty string `json:"difficulty,omitempty"`
	Resume     string `json:"resume,omitempty"`
}

// Tutor is the handshake for a tutoring session.
type Tutor struct {
	Topic string   `json:"topic"`
	Level string   `json:"level,omitempty"`
	Goals []string `json:"goals,omitempty"`
}

// Discussion is the handshake for a multi-party discussion room.
type Discussion struct {
	RoomID   string `json:"room_id"`
	UserName string `json:"user_name"`
	Topic    string `json:"topic,omitempty"`
}

// Bilingual is the handshake for language practice.
type Bilingual struct {
	NativeLanguage string `json:"native_language"`
	TargetLanguage string `json:"target_language"`
	Topic          string `json:"topic,omitempty"`
	Proficiency    string `json:"proficiency,omitempty"`
}

var endSessionRequests = protocol.RequestTable{
	protocol.RequestAnalysis: "ANALYSIS",
	protocol.RequestEnd:      "END_SESSION",
}

var (
	InterviewSpec = Spec[Interview]{
		Name:     "interview",
		Requests: protocol.DefaultRequests,
		Validate: func(p Interview) error {
			if strings.TrimSpace(p.Role) == "" && strings.TrimSpace(p.JobDescription) == "" {
				return errors.New("one of role or job_description is required")
			}
			return nil
		},
	}

	SubjectSpec = Spec[Subject]{
		Name:     "subject",
		Requests: protocol.DefaultRequests,
		Validate: func(p Subject) error {
			return required(map[string]string{"subject": p.Subject})
		},
	}

	TutorSpec = Spec[Tutor]{
		Name: "tutor",
		Requests: protocol.RequestTable{
			protocol.RequestAnalysis: "SUMMARY",
			protocol.RequestEnd:      "END_SESSION",
		},
		Validate: func(p Tutor) error {
			return required(map[string]string{"topic": p.Topic})
		},
	}

	DiscussionSpec = Spec[Discussion]{
		Name: "discussion",
		Requests: protocol.RequestTable{
			protocol.RequestAnalysis: "ANALYSIS",
			protocol.RequestEnd:      "LEAVE",
		},
		MultiParty: true,
		Validate: func(p Discussion) error {
			return required(map[string]string{"room_id": p.RoomID, "user_name": p.UserName})
		},
	}

	BilingualSpec = Spec[Bilingual]{
		Name:     "bilingual",
		Requests: endSessionRequests,
		Validate: func(p Bilingual) error {
			if err := required(map[string]string{
				"native_language": p.NativeLanguage,
				"target_language": p.TargetLanguage,
			}); err != nil {
				return err
			}
			if strings.EqualFold(strings.TrimSpace(p.NativeLanguage), strings.TrimSpace(p.TargetLanguage)) {
				return errors.New("native_language and target_language must differ")
			}
			return nil
		},
	}

	// CustomSpec forwards an arbitrary object untouched.
	CustomSpec = Spec[*structpb.Struct]{
		Name:     "custom",
		Requests: endSessionRequests,
		Decode:   decodeStruct,
		Encode:   encodeStruct,
	}
)

func decodeStruct(raw json.RawMessage) (*structpb.Struct, error) {
	payload := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return payload, nil
	}
	if err := protojson.Unmarshal([]byte(trimmed), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func encodeStruct(payload *structpb.Struct) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	return protojson.MarshalOptions{UseProtoNames: true}.Marshal(payload)
}
