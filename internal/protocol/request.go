package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Request names a control operation the client can ask of the remote service.
type Request int

const (
	RequestAnalysis Request = iota + 1
	RequestEnd
)

func (r Request) String() string {
	switch r {
	case RequestAnalysis:
		return "analysis"
	case RequestEnd:
		return "end"
	default:
		return fmt.Sprintf("request(%d)", int(r))
	}
}

// RequestTable maps control operations to the wire names a flavor expects.
type RequestTable map[Request]string

// DefaultRequests matches the interview flavor of the remote service.
var DefaultRequests = RequestTable{
	RequestAnalysis: "ANALYSIS",
	RequestEnd:      "END_INTERVIEW",
}

// Encode builds the text frame for req, e.g. {"type":"ANALYSIS"}.
func (t RequestTable) Encode(req Request) ([]byte, error) {
	name := strings.TrimSpace(t[req])
	if name == "" {
		return nil, fmt.Errorf("no wire name for %s request", req)
	}
	return json.Marshal(struct {
		Type string `json:"type"`
	}{Type: name})
}
