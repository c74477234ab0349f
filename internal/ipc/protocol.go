// Package ipc carries remote-control commands from parley subcommands to the
// process that owns the live session.
package ipc

// Commands understood by the session owner.
const (
	CommandStatus     = "status"
	CommandRecord     = "record"
	CommandStop       = "stop"
	CommandMute       = "mute"
	CommandUnmute     = "unmute"
	CommandAnalysis   = "analysis"
	CommandEnd        = "end"
	CommandDisconnect = "disconnect"
)

type Request struct {
	Command string `json:"command"`
}

type Response struct {
	OK        bool   `json:"ok"`
	State     string `json:"state,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Flavor    string `json:"flavor,omitempty"`
	Stats     *Stats `json:"stats,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Stats mirrors the owner's audio pipeline counters.
type Stats struct {
	Blocks  int64 `json:"blocks"`
	Sent    int64 `json:"sent"`
	Muted   int64 `json:"muted"`
	Dropped int64 `json:"dropped"`
}
