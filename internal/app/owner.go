package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/rbright/parley/internal/flavor"
	"github.com/rbright/parley/internal/fsm"
	"github.com/rbright/parley/internal/ipc"
	"github.com/rbright/parley/internal/protocol"
	"github.com/rbright/parley/internal/session"
)

// owner serves remote-control commands for the live session and renders
// session events to the terminal.
type owner struct {
	sess   flavor.Session
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger

	printMu sync.Mutex

	mu        sync.Mutex
	finished  bool
	completed bool
	analyzed  bool
	lastErr   error
	done      chan struct{}
	analysis  chan struct{}
}

func newOwner(sess flavor.Session, stdout, stderr io.Writer, logger *slog.Logger) *owner {
	o := &owner{
		sess:     sess,
		stdout:   stdout,
		stderr:   stderr,
		logger:   logger,
		done:     make(chan struct{}),
		analysis: make(chan struct{}),
	}
	sess.OnMessage(o.onMessage)
	sess.OnStatus(o.onStatus)
	sess.OnError(o.onError)
	sess.OnAnalysis(o.onAnalysis)
	return o
}

// Done is closed once the session completes or disconnects.
func (o *owner) Done() <-chan struct{} { return o.done }

// Analyzed is closed once an analysis has been printed.
func (o *owner) Analyzed() <-chan struct{} { return o.analysis }

// Completed reports whether the service ended the session normally.
func (o *owner) Completed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completed
}

// AwaitingAnalysis reports a completed session whose analysis has not arrived.
func (o *owner) AwaitingAnalysis() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completed && !o.analyzed
}

// Err returns the last error reported by the session.
func (o *owner) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

func (o *owner) onStatus(state fsm.State) {
	o.logger.Debug("session status", "state", string(state))

	o.mu.Lock()
	defer o.mu.Unlock()
	switch state {
	case fsm.StateComplete:
		o.completed = true
	case fsm.StateDisconnected:
	default:
		return
	}
	if !o.finished {
		o.finished = true
		close(o.done)
	}
}

func (o *owner) onMessage(msg protocol.Message) {
	o.printMu.Lock()
	defer o.printMu.Unlock()

	if p := msg.Presence; p != nil {
		verb := "left"
		if p.Joined {
			verb = "joined"
		}
		fmt.Fprintf(o.stdout, "* %s %s (%d active)\n", p.UserName, verb, p.ActiveUsers)
		return
	}
	fmt.Fprintf(o.stdout, "%s: %s\n", msg.Speaker, msg.Text)
}

func (o *owner) onError(err error) {
	o.mu.Lock()
	o.lastErr = err
	o.mu.Unlock()

	o.printMu.Lock()
	defer o.printMu.Unlock()

	var remote *session.RemoteError
	if errors.As(err, &remote) && !remote.Fatal {
		fmt.Fprintf(o.stderr, "warning: %v\n", err)
		return
	}
	fmt.Fprintf(o.stderr, "error: %v\n", err)
}

func (o *owner) onAnalysis(analysis protocol.Analysis) {
	o.printMu.Lock()
	if analysis.Message != "" {
		fmt.Fprintf(o.stdout, "analysis: %s\n", analysis.Message)
	} else {
		fmt.Fprintln(o.stdout, "analysis:")
	}
	if len(analysis.Result) > 0 {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, analysis.Result, "", "  "); err == nil {
			fmt.Fprintln(o.stdout, pretty.String())
		} else {
			fmt.Fprintln(o.stdout, string(analysis.Result))
		}
	}
	if len(analysis.History) > 0 {
		fmt.Fprintf(o.stdout, "history: %d entries\n", len(analysis.History))
	}
	o.printMu.Unlock()

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.analyzed {
		o.analyzed = true
		close(o.analysis)
	}
}

// Handle maps one IPC command onto the session controls.
func (o *owner) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	o.logger.Info("remote command", "command", req.Command)

	var (
		message string
		err     error
	)
	switch req.Command {
	case ipc.CommandStatus:
		return o.status("")
	case ipc.CommandRecord:
		err = o.sess.StartRecording(ctx)
		message = "recording"
	case ipc.CommandStop:
		err = o.expect(o.sess.StopRecording(), "not recording")
		message = "stopped"
	case ipc.CommandMute:
		err = o.expect(o.sess.PauseAudio(), "not recording")
		message = "muted"
	case ipc.CommandUnmute:
		err = o.expect(o.sess.ResumeAudio(), "not muted")
		message = "unmuted"
	case ipc.CommandAnalysis:
		err = o.sess.RequestAnalysis()
		message = "analysis requested"
	case ipc.CommandEnd:
		err = o.sess.EndSession()
		message = "end requested"
	case ipc.CommandDisconnect:
		o.sess.Disconnect()
		message = "disconnected"
	default:
		return ipc.Response{OK: false, Error: fmt.Sprintf("unsupported command %q", req.Command)}
	}

	if err != nil {
		o.logger.Warn("remote command failed", "command", req.Command, "error", err.Error())
		resp := o.status("")
		resp.OK = false
		resp.Error = err.Error()
		return resp
	}
	return o.status(message)
}

func (o *owner) expect(ok bool, reason string) error {
	if ok {
		return nil
	}
	return fmt.Errorf("%w: %s (state %s)", session.ErrInvalidState, reason, o.sess.State())
}

func (o *owner) status(message string) ipc.Response {
	stats := o.sess.Stats()
	return ipc.Response{
		OK:        true,
		State:     string(o.sess.State()),
		SessionID: o.sess.SessionID(),
		Flavor:    o.sess.Flavor(),
		Stats: &ipc.Stats{
			Blocks:  stats.Blocks,
			Sent:    stats.Sent,
			Muted:   stats.Muted,
			Dropped: stats.Dropped,
		},
		Message: message,
	}
}
