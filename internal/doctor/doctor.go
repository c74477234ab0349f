// Package doctor runs runtime readiness diagnostics for config, session
// payload, audio, and the remote voice service.
package doctor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rbright/parley/internal/audio"
	"github.com/rbright/parley/internal/config"
	"github.com/rbright/parley/internal/flavor"
	"github.com/rbright/parley/internal/ipc"
	"github.com/rbright/parley/internal/wsconn"
)

const (
	probeTimeout = 3 * time.Second
	ipcTimeout   = 200 * time.Millisecond
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{}

	checks = append(checks, Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	})

	checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "remote-control socket directory is set", "XDG_RUNTIME_DIR is empty; session commands cannot reach the owner"))

	checks = append(checks, checkPayload(cfg.Config))
	checks = append(checks, checkOwner(ctx))
	checks = append(checks, checkAudioSelection(ctx, cfg.Config))
	checks = append(checks, checkServer(ctx, cfg.Config))

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkPayload decodes and validates the configured handshake payload
// without dialing.
func checkPayload(cfg config.Config) Check {
	name := "session.payload"
	if _, err := flavor.Open(cfg.Session.Flavor, cfg.Session.Payload, flavor.Options{}); err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("valid %s payload", cfg.Session.Flavor)}
}

// checkOwner reports whether a session owner is already listening. A missing
// owner is not a failure.
func checkOwner(ctx context.Context) Check {
	name := "session.owner"
	path, err := ipc.RuntimeSocketPath()
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	alive, err := ipc.Probe(ctx, path, ipcTimeout)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	if alive {
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("session running at %s", path)}
	}
	return Check{Name: name, Pass: true, Message: "no session running"}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkServer completes a websocket upgrade against the configured service
// and closes without configuring a session.
func checkServer(ctx context.Context, cfg config.Config) Check {
	name := "server.socket"
	target, err := wsconn.NormalizeURL(cfg.Server.URL)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	elapsed, err := wsconn.Probe(ctx, wsconn.Config{
		URL:              target,
		Header:           cfg.Server.Header(),
		HandshakeTimeout: cfg.Server.HandshakeTimeout(),
	})
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("upgrade failed: %v", err)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("upgraded in %s", elapsed.Round(time.Millisecond))}
}
