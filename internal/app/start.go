package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rbright/parley/internal/audio"
	"github.com/rbright/parley/internal/config"
	"github.com/rbright/parley/internal/cue"
	"github.com/rbright/parley/internal/flavor"
	"github.com/rbright/parley/internal/ipc"
	"github.com/rbright/parley/internal/logging"
	"github.com/rbright/parley/internal/session"
	"github.com/rbright/parley/internal/wsconn"
)

const (
	acquireProbeTimeout = 180 * time.Millisecond
	acquireRetries      = 8
	// analysisGrace bounds how long a completed session waits for a trailing
	// analysis frame before disconnecting.
	analysisGrace = 3 * time.Second
)

var errSessionDropped = errors.New("session disconnected before completion")

type startFlags struct {
	flavor   string
	noRecord bool
}

func (r Runner) newStartCommand(flags *globalFlags) *cobra.Command {
	opts := &startFlags{}

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Open a session and stay attached until it ends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.flavor != "" && !flavor.Known(opts.flavor) {
				return usageError(fmt.Errorf("unknown flavor %q (known: %s)", opts.flavor, strings.Join(flavor.Names(), ", ")))
			}

			env, err := r.bootstrap(cmd, flags)
			if err != nil {
				return err
			}
			defer env.Close()

			cfg := env.config.Config
			if opts.flavor != "" {
				cfg.Session.Flavor = opts.flavor
			}
			if opts.noRecord {
				cfg.Session.AutoRecord = false
			}
			return r.runSession(cmd.Context(), cfg, env.logger)
		},
	}
	cmd.Flags().StringVar(&opts.flavor, "flavor", "", "session flavor (overrides session.flavor)")
	cmd.Flags().BoolVar(&opts.noRecord, "no-record", false, "wait for a record command instead of recording once ready")
	return cmd
}

// runSession owns one session from socket acquisition to disconnect.
func (r Runner) runSession(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return err
	}
	listener, err := ipc.Acquire(ctx, socketPath, acquireProbeTimeout, acquireRetries, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	frameDump, err := openFrameDump(cfg, logger)
	if err != nil {
		return err
	}
	if frameDump != nil {
		defer frameDump.Close()
	}

	opts := flavor.Options{
		Dial:      r.dialer(cfg, logger),
		Source:    r.source(cfg, logger),
		BlockSize: cfg.Audio.BlockSize,
		DumpAudio: cfg.Debug.EnableAudioDump,
		Logger:    logger,
	}
	if frameDump != nil {
		opts.FrameDump = frameDump
	}
	sess, err := flavor.Open(cfg.Session.Flavor, cfg.Session.Payload, opts)
	if err != nil {
		return err
	}

	o := newOwner(sess, r.Stdout, r.Stderr, logger)
	if cfg.Cue.Enable {
		cues := cue.New(r.player(), logger)
		defer cues.Close()
		sess.OnStatus(cues.Status)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := r.configure(runCtx, sess, cfg, o); err != nil {
		return err
	}
	fmt.Fprintf(r.Stderr, "connected: %s session %s\n", sess.Flavor(), sess.SessionID())

	if cfg.Session.AutoRecord {
		if err := sess.StartRecording(runCtx); err != nil {
			// The session stays ready; a later record command may succeed.
			logger.Warn("auto record failed", "error", err.Error())
		}
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return ipc.Serve(gctx, listener, o)
	})
	g.Go(func() error {
		defer cancel()
		select {
		case <-gctx.Done():
		case <-o.Done():
			if o.AwaitingAnalysis() {
				select {
				case <-o.Analyzed():
				case <-time.After(analysisGrace):
					logger.Warn("no analysis received after completion")
				case <-gctx.Done():
				}
			}
		}
		sess.Disconnect()
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("ipc server failed: %w", err)
	}

	stats := sess.Stats()
	logger.Info("session finished",
		"session_id", sess.SessionID(),
		"completed", o.Completed(),
		"blocks", stats.Blocks,
		"sent", stats.Sent,
		"muted", stats.Muted,
		"dropped", stats.Dropped,
		"acquire", stats.Acquire,
		"release", stats.Release,
	)

	switch {
	case o.Completed():
		return nil
	case ctx.Err() != nil:
		// Interrupted by signal.
		fmt.Fprintln(r.Stderr, "disconnected")
		return nil
	case o.Err() != nil:
		return silentFailure
	default:
		return errSessionDropped
	}
}

// configure runs the handshake, bounded by server.configure_timeout_ms.
func (r Runner) configure(ctx context.Context, sess flavor.Session, cfg config.Config, o *owner) error {
	hs := sess.Configure(ctx)

	waitCtx := ctx
	if timeout := cfg.Server.ConfigureTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := hs.Wait(waitCtx)
	if err == nil {
		return nil
	}
	sess.Disconnect()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("configure session: no ready frame within %s", cfg.Server.ConfigureTimeout())
	}
	if o.Err() != nil {
		// Already reported by the error listener.
		return silentFailure
	}
	return fmt.Errorf("configure session: %w", err)
}

func (r Runner) dialer(cfg config.Config, logger *slog.Logger) session.DialFunc {
	if r.Dial != nil {
		return r.Dial
	}
	return session.WebSocket(wsconn.Config{
		URL:              cfg.Server.URL,
		Header:           cfg.Server.Header(),
		HandshakeTimeout: cfg.Server.HandshakeTimeout(),
		Logger:           logger,
	})
}

func (r Runner) source(cfg config.Config, logger *slog.Logger) audio.Source {
	if r.Source != nil {
		return r.Source
	}
	return audio.PulseSource{Input: cfg.Audio.Input, Fallback: cfg.Audio.Fallback, Logger: logger}
}

func (r Runner) player() cue.Player {
	if r.Player != nil {
		return r.Player
	}
	return cue.PulsePlayer{}
}

func openFrameDump(cfg config.Config, logger *slog.Logger) (io.WriteCloser, error) {
	if !cfg.Debug.EnableFrameDump {
		return nil, nil
	}
	f, err := logging.CreateDebugFile("frames", "jsonl")
	if err != nil {
		return nil, fmt.Errorf("create frame dump: %w", err)
	}
	logger.Info("frame dump enabled", "path", f.Name())
	return f, nil
}
