// Package app wires the parley command tree to config, logging, the session
// transport, and remote control.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rbright/parley/internal/audio"
	"github.com/rbright/parley/internal/config"
	"github.com/rbright/parley/internal/cue"
	"github.com/rbright/parley/internal/doctor"
	"github.com/rbright/parley/internal/logging"
	"github.com/rbright/parley/internal/session"
	"github.com/rbright/parley/internal/version"
)

const binaryName = "parley"

// Runner executes one CLI invocation. The optional fields replace the
// network, audio, and cue backends.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	Dial   session.DialFunc
	Source audio.Source
	Player cue.Player
}

// exitError carries a process exit code. A nil err means the command already
// reported the failure.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error {
	return &exitError{code: 2, err: err}
}

// silentFailure exits 1 without printing anything further.
var silentFailure = &exitError{code: 1}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	root := r.newRootCommand()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", exit.err)
		}
		if exit.code == 2 {
			fmt.Fprintf(r.Stderr, "\n%s", root.UsageString())
		}
		return exit.code
	}

	// Anything cobra rejects before RunE is a usage problem.
	if isCobraUsageError(err) {
		fmt.Fprintf(r.Stderr, "error: %v\n\n%s", err, root.UsageString())
		return 2
	}

	fmt.Fprintf(r.Stderr, "error: %v\n", err)
	return 1
}

func isCobraUsageError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag") ||
		strings.Contains(msg, "flag needs an argument") ||
		strings.Contains(msg, "accepts ") ||
		strings.Contains(msg, "invalid argument")
}

type globalFlags struct {
	configPath string
	debug      bool
}

func (r Runner) newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           binaryName,
		Short:         "Voice session client for a remote conversational service",
		Long:          "parley connects to a remote voice service, streams microphone audio,\nand prints the conversation and its final analysis.",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(r.Stdout)
	root.SetErr(r.Stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file path (default $XDG_CONFIG_HOME/parley/config.jsonc)")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "write debug-level records to the log file")

	root.AddCommand(
		r.newStartCommand(flags),
		r.newStatusCommand(flags),
		r.newForwardCommand(flags, "record", "Start streaming microphone audio"),
		r.newForwardCommand(flags, "stop", "Stop streaming and release the microphone"),
		r.newForwardCommand(flags, "mute", "Keep the microphone open but stop transmitting"),
		r.newForwardCommand(flags, "unmute", "Resume transmitting after mute"),
		r.newForwardCommand(flags, "analysis", "Ask the service to analyze the session"),
		r.newForwardCommand(flags, "end", "Ask the service to end the session"),
		r.newForwardCommand(flags, "disconnect", "Tear the session down immediately"),
		r.newDevicesCommand(flags),
		r.newDoctorCommand(flags),
		r.newVersionCommand(),
	)
	return root
}

// environment is the per-command bootstrap: log file plus loaded config.
type environment struct {
	logger *slog.Logger
	log    logging.Runtime
	config config.Loaded
}

func (e environment) Close() {
	_ = e.log.Close()
}

func (r Runner) bootstrap(cmd *cobra.Command, flags *globalFlags) (environment, error) {
	level := slog.LevelInfo
	if flags.debug {
		level = slog.LevelDebug
	}

	logRuntime, err := logging.New(level)
	if err != nil {
		return environment{}, fmt.Errorf("setup logging: %w", err)
	}
	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	loaded, err := config.Load(flags.configPath)
	if err != nil {
		_ = logRuntime.Close()
		logger.Error("load config failed", "error", err.Error())
		return environment{}, err
	}
	for _, w := range loaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", cmd.Name(),
		"config", loaded.Path,
		"log", logRuntime.Path,
	)
	return environment{logger: logger, log: logRuntime, config: loaded}, nil
}

func (r Runner) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			fmt.Fprintln(r.Stdout, version.String())
			return nil
		},
	}
}

func (r Runner) newDoctorCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run configuration, audio, and service checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := r.bootstrap(cmd, flags)
			if err != nil {
				return err
			}
			defer env.Close()

			report := doctor.Run(cmd.Context(), env.config)
			fmt.Fprintln(r.Stdout, report.String())
			if !report.OK() {
				return silentFailure
			}
			return nil
		},
	}
}

func (r Runner) newDevicesCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := r.bootstrap(cmd, flags)
			if err != nil {
				return err
			}
			defer env.Close()

			devices, err := audio.ListDevices(cmd.Context())
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Fprintln(r.Stdout, "no audio devices found")
				return silentFailure
			}

			for _, device := range devices {
				defaultMark := " "
				if device.Default {
					defaultMark = "*"
				}
				fmt.Fprintf(r.Stdout, "%s %s\n", defaultMark, device.String())
			}
			return nil
		},
	}
}
