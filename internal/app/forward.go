package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rbright/parley/internal/fsm"
	"github.com/rbright/parley/internal/ipc"
)

const forwardTimeout = 220 * time.Millisecond

var errNoSession = errors.New("no active parley session")

func (r Runner) newStatusCommand(flags *globalFlags) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the current session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := r.bootstrap(cmd, flags)
			if err != nil {
				return err
			}
			defer env.Close()

			socketPath, err := ipc.RuntimeSocketPath()
			if err != nil {
				fmt.Fprintln(r.Stdout, string(fsm.StateIdle))
				return nil
			}

			resp, handled, err := tryForward(cmd.Context(), socketPath, ipc.CommandStatus)
			if !handled {
				fmt.Fprintln(r.Stdout, string(fsm.StateIdle))
				return nil
			}
			if err != nil {
				return err
			}
			if resp.State == "" {
				resp.State = string(fsm.StateIdle)
			}
			fmt.Fprintln(r.Stdout, resp.State)
			if verbose {
				printStatusDetail(r, resp)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "also print session id, flavor, and audio counters")
	return cmd
}

func printStatusDetail(r Runner, resp ipc.Response) {
	if resp.SessionID != "" {
		fmt.Fprintf(r.Stdout, "session: %s\n", resp.SessionID)
	}
	if resp.Flavor != "" {
		fmt.Fprintf(r.Stdout, "flavor: %s\n", resp.Flavor)
	}
	if resp.Stats != nil {
		fmt.Fprintf(r.Stdout, "audio: blocks=%d sent=%d muted=%d dropped=%d\n",
			resp.Stats.Blocks, resp.Stats.Sent, resp.Stats.Muted, resp.Stats.Dropped)
	}
}

// newForwardCommand builds a subcommand that relays one IPC command to the
// session owner.
func (r Runner) newForwardCommand(flags *globalFlags, command string, short string) *cobra.Command {
	return &cobra.Command{
		Use:   command,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := r.bootstrap(cmd, flags)
			if err != nil {
				return err
			}
			defer env.Close()

			socketPath, err := ipc.RuntimeSocketPath()
			if err != nil {
				return err
			}

			resp, handled, err := tryForward(cmd.Context(), socketPath, command)
			if !handled {
				return errNoSession
			}
			if err != nil {
				env.logger.Warn("forwarded command failed", "command", command, "error", err.Error())
				return err
			}
			if resp.Message != "" {
				fmt.Fprintln(r.Stdout, resp.Message)
			}
			return nil
		},
	}
}

// tryForward sends command to the owner. handled is false when no owner is
// listening.
func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, forwardTimeout)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if isSocketMissing(err) {
		return ipc.Response{}, false, nil
	}
	if isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
