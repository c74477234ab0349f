package main

import (
	"errors"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMainHelp(t *testing.T) {
	output, code := runMainSubprocess(t, "--help")
	require.Zero(t, code, string(output))
	require.Contains(t, string(output), "Usage:")
	require.Contains(t, string(output), "start")
}

func TestMainInvalidCommandExitsUsage(t *testing.T) {
	output, code := runMainSubprocess(t, "not-a-command")
	require.Equal(t, 2, code)
	require.Contains(t, string(output), "unknown command")
}

func TestMainUnknownFlavorExitsUsage(t *testing.T) {
	output, code := runMainSubprocess(t, "start", "--flavor", "karaoke")
	require.Equal(t, 2, code)
	require.Contains(t, string(output), `unknown flavor "karaoke"`)
}

func TestMainStatusWithoutSessionIsIdle(t *testing.T) {
	output, code := runMainSubprocess(t, "status")
	require.Zero(t, code, string(output))
	require.Contains(t, string(output), "idle\n")
}

func TestMainForwardWithoutSessionFails(t *testing.T) {
	output, code := runMainSubprocess(t, "mute")
	require.Equal(t, 1, code)
	require.Contains(t, string(output), "no active parley session")
}

func TestMainHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			os.Exit(run(args[i+1:]))
		}
	}
	os.Exit(run(nil))
}

// runMainSubprocess runs the CLI in a child process with isolated XDG
// directories and returns its combined output and exit code.
func runMainSubprocess(t *testing.T, args ...string) ([]byte, int) {
	t.Helper()

	cmdArgs := append([]string{"-test.run=TestMainHelperProcess", "--"}, args...)
	cmd := exec.Command(os.Args[0], cmdArgs...)
	cmd.Env = append(os.Environ(),
		"GO_WANT_HELPER_PROCESS=1",
		"XDG_CONFIG_HOME="+t.TempDir(),
		"XDG_STATE_HOME="+t.TempDir(),
		"XDG_RUNTIME_DIR="+t.TempDir(),
		"PARLEY_SERVER_URL=",
		"PARLEY_FLAVOR=",
	)

	output, err := cmd.CombinedOutput()
	if err == nil {
		return output, 0
	}
	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "run helper: %v", err)
	return output, exitErr.ExitCode()
}
