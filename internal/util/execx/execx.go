// Package execx runs external commands such as packer, qemu-img and ln,
// capturing their output and reporting failures with full context.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/imamik/alpine-cloud-images/internal/util/logx"
)

// Runner executes a command and returns its stdout and stderr.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

// Error describes a command that could not be started or exited non-zero.
type Error struct {
	Command  []string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("command %q failed (exit %d): %v", strings.Join(e.Command, " "), e.ExitCode, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Dir is the working directory; empty means the current directory.
	Dir string
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	command := append([]string{name}, args...)
	logx.Debugf("COMMAND: %s", strings.Join(command, " "))

	// #nosec G204 - commands are built from fixed tool names and resolved config values
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		logx.Debugf("EXIT: %d / COMMAND: %s", exitCode, strings.Join(command, " "))
		logx.Debugf("STDOUT:\n%s", stdout.String())
		logx.Debugf("STDERR:\n%s", stderr.String())
		return stdout.String(), stderr.String(), &Error{
			Command:  command,
			ExitCode: exitCode,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Err:      err,
		}
	}

	return stdout.String(), stderr.String(), nil
}

// Run executes a command with the default runner.
func Run(ctx context.Context, name string, args ...string) (string, string, error) {
	return ExecRunner{}.Run(ctx, name, args...)
}
