// Package runner executes external programs for the alias and tunnel steps.
//
// Both runners attach the child to the user's terminal, because sudo may
// prompt for a password and ssh is an interactive session. All arguments go
// through exec.Command's argv, never through a shell.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Runner runs one process to completion.
//
// exitCode is the child's exit status, or -1 when it was killed by a signal.
// err is non-nil only when the process could not be started or waited on, in
// which case exitCode is also -1. A non-zero exit is not an error here.
type Runner interface {
	Run(ctx context.Context, argv []string) (exitCode int, err error)
}

// Exec runs commands with stdio inherited from the current process.
type Exec struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewExec returns an Exec wired to os.Stdin, os.Stdout and os.Stderr.
func NewExec() *Exec {
	return &Exec{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

func (e *Exec) Run(ctx context.Context, argv []string) (int, error) {
	cmd, err := command(ctx, argv)
	if err != nil {
		return -1, err
	}
	cmd.Stdin = e.Stdin
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	if err := cmd.Start(); err != nil {
		return -1, err
	}
	return waitStatus(cmd.Wait())
}

func command(ctx context.Context, argv []string) (*exec.Cmd, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return exec.CommandContext(ctx, argv[0], argv[1:]...), nil
}

// waitStatus turns the result of cmd.Wait into an exit code. A child killed by
// a signal reports -1 from ExitCode, which is kept as-is.
func waitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
