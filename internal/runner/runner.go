// Package runner executes external tools.
//
// Every invocation is a structured argv; nothing is passed through a shell
// string built from request data. The Runner interface lets tests replace the
// real tools with fakes that produce (or withhold) the expected files.
package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/wb-go/wbf/zlog"
)

// ErrNotFound is returned when the tool binary is not on PATH.
var ErrNotFound = errors.New("executable not found")

// Command describes a single tool invocation.
type Command struct {
	Name string
	Args []string
	Dir  string // working directory, empty for the current one
}

// String renders the command for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Output holds what the tool wrote.
type Output struct {
	Stdout []byte
	Stderr []byte
}

// Runner runs a command until it exits or ctx is done.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Output, error)
}

// Exec runs commands with os/exec. On context cancellation the whole process
// group is killed, so shell wrappers do not leave orphans behind.
type Exec struct {
	// WaitDelay bounds how long Run waits for output pipes after the
	// process was killed.
	WaitDelay time.Duration
}

// NewExec returns an Exec with a one second wait delay.
func NewExec() *Exec {
	return &Exec{WaitDelay: time.Second}
}

// Run implements Runner.
func (e *Exec) Run(ctx context.Context, c Command) (Output, error) {
	if _, err := exec.LookPath(c.Name); err != nil {
		return Output{}, errors.Join(ErrNotFound, err)
	}

	start := time.Now()

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = e.WaitDelay
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		killProcessGroup(cmd)
		return nil
	}

	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	dur := time.Since(start)

	if err != nil {
		zlog.Logger.Warn().
			Str("cmd", c.String()).
			Int64("duration_ms", dur.Milliseconds()).
			Str("stderr", truncate(errb.String(), 8<<10)).
			Err(err).
			Msg("exec failed")
	} else {
		zlog.Logger.Debug().
			Str("cmd", c.String()).
			Int64("duration_ms", dur.Milliseconds()).
			Int("stdout_bytes", out.Len()).
			Int("stderr_bytes", errb.Len()).
			Msg("exec ok")
	}

	return Output{Stdout: out.Bytes(), Stderr: errb.Bytes()}, err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
