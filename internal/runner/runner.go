// Package runner executes the external indexing program and streams its output.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// ErrStart is returned when the program could not be launched.
var ErrStart = errors.New("start program")

// Stream identifies which pipe a line was read from.
type Stream string

// Output streams.
const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// LineFunc receives each output line. Calls are serialized and lines of one
// stream arrive in the order the program wrote them.
type LineFunc func(stream Stream, line string)

// Command describes one program invocation.
type Command struct {
	Path    string
	Args    []string
	Dir     string
	Env     []string
	Timeout time.Duration
}

// Result reports how the program ended.
type Result struct {
	Started  time.Time
	Stopped  time.Time
	ExitCode int
	// Err is the wait error, or the context error when the run was canceled or timed out.
	Err error
}

// Success reports a clean zero exit.
func (r Result) Success() bool {
	return r.Err == nil && r.ExitCode == 0
}

const (
	maxLineBytes = 1024 * 1024
	waitDelay    = 5 * time.Second
)

// Run starts the program, feeds every stdout and stderr line to onLine and
// blocks until the program exits. The returned error is non-nil only when the
// program could not be started; abnormal exits are described by Result.
func Run(ctx context.Context, cmd Command, onLine LineFunc) (Result, error) {
	if cmd.Path == "" {
		return Result{}, fmt.Errorf("%w: program path is required", ErrStart)
	}
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	proc := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	proc.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		proc.Env = cmd.Env
	}
	proc.WaitDelay = waitDelay
	setProcessGroup(proc)

	stdout, err := proc.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("%w: stdout pipe: %v", ErrStart, err)
	}
	stderr, err := proc.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("%w: stderr pipe: %v", ErrStart, err)
	}

	res := Result{Started: time.Now().UTC()}
	if err := proc.Start(); err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrStart, cmd.Path, err)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	read := func(stream Stream, r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			line := scanner.Text()
			if onLine == nil {
				continue
			}
			mu.Lock()
			onLine(stream, line)
			mu.Unlock()
		}
		// Drain whatever the scanner refused so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
	}
	wg.Add(2)
	go read(StreamStdout, stdout)
	go read(StreamStderr, stderr)

	// Anything that escaped the process group may still hold the pipes once
	// the run is canceled; stop reading after waitDelay regardless.
	readersDone := make(chan struct{})
	go func() {
		select {
		case <-readersDone:
			return
		case <-ctx.Done():
		}
		timer := time.NewTimer(waitDelay)
		defer timer.Stop()
		select {
		case <-readersDone:
		case <-timer.C:
			_ = stdout.Close()
			_ = stderr.Close()
		}
	}()
	wg.Wait()
	close(readersDone)

	waitErr := proc.Wait()
	res.Stopped = time.Now().UTC()
	res.ExitCode = exitCode(proc, waitErr)
	switch {
	case ctx.Err() != nil:
		res.Err = ctx.Err()
	case waitErr != nil:
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			res.Err = waitErr
		}
	}
	return res, nil
}

func exitCode(proc *exec.Cmd, waitErr error) int {
	if proc.ProcessState != nil {
		return proc.ProcessState.ExitCode()
	}
	if waitErr != nil {
		return -1
	}
	return 0
}

// splitByNewlineOrCR treats carriage returns as line breaks so progress bars
// that redraw in place still produce one line per update.
func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
