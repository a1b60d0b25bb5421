// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package pgpsql

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/spawnhq/spawn/spawnerr"
)

// DefaultCaptureLimit caps how much child stdout/stderr is held in memory.
// Overflow is dropped and marked; callers that expect large output (the
// test runner) pass their own unbounded sink instead.
const DefaultCaptureLimit = 4 << 20

// killGracePeriod is how long a cancelled child gets between stdin close
// and SIGKILL.
const killGracePeriod = 5 * time.Second

const truncationMarker = "\n...[output truncated]"

// cappedBuffer is an io.Writer that keeps at most max bytes and records
// whether anything was dropped. Writes never fail; overflow is the
// caller's signal to go look at the database directly.
type cappedBuffer struct {
	max       int
	buf       bytes.Buffer
	truncated bool
}

func newCappedBuffer(max int) *cappedBuffer {
	return &cappedBuffer{max: max}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.max - b.buf.Len()
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte {
	if !b.truncated {
		return b.buf.Bytes()
	}
	return append(b.buf.Bytes(), truncationMarker...)
}

// execResult is the outcome of one child process run.
type execResult struct {
	exit     int
	stderr   []byte
	duration time.Duration
}

// runCommand spawns argv, streams feed's output into the child's stdin,
// and copies the child's stdout into stdout. The feeder, the stdout copy
// and the stderr copy all progress concurrently so the pipeline cannot
// deadlock on a full pipe. Cancellation closes stdin first, gives the
// child killGracePeriod to finish draining, then kills it.
//
// The returned error is non-nil only for failures to run the child at
// all, for cancellation of ctx (an IOError wrapping ctx.Err()), or for a
// feed error; a child that ran and exited non-zero is
// reported through execResult.exit so callers can decide what a non-zero
// exit means.
func runCommand(ctx context.Context, argv []string, feed func(io.Writer) error, stdout io.Writer) (execResult, error) {
	start := time.Now()

	cmd := exec.Command(argv[0], argv[1:]...)
	stderr := newCappedBuffer(DefaultCaptureLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return execResult{}, spawnerr.Wrap(spawnerr.IOError, err, "creating stdin pipe")
	}

	if err := cmd.Start(); err != nil {
		return execResult{}, spawnerr.Wrap(spawnerr.EngineError, pkgerrors.Wrapf(err, "starting %s", argv[0]), "cannot start engine command")
	}

	feedErrC := make(chan error, 1)
	go func() {
		ferr := feed(stdin)
		cerr := stdin.Close()
		if ferr == nil && cerr != nil {
			ferr = cerr
		}
		feedErrC <- ferr
	}()

	waitC := make(chan error, 1)
	go func() { waitC <- cmd.Wait() }()

	var waitErr error
	cancelled := false
	select {
	case waitErr = <-waitC:
	case <-ctx.Done():
		cancelled = true
		// Closing stdin lets psql finish the statement it is on and exit
		// on its own; only a child that ignores EOF gets killed.
		stdin.Close()
		select {
		case waitErr = <-waitC:
		case <-time.After(killGracePeriod):
			_ = cmd.Process.Kill()
			waitErr = <-waitC
		}
	}

	feedErr := <-feedErrC

	res := execResult{stderr: stderr.Bytes(), duration: time.Since(start)}
	if waitErr != nil {
		if ee, ok := waitErr.(*exec.ExitError); ok {
			res.exit = ee.ExitCode()
		} else {
			return res, spawnerr.Wrap(spawnerr.EngineError, waitErr, "waiting for engine command")
		}
	}

	if cancelled {
		return res, spawnerr.Wrap(spawnerr.IOError, ctx.Err(), "cancelled")
	}

	// A feed failure is the render pipeline's error and takes precedence
	// over whatever exit the child produced from truncated input -- unless
	// the feeder only failed because the child went away first.
	if feedErr != nil && !isBrokenPipe(feedErr) {
		return res, feedErr
	}
	return res, nil
}

func isBrokenPipe(err error) bool {
	s := err.Error()
	return strings.Contains(s, "broken pipe") || strings.Contains(s, "file already closed")
}

// exec runs argv feeding it sql, capturing stdout up to the memory cap.
func (e *Engine) exec(ctx context.Context, extraArgs []string, sql string) ([]byte, execResult, error) {
	argv, err := e.resolver.Argv(ctx)
	if err != nil {
		return nil, execResult{}, err
	}
	argv = append(argv, extraArgs...)

	e.logger.Debug("exec: %s", quoteArgv(argv))

	stdout := newCappedBuffer(DefaultCaptureLimit)
	res, err := runCommand(ctx, argv, func(w io.Writer) error {
		_, werr := io.WriteString(w, sql)
		return werr
	}, stdout)
	return stdout.Bytes(), res, err
}

const fieldSep = "\x1f"

// queryArgs are the psql flags for machine-readable single-statement
// queries: no rc files, quiet, unaligned, tuples only, stop on error.
var queryArgs = []string{"-X", "-q", "-A", "-t", "-v", "ON_ERROR_STOP=1", "-F", fieldSep}

// query runs sql and parses the unaligned tuple output into rows of
// fields.
func (e *Engine) query(ctx context.Context, sql string) ([][]string, error) {
	out, res, err := e.exec(ctx, queryArgs, sql)
	if err != nil {
		return nil, err
	}
	if res.exit != 0 {
		return nil, engineExitError(res)
	}
	return parseTuples(out), nil
}

// parseTuples splits psql's unaligned tuples-only output into rows of
// fields.
func parseTuples(out []byte) [][]string {
	var rows [][]string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimRight(line, "\r"); line == "" {
			continue
		}
		rows = append(rows, strings.Split(line, fieldSep))
	}
	return rows
}

// testArgs put psql in the mode the test runner wants: one transaction,
// no pager, stop on error.
var testArgs = []string{"-X", "-v", "ON_ERROR_STOP=1", "--single-transaction", "-P", "pager=off"}

// RunTest streams feed into a single-transaction psql session, writing
// the session's stdout to stdout uncapped, so large test baselines never
// truncate.
func (e *Engine) RunTest(ctx context.Context, feed func(io.Writer) error, stdout io.Writer) error {
	argv, err := e.resolver.Argv(ctx)
	if err != nil {
		return err
	}
	argv = append(argv, testArgs...)

	e.logger.Debug("test exec: %s", quoteArgv(argv))

	res, err := runCommand(ctx, argv, feed, stdout)
	if err != nil {
		return err
	}
	if res.exit != 0 {
		return engineExitError(res)
	}
	return nil
}
