// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package pgpsql

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/spawnhq/spawn/objstore"
	"github.com/spawnhq/spawn/spawnerr"
	"github.com/spawnhq/spawn/sqlval"
)

// lockAcquireTimeout bounds how long the lock session may take to report
// whether pg_try_advisory_lock succeeded.
const lockAcquireTimeout = 30 * time.Second

// recordTimeout bounds the history-recording session. It runs on its own
// context so that a cancelled apply still gets its FAILURE row written.
const recordTimeout = 30 * time.Second

// ApplyRequest is one migration apply.
type ApplyRequest struct {
	// Name is the resolved migration name, recorded in history.
	Name string
	// Render streams the migration's SQL into w and returns the checksum
	// of the bytes written.
	Render func(w io.Writer) (objstore.Digest, error)
	// PinHash is the pinned tree digest, or empty for an unpinned apply.
	PinHash string
	// Retry permits re-applying after a recorded FAILURE.
	Retry bool
}

// ApplyResult reports a successful apply.
type ApplyResult struct {
	Checksum objstore.Digest
	Duration time.Duration
	Stdout   []byte
}

// Apply runs the two-session apply protocol: take the advisory lock,
// check history, stream the rendered migration into one psql session,
// then record the outcome through a second, fresh session. The split
// means history is written even when the apply session dies inside an
// aborted transaction.
func (e *Engine) Apply(ctx context.Context, req ApplyRequest) (*ApplyResult, error) {
	if err := e.Bootstrap(ctx); err != nil {
		return nil, err
	}

	lock, err := e.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	if err := e.precheck(ctx, req.Name, req.Retry); err != nil {
		return nil, err
	}

	// Session A: stream the render into psql.
	argv, err := e.resolver.Argv(ctx)
	if err != nil {
		return nil, err
	}
	argv = append(argv, applyArgs...)

	stdout := newCappedBuffer(DefaultCaptureLimit)
	var checksum objstore.Digest
	res, runErr := runCommand(ctx, argv, func(w io.Writer) error {
		var renderErr error
		checksum, renderErr = req.Render(w)
		return renderErr
	}, stdout)

	status := "SUCCESS"
	note := ""
	switch {
	case ctx.Err() != nil:
		status = "FAILURE"
		note = "cancelled"
	case runErr != nil:
		status = "FAILURE"
		note = runErr.Error()
	case res.exit != 0:
		status = "FAILURE"
		note = strings.TrimSpace(string(res.stderr))
	}

	// Session B: record on a context of its own, so a cancelled or
	// broken apply still leaves its history row behind.
	recCtx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	recErr := e.record(recCtx, historyRecord{
		name:     req.Name,
		activity: "APPLY",
		status:   status,
		checksum: string(checksum),
		pinHash:  req.PinHash,
		duration: res.duration,
		note:     note,
	})

	if status != "SUCCESS" {
		applyErr := runErr
		if applyErr == nil {
			applyErr = engineExitError(res)
		}
		if recErr != nil {
			return nil, spawnerr.Wrap(spawnerr.EngineError, applyErr, "apply failed and recording history also failed: %v", recErr)
		}
		return nil, applyErr
	}
	if recErr != nil {
		return nil, recErr
	}

	return &ApplyResult{Checksum: checksum, Duration: res.duration, Stdout: stdout.Bytes()}, nil
}

// Adopt records an APPLY-equivalent history row without executing any
// SQL, backfilling history for migrations applied by other means.
func (e *Engine) Adopt(ctx context.Context, name string, checksum objstore.Digest, pinHash string) error {
	if err := e.Bootstrap(ctx); err != nil {
		return err
	}
	return e.record(ctx, historyRecord{
		name:     name,
		activity: "ADOPT",
		status:   "SUCCESS",
		checksum: string(checksum),
		pinHash:  pinHash,
	})
}

// precheck enforces the migration state machine against recorded history.
func (e *Engine) precheck(ctx context.Context, name string, retry bool) error {
	last, err := e.lastHistory(ctx, name)
	if err != nil {
		return err
	}
	if last == nil {
		return nil
	}
	if last.status == "SUCCESS" {
		return spawnerr.New(spawnerr.AlreadyApplied, "migration %s already recorded as %s/SUCCESS", name, last.activity)
	}
	if last.status == "FAILURE" && !retry {
		return spawnerr.New(spawnerr.AlreadyApplied, "previous apply of %s failed; pass --retry to run it again", name)
	}
	return nil
}

// lockSession is a psql process held open for the duration of an apply so
// the session-scoped advisory lock stays held while sessions A and B run.
type lockSession struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan string
}

// acquireLock opens the lock session and takes pg_try_advisory_lock.
// Contention is an immediate, clean failure; the loser never touches
// history.
func (e *Engine) acquireLock(ctx context.Context) (*lockSession, error) {
	argv, err := e.resolver.Argv(ctx)
	if err != nil {
		return nil, err
	}
	argv = append(argv, "-X", "-q", "-A", "-t")

	cmd := exec.Command(argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, spawnerr.Wrap(spawnerr.IOError, err, "creating lock session stdin")
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, spawnerr.Wrap(spawnerr.IOError, err, "creating lock session stdout")
	}
	stderr := newCappedBuffer(DefaultCaptureLimit)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, spawnerr.Wrap(spawnerr.EngineError, err, "starting lock session")
	}

	s := &lockSession{cmd: cmd, stdin: stdin, lines: make(chan string, 16)}
	go func() {
		scanner := bufio.NewScanner(stdoutPipe)
		for scanner.Scan() {
			s.lines <- scanner.Text()
		}
		close(s.lines)
	}()

	h1, h2 := lockKeys()
	if _, err := fmt.Fprintf(stdin, "SELECT pg_try_advisory_lock(%d, %d);\n", h1, h2); err != nil {
		s.release()
		return nil, spawnerr.Wrap(spawnerr.EngineError, err, "requesting advisory lock")
	}

	select {
	case line, ok := <-s.lines:
		if !ok {
			s.release()
			return nil, spawnerr.New(spawnerr.EngineError, "lock session exited before answering: %s", strings.TrimSpace(string(stderr.Bytes())))
		}
		if strings.TrimSpace(line) != "t" {
			s.release()
			return nil, spawnerr.New(spawnerr.Contended, "another spawn process holds the apply lock")
		}
	case <-time.After(lockAcquireTimeout):
		s.release()
		return nil, spawnerr.New(spawnerr.EngineError, "timed out waiting for advisory lock response")
	case <-ctx.Done():
		s.release()
		return nil, spawnerr.Wrap(spawnerr.IOError, ctx.Err(), "acquiring advisory lock")
	}

	e.logger.Debug("advisory lock (%d, %d) acquired", h1, h2)
	return s, nil
}

// release unlocks and shuts the session down. Closing the connection
// releases the advisory lock even if the unlock statement never runs, so
// every exit path ends without the lock held.
func (s *lockSession) release() {
	h1, h2 := lockKeys()
	_, _ = fmt.Fprintf(s.stdin, "SELECT pg_advisory_unlock(%d, %d);\n", h1, h2)
	_ = s.stdin.Close()

	done := make(chan struct{})
	go func() {
		_ = s.cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(killGracePeriod):
		_ = s.cmd.Process.Kill()
		<-done
	}
}

// historyRecord is one row inserted into migration_history.
type historyRecord struct {
	name     string
	activity string
	status   string
	checksum string
	pinHash  string
	duration time.Duration
	note     string
}

// noteLimit caps how much stderr is preserved in a history note.
const noteLimit = 4096

// record inserts exactly one history row, creating the migration row on
// first sight.
func (e *Engine) record(ctx context.Context, rec historyRecord) error {
	schema, err := e.schemaIdent()
	if err != nil {
		return err
	}

	note := rec.note
	if len(note) > noteLimit {
		note = note[:noteLimit] + "..."
	}

	var checksum, pinHash, noteVal interface{}
	if rec.checksum != "" {
		checksum = rec.checksum
	}
	if rec.pinHash != "" {
		pinHash = rec.pinHash
	}
	if note != "" {
		noteVal = note
	}

	sql, err := buildSQL(
		rawSQL("INSERT INTO "), schema, rawSQL(".migration (name, namespace) VALUES ("), rec.name, rawSQL(", 'default') ON CONFLICT (name, namespace) DO NOTHING;\n"),
		rawSQL("INSERT INTO "), schema, rawSQL(".migration_history (migration_id, activity, status, actor, checksum, pin_hash, duration_ms, note)\n"),
		rawSQL("SELECT migration_id, "), rec.activity, rawSQL(", "), rec.status, rawSQL(", "), actor(), rawSQL(", "), checksum, rawSQL(", "), pinHash, rawSQL(", "), rec.duration.Milliseconds(), rawSQL(", "), noteVal, rawSQL("\n"),
		rawSQL("FROM "), schema, rawSQL(".migration WHERE name = "), rec.name, rawSQL(" AND namespace = 'default';\n"),
	)
	if err != nil {
		return err
	}

	if _, err := e.query(ctx, sql); err != nil {
		return spawnerr.Wrap(spawnerr.EngineError, err, "recording history for %s", rec.name)
	}
	return nil
}

// rawSQL marks a fragment as trusted scaffolding in buildSQL calls.
type rawSQL string

// buildSQL assembles a statement from rawSQL/Safe scaffolding and values;
// every value goes through the literal escaper, so engine-issued SQL gets
// the same injection guarantees template output does.
func buildSQL(parts ...interface{}) (string, error) {
	var b strings.Builder
	for _, p := range parts {
		switch t := p.(type) {
		case rawSQL:
			b.WriteString(string(t))
		case sqlval.Safe:
			b.WriteString(string(t))
		default:
			lit, err := sqlval.EscapeLiteral(t)
			if err != nil {
				return "", err
			}
			b.WriteString(string(lit))
		}
	}
	return b.String(), nil
}
