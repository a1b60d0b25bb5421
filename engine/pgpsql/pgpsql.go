// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package pgpsql adapts spawn to PostgreSQL through an external psql
// process: it resolves the configured argv, streams rendered SQL into
// psql's stdin, serializes concurrent applies with a PostgreSQL advisory
// lock, and keeps the migration history tables under the project schema.
package pgpsql

import (
	"fmt"
	"hash/fnv"
	"os/user"
	"strings"
	"sync"

	"github.com/spawnhq/spawn/config"
	"github.com/spawnhq/spawn/logging"
	"github.com/spawnhq/spawn/spawnerr"
	"github.com/spawnhq/spawn/sqlval"
)

// Engine executes SQL against one configured database. It is safe for a
// single command invocation; the resolved provider argv and the bootstrap
// check are cached per Engine, never globally.
type Engine struct {
	db       config.DatabaseConfig
	resolver *Resolver
	logger   logging.Logger

	bootstrapOnce sync.Once
	bootstrapErr  error
}

// New returns an Engine for db.
func New(db config.DatabaseConfig, logger logging.Logger) *Engine {
	return &Engine{
		db:       db,
		resolver: NewResolver(db.Command, logger),
		logger:   logger,
	}
}

// Schema returns the per-project schema the engine keeps its state under.
func (e *Engine) Schema() string { return e.db.SpawnSchema }

// schemaIdent returns the schema as an escaped identifier for embedding
// into engine-issued SQL.
func (e *Engine) schemaIdent() (sqlval.Safe, error) {
	return sqlval.EscapeIdentifier(e.db.SpawnSchema)
}

// lockKeys derives the two 32-bit halves of the advisory lock key from a
// fixed string, so every spawn version contends on the same lock.
func lockKeys() (int32, int32) {
	h := fnv.New64a()
	h.Write([]byte("spawn"))
	s := h.Sum64()
	return int32(uint32(s >> 32)), int32(uint32(s))
}

// actor returns the identity recorded in migration history rows.
func actor() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}

// engineExitError converts a non-zero psql exit into the error surfaced to
// the operator, carrying a truncated stderr tail.
func engineExitError(res execResult) error {
	tail := strings.TrimSpace(string(res.stderr))
	const tailLimit = 2048
	if len(tail) > tailLimit {
		tail = "..." + tail[len(tail)-tailLimit:]
	}
	return spawnerr.New(spawnerr.EngineError, "psql exited %d: %s", res.exit, tail)
}

// quoteArgv renders an argv for debug logging.
func quoteArgv(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = fmt.Sprintf("%q", a)
	}
	return strings.Join(quoted, " ")
}
