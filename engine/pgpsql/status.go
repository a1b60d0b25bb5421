// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package pgpsql

import (
	"context"
	"sort"

	"github.com/spawnhq/spawn/spawnerr"
)

// lastEntry is the most recent history row for one migration name.
type lastEntry struct {
	activity string
	status   string
}

// lastHistory fetches the newest history row for name, or nil when the
// migration has never been seen.
func (e *Engine) lastHistory(ctx context.Context, name string) (*lastEntry, error) {
	schema, err := e.schemaIdent()
	if err != nil {
		return nil, err
	}

	sql, err := buildSQL(
		rawSQL("SELECT h.activity, h.status FROM "), schema, rawSQL(".migration_history h\n"),
		rawSQL("JOIN "), schema, rawSQL(".migration m ON m.migration_id = h.migration_id\n"),
		rawSQL("WHERE m.name = "), name, rawSQL(" AND m.namespace = 'default'\n"),
		rawSQL("ORDER BY h.migration_history_id DESC LIMIT 1;\n"),
	)
	if err != nil {
		return nil, err
	}

	rows, err := e.query(ctx, sql)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if len(rows[0]) < 2 {
		return nil, spawnerr.New(spawnerr.EngineError, "malformed history row for %s", name)
	}
	return &lastEntry{activity: rows[0][0], status: rows[0][1]}, nil
}

// StatusRow is one line of the status report: a migration known on disk,
// in history, or both.
type StatusRow struct {
	Name      string
	AppliedAt string
	Activity  string
	Status    string
	Checksum  string
	PinHash   string
}

// Status joins the migrations present on disk against the newest history
// row per name, sorted by name (and therefore by timestamp prefix).
func (e *Engine) Status(ctx context.Context, diskNames []string) ([]StatusRow, error) {
	if err := e.Bootstrap(ctx); err != nil {
		return nil, err
	}

	schema, err := e.schemaIdent()
	if err != nil {
		return nil, err
	}

	sql, err := buildSQL(
		rawSQL("SELECT DISTINCT ON (m.name) m.name, h.applied_at, h.activity, h.status, COALESCE(h.checksum, ''), COALESCE(h.pin_hash, '')\n"),
		rawSQL("FROM "), schema, rawSQL(".migration m\n"),
		rawSQL("JOIN "), schema, rawSQL(".migration_history h ON h.migration_id = m.migration_id\n"),
		rawSQL("WHERE m.namespace = 'default'\n"),
		rawSQL("ORDER BY m.name, h.migration_history_id DESC;\n"),
	)
	if err != nil {
		return nil, err
	}

	rows, err := e.query(ctx, sql)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]StatusRow, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return nil, spawnerr.New(spawnerr.EngineError, "malformed status row")
		}
		byName[row[0]] = StatusRow{
			Name:      row[0],
			AppliedAt: row[1],
			Activity:  row[2],
			Status:    row[3],
			Checksum:  row[4],
			PinHash:   row[5],
		}
	}

	seen := map[string]bool{}
	out := make([]StatusRow, 0, len(diskNames)+len(byName))
	for _, name := range diskNames {
		seen[name] = true
		if row, ok := byName[name]; ok {
			out = append(out, row)
			continue
		}
		out = append(out, StatusRow{Name: name})
	}
	// History rows whose migration directory is gone still show up, so
	// the operator notices drift between disk and database.
	for name, row := range byName {
		if !seen[name] {
			out = append(out, row)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
