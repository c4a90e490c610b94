// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sessionindex keeps a SQLite catalog of the sessions under a
// root, for searching by title and for usage reports across sessions.
//
// The session directories stay the source of truth. [Index.Sync]
// replaces the catalog's rows with a fresh listing, so a deleted or
// corrupt database costs nothing but a rebuild.
package sessionindex

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/parley/lib/ledger"
	"github.com/bureau-foundation/parley/lib/session"
	"github.com/bureau-foundation/parley/lib/sqlitepool"
)

// FileName is the catalog's file name under the parley root.
const FileName = "index.db"

// DefaultSearchLimit caps Search when the caller passes no limit.
const DefaultSearchLimit = 50

const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		id             TEXT PRIMARY KEY,
		title          TEXT NOT NULL,
		created_at     INTEGER NOT NULL,
		last_activity  INTEGER NOT NULL,
		message_count  INTEGER NOT NULL,
		compressed     INTEGER NOT NULL,
		model          TEXT NOT NULL,
		directory      TEXT NOT NULL,
		input_tokens   INTEGER NOT NULL,
		output_tokens  INTEGER NOT NULL,
		cached_tokens  INTEGER NOT NULL,
		requests       INTEGER NOT NULL,
		cost_usd       REAL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_activity ON sessions(last_activity);

	CREATE TABLE IF NOT EXISTS session_models (
		session_id     TEXT NOT NULL,
		model          TEXT NOT NULL,
		input_tokens   INTEGER NOT NULL,
		output_tokens  INTEGER NOT NULL,
		cached_tokens  INTEGER NOT NULL,
		requests       INTEGER NOT NULL,
		cost_usd       REAL,
		PRIMARY KEY (session_id, model)
	);
`

// Index is an open session catalog. It is safe for concurrent use.
type Index struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Path returns the catalog file for a parley root.
func Path(root string) string {
	return filepath.Join(root, FileName)
}

// Open opens or creates the catalog at path.
func Open(path string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sessionindex: %w", err)
	}
	return &Index{pool: pool, logger: logger}, nil
}

// Close closes the catalog.
func (index *Index) Close() error {
	return index.pool.Close()
}

// Refresh lists the sessions under root and syncs the catalog to them.
func (index *Index) Refresh(ctx context.Context, root string) ([]session.Summary, error) {
	summaries, err := session.List(root)
	if err != nil {
		return nil, err
	}
	if err := index.Sync(ctx, summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

// Sync makes the catalog hold exactly summaries: every session is
// upserted, along with its per-model rows, and sessions missing from
// summaries are removed. The change is one transaction.
func (index *Index) Sync(ctx context.Context, summaries []session.Summary) (err error) {
	conn, err := index.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sessionindex: sync: %w", err)
	}
	defer index.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sessionindex: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	if err := sqlitex.ExecuteScript(conn, "CREATE TEMP TABLE IF NOT EXISTS present (id TEXT PRIMARY KEY); DELETE FROM present;", nil); err != nil {
		return fmt.Errorf("sessionindex: staging: %w", err)
	}

	for position := range summaries {
		summary := &summaries[position]
		if err := upsertSession(conn, summary); err != nil {
			return err
		}
		if err := sqlitex.Execute(conn, "INSERT OR IGNORE INTO present (id) VALUES (?)", &sqlitex.ExecOptions{
			Args: []any{summary.ID},
		}); err != nil {
			return fmt.Errorf("sessionindex: staging %s: %w", summary.ID, err)
		}
	}

	removed := 0
	err = sqlitex.Execute(conn, "SELECT id FROM sessions WHERE id NOT IN (SELECT id FROM present)", &sqlitex.ExecOptions{
		ResultFunc: func(*sqlite.Stmt) error {
			removed++
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("sessionindex: counting removed sessions: %w", err)
	}
	if err := sqlitex.ExecuteScript(conn, `
		DELETE FROM session_models WHERE session_id NOT IN (SELECT id FROM present);
		DELETE FROM sessions WHERE id NOT IN (SELECT id FROM present);
		DELETE FROM present;
	`, nil); err != nil {
		return fmt.Errorf("sessionindex: removing stale sessions: %w", err)
	}

	index.logger.Debug("session catalog synced", "sessions", len(summaries), "removed", removed)
	return nil
}

func upsertSession(conn *sqlite.Conn, summary *session.Summary) error {
	total := summary.Costs.Total
	err := sqlitex.Execute(conn, `
		INSERT INTO sessions (id, title, created_at, last_activity, message_count, compressed,
			model, directory, input_tokens, output_tokens, cached_tokens, requests, cost_usd)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			created_at = excluded.created_at,
			last_activity = excluded.last_activity,
			message_count = excluded.message_count,
			compressed = excluded.compressed,
			model = excluded.model,
			directory = excluded.directory,
			input_tokens = excluded.input_tokens,
			output_tokens = excluded.output_tokens,
			cached_tokens = excluded.cached_tokens,
			requests = excluded.requests,
			cost_usd = excluded.cost_usd`,
		&sqlitex.ExecOptions{
			Args: []any{
				summary.ID,
				summary.Title,
				summary.CreatedAt.UnixNano(),
				summary.LastActivity.UnixNano(),
				summary.MessageCount,
				boolInt(summary.Compressed),
				summary.Model,
				summary.Directory,
				total.InputTokens,
				total.OutputTokens,
				total.CachedTokens,
				total.Requests,
				nullableCost(total.CostUSD),
			},
		})
	if err != nil {
		return fmt.Errorf("sessionindex: upserting %s: %w", summary.ID, err)
	}

	if err := sqlitex.Execute(conn, "DELETE FROM session_models WHERE session_id = ?", &sqlitex.ExecOptions{
		Args: []any{summary.ID},
	}); err != nil {
		return fmt.Errorf("sessionindex: clearing models of %s: %w", summary.ID, err)
	}
	for _, name := range summary.Costs.ModelNames() {
		costs := summary.Costs.Models[name]
		err := sqlitex.Execute(conn, `
			INSERT INTO session_models (session_id, model, input_tokens, output_tokens,
				cached_tokens, requests, cost_usd)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{
				Args: []any{
					summary.ID,
					name,
					costs.InputTokens,
					costs.OutputTokens,
					costs.CachedTokens,
					costs.Requests,
					nullableCost(costs.CostUSD),
				},
			})
		if err != nil {
			return fmt.Errorf("sessionindex: recording model %s of %s: %w", name, summary.ID, err)
		}
	}
	return nil
}

// Search returns sessions whose title or ID contains query, ignoring
// ASCII case, most recently active first. An empty query matches
// every session. The returned summaries carry totals but no per-model
// breakdown.
func (index *Index) Search(ctx context.Context, query string, limit int) ([]session.Summary, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	pattern := "%" + escapeLike(query) + "%"

	conn, err := index.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sessionindex: search: %w", err)
	}
	defer index.pool.Put(conn)

	var results []session.Summary
	err = sqlitex.Execute(conn, `
		SELECT id, title, created_at, last_activity, message_count, compressed, model,
			directory, input_tokens, output_tokens, cached_tokens, requests, cost_usd
		FROM sessions
		WHERE title LIKE ?1 ESCAPE '\' OR id LIKE ?1 ESCAPE '\'
		ORDER BY last_activity DESC, id DESC
		LIMIT ?2`,
		&sqlitex.ExecOptions{
			Args: []any{pattern, limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				results = append(results, scanSession(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sessionindex: search %q: %w", query, err)
	}
	return results, nil
}

func scanSession(stmt *sqlite.Stmt) session.Summary {
	// Columns: id(0), title(1), created_at(2), last_activity(3),
	// message_count(4), compressed(5), model(6), directory(7),
	// input_tokens(8), output_tokens(9), cached_tokens(10),
	// requests(11), cost_usd(12)
	summary := session.Summary{
		ID:           stmt.ColumnText(0),
		Title:        stmt.ColumnText(1),
		CreatedAt:    time.Unix(0, stmt.ColumnInt64(2)).UTC(),
		LastActivity: time.Unix(0, stmt.ColumnInt64(3)).UTC(),
		MessageCount: stmt.ColumnInt(4),
		Compressed:   stmt.ColumnInt(5) != 0,
		Model:        stmt.ColumnText(6),
		Directory:    stmt.ColumnText(7),
	}
	summary.Costs.Total = ledger.UsageCosts{
		InputTokens:  stmt.ColumnInt64(8),
		OutputTokens: stmt.ColumnInt64(9),
		CachedTokens: stmt.ColumnInt64(10),
		TotalTokens:  stmt.ColumnInt64(8) + stmt.ColumnInt64(9),
		Requests:     stmt.ColumnInt64(11),
		CostUSD:      scanCost(stmt, 12),
	}
	return summary
}

// Usage aggregates token use and cost per model across the sessions
// active at or after since. A zero since covers every session. A
// model's cost stays nil only when none of its sessions had a known
// price.
func (index *Index) Usage(ctx context.Context, since time.Time) (ledger.SessionCosts, int, error) {
	var threshold int64
	if !since.IsZero() {
		threshold = since.UnixNano()
	}

	conn, err := index.pool.Take(ctx)
	if err != nil {
		return ledger.SessionCosts{}, 0, fmt.Errorf("sessionindex: usage: %w", err)
	}
	defer index.pool.Put(conn)

	var report ledger.SessionCosts
	err = sqlitex.Execute(conn, `
		SELECT m.model, SUM(m.input_tokens), SUM(m.output_tokens), SUM(m.cached_tokens),
			SUM(m.requests), SUM(m.cost_usd)
		FROM session_models m JOIN sessions s ON s.id = m.session_id
		WHERE s.last_activity >= ?
		GROUP BY m.model`,
		&sqlitex.ExecOptions{
			Args: []any{threshold},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				report.Add(ledger.UsageCosts{
					Model:        stmt.ColumnText(0),
					InputTokens:  stmt.ColumnInt64(1),
					OutputTokens: stmt.ColumnInt64(2),
					CachedTokens: stmt.ColumnInt64(3),
					TotalTokens:  stmt.ColumnInt64(1) + stmt.ColumnInt64(2),
					Requests:     stmt.ColumnInt64(4),
					CostUSD:      scanCost(stmt, 5),
				})
				return nil
			},
		})
	if err != nil {
		return ledger.SessionCosts{}, 0, fmt.Errorf("sessionindex: aggregating usage: %w", err)
	}

	sessions := 0
	err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM sessions WHERE last_activity >= ?", &sqlitex.ExecOptions{
		Args: []any{threshold},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			sessions = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return ledger.SessionCosts{}, 0, fmt.Errorf("sessionindex: counting sessions: %w", err)
	}
	return report, sessions, nil
}

// Sessions returns the IDs in the catalog in lexical order.
func (index *Index) Sessions(ctx context.Context) ([]string, error) {
	var ids []string
	err := index.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT id FROM sessions", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				ids = append(ids, stmt.ColumnText(0))
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("sessionindex: listing ids: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func boolInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func nullableCost(cost *float64) any {
	if cost == nil {
		return nil
	}
	return *cost
}

func scanCost(stmt *sqlite.Stmt, column int) *float64 {
	if stmt.ColumnIsNull(column) {
		return nil
	}
	value := stmt.ColumnFloat(column)
	return &value
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(text string) string {
	return likeEscaper.Replace(text)
}
