// Package durablelog implements the durable event log (C2): one
// write-batched, indexed, append-only store per project, backed by an
// embedded SQLite database.
package durablelog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migsqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/codeready-toolchain/runtimescope/pkg/eventmodel"
)

//go:embed migrations
var migrationsFS embed.FS

// Default batching parameters (spec §4.2).
const (
	DefaultBatchSize     = 50
	DefaultFlushInterval = 100 * time.Millisecond

	// MaxReadLimit is the absolute maximum number of rows any Get call
	// returns, regardless of the caller-requested limit.
	MaxReadLimit = 1000

	// DefaultReadLimit is used when the caller does not specify one.
	DefaultReadLimit = 1000
)

// Config controls the write-batching discipline of a Log.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns the spec's default batch size and flush interval.
func DefaultConfig() Config {
	return Config{BatchSize: DefaultBatchSize, FlushInterval: DefaultFlushInterval}
}

// Filter narrows a Get/Count call. Zero values mean "no restriction".
type Filter struct {
	Project   string
	SessionID string
	Kinds     []eventmodel.Kind
	Since     int64
	Until     int64
	Limit     int
	Offset    int
}

// Log is the per-project durable event log backed by events.db.
type Log struct {
	db     *sql.DB
	cfg    Config
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending []pendingEvent
	project string

	flushErrLogged bool
	flushErrCount  atomic.Int64
}

type pendingEvent struct {
	e       eventmodel.Event
	project string
}

// Open creates (migrating if needed) and returns a Log backed by the SQLite
// file at path. project is the project this log belongs to.
func Open(ctx context.Context, path, project string, cfg Config) (*Log, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer discipline; SQLite serializes writes anyway

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	l := &Log{db: db, cfg: cfg, cancel: cancel, project: project}

	l.wg.Add(1)
	go l.flushLoop(runCtx)

	return l, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := migsqlite.WithInstance(db, &migsqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return sourceDriver.Close()
}

// Add enqueues an event for write-batched persistence. When the pending
// batch reaches BatchSize, Add flushes it synchronously before returning;
// otherwise it returns immediately and the event is durable only after the
// next timer flush.
func (l *Log) Add(e eventmodel.Event, project string) {
	l.mu.Lock()
	l.pending = append(l.pending, pendingEvent{e: e, project: project})
	shouldFlush := len(l.pending) >= l.cfg.BatchSize
	l.mu.Unlock()

	if shouldFlush {
		l.flush(context.Background())
	}
}

func (l *Log) flushLoop(ctx context.Context) {
	defer l.wg.Done()
	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.flush(context.Background())
			return
		case <-ticker.C:
			l.flush(ctx)
		}
	}
}

// flush performs one atomic multi-row insert of the pending batch. The
// event_id+session_id UNIQUE constraint suppresses duplicates without
// aborting the rest of the batch (INSERT OR IGNORE). A flush error is
// logged once and the batch is dropped; ingestion never blocks on
// persistence failures (spec §4.2, §7 storage error kind).
func (l *Log) flush(ctx context.Context) {
	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	l.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		l.logFlushError(err)
		return
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO events (event_id, session_id, project, kind, timestamp, data_blob)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		l.logFlushError(err)
		return
	}

	for _, pe := range batch {
		if _, err := stmt.ExecContext(ctx, pe.e.EventID, pe.e.SessionID, pe.project, string(pe.e.Kind), pe.e.Timestamp, string(pe.e.Data)); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			l.logFlushError(err)
			return
		}
	}
	_ = stmt.Close()

	if err := tx.Commit(); err != nil {
		l.logFlushError(err)
		return
	}
	l.flushErrLogged = false
}

func (l *Log) logFlushError(err error) {
	l.flushErrCount.Add(1)
	if !l.flushErrLogged {
		slog.Error("durable log flush failed, batch dropped", "error", err)
		l.flushErrLogged = true
	}
}

// FlushErrorCount returns the number of flush attempts that have failed
// since the log was opened, for health reporting.
func (l *Log) FlushErrorCount() int64 { return l.flushErrCount.Load() }

// Get returns events matching f, ascending by timestamp, capped at
// MaxReadLimit.
func (l *Log) Get(ctx context.Context, f Filter) ([]eventmodel.Event, error) {
	query, args := buildSelect(f, false)
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []eventmodel.Event
	for rows.Next() {
		var e eventmodel.Event
		var kind, data string
		if err := rows.Scan(&e.EventID, &e.SessionID, &kind, &e.Timestamp, &data); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		e.Kind = eventmodel.Kind(kind)
		e.Data = json.RawMessage(data)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the total number of events matching f, ignoring Limit/Offset.
func (l *Log) Count(ctx context.Context, f Filter) (int, error) {
	query, args := buildSelect(f, true)
	var count int
	if err := l.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

func buildSelect(f Filter, countOnly bool) (string, []interface{}) {
	var b strings.Builder
	if countOnly {
		b.WriteString("SELECT COUNT(*) FROM events WHERE 1=1")
	} else {
		b.WriteString("SELECT event_id, session_id, kind, timestamp, data_blob FROM events WHERE 1=1")
	}

	var args []interface{}
	if f.Project != "" {
		b.WriteString(" AND project = ?")
		args = append(args, f.Project)
	}
	if f.SessionID != "" {
		b.WriteString(" AND session_id = ?")
		args = append(args, f.SessionID)
	}
	if len(f.Kinds) > 0 {
		b.WriteString(" AND kind IN (")
		for i, k := range f.Kinds {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString("?")
			args = append(args, string(k))
		}
		b.WriteString(")")
	}
	if f.Since > 0 {
		b.WriteString(" AND timestamp >= ?")
		args = append(args, f.Since)
	}
	if f.Until > 0 {
		b.WriteString(" AND timestamp <= ?")
		args = append(args, f.Until)
	}

	if !countOnly {
		limit := f.Limit
		if limit <= 0 {
			limit = DefaultReadLimit
		}
		if limit > MaxReadLimit {
			limit = MaxReadLimit
		}
		b.WriteString(" ORDER BY timestamp ASC LIMIT ? OFFSET ?")
		args = append(args, limit, f.Offset)
	}

	return b.String(), args
}

// UpsertSession creates or updates a session row on handshake.
func (l *Log) UpsertSession(ctx context.Context, s eventmodel.Session) error {
	var buildMeta []byte
	if s.BuildMeta != nil {
		var err error
		buildMeta, err = json.Marshal(s.BuildMeta)
		if err != nil {
			return fmt.Errorf("marshal build meta: %w", err)
		}
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, project, app_name, connected_at, sdk_version, event_count, is_connected, build_meta_blob)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			is_connected = 1,
			connected_at = excluded.connected_at,
			sdk_version = excluded.sdk_version`,
		s.SessionID, s.Project, s.AppName, s.ConnectedAt, s.SDKVersion, s.EventCount, buildMeta)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// MarkDisconnected flips is_connected and stamps disconnected_at.
func (l *Log) MarkDisconnected(ctx context.Context, sessionID string, at int64) error {
	_, err := l.db.ExecContext(ctx, `
		UPDATE sessions SET is_connected = 0, disconnected_at = ? WHERE session_id = ?`,
		at, sessionID)
	if err != nil {
		return fmt.Errorf("mark session disconnected: %w", err)
	}
	return nil
}

// IncrementEventCount bumps the running event_count for a session.
func (l *Log) IncrementEventCount(ctx context.Context, sessionID string) error {
	_, err := l.db.ExecContext(ctx, `UPDATE sessions SET event_count = event_count + 1 WHERE session_id = ?`, sessionID)
	return err
}

// SaveSessionMetrics upserts the opaque metrics blob for a session snapshot.
func (l *Log) SaveSessionMetrics(ctx context.Context, sessionID, project string, metrics json.RawMessage, createdAt int64) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO session_metrics (session_id, project, metrics_blob, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET metrics_blob = excluded.metrics_blob, created_at = excluded.created_at`,
		sessionID, project, string(metrics), createdAt)
	if err != nil {
		return fmt.Errorf("save session metrics: %w", err)
	}
	return nil
}

// SessionHistory returns up to limit session_metrics rows for a project,
// most recent first.
func (l *Log) SessionHistory(ctx context.Context, project string, limit int) ([]json.RawMessage, error) {
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT metrics_blob FROM session_metrics WHERE project = ? ORDER BY created_at DESC LIMIT ?`,
		project, limit)
	if err != nil {
		return nil, fmt.Errorf("query session history: %w", err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		out = append(out, json.RawMessage(blob))
	}
	return out, rows.Err()
}

// DeleteBefore removes every event with timestamp < ts, returning the number
// of affected rows.
func (l *Log) DeleteBefore(ctx context.Context, ts int64) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM events WHERE timestamp < ?`, ts)
	if err != nil {
		return 0, fmt.Errorf("delete before: %w", err)
	}
	return res.RowsAffected()
}

// DeleteSessionMetricsBefore removes every session_metrics row created
// before ts, returning the number of affected rows. Pairs with DeleteBefore
// so the retention sweep ages out persisted snapshots at the same cutoff as
// raw events.
func (l *Log) DeleteSessionMetricsBefore(ctx context.Context, ts int64) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM session_metrics WHERE created_at < ?`, ts)
	if err != nil {
		return 0, fmt.Errorf("delete session metrics before: %w", err)
	}
	return res.RowsAffected()
}

// Compact triggers storage reclamation.
func (l *Log) Compact(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close performs a final flush and closes the underlying database.
func (l *Log) Close() error {
	l.cancel()
	l.wg.Wait()
	return l.db.Close()
}
