package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mcpsentry/mcpsentry/internal/errs"
	"github.com/mcpsentry/mcpsentry/internal/model"
	"github.com/mcpsentry/mcpsentry/internal/obs"
)

// writeQueueSize bounds the async write channel; a full queue drops the
// write rather than blocking the proxy's hot path. Audit writes are
// best-effort.
const writeQueueSize = 256

// Store is the embedded SQLite-backed audit log.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	metrics *obs.ProxyMetrics

	writes chan model.AuditEntry
	flush  chan chan struct{}
	done   chan struct{}
	cancel context.CancelFunc
}

// NewStore opens (creating if needed) a SQLite database at path, applies
// migrations, and starts the async write loop. path may be ":memory:" for
// tests.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &errs.PersistenceError{Err: fmt.Errorf("opening audit db: %w", err)}
	}
	db.SetMaxOpenConns(8)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, &errs.PersistenceError{Err: err}
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		return nil, &errs.PersistenceError{Err: err}
	}
	if err := applyMigrations(db); err != nil {
		return nil, &errs.PersistenceError{Err: fmt.Errorf("applying migrations: %w", err)}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		db:     db,
		logger: logger,
		writes: make(chan model.AuditEntry, writeQueueSize),
		flush:  make(chan chan struct{}),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go s.writeLoop(ctx)
	return s, nil
}

// WithMetrics attaches Prometheus counters to the store; nil is valid and
// disables metrics recording.
func (s *Store) WithMetrics(m *obs.ProxyMetrics) *Store {
	s.metrics = m
	return s
}

// Log enqueues an entry for async, best-effort persistence. It never
// blocks: a full queue drops the entry with a logged warning.
func (s *Store) Log(entry model.AuditEntry) {
	select {
	case s.writes <- entry:
	default:
		s.logger.Warn("audit write queue full, dropping entry", "server", entry.ServerName, "tool", entry.ToolName)
		s.metrics.ObserveAuditWriteError()
	}
}

func (s *Store) writeLoop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-s.writes:
			if err := s.insert(e); err != nil {
				s.logger.Error("audit write failed", "error", err)
				s.metrics.ObserveAuditWriteError()
			}
		case ack := <-s.flush:
			s.drain()
			close(ack)
		}
	}
}

// drain synchronously writes everything currently queued.
func (s *Store) drain() {
	for {
		select {
		case e := <-s.writes:
			if err := s.insert(e); err != nil {
				s.logger.Error("audit write failed", "error", err)
				s.metrics.ObserveAuditWriteError()
			}
		default:
			return
		}
	}
}

func (s *Store) insert(e model.AuditEntry) error {
	row := FromModel(e)
	_, err := s.db.Exec(
		`INSERT INTO audit_log (timestamp_ms, server_name, tool_name, tool_args, result, truncated, blocked, block_reason, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.TimestampMs, row.ServerName, row.ToolName, row.ToolArgs, row.Result,
		row.Truncated, row.Blocked, row.BlockReason, row.DurationMs,
	)
	return err
}

// QueryOpts filters a Query call. Zero values mean "no filter" except
// Limit, which defaults to 100.
type QueryOpts struct {
	ServerName string
	ToolName   string
	Blocked    *bool
	Limit      int
	Offset     int
}

// Query returns matching entries ordered by id descending.
func (s *Store) Query(opts QueryOpts) ([]model.AuditEntry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	var where []string
	var args []any
	if opts.ServerName != "" {
		where = append(where, "server_name = ?")
		args = append(args, opts.ServerName)
	}
	if opts.ToolName != "" {
		where = append(where, "tool_name = ?")
		args = append(args, opts.ToolName)
	}
	if opts.Blocked != nil {
		where = append(where, "blocked = ?")
		args = append(args, *opts.Blocked)
	}

	query := "SELECT id, timestamp_ms, server_name, tool_name, tool_args, result, truncated, blocked, block_reason, duration_ms FROM audit_log"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, &errs.PersistenceError{Err: err}
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var (
			id, ts, durationMs                     int64
			serverName, toolName, toolArgs, result string
			blockReason                            string
			truncated, blocked                     bool
		)
		if err := rows.Scan(&id, &ts, &serverName, &toolName, &toolArgs, &result, &truncated, &blocked, &blockReason, &durationMs); err != nil {
			return nil, &errs.PersistenceError{Err: err}
		}
		out = append(out, model.AuditEntry{
			ID:          id,
			Timestamp:   time.UnixMilli(ts).UTC(),
			ServerName:  serverName,
			ToolName:    toolName,
			ToolArgs:    []byte(toolArgs),
			Result:      []byte(result),
			Truncated:   truncated,
			Blocked:     blocked,
			BlockReason: blockReason,
			DurationMs:  durationMs,
		})
	}
	return out, rows.Err()
}

// PutRule upserts a persisted rule record into the proxy_rule table. A new
// rule takes the next insertion_order so priority ties keep breaking in
// insertion order; an update keeps the rule's original slot.
func (s *Store) PutRule(r model.Rule) error {
	_, err := s.db.Exec(
		`INSERT INTO proxy_rule (id, kind, pattern, scope, priority, enabled, reason, max_calls, window_seconds, insertion_order)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(insertion_order), 0) + 1 FROM proxy_rule))
		 ON CONFLICT(id) DO UPDATE SET kind=excluded.kind, pattern=excluded.pattern, scope=excluded.scope,
			priority=excluded.priority, enabled=excluded.enabled, reason=excluded.reason,
			max_calls=excluded.max_calls, window_seconds=excluded.window_seconds`,
		r.ID, string(r.Kind), r.Pattern, r.Scope, r.Priority, r.Enabled, r.Reason, r.MaxCalls, r.WindowSeconds,
	)
	if err != nil {
		return &errs.PersistenceError{Err: err}
	}
	return nil
}

// DeleteRule removes a persisted rule by ID.
func (s *Store) DeleteRule(id string) error {
	if _, err := s.db.Exec(`DELETE FROM proxy_rule WHERE id = ?`, id); err != nil {
		return &errs.PersistenceError{Err: err}
	}
	return nil
}

// LoadRules returns every persisted rule ordered by insertion order.
func (s *Store) LoadRules() ([]model.Rule, error) {
	rows, err := s.db.Query(`SELECT id, kind, pattern, scope, priority, enabled, reason, max_calls, window_seconds FROM proxy_rule ORDER BY insertion_order ASC`)
	if err != nil {
		return nil, &errs.PersistenceError{Err: err}
	}
	defer rows.Close()

	var out []model.Rule
	for rows.Next() {
		var r model.Rule
		var kind string
		if err := rows.Scan(&r.ID, &kind, &r.Pattern, &r.Scope, &r.Priority, &r.Enabled, &r.Reason, &r.MaxCalls, &r.WindowSeconds); err != nil {
			return nil, &errs.PersistenceError{Err: err}
		}
		r.Kind = model.RuleKind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Flush blocks until every entry queued before the call has been written,
// for tests that need to observe a just-Logged entry synchronously.
func (s *Store) Flush() {
	ack := make(chan struct{})
	select {
	case s.flush <- ack:
		<-ack
	case <-s.done:
	}
}

// Close stops the write loop and closes the database.
func (s *Store) Close() error {
	s.cancel()
	<-s.done
	return s.db.Close()
}
