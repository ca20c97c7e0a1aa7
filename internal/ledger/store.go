package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/aceteam-ai/shiftclock/internal/timelog"
)

// The partial unique index enforces at most one non-completed log per job
// even when several service processes share a database.
const schema = `
CREATE TABLE IF NOT EXISTS time_logs (
    id              TEXT PRIMARY KEY,
    job_id          TEXT NOT NULL,
    status          TEXT NOT NULL,
    start_time      TEXT NOT NULL,
    total_seconds   BIGINT NOT NULL DEFAULT 0,
    last_resumed_at TEXT,
    end_time        TEXT,
    notes           TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL,
    synced          INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_time_logs_job ON time_logs(job_id, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_time_logs_one_active ON time_logs(job_id) WHERE status <> 'completed';
CREATE INDEX IF NOT EXISTS idx_time_logs_unsynced ON time_logs(synced) WHERE synced = 0;
`

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

const logColumns = `id, job_id, status, start_time, total_seconds, last_resumed_at, end_time, notes, created_at`

// Store persists time logs in SQLite (a file path or ":memory:") or
// PostgreSQL (a postgres:// DSN).
type Store struct {
	db       *sql.DB
	postgres bool
}

// OpenStore opens (or creates) the time log database and runs migrations.
func OpenStore(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	postgres := strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")

	driver := "sqlite"
	if postgres {
		driver = "postgres"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open time log db: %w", err)
	}

	if postgres {
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
	} else {
		// a single connection keeps ":memory:" databases shared and
		// serialises writers
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, postgres: postgres}, nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func formatNullTS(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTS(*t), Valid: true}
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(tsLayout, s)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Insert stores a new log. A second non-completed log for the same job is
// rejected with timelog.ErrActiveLogExists.
func (s *Store) Insert(ctx context.Context, l timelog.TimeLog) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO time_logs (`+logColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		l.ID, l.JobID, string(l.Status), formatTS(l.StartTime), l.TotalSeconds,
		formatNullTS(l.LastResumedAt), formatNullTS(l.EndTime), l.Notes, formatTS(l.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return timelog.ErrActiveLogExists
		}
		return fmt.Errorf("insert time log: %w", err)
	}
	return nil
}

// Update overwrites a log's mutable fields.
func (s *Store) Update(ctx context.Context, l timelog.TimeLog) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE time_logs
		SET status = ?, start_time = ?, total_seconds = ?, last_resumed_at = ?, end_time = ?, notes = ?
		WHERE id = ?`),
		string(l.Status), formatTS(l.StartTime), l.TotalSeconds,
		formatNullTS(l.LastResumedAt), formatNullTS(l.EndTime), l.Notes, l.ID,
	)
	if err != nil {
		return fmt.Errorf("update time log %s: %w", l.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update time log %s: %w", l.ID, timelog.ErrNotFound)
	}
	return nil
}

// Active returns the job's non-completed log, if any.
func (s *Store) Active(ctx context.Context, jobID string) (timelog.TimeLog, bool, error) {
	logs, err := s.query(ctx, `
		SELECT `+logColumns+` FROM time_logs
		WHERE job_id = ? AND status <> 'completed'
		LIMIT 1`, jobID)
	if err != nil {
		return timelog.TimeLog{}, false, err
	}
	if len(logs) == 0 {
		return timelog.TimeLog{}, false, nil
	}
	return logs[0], true, nil
}

// List returns every log for the job, newest first.
func (s *Store) List(ctx context.Context, jobID string) ([]timelog.TimeLog, error) {
	return s.query(ctx, `
		SELECT `+logColumns+` FROM time_logs
		WHERE job_id = ?
		ORDER BY created_at DESC, id DESC`, jobID)
}

// QueryUnsynced returns up to limit completed logs not yet handed to the
// syncer, oldest first.
func (s *Store) QueryUnsynced(ctx context.Context, limit int) ([]timelog.TimeLog, error) {
	return s.query(ctx, `
		SELECT `+logColumns+` FROM time_logs
		WHERE synced = 0 AND status = 'completed'
		ORDER BY end_time ASC, id ASC
		LIMIT ?`, limit)
}

// MarkSynced flags the given logs as delivered.
func (s *Store) MarkSynced(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind("UPDATE time_logs SET synced = 1 WHERE id = ?"))
	if err != nil {
		return fmt.Errorf("prepare update: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("mark synced id=%s: %w", id, err)
		}
	}

	return tx.Commit()
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]timelog.TimeLog, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query time logs: %w", err)
	}
	defer rows.Close()

	var logs []timelog.TimeLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func scanLog(rows *sql.Rows) (timelog.TimeLog, error) {
	var l timelog.TimeLog
	var status, start, created string
	var resumed, end sql.NullString
	if err := rows.Scan(&l.ID, &l.JobID, &status, &start, &l.TotalSeconds, &resumed, &end, &l.Notes, &created); err != nil {
		return l, fmt.Errorf("scan row: %w", err)
	}
	l.Status = timelog.Status(status)

	var err error
	if l.StartTime, err = parseTS(start); err != nil {
		return l, fmt.Errorf("time log %s start_time: %w", l.ID, err)
	}
	if l.CreatedAt, err = parseTS(created); err != nil {
		return l, fmt.Errorf("time log %s created_at: %w", l.ID, err)
	}
	if resumed.Valid {
		t, err := parseTS(resumed.String)
		if err != nil {
			return l, fmt.Errorf("time log %s last_resumed_at: %w", l.ID, err)
		}
		l.LastResumedAt = &t
	}
	if end.Valid {
		t, err := parseTS(end.String)
		if err != nil {
			return l, fmt.Errorf("time log %s end_time: %w", l.ID, err)
		}
		l.EndTime = &t
	}
	return l, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
