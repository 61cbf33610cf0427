package agent

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// JournalEntry is one executed remediation command.
type JournalEntry struct {
	Time     time.Time
	Decision string
	Program  string
	Port     int
	Reason   string
	Outcome  string // ok or error
	Detail   string
}

// Journal keeps a local record of remediation commands the worker executed.
type Journal interface {
	Record(ctx context.Context, e JournalEntry) error
	Recent(ctx context.Context, limit int) ([]JournalEntry, error)
	Close() error
}

// SQLiteJournal stores entries in a local sqlite file.
type SQLiteJournal struct {
	db *sql.DB
}

func OpenJournal(path string) (*SQLiteJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal mkdir: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal open: %w", err)
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS remediation_ops(ts INTEGER, decision TEXT, program TEXT, port INTEGER, reason TEXT, outcome TEXT, detail TEXT); CREATE INDEX IF NOT EXISTS idx_remediation_ops_ts ON remediation_ops(ts);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal init schema: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) Record(ctx context.Context, e JournalEntry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := j.db.ExecContext(ctx, `INSERT INTO remediation_ops(ts, decision, program, port, reason, outcome, detail) VALUES(?,?,?,?,?,?,?)`,
		e.Time.Unix(), e.Decision, e.Program, e.Port, e.Reason, e.Outcome, e.Detail)
	return err
}

// Recent returns the newest entries first.
func (j *SQLiteJournal) Recent(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `SELECT ts, decision, program, port, reason, outcome, detail FROM remediation_ops ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JournalEntry
	for rows.Next() {
		var (
			e  JournalEntry
			ts int64
		)
		if err := rows.Scan(&ts, &e.Decision, &e.Program, &e.Port, &e.Reason, &e.Outcome, &e.Detail); err != nil {
			return nil, err
		}
		e.Time = time.Unix(ts, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
