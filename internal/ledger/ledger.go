// Package ledger keeps an append-only SQLite history of panel refreshes.
// E-paper panels wear with every full refresh, so the count is worth watching.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/klabast/wb-services/abfall-display/internal/app"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS refreshes (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    at          INTEGER NOT NULL,
    pickup_date TEXT    NOT NULL DEFAULT '',
    types       TEXT    NOT NULL DEFAULT '',
    hash        TEXT    NOT NULL DEFAULT '',
    forced      INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    error       TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS refreshes_at ON refreshes (at);
`

// Entry is one stored refresh
type Entry struct {
	ID         int64
	At         time.Time
	PickupDate string
	Types      []string
	Hash       string
	Forced     bool
	Duration   time.Duration
	Error      string
}

// OK reports whether the refresh reached the panel
func (e Entry) OK() bool { return e.Error == "" }

// Summary aggregates the ledger
type Summary struct {
	Total   int64
	Failed  int64
	Forced  int64
	First   time.Time
	Last    time.Time
	LastOK  time.Time
	AvgPush time.Duration
}

// Ledger is a refresh history backed by a SQLite file
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger database at path
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		return nil, errors.Join(fmt.Errorf("create ledger schema: %w", err), db.Close())
	}
	return &Ledger{db: db}, nil
}

// Close closes the database
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record appends r. It satisfies app.RefreshRecorder.
func (l *Ledger) Record(ctx context.Context, r app.RefreshRecord) error {
	var errText string
	if r.Err != nil {
		errText = r.Err.Error()
	}
	_, err := l.db.ExecContext(ctx, `
        INSERT INTO refreshes (at, pickup_date, types, hash, forced, duration_ms, error)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `, r.At.UnixMilli(), r.PickupDate, strings.Join(r.Types, "\x1f"), r.Hash, boolInt(r.Forced), r.Duration.Milliseconds(), errText)
	if err != nil {
		return fmt.Errorf("record refresh: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
        SELECT id, at, pickup_date, types, hash, forced, duration_ms, error
        FROM refreshes
        ORDER BY at DESC, id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query refreshes: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			at, durMs int64
			types     string
			forced    int
		)
		if err := rows.Scan(&e.ID, &at, &e.PickupDate, &types, &e.Hash, &forced, &durMs, &e.Error); err != nil {
			return nil, fmt.Errorf("scan refresh row: %w", err)
		}
		e.At = time.UnixMilli(at)
		if types != "" {
			e.Types = strings.Split(types, "\x1f")
		}
		e.Forced = forced != 0
		e.Duration = time.Duration(durMs) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh rows: %w", err)
	}
	return entries, nil
}

// Summarize aggregates the whole ledger
func (l *Ledger) Summarize(ctx context.Context) (Summary, error) {
	var (
		s                   Summary
		first, last, lastOK sql.NullInt64
		avg                 sql.NullFloat64
	)
	err := l.db.QueryRowContext(ctx, `
        SELECT COUNT(*),
               COALESCE(SUM(error <> ''), 0),
               COALESCE(SUM(forced), 0),
               MIN(at), MAX(at),
               MAX(CASE WHEN error = '' THEN at END),
               AVG(CASE WHEN error = '' THEN duration_ms END)
        FROM refreshes
    `).Scan(&s.Total, &s.Failed, &s.Forced, &first, &last, &lastOK, &avg)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize refreshes: %w", err)
	}
	if first.Valid {
		s.First = time.UnixMilli(first.Int64)
	}
	if last.Valid {
		s.Last = time.UnixMilli(last.Int64)
	}
	if lastOK.Valid {
		s.LastOK = time.UnixMilli(lastOK.Int64)
	}
	if avg.Valid {
		s.AvgPush = time.Duration(avg.Float64 * float64(time.Millisecond))
	}
	return s, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ app.RefreshRecorder = (*Ledger)(nil)
