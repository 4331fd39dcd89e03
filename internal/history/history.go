// Package history archives finished transfers in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wanpull/wanpull/common"
	"github.com/wanpull/wanpull/pkg/wanlib"
)

const schema = `
CREATE TABLE IF NOT EXISTS transfers (
    seq            INTEGER PRIMARY KEY AUTOINCREMENT,
    id             TEXT NOT NULL,
    url            TEXT NOT NULL,
    interface_name TEXT NOT NULL DEFAULT '',
    interface_ip   TEXT NOT NULL,
    path           TEXT NOT NULL DEFAULT '',
    outcome        TEXT NOT NULL,
    reason         TEXT NOT NULL DEFAULT '',
    bytes          INTEGER NOT NULL DEFAULT 0,
    finished_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS transfers_finished ON transfers(finished_at);
`

// CSVHeader is the first row written by ExportCSV.
var CSVHeader = []string{"id", "url", "interface_name", "interface_ip", "path", "outcome", "reason", "bytes", "finished_at"}

// DB is the history archive.
type DB struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error: cannot open history database: %w", err)
	}
	// a single connection serialises writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error: cannot create history schema: %w", err)
	}
	return &DB{db: db}, nil
}

func (h *DB) Close() error { return h.db.Close() }

// Record stores one terminal event.
func (h *DB) Record(ctx context.Context, ev wanlib.TerminalEvent) error {
	at := ev.FinishedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := h.db.ExecContext(ctx, `
        INSERT INTO transfers (id, url, interface_name, interface_ip, path, outcome, reason, bytes, finished_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, string(ev.ID), ev.Request.URL, ev.Request.InterfaceName, ev.Request.InterfaceID,
		ev.Path, string(ev.Outcome), ev.Reason, ev.BytesTransferred, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("error: failed to record history: %w", err)
	}
	return nil
}

// List returns the newest entries first. limit <= 0 returns everything.
func (h *DB) List(ctx context.Context, limit int) ([]common.HistoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := h.db.QueryContext(ctx, `
        SELECT id, url, interface_name, interface_ip, path, outcome, reason, bytes, finished_at
        FROM transfers
        ORDER BY finished_at DESC, seq DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("error: failed to query history: %w", err)
	}
	defer rows.Close()

	var out []common.HistoryEntry
	for rows.Next() {
		var (
			e  common.HistoryEntry
			at int64
		)
		if err := rows.Scan(&e.ID, &e.URL, &e.InterfaceName, &e.InterfaceIP, &e.Path, &e.Outcome, &e.Reason, &e.Bytes, &at); err != nil {
			return nil, fmt.Errorf("error: failed to scan history row: %w", err)
		}
		e.FinishedAt = time.UnixMilli(at)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error: failed to iterate history rows: %w", err)
	}
	return out, nil
}

// Clear deletes every entry and returns how many were removed.
func (h *DB) Clear(ctx context.Context) (int64, error) {
	res, err := h.db.ExecContext(ctx, `DELETE FROM transfers`)
	if err != nil {
		return 0, fmt.Errorf("error: failed to clear history: %w", err)
	}
	return res.RowsAffected()
}

// ExportCSV writes entries as CSV, newest first.
func ExportCSV(w io.Writer, entries []common.HistoryEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write([]string{
			e.ID, e.URL, e.InterfaceName, e.InterfaceIP, e.Path, e.Outcome, e.Reason,
			strconv.FormatInt(e.Bytes, 10), e.FinishedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
