package database

import (
	"context"
	"fmt"
	"time"
)

// QueryEntry is one row of the query log.
type QueryEntry struct {
	ID       int64         `json:"id"`
	Time     time.Time     `json:"time"`
	Client   string        `json:"client"`
	QName    string        `json:"qname"`
	QType    string        `json:"qtype"`
	RCode    string        `json:"rcode"`
	Cached   bool          `json:"cached"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// InsertQueries stores entries in a single transaction.
func (db *DB) InsertQueries(ctx context.Context, entries []QueryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO queries (ts, client, qname, qtype, rcode, cached, duration_us, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare query insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		_, err := stmt.ExecContext(ctx,
			e.Time.UnixNano(), e.Client, e.QName, e.QType, e.RCode,
			e.Cached, e.Duration.Microseconds(), e.Error,
		)
		if err != nil {
			return fmt.Errorf("failed to insert query %s: %w", e.QName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit queries: %w", err)
	}
	return nil
}

// RecentQueries returns up to limit entries, newest first.
func (db *DB) RecentQueries(ctx context.Context, limit int) ([]QueryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, ts, client, qname, qtype, rcode, cached, duration_us, error
		FROM queries
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query log: %w", err)
	}
	defer rows.Close()

	out := make([]QueryEntry, 0, limit)
	for rows.Next() {
		var (
			e    QueryEntry
			ts   int64
			durU int64
		)
		if err := rows.Scan(&e.ID, &ts, &e.Client, &e.QName, &e.QType, &e.RCode, &e.Cached, &durU, &e.Error); err != nil {
			return nil, fmt.Errorf("failed to scan query row: %w", err)
		}
		e.Time = time.Unix(0, ts).UTC()
		e.Duration = time.Duration(durU) * time.Microsecond
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate query rows: %w", err)
	}
	return out, nil
}

// PruneBefore deletes entries older than t and returns how many were removed.
func (db *DB) PruneBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM queries WHERE ts < ?", t.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune queries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned queries: %w", err)
	}
	return n, nil
}

// CountQueries returns the number of stored entries.
func (db *DB) CountQueries(ctx context.Context) (int64, error) {
	var n int64
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM queries").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queries: %w", err)
	}
	return n, nil
}
