// Package sqlitestore persists the economic event log in a single SQLite file.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/odyssey-erp/odyssey-rea/internal/observation"
)

//go:embed schema.sql
var schemaSQL string

// Store implements observation.EventStore on database/sql with the sqlite3 driver.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies pragmas and schema.
// SQLite allows one writer, so the pool is capped at one connection.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: ping: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlitestore: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an already prepared database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append inserts the event and its resource index rows in one transaction.
func (s *Store) Append(ctx context.Context, e observation.EconomicEvent) (string, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("sqlitestore: marshal event: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("sqlitestore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO economic_events
			(id, action, resource_inventoried_as, to_resource_inventoried_as, input_of, output_of,
			 realization_of, request_key, digest, recorded_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Action), nullable(e.ResourceInventoriedAs), nullable(e.ToResourceInventoriedAs),
		nullable(e.InputOf), nullable(e.OutputOf), nullable(e.RealizationOf), nullable(e.RequestKey),
		e.Digest, e.RecordedAt.UTC().Format(time.RFC3339Nano), string(payload),
	)
	if err != nil {
		if isDuplicateRequest(err) {
			return "", fmt.Errorf("%w: key %s", observation.ErrDuplicateRequest, e.RequestKey)
		}
		return "", fmt.Errorf("sqlitestore: insert event %s: %w", e.ID, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("sqlitestore: event sequence: %w", err)
	}
	for _, id := range e.ResourceIDs() {
		if _, err := tx.ExecContext(ctx, `INSERT INTO economic_event_resources (resource_id, event_seq) VALUES (?, ?)`, id, seq); err != nil {
			return "", fmt.Errorf("sqlitestore: index event %s: %w", e.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("sqlitestore: commit: %w", err)
	}
	return e.ID, nil
}

// HistoryFor returns every event referencing resourceID in append order.
func (s *Store) HistoryFor(ctx context.Context, resourceID string) ([]observation.EconomicEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.payload
		FROM economic_event_resources r
		JOIN economic_events e ON e.seq = r.event_seq
		WHERE r.resource_id = ?
		ORDER BY r.event_seq`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: history %s: %w", resourceID, err)
	}
	return collect(rows)
}

// Event returns a single event by id.
func (s *Store) Event(ctx context.Context, id string) (observation.EconomicEvent, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM economic_events WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return observation.EconomicEvent{}, fmt.Errorf("%w: event %s", observation.ErrNotFound, id)
		}
		return observation.EconomicEvent{}, fmt.Errorf("sqlitestore: get event %s: %w", id, err)
	}
	return decode(payload)
}

// Events lists events matching filter in append order.
func (s *Store) Events(ctx context.Context, filter observation.EventFilter) ([]observation.EconomicEvent, error) {
	var (
		where []string
		args  []any
	)
	if filter.ResourceID != "" {
		where = append(where, "e.seq IN (SELECT event_seq FROM economic_event_resources WHERE resource_id = ?)")
		args = append(args, filter.ResourceID)
	}
	for _, f := range []struct{ column, value string }{
		{"e.input_of", filter.InputOf},
		{"e.output_of", filter.OutputOf},
		{"e.realization_of", filter.RealizationOf},
		{"e.action", string(filter.Action)},
	} {
		if f.value != "" {
			where = append(where, f.column+" = ?")
			args = append(args, f.value)
		}
	}
	query := "SELECT e.payload FROM economic_events e"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY e.seq"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list events: %w", err)
	}
	return collect(rows)
}

// ResourceIDs lists every referenced resource.
func (s *Store) ResourceIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT resource_id FROM economic_event_resources ORDER BY resource_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list resources: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan resource: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func collect(rows *sql.Rows) ([]observation.EconomicEvent, error) {
	defer rows.Close()
	var events []observation.EconomicEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan event: %w", err)
		}
		e, err := decode(payload)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: iterate events: %w", err)
	}
	return events, nil
}

func decode(payload string) (observation.EconomicEvent, error) {
	var e observation.EconomicEvent
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return observation.EconomicEvent{}, fmt.Errorf("sqlitestore: decode event: %w", err)
	}
	return e, nil
}

func isDuplicateRequest(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique && strings.Contains(sqliteErr.Error(), "request_key")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
