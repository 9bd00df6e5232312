// Package pgstore persists the economic event log in PostgreSQL.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-rea/internal/observation"
	"github.com/odyssey-erp/odyssey-rea/internal/platform/db"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// Store implements observation.EventStore on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

// Append inserts the event and its resource index rows in one transaction.
func (s *Store) Append(ctx context.Context, e observation.EconomicEvent) (string, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("pgstore: marshal event: %w", err)
	}
	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var seq int64
		err := tx.QueryRow(ctx, `
			INSERT INTO economic_events
				(id, action, resource_inventoried_as, to_resource_inventoried_as, input_of, output_of,
				 realization_of, request_key, digest, recorded_at, payload)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING seq`,
			e.ID, string(e.Action), nullable(e.ResourceInventoriedAs), nullable(e.ToResourceInventoriedAs),
			nullable(e.InputOf), nullable(e.OutputOf), nullable(e.RealizationOf), nullable(e.RequestKey),
			e.Digest, e.RecordedAt, payload,
		).Scan(&seq)
		if err != nil {
			return err
		}
		for _, id := range e.ResourceIDs() {
			if _, err := tx.Exec(ctx, `INSERT INTO economic_event_resources (resource_id, event_seq) VALUES ($1, $2)`, id, seq); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && strings.Contains(pgErr.ConstraintName, "request_key") {
			return "", fmt.Errorf("%w: key %s", observation.ErrDuplicateRequest, e.RequestKey)
		}
		return "", fmt.Errorf("pgstore: append event %s: %w", e.ID, err)
	}
	return e.ID, nil
}

// HistoryFor returns every event referencing resourceID in append order.
func (s *Store) HistoryFor(ctx context.Context, resourceID string) ([]observation.EconomicEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.payload
		FROM economic_event_resources r
		JOIN economic_events e ON e.seq = r.event_seq
		WHERE r.resource_id = $1
		ORDER BY r.event_seq`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: history %s: %w", resourceID, err)
	}
	return collect(rows)
}

// Event returns a single event by id.
func (s *Store) Event(ctx context.Context, id string) (observation.EconomicEvent, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM economic_events WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return observation.EconomicEvent{}, fmt.Errorf("%w: event %s", observation.ErrNotFound, id)
		}
		return observation.EconomicEvent{}, fmt.Errorf("pgstore: get event %s: %w", id, err)
	}
	return decode(payload)
}

// Events lists events matching filter in append order.
func (s *Store) Events(ctx context.Context, filter observation.EventFilter) ([]observation.EconomicEvent, error) {
	query, args := buildEventsQuery(filter)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list events: %w", err)
	}
	return collect(rows)
}

// ResourceIDs lists every referenced resource.
func (s *Store) ResourceIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT resource_id FROM economic_event_resources ORDER BY resource_id`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list resources: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("pgstore: list resources: %w", err)
	}
	return ids, nil
}

func buildEventsQuery(filter observation.EventFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if filter.ResourceID != "" {
		add("e.seq IN (SELECT event_seq FROM economic_event_resources WHERE resource_id = ?)", filter.ResourceID)
	}
	if filter.InputOf != "" {
		add("e.input_of = ?", filter.InputOf)
	}
	if filter.OutputOf != "" {
		add("e.output_of = ?", filter.OutputOf)
	}
	if filter.RealizationOf != "" {
		add("e.realization_of = ?", filter.RealizationOf)
	}
	if filter.Action != "" {
		add("e.action = ?", string(filter.Action))
	}
	var sb strings.Builder
	sb.WriteString("SELECT e.payload FROM economic_events e")
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY e.seq")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sb.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}
	return sb.String(), args
}

func collect(rows pgx.Rows) ([]observation.EconomicEvent, error) {
	payloads, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("pgstore: scan events: %w", err)
	}
	events := make([]observation.EconomicEvent, 0, len(payloads))
	for _, p := range payloads {
		e, err := decode(p)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func decode(payload []byte) (observation.EconomicEvent, error) {
	var e observation.EconomicEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return observation.EconomicEvent{}, fmt.Errorf("pgstore: decode event: %w", err)
	}
	return e, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
