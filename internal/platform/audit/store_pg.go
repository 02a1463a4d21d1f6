package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/careguard/internal/platform/db"
)

const insertEventSQL = `
	INSERT INTO audit_event (
		id, actor_id, action, resource_type, resource_id, details,
		ip_address, user_agent, request_id, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

const eventCols = `id, actor_id, action, resource_type, resource_id, details,
	ip_address, user_agent, request_id, created_at`

// PGStore is the PostgreSQL audit store.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func eventArgs(e *Event) []any {
	return []any{
		e.ID, e.ActorID, e.Action, string(e.ResourceType), e.ResourceID, e.Details,
		e.IPAddress, e.UserAgent, e.RequestID, e.CreatedAt,
	}
}

func (s *PGStore) Append(ctx context.Context, e *Event) error {
	if _, err := db.Conn(ctx, s.pool).Exec(ctx, insertEventSQL, eventArgs(e)...); err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

func (s *PGStore) AppendBatch(ctx context.Context, evs []*Event) error {
	b := &pgx.Batch{}
	for _, e := range evs {
		b.Queue(insertEventSQL, eventArgs(e)...)
	}
	br := s.pool.SendBatch(ctx, b)
	for range evs {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("audit: insert event batch: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("audit: close batch: %w", err)
	}
	return nil
}

func (s *PGStore) List(ctx context.Context, f Filter) ([]*Event, error) {
	q := `SELECT ` + eventCols + ` FROM audit_event
		WHERE ($1::uuid IS NULL OR actor_id = $1)
		  AND ($2 = '' OR resource_type = $2)
		  AND ($3 = '' OR resource_id = $3)
		  AND ($4 = '' OR id < $4)
		ORDER BY id DESC
		LIMIT $5`

	rows, err := db.Conn(ctx, s.pool).Query(ctx, q, f.ActorID, f.ResourceType, f.ResourceID, f.Before, f.limit())
	if err != nil {
		return nil, fmt.Errorf("audit: list events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e := &Event{}
		var rt string
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &rt, &e.ResourceID, &e.Details,
			&e.IPAddress, &e.UserAgent, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		e.ResourceType = policyType(rt)
		out = append(out, e)
	}
	return out, rows.Err()
}
