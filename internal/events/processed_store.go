package events

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore remembers which consumer handled which event id, keyed by
// (consumer, event_id). Redelivered outbox entries are skipped by consumers
// that check it first.
type ProcessedStore struct {
	db rowQuerier
}

func NewProcessedStore(pool *pgxpool.Pool) *ProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &ProcessedStore{db: pool}
}

// NewProcessedStoreWithDB allows injecting a mock database for testing.
func NewProcessedStoreWithDB(db rowQuerier) *ProcessedStore {
	if db == nil {
		panic("events: exec required")
	}
	return &ProcessedStore{db: db}
}

func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	var seen bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_events WHERE consumer = $1 AND event_id = $2)`,
		consumer, eventID,
	).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("events: check processed: %w", err)
	}
	return seen, nil
}

// MarkProcessed returns false when the pair was already recorded.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	ct, err := s.db.Exec(ctx,
		`INSERT INTO processed_events (consumer, event_id) VALUES ($1, $2) ON CONFLICT (consumer, event_id) DO NOTHING`,
		consumer, eventID,
	)
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// Prune forgets events processed before the cutoff. Outbox rows that old are
// already delivered and pruned, so they cannot be redelivered.
func (s *ProcessedStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	ct, err := s.db.Exec(ctx, `DELETE FROM processed_events WHERE processed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("events: prune processed: %w", err)
	}
	return ct.RowsAffected(), nil
}
