package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
)

// OutboxEntry is one undelivered event row.
type OutboxEntry struct {
	ID        uuid.UUID
	OrgID     string
	Aggregate string
	Type      string
	Payload   json.RawMessage
	Attempts  int
	CreatedAt time.Time
}

// DeliveryHandler emits events to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

type outboxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxStore reads and acknowledges outbox rows. Rows are written by Append
// inside the transaction that produced them.
type OutboxStore struct {
	db outboxDB
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{db: pool}
}

// NewOutboxStoreWithDB allows injecting a mock database for testing.
func NewOutboxStoreWithDB(db outboxDB) *OutboxStore {
	return &OutboxStore{db: db}
}

const fetchPendingSQL = `
	SELECT id, org_id, aggregate, type, payload, attempts, created_at
	FROM outbox
	WHERE delivered_at IS NULL AND dead_at IS NULL AND next_attempt_at <= now()
	ORDER BY created_at
	LIMIT $1`

// FetchPending returns due entries, oldest first.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error) {
	rows, err := s.db.Query(ctx, fetchPendingSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (OutboxEntry, error) {
		var e OutboxEntry
		var payload []byte
		if err := row.Scan(&e.ID, &e.OrgID, &e.Aggregate, &e.Type, &payload, &e.Attempts, &e.CreatedAt); err != nil {
			return e, err
		}
		e.Payload = append(json.RawMessage(nil), payload...)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("events: scan outbox: %w", err)
	}
	return entries, nil
}

// MarkDelivered reports false when another worker acknowledged the row first.
func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := s.db.Exec(ctx, `UPDATE outbox SET delivered_at = now() WHERE id = $1 AND delivered_at IS NULL`, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// MarkFailed records a failed attempt. A zero retryAt parks the row as dead;
// dead rows are never fetched again and never pruned.
func (s *OutboxStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string, retryAt time.Time) error {
	var err error
	if retryAt.IsZero() {
		_, err = s.db.Exec(ctx, `
			UPDATE outbox SET attempts = attempts + 1, last_error = $2, dead_at = now()
			WHERE id = $1 AND delivered_at IS NULL`, id, reason)
	} else {
		_, err = s.db.Exec(ctx, `
			UPDATE outbox SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3
			WHERE id = $1 AND delivered_at IS NULL`, id, reason, retryAt)
	}
	if err != nil {
		return fmt.Errorf("events: mark failed: %w", err)
	}
	return nil
}

// Prune deletes delivered rows older than before. Pending rows are never removed.
func (s *OutboxStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	ct, err := s.db.Exec(ctx, `DELETE FROM outbox WHERE delivered_at IS NOT NULL AND delivered_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("events: prune outbox: %w", err)
	}
	return ct.RowsAffected(), nil
}

type pendingStore interface {
	FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, retryAt time.Time) error
}

// Deliverer polls the outbox and invokes the handler. Failed entries back off
// exponentially from the poll interval and are parked after maxAttempts.
type Deliverer struct {
	store       pendingStore
	handler     DeliveryHandler
	logger      *logging.Logger
	batchSize   int32
	interval    time.Duration
	maxAttempts int
	maxBackoff  time.Duration
	now         func() time.Time
}

func NewDeliverer(store pendingStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:       store,
		handler:     handler,
		logger:      logger,
		batchSize:   25,
		interval:    2 * time.Second,
		maxAttempts: 10,
		maxBackoff:  15 * time.Minute,
		now:         time.Now,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// WithMaxAttempts sets how many failures park an entry. Zero or less keeps the default.
func (d *Deliverer) WithMaxAttempts(n int) *Deliverer {
	if n > 0 {
		d.maxAttempts = n
	}
	return d
}

// Start drains on every tick until ctx is done.
func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Drain delivers one batch and returns how many entries were acknowledged.
func (d *Deliverer) Drain(ctx context.Context) int {
	entries, err := d.store.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return 0
	}
	delivered := 0
	for _, entry := range entries {
		if err := d.handler.Handle(ctx, entry); err != nil {
			d.fail(ctx, entry, err)
			continue
		}
		ok, err := d.store.MarkDelivered(ctx, entry.ID)
		if err != nil {
			d.logger.Error("failed to mark outbox delivered", "error", err, "event_id", entry.ID)
			continue
		}
		if ok {
			delivered++
			d.logger.Debug("outbox delivered", "event_id", entry.ID, "type", entry.Type)
		}
	}
	return delivered
}

func (d *Deliverer) fail(ctx context.Context, entry OutboxEntry, cause error) {
	attempt := entry.Attempts + 1
	var retryAt time.Time
	if attempt < d.maxAttempts {
		retryAt = d.now().Add(d.backoff(attempt))
	}
	if retryAt.IsZero() {
		d.logger.Error("outbox entry parked after repeated failures", "error", cause, "event_id", entry.ID, "type", entry.Type, "org_id", entry.OrgID, "attempts", attempt)
	} else {
		d.logger.Warn("outbox delivery failed", "error", cause, "event_id", entry.ID, "type", entry.Type, "org_id", entry.OrgID, "attempt", attempt, "retry_at", retryAt)
	}
	if err := d.store.MarkFailed(ctx, entry.ID, cause.Error(), retryAt); err != nil {
		d.logger.Error("failed to record outbox failure", "error", err, "event_id", entry.ID)
	}
}

// backoff doubles the poll interval per attempt, capped at maxBackoff.
func (d *Deliverer) backoff(attempt int) time.Duration {
	wait := d.interval
	for i := 1; i < attempt && wait < d.maxBackoff; i++ {
		wait *= 2
	}
	if wait > d.maxBackoff {
		wait = d.maxBackoff
	}
	return wait
}

// MultiHandler fans an entry out to every handler; the first error fails the entry.
type MultiHandler []DeliveryHandler

func (m MultiHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	for _, h := range m {
		if h == nil {
			continue
		}
		if err := h.Handle(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}
