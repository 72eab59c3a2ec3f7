package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// CanonicalEvent represents a versioned domain event.
type CanonicalEvent interface {
	EventType() string
}

// Envelope captures transport metadata for canonical events. It is the body
// stored in the outbox and the message published downstream.
type Envelope struct {
	EventID         uuid.UUID       `json:"event_id"`
	EventType       string          `json:"event_type"`
	OrgID           string          `json:"org_id"`
	Aggregate       string          `json:"aggregate"`
	TimestampMicros int64           `json:"timestamp"`
	CorrelationID   string          `json:"correlation_id,omitempty"`
	Payload         json.RawMessage `json:"payload"`
}

// EnvelopeOption customizes the generated envelope (useful in tests).
type EnvelopeOption func(*Envelope)

// WithEventID overrides the automatically generated event id.
func WithEventID(id uuid.UUID) EnvelopeOption {
	return func(e *Envelope) {
		if id != uuid.Nil {
			e.EventID = id
		}
	}
}

// WithTimestamp overrides the timestamp stored in microseconds.
func WithTimestamp(ts time.Time) EnvelopeOption {
	return func(e *Envelope) {
		if ts.IsZero() {
			return
		}
		e.TimestampMicros = ts.UTC().UnixMicro()
	}
}

// WithCorrelationID ties the event to a request id.
func WithCorrelationID(id string) EnvelopeOption {
	return func(e *Envelope) {
		e.CorrelationID = strings.TrimSpace(id)
	}
}

var (
	errMissingAggregate = errors.New("events: aggregate is required")
	errMissingOrg       = errors.New("events: org_id is required")
	errNilEvent         = errors.New("events: canonical event required")
	nowFunc             = time.Now
)

// NewEnvelope wraps evt for the given tenant and aggregate.
func NewEnvelope(orgID, aggregate string, evt CanonicalEvent, opts ...EnvelopeOption) (Envelope, error) {
	if strings.TrimSpace(orgID) == "" {
		return Envelope{}, errMissingOrg
	}
	if strings.TrimSpace(aggregate) == "" {
		return Envelope{}, errMissingAggregate
	}
	if evt == nil {
		return Envelope{}, errNilEvent
	}
	eventType := strings.TrimSpace(evt.EventType())
	if eventType == "" {
		return Envelope{}, fmt.Errorf("events: event type missing")
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal canonical payload: %w", err)
	}
	env := Envelope{
		EventID:         uuid.New(),
		EventType:       eventType,
		OrgID:           strings.TrimSpace(orgID),
		Aggregate:       strings.TrimSpace(aggregate),
		TimestampMicros: nowFunc().UTC().UnixMicro(),
		Payload:         append([]byte(nil), payload...),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&env)
		}
	}
	return env, nil
}

// Execer is satisfied by pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Append writes the event to the outbox through exec, which is normally the
// transaction that made the change the event describes.
func Append(ctx context.Context, exec Execer, orgID, aggregate string, evt CanonicalEvent, opts ...EnvelopeOption) (Envelope, error) {
	if exec == nil {
		return Envelope{}, fmt.Errorf("events: exec required")
	}
	env, err := NewEnvelope(orgID, aggregate, evt, opts...)
	if err != nil {
		return Envelope{}, err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal envelope: %w", err)
	}
	query := `
		INSERT INTO outbox (id, org_id, aggregate, type, payload)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := exec.Exec(ctx, query, env.EventID, env.OrgID, env.Aggregate, env.EventType, data); err != nil {
		return Envelope{}, fmt.Errorf("events: append event: %w", err)
	}
	return env, nil
}

// DecodeEnvelope parses an outbox payload.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("events: decode envelope: %w", err)
	}
	return env, nil
}
