// Package audit keeps an immutable trail of appointment changes.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// EventType represents the kind of change recorded.
type EventType string

const (
	EventAppointmentBooked        EventType = "appointment.booked"
	EventAppointmentRescheduled   EventType = "appointment.rescheduled"
	EventAppointmentCancelled     EventType = "appointment.cancelled"
	EventAppointmentStatusChanged EventType = "appointment.status_changed"
)

// Event represents an immutable audit record.
type Event struct {
	ID            string          `json:"id"`
	EventType     EventType       `json:"event_type"`
	OrgID         string          `json:"org_id"`
	AppointmentID string          `json:"appointment_id"`
	Actor         string          `json:"actor,omitempty"`
	ChangedFields []string        `json:"changed_fields,omitempty"`
	Details       json.RawMessage `json:"details,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Service handles audit logging.
type Service struct {
	db *sql.DB
}

// NewService creates a new audit service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// LogEvent records an audit event.
func (s *Service) LogEvent(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if len(event.Details) == 0 {
		event.Details = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO audit_events (
			id, event_type, org_id, appointment_id, actor,
			changed_fields, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.EventType),
		event.OrgID,
		event.AppointmentID,
		nullString(event.Actor),
		pq.Array(event.ChangedFields),
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to log event: %w", err)
	}
	return nil
}

// LogAppointmentChange records one write on an appointment.
func (s *Service) LogAppointmentChange(ctx context.Context, orgID, appointmentID string, eventType EventType, changed []string, details any) error {
	var raw json.RawMessage
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("audit: marshal details: %w", err)
		}
		raw = b
	}
	return s.LogEvent(ctx, Event{
		EventType:     eventType,
		OrgID:         orgID,
		AppointmentID: appointmentID,
		ChangedFields: changed,
		Details:       raw,
	})
}

// Filter specifies criteria for querying audit events.
type Filter struct {
	OrgID         string
	AppointmentID string
	EventType     EventType
	StartTime     time.Time
	EndTime       time.Time
	Limit         int
	Offset        int
}

// QueryEvents retrieves audit events with filters, newest first.
func (s *Service) QueryEvents(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT id, event_type, org_id, appointment_id, actor,
			   changed_fields, details, created_at
		FROM audit_events
		WHERE org_id = $1
	`
	args := []interface{}{filter.OrgID}
	argIdx := 2

	if filter.AppointmentID != "" {
		query += fmt.Sprintf(" AND appointment_id = $%d", argIdx)
		args = append(args, filter.AppointmentID)
		argIdx++
	}
	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, string(filter.EventType))
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var eventType string
		var actor sql.NullString
		var details []byte
		err := rows.Scan(
			&e.ID, &eventType, &e.OrgID, &e.AppointmentID, &actor,
			pq.Array(&e.ChangedFields), &details, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.EventType = EventType(eventType)
		e.Actor = actor.String
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
