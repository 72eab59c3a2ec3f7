package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfman30/clinic-ops-platform/internal/events"
	"github.com/wolfman30/clinic-ops-platform/internal/scheduling"
)

const (
	exclusionViolation            = "23P01"
	resourceOverlapConstraint     = "appointments_no_resource_overlap"
	professionalOverlapConstraint = "appointments_no_professional_overlap"
)

type pgDB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists appointments. Overlaps are rejected by the
// appointments_no_*_overlap exclusion constraints in addition to the
// in-transaction re-check.
type PostgresStore struct {
	db pgDB
}

// NewPostgresStore wires the store to a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

// NewPostgresStoreWithDB allows injecting a mock database for testing.
func NewPostgresStoreWithDB(db pgDB) *PostgresStore {
	return &PostgresStore{db: db}
}

const appointmentColumns = `
	id::text, org_id, patient_id, professional_id, service_id, sub_service_id,
	service_line, resource_id, to_char(date, 'YYYY-MM-DD'), to_char(start_time, 'HH24:MI:SS'),
	duration_minutes, price_cents, status, notes, cancellation_reason, cancelled_at,
	created_at, updated_at
`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var line, status string
	if err := row.Scan(&a.ID, &a.OrgID, &a.PatientID, &a.ProfessionalID, &a.ServiceID, &a.SubServiceID,
		&line, &a.ResourceID, &a.Date, &a.StartTime,
		&a.DurationMinutes, &a.PriceCents, &status, &a.Notes, &a.CancellationReason, &a.CancelledAt,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.ServiceLine = scheduling.Kind(line)
	a.Status = Status(status)
	if end, err := scheduling.EndTime(a.StartTime, a.DurationMinutes); err == nil {
		a.EndTime = end
	}
	return &a, nil
}

func collect(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()
	out := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: iterate: %w", err)
	}
	return out, nil
}

func getAppointment(ctx context.Context, q pgQuerier, orgID, id, suffix string) (*Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrAppointmentNotFound
	}
	a, err := scanAppointment(q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE org_id = $1 AND id = $2`+suffix, orgID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("appointments: select: %w", err)
	}
	return a, nil
}

func listForDate(ctx context.Context, q pgQuerier, orgID, date string) ([]Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE org_id = $1 AND date = $2::date AND status <> 'cancelled'
		ORDER BY start_time, resource_id
	`, orgID, date)
	if err != nil {
		return nil, fmt.Errorf("appointments: list for date: %w", err)
	}
	return collect(rows)
}

func (s *PostgresStore) Get(ctx context.Context, orgID, id string) (*Appointment, error) {
	return getAppointment(ctx, s.db, orgID, id, "")
}

func (s *PostgresStore) ListForDate(ctx context.Context, orgID, date string) ([]Appointment, error) {
	return listForDate(ctx, s.db, orgID, date)
}

func (s *PostgresStore) List(ctx context.Context, orgID string, filter ListFilter) ([]Appointment, error) {
	where := []string{"org_id = $1"}
	args := []any{orgID}
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Date != "" {
		add("date = $%d::date", filter.Date)
	}
	if filter.ServiceLine != "" {
		add("service_line = $%d", string(filter.ServiceLine))
	}
	if filter.ProfessionalID != "" {
		add("professional_id = $%d", filter.ProfessionalID)
	}
	if filter.PatientID != "" {
		add("patient_id = $%d", filter.PatientID)
	}
	if !filter.IncludeCancelled {
		where = append(where, "status <> 'cancelled'")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	args = append(args, limit)

	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE ` + strings.Join(where, " AND ") +
		fmt.Sprintf(" ORDER BY date, start_time, resource_id LIMIT $%d", len(args))
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	return collect(rows)
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("appointments: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapConstraintError(fmt.Errorf("appointments: commit: %w", err))
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockSlot(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("appointments: lock %s: %w", key, err)
		}
	}
	return nil
}

func (t *pgTx) ListForDate(ctx context.Context, orgID, date string) ([]Appointment, error) {
	return listForDate(ctx, t.tx, orgID, date)
}

func (t *pgTx) GetForUpdate(ctx context.Context, orgID, id string) (*Appointment, error) {
	return getAppointment(ctx, t.tx, orgID, id, " FOR UPDATE")
}

func (t *pgTx) Insert(ctx context.Context, a *Appointment) error {
	id := uuid.New()
	var createdAt, updatedAt time.Time
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments (
			id, org_id, patient_id, professional_id, service_id, sub_service_id,
			service_line, resource_id, date, start_time, duration_minutes, price_cents,
			status, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::date, $10::time, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`, id, a.OrgID, a.PatientID, a.ProfessionalID, a.ServiceID, a.SubServiceID,
		string(a.ServiceLine), a.ResourceID, a.Date, a.StartTime, a.DurationMinutes, a.PriceCents,
		string(a.Status), a.Notes).Scan(&createdAt, &updatedAt)
	if err != nil {
		return mapConstraintError(fmt.Errorf("appointments: insert: %w", err))
	}
	a.ID = id.String()
	a.CreatedAt = createdAt
	a.UpdatedAt = updatedAt
	return nil
}

func (t *pgTx) Update(ctx context.Context, a *Appointment) error {
	var updatedAt time.Time
	err := t.tx.QueryRow(ctx, `
		UPDATE appointments SET
			professional_id = $3, service_id = $4, sub_service_id = $5, resource_id = $6,
			date = $7::date, start_time = $8::time, duration_minutes = $9, price_cents = $10,
			status = $11, notes = $12, cancellation_reason = $13, cancelled_at = $14,
			updated_at = now()
		WHERE org_id = $1 AND id = $2
		RETURNING updated_at
	`, a.OrgID, a.ID, a.ProfessionalID, a.ServiceID, a.SubServiceID, a.ResourceID,
		a.Date, a.StartTime, a.DurationMinutes, a.PriceCents,
		string(a.Status), a.Notes, a.CancellationReason, a.CancelledAt).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAppointmentNotFound
		}
		return mapConstraintError(fmt.Errorf("appointments: update: %w", err))
	}
	a.UpdatedAt = updatedAt
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, orgID string, evt events.CanonicalEvent) error {
	_, err := events.Append(ctx, t.tx, orgID, events.AppointmentAggregate, evt)
	return err
}

// mapConstraintError turns an exclusion violation into the matching conflict.
func mapConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != exclusionViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case professionalOverlapConstraint:
		return fmt.Errorf("%w: %v", ErrProfessionalConflict, err)
	case resourceOverlapConstraint:
		return fmt.Errorf("%w: %v", ErrResourceConflict, err)
	default:
		return err
	}
}
