package patients

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type patientsDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores patients in the relational database.
type PostgresRepository struct {
	db patientsDB
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("patients: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting a mock database for testing.
func NewPostgresRepositoryWithDB(db patientsDB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, req *CreatePatientRequest) (*Patient, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	query := `
		INSERT INTO patients (id, org_id, name, email, phone, date_of_birth, notes)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::date, $7)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := r.db.QueryRow(ctx, query,
		id,
		req.OrgID,
		strings.TrimSpace(req.Name),
		req.Email,
		req.Phone,
		req.DateOfBirth,
		req.Notes,
	).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("patients: insert failed: %w", err)
	}

	return &Patient{
		ID:          id.String(),
		OrgID:       req.OrgID,
		Name:        strings.TrimSpace(req.Name),
		Email:       req.Email,
		Phone:       req.Phone,
		DateOfBirth: req.DateOfBirth,
		Notes:       req.Notes,
		CreatedAt:   createdAt,
	}, nil
}

const patientColumns = `id::text, org_id, name, email, phone, COALESCE(to_char(date_of_birth, 'YYYY-MM-DD'), ''), notes, created_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.OrgID, &p.Name, &p.Email, &p.Phone, &p.DateOfBirth, &p.Notes, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByID fetches a patient scoped to the org.
func (r *PostgresRepository) GetByID(ctx context.Context, orgID, id string) (*Patient, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrPatientNotFound
	}
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1 AND org_id = $2`
	p, err := scanPatient(r.db.QueryRow(ctx, query, id, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("patients: select failed: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) List(ctx context.Context, orgID string, filter ListFilter) ([]*Patient, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + patientColumns + `
		FROM patients
		WHERE org_id = $1
		  AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR email ILIKE '%' || $2 || '%' OR phone LIKE '%' || $2 || '%')
		ORDER BY name
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query, orgID, strings.TrimSpace(filter.Query), limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("patients: list failed: %w", err)
	}
	defer rows.Close()

	out := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("patients: scan failed: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
