package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfman30/clinic-ops-platform/internal/scheduling"
)

type catalogDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores the catalog in the relational database.
type PostgresRepository struct {
	db catalogDB
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("catalog: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting a mock database for testing.
func NewPostgresRepositoryWithDB(db catalogDB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ListServices(ctx context.Context, orgID string) ([]Service, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id::text, org_id, name, service_line, active, created_at
		FROM services
		WHERE org_id = $1 AND active
		ORDER BY name
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list services: %w", err)
	}
	defer rows.Close()

	out := []Service{}
	for rows.Next() {
		var s Service
		var line string
		if err := rows.Scan(&s.ID, &s.OrgID, &s.Name, &line, &s.Active, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("catalog: scan service: %w", err)
		}
		s.ServiceLine = scheduling.Kind(line)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreateService(ctx context.Context, req *CreateServiceRequest) (*Service, error) {
	kind, err := req.Validate()
	if err != nil {
		return nil, err
	}
	id := uuid.New()
	var createdAt time.Time
	if err := r.db.QueryRow(ctx, `
		INSERT INTO services (id, org_id, name, service_line)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, id, req.OrgID, req.Name, string(kind)).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("catalog: insert service: %w", err)
	}
	return &Service{
		ID:          id.String(),
		OrgID:       req.OrgID,
		Name:        req.Name,
		ServiceLine: kind,
		Active:      true,
		CreatedAt:   createdAt,
	}, nil
}

const subServiceColumns = `
	ss.id::text, ss.org_id, ss.service_id::text, s.service_line, ss.name,
	ss.duration_minutes, ss.price_cents, ss.active, ss.created_at
`

func scanSubService(row pgx.Row) (*SubService, error) {
	var s SubService
	var line string
	if err := row.Scan(&s.ID, &s.OrgID, &s.ServiceID, &line, &s.Name,
		&s.DurationMinutes, &s.PriceCents, &s.Active, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.ServiceLine = scheduling.Kind(line)
	return &s, nil
}

func (r *PostgresRepository) ListSubServices(ctx context.Context, orgID, serviceID string) ([]SubService, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+subServiceColumns+`
		FROM sub_services ss
		JOIN services s ON s.id = ss.service_id
		WHERE ss.org_id = $1 AND ss.service_id::text = $2 AND ss.active
		ORDER BY ss.name
	`, orgID, serviceID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list sub-services: %w", err)
	}
	defer rows.Close()

	out := []SubService{}
	for rows.Next() {
		s, err := scanSubService(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan sub-service: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetSubService(ctx context.Context, orgID, id string) (*SubService, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+subServiceColumns+`
		FROM sub_services ss
		JOIN services s ON s.id = ss.service_id
		WHERE ss.org_id = $1 AND ss.id::text = $2 AND ss.active AND s.active
	`, orgID, id)
	s, err := scanSubService(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubServiceNotFound
		}
		return nil, fmt.Errorf("catalog: select sub-service: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) CreateSubService(ctx context.Context, req *CreateSubServiceRequest) (*SubService, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	id := uuid.New()
	var line string
	var createdAt time.Time
	err := r.db.QueryRow(ctx, `
		INSERT INTO sub_services (id, org_id, service_id, name, duration_minutes, price_cents)
		SELECT $1, s.org_id, s.id, $3, $4, $5
		FROM services s
		WHERE s.org_id = $2 AND s.id::text = $6
		RETURNING (SELECT service_line FROM services WHERE id = service_id), created_at
	`, id, req.OrgID, req.Name, req.DurationMinutes, req.PriceCents, req.ServiceID).Scan(&line, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("catalog: insert sub-service: %w", err)
	}
	return &SubService{
		ID:              id.String(),
		OrgID:           req.OrgID,
		ServiceID:       req.ServiceID,
		ServiceLine:     scheduling.Kind(line),
		Name:            req.Name,
		DurationMinutes: req.DurationMinutes,
		PriceCents:      req.PriceCents,
		Active:          true,
		CreatedAt:       createdAt,
	}, nil
}

func (r *PostgresRepository) ListProfessionals(ctx context.Context, orgID string) ([]Professional, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id::text, org_id, name, email, specialty, active, created_at
		FROM professionals
		WHERE org_id = $1 AND active
		ORDER BY name
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list professionals: %w", err)
	}
	defer rows.Close()

	out := []Professional{}
	for rows.Next() {
		var p Professional
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Name, &p.Email, &p.Specialty, &p.Active, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("catalog: scan professional: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetProfessional(ctx context.Context, orgID, id string) (*Professional, error) {
	var p Professional
	err := r.db.QueryRow(ctx, `
		SELECT id::text, org_id, name, email, specialty, active, created_at
		FROM professionals
		WHERE org_id = $1 AND id::text = $2
	`, orgID, id).Scan(&p.ID, &p.OrgID, &p.Name, &p.Email, &p.Specialty, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfessionalNotFound
		}
		return nil, fmt.Errorf("catalog: select professional: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) CreateProfessional(ctx context.Context, req *CreateProfessionalRequest) (*Professional, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	id := uuid.New()
	var createdAt time.Time
	if err := r.db.QueryRow(ctx, `
		INSERT INTO professionals (id, org_id, name, email, specialty)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, id, req.OrgID, req.Name, req.Email, req.Specialty).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("catalog: insert professional: %w", err)
	}
	return &Professional{
		ID:        id.String(),
		OrgID:     req.OrgID,
		Name:      req.Name,
		Email:     req.Email,
		Specialty: req.Specialty,
		Active:    true,
		CreatedAt: createdAt,
	}, nil
}

func (r *PostgresRepository) ListResources(ctx context.Context, orgID string, kind scheduling.Kind) ([]Resource, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, org_id, kind, name, active, created_at
		FROM resources
		WHERE org_id = $1 AND active AND ($2 = '' OR kind = $2)
		ORDER BY name
	`, orgID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("catalog: list resources: %w", err)
	}
	defer rows.Close()

	out := []Resource{}
	for rows.Next() {
		var res Resource
		var k string
		if err := rows.Scan(&res.ID, &res.OrgID, &k, &res.Name, &res.Active, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("catalog: scan resource: %w", err)
		}
		res.Kind = scheduling.Kind(k)
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreateResource(ctx context.Context, req *CreateResourceRequest) (*Resource, error) {
	kind, err := req.Validate()
	if err != nil {
		return nil, err
	}
	id := uuid.New().String()
	var createdAt time.Time
	if err := r.db.QueryRow(ctx, `
		INSERT INTO resources (id, org_id, kind, name)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, id, req.OrgID, string(kind), req.Name).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("catalog: insert resource: %w", err)
	}
	return &Resource{
		ID:        id,
		OrgID:     req.OrgID,
		Kind:      kind,
		Name:      req.Name,
		Active:    true,
		CreatedAt: createdAt,
	}, nil
}
