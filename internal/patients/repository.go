package patients

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for patient storage
type Repository interface {
	Create(ctx context.Context, req *CreatePatientRequest) (*Patient, error)
	GetByID(ctx context.Context, orgID, id string) (*Patient, error)
	List(ctx context.Context, orgID string, filter ListFilter) ([]*Patient, error)
}

// InMemoryRepository keeps patients in process memory
type InMemoryRepository struct {
	mu       sync.RWMutex
	patients map[string]*Patient
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		patients: make(map[string]*Patient),
	}
}

// Create creates a new patient in memory
func (r *InMemoryRepository) Create(ctx context.Context, req *CreatePatientRequest) (*Patient, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	patient := &Patient{
		ID:          uuid.New().String(),
		OrgID:       req.OrgID,
		Name:        strings.TrimSpace(req.Name),
		Email:       req.Email,
		Phone:       req.Phone,
		DateOfBirth: req.DateOfBirth,
		Notes:       req.Notes,
		CreatedAt:   time.Now().UTC(),
	}

	r.mu.Lock()
	r.patients[patient.ID] = patient
	r.mu.Unlock()

	cp := *patient
	return &cp, nil
}

// GetByID retrieves a patient scoped to the org
func (r *InMemoryRepository) GetByID(ctx context.Context, orgID, id string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	patient, ok := r.patients[id]
	if !ok || patient.OrgID != orgID {
		return nil, ErrPatientNotFound
	}
	cp := *patient
	return &cp, nil
}

func (r *InMemoryRepository) List(ctx context.Context, orgID string, filter ListFilter) ([]*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(filter.Query))
	out := []*Patient{}
	for _, p := range r.patients {
		if p.OrgID != orgID {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Name), q) &&
			!strings.Contains(strings.ToLower(p.Email), q) && !strings.Contains(p.Phone, q) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	if filter.Offset >= len(out) {
		return []*Patient{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
