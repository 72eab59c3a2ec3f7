package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinic-ops-platform/internal/scheduling"
)

// Repository defines catalog storage. Every read is scoped to an org.
type Repository interface {
	ListServices(ctx context.Context, orgID string) ([]Service, error)
	CreateService(ctx context.Context, req *CreateServiceRequest) (*Service, error)

	ListSubServices(ctx context.Context, orgID, serviceID string) ([]SubService, error)
	GetSubService(ctx context.Context, orgID, id string) (*SubService, error)
	CreateSubService(ctx context.Context, req *CreateSubServiceRequest) (*SubService, error)

	ListProfessionals(ctx context.Context, orgID string) ([]Professional, error)
	GetProfessional(ctx context.Context, orgID, id string) (*Professional, error)
	CreateProfessional(ctx context.Context, req *CreateProfessionalRequest) (*Professional, error)

	// ListResources returns active units; an empty kind returns all families.
	ListResources(ctx context.Context, orgID string, kind scheduling.Kind) ([]Resource, error)
	CreateResource(ctx context.Context, req *CreateResourceRequest) (*Resource, error)
}

// InMemoryRepository keeps the catalog in process memory. Used in tests and
// when DATABASE_URL is unset.
type InMemoryRepository struct {
	mu            sync.RWMutex
	services      map[string]*Service
	subServices   map[string]*SubService
	professionals map[string]*Professional
	resources     map[string]*Resource
}

// NewInMemoryRepository creates an empty catalog.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		services:      make(map[string]*Service),
		subServices:   make(map[string]*SubService),
		professionals: make(map[string]*Professional),
		resources:     make(map[string]*Resource),
	}
}

func (r *InMemoryRepository) ListServices(ctx context.Context, orgID string) ([]Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []Service{}
	for _, s := range r.services {
		if s.OrgID == orgID && s.Active {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *InMemoryRepository) CreateService(ctx context.Context, req *CreateServiceRequest) (*Service, error) {
	kind, err := req.Validate()
	if err != nil {
		return nil, err
	}
	svc := &Service{
		ID:          uuid.New().String(),
		OrgID:       req.OrgID,
		Name:        req.Name,
		ServiceLine: kind,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}

	r.mu.Lock()
	r.services[svc.ID] = svc
	r.mu.Unlock()

	copied := *svc
	return &copied, nil
}

func (r *InMemoryRepository) ListSubServices(ctx context.Context, orgID, serviceID string) ([]SubService, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if svc, ok := r.services[serviceID]; !ok || svc.OrgID != orgID {
		return nil, ErrServiceNotFound
	}
	out := []SubService{}
	for _, s := range r.subServices {
		if s.OrgID == orgID && s.ServiceID == serviceID && s.Active {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *InMemoryRepository) GetSubService(ctx context.Context, orgID, id string) (*SubService, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.subServices[id]
	if !ok || s.OrgID != orgID || !s.Active {
		return nil, ErrSubServiceNotFound
	}
	if svc, ok := r.services[s.ServiceID]; ok && !svc.Active {
		return nil, ErrSubServiceNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *InMemoryRepository) CreateSubService(ctx context.Context, req *CreateSubServiceRequest) (*SubService, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	svc, ok := r.services[req.ServiceID]
	if !ok || svc.OrgID != req.OrgID {
		return nil, ErrServiceNotFound
	}
	sub := &SubService{
		ID:              uuid.New().String(),
		OrgID:           req.OrgID,
		ServiceID:       svc.ID,
		ServiceLine:     svc.ServiceLine,
		Name:            req.Name,
		DurationMinutes: req.DurationMinutes,
		PriceCents:      req.PriceCents,
		Active:          true,
		CreatedAt:       time.Now().UTC(),
	}
	r.subServices[sub.ID] = sub

	copied := *sub
	return &copied, nil
}

func (r *InMemoryRepository) ListProfessionals(ctx context.Context, orgID string) ([]Professional, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []Professional{}
	for _, p := range r.professionals {
		if p.OrgID == orgID && p.Active {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *InMemoryRepository) GetProfessional(ctx context.Context, orgID, id string) (*Professional, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.professionals[id]
	if !ok || p.OrgID != orgID {
		return nil, ErrProfessionalNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *InMemoryRepository) CreateProfessional(ctx context.Context, req *CreateProfessionalRequest) (*Professional, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	p := &Professional{
		ID:        uuid.New().String(),
		OrgID:     req.OrgID,
		Name:      req.Name,
		Email:     req.Email,
		Specialty: req.Specialty,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.professionals[p.ID] = p
	r.mu.Unlock()

	copied := *p
	return &copied, nil
}

func (r *InMemoryRepository) ListResources(ctx context.Context, orgID string, kind scheduling.Kind) ([]Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []Resource{}
	for _, res := range r.resources {
		if res.OrgID != orgID || !res.Active {
			continue
		}
		if kind != "" && res.Kind != kind {
			continue
		}
		out = append(out, *res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *InMemoryRepository) CreateResource(ctx context.Context, req *CreateResourceRequest) (*Resource, error) {
	kind, err := req.Validate()
	if err != nil {
		return nil, err
	}
	res := &Resource{
		ID:        uuid.New().String(),
		OrgID:     req.OrgID,
		Kind:      kind,
		Name:      req.Name,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.resources[res.ID] = res
	r.mu.Unlock()

	copied := *res
	return &copied, nil
}
