package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinic-ops-platform/internal/events"
)

// MemoryStore keeps appointments in process memory. A transaction holds the
// store lock from start to commit, so writers are fully serialized. Used in
// tests and when DATABASE_URL is unset.
type MemoryStore struct {
	mu     sync.RWMutex
	rows   map[string]*Appointment
	events []events.Envelope
	now    func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[string]*Appointment),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Get(ctx context.Context, orgID, id string) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.rows[id]
	if !ok || a.OrgID != orgID {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListForDate(ctx context.Context, orgID, date string) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activeForDate(s.rows, orgID, date), nil
}

func (s *MemoryStore) List(ctx context.Context, orgID string, filter ListFilter) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Appointment{}
	for _, a := range s.rows {
		switch {
		case a.OrgID != orgID:
			continue
		case filter.Date != "" && a.Date != filter.Date:
			continue
		case filter.ServiceLine != "" && a.ServiceLine != filter.ServiceLine:
			continue
		case filter.ProfessionalID != "" && a.ProfessionalID != filter.ProfessionalID:
			continue
		case filter.PatientID != "" && a.PatientID != filter.PatientID:
			continue
		case !filter.IncludeCancelled && !a.Active():
			continue
		}
		out = append(out, *a)
	}
	sortAppointments(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Events returns the envelopes committed so far, oldest first.
func (s *MemoryStore) Events() []events.Envelope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]events.Envelope(nil), s.events...)
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s, staged: make(map[string]*Appointment)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, a := range tx.staged {
		s.rows[id] = a
	}
	s.events = append(s.events, tx.events...)
	return nil
}

type memoryTx struct {
	store  *MemoryStore
	staged map[string]*Appointment
	events []events.Envelope
}

func (t *memoryTx) lookup(id string) (*Appointment, bool) {
	if a, ok := t.staged[id]; ok {
		return a, true
	}
	a, ok := t.store.rows[id]
	return a, ok
}

func (t *memoryTx) view() map[string]*Appointment {
	merged := make(map[string]*Appointment, len(t.store.rows)+len(t.staged))
	for id, a := range t.store.rows {
		merged[id] = a
	}
	for id, a := range t.staged {
		merged[id] = a
	}
	return merged
}

// LockSlot is a no-op: the whole transaction already runs under the store lock.
func (t *memoryTx) LockSlot(ctx context.Context, keys ...string) error {
	return nil
}

func (t *memoryTx) ListForDate(ctx context.Context, orgID, date string) ([]Appointment, error) {
	return activeForDate(t.view(), orgID, date), nil
}

func (t *memoryTx) GetForUpdate(ctx context.Context, orgID, id string) (*Appointment, error) {
	a, ok := t.lookup(id)
	if !ok || a.OrgID != orgID {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (t *memoryTx) Insert(ctx context.Context, a *Appointment) error {
	if err := t.checkOverlap(a); err != nil {
		return err
	}
	now := t.store.now()
	a.ID = uuid.New().String()
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	t.staged[a.ID] = &cp
	return nil
}

func (t *memoryTx) Update(ctx context.Context, a *Appointment) error {
	existing, ok := t.lookup(a.ID)
	if !ok || existing.OrgID != a.OrgID {
		return ErrAppointmentNotFound
	}
	if err := t.checkOverlap(a); err != nil {
		return err
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = t.store.now()
	cp := *a
	t.staged[a.ID] = &cp
	return nil
}

func (t *memoryTx) AppendEvent(ctx context.Context, orgID string, evt events.CanonicalEvent) error {
	env, err := events.NewEnvelope(orgID, events.AppointmentAggregate, evt)
	if err != nil {
		return err
	}
	t.events = append(t.events, env)
	return nil
}

// checkOverlap mirrors the database exclusion constraints.
func (t *memoryTx) checkOverlap(a *Appointment) error {
	if !a.Active() {
		return nil
	}
	slot, err := a.Slot()
	if err != nil {
		return err
	}
	for _, other := range t.view() {
		if other.ID == a.ID || other.OrgID != a.OrgID || other.Date != a.Date || !other.Active() {
			continue
		}
		otherSlot, err := other.Slot()
		if err != nil || !otherSlot.Overlaps(slot) {
			continue
		}
		if other.ResourceID == a.ResourceID {
			return ErrResourceConflict
		}
		if other.ProfessionalID == a.ProfessionalID {
			return ErrProfessionalConflict
		}
	}
	return nil
}

func activeForDate(rows map[string]*Appointment, orgID, date string) []Appointment {
	out := []Appointment{}
	for _, a := range rows {
		if a.OrgID == orgID && a.Date == date && a.Active() {
			out = append(out, *a)
		}
	}
	sortAppointments(out)
	return out
}

func sortAppointments(out []Appointment) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ResourceID < out[j].ResourceID
	})
}
