package appointments

import (
	"context"
	"fmt"
	"sort"

	"github.com/wolfman30/clinic-ops-platform/internal/events"
	"github.com/wolfman30/clinic-ops-platform/internal/scheduling"
)

// Reader is the read side used by the availability checker and listings.
type Reader interface {
	Get(ctx context.Context, orgID, id string) (*Appointment, error)
	// ListForDate returns the non-cancelled appointments of one date, all lines.
	ListForDate(ctx context.Context, orgID, date string) ([]Appointment, error)
	List(ctx context.Context, orgID string, filter ListFilter) ([]Appointment, error)
}

// Store adds transactional writes to Reader.
type Store interface {
	Reader
	// InTx runs fn inside one transaction. fn returning an error rolls back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the write surface available inside InTx.
type Tx interface {
	// LockSlot serializes writers holding any of keys until the transaction ends.
	LockSlot(ctx context.Context, keys ...string) error
	ListForDate(ctx context.Context, orgID, date string) ([]Appointment, error)
	GetForUpdate(ctx context.Context, orgID, id string) (*Appointment, error)
	// Insert assigns ID and timestamps on a.
	Insert(ctx context.Context, a *Appointment) error
	Update(ctx context.Context, a *Appointment) error
	AppendEvent(ctx context.Context, orgID string, evt events.CanonicalEvent) error
}

// lockKeys returns the advisory lock keys for writing on a date, in a fixed
// order so two writers never wait on each other crosswise.
func lockKeys(orgID, date string, kind scheduling.Kind, professionalID string) []string {
	keys := []string{fmt.Sprintf("appointments:%s:%s:line:%s", orgID, date, kind)}
	if professionalID != "" {
		keys = append(keys, fmt.Sprintf("appointments:%s:%s:pro:%s", orgID, date, professionalID))
	}
	sort.Strings(keys)
	return keys
}
