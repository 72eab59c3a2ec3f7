package appointments

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-ops-platform/internal/audit"
	"github.com/wolfman30/clinic-ops-platform/internal/calendarfeed"
	"github.com/wolfman30/clinic-ops-platform/internal/catalog"
	"github.com/wolfman30/clinic-ops-platform/internal/clinic"
	"github.com/wolfman30/clinic-ops-platform/internal/patients"
	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
)

const (
	testOrg  = "org-1"
	testDate = "2026-03-02" // Monday
)

var testDefaults = clinic.Defaults{
	Timezone:               "America/New_York",
	Open:                   "08:00",
	Close:                  "18:00",
	StepMinutes:            15,
	TrailingSlot:           "18:45",
	ClosingCutoff:          "19:00",
	DefaultDurationMinutes: 60,
	DripsStations:          5,
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.EventType
}

func (a *recordingAudit) LogAppointmentChange(ctx context.Context, orgID, appointmentID string, eventType audit.EventType, changed []string, details any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, eventType)
	return nil
}

type recordingFeed struct {
	mu      sync.Mutex
	changes []calendarfeed.Change
}

func (f *recordingFeed) Publish(orgID string, change calendarfeed.Change) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, change)
}

type staticSettings struct {
	settings *clinic.Settings
}

func (s staticSettings) Get(ctx context.Context, orgID string) (*clinic.Settings, error) {
	cp := *s.settings
	cp.OrgID = orgID
	return &cp, nil
}

type fixture struct {
	svc      *Service
	store    *MemoryStore
	catalog  *catalog.InMemoryRepository
	audit    *recordingAudit
	feed     *recordingFeed
	patient  string
	pros     []string
	chamber  string // 60 min
	chamber2 string // 90 min
	drips30  string
	drips45  string
	room45   string
	roomA    string
	roomB    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithSettings(t, clinic.NewStore(nil, testDefaults))
}

func newFixtureWithSettings(t *testing.T, settings clinic.SettingsReader) *fixture {
	t.Helper()
	ctx := context.Background()
	cat := catalog.NewInMemoryRepository()
	pats := patients.NewInMemoryRepository()

	f := &fixture{store: NewMemoryStore(), catalog: cat, audit: &recordingAudit{}, feed: &recordingFeed{}}

	p, err := pats.Create(ctx, &patients.CreatePatientRequest{OrgID: testOrg, Name: "Pat Patient", Phone: "+15550001111"})
	require.NoError(t, err)
	f.patient = p.ID

	for _, name := range []string{"Avery", "Blake", "Casey", "Devon", "Emery", "Finley"} {
		pro, err := cat.CreateProfessional(ctx, &catalog.CreateProfessionalRequest{OrgID: testOrg, Name: name})
		require.NoError(t, err)
		f.pros = append(f.pros, pro.ID)
	}

	sub := func(line, name string, minutes int, price int64) string {
		svc, err := cat.CreateService(ctx, &catalog.CreateServiceRequest{OrgID: testOrg, Name: line + " service", ServiceLine: line})
		require.NoError(t, err)
		s, err := cat.CreateSubService(ctx, &catalog.CreateSubServiceRequest{
			OrgID: testOrg, ServiceID: svc.ID, Name: name, DurationMinutes: minutes, PriceCents: price,
		})
		require.NoError(t, err)
		return s.ID
	}
	f.chamber = sub("chamber", "Hyperbaric 60", 60, 15000)
	f.chamber2 = sub("chamber", "Hyperbaric 90", 90, 20000)
	f.drips30 = sub("drips", "Hydration", 30, 9000)
	f.drips45 = sub("drips", "Myers cocktail", 45, 12000)
	f.room45 = sub("room", "Consultation", 45, 5000)

	for _, name := range []string{"Room A", "Room B"} {
		r, err := cat.CreateResource(ctx, &catalog.CreateResourceRequest{OrgID: testOrg, Kind: "room", Name: name})
		require.NoError(t, err)
		if name == "Room A" {
			f.roomA = r.ID
		} else {
			f.roomB = r.ID
		}
	}

	checker := NewChecker(f.store, cat, settings)
	f.svc = NewService(f.store, checker, logging.NewWithWriter("error", io.Discard)).
		WithPatients(pats).
		WithAudit(f.audit).
		WithFeed(f.feed).
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) })
	return f
}

func (f *fixture) book(t *testing.T, subServiceID, start, professionalID, resourceID string) (*Appointment, error) {
	t.Helper()
	return f.svc.Book(context.Background(), BookRequest{
		OrgID:          testOrg,
		PatientID:      f.patient,
		ProfessionalID: professionalID,
		SubServiceID:   subServiceID,
		ResourceID:     resourceID,
		Date:           testDate,
		StartTime:      start,
	})
}
