package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-ops-platform/internal/catalog"
	"github.com/wolfman30/clinic-ops-platform/internal/clinic"
	"github.com/wolfman30/clinic-ops-platform/internal/scheduling"
)

// CatalogReader is the part of the catalog the checker and writer need.
type CatalogReader interface {
	GetSubService(ctx context.Context, orgID, id string) (*catalog.SubService, error)
	GetProfessional(ctx context.Context, orgID, id string) (*catalog.Professional, error)
	ListResources(ctx context.Context, orgID string, kind scheduling.Kind) ([]catalog.Resource, error)
}

// Checker answers availability questions. It never writes; the booking writer
// repeats the same evaluation inside its transaction.
type Checker struct {
	store    Reader
	catalog  CatalogReader
	settings clinic.SettingsReader
}

// NewChecker wires a checker to its read dependencies.
func NewChecker(store Reader, cat CatalogReader, settings clinic.SettingsReader) *Checker {
	if store == nil || cat == nil || settings == nil {
		panic("appointments: checker requires store, catalog and settings")
	}
	return &Checker{store: store, catalog: cat, settings: settings}
}

// plan is a candidate resolved against clinic settings and the catalog.
type plan struct {
	settings   *clinic.Settings
	date       string
	grid       scheduling.Grid
	family     scheduling.Family
	subService *catalog.SubService
	duration   int
	start      scheduling.Clock
	slot       scheduling.Interval
}

func (p *plan) endTime() string {
	return p.slot.End.HMS()
}

type planInput struct {
	orgID        string
	serviceLine  string
	subServiceID string
	duration     int
	date         string
	startTime    string
}

// prepare resolves everything except the start time, which DaySlots varies.
func (c *Checker) prepare(ctx context.Context, in planInput) (*plan, error) {
	if strings.TrimSpace(in.orgID) == "" {
		return nil, ErrMissingOrgID
	}
	day, err := time.Parse(DateLayout, strings.TrimSpace(in.date))
	if err != nil {
		return nil, ErrInvalidDate
	}
	settings, err := c.settings.Get(ctx, in.orgID)
	if err != nil {
		return nil, fmt.Errorf("appointments: load settings: %w", err)
	}
	grid, err := settings.Grid(day)
	if err != nil {
		if errors.Is(err, clinic.ErrClosedDay) {
			return nil, ErrClinicClosed
		}
		return nil, err
	}

	kind, sub, err := c.resolveLine(ctx, in.orgID, in.serviceLine, in.subServiceID)
	if err != nil {
		return nil, err
	}
	duration := settings.DurationOrDefault(in.duration)
	if sub != nil {
		duration = settings.DurationOrDefault(sub.DurationMinutes)
	}
	family, err := c.family(ctx, in.orgID, kind, settings)
	if err != nil {
		return nil, err
	}
	return &plan{
		settings:   settings,
		date:       day.Format(DateLayout),
		grid:       grid,
		family:     family,
		subService: sub,
		duration:   duration,
	}, nil
}

func (p *plan) at(start scheduling.Clock) error {
	slot, err := scheduling.Span(start, p.duration)
	if err != nil {
		return err
	}
	p.start = start
	p.slot = slot
	return nil
}

func (c *Checker) resolve(ctx context.Context, in planInput) (*plan, error) {
	p, err := c.prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	start, err := scheduling.ParseClock(in.startTime)
	if err != nil {
		return nil, ErrInvalidTime
	}
	if err := p.at(start); err != nil {
		return nil, err
	}
	return p, nil
}

// resolveLine settles the service line from the request and the sub-service.
func (c *Checker) resolveLine(ctx context.Context, orgID, line, subServiceID string) (scheduling.Kind, *catalog.SubService, error) {
	var kind scheduling.Kind
	if strings.TrimSpace(line) != "" {
		k, err := scheduling.ParseKind(line)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrMissingServiceLine, err)
		}
		kind = k
	}
	if strings.TrimSpace(subServiceID) == "" {
		if kind == "" {
			return "", nil, ErrMissingServiceLine
		}
		return kind, nil, nil
	}

	sub, err := c.catalog.GetSubService(ctx, orgID, subServiceID)
	if err != nil {
		if errors.Is(err, catalog.ErrSubServiceNotFound) {
			return "", nil, ErrMissingSubService
		}
		return "", nil, fmt.Errorf("appointments: load sub-service: %w", err)
	}
	if kind != "" && sub.ServiceLine != kind {
		return "", nil, ErrServiceLineMismatch
	}
	return sub.ServiceLine, sub, nil
}

// family builds the resource set for a line. Rooms come only from the
// catalog; the chamber and drips stations fall back to synthesized units.
func (c *Checker) family(ctx context.Context, orgID string, kind scheduling.Kind, settings *clinic.Settings) (scheduling.Family, error) {
	resources, err := c.catalog.ListResources(ctx, orgID, kind)
	if err != nil {
		return scheduling.Family{}, fmt.Errorf("appointments: list resources: %w", err)
	}
	ids := make([]string, 0, len(resources))
	for _, r := range resources {
		ids = append(ids, r.ID)
	}
	if len(ids) == 0 {
		ids = scheduling.DefaultResources(kind, settings.DripsStations)
	}
	return scheduling.Family{Kind: kind, Resources: ids, Cutoff: settings.Cutoff()}, nil
}

// Check evaluates a single candidate. A past-closing candidate is reported
// with a warning rather than an error.
func (c *Checker) Check(ctx context.Context, req CheckRequest) (*Availability, error) {
	p, err := c.resolve(ctx, planInput{
		orgID:        req.OrgID,
		serviceLine:  req.ServiceLine,
		subServiceID: req.SubServiceID,
		duration:     req.DurationMinutes,
		date:         req.Date,
		startTime:    req.StartTime,
	})
	if err != nil {
		return nil, err
	}
	existing, err := c.store.ListForDate(ctx, req.OrgID, p.date)
	if err != nil {
		return nil, err
	}
	res := scheduling.Evaluate(p.family, toBookings(existing), scheduling.Candidate{
		Slot:           p.slot,
		ResourceID:     strings.TrimSpace(req.ResourceID),
		ProfessionalID: strings.TrimSpace(req.ProfessionalID),
		ExcludeID:      strings.TrimSpace(req.ExcludeID),
	})
	return newAvailability(p, res), nil
}

func newAvailability(p *plan, res scheduling.Result) *Availability {
	out := &Availability{
		Result:          res,
		Date:            p.date,
		StartTime:       p.start.HMS(),
		EndTime:         p.endTime(),
		DurationMinutes: p.duration,
		Summary:         res.Summary(),
		IsAvailable:     res.Available(),
	}
	if res.PastClosing {
		out.Warning = WarningPastClosing
	}
	return out
}

// DaySlots renders the date's grid with availability per slot.
func (c *Checker) DaySlots(ctx context.Context, req SlotsRequest) (*DaySlots, error) {
	p, err := c.prepare(ctx, planInput{
		orgID:        req.OrgID,
		serviceLine:  req.ServiceLine,
		subServiceID: req.SubServiceID,
		duration:     req.DurationMinutes,
		date:         req.Date,
	})
	if err != nil {
		return nil, err
	}
	existing, err := c.store.ListForDate(ctx, req.OrgID, p.date)
	if err != nil {
		return nil, err
	}
	bookings := toBookings(existing)

	out := &DaySlots{
		Date:            p.date,
		ServiceLine:     p.family.Kind,
		DurationMinutes: p.duration,
		Capacity:        p.family.Capacity(),
		Slots:           []SlotAvailability{},
	}
	for _, start := range scheduling.SlotClocks(p.grid) {
		if err := p.at(start); err != nil {
			return nil, err
		}
		res := scheduling.Evaluate(p.family, bookings, scheduling.Candidate{
			Slot:           p.slot,
			ProfessionalID: strings.TrimSpace(req.ProfessionalID),
			ExcludeID:      strings.TrimSpace(req.ExcludeID),
		})
		out.Slots = append(out.Slots, SlotAvailability{
			Time:             start.String(),
			EndTime:          p.endTime(),
			FreeCount:        res.FreeCount,
			Capacity:         res.Capacity,
			Summary:          res.Summary(),
			ProfessionalFree: res.ProfessionalFree,
			PastClosing:      res.PastClosing,
			Available:        res.Available(),
		})
	}
	return out, nil
}
