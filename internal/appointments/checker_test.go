package appointments

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-ops-platform/internal/clinic"
)

func TestDaySlots_DripsGrid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.book(t, f.drips30, "10:00", f.pros[0], "")
	require.NoError(t, err)

	day, err := f.svc.Checker().DaySlots(ctx, SlotsRequest{OrgID: testOrg, SubServiceID: f.drips30, Date: testDate})
	require.NoError(t, err)
	assert.Equal(t, 5, day.Capacity)
	require.Len(t, day.Slots, 42) // 08:00..18:00 every 15 minutes, plus 18:45

	byTime := map[string]SlotAvailability{}
	for _, s := range day.Slots {
		byTime[s.Time] = s
	}
	assert.Equal(t, "4/5 available", byTime["10:00"].Summary)
	assert.Equal(t, 4, byTime["09:45"].FreeCount)
	assert.Equal(t, 5, byTime["09:30"].FreeCount, "adjacent slot is not a conflict")
	assert.Equal(t, 5, byTime["10:30"].FreeCount)
	assert.False(t, byTime["18:00"].PastClosing)
	assert.True(t, byTime["18:30"].PastClosing)
	assert.True(t, byTime["18:45"].PastClosing)
	assert.False(t, byTime["18:45"].Available)
	assert.Equal(t, "18:45", day.Slots[len(day.Slots)-1].Time)
}

func TestDaySlots_ProfessionalBusy(t *testing.T) {
	f := newFixture(t)

	_, err := f.book(t, f.room45, "10:00", f.pros[0], "")
	require.NoError(t, err)

	day, err := f.svc.Checker().DaySlots(context.Background(), SlotsRequest{OrgID: testOrg, ServiceLine: "chamber", Date: testDate, ProfessionalID: f.pros[0]})
	require.NoError(t, err)
	for _, s := range day.Slots {
		if s.Time == "10:00" || s.Time == "09:15" {
			assert.False(t, s.ProfessionalFree, s.Time)
			assert.False(t, s.Available, s.Time)
		}
		if s.Time == "09:00" || s.Time == "10:45" {
			assert.True(t, s.ProfessionalFree, s.Time)
		}
	}
}

func TestCheck_ClosedDay(t *testing.T) {
	settings := testDefaults.DefaultSettings(testOrg)
	settings.BusinessHours = clinic.BusinessHours{Monday: &clinic.DayHours{Open: "09:00", Close: "17:00"}}
	f := newFixtureWithSettings(t, staticSettings{settings: settings})
	ctx := context.Background()

	_, err := f.svc.Checker().Check(ctx, CheckRequest{OrgID: testOrg, ServiceLine: "chamber", Date: "2026-03-03", StartTime: "10:00"})
	assert.ErrorIs(t, err, ErrClinicClosed)

	day, err := f.svc.Checker().DaySlots(ctx, SlotsRequest{OrgID: testOrg, ServiceLine: "chamber", Date: testDate})
	require.NoError(t, err)
	assert.Equal(t, "09:00", day.Slots[0].Time)
	assert.Equal(t, "17:00", day.Slots[len(day.Slots)-1].Time)
}

func TestCheck_ClinicCutoffAndStations(t *testing.T) {
	settings := testDefaults.DefaultSettings(testOrg)
	settings.ClosingCutoff = "18:00"
	settings.DripsStations = 3
	f := newFixtureWithSettings(t, staticSettings{settings: settings})

	res, err := f.svc.Checker().Check(context.Background(), CheckRequest{OrgID: testOrg, ServiceLine: "drips", Date: testDate, StartTime: "17:30"})
	require.NoError(t, err)
	assert.Equal(t, 60, res.DurationMinutes)
	assert.True(t, res.PastClosing)
	assert.Equal(t, "3/3 available", res.Summary)
	assert.Equal(t, []string{"station-1", "station-2", "station-3"}, res.Free)
}

func TestCheck_RoomsWithoutCatalogHaveNoCapacity(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Checker().Check(context.Background(), CheckRequest{OrgID: "org-2", ServiceLine: "room", Date: testDate, StartTime: "10:00"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Capacity)
	assert.False(t, res.IsAvailable)
}

func TestCheck_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Checker().Check(ctx, CheckRequest{ServiceLine: "chamber", Date: testDate, StartTime: "10:00"})
	assert.ErrorIs(t, err, ErrMissingOrgID)

	_, err = f.svc.Checker().Check(ctx, CheckRequest{OrgID: testOrg, Date: testDate, StartTime: "10:00"})
	assert.ErrorIs(t, err, ErrMissingServiceLine)

	_, err = f.svc.Checker().Check(ctx, CheckRequest{OrgID: testOrg, ServiceLine: "sauna", Date: testDate, StartTime: "10:00"})
	assert.ErrorIs(t, err, ErrMissingServiceLine)

	_, err = f.svc.Checker().Check(ctx, CheckRequest{OrgID: testOrg, SubServiceID: "missing", Date: testDate, StartTime: "10:00"})
	assert.ErrorIs(t, err, ErrMissingSubService)

	_, err = f.svc.Checker().Check(ctx, CheckRequest{OrgID: testOrg, ServiceLine: "chamber", Date: testDate, StartTime: "noon"})
	assert.ErrorIs(t, err, ErrInvalidTime)
}

func TestLockKeysAreOrdered(t *testing.T) {
	keys := lockKeys("org-1", testDate, "drips", "pro-9")
	assert.Equal(t, []string{
		"appointments:org-1:2026-03-02:line:drips",
		"appointments:org-1:2026-03-02:pro:pro-9",
	}, keys)
	assert.Len(t, lockKeys("org-1", testDate, "drips", ""), 1)
}
