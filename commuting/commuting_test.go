package commuting_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drillpay/settlement-engine/commuting"
	"github.com/drillpay/settlement-engine/roster"
	"github.com/drillpay/settlement-engine/store/sqlite"
	"github.com/drillpay/settlement-engine/transport"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// The unit's parade ground; radius 200m.
var unitGate = commuting.ReferenceLocation{
	ID:      "loc-gate",
	Name:    "Unit main gate",
	Lat:     37.5665,
	Lng:     126.9780,
	RadiusM: 200,
	Active:  true,
}

func newTestService(t *testing.T) (*commuting.Service, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := commuting.NewService(store, store, store, nil)
	return svc, store
}

func saveLocation(t *testing.T, store *sqlite.Store, loc commuting.ReferenceLocation) {
	t.Helper()
	require.NoError(t, store.SaveLocation(context.Background(), loc))
}

// offsetNorth returns a position moved the given meters north of loc. One
// degree of latitude is close enough to 111.32 km for test distances.
func offsetNorth(loc commuting.ReferenceLocation, meters float64) commuting.Position {
	return commuting.Position{Lat: loc.Lat + meters/111320.0, Lng: loc.Lng}
}

// =============================================================================
// GEOFENCE VALIDATION
// =============================================================================

func TestValidate_ExactCenterAccepted(t *testing.T) {
	matched, err := commuting.Validate(
		commuting.Position{Lat: unitGate.Lat, Lng: unitGate.Lng},
		[]commuting.ReferenceLocation{unitGate})
	require.NoError(t, err)
	assert.Equal(t, "loc-gate", matched.ID)
}

func TestValidate_InsideRadiusAccepted(t *testing.T) {
	_, err := commuting.Validate(offsetNorth(unitGate, 150), []commuting.ReferenceLocation{unitGate})
	assert.NoError(t, err)
}

func TestValidate_OutsideRadiusRejected(t *testing.T) {
	_, err := commuting.Validate(offsetNorth(unitGate, 400), []commuting.ReferenceLocation{unitGate})
	assert.ErrorIs(t, err, commuting.ErrOutOfRange)

	var oor *commuting.OutOfRangeError
	require.ErrorAs(t, err, &oor)
	assert.Greater(t, oor.NearestMeters, 200.0)
}

func TestValidate_AnyActiveLocationSuffices(t *testing.T) {
	annex := commuting.ReferenceLocation{
		ID: "loc-annex", Name: "Annex", Lat: 37.60, Lng: 126.98, RadiusM: 100, Active: true,
	}
	_, err := commuting.Validate(
		commuting.Position{Lat: annex.Lat, Lng: annex.Lng},
		[]commuting.ReferenceLocation{unitGate, annex})
	assert.NoError(t, err)
}

func TestValidate_InactiveLocationIgnored(t *testing.T) {
	inactive := unitGate
	inactive.Active = false
	_, err := commuting.Validate(
		commuting.Position{Lat: unitGate.Lat, Lng: unitGate.Lng},
		[]commuting.ReferenceLocation{inactive})
	assert.ErrorIs(t, err, commuting.ErrNoActiveLocation)
}

func TestValidate_NoLocationsFailsClosed(t *testing.T) {
	_, err := commuting.Validate(commuting.Position{Lat: 37.5, Lng: 127.0}, nil)
	assert.ErrorIs(t, err, commuting.ErrNoActiveLocation)
}

func TestHaversine_KnownDistance(t *testing.T) {
	// Seoul City Hall to Gwanghwamun plaza is just over a kilometer.
	d := commuting.HaversineMeters(
		commuting.Position{Lat: 37.5663, Lng: 126.9779},
		commuting.Position{Lat: 37.5759, Lng: 126.9769})
	assert.InDelta(t, 1070, d, 100)
}

// =============================================================================
// CHECK-IN / CHECK-OUT SEQUENCING
// =============================================================================

func TestValidateAndRecord_CheckInThenOut(t *testing.T) {
	svc, store := newTestService(t)
	saveLocation(t, store, unitGate)
	ctx := context.Background()

	morning := time.Date(2025, time.June, 2, 8, 0, 0, 0, time.Local)
	svc.WithClock(func() time.Time { return morning })

	at := commuting.Position{Lat: unitGate.Lat, Lng: unitGate.Lng}
	rec, err := svc.ValidateAndRecord(ctx, "tr-1", at, commuting.CheckIn)
	require.NoError(t, err)
	require.NotNil(t, rec.CheckInAt)
	assert.Nil(t, rec.CheckOutAt)
	assert.Equal(t, "loc-gate", rec.LocationID)

	evening := morning.Add(9 * time.Hour)
	svc.WithClock(func() time.Time { return evening })

	rec, err = svc.ValidateAndRecord(ctx, "tr-1", at, commuting.CheckOut)
	require.NoError(t, err)
	require.NotNil(t, rec.CheckOutAt)
	assert.True(t, rec.CheckOutAt.After(*rec.CheckInAt))
}

func TestValidateAndRecord_SecondCheckInRejected(t *testing.T) {
	svc, store := newTestService(t)
	saveLocation(t, store, unitGate)
	ctx := context.Background()
	svc.WithClock(func() time.Time {
		return time.Date(2025, time.June, 2, 8, 0, 0, 0, time.Local)
	})

	at := commuting.Position{Lat: unitGate.Lat, Lng: unitGate.Lng}
	_, err := svc.ValidateAndRecord(ctx, "tr-1", at, commuting.CheckIn)
	require.NoError(t, err)

	_, err = svc.ValidateAndRecord(ctx, "tr-1", at, commuting.CheckIn)
	assert.ErrorIs(t, err, commuting.ErrSequence)
}

func TestValidateAndRecord_CheckOutNeedsCheckIn(t *testing.T) {
	svc, store := newTestService(t)
	saveLocation(t, store, unitGate)

	at := commuting.Position{Lat: unitGate.Lat, Lng: unitGate.Lng}
	_, err := svc.ValidateAndRecord(context.Background(), "tr-1", at, commuting.CheckOut)
	assert.ErrorIs(t, err, commuting.ErrSequence)
}

func TestValidateAndRecord_OutOfRangeRecordsNothing(t *testing.T) {
	svc, store := newTestService(t)
	saveLocation(t, store, unitGate)
	ctx := context.Background()

	_, err := svc.ValidateAndRecord(ctx, "tr-1", offsetNorth(unitGate, 500), commuting.CheckIn)
	require.ErrorIs(t, err, commuting.ErrOutOfRange)

	rec, err := store.GetDayRecord(ctx, "tr-1", time.Now())
	require.NoError(t, err)
	assert.Nil(t, rec, "rejected check must not leave a row behind")
}

// =============================================================================
// MANUAL RECORDS
// =============================================================================

func TestRecordManual_BypassesGeofence(t *testing.T) {
	// No reference locations registered at all; a manual record still works.
	svc, store := newTestService(t)
	ctx := context.Background()

	day := time.Date(2025, time.June, 3, 0, 0, 0, 0, time.Local)
	checkIn := day.Add(8 * time.Hour)
	checkOut := day.Add(17 * time.Hour)

	rec, err := svc.RecordManual(ctx, "tr-1", day, &checkIn, &checkOut, "device broken")
	require.NoError(t, err)
	assert.True(t, rec.Manual)
	assert.Equal(t, "device broken", rec.Note)

	stored, err := store.GetDayRecord(ctx, "tr-1", day)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Manual)
}

func TestRecordManual_ReplacesSameDayRow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	day := time.Date(2025, time.June, 3, 0, 0, 0, 0, time.Local)
	first := day.Add(8 * time.Hour)
	second := day.Add(9 * time.Hour)

	rec1, err := svc.RecordManual(ctx, "tr-1", day, &first, nil, "")
	require.NoError(t, err)
	rec2, err := svc.RecordManual(ctx, "tr-1", day, &second, nil, "corrected")
	require.NoError(t, err)

	assert.Equal(t, rec1.ID, rec2.ID, "same day stays a single row")
	assert.True(t, rec2.CheckInAt.Equal(second))
}

func TestRecordManual_CheckOutAloneRejected(t *testing.T) {
	svc, _ := newTestService(t)
	out := time.Now()
	_, err := svc.RecordManual(context.Background(), "tr-1", out, nil, &out, "")
	assert.ErrorIs(t, err, commuting.ErrSequence)
}

// =============================================================================
// SETTLEMENT-ORIENTED AGGREGATION
// =============================================================================

func TestListForSettlement_MarksAbsentAndOutsideWindow(t *testing.T) {
	// GIVEN: records before the window, on a normal day, and on a day the
	//        trainee was ABSENT
	// WHEN: listed for settlement
	// THEN: all three appear; only the normal day counts

	svc, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, store.SaveBatch(ctx, roster.Batch{
		ID:        "batch-1",
		Name:      "June training",
		StartDate: time.Date(2025, time.June, 2, 0, 0, 0, 0, time.Local),
		EndDate:   time.Date(2025, time.June, 6, 0, 0, 0, 0, time.Local),
	}))
	require.NoError(t, store.SaveTrainee(ctx, roster.Trainee{ID: "tr-1", Name: "Kim"}))
	require.NoError(t, store.AssignTrainee(ctx, "batch-1", "tr-1"))
	require.NoError(t, store.SaveSession(ctx, roster.TrainingSession{
		ID:      "sess-jun3",
		BatchID: "batch-1",
		Date:    time.Date(2025, time.June, 3, 0, 0, 0, 0, time.Local),
		Start:   "09:00", End: "17:00",
		CountsTowardHours: true,
	}))
	require.NoError(t, store.SaveOutcome(ctx, roster.AttendanceOutcome{
		TraineeID: "tr-1", SessionID: "sess-jun3", Status: roster.AttendanceAbsent,
	}))

	for _, day := range []time.Time{
		time.Date(2025, time.May, 30, 0, 0, 0, 0, time.Local), // before window
		time.Date(2025, time.June, 2, 0, 0, 0, 0, time.Local), // normal
		time.Date(2025, time.June, 3, 0, 0, 0, 0, time.Local), // absent day
	} {
		in := day.Add(8 * time.Hour)
		_, err := svc.RecordManual(ctx, "tr-1", day, &in, nil, "")
		require.NoError(t, err)
	}

	views, err := svc.ListForSettlement(ctx, "batch-1", "tr-1")
	require.NoError(t, err)

	// The pre-window row falls outside the queried range entirely or is
	// marked; either way only June 2 counts.
	counted := 0
	for _, v := range views {
		if v.Counted {
			counted++
			assert.Equal(t, 2, v.Date.Day())
		} else {
			assert.NotEmpty(t, v.Skipped)
		}
	}
	assert.Equal(t, 1, counted)
}

func TestListDayRecords_RangeOnSharedStore(t *testing.T) {
	// GIVEN: one store holding commute rows for three days plus a transport
	//        record for the same trainee
	// WHEN: day records are listed for a two-day range
	// THEN: only in-range rows return, and the transport listing on the same
	//       store is unaffected

	svc, store := newTestService(t)
	ctx := context.Background()

	for _, day := range []time.Time{
		time.Date(2025, time.June, 2, 0, 0, 0, 0, time.Local),
		time.Date(2025, time.June, 3, 0, 0, 0, 0, time.Local),
		time.Date(2025, time.June, 9, 0, 0, 0, 0, time.Local),
	} {
		in := day.Add(8 * time.Hour)
		_, err := svc.RecordManual(ctx, "tr-1", day, &in, nil, "")
		require.NoError(t, err)
	}
	require.NoError(t, store.UpsertRecord(ctx, transport.Record{
		TraineeID: "tr-1", BatchID: "batch-1",
		Amount: 4000, Address: "Seoul", Status: transport.StatusOK,
	}))

	days, err := store.ListDayRecords(ctx, "tr-1",
		time.Date(2025, time.June, 2, 0, 0, 0, 0, time.Local),
		time.Date(2025, time.June, 3, 0, 0, 0, 0, time.Local))
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, 2, days[0].Date.Day())
	assert.Equal(t, 3, days[1].Date.Day())

	fares, err := store.ListRecords(ctx, "batch-1")
	require.NoError(t, err)
	require.Len(t, fares, 1)
	assert.Equal(t, int64(4000), fares[0].Amount)
}

// =============================================================================
// LOCATION ADMINISTRATION
// =============================================================================

func TestSaveLocation_AssignsIDAndValidatesRadius(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	loc := commuting.ReferenceLocation{Name: "Gate", Lat: 37.5, Lng: 127.0, RadiusM: 100, Active: true}
	saved, err := svc.SaveLocation(ctx, loc)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	_, err = svc.SaveLocation(ctx, commuting.ReferenceLocation{Name: "Bad", RadiusM: 0})
	assert.ErrorIs(t, err, roster.ErrValidation)

	locations, err := svc.Locations(ctx)
	require.NoError(t, err)
	require.Len(t, locations, 1)

	require.NoError(t, svc.DeleteLocation(ctx, saved.ID))
	locations, err = svc.Locations(ctx)
	require.NoError(t, err)
	assert.Empty(t, locations)
}
