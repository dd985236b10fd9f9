package transport_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drillpay/settlement-engine/roster"
	"github.com/drillpay/settlement-engine/store/sqlite"
	"github.com/drillpay/settlement-engine/transport"
)

// =============================================================================
// STUB COLLABORATORS
// =============================================================================

// stubGeocoder maps addresses to fixed coordinates; unknown addresses fail.
type stubGeocoder struct {
	coords map[string]transport.Coordinates
	calls  atomic.Int64
}

func (g *stubGeocoder) Geocode(_ context.Context, address string) (transport.Coordinates, error) {
	g.calls.Add(1)
	c, ok := g.coords[address]
	if !ok {
		return transport.Coordinates{}, errors.New("no match for address")
	}
	return c, nil
}

// stubRouter returns one route per destination latitude key.
type stubRouter struct {
	mu     sync.Mutex
	routes map[float64]transport.Route
	err    error
}

func (r *stubRouter) Route(_ context.Context, _, dest transport.Coordinates) (transport.Route, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return transport.Route{}, r.err
	}
	return r.routes[dest.Lat], nil
}

// =============================================================================
// TEST SETUP
// =============================================================================

var testFare = transport.FareConfig{
	FlatFee:                  4000,
	FlatDistanceKm:           decimal.NewFromInt(30),
	FuelPricePerLiter:        decimal.NewFromInt(1600),
	FuelEfficiencyKmPerLiter: decimal.NewFromInt(10),
}

func km(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.SaveBatch(ctx, roster.Batch{
		ID:        "batch-1",
		Name:      "June training",
		StartDate: time.Date(2025, time.June, 2, 0, 0, 0, 0, time.Local),
		EndDate:   time.Date(2025, time.June, 8, 0, 0, 0, 0, time.Local),
		UnitLat:   37.5,
		UnitLng:   127.0,
	}))
	return store
}

func addTrainee(t *testing.T, store *sqlite.Store, id, address string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.SaveTrainee(ctx, roster.Trainee{ID: roster.TraineeID(id), Name: id, Address: address}))
	require.NoError(t, store.AssignTrainee(ctx, "batch-1", roster.TraineeID(id)))
}

// =============================================================================
// FARE BANDING
// =============================================================================

func TestFare_FlatBand(t *testing.T) {
	tests := []struct {
		name  string
		route transport.Route
		want  int64
	}{
		{"short trip", transport.Route{DistanceKm: km("12")}, 4000},
		{"exactly 30km is inclusive", transport.Route{DistanceKm: km("30")}, 4000},
		// 30.01 * 1600 / 10 = 4801.6 -> 4802
		{"just past the band", transport.Route{DistanceKm: km("30.01")}, 4802},
		// 45 * 1600 / 10 = 7200
		{"long trip", transport.Route{DistanceKm: km("45")}, 7200},
		{"long trip with toll", transport.Route{DistanceKm: km("45"), HasTollRoad: true, TollFare: 2500}, 9700},
		// Toll inside the flat band is ignored: the flat fee is all-in.
		{"toll inside flat band", transport.Route{DistanceKm: km("20"), HasTollRoad: true, TollFare: 2500}, 4000},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, transport.Fare(tc.route, testFare))
		})
	}
}

// =============================================================================
// PIPELINE STATUSES
// =============================================================================

func TestCalculateForBatch_StatusPerTrainee(t *testing.T) {
	// GIVEN: four trainees - routable, unroutable address, no address at
	//        all, and one whose route lookup fails
	// WHEN: the batch is calculated
	// THEN: each gets its own status; nobody raises a batch error

	store := newTestStore(t)
	addTrainee(t, store, "tr-far", "10 Hill Road")
	addTrainee(t, store, "tr-lost", "unknown alley")
	addTrainee(t, store, "tr-none", "")

	geo := &stubGeocoder{coords: map[string]transport.Coordinates{
		"10 Hill Road": {Lat: 36.0, Lng: 127.5},
	}}
	router := &stubRouter{routes: map[float64]transport.Route{
		36.0: {DistanceKm: km("45")},
	}}

	calc := transport.NewCalculator(geo, router, store, store, testFare, nil)
	results, err := calc.CalculateForBatch(context.Background(), "batch-1")
	require.NoError(t, err)
	require.Len(t, results, 3)

	byID := map[roster.TraineeID]transport.Result{}
	for _, r := range results {
		byID[r.TraineeID] = r
	}

	assert.Equal(t, transport.StatusOK, byID["tr-far"].Status)
	assert.Equal(t, int64(7200), byID["tr-far"].Amount)

	assert.Equal(t, transport.StatusGeoFail, byID["tr-lost"].Status)
	assert.NotEmpty(t, byID["tr-lost"].Detail)

	assert.Equal(t, transport.StatusNoAddress, byID["tr-none"].Status)
	assert.Equal(t, int64(0), byID["tr-none"].Amount)
}

func TestCalculateForBatch_RouteFailure(t *testing.T) {
	store := newTestStore(t)
	addTrainee(t, store, "tr-1", "10 Hill Road")

	geo := &stubGeocoder{coords: map[string]transport.Coordinates{
		"10 Hill Road": {Lat: 36.0, Lng: 127.5},
	}}
	router := &stubRouter{err: errors.New("router down")}

	calc := transport.NewCalculator(geo, router, store, store, testFare, nil)
	results, err := calc.CalculateForBatch(context.Background(), "batch-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, transport.StatusRouteFail, results[0].Status)
	assert.Contains(t, results[0].Detail, "router down")
}

func TestCalculateForBatch_NoAddressSkipsCollaborators(t *testing.T) {
	store := newTestStore(t)
	addTrainee(t, store, "tr-none", "")

	geo := &stubGeocoder{}
	calc := transport.NewCalculator(geo, &stubRouter{}, store, store, testFare, nil)
	_, err := calc.CalculateForBatch(context.Background(), "batch-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), geo.calls.Load(), "no external call for an empty address")
}

func TestCalculateForBatch_CancelledContext(t *testing.T) {
	store := newTestStore(t)
	addTrainee(t, store, "tr-1", "10 Hill Road")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calc := transport.NewCalculator(&stubGeocoder{}, &stubRouter{}, store, store, testFare, nil)
	_, err := calc.CalculateForBatch(ctx, "batch-1")
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// COMMIT AND MANUAL PROTECTION
// =============================================================================

func TestCommit_PersistsReviewedResults(t *testing.T) {
	store := newTestStore(t)
	addTrainee(t, store, "tr-1", "10 Hill Road")
	ctx := context.Background()

	calc := transport.NewCalculator(&stubGeocoder{}, &stubRouter{}, store, store, testFare, nil)
	results := []transport.Result{{
		TraineeID:  "tr-1",
		Address:    "10 Hill Road",
		Status:     transport.StatusOK,
		Amount:     7200,
		DistanceKm: km("45"),
	}}

	written, err := calc.Commit(ctx, "batch-1", results, false)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	records, err := calc.Records(ctx, "batch-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(7200), records[0].Amount)
	require.NotNil(t, records[0].DistanceKm)
	assert.True(t, records[0].DistanceKm.Equal(km("45")))
	assert.False(t, records[0].Manual)
}

func TestCommit_ManualRecordProtected(t *testing.T) {
	// GIVEN: an administrator hand-set tr-1's reimbursement
	// WHEN: a plain commit and then a forced commit run
	// THEN: only the forced commit replaces the manual value

	store := newTestStore(t)
	addTrainee(t, store, "tr-1", "10 Hill Road")
	ctx := context.Background()

	calc := transport.NewCalculator(&stubGeocoder{}, &stubRouter{}, store, store, testFare, nil)
	require.NoError(t, calc.SetManual(ctx, "tr-1", "batch-1", 12345, "10 Hill Road"))

	results := []transport.Result{{
		TraineeID: "tr-1", Address: "10 Hill Road",
		Status: transport.StatusOK, Amount: 7200, DistanceKm: km("45"),
	}}

	written, err := calc.Commit(ctx, "batch-1", results, false)
	require.NoError(t, err)
	assert.Equal(t, 0, written, "manual record skipped without force")

	records, err := calc.Records(ctx, "batch-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(12345), records[0].Amount)
	assert.True(t, records[0].Manual)

	written, err = calc.Commit(ctx, "batch-1", results, true)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	records, err = calc.Records(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7200), records[0].Amount)
	assert.False(t, records[0].Manual, "forced commit makes the row computed again")
}

func TestSetManual_NegativeAmountRejected(t *testing.T) {
	store := newTestStore(t)
	calc := transport.NewCalculator(&stubGeocoder{}, &stubRouter{}, store, store, testFare, nil)
	err := calc.SetManual(context.Background(), "tr-1", "batch-1", -1, "")
	assert.ErrorIs(t, err, roster.ErrValidation)
}
