/*
Package transport calculates distance-based commute reimbursement.

PURPOSE:
  Given a trainee's free-text home address and the unit's reference
  coordinates, resolve coordinates and a driving route via external
  collaborators, then apply the distance-banded fare formula:

    distanceKm <= band  -> flat short-distance fee
    distanceKm >  band  -> round(distanceKm * fuelPrice / kmPerLiter) + toll

  Pipeline failures (no address, geocoding failed, routing failed) are data
  states on the result, never thrown errors: a bulk calculation must report
  per-trainee statuses and keep going.

CALCULATE vs COMMIT:
  CalculateForBatch persists nothing - administrators review the itemized
  results first. Commit is the separate explicit step that writes them.
  A record an administrator hand-edited stays authoritative; a later commit
  only replaces it when explicitly forced.

SEE ALSO:
  - calculator.go: the pipeline and bulk fan-out
  - clients.go: HTTP Geocoder/Router implementations
*/
package transport

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/drillpay/settlement-engine/roster"
)

// =============================================================================
// COLLABORATOR INTERFACES (external geocoding/routing)
// =============================================================================

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64
	Lng float64
}

// Geocoder resolves a free-text address to coordinates. Any non-nil error
// is treated as StatusGeoFail by the pipeline.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Coordinates, error)
}

// Route is a driving route between two points.
type Route struct {
	DistanceKm  decimal.Decimal
	HasTollRoad bool
	TollFare    int64 // 0 when the route reports no toll usage
}

// Router resolves a driving route. Any non-nil error is StatusRouteFail.
type Router interface {
	Route(ctx context.Context, origin, dest Coordinates) (Route, error)
}

// =============================================================================
// STATUSES - Data states, not exceptions
// =============================================================================

type Status string

const (
	StatusOK        Status = "OK"
	StatusNoAddress Status = "NO_ADDRESS"
	StatusGeoFail   Status = "GEO_FAIL"
	StatusRouteFail Status = "ROUTE_FAIL"
	StatusError     Status = "ERROR"
)

// =============================================================================
// RECORD AND RESULT
// =============================================================================

// Record is the persisted reimbursement row, one per (trainee, batch).
// Manual marks an administrator hand-edit; manual records survive later
// bulk commits unless the commit is forced.
type Record struct {
	TraineeID  roster.TraineeID
	BatchID    roster.BatchID
	Amount     int64
	Address    string
	DistanceKm *decimal.Decimal
	Status     Status
	HasToll    bool
	Detail     string // collaborator error text kept for review
	Manual     bool
	UpdatedAt  time.Time
}

// Result is one trainee's outcome of a bulk calculation. It carries its own
// status so a batch call never raises a batch-wide failure.
type Result struct {
	TraineeID  roster.TraineeID
	Address    string
	Status     Status
	Amount     int64
	DistanceKm decimal.Decimal
	HasToll    bool
	Detail     string // collaborator error text for GEO_FAIL/ROUTE_FAIL/ERROR
}

// =============================================================================
// STORE INTERFACE - Implemented by store/sqlite
// =============================================================================

type Store interface {
	GetRecord(ctx context.Context, trainee roster.TraineeID, batch roster.BatchID) (*Record, error)
	ListRecords(ctx context.Context, batch roster.BatchID) ([]Record, error)

	// UpsertRecord writes the row keyed by (trainee, batch).
	UpsertRecord(ctx context.Context, rec Record) error
}

// =============================================================================
// FARE CONFIG - Fiscal-period constants
// =============================================================================

// FareConfig carries the banding constants. Revised per fiscal period;
// always passed in, never read from ambient state.
type FareConfig struct {
	FlatFee                  int64           // short-distance flat amount
	FlatDistanceKm           decimal.Decimal // inclusive band boundary
	FuelPricePerLiter        decimal.Decimal
	FuelEfficiencyKmPerLiter decimal.Decimal
}

// Fare applies the distance-banded formula to a resolved route.
func Fare(route Route, cfg FareConfig) int64 {
	if route.DistanceKm.LessThanOrEqual(cfg.FlatDistanceKm) {
		return cfg.FlatFee
	}
	fuel := route.DistanceKm.
		Mul(cfg.FuelPricePerLiter).
		Div(cfg.FuelEfficiencyKmPerLiter).
		Round(0).IntPart()
	if route.HasTollRoad {
		return fuel + route.TollFare
	}
	return fuel
}
