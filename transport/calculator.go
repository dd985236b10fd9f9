/*
calculator.go - Per-trainee pipeline and bounded bulk fan-out

BULK SEMANTICS:
  - Every trainee gets exactly one Result carrying its own status
  - Collaborator calls run concurrently with a bounded worker limit and an
    independent per-call timeout; one trainee's failure or timeout never
    cancels a sibling's in-flight call
  - Cancelling the batch context stops ISSUING new per-trainee calls;
    already-issued calls run to completion or their own timeout
  - Nothing is persisted; Commit is the explicit second step
*/
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/drillpay/settlement-engine/roster"
)

const (
	defaultConcurrency = 8
	defaultCallTimeout = 10 * time.Second
)

// Calculator runs the geocode -> route -> fare pipeline.
type Calculator struct {
	geo         Geocoder
	router      Router
	dir         roster.Directory
	store       Store
	cfg         FareConfig
	log         *slog.Logger
	concurrency int
	callTimeout time.Duration
}

func NewCalculator(geo Geocoder, router Router, dir roster.Directory, store Store, cfg FareConfig, log *slog.Logger) *Calculator {
	if log == nil {
		log = slog.Default()
	}
	return &Calculator{
		geo:         geo,
		router:      router,
		dir:         dir,
		store:       store,
		cfg:         cfg,
		log:         log,
		concurrency: defaultConcurrency,
		callTimeout: defaultCallTimeout,
	}
}

// WithLimits adjusts the bulk worker bound and per-call timeout.
func (c *Calculator) WithLimits(concurrency int, callTimeout time.Duration) *Calculator {
	if concurrency > 0 {
		c.concurrency = concurrency
	}
	if callTimeout > 0 {
		c.callTimeout = callTimeout
	}
	return c
}

// =============================================================================
// SINGLE-TRAINEE PIPELINE
// =============================================================================

// CalculateOne runs the pipeline for a single trainee against the batch's
// unit coordinates. All failures come back as result statuses.
func (c *Calculator) CalculateOne(ctx context.Context, batch *roster.Batch, tr roster.Trainee) Result {
	res := Result{TraineeID: tr.ID, Address: tr.Address}

	if tr.Address == "" {
		// No external calls attempted.
		res.Status = StatusNoAddress
		return res
	}

	// Issued calls run to completion or their own timeout even if the bulk
	// caller cancels; cancellation only stops new calls being issued.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.callTimeout)
	defer cancel()

	coords, err := c.geo.Geocode(callCtx, tr.Address)
	if err != nil {
		res.Status = StatusGeoFail
		res.Detail = err.Error()
		return res
	}

	origin := Coordinates{Lat: batch.UnitLat, Lng: batch.UnitLng}
	route, err := c.router.Route(callCtx, origin, coords)
	if err != nil {
		res.Status = StatusRouteFail
		res.Detail = err.Error()
		return res
	}

	res.Status = StatusOK
	res.DistanceKm = route.DistanceKm
	res.HasToll = route.HasTollRoad
	res.Amount = Fare(route, c.cfg)
	return res
}

// =============================================================================
// BULK CALCULATION
// =============================================================================

// CalculateForBatch runs the pipeline for every trainee in the batch and
// returns one result per trainee, ordered by trainee ID. The only returned
// errors are directory failures and pre-issue cancellation; per-trainee
// pipeline failures live on their result entries.
func (c *Calculator) CalculateForBatch(ctx context.Context, batchID roster.BatchID) ([]Result, error) {
	batch, err := c.dir.GetBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("calculate %s: %w", batchID, err)
	}
	trainees, err := c.dir.ListTrainees(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("calculate %s: list trainees: %w", batchID, err)
	}

	results := make([]Result, len(trainees))
	var g errgroup.Group
	g.SetLimit(c.concurrency)

	for i, tr := range trainees {
		if err := ctx.Err(); err != nil {
			// Cooperative cancellation: stop issuing new calls. Workers
			// already launched finish on their own timeouts.
			break
		}
		i, tr := i, tr
		g.Go(func() error {
			results[i] = c.CalculateOne(ctx, batch, tr)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		// No partial amounts are persisted for a cancelled calculation;
		// nothing was persisted at all.
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].TraineeID < results[j].TraineeID })

	var failed int
	for _, r := range results {
		if r.Status != StatusOK {
			failed++
		}
	}
	c.log.Info("transport calculated", "batch", batchID, "trainees", len(results), "failed", failed)
	return results, nil
}

// =============================================================================
// COMMIT AND MANUAL EDITS
// =============================================================================

// Commit persists reviewed results. Records previously hand-edited by an
// administrator are skipped unless force is set (the administrator
// explicitly accepted the recalculated values). Returns how many rows were
// written.
func (c *Calculator) Commit(ctx context.Context, batchID roster.BatchID, results []Result, force bool) (int, error) {
	written := 0
	for _, r := range results {
		existing, err := c.store.GetRecord(ctx, r.TraineeID, batchID)
		if err != nil {
			return written, fmt.Errorf("commit %s/%s: %w", batchID, r.TraineeID, err)
		}
		if existing != nil && existing.Manual && !force {
			continue
		}

		rec := Record{
			TraineeID: r.TraineeID,
			BatchID:   batchID,
			Address:   r.Address,
			Status:    r.Status,
			Detail:    r.Detail,
			UpdatedAt: time.Now(),
		}
		if r.Status == StatusOK {
			rec.Amount = r.Amount
			rec.HasToll = r.HasToll
			km := r.DistanceKm
			rec.DistanceKm = &km
		}
		if err := c.store.UpsertRecord(ctx, rec); err != nil {
			return written, fmt.Errorf("commit %s/%s: %w", batchID, r.TraineeID, err)
		}
		written++
	}
	c.log.Info("transport committed", "batch", batchID, "written", written, "force", force)
	return written, nil
}

// SetManual writes an administrator-entered amount/address directly,
// bypassing the pipeline. The record becomes authoritative until the next
// forced commit.
func (c *Calculator) SetManual(ctx context.Context, trainee roster.TraineeID, batch roster.BatchID, amount int64, address string) error {
	if amount < 0 {
		return &roster.ValidationError{Field: "amount", Value: fmt.Sprint(amount), Msg: "must not be negative"}
	}
	return c.store.UpsertRecord(ctx, Record{
		TraineeID: trainee,
		BatchID:   batch,
		Amount:    amount,
		Address:   address,
		Status:    StatusOK,
		Manual:    true,
		UpdatedAt: time.Now(),
	})
}

// Records lists the batch's persisted reimbursement rows.
func (c *Calculator) Records(ctx context.Context, batch roster.BatchID) ([]Record, error) {
	return c.store.ListRecords(ctx, batch)
}
