package compensation_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drillpay/settlement-engine/compensation"
	"github.com/drillpay/settlement-engine/roster"
	"github.com/drillpay/settlement-engine/schedule"
	"github.com/drillpay/settlement-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func testConfig(t *testing.T) compensation.Config {
	t.Helper()
	standard, err := schedule.NewLunchWindow("12:00", "13:00")
	require.NoError(t, err)
	brunch, err := schedule.NewLunchWindow("10:30", "11:30")
	require.NoError(t, err)
	return compensation.Config{
		Rate: compensation.RateConfig{
			WeekdayBase:  100000,
			WeekendBase:  150000,
			FullDayHours: decimal.NewFromInt(8),
		},
		LunchStandard: standard,
		LunchBrunch:   brunch,
	}
}

func newTestLedger(t *testing.T) (*compensation.Ledger, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ledger := compensation.NewLedger(store, store, store, testConfig(t), nil)
	return ledger, store
}

// seedBatch creates a one-trainee batch with the two worked sessions:
// a weekday 09:00-17:00 with standard lunch and a weekend 09:00-15:00
// without one.
func seedBatch(t *testing.T, store *sqlite.Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.SaveBatch(ctx, roster.Batch{
		ID:        "batch-1",
		Name:      "June training",
		StartDate: time.Date(2025, time.June, 2, 0, 0, 0, 0, time.Local),
		EndDate:   time.Date(2025, time.June, 8, 0, 0, 0, 0, time.Local),
	}))
	require.NoError(t, store.SaveTrainee(ctx, roster.Trainee{ID: "tr-1", Name: "Kim"}))
	require.NoError(t, store.AssignTrainee(ctx, "batch-1", "tr-1"))

	require.NoError(t, store.SaveSession(ctx, roster.TrainingSession{
		ID:                "sess-weekday",
		BatchID:           "batch-1",
		Date:              time.Date(2025, time.June, 2, 0, 0, 0, 0, time.Local), // Monday
		Start:             "09:00",
		End:               "17:00",
		LunchPlan:         roster.LunchStandard,
		CountsTowardHours: true,
	}))
	require.NoError(t, store.SaveSession(ctx, roster.TrainingSession{
		ID:                "sess-weekend",
		BatchID:           "batch-1",
		Date:              time.Date(2025, time.June, 7, 0, 0, 0, 0, time.Local), // Saturday
		Start:             "09:00",
		End:               "15:00",
		LunchPlan:         roster.LunchNone,
		CountsTowardHours: true,
	}))
}

func rowBySession(t *testing.T, rows []compensation.Row, id roster.SessionID) compensation.Row {
	t.Helper()
	for _, r := range rows {
		if r.SessionID == id {
			return r
		}
	}
	t.Fatalf("no row for session %s", id)
	return compensation.Row{}
}

// =============================================================================
// END-TO-END SCENARIO
// =============================================================================

func TestSync_TwoSessionScenario(t *testing.T) {
	// GIVEN: one trainee, a 7h weekday session and a 6h weekend session
	// WHEN: the ledger syncs
	// THEN: rates are 87500 and 112500, total 200000

	ledger, store := newTestLedger(t)
	seedBatch(t, store)
	ctx := context.Background()

	report, err := ledger.Sync(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Upserted)
	assert.Empty(t, report.Failures)

	rows, err := ledger.Rows(ctx, "batch-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	weekday := rowBySession(t, rows, "sess-weekday")
	assert.Equal(t, "7", weekday.TrainingHours.String())
	assert.False(t, weekday.IsWeekend)
	assert.Equal(t, int64(87500), weekday.DailyRate)

	weekend := rowBySession(t, rows, "sess-weekend")
	assert.Equal(t, "6", weekend.TrainingHours.String())
	assert.True(t, weekend.IsWeekend)
	assert.Equal(t, int64(112500), weekend.DailyRate)

	total, err := ledger.TotalForBatch(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, int64(200000), total)
}

// =============================================================================
// IDEMPOTENCE AND PRUNING
// =============================================================================

func TestSync_Idempotent(t *testing.T) {
	ledger, store := newTestLedger(t)
	seedBatch(t, store)
	ctx := context.Background()

	_, err := ledger.Sync(ctx, "batch-1")
	require.NoError(t, err)
	first, err := ledger.Rows(ctx, "batch-1")
	require.NoError(t, err)

	_, err = ledger.Sync(ctx, "batch-1")
	require.NoError(t, err)
	second, err := ledger.Rows(ctx, "batch-1")
	require.NoError(t, err)

	assert.Equal(t, first, second, "second sync must not change the row set")
}

func TestSync_PrunesRowsOfRemovedSessions(t *testing.T) {
	ledger, store := newTestLedger(t)
	seedBatch(t, store)
	ctx := context.Background()

	_, err := ledger.Sync(ctx, "batch-1")
	require.NoError(t, err)

	require.NoError(t, store.DeleteSession(ctx, "sess-weekend"))

	report, err := ledger.Sync(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)

	rows, err := ledger.Rows(ctx, "batch-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, roster.SessionID("sess-weekday"), rows[0].SessionID)
}

func TestSync_SkipsNonCountingSessions(t *testing.T) {
	ledger, store := newTestLedger(t)
	seedBatch(t, store)
	ctx := context.Background()

	// A meal block occupies time but never pays.
	require.NoError(t, store.SaveSession(ctx, roster.TrainingSession{
		ID:                "sess-dinner",
		BatchID:           "batch-1",
		Date:              time.Date(2025, time.June, 2, 0, 0, 0, 0, time.Local),
		Start:             "18:00",
		End:               "19:00",
		Category:          "meal",
		CountsTowardHours: false,
	}))

	_, err := ledger.Sync(ctx, "batch-1")
	require.NoError(t, err)

	rows, err := ledger.Rows(ctx, "batch-1")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func TestSync_AbsentTraineeGetsZeroHourRow(t *testing.T) {
	ledger, store := newTestLedger(t)
	seedBatch(t, store)
	ctx := context.Background()

	require.NoError(t, store.SaveOutcome(ctx, roster.AttendanceOutcome{
		TraineeID: "tr-1",
		SessionID: "sess-weekday",
		Status:    roster.AttendanceAbsent,
		Reason:    "medical",
	}))

	_, err := ledger.Sync(ctx, "batch-1")
	require.NoError(t, err)

	rows, err := ledger.Rows(ctx, "batch-1")
	require.NoError(t, err)
	row := rowBySession(t, rows, "sess-weekday")
	assert.True(t, row.TrainingHours.IsZero())
	assert.Equal(t, int64(0), row.DailyRate)
}

func TestSync_EarlyLeaveTruncatesHours(t *testing.T) {
	ledger, store := newTestLedger(t)
	seedBatch(t, store)
	ctx := context.Background()

	// Left at 14:00: 5 raw hours minus the lunch hour = 4 -> 50000.
	require.NoError(t, store.SaveOutcome(ctx, roster.AttendanceOutcome{
		TraineeID:  "tr-1",
		SessionID:  "sess-weekday",
		Status:     roster.AttendancePresent,
		EarlyLeave: "14:00",
	}))

	_, err := ledger.Sync(ctx, "batch-1")
	require.NoError(t, err)

	rows, err := ledger.Rows(ctx, "batch-1")
	require.NoError(t, err)
	row := rowBySession(t, rows, "sess-weekday")
	assert.Equal(t, "4", row.TrainingHours.String())
	assert.Equal(t, int64(50000), row.DailyRate)
}

// =============================================================================
// OVERRIDES
// =============================================================================

func TestOverride_SurvivesResync(t *testing.T) {
	// GIVEN: a synced row with an administrator override
	// WHEN: the batch resyncs
	// THEN: the override is preserved verbatim and still wins

	ledger, store := newTestLedger(t)
	seedBatch(t, store)
	ctx := context.Background()

	_, err := ledger.Sync(ctx, "batch-1")
	require.NoError(t, err)

	override := int64(95000)
	require.NoError(t, ledger.SetOverride(ctx, "tr-1", "sess-weekday", &override))

	_, err = ledger.Sync(ctx, "batch-1")
	require.NoError(t, err)

	rows, err := ledger.Rows(ctx, "batch-1")
	require.NoError(t, err)
	row := rowBySession(t, rows, "sess-weekday")
	require.NotNil(t, row.OverrideRate)
	assert.Equal(t, int64(95000), *row.OverrideRate)
	assert.Equal(t, int64(87500), row.DailyRate, "computed rate stays visible under the override")

	final := row.Final()
	assert.True(t, final.IsOverridden())
	assert.Equal(t, int64(95000), final.Amount)

	total, err := ledger.TotalForBatch(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, int64(95000+112500), total)
}

func TestOverride_NilReverts(t *testing.T) {
	ledger, store := newTestLedger(t)
	seedBatch(t, store)
	ctx := context.Background()

	_, err := ledger.Sync(ctx, "batch-1")
	require.NoError(t, err)

	override := int64(1)
	require.NoError(t, ledger.SetOverride(ctx, "tr-1", "sess-weekday", &override))
	require.NoError(t, ledger.SetOverride(ctx, "tr-1", "sess-weekday", nil))

	rows, err := ledger.Rows(ctx, "batch-1")
	require.NoError(t, err)
	row := rowBySession(t, rows, "sess-weekday")
	assert.Nil(t, row.OverrideRate)
	assert.Equal(t, compensation.SourceComputed, row.Final().Source)
}

func TestOverride_NegativeRejected(t *testing.T) {
	ledger, store := newTestLedger(t)
	seedBatch(t, store)
	ctx := context.Background()

	_, err := ledger.Sync(ctx, "batch-1")
	require.NoError(t, err)

	bad := int64(-1)
	err = ledger.SetOverride(ctx, "tr-1", "sess-weekday", &bad)
	assert.ErrorIs(t, err, roster.ErrValidation)
}

// =============================================================================
// FAILURE ISOLATION
// =============================================================================

func TestSync_MalformedSessionBecomesZeroHourRow(t *testing.T) {
	ledger, store := newTestLedger(t)
	seedBatch(t, store)
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, roster.TrainingSession{
		ID:                "sess-broken",
		BatchID:           "batch-1",
		Date:              time.Date(2025, time.June, 3, 0, 0, 0, 0, time.Local),
		Start:             "9 o'clock",
		End:               "17:00",
		CountsTowardHours: true,
	}))

	report, err := ledger.Sync(ctx, "batch-1")
	require.NoError(t, err, "one bad session must not abort the batch")
	require.Len(t, report.Failures, 1)
	assert.Equal(t, roster.SessionID("sess-broken"), report.Failures[0].Key.SessionID)

	rows, err := ledger.Rows(ctx, "batch-1")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	broken := rowBySession(t, rows, "sess-broken")
	assert.True(t, broken.TrainingHours.IsZero())
	assert.NotEmpty(t, broken.SyncError)

	// The healthy rows are untouched.
	assert.Equal(t, int64(87500), rowBySession(t, rows, "sess-weekday").DailyRate)
}

// =============================================================================
// DISBURSEMENT AUTO-CREATION
// =============================================================================

type recordingCreator struct {
	calls []roster.BatchID
}

func (r *recordingCreator) EnsureDisbursement(_ context.Context, batch roster.BatchID) error {
	r.calls = append(r.calls, batch)
	return nil
}

func TestSync_CreatesDisbursementWhenCountingSessionsExist(t *testing.T) {
	ledger, store := newTestLedger(t)
	seedBatch(t, store)
	creator := &recordingCreator{}
	ledger.WithDisbursementCreator(creator)

	_, err := ledger.Sync(context.Background(), "batch-1")
	require.NoError(t, err)
	assert.Equal(t, []roster.BatchID{"batch-1"}, creator.calls)
}

func TestSync_NoDisbursementWithoutCountingSessions(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, store.SaveBatch(ctx, roster.Batch{
		ID:        "batch-empty",
		Name:      "empty",
		StartDate: time.Date(2025, time.June, 2, 0, 0, 0, 0, time.Local),
		EndDate:   time.Date(2025, time.June, 8, 0, 0, 0, 0, time.Local),
	}))

	creator := &recordingCreator{}
	ledger.WithDisbursementCreator(creator)

	_, err := ledger.Sync(ctx, "batch-empty")
	require.NoError(t, err)
	assert.Empty(t, creator.calls)
}
