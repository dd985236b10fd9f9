/*
dto.go - Request/response data structures

PURPOSE:
  JSON shapes of the REST surface. DTOs are deliberately separate from the
  domain types: dates travel as "YYYY-MM-DD" strings, clock times as
  "HH:MM", money as integer minor units, and the override/computed
  distinction is flattened into final_rate + rate_source.

SEE ALSO:
  - handlers.go: where these are populated
*/
package api

// =============================================================================
// ERROR RESPONSE
// =============================================================================

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// ROSTER
// =============================================================================

// BatchDTO represents a training batch.
type BatchDTO struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
	UnitName  string  `json:"unit_name"`
	UnitLat   float64 `json:"unit_lat"`
	UnitLng   float64 `json:"unit_lng"`
}

// CreateBatchRequest creates or updates a batch.
type CreateBatchRequest struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
	UnitName  string  `json:"unit_name"`
	UnitLat   float64 `json:"unit_lat"`
	UnitLng   float64 `json:"unit_lng"`
}

// TraineeDTO represents a trainee.
type TraineeDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// AssignTraineeRequest assigns a trainee to a batch.
type AssignTraineeRequest struct {
	TraineeID string `json:"trainee_id"`
}

// SessionDTO represents one scheduled training block.
type SessionDTO struct {
	ID                string `json:"id"`
	BatchID           string `json:"batch_id"`
	Date              string `json:"date"`
	Start             string `json:"start,omitempty"`
	End               string `json:"end,omitempty"`
	Category          string `json:"category"`
	LunchPlan         string `json:"lunch_plan"`
	CountsTowardHours bool   `json:"counts_toward_hours"`
	AttendanceEnabled bool   `json:"attendance_enabled"`
}

// UpsertAttendanceRequest records one trainee's outcome for a session.
type UpsertAttendanceRequest struct {
	TraineeID  string `json:"trainee_id"`
	SessionID  string `json:"session_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	EarlyLeave string `json:"early_leave,omitempty"`
}

// =============================================================================
// COMPENSATION LEDGER
// =============================================================================

// LedgerRowDTO represents one compensation row. FinalRate is the override
// when present, otherwise the computed daily rate; RateSource says which.
type LedgerRowDTO struct {
	TraineeID     string `json:"trainee_id"`
	SessionID     string `json:"session_id"`
	TrainingHours string `json:"training_hours"`
	IsWeekend     bool   `json:"is_weekend"`
	DailyRate     int64  `json:"daily_rate"`
	OverrideRate  *int64 `json:"override_rate,omitempty"`
	FinalRate     int64  `json:"final_rate"`
	RateSource    string `json:"rate_source"`
	SyncError     string `json:"sync_error,omitempty"`
}

// SyncReportDTO summarizes a ledger resync.
type SyncReportDTO struct {
	BatchID  string          `json:"batch_id"`
	Upserted int             `json:"upserted"`
	Deleted  int             `json:"deleted"`
	Failures []RowFailureDTO `json:"failures"`
}

type RowFailureDTO struct {
	TraineeID string `json:"trainee_id"`
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

// SetOverrideRequest sets or clears (amount omitted/null) an override.
type SetOverrideRequest struct {
	TraineeID string `json:"trainee_id"`
	SessionID string `json:"session_id"`
	Amount    *int64 `json:"amount"`
}

// TotalsDTO is the batch-level ledger total.
type TotalsDTO struct {
	BatchID string `json:"batch_id"`
	Total   int64  `json:"total"`
}

// =============================================================================
// TRANSPORT
// =============================================================================

// TransportResultDTO is one trainee's calculation outcome (not yet persisted).
type TransportResultDTO struct {
	TraineeID  string `json:"trainee_id"`
	Address    string `json:"address,omitempty"`
	Status     string `json:"status"`
	Amount     int64  `json:"amount"`
	DistanceKm string `json:"distance_km,omitempty"`
	HasToll    bool   `json:"has_toll"`
	Detail     string `json:"detail,omitempty"`
}

// TransportRecordDTO is a persisted reimbursement record.
type TransportRecordDTO struct {
	TraineeID  string `json:"trainee_id"`
	BatchID    string `json:"batch_id"`
	Address    string `json:"address,omitempty"`
	Status     string `json:"status"`
	Amount     int64  `json:"amount"`
	DistanceKm string `json:"distance_km,omitempty"`
	HasToll    bool   `json:"has_toll"`
	Detail     string `json:"detail,omitempty"`
	Manual     bool   `json:"manual"`
}

// CommitTransportRequest persists reviewed results. Force overwrites rows an
// administrator edited by hand.
type CommitTransportRequest struct {
	Results []TransportResultDTO `json:"results"`
	Force   bool                 `json:"force"`
}

// SetManualTransportRequest hand-sets one trainee's reimbursement.
type SetManualTransportRequest struct {
	TraineeID string `json:"trainee_id"`
	BatchID   string `json:"batch_id"`
	Amount    int64  `json:"amount"`
	Address   string `json:"address,omitempty"`
}

// =============================================================================
// SETTLEMENT
// =============================================================================

// ProcessDTO represents one settlement workflow instance. Milestones maps
// stage name to the RFC3339 timestamp it was entered.
type ProcessDTO struct {
	ID         string            `json:"id"`
	BatchID    string            `json:"batch_id"`
	Kind       string            `json:"kind"`
	Status     string            `json:"status"`
	Stages     []string          `json:"stages"`
	Milestones map[string]string `json:"milestones"`
	Metadata   MetadataDTO       `json:"metadata"`
	CreatedAt  string            `json:"created_at"`
}

// MetadataDTO holds the freely editable process fields.
type MetadataDTO struct {
	BankName           string `json:"bank_name,omitempty"`
	AccountNo          string `json:"account_no,omitempty"`
	AccountHolder      string `json:"account_holder,omitempty"`
	Note               string `json:"note,omitempty"`
	Reason             string `json:"reason,omitempty"`
	CompensationRefund int64  `json:"compensation_refund,omitempty"`
	TransportRefund    int64  `json:"transport_refund,omitempty"`
}

// NetDTO is the informational clawback net figure.
type NetDTO struct {
	ProcessID string `json:"process_id"`
	Net       int64  `json:"net"`
}

// =============================================================================
// COMMUTING
// =============================================================================

// CheckRequest is a device check-in/out with the reported position.
type CheckRequest struct {
	TraineeID string  `json:"trainee_id"`
	Kind      string  `json:"kind"` // "checkIn" | "checkOut"
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
}

// ManualCommuteRequest records or corrects a day row without geofencing.
// Timestamps are RFC3339.
type ManualCommuteRequest struct {
	TraineeID  string `json:"trainee_id"`
	Date       string `json:"date"`
	CheckInAt  string `json:"check_in_at,omitempty"`
	CheckOutAt string `json:"check_out_at,omitempty"`
	Note       string `json:"note,omitempty"`
}

// CommuteRecordDTO is one day row, annotated with whether settlement-oriented
// aggregation counts it.
type CommuteRecordDTO struct {
	ID         string `json:"id"`
	TraineeID  string `json:"trainee_id"`
	Date       string `json:"date"`
	CheckInAt  string `json:"check_in_at,omitempty"`
	CheckOutAt string `json:"check_out_at,omitempty"`
	LocationID string `json:"location_id,omitempty"`
	Manual     bool   `json:"manual"`
	Note       string `json:"note,omitempty"`
	Counted    bool   `json:"counted"`
	Skipped    string `json:"skipped,omitempty"`
}

// LocationDTO represents a geofence reference location.
type LocationDTO struct {
	ID      string  `json:"id,omitempty"`
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	RadiusM float64 `json:"radius_m"`
	Active  bool    `json:"active"`
}
