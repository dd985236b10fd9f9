/*
handlers.go - HTTP API handlers for the settlement engine

PURPOSE:
  Exposes the compensation/settlement engine via REST. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Roster:
    GET/POST /api/batches                    List/create batches
    GET      /api/batches/{id}               Get batch
    GET/POST /api/batches/{id}/trainees      List/assign trainees
    GET/POST /api/batches/{id}/sessions      List/create sessions
    POST     /api/trainees                   Create trainee
    DELETE   /api/sessions/{id}              Delete session
    PUT      /api/attendance                 Upsert attendance outcome

  Ledger:
    POST /api/batches/{id}/ledger/sync       Resync compensation rows
    GET  /api/batches/{id}/ledger            List rows
    GET  /api/batches/{id}/ledger/totals     Batch total
    PUT  /api/ledger/override                Set/clear rate override

  Transport:
    POST /api/batches/{id}/transport/calculate  Dry-run fare calculation
    POST /api/batches/{id}/transport/commit     Persist reviewed results
    GET  /api/batches/{id}/transport            List records
    PUT  /api/transport/manual                  Hand-set one record

  Settlement:
    POST /api/batches/{id}/settlement/{kind}    Create process
    GET  /api/batches/{id}/settlement           List batch processes
    GET  /api/settlement/{id}                   Get process
    POST /api/settlement/{id}/advance           One stage forward
    POST /api/settlement/{id}/revert            One stage back
    PUT  /api/settlement/{id}/metadata          Edit metadata
    GET  /api/settlement/{id}/net               Clawback net figure

  Commuting:
    POST /api/commuting/check                   Geofenced check-in/out
    POST /api/commuting/manual                  Manual day record
    GET  /api/commuting/{traineeID}?batch_id=   Day rows for settlement
    GET/POST /api/locations                     Reference locations
    DELETE   /api/locations/{id}

ERROR HANDLING:
  Domain errors map to status codes in respond():
  - 400: validation errors, malformed input
  - 404: unknown batch/trainee/session/process
  - 409: stage boundary, precursor gating, duplicate process, sequence
         violations, concurrent modification
  - 422: geofence rejection (out of range, no active location)
  - 500: everything else
  The specific reason always travels in the JSON body.

SEE ALSO:
  - dto.go: request/response shapes
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/drillpay/settlement-engine/commuting"
	"github.com/drillpay/settlement-engine/compensation"
	"github.com/drillpay/settlement-engine/roster"
	"github.com/drillpay/settlement-engine/settlement"
	"github.com/drillpay/settlement-engine/store/sqlite"
	"github.com/drillpay/settlement-engine/transport"
)

const dayFormat = "2006-01-02"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Ledger     *compensation.Ledger
	Transport  *transport.Calculator
	Settlement *settlement.Engine
	Commuting  *commuting.Service
}

// NewHandler creates a handler over fully wired services.
func NewHandler(store *sqlite.Store, ledger *compensation.Ledger, tc *transport.Calculator, se *settlement.Engine, cs *commuting.Service) *Handler {
	return &Handler{
		Store:      store,
		Ledger:     ledger,
		Transport:  tc,
		Settlement: se,
		Commuting:  cs,
	}
}

// =============================================================================
// ROSTER HANDLERS
// =============================================================================

// ListBatches returns all batches.
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.Store.ListBatches(r.Context())
	if err != nil {
		respond(w, err)
		return
	}
	dtos := make([]BatchDTO, len(batches))
	for i, b := range batches {
		dtos[i] = toBatchDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateBatch creates or updates a batch.
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	start, err := time.ParseInLocation(dayFormat, req.StartDate, time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date (use YYYY-MM-DD)", err)
		return
	}
	end, err := time.ParseInLocation(dayFormat, req.EndDate, time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date (use YYYY-MM-DD)", err)
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end_date before start_date", nil)
		return
	}

	b := roster.Batch{
		ID:        roster.BatchID(req.ID),
		Name:      req.Name,
		StartDate: start,
		EndDate:   end,
		UnitName:  req.UnitName,
		UnitLat:   req.UnitLat,
		UnitLng:   req.UnitLng,
	}
	if err := h.Store.SaveBatch(r.Context(), b); err != nil {
		respond(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBatchDTO(b))
}

// GetBatch returns a single batch.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	b, err := h.Store.GetBatch(r.Context(), roster.BatchID(chi.URLParam(r, "id")))
	if err != nil {
		respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTO(*b))
}

// CreateTrainee creates or updates a trainee.
func (h *Handler) CreateTrainee(w http.ResponseWriter, r *http.Request) {
	var req TraineeDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}
	t := roster.Trainee{ID: roster.TraineeID(req.ID), Name: req.Name, Address: req.Address}
	if err := h.Store.SaveTrainee(r.Context(), t); err != nil {
		respond(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// AssignTrainee adds a trainee to a batch.
func (h *Handler) AssignTrainee(w http.ResponseWriter, r *http.Request) {
	batchID := roster.BatchID(chi.URLParam(r, "id"))
	var req AssignTraineeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if _, err := h.Store.GetBatch(r.Context(), batchID); err != nil {
		respond(w, err)
		return
	}
	if _, err := h.Store.GetTrainee(r.Context(), roster.TraineeID(req.TraineeID)); err != nil {
		respond(w, err)
		return
	}
	if err := h.Store.AssignTrainee(r.Context(), batchID, roster.TraineeID(req.TraineeID)); err != nil {
		respond(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTrainees returns the batch's trainees.
func (h *Handler) ListTrainees(w http.ResponseWriter, r *http.Request) {
	trainees, err := h.Store.ListTrainees(r.Context(), roster.BatchID(chi.URLParam(r, "id")))
	if err != nil {
		respond(w, err)
		return
	}
	dtos := make([]TraineeDTO, len(trainees))
	for i, t := range trainees {
		dtos[i] = TraineeDTO{ID: string(t.ID), Name: t.Name, Address: t.Address}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateSession schedules a training block in the batch.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	batchID := roster.BatchID(chi.URLParam(r, "id"))
	var req SessionDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}

	date, err := time.ParseInLocation(dayFormat, req.Date, time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}
	for _, clock := range []string{req.Start, req.End} {
		if clock == "" {
			continue
		}
		if _, err := roster.ParseClock(clock); err != nil {
			respond(w, err)
			return
		}
	}

	batch, err := h.Store.GetBatch(r.Context(), batchID)
	if err != nil {
		respond(w, err)
		return
	}
	if !batch.ContainsDay(date) {
		writeError(w, http.StatusBadRequest, "session date outside batch window", nil)
		return
	}

	sess := roster.TrainingSession{
		ID:                roster.SessionID(req.ID),
		BatchID:           batchID,
		Date:              date,
		Start:             req.Start,
		End:               req.End,
		Category:          req.Category,
		LunchPlan:         roster.LunchPlan(req.LunchPlan),
		CountsTowardHours: req.CountsTowardHours,
		AttendanceEnabled: req.AttendanceEnabled,
	}
	if err := h.Store.SaveSession(r.Context(), sess); err != nil {
		respond(w, err)
		return
	}
	req.BatchID = string(batchID)
	writeJSON(w, http.StatusCreated, req)
}

// ListSessions returns the batch's sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.Store.ListSessions(r.Context(), roster.BatchID(chi.URLParam(r, "id")))
	if err != nil {
		respond(w, err)
		return
	}
	dtos := make([]SessionDTO, len(sessions))
	for i, s := range sessions {
		dtos[i] = SessionDTO{
			ID:                string(s.ID),
			BatchID:           string(s.BatchID),
			Date:              s.Date.Format(dayFormat),
			Start:             s.Start,
			End:               s.End,
			Category:          s.Category,
			LunchPlan:         string(s.LunchPlan),
			CountsTowardHours: s.CountsTowardHours,
			AttendanceEnabled: s.AttendanceEnabled,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// DeleteSession removes a session. The next ledger sync prunes its rows.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteSession(r.Context(), roster.SessionID(chi.URLParam(r, "id"))); err != nil {
		respond(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpsertAttendance records one trainee's outcome for a session.
func (h *Handler) UpsertAttendance(w http.ResponseWriter, r *http.Request) {
	var req UpsertAttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	status := roster.AttendanceStatus(req.Status)
	switch status {
	case roster.AttendancePresent, roster.AttendanceAbsent, roster.AttendancePending:
	default:
		writeError(w, http.StatusBadRequest, "status must be PRESENT, ABSENT or PENDING", nil)
		return
	}
	if req.EarlyLeave != "" {
		if _, err := roster.ParseClock(req.EarlyLeave); err != nil {
			respond(w, err)
			return
		}
	}

	o := roster.AttendanceOutcome{
		TraineeID:  roster.TraineeID(req.TraineeID),
		SessionID:  roster.SessionID(req.SessionID),
		Status:     status,
		Reason:     req.Reason,
		EarlyLeave: req.EarlyLeave,
	}
	if err := h.Store.SaveOutcome(r.Context(), o); err != nil {
		respond(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// SyncLedger resynchronizes the batch's compensation rows.
func (h *Handler) SyncLedger(w http.ResponseWriter, r *http.Request) {
	report, err := h.Ledger.Sync(r.Context(), roster.BatchID(chi.URLParam(r, "id")))
	if err != nil {
		respond(w, err)
		return
	}

	dto := SyncReportDTO{
		BatchID:  string(report.BatchID),
		Upserted: report.Upserted,
		Deleted:  report.Deleted,
		Failures: make([]RowFailureDTO, len(report.Failures)),
	}
	for i, f := range report.Failures {
		dto.Failures[i] = RowFailureDTO{
			TraineeID: string(f.Key.TraineeID),
			SessionID: string(f.Key.SessionID),
			Error:     f.Err,
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// ListLedger returns the batch's compensation rows.
func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Ledger.Rows(r.Context(), roster.BatchID(chi.URLParam(r, "id")))
	if err != nil {
		respond(w, err)
		return
	}
	dtos := make([]LedgerRowDTO, len(rows))
	for i, row := range rows {
		final := row.Final()
		dtos[i] = LedgerRowDTO{
			TraineeID:     string(row.TraineeID),
			SessionID:     string(row.SessionID),
			TrainingHours: row.TrainingHours.String(),
			IsWeekend:     row.IsWeekend,
			DailyRate:     row.DailyRate,
			OverrideRate:  row.OverrideRate,
			FinalRate:     final.Amount,
			RateSource:    string(final.Source),
			SyncError:     row.SyncError,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// LedgerTotals returns the batch's summed final rates.
func (h *Handler) LedgerTotals(w http.ResponseWriter, r *http.Request) {
	batchID := roster.BatchID(chi.URLParam(r, "id"))
	total, err := h.Ledger.TotalForBatch(r.Context(), batchID)
	if err != nil {
		respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TotalsDTO{BatchID: string(batchID), Total: total})
}

// SetOverride sets or clears (amount null) an administrator rate override.
func (h *Handler) SetOverride(w http.ResponseWriter, r *http.Request) {
	var req SetOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	err := h.Ledger.SetOverride(r.Context(),
		roster.TraineeID(req.TraineeID), roster.SessionID(req.SessionID), req.Amount)
	if err != nil {
		respond(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TRANSPORT HANDLERS
// =============================================================================

// CalculateTransport runs the fare pipeline for every trainee of the batch.
// Persists nothing; the caller reviews and commits.
func (h *Handler) CalculateTransport(w http.ResponseWriter, r *http.Request) {
	results, err := h.Transport.CalculateForBatch(r.Context(), roster.BatchID(chi.URLParam(r, "id")))
	if err != nil {
		respond(w, err)
		return
	}
	dtos := make([]TransportResultDTO, len(results))
	for i, res := range results {
		dtos[i] = toTransportResultDTO(res)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CommitTransport persists reviewed calculation results.
func (h *Handler) CommitTransport(w http.ResponseWriter, r *http.Request) {
	batchID := roster.BatchID(chi.URLParam(r, "id"))
	var req CommitTransportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	results := make([]transport.Result, 0, len(req.Results))
	for _, dto := range req.Results {
		res, err := fromTransportResultDTO(dto)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid result for trainee "+dto.TraineeID, err)
			return
		}
		results = append(results, res)
	}

	committed, err := h.Transport.Commit(r.Context(), batchID, results, req.Force)
	if err != nil {
		respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"committed": committed})
}

// ListTransport returns the batch's persisted transport records.
func (h *Handler) ListTransport(w http.ResponseWriter, r *http.Request) {
	records, err := h.Transport.Records(r.Context(), roster.BatchID(chi.URLParam(r, "id")))
	if err != nil {
		respond(w, err)
		return
	}
	dtos := make([]TransportRecordDTO, len(records))
	for i, rec := range records {
		dto := TransportRecordDTO{
			TraineeID: string(rec.TraineeID),
			BatchID:   string(rec.BatchID),
			Address:   rec.Address,
			Status:    string(rec.Status),
			Amount:    rec.Amount,
			HasToll:   rec.HasToll,
			Detail:    rec.Detail,
			Manual:    rec.Manual,
		}
		if rec.DistanceKm != nil {
			dto.DistanceKm = rec.DistanceKm.String()
		}
		dtos[i] = dto
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SetManualTransport hand-sets one trainee's reimbursement. Manual records
// survive later commits unless forced.
func (h *Handler) SetManualTransport(w http.ResponseWriter, r *http.Request) {
	var req SetManualTransportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Amount < 0 {
		writeError(w, http.StatusBadRequest, "amount must not be negative", nil)
		return
	}
	err := h.Transport.SetManual(r.Context(),
		roster.TraineeID(req.TraineeID), roster.BatchID(req.BatchID), req.Amount, req.Address)
	if err != nil {
		respond(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// CreateSettlement starts a process of the given kind for the batch.
func (h *Handler) CreateSettlement(w http.ResponseWriter, r *http.Request) {
	batchID := roster.BatchID(chi.URLParam(r, "id"))
	kind := settlement.Kind(chi.URLParam(r, "kind"))
	if kind != settlement.KindDisbursement && kind != settlement.KindClawback {
		writeError(w, http.StatusBadRequest, "kind must be disbursement or clawback", nil)
		return
	}
	if _, err := h.Store.GetBatch(r.Context(), batchID); err != nil {
		respond(w, err)
		return
	}

	p, err := h.Settlement.Create(r.Context(), kind, batchID)
	if err != nil {
		respond(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProcessDTO(p))
}

// ListSettlement returns the batch's processes (either kind may be absent).
func (h *Handler) ListSettlement(w http.ResponseWriter, r *http.Request) {
	processes, err := h.Settlement.ForBatch(r.Context(), roster.BatchID(chi.URLParam(r, "id")))
	if err != nil {
		respond(w, err)
		return
	}
	dtos := make([]ProcessDTO, len(processes))
	for i, p := range processes {
		dtos[i] = toProcessDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSettlement returns one process by ID.
func (h *Handler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	p, err := h.Settlement.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProcessDTO(p))
}

// AdvanceSettlement moves the process one stage forward.
func (h *Handler) AdvanceSettlement(w http.ResponseWriter, r *http.Request) {
	p, err := h.Settlement.Advance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProcessDTO(p))
}

// RevertSettlement moves the process one stage back.
func (h *Handler) RevertSettlement(w http.ResponseWriter, r *http.Request) {
	p, err := h.Settlement.Revert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProcessDTO(p))
}

// UpdateSettlementMetadata replaces the process's editable fields.
func (h *Handler) UpdateSettlementMetadata(w http.ResponseWriter, r *http.Request) {
	var req MetadataDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.CompensationRefund < 0 || req.TransportRefund < 0 {
		writeError(w, http.StatusBadRequest, "refund amounts must not be negative", nil)
		return
	}

	p, err := h.Settlement.UpdateMetadata(r.Context(), chi.URLParam(r, "id"), settlement.Metadata{
		BankName:           req.BankName,
		AccountNo:          req.AccountNo,
		AccountHolder:      req.AccountHolder,
		Note:               req.Note,
		Reason:             req.Reason,
		CompensationRefund: req.CompensationRefund,
		TransportRefund:    req.TransportRefund,
	})
	if err != nil {
		respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProcessDTO(p))
}

// SettlementNet returns ledgerTotal - refundTotal for a clawback.
func (h *Handler) SettlementNet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	net, err := h.Settlement.Net(r.Context(), id)
	if err != nil {
		respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NetDTO{ProcessID: id, Net: net})
}

// =============================================================================
// COMMUTING HANDLERS
// =============================================================================

// CommuteCheck records a geofenced check-in or check-out.
func (h *Handler) CommuteCheck(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	kind := commuting.CheckKind(req.Kind)
	if kind != commuting.CheckIn && kind != commuting.CheckOut {
		writeError(w, http.StatusBadRequest, "kind must be checkIn or checkOut", nil)
		return
	}

	rec, err := h.Commuting.ValidateAndRecord(r.Context(),
		roster.TraineeID(req.TraineeID), commuting.Position{Lat: req.Lat, Lng: req.Lng}, kind)
	if err != nil {
		respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommuteRecordDTO(*rec, true, ""))
}

// CommuteManual records or corrects a day row without geofence validation.
func (h *Handler) CommuteManual(w http.ResponseWriter, r *http.Request) {
	var req ManualCommuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	day, err := time.ParseInLocation(dayFormat, req.Date, time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}
	checkIn, err := parseTimeDTO(req.CheckInAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid check_in_at (use RFC3339)", err)
		return
	}
	checkOut, err := parseTimeDTO(req.CheckOutAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid check_out_at (use RFC3339)", err)
		return
	}

	rec, err := h.Commuting.RecordManual(r.Context(),
		roster.TraineeID(req.TraineeID), day, checkIn, checkOut, req.Note)
	if err != nil {
		respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommuteRecordDTO(*rec, true, ""))
}

// ListCommuting returns a trainee's day rows inside the batch window,
// annotated with whether settlement counts them.
func (h *Handler) ListCommuting(w http.ResponseWriter, r *http.Request) {
	traineeID := roster.TraineeID(chi.URLParam(r, "traineeID"))
	batchID := roster.BatchID(r.URL.Query().Get("batch_id"))
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "batch_id query parameter is required", nil)
		return
	}

	views, err := h.Commuting.ListForSettlement(r.Context(), batchID, traineeID)
	if err != nil {
		respond(w, err)
		return
	}
	dtos := make([]CommuteRecordDTO, len(views))
	for i, v := range views {
		dtos[i] = toCommuteRecordDTO(v.Record, v.Counted, v.Skipped)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListLocations returns all geofence reference locations.
func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := h.Commuting.Locations(r.Context())
	if err != nil {
		respond(w, err)
		return
	}
	dtos := make([]LocationDTO, len(locs))
	for i, loc := range locs {
		dtos[i] = LocationDTO{
			ID: loc.ID, Name: loc.Name, Lat: loc.Lat, Lng: loc.Lng,
			RadiusM: loc.RadiusM, Active: loc.Active,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveLocation creates (blank ID) or updates a reference location.
func (h *Handler) SaveLocation(w http.ResponseWriter, r *http.Request) {
	var req LocationDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	saved, err := h.Commuting.SaveLocation(r.Context(), commuting.ReferenceLocation{
		ID: req.ID, Name: req.Name, Lat: req.Lat, Lng: req.Lng,
		RadiusM: req.RadiusM, Active: req.Active,
	})
	if err != nil {
		respond(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, LocationDTO{
		ID: saved.ID, Name: saved.Name, Lat: saved.Lat, Lng: saved.Lng,
		RadiusM: saved.RadiusM, Active: saved.Active,
	})
}

// DeleteLocation removes a reference location.
func (h *Handler) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	if err := h.Commuting.DeleteLocation(r.Context(), chi.URLParam(r, "id")); err != nil {
		respond(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// DTO CONVERSION
// =============================================================================

func toBatchDTO(b roster.Batch) BatchDTO {
	return BatchDTO{
		ID:        string(b.ID),
		Name:      b.Name,
		StartDate: b.StartDate.Format(dayFormat),
		EndDate:   b.EndDate.Format(dayFormat),
		UnitName:  b.UnitName,
		UnitLat:   b.UnitLat,
		UnitLng:   b.UnitLng,
	}
}

func toTransportResultDTO(res transport.Result) TransportResultDTO {
	dto := TransportResultDTO{
		TraineeID: string(res.TraineeID),
		Address:   res.Address,
		Status:    string(res.Status),
		Amount:    res.Amount,
		HasToll:   res.HasToll,
		Detail:    res.Detail,
	}
	if !res.DistanceKm.IsZero() {
		dto.DistanceKm = res.DistanceKm.String()
	}
	return dto
}

func fromTransportResultDTO(dto TransportResultDTO) (transport.Result, error) {
	res := transport.Result{
		TraineeID: roster.TraineeID(dto.TraineeID),
		Address:   dto.Address,
		Status:    transport.Status(dto.Status),
		Amount:    dto.Amount,
		HasToll:   dto.HasToll,
		Detail:    dto.Detail,
	}
	if dto.DistanceKm != "" {
		d, err := decimal.NewFromString(dto.DistanceKm)
		if err != nil {
			return transport.Result{}, err
		}
		res.DistanceKm = d
	}
	return res, nil
}

func toProcessDTO(p *settlement.Process) ProcessDTO {
	stages := settlement.Stages(p.Kind)
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = string(s)
	}
	milestones := make(map[string]string, len(p.Milestones))
	for stage, t := range p.Milestones {
		milestones[string(stage)] = t.UTC().Format(time.RFC3339)
	}
	return ProcessDTO{
		ID:         p.ID,
		BatchID:    string(p.BatchID),
		Kind:       string(p.Kind),
		Status:     string(p.Status),
		Stages:     names,
		Milestones: milestones,
		Metadata: MetadataDTO{
			BankName:           p.Metadata.BankName,
			AccountNo:          p.Metadata.AccountNo,
			AccountHolder:      p.Metadata.AccountHolder,
			Note:               p.Metadata.Note,
			Reason:             p.Metadata.Reason,
			CompensationRefund: p.Metadata.CompensationRefund,
			TransportRefund:    p.Metadata.TransportRefund,
		},
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toCommuteRecordDTO(rec commuting.Record, counted bool, skipped string) CommuteRecordDTO {
	dto := CommuteRecordDTO{
		ID:         rec.ID,
		TraineeID:  string(rec.TraineeID),
		Date:       rec.Date.Format(dayFormat),
		LocationID: rec.LocationID,
		Manual:     rec.Manual,
		Note:       rec.Note,
		Counted:    counted,
		Skipped:    skipped,
	}
	if rec.CheckInAt != nil {
		dto.CheckInAt = rec.CheckInAt.Format(time.RFC3339)
	}
	if rec.CheckOutAt != nil {
		dto.CheckOutAt = rec.CheckOutAt.Format(time.RFC3339)
	}
	return dto
}

func parseTimeDTO(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

// respond maps a domain error to its HTTP status. The reason travels in the
// JSON body so the operator sees why the operation was rejected.
func respond(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, roster.ErrValidation):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case errors.Is(err, sqlite.ErrNotFound), errors.Is(err, settlement.ErrProcessNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, settlement.ErrTerminalState),
		errors.Is(err, settlement.ErrInitialState),
		errors.Is(err, settlement.ErrPrecursorNotTerminal),
		errors.Is(err, settlement.ErrProcessExists),
		errors.Is(err, settlement.ErrConcurrentModification),
		errors.Is(err, commuting.ErrSequence):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, commuting.ErrOutOfRange), errors.Is(err, commuting.ErrNoActiveLocation):
		writeError(w, http.StatusUnprocessableEntity, "Geofence rejected", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
