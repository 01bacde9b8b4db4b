/*
handlers.go - HTTP API handlers for the commission engine

PURPOSE:
  Exposes the commission engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Hotels:
    GET    /api/hotels                  List hotels
    POST   /api/hotels                  Create hotel
    GET    /api/hotels/{id}             Get hotel with bookings + agreements
    PATCH  /api/hotels/{id}             Update name/status
    DELETE /api/hotels/{id}             Smart delete (soft when active)

  Agreements:
    POST   /api/hotels/{id}/agreement   Close current + create new version
    GET    /api/hotels/{id}/agreement   Get open agreement
    PATCH  /api/hotels/{id}/agreement   Same close-and-create semantics
    GET    /api/hotels/{id}/agreements  All versions, newest first

  Bookings:
    POST   /api/hotels/{id}/bookings    Create booking
    GET    /api/hotels/{id}/bookings    List hotel bookings
    GET    /api/bookings/{id}           Get booking with commission
    POST   /api/bookings/{id}/complete  Complete + calculate commission
    POST   /api/bookings/{id}/commission  Manual (re)calculation
    GET    /api/bookings/{id}/commission  Get recorded commission

  Reporting:
    GET    /api/commissions/summary?month=YYYY-MM
    GET    /api/commissions/export?month=YYYY-MM   (CSV download)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: InvalidState (not-completed booking, malformed agreement spec)
  - 404: NotFound (hotel/booking/agreement/commission)
  - 409: Conflict (agreement race that did not converge)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/commission"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      commission.Store
	Engine     *commission.Engine
	Aggregator *commission.Aggregator

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store commission.Store) *Handler {
	return &Handler{
		Store:      store,
		Engine:     commission.NewEngine(store),
		Aggregator: commission.NewAggregator(store),
	}
}

// =============================================================================
// HOTEL HANDLERS
// =============================================================================

// ListHotels returns all hotels.
func (h *Handler) ListHotels(w http.ResponseWriter, r *http.Request) {
	hotels, err := h.Store.ListHotels(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list hotels", err)
		return
	}

	dtos := make([]HotelDTO, len(hotels))
	for i, hotel := range hotels {
		dtos[i] = toHotelDTO(hotel)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHotel creates a new hotel.
func (h *Handler) CreateHotel(w http.ResponseWriter, r *http.Request) {
	var req CreateHotelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	status := commission.HotelStatus(req.Status)
	if status == "" {
		status = commission.HotelStandard
	}
	if status != commission.HotelStandard && status != commission.HotelPreferred {
		writeError(w, http.StatusBadRequest, "status must be STANDARD or PREFERRED", nil)
		return
	}

	hotel := commission.Hotel{
		ID:        commission.HotelID(uuid.NewString()),
		Name:      req.Name,
		Status:    status,
		CreatedAt: time.Now(),
	}
	if err := h.Store.SaveHotel(r.Context(), hotel); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create hotel", err)
		return
	}
	writeJSON(w, http.StatusCreated, toHotelDTO(hotel))
}

// GetHotel returns a hotel with its bookings and agreement history.
func (h *Handler) GetHotel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := commission.HotelID(chi.URLParam(r, "id"))

	hotel, err := h.Store.GetHotel(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get hotel", err)
		return
	}
	if hotel == nil {
		writeError(w, http.StatusNotFound, "Hotel not found", nil)
		return
	}

	bookings, err := h.Store.ListHotelBookings(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list bookings", err)
		return
	}
	agreements, err := h.Store.ListAgreements(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list agreements", err)
		return
	}

	bookingDTOs := make([]BookingDTO, len(bookings))
	for i, b := range bookings {
		bookingDTOs[i] = toBookingDTO(b)
	}
	agreementDTOs := make([]AgreementDTO, len(agreements))
	for i, a := range agreements {
		agreementDTOs[i] = toAgreementDTO(a)
	}

	writeJSON(w, http.StatusOK, struct {
		HotelDTO
		Bookings   []BookingDTO   `json:"bookings"`
		Agreements []AgreementDTO `json:"agreements"`
	}{toHotelDTO(*hotel), bookingDTOs, agreementDTOs})
}

// UpdateHotel updates a hotel's name and status.
func (h *Handler) UpdateHotel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := commission.HotelID(chi.URLParam(r, "id"))

	var req CreateHotelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	hotel, err := h.Store.GetHotel(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get hotel", err)
		return
	}
	if hotel == nil {
		writeError(w, http.StatusNotFound, "Hotel not found", nil)
		return
	}

	if req.Name != "" {
		hotel.Name = req.Name
	}
	if req.Status != "" {
		status := commission.HotelStatus(req.Status)
		if status != commission.HotelStandard && status != commission.HotelPreferred {
			writeError(w, http.StatusBadRequest, "status must be STANDARD or PREFERRED", nil)
			return
		}
		hotel.Status = status
	}

	if err := h.Store.SaveHotel(ctx, *hotel); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update hotel", err)
		return
	}
	writeJSON(w, http.StatusOK, toHotelDTO(*hotel))
}

// DeleteHotel smart-deletes a hotel: soft delete when bookings or an open
// agreement exist, hard delete otherwise.
func (h *Handler) DeleteHotel(w http.ResponseWriter, r *http.Request) {
	id := commission.HotelID(chi.URLParam(r, "id"))

	result, err := h.Engine.DeleteHotel(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to delete hotel", err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteHotelDTO{
		HotelID:     string(result.HotelID),
		SoftDeleted: result.SoftDeleted,
		Message:     result.Message,
	})
}

// =============================================================================
// AGREEMENT HANDLERS
// =============================================================================

// CreateAgreement closes the open agreement and creates a new version.
func (h *Handler) CreateAgreement(w http.ResponseWriter, r *http.Request) {
	hotelID := commission.HotelID(chi.URLParam(r, "id"))

	var req AgreementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	agreement, err := h.Engine.CreateAgreement(r.Context(), hotelID, toAgreementSpec(req))
	if err != nil {
		writeEngineError(w, "Failed to create agreement", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAgreementDTO(*agreement))
}

// GetAgreement returns the hotel's currently open agreement.
func (h *Handler) GetAgreement(w http.ResponseWriter, r *http.Request) {
	hotelID := commission.HotelID(chi.URLParam(r, "id"))

	agreement, err := h.Engine.GetAgreement(r.Context(), hotelID)
	if err != nil {
		writeEngineError(w, "Failed to get agreement", err)
		return
	}
	writeJSON(w, http.StatusOK, toAgreementDTO(*agreement))
}

// PatchAgreement replaces the hotel's terms going forward.
func (h *Handler) PatchAgreement(w http.ResponseWriter, r *http.Request) {
	hotelID := commission.HotelID(chi.URLParam(r, "id"))

	var req AgreementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	agreement, err := h.Engine.PatchAgreement(r.Context(), hotelID, toAgreementSpec(req))
	if err != nil {
		writeEngineError(w, "Failed to patch agreement", err)
		return
	}
	writeJSON(w, http.StatusOK, toAgreementDTO(*agreement))
}

// ListAgreements returns all agreement versions for a hotel.
func (h *Handler) ListAgreements(w http.ResponseWriter, r *http.Request) {
	hotelID := commission.HotelID(chi.URLParam(r, "id"))

	agreements, err := h.Store.ListAgreements(r.Context(), hotelID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list agreements", err)
		return
	}

	dtos := make([]AgreementDTO, len(agreements))
	for i, a := range agreements {
		dtos[i] = toAgreementDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// BOOKING HANDLERS
// =============================================================================

// CreateBooking creates a booking for a hotel.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	hotelID := commission.HotelID(chi.URLParam(r, "id"))

	var req CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Amount < 0 {
		writeError(w, http.StatusBadRequest, "amount must be non-negative", nil)
		return
	}

	var completedAt *time.Time
	if req.CompletedAt != "" {
		t, err := time.Parse(time.RFC3339, req.CompletedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid completed_at (use RFC3339)", err)
			return
		}
		completedAt = &t
	}

	booking, err := h.Engine.CreateBooking(r.Context(), hotelID,
		decimal.NewFromFloat(req.Amount),
		commission.BookingStatus(req.Status), completedAt)
	if err != nil {
		writeEngineError(w, "Failed to create booking", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingDTO(*booking))
}

// ListHotelBookings returns all bookings for a hotel, with commissions.
func (h *Handler) ListHotelBookings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hotelID := commission.HotelID(chi.URLParam(r, "id"))

	bookings, err := h.Store.ListHotelBookings(ctx, hotelID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list bookings", err)
		return
	}

	dtos := make([]BookingDTO, len(bookings))
	for i, b := range bookings {
		dtos[i] = toBookingDTO(b)
		if comm, err := h.Store.GetCommission(ctx, b.ID); err == nil && comm != nil {
			dto := toCommissionDTO(*comm)
			dtos[i].Commission = &dto
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBooking returns a booking with its commission, if calculated.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := commission.BookingID(chi.URLParam(r, "id"))

	booking, err := h.Engine.GetBooking(ctx, id)
	if err != nil {
		writeEngineError(w, "Failed to get booking", err)
		return
	}

	dto := toBookingDTO(*booking)
	if comm, err := h.Store.GetCommission(ctx, id); err == nil && comm != nil {
		commDTO := toCommissionDTO(*comm)
		dto.Commission = &commDTO
	}
	writeJSON(w, http.StatusOK, dto)
}

// CompleteBooking transitions a booking to COMPLETED and calculates its
// commission. Idempotent for already-completed bookings.
func (h *Handler) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	id := commission.BookingID(chi.URLParam(r, "id"))

	booking, comm, err := h.Engine.CompleteBooking(r.Context(), id)
	if err != nil && booking == nil {
		writeEngineError(w, "Failed to complete booking", err)
		return
	}

	resp := CompleteBookingDTO{Booking: toBookingDTO(*booking)}
	if comm != nil {
		commDTO := toCommissionDTO(*comm)
		resp.Commission = &commDTO
	}
	if err != nil {
		// Completion committed but calculation failed. The booking payload
		// shows the committed transition, the status code the failure, so
		// status-code-driven clients notice and can retry the calculation.
		resp.Message = err.Error()
		writeJSON(w, errorStatus(err), resp)
		return
	}
	if comm == nil {
		resp.Message = "Booking already completed"
	}
	writeJSON(w, http.StatusOK, resp)
}

// CalculateCommission runs a manual (re)calculation for a booking.
func (h *Handler) CalculateCommission(w http.ResponseWriter, r *http.Request) {
	id := commission.BookingID(chi.URLParam(r, "id"))

	comm, err := h.Engine.Calculate(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to calculate commission", err)
		return
	}
	writeJSON(w, http.StatusOK, toCommissionDTO(*comm))
}

// GetCommission returns the recorded commission for a booking.
func (h *Handler) GetCommission(w http.ResponseWriter, r *http.Request) {
	id := commission.BookingID(chi.URLParam(r, "id"))

	comm, err := h.Store.GetCommission(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get commission", err)
		return
	}
	if comm == nil {
		writeError(w, http.StatusNotFound, "Commission not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toCommissionDTO(*comm))
}

// =============================================================================
// REPORTING HANDLERS
// =============================================================================

// Summary returns per-hotel totals for a month.
// GET /api/commissions/summary?month=YYYY-MM
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}

	summary, err := h.Aggregator.Summary(r.Context(), month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build summary", err)
		return
	}

	dtos := make(map[string]HotelSummaryDTO, len(summary))
	for name, s := range summary {
		total, _ := s.Total.Float64()
		dtos[name] = HotelSummaryDTO{Total: total, Bookings: s.Bookings}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Export streams the month's commissions as CSV.
// GET /api/commissions/export?month=YYYY-MM
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}

	rows, err := h.Aggregator.Export(r.Context(), month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build export", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="commissions-%s.csv"`, month))
	w.WriteHeader(http.StatusOK)

	if err := commission.WriteCSV(w, rows); err != nil {
		// Headers already sent; nothing useful left to do but log via middleware.
		return
	}
}

func monthParam(w http.ResponseWriter, r *http.Request) (commission.Month, bool) {
	raw := r.URL.Query().Get("month")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "month is required (YYYY-MM)", nil)
		return commission.Month{}, false
	}
	month, err := commission.ParseMonth(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
		return commission.Month{}, false
	}
	return month, true
}

// =============================================================================
// HELPERS
// =============================================================================

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

// errorStatus maps the engine's error taxonomy to an HTTP status code.
func errorStatus(err error) int {
	switch {
	case commission.IsNotFound(err):
		return http.StatusNotFound
	case commission.IsInvalidState(err):
		return http.StatusBadRequest
	case commission.IsRetryable(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, message string, err error) {
	writeError(w, errorStatus(err), message, err)
}
