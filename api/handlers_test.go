/*
handlers_test.go - HTTP-level tests for the commission API

Tests for:
- Hotel/agreement/booking lifecycle through the router
- Error taxonomy -> status code mapping
- Monthly summary and CSV export endpoints
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/store/sqlite"
)

func f64(v float64) *float64 { return &v }

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store)
	h.Engine.Logf = func(string, ...any) {}
	h.Engine.Resolver.Logf = h.Engine.Logf
	return NewRouter(h)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(into))
}

func createHotel(t *testing.T, router http.Handler, name, status string) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/hotels", CreateHotelRequest{Name: name, Status: status})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var dto HotelDTO
	decodeJSON(t, rec, &dto)
	return dto.ID
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	// GIVEN: A hotel with a 10% agreement
	// WHEN: Creating a booking and completing it over HTTP
	// THEN: The completion response carries the calculated commission, and
	//       the commission endpoint returns the same record

	router := newTestRouter(t)
	hotelID := createHotel(t, router, "Harborview Inn", "")

	rec := doJSON(t, router, http.MethodPost, "/api/hotels/"+hotelID+"/agreement", AgreementRequest{
		Type: "PERCENTAGE", BaseRate: f64(0.10),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/api/hotels/"+hotelID+"/bookings", CreateBookingRequest{Amount: 100})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var booking BookingDTO
	decodeJSON(t, rec, &booking)
	assert.Equal(t, "PENDING", booking.Status)

	rec = doJSON(t, router, http.MethodPost, "/api/bookings/"+booking.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var completed CompleteBookingDTO
	decodeJSON(t, rec, &completed)
	assert.Equal(t, "COMPLETED", completed.Booking.Status)
	require.NotNil(t, completed.Commission)
	assert.InDelta(t, 10.0, completed.Commission.Amount, 1e-9)
	assert.InDelta(t, 0.10, completed.Commission.AppliedRate, 1e-9)

	rec = doJSON(t, router, http.MethodGet, "/api/bookings/"+booking.ID+"/commission", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var comm CommissionDTO
	decodeJSON(t, rec, &comm)
	assert.Equal(t, completed.Commission.ID, comm.ID)

	// Completing again is a no-op, not an error.
	rec = doJSON(t, router, http.MethodPost, "/api/bookings/"+booking.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var again CompleteBookingDTO
	decodeJSON(t, rec, &again)
	assert.Nil(t, again.Commission)
	assert.Equal(t, "Booking already completed", again.Message)
}

func TestErrorStatusMapping(t *testing.T) {
	router := newTestRouter(t)
	hotelID := createHotel(t, router, "Harborview Inn", "")

	// Unknown booking -> 404
	rec := doJSON(t, router, http.MethodPost, "/api/bookings/ghost/complete", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Unknown hotel on agreement creation -> 404
	rec = doJSON(t, router, http.MethodPost, "/api/hotels/ghost/agreement", AgreementRequest{
		Type: "PERCENTAGE", BaseRate: f64(0.10),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Malformed agreement spec -> 400
	rec = doJSON(t, router, http.MethodPost, "/api/hotels/"+hotelID+"/agreement", AgreementRequest{
		Type: "TIERED",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Omitted base_rate -> 400; an explicit zero rate is legal
	rec = doJSON(t, router, http.MethodPost, "/api/hotels/"+hotelID+"/agreement", AgreementRequest{
		Type: "PERCENTAGE",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doJSON(t, router, http.MethodPost, "/api/hotels/"+hotelID+"/agreement", AgreementRequest{
		Type: "PERCENTAGE", BaseRate: f64(0),
	})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Booking status outside the lifecycle enum -> 400
	rec = doJSON(t, router, http.MethodPost, "/api/hotels/"+hotelID+"/bookings", CreateBookingRequest{
		Amount: 10, Status: "BOGUS",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Calculation on a pending booking -> 400
	rec = doJSON(t, router, http.MethodPost, "/api/hotels/"+hotelID+"/bookings", CreateBookingRequest{Amount: 50})
	require.Equal(t, http.StatusCreated, rec.Code)
	var booking BookingDTO
	decodeJSON(t, rec, &booking)

	rec = doJSON(t, router, http.MethodPost, "/api/bookings/"+booking.ID+"/commission", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// No commission recorded yet -> 404
	rec = doJSON(t, router, http.MethodGet, "/api/bookings/"+booking.ID+"/commission", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAgreementVersioningOverHTTP(t *testing.T) {
	// PATCH closes the current version and opens a new one; the history
	// endpoint shows both.

	router := newTestRouter(t)
	hotelID := createHotel(t, router, "Riverside Suites", "")

	rec := doJSON(t, router, http.MethodPost, "/api/hotels/"+hotelID+"/agreement", AgreementRequest{
		Type: "PERCENTAGE", BaseRate: f64(0.10),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPatch, "/api/hotels/"+hotelID+"/agreement", AgreementRequest{
		Type: "FLAT", FlatFee: f64(25),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var current AgreementDTO
	decodeJSON(t, rec, &current)
	assert.Equal(t, "FLAT", current.Type)

	rec = doJSON(t, router, http.MethodGet, "/api/hotels/"+hotelID+"/agreement", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var open AgreementDTO
	decodeJSON(t, rec, &open)
	assert.Equal(t, current.ID, open.ID)
	assert.Nil(t, open.ValidTo)

	rec = doJSON(t, router, http.MethodGet, "/api/hotels/"+hotelID+"/agreements", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []AgreementDTO
	decodeJSON(t, rec, &history)
	require.Len(t, history, 2)
	assert.Equal(t, current.ID, history[0].ID, "newest version first")
	require.NotNil(t, history[1].ValidTo, "previous version must be closed")
}

func TestSummaryAndExportOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	hotelID := createHotel(t, router, "Grand Meridian", "PREFERRED")

	rec := doJSON(t, router, http.MethodPost, "/api/hotels/"+hotelID+"/agreement", AgreementRequest{
		Type: "PERCENTAGE", BaseRate: f64(0.10), PreferredBonus: 0.20,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var month string
	for _, amount := range []float64{100, 200} {
		rec = doJSON(t, router, http.MethodPost, "/api/hotels/"+hotelID+"/bookings", CreateBookingRequest{Amount: amount})
		require.Equal(t, http.StatusCreated, rec.Code)
		var booking BookingDTO
		decodeJSON(t, rec, &booking)

		rec = doJSON(t, router, http.MethodPost, "/api/bookings/"+booking.ID+"/complete", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var completed CompleteBookingDTO
		decodeJSON(t, rec, &completed)
		require.NotNil(t, completed.Commission)
		month = completed.Commission.CalculatedAt[:7]
	}

	rec = doJSON(t, router, http.MethodGet, "/api/commissions/summary?month="+month, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary map[string]HotelSummaryDTO
	decodeJSON(t, rec, &summary)
	require.Contains(t, summary, "Grand Meridian")
	assert.Equal(t, 2, summary["Grand Meridian"].Bookings)
	assert.InDelta(t, 90.0, summary["Grand Meridian"].Total, 1e-9) // 30 + 60 at 30%

	rec = doJSON(t, router, http.MethodGet, "/api/commissions/export?month="+month, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, fmt.Sprintf(`attachment; filename="commissions-%s.csv"`, month), rec.Header().Get("Content-Disposition"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "hotel_name,booking_id,amount,applied_rate,calculated_at", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "Grand Meridian,"))

	// Month is mandatory and validated.
	rec = doJSON(t, router, http.MethodGet, "/api/commissions/summary", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doJSON(t, router, http.MethodGet, "/api/commissions/export?month=March", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// flakyCommissionStore fails commission upserts on demand, leaving the rest
// of the store intact.
type flakyCommissionStore struct {
	commission.Store
	fail bool
}

func (s *flakyCommissionStore) UpsertCommission(ctx context.Context, c commission.Commission) (*commission.Commission, error) {
	if s.fail {
		return nil, errors.New("simulated storage outage")
	}
	return s.Store.UpsertCommission(ctx, c)
}

func TestCompleteBooking_CalculationFailureGetsErrorStatus(t *testing.T) {
	// GIVEN: A booking whose completion commits but whose commission write
	//        fails
	// WHEN: Completing over HTTP
	// THEN: The response carries an error status (not 200) together with the
	//       committed booking, and a later manual calculation repairs it

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	flaky := &flakyCommissionStore{Store: store}

	h := NewHandler(flaky)
	h.Engine.Logf = func(string, ...any) {}
	h.Engine.Resolver.Logf = h.Engine.Logf
	router := NewRouter(h)

	hotelID := createHotel(t, router, "Harborview Inn", "")
	rec := doJSON(t, router, http.MethodPost, "/api/hotels/"+hotelID+"/agreement", AgreementRequest{
		Type: "PERCENTAGE", BaseRate: f64(0.10),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/hotels/"+hotelID+"/bookings", CreateBookingRequest{Amount: 100})
	require.Equal(t, http.StatusCreated, rec.Code)
	var booking BookingDTO
	decodeJSON(t, rec, &booking)

	flaky.fail = true
	rec = doJSON(t, router, http.MethodPost, "/api/bookings/"+booking.ID+"/complete", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp CompleteBookingDTO
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "COMPLETED", resp.Booking.Status, "completion must have committed")
	assert.Nil(t, resp.Commission)
	assert.NotEmpty(t, resp.Message)

	// The state is repairable: recalculate once the store recovers.
	flaky.fail = false
	rec = doJSON(t, router, http.MethodPost, "/api/bookings/"+booking.ID+"/commission", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var comm CommissionDTO
	decodeJSON(t, rec, &comm)
	assert.InDelta(t, 10.0, comm.Amount, 1e-9)
}

func TestDeleteHotelOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	// Unused hotel: hard delete.
	unusedID := createHotel(t, router, "Empty Hotel", "")
	rec := doJSON(t, router, http.MethodDelete, "/api/hotels/"+unusedID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var deletion DeleteHotelDTO
	decodeJSON(t, rec, &deletion)
	assert.False(t, deletion.SoftDeleted)

	rec = doJSON(t, router, http.MethodGet, "/api/hotels/"+unusedID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Hotel with a booking: soft delete, still readable.
	usedID := createHotel(t, router, "Busy Hotel", "")
	rec = doJSON(t, router, http.MethodPost, "/api/hotels/"+usedID+"/bookings", CreateBookingRequest{Amount: 10})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/hotels/"+usedID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &deletion)
	assert.True(t, deletion.SoftDeleted)

	rec = doJSON(t, router, http.MethodGet, "/api/hotels/"+usedID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hotel HotelDTO
	decodeJSON(t, rec, &hotel)
	assert.True(t, hotel.IsDeleted)
}
