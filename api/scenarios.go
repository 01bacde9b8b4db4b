/*
scenarios.go - Demo scenario loaders

PURPOSE:
  Seeds the store with realistic demo data so the API can be explored
  without manual setup. Each scenario builds hotels, agreements, and
  bookings through the same engine paths the API uses, so loaded data
  obeys every invariant (append-only agreements, one commission per
  booking).

SCENARIOS:
  percentage-basics:  STANDARD hotel on a 10% agreement
  preferred-partner:  PREFERRED hotel stacking a preferred bonus
  tiered-volume:      TIERED agreement crossing volume thresholds
  rate-change:        Mid-month agreement version change, recalculation

SEE ALSO:
  - server.go: /api/scenarios routes (list, current, load)
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/commission"
)

type scenario struct {
	ID          string
	Name        string
	Description string
	Load        func(ctx context.Context, h *Handler) error
}

func scenarios() []scenario {
	return []scenario{
		{
			ID:          "percentage-basics",
			Name:        "Percentage Basics",
			Description: "A STANDARD hotel on a 10% base-rate agreement with a few completed bookings",
			Load:        loadPercentageBasics,
		},
		{
			ID:          "preferred-partner",
			Name:        "Preferred Partner",
			Description: "A PREFERRED hotel whose agreement stacks a 20% preferred bonus on the base rate",
			Load:        loadPreferredPartner,
		},
		{
			ID:          "tiered-volume",
			Name:        "Tiered Volume",
			Description: "A TIERED agreement whose bonus unlocks as monthly completed volume crosses thresholds",
			Load:        loadTieredVolume,
		},
		{
			ID:          "rate-change",
			Name:        "Rate Change",
			Description: "An agreement version change mid-stream; historical bookings keep their original terms",
			Load:        loadRateChange,
		},
	}
}

// ListScenarios returns all demo scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	var dtos []ScenarioDTO
	for _, s := range scenarios() {
		dtos = append(dtos, ScenarioDTO{ID: s.ID, Name: s.Name, Description: s.Description})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CurrentScenario reports the most recently loaded scenario, empty when none
// has been loaded yet.
// GET /api/scenarios/current
func (h *Handler) CurrentScenario(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"scenario": h.currentScenario})
}

// LoadScenario seeds the store with a scenario's demo data.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	for _, s := range scenarios() {
		if s.ID != req.ScenarioID {
			continue
		}
		if err := s.Load(r.Context(), h); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
			return
		}
		h.currentScenario = s.ID
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "scenario": s.ID})
		return
	}

	writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown scenario %q", req.ScenarioID), nil)
}

// =============================================================================
// SCENARIO BUILDERS
// =============================================================================

func (h *Handler) seedHotel(ctx context.Context, name string, status commission.HotelStatus) (commission.HotelID, error) {
	hotel := commission.Hotel{
		ID:        commission.HotelID(uuid.NewString()),
		Name:      name,
		Status:    status,
		CreatedAt: time.Now(),
	}
	return hotel.ID, h.Store.SaveHotel(ctx, hotel)
}

func (h *Handler) seedCompletedBookings(ctx context.Context, hotelID commission.HotelID, amounts ...float64) error {
	for _, amount := range amounts {
		b, err := h.Engine.CreateBooking(ctx, hotelID, decimal.NewFromFloat(amount), commission.BookingPending, nil)
		if err != nil {
			return err
		}
		if _, _, err := h.Engine.CompleteBooking(ctx, b.ID); err != nil {
			return err
		}
	}
	return nil
}

func loadPercentageBasics(ctx context.Context, h *Handler) error {
	hotelID, err := h.seedHotel(ctx, "Harborview Inn", commission.HotelStandard)
	if err != nil {
		return err
	}
	_, err = h.Engine.CreateAgreement(ctx, hotelID, commission.AgreementSpec{
		Type:     commission.AgreementPercentage,
		BaseRate: commission.RateOf(decimal.NewFromFloat(0.10)),
	})
	if err != nil {
		return err
	}
	return h.seedCompletedBookings(ctx, hotelID, 100, 250, 80)
}

func loadPreferredPartner(ctx context.Context, h *Handler) error {
	hotelID, err := h.seedHotel(ctx, "Grand Meridian", commission.HotelPreferred)
	if err != nil {
		return err
	}
	_, err = h.Engine.CreateAgreement(ctx, hotelID, commission.AgreementSpec{
		Type:           commission.AgreementPercentage,
		BaseRate:       commission.RateOf(decimal.NewFromFloat(0.10)),
		PreferredBonus: decimal.NewFromFloat(0.20),
	})
	if err != nil {
		return err
	}
	return h.seedCompletedBookings(ctx, hotelID, 100, 500)
}

func loadTieredVolume(ctx context.Context, h *Handler) error {
	hotelID, err := h.seedHotel(ctx, "Summit Lodge", commission.HotelStandard)
	if err != nil {
		return err
	}
	_, err = h.Engine.CreateAgreement(ctx, hotelID, commission.AgreementSpec{
		Type: commission.AgreementTiered,
		Tiers: []commission.TierSpec{
			{MinBookings: 1, BonusRate: decimal.NewFromFloat(0.02)},
			{MinBookings: 5, BonusRate: decimal.NewFromFloat(0.05)},
			{MinBookings: 10, BonusRate: decimal.NewFromFloat(0.08)},
		},
	})
	if err != nil {
		return err
	}
	// Six completions: the later ones cross the 5-booking threshold.
	return h.seedCompletedBookings(ctx, hotelID, 120, 90, 200, 150, 110, 300)
}

func loadRateChange(ctx context.Context, h *Handler) error {
	hotelID, err := h.seedHotel(ctx, "Riverside Suites", commission.HotelStandard)
	if err != nil {
		return err
	}
	if _, err := h.Engine.CreateAgreement(ctx, hotelID, commission.AgreementSpec{
		Type:     commission.AgreementPercentage,
		BaseRate: commission.RateOf(decimal.NewFromFloat(0.10)),
	}); err != nil {
		return err
	}
	if err := h.seedCompletedBookings(ctx, hotelID, 400); err != nil {
		return err
	}

	// New terms going forward; the earlier booking keeps its 10% history.
	if _, err := h.Engine.PatchAgreement(ctx, hotelID, commission.AgreementSpec{
		Type:    commission.AgreementFlat,
		FlatFee: commission.RateOf(decimal.NewFromFloat(25)),
	}); err != nil {
		return err
	}
	return h.seedCompletedBookings(ctx, hotelID, 400)
}
