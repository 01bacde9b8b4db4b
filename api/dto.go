/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Internally everything is decimal.Decimal; DTOs expose float64 for JSON
  ergonomics. Conversion happens only at the API boundary, after the
  engine has already rounded persisted amounts.

SEE ALSO:
  - handlers.go: Uses these types
  - commission/types.go: The domain model behind them
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/commission"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// HotelDTO represents a hotel in API responses.
type HotelDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	IsDeleted bool   `json:"is_deleted,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateHotelRequest creates or updates a hotel.
type CreateHotelRequest struct {
	Name   string `json:"name"`
	Status string `json:"status,omitempty"` // STANDARD (default) or PREFERRED
}

// BookingDTO represents a booking in API responses.
type BookingDTO struct {
	ID          string         `json:"id"`
	HotelID     string         `json:"hotel_id"`
	Amount      float64        `json:"amount"`
	Status      string         `json:"status"`
	CompletedAt *string        `json:"completed_at,omitempty"`
	CreatedAt   string         `json:"created_at,omitempty"`
	Commission  *CommissionDTO `json:"commission,omitempty"`
}

// CreateBookingRequest creates a booking for a hotel.
type CreateBookingRequest struct {
	Amount      float64 `json:"amount"`
	Status      string  `json:"status,omitempty"`       // PENDING (default) or COMPLETED
	CompletedAt string  `json:"completed_at,omitempty"` // RFC3339, only with COMPLETED
}

// TierDTO is one volume tier of a TIERED agreement.
type TierDTO struct {
	MinBookings int     `json:"min_bookings"`
	BonusRate   float64 `json:"bonus_rate"`
	BonusType   string  `json:"bonus_type,omitempty"` // PERCENTAGE (default) or FLAT
}

// AgreementDTO represents an agreement version in API responses.
type AgreementDTO struct {
	ID             string    `json:"id"`
	HotelID        string    `json:"hotel_id"`
	Type           string    `json:"type"`
	BaseRate       float64   `json:"base_rate,omitempty"`
	FlatFee        float64   `json:"flat_fee,omitempty"`
	PreferredBonus float64   `json:"preferred_bonus,omitempty"`
	ValidFrom      string    `json:"valid_from"`
	ValidTo        *string   `json:"valid_to,omitempty"`
	Tiers          []TierDTO `json:"tiers,omitempty"`
}

// AgreementRequest is the spec for a new agreement version. BaseRate and
// FlatFee are pointers so a client sending an explicit 0 is distinguishable
// from one omitting the field.
type AgreementRequest struct {
	Type           string    `json:"type"`
	BaseRate       *float64  `json:"base_rate,omitempty"`
	FlatFee        *float64  `json:"flat_fee,omitempty"`
	PreferredBonus float64   `json:"preferred_bonus,omitempty"`
	Tiers          []TierDTO `json:"tiers,omitempty"`
}

// CommissionDTO represents a computed commission.
type CommissionDTO struct {
	ID           string             `json:"id"`
	BookingID    string             `json:"booking_id"`
	AgreementID  string             `json:"agreement_id"`
	Amount       float64            `json:"amount"`
	AppliedRate  float64            `json:"applied_rate"`
	Breakdown    map[string]float64 `json:"breakdown"`
	CalculatedAt string             `json:"calculated_at"`
}

// CompleteBookingDTO is the response after a completion call.
type CompleteBookingDTO struct {
	Message    string         `json:"message,omitempty"`
	Booking    BookingDTO     `json:"booking"`
	Commission *CommissionDTO `json:"commission,omitempty"`
}

// HotelSummaryDTO is one hotel's totals in the monthly summary.
type HotelSummaryDTO struct {
	Total    float64 `json:"total"`
	Bookings int     `json:"bookings"`
}

// DeleteHotelDTO reports smart-delete disposition.
type DeleteHotelDTO struct {
	HotelID     string `json:"hotel_id"`
	SoftDeleted bool   `json:"soft_deleted"`
	Message     string `json:"message"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toHotelDTO(h commission.Hotel) HotelDTO {
	return HotelDTO{
		ID:        string(h.ID),
		Name:      h.Name,
		Status:    string(h.Status),
		IsDeleted: h.Deleted,
		CreatedAt: h.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toBookingDTO(b commission.Booking) BookingDTO {
	amount, _ := b.Amount.Float64()
	dto := BookingDTO{
		ID:        string(b.ID),
		HotelID:   string(b.HotelID),
		Amount:    amount,
		Status:    string(b.Status),
		CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339),
	}
	if b.CompletedAt != nil {
		completed := b.CompletedAt.UTC().Format(time.RFC3339)
		dto.CompletedAt = &completed
	}
	return dto
}

func toAgreementDTO(a commission.Agreement) AgreementDTO {
	baseRate, _ := a.BaseRate.Float64()
	flatFee, _ := a.FlatFee.Float64()
	preferred, _ := a.PreferredBonus.Float64()

	dto := AgreementDTO{
		ID:             string(a.ID),
		HotelID:        string(a.HotelID),
		Type:           string(a.Type),
		BaseRate:       baseRate,
		FlatFee:        flatFee,
		PreferredBonus: preferred,
		ValidFrom:      a.ValidFrom.UTC().Format(time.RFC3339),
	}
	if a.ValidTo != nil {
		to := a.ValidTo.UTC().Format(time.RFC3339)
		dto.ValidTo = &to
	}
	for _, t := range a.Tiers {
		rate, _ := t.BonusRate.Float64()
		dto.Tiers = append(dto.Tiers, TierDTO{
			MinBookings: t.MinBookings,
			BonusRate:   rate,
			BonusType:   string(t.BonusType),
		})
	}
	return dto
}

func toCommissionDTO(c commission.Commission) CommissionDTO {
	amount, _ := c.Amount.Float64()
	appliedRate, _ := c.AppliedRate.Float64()

	breakdown := make(map[string]float64, len(c.Breakdown))
	for k, v := range c.Breakdown {
		f, _ := v.Float64()
		breakdown[k] = f
	}

	return CommissionDTO{
		ID:           string(c.ID),
		BookingID:    string(c.BookingID),
		AgreementID:  string(c.AgreementID),
		Amount:       amount,
		AppliedRate:  appliedRate,
		Breakdown:    breakdown,
		CalculatedAt: c.CalculatedAt.UTC().Format(time.RFC3339),
	}
}

func toAgreementSpec(req AgreementRequest) commission.AgreementSpec {
	spec := commission.AgreementSpec{
		Type:           commission.AgreementType(req.Type),
		PreferredBonus: decimal.NewFromFloat(req.PreferredBonus),
	}
	if req.BaseRate != nil {
		spec.BaseRate = commission.RateOf(decimal.NewFromFloat(*req.BaseRate))
	}
	if req.FlatFee != nil {
		spec.FlatFee = commission.RateOf(decimal.NewFromFloat(*req.FlatFee))
	}
	for _, t := range req.Tiers {
		spec.Tiers = append(spec.Tiers, commission.TierSpec{
			MinBookings: t.MinBookings,
			BonusRate:   decimal.NewFromFloat(t.BonusRate),
			BonusType:   commission.TierBonusType(t.BonusType),
		})
	}
	return spec
}
