/*
resolver.go - Agreement resolution with default provisioning

PURPOSE:
  Finds the single agreement in force for a hotel at a point in time.
  When no agreement exists, materializes a default one (10% percentage,
  no preferred bonus) so commission calculation never blocks on missing
  configuration. The fallback is the one deliberate recover-and-continue
  path in this engine; it is logged at warning level, not treated as an
  error.

CONCURRENCY:
  Two concurrent resolutions for the same unconfigured hotel may both try
  to create the default. The storage layer's one-open-agreement-per-hotel
  uniqueness makes the second creation fail with ErrOpenAgreementConflict;
  the resolver then retries its lookup instead of propagating the failure.

SEE ALSO:
  - store.go: AgreementStore contract
  - engine.go: Calls Resolve during calculation
*/
package commission

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultBaseRate is the base rate of an auto-provisioned agreement.
var DefaultBaseRate = decimal.NewFromFloat(0.10)

// maxResolveAttempts bounds the lookup/create/lookup loop under the benign
// concurrent-provisioning race.
const maxResolveAttempts = 3

// Resolver locates the agreement valid at a given time, provisioning a
// default when the hotel has none.
type Resolver struct {
	Agreements AgreementStore

	// Logf receives warning-level events (default provisioning).
	// Defaults to log.Printf.
	Logf func(format string, args ...any)
}

func NewResolver(agreements AgreementStore) *Resolver {
	return &Resolver{Agreements: agreements, Logf: log.Printf}
}

// Resolve returns the agreement in force for hotelID at the given instant.
// Resolution never mutates or closes an existing agreement; its only side
// effect is creating the default when none exists.
func (r *Resolver) Resolve(ctx context.Context, hotelID HotelID, at time.Time) (*Agreement, error) {
	var lastErr error

	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		agreement, err := r.Agreements.AgreementAt(ctx, hotelID, at)
		if err != nil {
			return nil, fmt.Errorf("failed to look up agreement: %w", err)
		}
		if agreement != nil {
			return agreement, nil
		}

		r.logf("Warning: no active agreement for hotel %s at %s, creating default", hotelID, at.Format(time.RFC3339))

		def := Agreement{
			ID:             AgreementID(uuid.NewString()),
			HotelID:        hotelID,
			Type:           AgreementPercentage,
			BaseRate:       DefaultBaseRate,
			PreferredBonus: decimal.Zero,
			ValidFrom:      at,
			ValidTo:        nil,
		}

		err = r.Agreements.CreateAgreement(ctx, def)
		if err == nil {
			return &def, nil
		}
		if !IsRetryable(err) {
			return nil, fmt.Errorf("failed to create default agreement: %w", err)
		}

		// Lost the provisioning race: another resolution created an open
		// agreement first. Re-resolve and use whatever won.
		lastErr = err
	}

	return nil, fmt.Errorf("agreement resolution for hotel %s did not converge: %w", hotelID, lastErr)
}

func (r *Resolver) logf(format string, args ...any) {
	if r.Logf != nil {
		r.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}
