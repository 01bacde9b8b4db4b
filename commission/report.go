/*
report.go - Monthly aggregation and export

PURPOSE:
  Pure reductions over previously recorded commissions: a per-hotel
  summary for a calendar month, and a flat row sequence with a stable
  column order for downstream consumers. Runs independently of the
  calculation pipeline; reads only.

EXPORT CONTRACT:
  Column order is fixed and a compatibility surface:
    hotel_name, booking_id, amount, applied_rate, calculated_at
  calculated_at uses RFC3339 so rows round-trip textually. Rows are sorted
  by hotel name, then calculated_at, then booking id, so repeated exports
  of the same month are byte-identical.

SEE ALSO:
  - store.go: CommissionStore.ListCommissions
  - api/handlers.go: CSV download endpoint
*/
package commission

import (
	"context"
	"encoding/csv"
	"io"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// HotelSummary is one hotel's monthly totals.
type HotelSummary struct {
	Total    decimal.Decimal
	Bookings int
}

// ExportRow is one line of the monthly export, in stable column order.
type ExportRow struct {
	HotelName    string
	BookingID    BookingID
	Amount       decimal.Decimal
	AppliedRate  decimal.Decimal
	CalculatedAt time.Time
}

// Aggregator reduces recorded commissions over a calendar month.
type Aggregator struct {
	Commissions CommissionStore
}

func NewAggregator(store CommissionStore) *Aggregator {
	return &Aggregator{Commissions: store}
}

// Summary returns per-hotel totals and counts for commissions whose
// calculatedAt falls in the given month.
func (a *Aggregator) Summary(ctx context.Context, month Month) (map[string]HotelSummary, error) {
	rows, err := a.Commissions.ListCommissions(ctx, month.Start(), month.End())
	if err != nil {
		return nil, err
	}

	summary := make(map[string]HotelSummary)
	for _, r := range rows {
		s := summary[r.HotelName]
		s.Total = s.Total.Add(r.Amount)
		s.Bookings++
		summary[r.HotelName] = s
	}
	return summary, nil
}

// Export returns the month's commissions as flat rows in deterministic order.
func (a *Aggregator) Export(ctx context.Context, month Month) ([]ExportRow, error) {
	records, err := a.Commissions.ListCommissions(ctx, month.Start(), month.End())
	if err != nil {
		return nil, err
	}

	rows := make([]ExportRow, len(records))
	for i, r := range records {
		rows[i] = ExportRow{
			HotelName:    r.HotelName,
			BookingID:    r.BookingID,
			Amount:       r.Amount,
			AppliedRate:  r.AppliedRate,
			CalculatedAt: r.CalculatedAt,
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].HotelName != rows[j].HotelName {
			return rows[i].HotelName < rows[j].HotelName
		}
		if !rows[i].CalculatedAt.Equal(rows[j].CalculatedAt) {
			return rows[i].CalculatedAt.Before(rows[j].CalculatedAt)
		}
		return rows[i].BookingID < rows[j].BookingID
	})
	return rows, nil
}

// exportHeader is the fixed CSV column order.
var exportHeader = []string{"hotel_name", "booking_id", "amount", "applied_rate", "calculated_at"}

// WriteCSV renders export rows as CSV with the fixed header.
func WriteCSV(w io.Writer, rows []ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.HotelName,
			string(r.BookingID),
			r.Amount.String(),
			r.AppliedRate.String(),
			r.CalculatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
