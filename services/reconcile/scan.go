package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/ShadowAlejo/parqueadero/models"
)

// findByEitherField runs q once over the end field and once over the start
// field and merges the results by ID. Documents may carry only one of the two
// timestamps, so a single range query would miss some of them.
func findByEitherField(ctx context.Context, store Store, q ReservationQuery) ([]models.Reservation, error) {
	byEnd := q
	byEnd.Field = FieldEnd
	endHits, err := store.FindReservations(ctx, byEnd)
	if err != nil {
		return nil, storeErr(fmt.Sprintf("query reservations by %s", FieldEnd), err)
	}
	byStart := q
	byStart.Field = FieldStart
	startHits, err := store.FindReservations(ctx, byStart)
	if err != nil {
		return nil, storeErr(fmt.Sprintf("query reservations by %s", FieldStart), err)
	}

	seen := make(map[string]struct{}, len(endHits)+len(startHits))
	merged := make([]models.Reservation, 0, len(endHits)+len(startHits))
	for _, hits := range [][]models.Reservation{endHits, startHits} {
		for _, r := range hits {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			merged = append(merged, r)
		}
	}
	return merged, nil
}

// dayRange returns [start of the day lookback days before now, end of now's day).
func dayRange(h Hours, now time.Time, lookback int) (time.Time, time.Time) {
	day := h.DayOf(now)
	return day.Start.AddDate(0, 0, -lookback), day.End
}
