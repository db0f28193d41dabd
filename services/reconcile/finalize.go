package reconcile

import (
	"context"
	"time"

	"github.com/ShadowAlejo/parqueadero/models"
	"go.uber.org/zap"
)

// Finalizer moves occupying reservations whose window has elapsed to the
// finalized state and, in the same atomic batch, rewrites the availability of
// the spaces they held.
type Finalizer struct {
	Store      Store
	Settings   Settings
	Recomputer *Recomputer
	Logger     *zap.Logger
}

// FinalizeResult is the outcome of a committed finalize batch.
type FinalizeResult struct {
	Candidates int
	Finalized  int
	Malformed  int
	Deferred   int
	// Impacted holds the keys of spaces the finalized reservations held.
	Impacted KeySet
	Spaces   RecomputeResult
}

// Finalize selects today's elapsed reservations as of now, derives the
// availability of the spaces they free and commits both in one batch. On
// commit failure nothing is finalized or written.
func (f *Finalizer) Finalize(ctx context.Context, now time.Time) (FinalizeResult, error) {
	res := FinalizeResult{Impacted: KeySet{}}
	hours := f.Settings.Hours
	from, to := dayRange(hours, now, f.Settings.LookbackDays)

	candidates, err := findByEitherField(ctx, f.Store, ReservationQuery{
		States: models.OccupyingStates,
		From:   from,
		To:     to,
		Limit:  f.Settings.QueryLimit,
	})
	if err != nil {
		return FinalizeResult{}, err
	}
	res.Candidates = len(candidates)
	f.Logger.Info("finalize candidates loaded",
		zap.Int("candidates", res.Candidates),
		zap.Time("from", from),
		zap.Time("to", to))

	batch := f.Store.NewBatch()
	impacted := KeySet{}
	finalizing := map[string]struct{}{}
	for _, r := range candidates {
		if !r.State.Occupying() {
			continue
		}
		end, err := hours.EffectiveEnd(r)
		if err != nil {
			res.Malformed++
			f.Logger.Warn("skipping reservation without timestamps",
				zap.String("reservation_id", r.ID), zap.Error(err))
			continue
		}
		if end.Source == EndDefaultUnparsable {
			res.Malformed++
			f.Logger.Warn("unparsable end time, using default",
				zap.String("reservation_id", r.ID),
				zap.String("value", end.Raw),
				zap.String("default", hours.DefaultEnd.String()))
		}
		if now.Before(end.At) && now.Before(hours.CeilingOn(end.Base)) {
			continue
		}

		key, keyErr := ResourceKey(r.PrimaryRef, r.LegacyRef, f.Settings.ResourceCollection)
		// Every impacted space may need one availability write in this batch.
		cost := 1
		if _, seen := impacted[key]; keyErr == nil && !seen {
			cost++
		}
		if batch.Len()+len(impacted)+cost > f.Settings.MaxBatch {
			res.Deferred++
			continue
		}

		batch.Finalize(r.ID)
		finalizing[r.ID] = struct{}{}
		if keyErr != nil {
			res.Malformed++
			f.Logger.Warn("finalized reservation has no resolvable space",
				zap.String("reservation_id", r.ID), zap.Error(keyErr))
			continue
		}
		impacted.Add(key)
	}

	if res.Deferred > 0 {
		f.Logger.Info("finalize batch full, remainder deferred to next tick",
			zap.Int("deferred", res.Deferred), zap.Int("max_batch", f.Settings.MaxBatch))
	}
	if batch.Len() == 0 {
		f.Logger.Info("no reservations to finalize")
		return res, nil
	}
	finalized := batch.Len()

	rc := f.Recomputer
	if rc == nil {
		rc = &Recomputer{Store: f.Store, Settings: f.Settings, Logger: f.Logger}
	}
	spaces, err := rc.stage(ctx, now, impacted, batch, finalizing)
	if err != nil {
		return FinalizeResult{Candidates: res.Candidates, Malformed: res.Malformed, Impacted: KeySet{}},
			err
	}

	if err := batch.Commit(ctx); err != nil {
		f.Logger.Error("finalize batch failed",
			zap.Int("writes", batch.Len()), zap.Error(err))
		return FinalizeResult{Candidates: res.Candidates, Malformed: res.Malformed, Impacted: KeySet{}},
			storeErr("commit finalize batch", err)
	}

	res.Finalized = finalized
	res.Impacted = impacted
	res.Spaces = spaces
	f.Logger.Info("reservations finalized",
		zap.Int("finalized", res.Finalized),
		zap.Int("impacted_spaces", len(impacted)),
		zap.Int("spaces_written", res.Spaces.Written))
	return res, nil
}
