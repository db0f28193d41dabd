package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/ShadowAlejo/parqueadero/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Recomputer derives each space's availability from the reservation set.
type Recomputer struct {
	Store    Store
	Settings Settings
	Logger   *zap.Logger
}

// RecomputeResult is the outcome of a committed availability batch.
type RecomputeResult struct {
	Checked  int
	Written  int
	Unknown  int
	Deferred int
}

// DetectChanged returns the spaces touched by cancellations (and, when
// configured, finalizations) of reservations relevant from today onwards.
// An empty set means the recompute pass has nothing to do.
func (rc *Recomputer) DetectChanged(ctx context.Context, now time.Time) (KeySet, int, error) {
	states := []models.ReservationState{models.StateCancelled}
	if rc.Settings.RecomputeOnFinalized {
		states = append(states, models.StateFinalized)
	}
	day := rc.Settings.Hours.DayOf(now)
	changed, err := findByEitherField(ctx, rc.Store, ReservationQuery{
		States: states,
		From:   day.Start,
		Limit:  rc.Settings.QueryLimit,
	})
	if err != nil {
		return nil, 0, err
	}

	keys := KeySet{}
	malformed := 0
	for _, r := range changed {
		key, err := ResourceKey(r.PrimaryRef, r.LegacyRef, rc.Settings.ResourceCollection)
		if err != nil {
			malformed++
			rc.Logger.Warn("changed reservation has no resolvable space",
				zap.String("reservation_id", r.ID), zap.Error(err))
			continue
		}
		keys.Add(key)
	}
	rc.Logger.Info("change detection finished",
		zap.Int("changed_reservations", len(changed)),
		zap.Int("spaces", len(keys)),
		zap.Strings("states", stateNames(states)))
	return keys, malformed, nil
}

type verdict struct {
	key      string
	occupied bool
}

// Recompute derives availability for every key as of now and writes the
// results in one atomic batch.
func (rc *Recomputer) Recompute(ctx context.Context, now time.Time, keys KeySet) (RecomputeResult, error) {
	batch := rc.Store.NewBatch()
	res, err := rc.stage(ctx, now, keys, batch, nil)
	if err != nil {
		return RecomputeResult{}, err
	}
	if batch.Len() == 0 {
		if res.Checked > 0 {
			rc.Logger.Info("availability already consistent", zap.Int("checked", res.Checked))
		}
		return res, nil
	}
	if err := batch.Commit(ctx); err != nil {
		rc.Logger.Error("availability batch failed",
			zap.Int("writes", batch.Len()), zap.Error(err))
		return RecomputeResult{Checked: res.Checked, Unknown: res.Unknown}, storeErr("commit availability batch", err)
	}
	rc.Logger.Info("availability updated",
		zap.Int("checked", res.Checked),
		zap.Int("written", res.Written))
	return res, nil
}

// stage derives availability for keys and adds the resulting writes to batch
// without committing it. Reservations listed in skip are treated as already
// finalized.
func (rc *Recomputer) stage(ctx context.Context, now time.Time, keys KeySet, batch Batch, skip map[string]struct{}) (RecomputeResult, error) {
	var res RecomputeResult
	if len(keys) == 0 {
		return res, nil
	}
	sorted := keys.Sorted()

	spaces, err := rc.Store.GetSpaces(ctx, sorted)
	if err != nil {
		return res, storeErr("read spaces", err)
	}

	known := make([]string, 0, len(sorted))
	for _, key := range sorted {
		if _, ok := spaces[key]; !ok {
			res.Unknown++
			rc.Logger.Warn("space referenced by reservations does not exist", zap.String("space", key))
			continue
		}
		known = append(known, key)
	}

	verdicts := make([]verdict, len(known))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rc.Settings.Concurrency)
	for i, key := range known {
		i, key := i, key
		g.Go(func() error {
			occupied, err := rc.occupied(gctx, key, now, skip)
			if err != nil {
				return fmt.Errorf("space %s: %w", key, err)
			}
			verdicts[i] = verdict{key: key, occupied: occupied}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	res.Checked = len(verdicts)

	for _, v := range verdicts {
		available := !v.occupied
		stored := spaces[v.key]
		if rc.Settings.WritePolicy == WriteOnChange && stored.HasAvailable && stored.Available == available {
			continue
		}
		if batch.Len() >= rc.Settings.MaxBatch {
			res.Deferred++
			continue
		}
		batch.SetAvailable(v.key, available)
		res.Written++
		rc.Logger.Debug("space availability derived",
			zap.String("space", v.key),
			zap.Bool("stored", stored.Available),
			zap.Bool("available", available))
	}
	return res, nil
}

// Occupied reports whether an occupying reservation for key still covers
// some part of [now, end of today) or starts on a later day.
func (rc *Recomputer) Occupied(ctx context.Context, key string, now time.Time) (bool, error) {
	return rc.occupied(ctx, key, now, nil)
}

func (rc *Recomputer) occupied(ctx context.Context, key string, now time.Time, skip map[string]struct{}) (bool, error) {
	hours := rc.Settings.Hours
	from, to := dayRange(hours, now, rc.Settings.LookbackDays)

	today, err := findByEitherField(ctx, rc.Store, ReservationQuery{
		States:      models.OccupyingStates,
		From:        from,
		To:          to,
		ResourceKey: key,
		Limit:       rc.Settings.QueryLimit,
	})
	if err != nil {
		return false, err
	}
	for _, r := range rc.holding(today, key, skip) {
		end, err := hours.EffectiveEnd(r)
		if err != nil {
			rc.Logger.Warn("ignoring reservation without timestamps",
				zap.String("reservation_id", r.ID), zap.Error(err))
			continue
		}
		if end.At.After(now) {
			return true, nil
		}
	}

	future, err := findByEitherField(ctx, rc.Store, ReservationQuery{
		States:      models.OccupyingStates,
		From:        to,
		ResourceKey: key,
		Limit:       rc.Settings.QueryLimit,
	})
	if err != nil {
		return false, err
	}
	return len(rc.holding(future, key, skip)) > 0, nil
}

// holding keeps the reservations whose resolved space is key. Stores match
// the primary and legacy fields independently, so a reservation whose primary
// ref names another space can still come back from a query for key.
func (rc *Recomputer) holding(rs []models.Reservation, key string, skip map[string]struct{}) []models.Reservation {
	out := rs[:0:0]
	for _, r := range rs {
		if _, ok := skip[r.ID]; ok {
			continue
		}
		resolved, err := ResourceKey(r.PrimaryRef, r.LegacyRef, rc.Settings.ResourceCollection)
		if err != nil || resolved != key {
			continue
		}
		out = append(out, r)
	}
	return out
}

func stateNames(states []models.ReservationState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}
