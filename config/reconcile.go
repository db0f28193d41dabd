package config

import (
	"fmt"
	"time"

	reservationRepo "github.com/ShadowAlejo/parqueadero/database/repository/reservation"
	"github.com/ShadowAlejo/parqueadero/models"
	"github.com/ShadowAlejo/parqueadero/services/reconcile"
)

// ReconcileSettings converts the flat configuration into validated
// reconciler settings.
func (c Config) ReconcileSettings() (reconcile.Settings, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return reconcile.Settings{}, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}

	clocks := map[string]string{
		"OPERATING_HOURS_START":  c.OperatingHoursStart,
		"OPERATING_HOURS_END":    c.OperatingHoursEnd,
		"DEFAULT_END_TIME":       c.DefaultEndTime,
		"FINALIZE_WINDOW_END":    c.FinalizeWindowEnd,
		"RECOMPUTE_WINDOW_START": c.RecomputeWindowStart,
		"RECOMPUTE_WINDOW_END":   c.RecomputeWindowEnd,
	}
	// The finalize window opens with operating hours unless set explicitly.
	if c.FinalizeWindowStart != "" {
		clocks["FINALIZE_WINDOW_START"] = c.FinalizeWindowStart
	} else {
		clocks["FINALIZE_WINDOW_START"] = c.OperatingHoursStart
	}
	parsed := make(map[string]reconcile.ClockTime, len(clocks))
	for key, raw := range clocks {
		ct, err := reconcile.ParseClock(raw)
		if err != nil {
			return reconcile.Settings{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		parsed[key] = ct
	}

	s := reconcile.Settings{
		Hours: reconcile.Hours{
			Location:   loc,
			Open:       parsed["OPERATING_HOURS_START"],
			Ceiling:    parsed["OPERATING_HOURS_END"],
			DefaultEnd: parsed["DEFAULT_END_TIME"],
		},
		FinalizeWindow: reconcile.Window{
			Start: parsed["FINALIZE_WINDOW_START"],
			End:   parsed["FINALIZE_WINDOW_END"],
		},
		RecomputeWindow: reconcile.Window{
			Start: parsed["RECOMPUTE_WINDOW_START"],
			End:   parsed["RECOMPUTE_WINDOW_END"],
		},
		LookbackDays:         c.FinalizeLookbackDays,
		RecomputeOnFinalized: c.RecomputeOnFinalized,
		WritePolicy:          reconcile.WritePolicy(c.RecomputeWritePolicy),
		Concurrency:          c.RecomputeConcurrency,
		QueryLimit:           c.QueryLimit,
		MaxBatch:             reconcile.MaxBatchWrites,
		ResourceCollection:   c.SpacesCollection,
		Timeout:              c.PassTimeout,
	}
	if err := s.Validate(); err != nil {
		return reconcile.Settings{}, err
	}
	return s, nil
}

// StoreNames returns the collection, field and state names of the store.
func (c Config) StoreNames() reservationRepo.Names {
	return reservationRepo.Names{
		Reservations:   c.ReservationsCollection,
		Spaces:         c.SpacesCollection,
		State:          c.FieldState,
		Start:          c.FieldStart,
		End:            c.FieldEnd,
		EndTimeOfDay:   c.FieldEndTimeOfDay,
		Resource:       c.FieldResource,
		LegacyResource: c.FieldResourceLegacy,
		Available:      c.FieldAvailable,
		StateValues: map[models.ReservationState]string{
			models.StatePending:   c.StatePending,
			models.StateConfirmed: c.StateConfirmed,
			models.StateFinalized: c.StateFinalized,
			models.StateCancelled: c.StateCancelled,
		},
	}
}
