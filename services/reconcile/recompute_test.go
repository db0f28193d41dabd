package reconcile

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/ShadowAlejo/parqueadero/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRecomputer(store *memStore, settings Settings) *Recomputer {
	return &Recomputer{Store: store, Settings: settings, Logger: zap.NewNop()}
}

func TestRecomputer_FreesSpaceWithoutOccupants(t *testing.T) {
	settings := DefaultSettings()
	loc := settings.Hours.Location
	store := newMemStore()
	store.addSpace("S1", false)
	store.addReservation(models.Reservation{ID: "done", State: models.StateFinalized, End: at(loc, 0, 9, 0), PrimaryRef: "S1"})

	res, err := newRecomputer(store, settings).Recompute(context.Background(), at(loc, 0, 12, 0), KeySet{"S1": {}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Checked)
	assert.Equal(t, 1, res.Written)
	assert.True(t, store.space("S1").Available)
}

func TestRecomputer_Occupancy(t *testing.T) {
	settings := DefaultSettings()
	loc := settings.Hours.Location
	now := at(loc, 0, 12, 0)

	tests := []struct {
		name string
		res  models.Reservation
		want bool
	}{
		{"running now", models.Reservation{State: models.StateConfirmed, Start: at(loc, 0, 11, 0), End: at(loc, 0, 13, 0)}, true},
		{"later today", models.Reservation{State: models.StatePending, Start: at(loc, 0, 15, 0), EndTimeOfDay: strPtr("16:00")}, true},
		{"elapsed today", models.Reservation{State: models.StateConfirmed, Start: at(loc, 0, 8, 0), End: at(loc, 0, 9, 0)}, false},
		{"future day", models.Reservation{State: models.StatePending, Start: at(loc, 3, 8, 0)}, true},
		{"future day end only", models.Reservation{State: models.StateConfirmed, End: at(loc, 2, 0, 0)}, true},
		{"future cancelled", models.Reservation{State: models.StateCancelled, Start: at(loc, 3, 8, 0)}, false},
		{"past day", models.Reservation{State: models.StateConfirmed, Start: at(loc, -1, 8, 0)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			r := tt.res
			r.ID = "R"
			r.PrimaryRef = "espacios/S1"
			store.addReservation(r)

			got, err := newRecomputer(store, settings).Occupied(context.Background(), "S1", now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecomputer_PrimaryRefTakesPrecedence(t *testing.T) {
	settings := DefaultSettings()
	loc := settings.Hours.Location
	now := at(loc, 0, 12, 0)
	store := newMemStore()
	store.looseRefs = true
	store.addSpace("S1", false)
	store.addSpace("S2", false)
	// The legacy field still names S2, but the reservation holds S1.
	store.addReservation(models.Reservation{
		ID: "today", State: models.StateConfirmed, Start: at(loc, 0, 11, 0), End: at(loc, 0, 14, 0),
		PrimaryRef: "espacios/S1", LegacyRef: "espacios/S2",
	})
	store.addReservation(models.Reservation{
		ID: "later", State: models.StatePending, Start: at(loc, 2, 9, 0),
		PrimaryRef: models.ResourceRef{Collection: "espacios", ID: "S1"}, LegacyRef: "S2",
	})
	rc := newRecomputer(store, settings)

	occupied, err := rc.Occupied(context.Background(), "S1", now)
	require.NoError(t, err)
	assert.True(t, occupied)

	occupied, err = rc.Occupied(context.Background(), "S2", now)
	require.NoError(t, err)
	assert.False(t, occupied)

	res, err := rc.Recompute(context.Background(), now, KeySet{"S1": {}, "S2": {}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)
	assert.False(t, store.space("S1").Available)
	assert.True(t, store.space("S2").Available)
}

func TestRecomputer_FutureLookupSeesPastMismatchedRefs(t *testing.T) {
	settings := DefaultSettings()
	loc := settings.Hours.Location
	store := newMemStore()
	store.looseRefs = true
	// Sorts ahead of the real booking and only names S1 through its legacy field.
	store.addReservation(models.Reservation{
		ID: "a", State: models.StatePending, Start: at(loc, 1, 8, 0),
		PrimaryRef: "S9", LegacyRef: "S1",
	})
	store.addReservation(models.Reservation{ID: "b", State: models.StateConfirmed, Start: at(loc, 4, 8, 0), PrimaryRef: "S1"})

	occupied, err := newRecomputer(store, settings).Occupied(context.Background(), "S1", at(loc, 0, 12, 0))
	require.NoError(t, err)
	assert.True(t, occupied)
}

func TestRecomputer_MatchesEveryReferenceShape(t *testing.T) {
	settings := DefaultSettings()
	loc := settings.Hours.Location
	refs := []models.Reservation{
		{PrimaryRef: models.ResourceRef{Collection: "espacios", ID: "S1"}},
		{PrimaryRef: "S1"},
		{PrimaryRef: "/espacios/S1"},
		{LegacyRef: "espacios/S1"},
	}
	for i, r := range refs {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			store := newMemStore()
			store.addSpace("S1", true)
			r.ID = "R"
			r.State = models.StateConfirmed
			r.Start = at(loc, 1, 9, 0)
			store.addReservation(r)

			_, err := newRecomputer(store, settings).Recompute(context.Background(), at(loc, 0, 12, 0), KeySet{"S1": {}})
			require.NoError(t, err)
			assert.False(t, store.space("S1").Available)
		})
	}
}

func TestRecomputer_WritePolicy(t *testing.T) {
	settings := DefaultSettings()
	loc := settings.Hours.Location
	now := at(loc, 0, 12, 0)

	store := newMemStore()
	store.addSpace("free", true)
	store.addSpace("busy", false)
	store.addReservation(models.Reservation{ID: "R", State: models.StateConfirmed, Start: at(loc, 1, 9, 0), PrimaryRef: "busy"})
	keys := KeySet{"free": {}, "busy": {}}

	res, err := newRecomputer(store, settings).Recompute(context.Background(), now, keys)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Checked)
	assert.Equal(t, 0, res.Written)
	assert.Equal(t, 0, store.commits)

	settings.WritePolicy = WriteAlways
	res, err = newRecomputer(store, settings).Recompute(context.Background(), now, keys)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Written)
	assert.Equal(t, 1, store.commits)
	assert.True(t, store.space("free").Available)
	assert.False(t, store.space("busy").Available)
}

func TestRecomputer_WritesMissingField(t *testing.T) {
	settings := DefaultSettings()
	store := newMemStore()
	store.spaces["S1"] = models.Space{ID: "S1"}

	res, err := newRecomputer(store, settings).Recompute(context.Background(), at(settings.Hours.Location, 0, 12, 0), KeySet{"S1": {}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)
	assert.True(t, store.space("S1").Available)
	assert.True(t, store.space("S1").HasAvailable)
}

func TestRecomputer_SkipsUnknownSpaces(t *testing.T) {
	settings := DefaultSettings()
	store := newMemStore()
	store.addSpace("S1", false)

	res, err := newRecomputer(store, settings).Recompute(context.Background(), at(settings.Hours.Location, 0, 12, 0), KeySet{"S1": {}, "ghost": {}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unknown)
	assert.Equal(t, 1, res.Checked)
	_, exists := store.spaces["ghost"]
	assert.False(t, exists)
}

func TestRecomputer_CommitFailure(t *testing.T) {
	settings := DefaultSettings()
	store := newMemStore()
	store.addSpace("S1", false)
	store.failCommit = errInjected

	_, err := newRecomputer(store, settings).Recompute(context.Background(), at(settings.Hours.Location, 0, 12, 0), KeySet{"S1": {}})
	assert.ErrorIs(t, err, errInjected)
	assert.False(t, store.space("S1").Available)
}

func TestRecomputer_DetectChanged(t *testing.T) {
	settings := DefaultSettings()
	loc := settings.Hours.Location
	now := at(loc, 0, 18, 15)

	store := newMemStore()
	store.addReservation(models.Reservation{ID: "R3", State: models.StateCancelled, Start: at(loc, 0, 9, 0), PrimaryRef: "S2"})
	store.addReservation(models.Reservation{ID: "old", State: models.StateCancelled, Start: at(loc, -3, 9, 0), PrimaryRef: "S9"})
	store.addReservation(models.Reservation{ID: "fin", State: models.StateFinalized, End: at(loc, 0, 10, 0), PrimaryRef: "S3"})
	store.addReservation(models.Reservation{ID: "bad", State: models.StateCancelled, Start: at(loc, 1, 9, 0), PrimaryRef: 3.14})

	keys, malformed, err := newRecomputer(store, settings).DetectChanged(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []string{"S2"}, keys.Sorted())
	assert.Equal(t, 1, malformed)

	settings.RecomputeOnFinalized = true
	keys, _, err = newRecomputer(store, settings).DetectChanged(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []string{"S2", "S3"}, keys.Sorted())
}

// TestRecomputer_RestoresInvariant runs finalize then recompute over random
// reservation sets and checks every space against a brute-force oracle.
func TestRecomputer_RestoresInvariant(t *testing.T) {
	settings := DefaultSettings()
	loc := settings.Hours.Location
	states := []models.ReservationState{models.StatePending, models.StateConfirmed, models.StateFinalized, models.StateCancelled}
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		store := newMemStore()
		spaces := KeySet{}
		for i := 0; i < 5; i++ {
			key := fmt.Sprintf("S%d", i)
			store.addSpace(key, rng.Intn(2) == 0)
			spaces.Add(key)
		}
		for i := 0; i < 12; i++ {
			day := rng.Intn(4) - 1
			startHour := 7 + rng.Intn(9)
			r := models.Reservation{
				ID:         fmt.Sprintf("r%02d", i),
				State:      states[rng.Intn(len(states))],
				Start:      at(loc, day, startHour, 0),
				End:        midnight(loc, day),
				PrimaryRef: fmt.Sprintf("/espacios/S%d", rng.Intn(5)),
			}
			if rng.Intn(2) == 0 {
				r.EndTimeOfDay = strPtr(fmt.Sprintf("%02d:%02d", startHour+1+rng.Intn(4), rng.Intn(60)))
			}
			store.addReservation(r)
		}
		now := at(loc, 0, 8+rng.Intn(12), rng.Intn(60))

		_, err := newFinalizer(store, settings).Finalize(context.Background(), now)
		require.NoError(t, err)
		_, err = newRecomputer(store, settings).Recompute(context.Background(), now, spaces)
		require.NoError(t, err)

		for key := range spaces {
			occupied := false
			for _, r := range store.reservations {
				if !r.State.Occupying() {
					continue
				}
				rk, err := ResourceKey(r.PrimaryRef, r.LegacyRef, "espacios")
				require.NoError(t, err)
				end, err := settings.Hours.EffectiveEnd(r)
				require.NoError(t, err)
				if rk == key && end.At.After(now) {
					occupied = true
				}
			}
			assert.Equal(t, !occupied, store.space(key).Available, "round %d space %s now %s", round, key, now)
		}
	}
}
