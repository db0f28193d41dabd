package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ShadowAlejo/parqueadero/models"
)

var errInjected = errors.New("injected store failure")

// memStore is an in-memory Store with the same query semantics as the
// document stores: range filters never match documents lacking the field and
// results come back ordered by the range field.
type memStore struct {
	mu         sync.Mutex
	collection string
	// looseRefs matches ResourceKey against the primary and legacy refs
	// independently, as the Firestore and Mongo filters do.
	looseRefs    bool
	reservations map[string]models.Reservation
	spaces       map[string]models.Space
	failCommit   error
	failFind     error
	failSpaces   error
	commits      int
	finds        int
}

func newMemStore() *memStore {
	return &memStore{
		collection:   "espacios",
		reservations: map[string]models.Reservation{},
		spaces:       map[string]models.Space{},
	}
}

func (m *memStore) addReservation(r models.Reservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservations[r.ID] = r
}

func (m *memStore) addSpace(id string, available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spaces[id] = models.Space{ID: id, Available: available, HasAvailable: true}
}

func (m *memStore) reservation(id string) models.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reservations[id]
}

func (m *memStore) space(id string) models.Space {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spaces[id]
}

func (m *memStore) FindReservations(_ context.Context, q ReservationQuery) ([]models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finds++
	if m.failFind != nil {
		return nil, m.failFind
	}

	var out []models.Reservation
	for _, r := range m.reservations {
		if !hasState(q.States, r.State) {
			continue
		}
		t := r.Start
		if q.Field == FieldEnd {
			t = r.End
		}
		if (!q.From.IsZero() || !q.To.IsZero()) && t.IsZero() {
			continue
		}
		if !q.From.IsZero() && t.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && !t.Before(q.To) {
			continue
		}
		if q.ResourceKey != "" && !m.refMatches(r, q.ResourceKey) {
			continue
		}
		out = append(out, r)
	}
	field := func(r models.Reservation) time.Time {
		if q.Field == FieldEnd {
			return r.End
		}
		return r.Start
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := field(out[i]), field(out[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memStore) refMatches(r models.Reservation, key string) bool {
	if m.looseRefs {
		for _, ref := range []interface{}{r.PrimaryRef, r.LegacyRef} {
			if k, err := resolveRef(ref, m.collection); err == nil && k == key {
				return true
			}
		}
		return false
	}
	k, err := ResourceKey(r.PrimaryRef, r.LegacyRef, m.collection)
	return err == nil && k == key
}

func (m *memStore) GetSpaces(_ context.Context, keys []string) (map[string]models.Space, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSpaces != nil {
		return nil, m.failSpaces
	}
	out := make(map[string]models.Space, len(keys))
	for _, k := range keys {
		if s, ok := m.spaces[k]; ok {
			out[k] = s
		}
	}
	return out, nil
}

func (m *memStore) NewBatch() Batch {
	return &memBatch{store: m, available: map[string]bool{}}
}

func hasState(states []models.ReservationState, s models.ReservationState) bool {
	for _, want := range states {
		if want == s {
			return true
		}
	}
	return false
}

type memBatch struct {
	store     *memStore
	finalize  []string
	available map[string]bool
	order     []string
}

func (b *memBatch) Finalize(id string) {
	b.finalize = append(b.finalize, id)
}

func (b *memBatch) SetAvailable(key string, available bool) {
	if _, ok := b.available[key]; !ok {
		b.order = append(b.order, key)
	}
	b.available[key] = available
}

func (b *memBatch) Len() int {
	return len(b.finalize) + len(b.order)
}

func (b *memBatch) Commit(context.Context) error {
	m := b.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCommit != nil {
		return m.failCommit
	}
	m.commits++
	for _, id := range b.finalize {
		r, ok := m.reservations[id]
		if !ok || !r.State.Occupying() {
			continue
		}
		r.State = models.StateFinalized
		m.reservations[id] = r
	}
	for _, key := range b.order {
		s := m.spaces[key]
		s.ID = key
		s.Available = b.available[key]
		s.HasAvailable = true
		m.spaces[key] = s
	}
	return nil
}

// testDay is the calendar day most tests run on.
var testDay = struct{ y, m, d int }{2026, 3, 10}

func at(loc *time.Location, dayOffset, hour, minute int) time.Time {
	return time.Date(testDay.y, time.Month(testDay.m), testDay.d+dayOffset, hour, minute, 0, 0, loc)
}

func midnight(loc *time.Location, dayOffset int) time.Time {
	return at(loc, dayOffset, 0, 0)
}

func strPtr(s string) *string {
	return &s
}
