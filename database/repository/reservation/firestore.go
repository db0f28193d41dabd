package reservationRepo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/ShadowAlejo/parqueadero/models"
	"github.com/ShadowAlejo/parqueadero/services/reconcile"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/status"
)

// FirestoreStore implements reconcile.Store on Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
	names  Names
}

// NewFirestoreStore constructs a FirestoreStore over an initialized client.
func NewFirestoreStore(client *firestore.Client, names Names) *FirestoreStore {
	return &FirestoreStore{client: client, names: names}
}

func (s *FirestoreStore) reservations() *firestore.CollectionRef {
	return s.client.Collection(s.names.Reservations)
}

func (s *FirestoreStore) spaces() *firestore.CollectionRef {
	return s.client.Collection(s.names.Spaces)
}

// refEncodings lists every stored shape of a reference to key: a document
// reference and the three string forms.
func (s *FirestoreStore) refEncodings(key string) []interface{} {
	return append([]interface{}{s.spaces().Doc(key)}, s.names.pathEncodings(key)...)
}

// FindReservations runs q. A resource filter needs one query per reference
// field since Firestore cannot OR across fields with "in" on each.
func (s *FirestoreStore) FindReservations(ctx context.Context, q reconcile.ReservationQuery) ([]models.Reservation, error) {
	base := s.reservations().Query
	if len(q.States) == 1 {
		base = base.Where(s.names.State, "==", s.names.stateValue(q.States[0]))
	} else if len(q.States) > 1 {
		base = base.Where(s.names.State, "in", s.names.stateValues(q.States))
	}
	field := s.names.timeField(q.Field)
	if !q.From.IsZero() {
		base = base.Where(field, ">=", q.From)
	}
	if !q.To.IsZero() {
		base = base.Where(field, "<", q.To)
	}
	if !q.From.IsZero() || !q.To.IsZero() {
		// The limit must cut off the latest matches, not arbitrary ones.
		base = base.OrderBy(field, firestore.Asc)
	}
	if q.Limit > 0 {
		base = base.Limit(q.Limit)
	}

	if q.ResourceKey == "" {
		return s.run(ctx, base)
	}

	seen := map[string]models.Reservation{}
	for _, refField := range s.names.refFields() {
		hits, err := s.run(ctx, base.Where(refField, "in", s.refEncodings(q.ResourceKey)))
		if err != nil {
			return nil, err
		}
		for _, r := range hits {
			seen[r.ID] = r
		}
	}
	out := make([]models.Reservation, 0, len(seen))
	for _, r := range seen {
		out = append(out, r)
	}
	sortByTime(out, q.Field)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// sortByTime orders rs by the queried time field, then ID.
func sortByTime(rs []models.Reservation, field reconcile.TimeField) {
	at := func(r models.Reservation) time.Time {
		if field == reconcile.FieldEnd {
			return r.End
		}
		return r.Start
	}
	sort.Slice(rs, func(i, j int) bool {
		ti, tj := at(rs[i]), at(rs[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return rs[i].ID < rs[j].ID
	})
}

func (s *FirestoreStore) run(ctx context.Context, q firestore.Query) ([]models.Reservation, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []models.Reservation
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error querying %s (%s): %w", s.names.Reservations, status.Code(err), err)
		}
		out = append(out, decodeReservation(doc.Ref.ID, doc.Data(), s.names))
	}
	return out, nil
}

// GetSpaces fetches the spaces among keys in one round trip.
func (s *FirestoreStore) GetSpaces(ctx context.Context, keys []string) (map[string]models.Space, error) {
	out := make(map[string]models.Space, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	refs := make([]*firestore.DocumentRef, len(keys))
	for i, k := range keys {
		refs[i] = s.spaces().Doc(k)
	}
	snaps, err := s.client.GetAll(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("error fetching %s (%s): %w", s.names.Spaces, status.Code(err), err)
	}
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		out[snap.Ref.ID] = decodeSpace(snap.Ref.ID, snap.Data(), s.names)
	}
	return out, nil
}

// Ping performs a minimal read to check connectivity.
func (s *FirestoreStore) Ping(ctx context.Context) error {
	iter := s.spaces().Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return err
	}
	return nil
}

// NewBatch starts an atomic write group.
func (s *FirestoreStore) NewBatch() reconcile.Batch {
	return &firestoreBatch{store: s, available: map[string]bool{}}
}

type firestoreBatch struct {
	store     *FirestoreStore
	finalize  []string
	available map[string]bool
	spaceKeys []string
}

func (b *firestoreBatch) Finalize(id string) {
	b.finalize = append(b.finalize, id)
}

func (b *firestoreBatch) SetAvailable(key string, available bool) {
	if _, ok := b.available[key]; !ok {
		b.spaceKeys = append(b.spaceKeys, key)
	}
	b.available[key] = available
}

func (b *firestoreBatch) Len() int {
	return len(b.finalize) + len(b.spaceKeys)
}

// Commit applies the group in a single transaction. Reservations are re-read
// inside it and only occupying ones move to finalized, so a cancellation that
// lands between the scan and the commit is never overwritten.
func (b *firestoreBatch) Commit(ctx context.Context) error {
	if b.Len() == 0 {
		return nil
	}
	if b.Len() > reconcile.MaxBatchWrites {
		return fmt.Errorf("batch of %d writes exceeds the %d write limit", b.Len(), reconcile.MaxBatchWrites)
	}
	s := b.store
	n := s.names
	occupying := map[string]bool{}
	for _, v := range n.occupyingValues() {
		occupying[v.(string)] = true
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var snaps []*firestore.DocumentSnapshot
		if len(b.finalize) > 0 {
			refs := make([]*firestore.DocumentRef, len(b.finalize))
			for i, id := range b.finalize {
				refs[i] = s.reservations().Doc(id)
			}
			var err error
			if snaps, err = tx.GetAll(refs); err != nil {
				return err
			}
		}
		for _, snap := range snaps {
			if !snap.Exists() {
				continue
			}
			if state, _ := snap.Data()[n.State].(string); !occupying[state] {
				continue
			}
			if err := tx.Update(snap.Ref, []firestore.Update{{Path: n.State, Value: n.stateValue(models.StateFinalized)}}); err != nil {
				return err
			}
		}
		for _, key := range b.spaceKeys {
			if err := tx.Update(s.spaces().Doc(key), []firestore.Update{{Path: n.Available, Value: b.available[key]}}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error committing batch of %d writes (%s): %w", b.Len(), status.Code(err), err)
	}
	return nil
}
