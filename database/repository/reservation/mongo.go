package reservationRepo

import (
	"context"
	"fmt"

	"github.com/ShadowAlejo/parqueadero/models"
	"github.com/ShadowAlejo/parqueadero/services/reconcile"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements reconcile.Store on MongoDB. Batches are applied in a
// multi-document transaction, which requires a replica set.
type MongoStore struct {
	client          *mongo.Client
	reservationColl *mongo.Collection
	spaceColl       *mongo.Collection
	names           Names
}

// NewMongoStore constructs a MongoStore over database dbName.
func NewMongoStore(client *mongo.Client, dbName string, names Names) *MongoStore {
	db := client.Database(dbName)
	return &MongoStore{
		client:          client,
		reservationColl: db.Collection(names.Reservations),
		spaceColl:       db.Collection(names.Spaces),
		names:           names,
	}
}

// idCandidates returns the _id values a string key may correspond to.
func idCandidates(key string) []interface{} {
	ids := []interface{}{key}
	if oid, err := primitive.ObjectIDFromHex(key); err == nil {
		ids = append(ids, oid)
	}
	return ids
}

func idString(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case primitive.ObjectID:
		return id.Hex()
	}
	return fmt.Sprint(v)
}

// refEncodings lists every stored shape of a reference to key.
func (s *MongoStore) refEncodings(key string) []interface{} {
	enc := s.names.pathEncodings(key)
	for _, id := range idCandidates(key) {
		enc = append(enc, bson.D{{Key: "$ref", Value: s.names.Spaces}, {Key: "$id", Value: id}})
	}
	if oid, err := primitive.ObjectIDFromHex(key); err == nil {
		enc = append(enc, oid)
	}
	return enc
}

func (s *MongoStore) buildFilter(q reconcile.ReservationQuery) bson.M {
	filter := bson.M{}
	if len(q.States) > 0 {
		filter[s.names.State] = bson.M{"$in": s.names.stateValues(q.States)}
	}
	rng := bson.M{}
	if !q.From.IsZero() {
		rng["$gte"] = q.From
	}
	if !q.To.IsZero() {
		rng["$lt"] = q.To
	}
	if len(rng) > 0 {
		filter[s.names.timeField(q.Field)] = rng
	}
	if q.ResourceKey != "" {
		enc := s.refEncodings(q.ResourceKey)
		var or bson.A
		for _, field := range s.names.refFields() {
			or = append(or, bson.M{field: bson.M{"$in": enc}})
		}
		filter["$or"] = or
	}
	return filter
}

// FindReservations runs q against the reservations collection.
func (s *MongoStore) FindReservations(ctx context.Context, q reconcile.ReservationQuery) ([]models.Reservation, error) {
	cursor, err := s.reservationColl.Find(ctx, s.buildFilter(q), s.findOptions(q))
	if err != nil {
		return nil, fmt.Errorf("error finding reservations: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.Reservation
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("error decoding reservation: %w", err)
		}
		out = append(out, decodeReservation(idString(doc["_id"]), doc, s.names))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return out, nil
}

// findOptions sorts ranged queries by the range field so a limit keeps the
// earliest matches.
func (s *MongoStore) findOptions(q reconcile.ReservationQuery) *options.FindOptions {
	sortBy := bson.D{{Key: "_id", Value: 1}}
	if !q.From.IsZero() || !q.To.IsZero() {
		sortBy = append(bson.D{{Key: s.names.timeField(q.Field), Value: 1}}, sortBy...)
	}
	opts := options.Find().SetSort(sortBy)
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return opts
}

// GetSpaces fetches the spaces among keys.
func (s *MongoStore) GetSpaces(ctx context.Context, keys []string) (map[string]models.Space, error) {
	out := make(map[string]models.Space, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	var ids bson.A
	for _, k := range keys {
		ids = append(ids, idCandidates(k)...)
	}
	cursor, err := s.spaceColl.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("error finding spaces: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("error decoding spaces: %w", err)
	}
	for _, doc := range docs {
		id := idString(doc["_id"])
		out[id] = decodeSpace(id, doc, s.names)
	}
	return out, nil
}

// Ping checks connectivity to the primary.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// NewBatch starts an atomic write group.
func (s *MongoStore) NewBatch() reconcile.Batch {
	return &mongoBatch{store: s, available: map[string]bool{}}
}

type mongoBatch struct {
	store     *MongoStore
	finalize  []string
	available map[string]bool
	spaceKeys []string
}

func (b *mongoBatch) Finalize(id string) {
	b.finalize = append(b.finalize, id)
}

func (b *mongoBatch) SetAvailable(key string, available bool) {
	if _, ok := b.available[key]; !ok {
		b.spaceKeys = append(b.spaceKeys, key)
	}
	b.available[key] = available
}

func (b *mongoBatch) Len() int {
	return len(b.finalize) + len(b.spaceKeys)
}

// Commit applies the group in one transaction. The finalize update is
// conditional on the reservation still being in an occupying state.
func (b *mongoBatch) Commit(ctx context.Context) error {
	if b.Len() == 0 {
		return nil
	}
	s := b.store
	n := s.names

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("error starting session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for _, id := range b.finalize {
			filter := bson.M{
				"_id":   bson.M{"$in": idCandidates(id)},
				n.State: bson.M{"$in": n.occupyingValues()},
			}
			update := bson.M{"$set": bson.M{n.State: n.stateValue(models.StateFinalized)}}
			if _, err := s.reservationColl.UpdateOne(sc, filter, update); err != nil {
				return nil, fmt.Errorf("error finalizing reservation %s: %w", id, err)
			}
		}
		for _, key := range b.spaceKeys {
			filter := bson.M{"_id": bson.M{"$in": idCandidates(key)}}
			update := bson.M{"$set": bson.M{n.Available: b.available[key]}}
			if _, err := s.spaceColl.UpdateOne(sc, filter, update); err != nil {
				return nil, fmt.Errorf("error updating space %s: %w", key, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("error committing batch of %d writes: %w", b.Len(), err)
	}
	return nil
}
