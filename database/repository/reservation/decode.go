package reservationRepo

import (
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/ShadowAlejo/parqueadero/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// decodeReservation maps a raw document onto a Reservation. It accepts the
// value types produced by both the Firestore and the MongoDB drivers.
func decodeReservation(id string, data map[string]interface{}, n Names) models.Reservation {
	r := models.Reservation{ID: id}
	if raw, ok := data[n.State].(string); ok {
		r.State = n.decodeState(raw)
	}
	r.Start, _ = decodeTime(data[n.Start])
	r.End, _ = decodeTime(data[n.End])

	if v, present := data[n.EndTimeOfDay]; present && v != nil {
		var s string
		switch tv := v.(type) {
		case string:
			s = tv
		default:
			s = fmt.Sprint(tv)
		}
		r.EndTimeOfDay = &s
	}

	r.PrimaryRef = decodeRef(data[n.Resource])
	if n.LegacyResource != "" {
		r.LegacyRef = decodeRef(data[n.LegacyResource])
	}
	return r
}

func decodeTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	case primitive.DateTime:
		return t.Time(), true
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0), true
	}
	return time.Time{}, false
}

// decodeRef converts driver-specific reference values into models.ResourceRef.
// Strings and unknown shapes pass through for the reconciler to judge.
func decodeRef(v interface{}) interface{} {
	switch ref := v.(type) {
	case *firestore.DocumentRef:
		if ref == nil {
			return nil
		}
		out := models.ResourceRef{ID: ref.ID}
		if ref.Parent != nil {
			out.Collection = ref.Parent.ID
		}
		return out
	case primitive.DBPointer:
		return models.ResourceRef{Collection: ref.DB, ID: ref.Pointer.Hex()}
	case bson.M:
		return decodeDBRef(ref)
	case map[string]interface{}:
		return decodeDBRef(ref)
	case bson.D:
		return decodeDBRef(ref.Map())
	case primitive.ObjectID:
		return ref.Hex()
	}
	return v
}

func decodeDBRef(m map[string]interface{}) interface{} {
	id, ok := m["$id"]
	if !ok {
		return m
	}
	out := models.ResourceRef{}
	if coll, ok := m["$ref"].(string); ok {
		out.Collection = coll
	}
	switch idv := id.(type) {
	case string:
		out.ID = idv
	case primitive.ObjectID:
		out.ID = idv.Hex()
	default:
		out.ID = fmt.Sprint(idv)
	}
	return out
}

func decodeSpace(id string, data map[string]interface{}, n Names) models.Space {
	s := models.Space{ID: id}
	if v, ok := data[n.Available].(bool); ok {
		s.Available = v
		s.HasAvailable = true
	}
	return s
}
