package reconcile

import (
	"context"
	"time"

	"github.com/ShadowAlejo/parqueadero/models"
)

// TimeField selects the timestamp a ReservationQuery ranges over.
type TimeField int

const (
	FieldStart TimeField = iota
	FieldEnd
)

func (f TimeField) String() string {
	if f == FieldEnd {
		return "end"
	}
	return "start"
}

// ReservationQuery is a snapshot read over the reservation collection.
type ReservationQuery struct {
	States []models.ReservationState
	Field  TimeField
	From   time.Time // Inclusive; zero means unbounded
	To     time.Time // Exclusive; zero means unbounded
	// ResourceKey restricts results to reservations whose primary or legacy
	// reference resolves to this key, whatever its stored shape.
	ResourceKey string
	Limit       int
}

// Store is the document store the reconciler reads from and writes to.
type Store interface {
	FindReservations(ctx context.Context, q ReservationQuery) ([]models.Reservation, error)
	// GetSpaces returns the stored spaces among keys; unknown keys are absent from the map.
	GetSpaces(ctx context.Context, keys []string) (map[string]models.Space, error)
	NewBatch() Batch
}

// Batch groups writes that are applied atomically on Commit.
type Batch interface {
	// Finalize moves an occupying reservation to the finalized state. The
	// store must leave reservations that are no longer occupying untouched.
	Finalize(reservationID string)
	SetAvailable(spaceKey string, available bool)
	Len() int
	Commit(ctx context.Context) error
}
