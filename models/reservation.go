package models

import "time"

// ReservationState is the lifecycle state of a reservation.
type ReservationState string

const (
	StatePending   ReservationState = "pending"
	StateConfirmed ReservationState = "confirmed"
	StateFinalized ReservationState = "finalized"
	StateCancelled ReservationState = "cancelled"
)

// OccupyingStates are the states that keep a space unavailable.
var OccupyingStates = []ReservationState{StatePending, StateConfirmed}

// Occupying reports whether a reservation in this state holds its space.
func (s ReservationState) Occupying() bool {
	return s == StatePending || s == StateConfirmed
}

// Terminal reports whether the state can no longer change.
func (s ReservationState) Terminal() bool {
	return s == StateFinalized || s == StateCancelled
}

// ResourceRef is a structured reference to a space document.
type ResourceRef struct {
	Collection string `bson:"collection" json:"collection"` // Parent collection, empty when unknown
	ID         string `bson:"id" json:"id"`                 // Document ID of the space
}

// Reservation is a booking of a space as read by the reconciler.
// Reference fields are kept raw; the reconciler normalizes them into a key.
type Reservation struct {
	ID           string           `bson:"id" json:"id"`
	State        ReservationState `bson:"state" json:"state"`
	Start        time.Time        `bson:"start" json:"start"`                                   // Zero when the document has no start timestamp
	End          time.Time        `bson:"end" json:"end"`                                       // Zero when the document has no end timestamp
	EndTimeOfDay *string          `bson:"end_time_of_day,omitempty" json:"endTimeOfDay,omitempty"` // "HH:MM", nil when the field is absent
	PrimaryRef   interface{}      `bson:"primary_ref,omitempty" json:"primaryRef,omitempty"`     // ResourceRef, ID or slash path
	LegacyRef    interface{}      `bson:"legacy_ref,omitempty" json:"legacyRef,omitempty"`       // Same shapes, older field name
}
