package models

// Space is a bookable parking space. Available is derived from reservations.
type Space struct {
	ID           string `bson:"id" json:"id"`
	Available    bool   `bson:"available" json:"available"`
	HasAvailable bool   `bson:"-" json:"hasAvailable"` // False when the stored document lacks the field
}
