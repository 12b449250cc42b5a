package model

import "time"

// UnitGuard is the per-unit document every booking transaction on that unit
// writes first, so concurrent writers on the same unit conflict and serialize.
type UnitGuard struct {
	Unit      int       `bson:"_id" json:"unit"`
	Version   int64     `bson:"version" json:"version"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
