package model

import (
	"time"
)

type ReservationState string

const (
	ReservationPending   ReservationState = "PENDING"
	ReservationConfirmed ReservationState = "CONFIRMED"
	ReservationCancelled ReservationState = "CANCELLED"
	ReservationExpired   ReservationState = "EXPIRED"
)

// Active states are the ones that hold a unit for their window.
func (s ReservationState) Active() bool {
	return s == ReservationPending || s == ReservationConfirmed
}

// CanTransition enforces PENDING -> {CONFIRMED, EXPIRED, CANCELLED} and
// CONFIRMED -> CANCELLED. Nothing else moves.
func (s ReservationState) CanTransition(to ReservationState) bool {
	switch s {
	case ReservationPending:
		return to == ReservationConfirmed || to == ReservationExpired || to == ReservationCancelled
	case ReservationConfirmed:
		return to == ReservationCancelled
	default:
		return false
	}
}

type Reservation struct {
	ID         string           `json:"id" bson:"_id"`
	Unit       int              `json:"unit" bson:"unit"`
	TimeWindow `json:"window" bson:",inline"`
	OwnerID    string           `json:"owner_id" bson:"owner_id"`
	State      ReservationState `json:"state" bson:"state"`
	CreatedAt  time.Time        `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at" bson:"updated_at"`
}

func (r *Reservation) Window() TimeWindow {
	return r.TimeWindow
}

// BookingRequest is what a caller submits to open a reservation.
type BookingRequest struct {
	Unit  int       `json:"unit" validate:"required,min=1"`
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required,gtfield=Start"`
}

func (b *BookingRequest) Window() TimeWindow {
	return NewTimeWindow(b.Start, b.End)
}
