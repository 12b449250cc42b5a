package model

import "time"

type EventType string

const (
	EventReservationReserved  EventType = "reservation.reserved"
	EventReservationConfirmed EventType = "reservation.confirmed"
	EventReservationReleased  EventType = "reservation.released"
	EventReservationCancelled EventType = "reservation.cancelled"
	EventReservationExpired   EventType = "reservation.expired"
)

// ReservationEvent is published after a ledger change commits.
type ReservationEvent struct {
	Type          EventType        `json:"type"`
	ReservationID string           `json:"reservation_id"`
	TransactionID string           `json:"transaction_id,omitempty"`
	Unit          int              `json:"unit"`
	Window        TimeWindow       `json:"window"`
	OwnerID       string           `json:"owner_id"`
	State         ReservationState `json:"state"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

func NewReservationEvent(eventType EventType, r *Reservation, transactionID string) ReservationEvent {
	return ReservationEvent{
		Type:          eventType,
		ReservationID: r.ID,
		TransactionID: transactionID,
		Unit:          r.Unit,
		Window:        r.TimeWindow,
		OwnerID:       r.OwnerID,
		State:         r.State,
		OccurredAt:    time.Now().UTC(),
	}
}
