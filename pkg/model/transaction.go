package model

import "time"

type TransactionState string

const (
	TransactionPending   TransactionState = "PENDING"
	TransactionSucceeded TransactionState = "SUCCEEDED"
	TransactionFailed    TransactionState = "FAILED"
)

func (s TransactionState) Settled() bool {
	return s == TransactionSucceeded || s == TransactionFailed
}

// ReservationState returns the reservation state a settled transaction implies.
func (s TransactionState) ReservationState() ReservationState {
	switch s {
	case TransactionSucceeded:
		return ReservationConfirmed
	case TransactionFailed:
		return ReservationExpired
	default:
		return ReservationPending
	}
}

// Transaction is the payment attempt paired 1:1 with a Reservation.
type Transaction struct {
	ID            string           `json:"id" bson:"_id"`
	ReservationID string           `json:"reservation_id" bson:"reservation_id"`
	OwnerID       string           `json:"owner_id" bson:"owner_id"`
	AmountCents   int64            `json:"amount_cents" bson:"amount_cents"`
	Currency      string           `json:"currency" bson:"currency"`
	State         TransactionState `json:"state" bson:"state"`
	CreatedAt     time.Time        `json:"created_at" bson:"created_at"`
	SettledAt     *time.Time       `json:"settled_at,omitempty" bson:"settled_at,omitempty"`
	// ClaimedAt is set while a capture is in flight; at most one caller holds it.
	ClaimedAt     *time.Time       `json:"claimed_at,omitempty" bson:"claimed_at,omitempty"`
}
