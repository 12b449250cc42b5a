package repository

import (
	"context"
	"slotkeeper/internal/reservations/interval"
	"slotkeeper/pkg/auth"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"time"

	"github.com/google/uuid"
)

// Ledger owns reservations and their paired transactions. Every mutating
// call is atomic with respect to concurrent callers on the same unit.
type Ledger interface {
	// CreatePendingReservation expires stale PENDING rows that overlap window
	// on unit, re-checks availability and inserts a PENDING row, all in one
	// atomic step.
	CreatePendingReservation(ctx context.Context, unit int, window model.TimeWindow, ownerID string) (*model.Reservation, error)
	CreateTransaction(ctx context.Context, reservationID, ownerID string, amountCents int64, currency string) (*model.Transaction, error)
	// SettleTransaction moves the transaction and its reservation together.
	// A SUCCEEDED outcome on a lapsed hold is recorded as FAILED.
	SettleTransaction(ctx context.Context, transactionID string, outcome model.TransactionState) (*model.Transaction, *model.Reservation, error)
	// ClaimTransaction marks a PENDING transaction as being captured. Only one
	// caller wins; the rest get ErrCaptureInFlight, or ErrAlreadySettled once
	// the transaction or its reservation has left PENDING.
	ClaimTransaction(ctx context.Context, transactionID string) (*model.Transaction, error)
	// ReleaseTransactionClaim clears the claim of a still PENDING transaction
	// so the capture can be retried.
	ReleaseTransactionClaim(ctx context.Context, transactionID string) error
	// CancelReservation cancels a PENDING reservation and fails its PENDING
	// transaction in the same step.
	CancelReservation(ctx context.Context, reservationID string, requester auth.Subject) (*model.Reservation, error)
	ExpireReservation(ctx context.Context, reservationID string) (*model.Reservation, error)
	ExpireStalePending(ctx context.Context, limit int) ([]*model.Reservation, error)

	ActiveInWindow(ctx context.Context, window model.TimeWindow) ([]*model.Reservation, error)
	FindReservation(ctx context.Context, id string) (*model.Reservation, error)
	FindTransaction(ctx context.Context, id string) (*model.Transaction, error)
	FindTransactionByReservation(ctx context.Context, reservationID string) (*model.Transaction, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Reservation, error)
	ListAll(ctx context.Context) ([]*model.Reservation, error)
	ListTransactionsByOwner(ctx context.Context, ownerID string) ([]*model.Transaction, error)

	Ping(ctx context.Context) error
}

type Options struct {
	Index interval.Index
	Log   *logger.Logger
	// Now defaults to time.Now; tests pin it to move holds past their TTL.
	Now func() time.Time

	// Per-call storage deadlines, applied when the caller's context allows more.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Log == nil {
		o.Log = logger.Discard()
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 5 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	return o
}

func (o Options) now() time.Time {
	return o.Now().UTC().Truncate(time.Millisecond)
}

// withTimeout caps ctx at timeout, keeping an earlier caller deadline.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func newID() string {
	return uuid.NewString()
}

func newReservation(unit int, window model.TimeWindow, ownerID string, now time.Time) *model.Reservation {
	return &model.Reservation{
		ID:         newID(),
		Unit:       unit,
		TimeWindow: model.NewTimeWindow(window.Start, window.End),
		OwnerID:    ownerID,
		State:      model.ReservationPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func newTransaction(reservationID, ownerID string, amountCents int64, currency string, now time.Time) *model.Transaction {
	return &model.Transaction{
		ID:            newID(),
		ReservationID: reservationID,
		OwnerID:       ownerID,
		AmountCents:   amountCents,
		Currency:      currency,
		State:         model.TransactionPending,
		CreatedAt:     now,
	}
}

// settledOutcome applies the lapsed-hold rule shared by all ledgers.
func settledOutcome(ix interval.Index, r *model.Reservation, outcome model.TransactionState, now time.Time, log *logger.Logger, transactionID string) model.TransactionState {
	if outcome == model.TransactionSucceeded && ix.Stale(r, now) {
		log.Warn("Payment captured after hold lapsed, recording as failed; refund required",
			"transaction_id", transactionID,
			"reservation_id", r.ID,
			"unit", r.Unit,
		)
		return model.TransactionFailed
	}
	return outcome
}
