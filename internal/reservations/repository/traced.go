package repository

import (
	"context"
	"slotkeeper/pkg/auth"
	"slotkeeper/pkg/model"
	"slotkeeper/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
)

// Traced wraps every ledger call in a span named after the driver.
func Traced(next Ledger, driver string) Ledger {
	return &tracedLedger{next: next, driver: driver}
}

type tracedLedger struct {
	next   Ledger
	driver string
}

func (l *tracedLedger) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	attrs = append(attrs, attribute.String("ledger.driver", l.driver))
	ctx, span := tracing.Start(ctx, "ledger."+op, attrs...)
	return ctx, func(err error) { tracing.End(span, err) }
}

func (l *tracedLedger) CreatePendingReservation(ctx context.Context, unit int, window model.TimeWindow, ownerID string) (*model.Reservation, error) {
	ctx, end := l.start(ctx, "CreatePendingReservation", attribute.Int("unit", unit))
	r, err := l.next.CreatePendingReservation(ctx, unit, window, ownerID)
	end(err)
	return r, err
}

func (l *tracedLedger) CreateTransaction(ctx context.Context, reservationID, ownerID string, amountCents int64, currency string) (*model.Transaction, error) {
	ctx, end := l.start(ctx, "CreateTransaction", attribute.String("reservation_id", reservationID))
	tx, err := l.next.CreateTransaction(ctx, reservationID, ownerID, amountCents, currency)
	end(err)
	return tx, err
}

func (l *tracedLedger) SettleTransaction(ctx context.Context, transactionID string, outcome model.TransactionState) (*model.Transaction, *model.Reservation, error) {
	ctx, end := l.start(ctx, "SettleTransaction",
		attribute.String("transaction_id", transactionID),
		attribute.String("outcome", string(outcome)),
	)
	tx, r, err := l.next.SettleTransaction(ctx, transactionID, outcome)
	end(err)
	return tx, r, err
}

func (l *tracedLedger) ClaimTransaction(ctx context.Context, transactionID string) (*model.Transaction, error) {
	ctx, end := l.start(ctx, "ClaimTransaction", attribute.String("transaction_id", transactionID))
	tx, err := l.next.ClaimTransaction(ctx, transactionID)
	end(err)
	return tx, err
}

func (l *tracedLedger) ReleaseTransactionClaim(ctx context.Context, transactionID string) error {
	ctx, end := l.start(ctx, "ReleaseTransactionClaim", attribute.String("transaction_id", transactionID))
	err := l.next.ReleaseTransactionClaim(ctx, transactionID)
	end(err)
	return err
}

func (l *tracedLedger) CancelReservation(ctx context.Context, reservationID string, requester auth.Subject) (*model.Reservation, error) {
	ctx, end := l.start(ctx, "CancelReservation", attribute.String("reservation_id", reservationID))
	r, err := l.next.CancelReservation(ctx, reservationID, requester)
	end(err)
	return r, err
}

func (l *tracedLedger) ExpireReservation(ctx context.Context, reservationID string) (*model.Reservation, error) {
	ctx, end := l.start(ctx, "ExpireReservation", attribute.String("reservation_id", reservationID))
	r, err := l.next.ExpireReservation(ctx, reservationID)
	end(err)
	return r, err
}

func (l *tracedLedger) ExpireStalePending(ctx context.Context, limit int) ([]*model.Reservation, error) {
	ctx, end := l.start(ctx, "ExpireStalePending", attribute.Int("limit", limit))
	rs, err := l.next.ExpireStalePending(ctx, limit)
	end(err)
	return rs, err
}

func (l *tracedLedger) ActiveInWindow(ctx context.Context, window model.TimeWindow) ([]*model.Reservation, error) {
	ctx, end := l.start(ctx, "ActiveInWindow")
	rs, err := l.next.ActiveInWindow(ctx, window)
	end(err)
	return rs, err
}

func (l *tracedLedger) FindReservation(ctx context.Context, id string) (*model.Reservation, error) {
	ctx, end := l.start(ctx, "FindReservation")
	r, err := l.next.FindReservation(ctx, id)
	end(err)
	return r, err
}

func (l *tracedLedger) FindTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	ctx, end := l.start(ctx, "FindTransaction")
	tx, err := l.next.FindTransaction(ctx, id)
	end(err)
	return tx, err
}

func (l *tracedLedger) FindTransactionByReservation(ctx context.Context, reservationID string) (*model.Transaction, error) {
	ctx, end := l.start(ctx, "FindTransactionByReservation")
	tx, err := l.next.FindTransactionByReservation(ctx, reservationID)
	end(err)
	return tx, err
}

func (l *tracedLedger) ListByOwner(ctx context.Context, ownerID string) ([]*model.Reservation, error) {
	ctx, end := l.start(ctx, "ListByOwner")
	rs, err := l.next.ListByOwner(ctx, ownerID)
	end(err)
	return rs, err
}

func (l *tracedLedger) ListAll(ctx context.Context) ([]*model.Reservation, error) {
	ctx, end := l.start(ctx, "ListAll")
	rs, err := l.next.ListAll(ctx)
	end(err)
	return rs, err
}

func (l *tracedLedger) ListTransactionsByOwner(ctx context.Context, ownerID string) ([]*model.Transaction, error) {
	ctx, end := l.start(ctx, "ListTransactionsByOwner")
	txs, err := l.next.ListTransactionsByOwner(ctx, ownerID)
	end(err)
	return txs, err
}

// Ping is not traced; readiness probes would drown real spans.
func (l *tracedLedger) Ping(ctx context.Context) error {
	return l.next.Ping(ctx)
}
