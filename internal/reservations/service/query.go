package service

import (
	"context"
	"slotkeeper/pkg/auth"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/model"
	"slotkeeper/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
)

// Read paths. Each answer comes from a single ledger read, so repeated calls
// with no writes in between return the same result.

func (s *bookingService) ListUnits() []int {
	return s.index.Pool.AllUnits()
}

func (s *bookingService) GetAvailableUnits(ctx context.Context, window model.TimeWindow) (units []int, err error) {
	ctx, span := tracing.Start(ctx, "booking.availability")
	defer func() { tracing.End(span, err) }()

	if err := s.validator.ValidateWindow(window); err != nil {
		return nil, validationError(err)
	}

	active, err := s.ledger.ActiveInWindow(ctx, window)
	if err != nil {
		s.log.Error("Failed to read active reservations", "error", err)
		return nil, mapLedgerError(err, "reservation", "")
	}

	units, err = s.index.AvailableUnits(window, active, s.now())
	if err != nil {
		return nil, mapLedgerError(err, "reservation", "")
	}
	span.SetAttributes(attribute.Int("available", len(units)))
	return units, nil
}

func (s *bookingService) GetBooking(ctx context.Context, subject auth.Subject, reservationID string) (*model.Reservation, error) {
	if subject.Empty() {
		return nil, apperrors.Unauthenticated("authenticated subject required")
	}
	if reservationID == "" {
		return nil, apperrors.InvalidRequest("reservation id is required")
	}

	r, err := s.ledger.FindReservation(ctx, reservationID)
	if err != nil {
		return nil, mapLedgerError(err, "reservation", reservationID)
	}
	// Other owners' bookings are indistinguishable from missing ones.
	if !subject.CanAct(r.OwnerID) {
		return nil, apperrors.NotFoundWithID("reservation", reservationID)
	}
	return r, nil
}

func (s *bookingService) ListMyBookings(ctx context.Context, subject auth.Subject) ([]*model.Reservation, error) {
	if subject.Empty() {
		return nil, apperrors.Unauthenticated("authenticated subject required")
	}

	rs, err := s.ledger.ListByOwner(ctx, subject.ID)
	if err != nil {
		s.log.Error("Failed to list bookings", "owner_id", subject.ID, "error", err)
		return nil, mapLedgerError(err, "reservation", "")
	}
	return nonNil(rs), nil
}

func (s *bookingService) ListAllBookings(ctx context.Context, subject auth.Subject) ([]*model.Reservation, error) {
	if subject.Empty() {
		return nil, apperrors.Unauthenticated("authenticated subject required")
	}
	if !subject.Admin {
		return nil, apperrors.Unauthorized("admin role required")
	}

	rs, err := s.ledger.ListAll(ctx)
	if err != nil {
		s.log.Error("Failed to list all bookings", "error", err)
		return nil, mapLedgerError(err, "reservation", "")
	}
	return nonNil(rs), nil
}

func (s *bookingService) ListTransactions(ctx context.Context, subject auth.Subject) ([]*model.Transaction, error) {
	if subject.Empty() {
		return nil, apperrors.Unauthenticated("authenticated subject required")
	}

	txs, err := s.ledger.ListTransactionsByOwner(ctx, subject.ID)
	if err != nil {
		s.log.Error("Failed to list transactions", "owner_id", subject.ID, "error", err)
		return nil, mapLedgerError(err, "transaction", "")
	}
	return nonNil(txs), nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
