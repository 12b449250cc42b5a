package service

import (
	"context"
	"errors"
	reservationserrors "slotkeeper/internal/reservations/errors"
	"slotkeeper/pkg/auth"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/metrics"
	"slotkeeper/pkg/model"
	"slotkeeper/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
)

func (s *bookingService) CreateBooking(ctx context.Context, subject auth.Subject, req *model.BookingRequest) (result *BookingResult, err error) {
	ctx, span := tracing.Start(ctx, "booking.create", attribute.String("owner_id", subject.ID))
	defer func() { tracing.End(span, err) }()

	if subject.Empty() {
		return nil, apperrors.Unauthenticated("authenticated subject required")
	}
	if err := s.validator.Validate(req); err != nil {
		metrics.IncBookingAttempt("invalid")
		return nil, validationError(err)
	}
	span.SetAttributes(attribute.Int("unit", req.Unit))

	log := s.log.With("owner_id", subject.ID, "unit", req.Unit)
	att := newAttempt(AttemptRequested, log)
	window := req.Window()

	r, err := s.ledger.CreatePendingReservation(ctx, req.Unit, window, subject.ID)
	if err != nil {
		if errors.Is(err, reservationserrors.ErrSlotConflict) {
			att.advance(AttemptConflict)
			metrics.IncSlotConflict()
			metrics.IncBookingAttempt("conflict")
			log.Info("Booking refused, unit already held", "window", window.String())
			return nil, mapLedgerError(err, "reservation", "")
		}
		metrics.IncBookingAttempt("error")
		log.Error("Failed to open reservation", "error", err)
		return nil, mapLedgerError(err, "reservation", "")
	}
	att.advance(AttemptReserved)
	log = log.With("reservation_id", r.ID)

	tx, err := s.ledger.CreateTransaction(ctx, r.ID, subject.ID, s.amount, s.currency)
	if err != nil {
		metrics.IncBookingAttempt("error")
		log.Error("Failed to open transaction, releasing reservation", "error", err)
		s.release(ctx, att, r)
		return nil, apperrors.StorageUnavailable("failed to open payment transaction", err)
	}

	metrics.IncBookingAttempt("reserved")
	log.Info("Reservation opened",
		"transaction_id", tx.ID,
		"window", window.String(),
	)
	s.emit(ctx, model.EventReservationReserved, r, tx.ID)

	return &BookingResult{
		ReservationID: r.ID,
		TransactionID: tx.ID,
		State:         att.state,
		Reservation:   r,
		Transaction:   tx,
	}, nil
}

// release compensates a reservation whose transaction could not be opened.
// It runs detached from the request so a cancelled caller still frees the unit.
func (s *bookingService) release(ctx context.Context, att *attempt, r *model.Reservation) {
	expired, err := s.ledger.ExpireReservation(context.WithoutCancel(ctx), r.ID)
	if err != nil {
		s.log.Error("Compensation failed, reservation stays PENDING until its hold lapses",
			"reservation_id", r.ID,
			"error", err,
		)
		return
	}
	att.advance(AttemptReleased)
	s.emit(ctx, model.EventReservationReleased, expired, "")
}

func (s *bookingService) CapturePayment(ctx context.Context, subject auth.Subject, transactionID string) (result *CaptureResult, err error) {
	ctx, span := tracing.Start(ctx, "booking.capture", attribute.String("transaction_id", transactionID))
	defer func() { tracing.End(span, err) }()

	if subject.Empty() {
		return nil, apperrors.Unauthenticated("authenticated subject required")
	}
	if transactionID == "" {
		return nil, apperrors.InvalidRequest("transaction id is required")
	}

	tx, err := s.ledger.FindTransaction(ctx, transactionID)
	if err != nil {
		return nil, mapLedgerError(err, "transaction", transactionID)
	}
	if tx.OwnerID != subject.ID {
		return nil, apperrors.NotFoundWithID("transaction", transactionID)
	}
	if tx.State != model.TransactionPending {
		return nil, apperrors.AlreadySettled("transaction is already settled")
	}

	r, err := s.ledger.FindReservation(ctx, tx.ReservationID)
	if err != nil {
		return nil, mapLedgerError(err, "reservation", tx.ReservationID)
	}
	if r.State != model.ReservationPending {
		return nil, apperrors.AlreadySettled("reservation is no longer awaiting payment")
	}

	log := s.log.With("transaction_id", tx.ID, "reservation_id", r.ID, "unit", r.Unit)
	att := newAttempt(AttemptReserved, log)

	// A lapsed hold may already be re-let; charging for it is never right.
	if s.index.Stale(r, s.now()) {
		settled, res, err := s.ledger.SettleTransaction(ctx, tx.ID, model.TransactionFailed)
		if err != nil {
			return nil, mapLedgerError(err, "transaction", tx.ID)
		}
		att.advance(AttemptPaymentFailed)
		att.advance(AttemptReleased)
		metrics.IncSettlement(string(settled.State))
		log.Info("Capture refused, hold lapsed")
		s.emit(ctx, model.EventReservationExpired, res, settled.ID)
		return &CaptureResult{Confirmed: false, State: att.state, Transaction: settled}, nil
	}

	// Only the claim holder reaches the capturer.
	if _, err := s.ledger.ClaimTransaction(ctx, tx.ID); err != nil {
		if errors.Is(err, reservationserrors.ErrCaptureInFlight) {
			log.Info("Capture refused, another capture is in flight")
		}
		return nil, mapLedgerError(err, "transaction", tx.ID)
	}

	outcome, err := s.capturer.Capture(ctx, tx.ID, tx.AmountCents, tx.Currency)
	if err != nil {
		log.Error("Payment capability failed, leaving booking pending", "error", err)
		s.releaseClaim(ctx, tx.ID)
		return nil, apperrors.Unavailable("payment", err)
	}

	settled, res, err := s.ledger.SettleTransaction(ctx, tx.ID, outcome)
	if err != nil {
		if outcome == model.TransactionSucceeded {
			// The claim stays so a retry cannot charge twice; the reaper fails it.
			log.Warn("Payment captured but settlement failed; refund required", "error", err)
		} else {
			s.releaseClaim(ctx, tx.ID)
		}
		return nil, mapLedgerError(err, "transaction", tx.ID)
	}
	metrics.IncSettlement(string(settled.State))

	if settled.State == model.TransactionSucceeded {
		att.advance(AttemptPaid)
		att.advance(AttemptConfirmed)
		log.Info("Booking confirmed")
		s.emit(ctx, model.EventReservationConfirmed, res, settled.ID)
	} else {
		att.advance(AttemptPaymentFailed)
		att.advance(AttemptReleased)
		log.Info("Payment failed, unit released")
		s.emit(ctx, model.EventReservationReleased, res, settled.ID)
	}

	return &CaptureResult{
		Confirmed:   settled.State == model.TransactionSucceeded,
		State:       att.state,
		Transaction: settled,
	}, nil
}

// releaseClaim lets a later capture retry. It runs detached from the request.
func (s *bookingService) releaseClaim(ctx context.Context, transactionID string) {
	if err := s.ledger.ReleaseTransactionClaim(context.WithoutCancel(ctx), transactionID); err != nil {
		s.log.Error("Failed to release capture claim, retries wait for the hold to lapse",
			"transaction_id", transactionID,
			"error", err,
		)
	}
}

func (s *bookingService) CancelBooking(ctx context.Context, subject auth.Subject, reservationID string) (result *CancelResult, err error) {
	ctx, span := tracing.Start(ctx, "booking.cancel", attribute.String("reservation_id", reservationID))
	defer func() { tracing.End(span, err) }()

	if subject.Empty() {
		return nil, apperrors.Unauthenticated("authenticated subject required")
	}
	if reservationID == "" {
		return nil, apperrors.InvalidRequest("reservation id is required")
	}

	r, err := s.ledger.CancelReservation(ctx, reservationID, subject)
	if err != nil {
		return nil, mapLedgerError(err, "reservation", reservationID)
	}

	log := s.log.With("reservation_id", r.ID, "unit", r.Unit)
	att := newAttempt(AttemptReserved, log)
	att.advance(AttemptCancelled)

	metrics.IncCancellation()
	log.Info("Booking cancelled",
		"requester", subject.ID,
		"admin", subject.Admin,
	)

	var transactionID string
	if tx, err := s.ledger.FindTransactionByReservation(ctx, r.ID); err == nil {
		transactionID = tx.ID
	}
	s.emit(ctx, model.EventReservationCancelled, r, transactionID)

	return &CancelResult{Cancelled: true, State: att.state, Reservation: r}, nil
}
