package service

import (
	"context"
	"errors"
	reservationserrors "slotkeeper/internal/reservations/errors"
	"slotkeeper/internal/reservations/events"
	"slotkeeper/internal/reservations/interval"
	"slotkeeper/internal/reservations/payment"
	"slotkeeper/internal/reservations/repository"
	"slotkeeper/internal/reservations/validator"
	"slotkeeper/pkg/auth"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"time"
)

type BookingService interface {
	CreateBooking(ctx context.Context, subject auth.Subject, req *model.BookingRequest) (*BookingResult, error)
	CapturePayment(ctx context.Context, subject auth.Subject, transactionID string) (*CaptureResult, error)
	CancelBooking(ctx context.Context, subject auth.Subject, reservationID string) (*CancelResult, error)

	GetAvailableUnits(ctx context.Context, window model.TimeWindow) ([]int, error)
	GetBooking(ctx context.Context, subject auth.Subject, reservationID string) (*model.Reservation, error)
	ListMyBookings(ctx context.Context, subject auth.Subject) ([]*model.Reservation, error)
	ListAllBookings(ctx context.Context, subject auth.Subject) ([]*model.Reservation, error)
	ListTransactions(ctx context.Context, subject auth.Subject) ([]*model.Transaction, error)
	ListUnits() []int
}

type BookingResult struct {
	ReservationID string             `json:"reservation_id"`
	TransactionID string             `json:"transaction_id"`
	State         AttemptState       `json:"state"`
	Reservation   *model.Reservation `json:"reservation"`
	Transaction   *model.Transaction `json:"transaction"`
}

type CaptureResult struct {
	Confirmed   bool               `json:"confirmed"`
	State       AttemptState       `json:"state"`
	Transaction *model.Transaction `json:"transaction"`
}

type CancelResult struct {
	Cancelled   bool               `json:"cancelled"`
	State       AttemptState       `json:"state"`
	Reservation *model.Reservation `json:"reservation"`
}

type Config struct {
	Index       interval.Index
	AmountCents int64
	Currency    string
	Now         func() time.Time
	Log         *logger.Logger
}

type bookingService struct {
	ledger    repository.Ledger
	capturer  payment.Capturer
	validator *validator.BookingValidator
	publisher events.Publisher
	index     interval.Index
	amount    int64
	currency  string
	now       func() time.Time
	log       *logger.Logger
}

func NewBookingService(
	ledger repository.Ledger,
	capturer payment.Capturer,
	validator *validator.BookingValidator,
	publisher events.Publisher,
	cfg Config,
) BookingService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Log == nil {
		cfg.Log = logger.Discard()
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &bookingService{
		ledger:    ledger,
		capturer:  capturer,
		validator: validator,
		publisher: publisher,
		index:     cfg.Index,
		amount:    cfg.AmountCents,
		currency:  cfg.Currency,
		now:       cfg.Now,
		log:       cfg.Log.Component("booking-service"),
	}
}

// mapLedgerError turns ledger sentinels into application errors. Anything the
// ledger did not classify is an infrastructure failure.
func mapLedgerError(err error, resource, id string) error {
	switch {
	case err == nil:
		return nil
	case apperrors.IsAppError(err):
		return err
	case errors.Is(err, reservationserrors.ErrNotFound):
		return apperrors.NotFoundWithID(resource, id)
	case errors.Is(err, reservationserrors.ErrSlotConflict):
		return apperrors.SlotConflict("unit already booked for that period")
	case errors.Is(err, reservationserrors.ErrAlreadySettled), errors.Is(err, reservationserrors.ErrTransactionExists):
		return apperrors.AlreadySettled(resource + " is already settled")
	case errors.Is(err, reservationserrors.ErrCaptureInFlight):
		return apperrors.AlreadySettled("payment capture already in progress")
	case errors.Is(err, reservationserrors.ErrNotCancellable):
		return apperrors.NotCancellable("booking can no longer be cancelled")
	case errors.Is(err, reservationserrors.ErrUnauthorized):
		return apperrors.Unauthorized("not allowed to act on this booking")
	case errors.Is(err, reservationserrors.ErrInvalidWindow):
		return apperrors.InvalidRequest("end must be after start")
	case errors.Is(err, reservationserrors.ErrInvalidUnit):
		return apperrors.InvalidRequest("unit is not part of the pool")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Timeout("storage call timed out")
	default:
		return apperrors.StorageUnavailable("ledger operation failed", err)
	}
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperrors.InvalidRequest(verrs.Error()).WithDetails(map[string]any{"errors": []validator.ValidationError(verrs)})
	}
	return apperrors.InvalidRequest(err.Error())
}

// emit publishes after commit. Failures are logged; the ledger is the source
// of truth and consumers can reconcile from it.
func (s *bookingService) emit(ctx context.Context, eventType model.EventType, r *model.Reservation, transactionID string) {
	event := model.NewReservationEvent(eventType, r, transactionID)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Warn("Failed to publish reservation event",
			"event_type", eventType,
			"reservation_id", r.ID,
			"error", err,
		)
	}
}
