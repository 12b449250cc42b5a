package errors

import "errors"

var (
	ErrNotFound = errors.New("reservation or transaction not found")

	ErrSlotConflict = errors.New("unit already booked for that period")

	ErrAlreadySettled = errors.New("transaction already settled")

	ErrNotCancellable = errors.New("reservation is not cancellable")

	ErrUnauthorized = errors.New("requester may not act on this reservation")

	ErrInvalidWindow = errors.New("window end must be after start")

	ErrInvalidUnit = errors.New("unit is not part of the pool")

	ErrTransactionExists = errors.New("reservation already has a transaction")

	ErrInvalidOutcome = errors.New("settlement outcome must be SUCCEEDED or FAILED")

	ErrCaptureInFlight = errors.New("transaction capture already in progress")
)
