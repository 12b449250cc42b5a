package service

import (
	"slotkeeper/pkg/logger"
)

// AttemptState tracks one booking attempt through the orchestrator. It is
// never persisted; the ledger states are the durable record.
type AttemptState string

const (
	AttemptRequested     AttemptState = "REQUESTED"
	AttemptReserved      AttemptState = "RESERVED"
	AttemptPaid          AttemptState = "PAID"
	AttemptConfirmed     AttemptState = "CONFIRMED"
	AttemptConflict      AttemptState = "CONFLICT"
	AttemptPaymentFailed AttemptState = "PAYMENT_FAILED"
	AttemptReleased      AttemptState = "RELEASED"
	AttemptCancelled     AttemptState = "CANCELLED"
)

var attemptTransitions = map[AttemptState][]AttemptState{
	AttemptRequested:     {AttemptReserved, AttemptConflict},
	AttemptReserved:      {AttemptPaid, AttemptPaymentFailed, AttemptCancelled, AttemptReleased},
	AttemptPaid:          {AttemptConfirmed, AttemptReleased},
	AttemptPaymentFailed: {AttemptReleased},
}

func (s AttemptState) Terminal() bool {
	switch s {
	case AttemptConfirmed, AttemptConflict, AttemptReleased, AttemptCancelled:
		return true
	default:
		return false
	}
}

func (s AttemptState) CanTransition(to AttemptState) bool {
	for _, next := range attemptTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type attempt struct {
	state AttemptState
	log   *logger.Logger
}

func newAttempt(state AttemptState, log *logger.Logger) *attempt {
	return &attempt{state: state, log: log}
}

// advance moves to the next state. An illegal move is a bug in the
// orchestrator; it is logged and the state is left alone.
func (a *attempt) advance(to AttemptState) bool {
	if !a.state.CanTransition(to) {
		a.log.Error("Illegal booking attempt transition", "from", a.state, "to", to)
		return false
	}
	a.state = to
	return true
}
