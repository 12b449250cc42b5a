// Package payment is the boundary to whatever captures money for a hold.
// Gateway integration lives outside this service.
package payment

import (
	"context"
	"fmt"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
)

const (
	ModeSucceed = "succeed"
	ModeFail    = "fail"
)

// Capturer settles a transaction amount. A non-nil error means the capture
// outcome is unknown and nothing may be settled.
type Capturer interface {
	Capture(ctx context.Context, transactionID string, amountCents int64, currency string) (model.TransactionState, error)
}

type Simulated struct {
	mode string
	log  *logger.Logger

	// Decline, when set, overrides mode for matching transactions.
	Decline func(transactionID string, amountCents int64) bool
}

func NewSimulated(mode string, log *logger.Logger) (*Simulated, error) {
	switch mode {
	case "", ModeSucceed:
		mode = ModeSucceed
	case ModeFail:
	default:
		return nil, fmt.Errorf("unknown payment mode %q", mode)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Simulated{mode: mode, log: log}, nil
}

func (s *Simulated) Capture(ctx context.Context, transactionID string, amountCents int64, currency string) (model.TransactionState, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	outcome := model.TransactionSucceeded
	if s.mode == ModeFail || (s.Decline != nil && s.Decline(transactionID, amountCents)) {
		outcome = model.TransactionFailed
	}

	s.log.Debug("Simulated capture",
		"transaction_id", transactionID,
		"amount_cents", amountCents,
		"currency", currency,
		"outcome", outcome,
	)
	return outcome, nil
}
