package mongo

import (
	"context"
	"errors"
	"fmt"
	apperrors "slotkeeper/pkg/errors"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
)

var errDomain = errors.New("slot taken")

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantSame bool
	}{
		{"nil", nil, "", true},
		{"domain sentinel passes through", fmt.Errorf("wrapped: %w", errDomain), "", true},
		{"app error passes through", apperrors.SlotConflict("taken"), apperrors.CodeSlotConflict, true},
		{"deadline", context.DeadlineExceeded, apperrors.CodeTimeout, false},
		{"canceled", context.Canceled, apperrors.CodeTimeout, false},
		{"write conflict", mongo.CommandError{Code: 112, Labels: []string{"TransientTransactionError"}}, apperrors.CodeStorageUnavailable, false},
		{"server error", mongo.CommandError{Code: 2, Message: "bad value"}, apperrors.CodeStorageUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError("op", tt.err)
			if tt.wantSame {
				if got != tt.err {
					t.Errorf("got %v, want the original error", got)
				}
				return
			}
			if !apperrors.IsCode(got, tt.wantCode) {
				t.Errorf("got %v, want code %s", got, tt.wantCode)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(mongo.CommandError{Labels: []string{"UnknownTransactionCommitResult"}}) {
		t.Error("commit-unknown should be transient")
	}
	if IsTransient(errDomain) {
		t.Error("plain errors are not transient")
	}
}
