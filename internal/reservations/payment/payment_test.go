package payment

import (
	"context"
	"testing"

	"slotkeeper/pkg/model"
)

func TestSimulated_Capture(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		decline func(string, int64) bool
		want    model.TransactionState
	}{
		{name: "default succeeds", mode: "", want: model.TransactionSucceeded},
		{name: "fail mode", mode: ModeFail, want: model.TransactionFailed},
		{
			name:    "decline predicate",
			mode:    ModeSucceed,
			decline: func(_ string, amount int64) bool { return amount > 1000 },
			want:    model.TransactionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSimulated(tt.mode, nil)
			if err != nil {
				t.Fatalf("NewSimulated: %v", err)
			}
			s.Decline = tt.decline

			got, err := s.Capture(context.Background(), "tx-1", 5000, "USD")
			if err != nil {
				t.Fatalf("Capture: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestSimulated_RejectsUnknownMode(t *testing.T) {
	if _, err := NewSimulated("sometimes", nil); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestSimulated_CancelledContext(t *testing.T) {
	s, _ := NewSimulated(ModeSucceed, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Capture(ctx, "tx-1", 100, "USD"); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}
