package model

import (
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

func TestTimeWindow_Overlaps(t *testing.T) {
	base := NewTimeWindow(at(10, 0), at(11, 0))

	tests := []struct {
		name     string
		other    TimeWindow
		expected bool
	}{
		{"identical", NewTimeWindow(at(10, 0), at(11, 0)), true},
		{"contained", NewTimeWindow(at(10, 15), at(10, 45)), true},
		{"containing", NewTimeWindow(at(9, 0), at(12, 0)), true},
		{"overlaps start", NewTimeWindow(at(9, 30), at(10, 30)), true},
		{"overlaps end", NewTimeWindow(at(10, 30), at(11, 30)), true},
		{"ends at start", NewTimeWindow(at(9, 0), at(10, 0)), false},
		{"starts at end", NewTimeWindow(at(11, 0), at(12, 0)), false},
		{"before", NewTimeWindow(at(7, 0), at(8, 0)), false},
		{"after", NewTimeWindow(at(13, 0), at(14, 0)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.Overlaps(tt.other); got != tt.expected {
				t.Errorf("Overlaps(%s, %s) = %v, want %v", base, tt.other, got, tt.expected)
			}
			if got := tt.other.Overlaps(base); got != tt.expected {
				t.Errorf("overlap must be symmetric: Overlaps(%s, %s) = %v", tt.other, base, got)
			}
		})
	}
}

func TestTimeWindow_Valid(t *testing.T) {
	if !NewTimeWindow(at(10, 0), at(11, 0)).Valid() {
		t.Error("expected [10:00, 11:00) to be valid")
	}
	if NewTimeWindow(at(10, 0), at(10, 0)).Valid() {
		t.Error("empty window must be invalid")
	}
	if NewTimeWindow(at(11, 0), at(10, 0)).Valid() {
		t.Error("reversed window must be invalid")
	}
}

func TestReservationState_CanTransition(t *testing.T) {
	tests := []struct {
		from, to ReservationState
		allowed  bool
	}{
		{ReservationPending, ReservationConfirmed, true},
		{ReservationPending, ReservationExpired, true},
		{ReservationPending, ReservationCancelled, true},
		{ReservationConfirmed, ReservationCancelled, true},
		{ReservationConfirmed, ReservationExpired, false},
		{ReservationConfirmed, ReservationPending, false},
		{ReservationExpired, ReservationConfirmed, false},
		{ReservationCancelled, ReservationPending, false},
		{ReservationExpired, ReservationCancelled, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.allowed {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestTransactionState_ReservationState(t *testing.T) {
	if TransactionSucceeded.ReservationState() != ReservationConfirmed {
		t.Error("SUCCEEDED must imply CONFIRMED")
	}
	if TransactionFailed.ReservationState() != ReservationExpired {
		t.Error("FAILED must imply EXPIRED")
	}
	if TransactionPending.Settled() {
		t.Error("PENDING is not settled")
	}
}
