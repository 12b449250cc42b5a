package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIsIdempotent(t *testing.T) {
	Register()
	Register()
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(bookingAttempts.WithLabelValues("CONFIRMED"))
	IncBookingAttempt("CONFIRMED")
	if got := testutil.ToFloat64(bookingAttempts.WithLabelValues("CONFIRMED")); got != before+1 {
		t.Errorf("booking attempts = %v, want %v", got, before+1)
	}

	beforeExpired := testutil.ToFloat64(expired)
	AddExpired(0)
	AddExpired(3)
	if got := testutil.ToFloat64(expired); got != beforeExpired+3 {
		t.Errorf("expired = %v, want %v", got, beforeExpired+3)
	}
}
