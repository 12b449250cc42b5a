package validator

import (
	"errors"
	"slotkeeper/internal/reservations/pool"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"testing"
	"time"
)

func newTestValidator(t *testing.T) *BookingValidator {
	t.Helper()
	p, err := pool.New(5)
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	return NewBookingValidator(p, logger.Discard())
}

func TestBookingValidator_Validate(t *testing.T) {
	v := newTestValidator(t)
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		req       *model.BookingRequest
		wantField string
	}{
		{
			name: "valid",
			req:  &model.BookingRequest{Unit: 3, Start: start, End: start.Add(time.Hour)},
		},
		{
			name:      "missing unit",
			req:       &model.BookingRequest{Start: start, End: start.Add(time.Hour)},
			wantField: "unit",
		},
		{
			name:      "unit outside pool",
			req:       &model.BookingRequest{Unit: 6, Start: start, End: start.Add(time.Hour)},
			wantField: "unit",
		},
		{
			name:      "end before start",
			req:       &model.BookingRequest{Unit: 1, Start: start, End: start.Add(-time.Hour)},
			wantField: "end",
		},
		{
			name:      "zero length window",
			req:       &model.BookingRequest{Unit: 1, Start: start, End: start},
			wantField: "end",
		},
		{
			name:      "missing start",
			req:       &model.BookingRequest{Unit: 1, End: start},
			wantField: "start",
		},
		{
			name:      "nil request",
			req:       nil,
			wantField: "body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %v", err)
			}
			found := false
			for _, e := range verrs {
				if e.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on field %q, got %v", tt.wantField, verrs)
			}
		})
	}
}

func TestBookingValidator_ValidateWindow(t *testing.T) {
	v := newTestValidator(t)
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	if err := v.ValidateWindow(model.NewTimeWindow(start, start.Add(time.Minute))); err != nil {
		t.Errorf("expected valid window, got %v", err)
	}
	if err := v.ValidateWindow(model.NewTimeWindow(start, start)); err == nil {
		t.Error("expected empty window to be rejected")
	}
	if err := v.ValidateWindow(model.TimeWindow{}); err == nil {
		t.Error("expected zero window to be rejected")
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{{Field: "unit", Message: "unit is required"}, {Field: "end", Message: "end must be after start"}}
	want := "validation failed: 2 error(s): [unit: unit is required; end: end must be after start]"
	if errs.Error() != want {
		t.Errorf("expected %q, got %q", want, errs.Error())
	}
}
