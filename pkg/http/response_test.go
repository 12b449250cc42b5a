package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "slotkeeper/pkg/errors"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
		retryable      bool
	}{
		{"slot conflict", apperrors.SlotConflict("unit already booked for that period"), http.StatusConflict, apperrors.CodeSlotConflict, true},
		{"not cancellable", apperrors.NotCancellable("paid"), http.StatusConflict, apperrors.CodeNotCancellable, false},
		{"unauthorized", apperrors.Unauthorized("not yours"), http.StatusForbidden, apperrors.CodeUnauthorized, false},
		{"storage", apperrors.StorageUnavailable("down", errors.New("x")), http.StatusServiceUnavailable, apperrors.CodeStorageUnavailable, false},
		{"plain error", errors.New("driver exploded"), http.StatusInternalServerError, apperrors.CodeInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			if err := WriteError(rec, tt.err); err != nil {
				t.Fatalf("WriteError returned %v", err)
			}

			if rec.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rec.Code)
			}

			var resp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid JSON body: %v", err)
			}
			if resp.Code != tt.expectedCode {
				t.Errorf("expected code %s, got %s", tt.expectedCode, resp.Code)
			}
			if resp.Retryable != tt.retryable {
				t.Errorf("expected retryable=%v, got %v", tt.retryable, resp.Retryable)
			}
		})
	}
}

func TestWriteError_HidesUnderlyingCause(t *testing.T) {
	rec := httptest.NewRecorder()
	_ = WriteError(rec, errors.New("mongo: secret host unreachable"))

	var resp ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Error != "Internal server error" {
		t.Errorf("expected opaque message, got %q", resp.Error)
	}
}

func TestWriteCreated(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := WriteCreated(rec, map[string]string{"reservation_id": "r-1"}); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}
}
