package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(CodeValidation, "validation failed", http.StatusUnprocessableEntity)

	if err.Code != CodeValidation {
		t.Errorf("expected code %s, got %s", CodeValidation, err.Code)
	}
	if err.Message != "validation failed" {
		t.Errorf("expected message 'validation failed', got %s", err.Message)
	}
	if err.HTTPStatus != http.StatusUnprocessableEntity {
		t.Errorf("expected status %d, got %d", http.StatusUnprocessableEntity, err.HTTPStatus)
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("database connection failed")
	wrapped := Wrap(originalErr, CodeInternal, "internal error", http.StatusInternalServerError)

	if wrapped.Err != originalErr {
		t.Errorf("expected wrapped error to contain original error")
	}
	if !errors.Is(wrapped, originalErr) {
		t.Errorf("errors.Is should see through the AppError")
	}
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without underlying error",
			appErr:   SlotConflict("unit already booked for that period"),
			expected: "SLOT_CONFLICT: unit already booked for that period",
		},
		{
			name:     "with underlying error",
			appErr:   StorageUnavailable("ledger write failed", errors.New("connection reset")),
			expected: "STORAGE_UNAVAILABLE: ledger write failed (caused by: connection reset)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.appErr.Error()
			if got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestConstructors_StatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   string
		status int
	}{
		{"invalid request", InvalidRequest("bad window"), CodeInvalidRequest, http.StatusBadRequest},
		{"validation", Validation("bad body", nil), CodeValidation, http.StatusUnprocessableEntity},
		{"unauthenticated", Unauthenticated("missing token"), CodeUnauthenticated, http.StatusUnauthorized},
		{"unauthorized", Unauthorized("not your booking"), CodeUnauthorized, http.StatusForbidden},
		{"not found", NotFoundWithID("Reservation", "r-1"), CodeNotFound, http.StatusNotFound},
		{"slot conflict", SlotConflict("taken"), CodeSlotConflict, http.StatusConflict},
		{"already settled", AlreadySettled("settled"), CodeAlreadySettled, http.StatusConflict},
		{"not cancellable", NotCancellable("paid"), CodeNotCancellable, http.StatusConflict},
		{"request in progress", RequestInProgress("running"), CodeRequestInProgress, http.StatusConflict},
		{"storage unavailable", StorageUnavailable("down", nil), CodeStorageUnavailable, http.StatusServiceUnavailable},
		{"unavailable", Unavailable("Payment gateway", nil), CodeUnavailable, http.StatusServiceUnavailable},
		{"timeout", Timeout("slow"), CodeTimeout, http.StatusGatewayTimeout},
		{"internal", Internal("boom", nil), CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, tt.err.Code)
			}
			if tt.err.StatusCode() != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, tt.err.StatusCode())
			}
		})
	}
}

func TestAppError_Retryable(t *testing.T) {
	if !SlotConflict("taken").Retryable() {
		t.Error("slot conflicts are caller-retryable")
	}
	if !AlreadySettled("double submit").Retryable() {
		t.Error("already settled is caller-retryable")
	}
	if !RequestInProgress("running").Retryable() {
		t.Error("an in-flight duplicate is caller-retryable")
	}
	if NotCancellable("paid").Retryable() {
		t.Error("not cancellable must not be retryable")
	}
	if StorageUnavailable("down", nil).Retryable() {
		t.Error("storage failures are fatal for the request")
	}
}

func TestNotFoundWithID(t *testing.T) {
	err := NotFoundWithID("Transaction", "tx-42")

	if err.Message != "Transaction not found" {
		t.Errorf("unexpected message %q", err.Message)
	}
	if err.Details["id"] != "tx-42" {
		t.Errorf("expected id 'tx-42', got %v", err.Details["id"])
	}
	if err.Details["resource"] != "Transaction" {
		t.Errorf("expected resource 'Transaction', got %v", err.Details["resource"])
	}
}

func TestAsAppError(t *testing.T) {
	appErr := NotCancellable("paid")
	wrapped := fmt.Errorf("cancel: %w", appErr)
	regularErr := errors.New("regular error")

	if AsAppError(appErr) != appErr {
		t.Errorf("AsAppError() should return same AppError")
	}
	if AsAppError(wrapped) != appErr {
		t.Errorf("AsAppError() should unwrap wrapped AppError")
	}

	result := AsAppError(regularErr)
	if result.Code != CodeInternal {
		t.Errorf("AsAppError() should wrap regular error as internal error")
	}
	if result.Err != regularErr {
		t.Errorf("AsAppError() should wrap the original error")
	}
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("create: %w", SlotConflict("taken"))

	if !IsCode(err, CodeSlotConflict) {
		t.Error("expected IsCode to match wrapped slot conflict")
	}
	if IsCode(err, CodeNotFound) {
		t.Error("IsCode must not match a different code")
	}
	if !IsAppError(err) {
		t.Error("IsAppError should see wrapped AppError")
	}
	if IsAppError(errors.New("plain")) {
		t.Error("IsAppError should be false for plain errors")
	}
}

func TestAppError_ToJSON(t *testing.T) {
	jsonStr := string(NotFoundWithID("Reservation", "r-1").ToJSON())

	if !strings.Contains(jsonStr, CodeNotFound) {
		t.Errorf("ToJSON() should contain error code, got %s", jsonStr)
	}
	if !strings.Contains(jsonStr, "Reservation not found") {
		t.Errorf("ToJSON() should contain error message, got %s", jsonStr)
	}
}
