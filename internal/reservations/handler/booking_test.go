package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slotkeeper/internal/reservations/service"
	"slotkeeper/pkg/auth"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
)

// Mock service for testing
type mockBookingService struct {
	createFunc    func(ctx context.Context, subject auth.Subject, req *model.BookingRequest) (*service.BookingResult, error)
	captureFunc   func(ctx context.Context, subject auth.Subject, txID string) (*service.CaptureResult, error)
	cancelFunc    func(ctx context.Context, subject auth.Subject, resID string) (*service.CancelResult, error)
	availableFunc func(ctx context.Context, window model.TimeWindow) ([]int, error)
	getFunc       func(ctx context.Context, subject auth.Subject, resID string) (*model.Reservation, error)
	listAllFunc   func(ctx context.Context, subject auth.Subject) ([]*model.Reservation, error)
}

func (m *mockBookingService) CreateBooking(ctx context.Context, subject auth.Subject, req *model.BookingRequest) (*service.BookingResult, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, subject, req)
	}
	return &service.BookingResult{}, nil
}

func (m *mockBookingService) CapturePayment(ctx context.Context, subject auth.Subject, txID string) (*service.CaptureResult, error) {
	if m.captureFunc != nil {
		return m.captureFunc(ctx, subject, txID)
	}
	return &service.CaptureResult{}, nil
}

func (m *mockBookingService) CancelBooking(ctx context.Context, subject auth.Subject, resID string) (*service.CancelResult, error) {
	if m.cancelFunc != nil {
		return m.cancelFunc(ctx, subject, resID)
	}
	return &service.CancelResult{}, nil
}

func (m *mockBookingService) GetAvailableUnits(ctx context.Context, window model.TimeWindow) ([]int, error) {
	if m.availableFunc != nil {
		return m.availableFunc(ctx, window)
	}
	return []int{}, nil
}

func (m *mockBookingService) GetBooking(ctx context.Context, subject auth.Subject, resID string) (*model.Reservation, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, subject, resID)
	}
	return &model.Reservation{ID: resID}, nil
}

func (m *mockBookingService) ListMyBookings(ctx context.Context, subject auth.Subject) ([]*model.Reservation, error) {
	return []*model.Reservation{{ID: "r1", OwnerID: subject.ID}}, nil
}

func (m *mockBookingService) ListAllBookings(ctx context.Context, subject auth.Subject) ([]*model.Reservation, error) {
	if m.listAllFunc != nil {
		return m.listAllFunc(ctx, subject)
	}
	return []*model.Reservation{}, nil
}

func (m *mockBookingService) ListTransactions(ctx context.Context, subject auth.Subject) ([]*model.Transaction, error) {
	return []*model.Transaction{}, nil
}

func (m *mockBookingService) ListUnits() []int {
	return []int{1, 2, 3}
}

func newTestRouter(svc service.BookingService) *httprouter.Router {
	router := httprouter.New()
	NewBookingHandler(svc, logger.Discard()).RegisterRoutes(router)
	return router
}

func withSubject(r *http.Request, id string, admin bool) *http.Request {
	return r.WithContext(auth.WithSubject(r.Context(), auth.Subject{ID: id, Admin: admin}))
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

func TestCreate(t *testing.T) {
	var received *model.BookingRequest
	var receivedSubject auth.Subject
	svc := &mockBookingService{
		createFunc: func(_ context.Context, subject auth.Subject, req *model.BookingRequest) (*service.BookingResult, error) {
			received = req
			receivedSubject = subject
			return &service.BookingResult{ReservationID: "r1", TransactionID: "t1", State: service.AttemptReserved}, nil
		},
	}
	router := newTestRouter(svc)

	body := `{"unit":2,"start":"2026-03-02T10:00:00Z","end":"2026-03-02T11:00:00Z"}`
	req := withSubject(httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(body)), "alice", false)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	if received == nil || received.Unit != 2 {
		t.Fatalf("service did not receive the decoded request: %+v", received)
	}
	if receivedSubject.ID != "alice" {
		t.Errorf("expected subject alice, got %q", receivedSubject.ID)
	}

	var resp struct {
		Data service.BookingResult `json:"data"`
	}
	decodeBody(t, w, &resp)
	if resp.Data.ReservationID != "r1" || resp.Data.TransactionID != "t1" {
		t.Errorf("unexpected body: %+v", resp.Data)
	}
}

func TestCreate_BadRequests(t *testing.T) {
	called := false
	svc := &mockBookingService{
		createFunc: func(context.Context, auth.Subject, *model.BookingRequest) (*service.BookingResult, error) {
			called = true
			return &service.BookingResult{}, nil
		},
	}
	router := newTestRouter(svc)

	tests := []struct {
		name       string
		body       string
		subject    string
		expectCode int
	}{
		{"malformed json", `{"unit":`, "alice", http.StatusBadRequest},
		{"empty body", ``, "alice", http.StatusBadRequest},
		{"wrong type", `{"unit":"two"}`, "alice", http.StatusBadRequest},
		{"no subject", `{"unit":1}`, "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called = false
			req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(tt.body))
			if tt.subject != "" {
				req = withSubject(req, tt.subject, false)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.expectCode {
				t.Errorf("expected status %d, got %d: %s", tt.expectCode, w.Code, w.Body.String())
			}
			if called {
				t.Error("service should not be called")
			}
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expectCode int
		expectErr  string
	}{
		{"slot conflict", apperrors.SlotConflict("unit 1 is taken"), http.StatusConflict, apperrors.CodeSlotConflict},
		{"already settled", apperrors.AlreadySettled("done"), http.StatusConflict, apperrors.CodeAlreadySettled},
		{"not found", apperrors.NotFoundWithID("reservation", "x"), http.StatusNotFound, apperrors.CodeNotFound},
		{"storage", apperrors.StorageUnavailable("down", errors.New("boom")), http.StatusServiceUnavailable, apperrors.CodeStorageUnavailable},
		{"plain error is opaque", errors.New("driver exploded"), http.StatusInternalServerError, apperrors.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockBookingService{
				captureFunc: func(context.Context, auth.Subject, string) (*service.CaptureResult, error) {
					return nil, tt.err
				},
			}
			router := newTestRouter(svc)

			req := withSubject(httptest.NewRequest(http.MethodPost, "/api/v1/transactions/id/t1/capture", nil), "alice", false)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.expectCode {
				t.Fatalf("expected status %d, got %d", tt.expectCode, w.Code)
			}
			var resp struct {
				Error string `json:"error"`
				Code  string `json:"code"`
			}
			decodeBody(t, w, &resp)
			if resp.Code != tt.expectErr {
				t.Errorf("expected code %s, got %s", tt.expectErr, resp.Code)
			}
			if strings.Contains(resp.Error, "driver exploded") {
				t.Error("internal error details leaked to the caller")
			}
		})
	}
}

func TestAvailability(t *testing.T) {
	var received model.TimeWindow
	svc := &mockBookingService{
		availableFunc: func(_ context.Context, window model.TimeWindow) ([]int, error) {
			received = window
			return []int{1, 3}, nil
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/availability?start=2026-03-02T10:00:00%2B02:00&end=2026-03-02T11:00:00Z", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	want := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	if !received.Start.Equal(want) || received.Start.Location() != time.UTC {
		t.Errorf("expected start normalised to %s, got %s", want, received.Start)
	}

	var resp struct {
		Data AvailabilityResponse `json:"data"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Data.Units) != 2 || resp.Data.Units[0] != 1 || resp.Data.Units[1] != 3 {
		t.Errorf("unexpected units: %v", resp.Data.Units)
	}
}

func TestAvailability_InvalidQuery(t *testing.T) {
	router := newTestRouter(&mockBookingService{})

	tests := []struct {
		name  string
		query string
	}{
		{"missing start", "?end=2026-03-02T11:00:00Z"},
		{"missing end", "?start=2026-03-02T10:00:00Z"},
		{"not rfc3339", "?start=tomorrow&end=2026-03-02T11:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/availability"+tt.query, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", w.Code)
			}
		})
	}
}

func TestListEndpoints(t *testing.T) {
	router := newTestRouter(&mockBookingService{})

	tests := []struct {
		name        string
		path        string
		expectCount int
	}{
		{"mine", "/api/v1/bookings/mine", 1},
		{"all", "/api/v1/bookings", 0},
		{"transactions", "/api/v1/transactions/mine", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withSubject(httptest.NewRequest(http.MethodGet, tt.path, nil), "alice", true)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", w.Code)
			}
			var resp struct {
				Data  []json.RawMessage `json:"data"`
				Count int               `json:"count"`
			}
			decodeBody(t, w, &resp)
			if resp.Data == nil {
				t.Error("list data must be an array, got null")
			}
			if resp.Count != tt.expectCount {
				t.Errorf("expected count %d, got %d", tt.expectCount, resp.Count)
			}
		})
	}
}

func TestPathParameters(t *testing.T) {
	var gotGet, gotCancel string
	svc := &mockBookingService{
		getFunc: func(_ context.Context, _ auth.Subject, id string) (*model.Reservation, error) {
			gotGet = id
			return &model.Reservation{ID: id}, nil
		},
		cancelFunc: func(_ context.Context, _ auth.Subject, id string) (*service.CancelResult, error) {
			gotCancel = id
			return &service.CancelResult{Cancelled: true}, nil
		},
	}
	router := newTestRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, withSubject(httptest.NewRequest(http.MethodGet, "/api/v1/bookings/id/res-42", nil), "alice", false))
	if w.Code != http.StatusOK || gotGet != "res-42" {
		t.Errorf("get: status %d, id %q", w.Code, gotGet)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, withSubject(httptest.NewRequest(http.MethodPost, "/api/v1/bookings/id/res-43/cancel", nil), "alice", false))
	if w.Code != http.StatusOK || gotCancel != "res-43" {
		t.Errorf("cancel: status %d, id %q", w.Code, gotCancel)
	}
}

func TestListUnits(t *testing.T) {
	router := newTestRouter(&mockBookingService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/units", nil))

	var resp struct {
		Data UnitsResponse `json:"data"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Data.Units) != 3 {
		t.Errorf("expected 3 units, got %v", resp.Data.Units)
	}
}
