package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"slotkeeper/internal/reservations/service"
	"slotkeeper/pkg/auth"
	apperrors "slotkeeper/pkg/errors"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type UnitsResponse struct {
	Units []int `json:"units"`
}

type AvailabilityResponse struct {
	Units  []int            `json:"units"`
	Window model.TimeWindow `json:"window"`
}

type BookingHandler struct {
	service service.BookingService
	log     *logger.Logger
}

func NewBookingHandler(service service.BookingService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log,
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/units", h.ListUnits)
	router.GET("/api/v1/availability", h.Availability)

	router.POST("/api/v1/bookings", h.Create)
	router.GET("/api/v1/bookings", h.ListAll)
	router.GET("/api/v1/bookings/mine", h.ListMine)
	router.GET("/api/v1/bookings/id/:id", h.GetByID)
	router.POST("/api/v1/bookings/id/:id/cancel", h.Cancel)

	router.POST("/api/v1/transactions/id/:id/capture", h.Capture)
	router.GET("/api/v1/transactions/mine", h.ListTransactions)
}

func (h *BookingHandler) ListUnits(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteSuccess(w, UnitsResponse{Units: h.service.ListUnits()}); err != nil {
		h.log.Error("failed to write success response", "handler", "ListUnits", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()

	start, err := parseTime("start", query.Get("start"))
	if err != nil {
		h.writeError(w, "Availability", err)
		return
	}
	end, err := parseTime("end", query.Get("end"))
	if err != nil {
		h.writeError(w, "Availability", err)
		return
	}
	window := model.NewTimeWindow(start, end)

	units, err := h.service.GetAvailableUnits(r.Context(), window)
	if err != nil {
		h.writeError(w, "Availability", err)
		return
	}

	if err := httputil.WriteSuccess(w, AvailabilityResponse{Units: units, Window: window}); err != nil {
		h.log.Error("failed to write success response", "handler", "Availability", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	subject, ok := h.subject(w, r, "Create")
	if !ok {
		return
	}

	var req model.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.writeError(w, "Create", apperrors.New(apperrors.CodeInvalidRequest, "request body too large", http.StatusRequestEntityTooLarge))
			return
		}
		if errors.Is(err, io.EOF) {
			h.writeError(w, "Create", apperrors.InvalidRequest("request body is required"))
			return
		}
		h.writeError(w, "Create", apperrors.InvalidRequest("Invalid request body"))
		return
	}

	result, err := h.service.CreateBooking(r.Context(), subject, &req)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, result); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	subject, ok := h.subject(w, r, "GetByID")
	if !ok {
		return
	}

	reservation, err := h.service.GetBooking(r.Context(), subject, ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, reservation); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) ListMine(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	subject, ok := h.subject(w, r, "ListMine")
	if !ok {
		return
	}

	reservations, err := h.service.ListMyBookings(r.Context(), subject)
	if err != nil {
		h.writeError(w, "ListMine", err)
		return
	}

	if err := httputil.WriteList(w, reservations, len(reservations)); err != nil {
		h.log.Error("failed to write list response", "handler", "ListMine", "operation", "WriteList", "error", err)
	}
}

func (h *BookingHandler) ListAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	subject, ok := h.subject(w, r, "ListAll")
	if !ok {
		return
	}

	reservations, err := h.service.ListAllBookings(r.Context(), subject)
	if err != nil {
		h.writeError(w, "ListAll", err)
		return
	}

	if err := httputil.WriteList(w, reservations, len(reservations)); err != nil {
		h.log.Error("failed to write list response", "handler", "ListAll", "operation", "WriteList", "error", err)
	}
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	subject, ok := h.subject(w, r, "Cancel")
	if !ok {
		return
	}

	result, err := h.service.CancelBooking(r.Context(), subject, ps.ByName("id"))
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "Cancel", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Capture(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	subject, ok := h.subject(w, r, "Capture")
	if !ok {
		return
	}

	result, err := h.service.CapturePayment(r.Context(), subject, ps.ByName("id"))
	if err != nil {
		h.writeError(w, "Capture", err)
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "Capture", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) ListTransactions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	subject, ok := h.subject(w, r, "ListTransactions")
	if !ok {
		return
	}

	transactions, err := h.service.ListTransactions(r.Context(), subject)
	if err != nil {
		h.writeError(w, "ListTransactions", err)
		return
	}

	if err := httputil.WriteList(w, transactions, len(transactions)); err != nil {
		h.log.Error("failed to write list response", "handler", "ListTransactions", "operation", "WriteList", "error", err)
	}
}

// subject reads the caller resolved by the identity middleware.
func (h *BookingHandler) subject(w http.ResponseWriter, r *http.Request, handler string) (auth.Subject, bool) {
	subject, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeError(w, handler, apperrors.Unauthenticated("authenticated subject required"))
		return auth.Subject{}, false
	}
	return subject, true
}

func (h *BookingHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func parseTime(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, apperrors.InvalidRequest(fmt.Sprintf("%s query parameter is required", name))
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, apperrors.InvalidRequest(fmt.Sprintf("invalid %s parameter: expected RFC3339, got %s", name, value))
	}
	return t, nil
}
