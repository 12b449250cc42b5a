package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slotkeeper/pkg/model"
	"time"
)

// APIError is a non-2xx answer from the reservations service.
type APIError struct {
	Status    int            `json:"-"`
	Message   string         `json:"error"`
	Code      string         `json:"code"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("reservations api: %d %s: %s", e.Status, e.Code, e.Message)
}

type BookingResult struct {
	ReservationID string             `json:"reservation_id"`
	TransactionID string             `json:"transaction_id"`
	State         string             `json:"state"`
	Reservation   *model.Reservation `json:"reservation"`
	Transaction   *model.Transaction `json:"transaction"`
}

type CaptureResult struct {
	Confirmed   bool               `json:"confirmed"`
	State       string             `json:"state"`
	Transaction *model.Transaction `json:"transaction"`
}

type CancelResult struct {
	Cancelled   bool               `json:"cancelled"`
	State       string             `json:"state"`
	Reservation *model.Reservation `json:"reservation"`
}

type AvailabilityResult struct {
	Units  []int            `json:"units"`
	Window model.TimeWindow `json:"window"`
}

// ReservationClient talks to the reservations HTTP API on behalf of one subject.
type ReservationClient struct {
	httpClient *HttpClient
}

func NewReservationClient(baseUrl string) *ReservationClient {
	return &ReservationClient{
		httpClient: NewHttpClient(baseUrl),
	}
}

func (c *ReservationClient) WithBearerToken(token string) *ReservationClient {
	c.httpClient.SetHeader("Authorization", "Bearer "+token)
	return c
}

// WithSubjectHeaders is for deployments behind a trusted gateway.
func (c *ReservationClient) WithSubjectHeaders(subjectID, role string) *ReservationClient {
	c.httpClient.SetHeader("X-Subject-ID", subjectID)
	c.httpClient.SetHeader("X-Subject-Role", role)
	return c
}

func (c *ReservationClient) Units(ctx context.Context) ([]int, error) {
	var units struct {
		Units []int `json:"units"`
	}
	if err := c.get(ctx, "/api/v1/units", &units); err != nil {
		return nil, err
	}
	return units.Units, nil
}

func (c *ReservationClient) Availability(ctx context.Context, start, end time.Time) (*AvailabilityResult, error) {
	q := url.Values{}
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))

	var result AvailabilityResult
	if err := c.get(ctx, "/api/v1/availability?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *ReservationClient) CreateBooking(ctx context.Context, unit int, start, end time.Time) (*BookingResult, error) {
	req := model.BookingRequest{Unit: unit, Start: start, End: end}

	var result BookingResult
	if err := c.post(ctx, "/api/v1/bookings", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *ReservationClient) CapturePayment(ctx context.Context, transactionID string) (*CaptureResult, error) {
	var result CaptureResult
	path := "/api/v1/transactions/id/" + url.PathEscape(transactionID) + "/capture"
	if err := c.post(ctx, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *ReservationClient) CancelBooking(ctx context.Context, reservationID string) (*CancelResult, error) {
	var result CancelResult
	path := "/api/v1/bookings/id/" + url.PathEscape(reservationID) + "/cancel"
	if err := c.post(ctx, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *ReservationClient) GetBooking(ctx context.Context, reservationID string) (*model.Reservation, error) {
	var r model.Reservation
	if err := c.get(ctx, "/api/v1/bookings/id/"+url.PathEscape(reservationID), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *ReservationClient) ListMyBookings(ctx context.Context) ([]*model.Reservation, error) {
	var list []*model.Reservation
	if err := c.get(ctx, "/api/v1/bookings/mine", &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *ReservationClient) ListAllBookings(ctx context.Context) ([]*model.Reservation, error) {
	var list []*model.Reservation
	if err := c.get(ctx, "/api/v1/bookings", &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *ReservationClient) ListTransactions(ctx context.Context) ([]*model.Transaction, error) {
	var list []*model.Transaction
	if err := c.get(ctx, "/api/v1/transactions/mine", &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *ReservationClient) get(ctx context.Context, path string, target any) error {
	resp, err := c.httpClient.GET(ctx, path)
	if err != nil {
		return err
	}
	return decodeData(resp, target)
}

func (c *ReservationClient) post(ctx context.Context, path string, body any, target any) error {
	resp, err := c.httpClient.POST(ctx, path, body)
	if err != nil {
		return err
	}
	return decodeData(resp, target)
}

func decodeData(resp *Response, target any) error {
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := resp.DecodeJSON(apiErr); err != nil {
			apiErr.Message = string(resp.Body)
		}
		return apiErr
	}

	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := resp.DecodeJSON(&wrapper); err != nil {
		return fmt.Errorf("could not decode response wrapper:\n%s\n%w", resp.ToString(), err)
	}
	if err := json.Unmarshal(wrapper.Data, target); err != nil {
		return fmt.Errorf("could not decode response data:\n%s\n%w", resp.ToString(), err)
	}
	return nil
}
