package middleware

import (
	"bytes"
	"context"
	"net/http"
	"slotkeeper/pkg/auth"
	apperrors "slotkeeper/pkg/errors"
	httputil "slotkeeper/pkg/http"
	"slotkeeper/pkg/logger"
	"sync"
	"time"
)

const IdempotencyHeader = "Idempotency-Key"

// IdempotencyStore remembers the response to a keyed request. Begin claims
// the key; a StatusCode of zero marks a request that is still running.
type IdempotencyStore interface {
	Begin(ctx context.Context, key string) (cached *CachedResponse, started bool, err error)
	Complete(ctx context.Context, key string, response *CachedResponse) error
	Abort(ctx context.Context, key string) error
	Stop()
}

type CachedResponse struct {
	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers"`
	Body       []byte      `json:"body"`
	CreatedAt  time.Time   `json:"created_at"`
}

func (c *CachedResponse) inFlight() bool {
	return c.StatusCode == 0
}

type InMemoryIdempotencyStore struct {
	mu       sync.Mutex
	store    map[string]*CachedResponse
	ttl      time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewInMemoryIdempotencyStore(ttl time.Duration) *InMemoryIdempotencyStore {
	store := &InMemoryIdempotencyStore{
		store:  make(map[string]*CachedResponse),
		ttl:    ttl,
		stopCh: make(chan struct{}),
	}

	go store.cleanup()

	return store
}

func (s *InMemoryIdempotencyStore) Begin(_ context.Context, key string) (*CachedResponse, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.store[key]; ok && time.Since(existing.CreatedAt) <= s.ttl {
		if existing.inFlight() {
			return nil, false, nil
		}
		return existing, false, nil
	}

	s.store[key] = &CachedResponse{CreatedAt: time.Now()}
	return nil, true, nil
}

func (s *InMemoryIdempotencyStore) Complete(_ context.Context, key string, response *CachedResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	response.CreatedAt = time.Now()
	s.store[key] = response
	return nil
}

func (s *InMemoryIdempotencyStore) Abort(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.store, key)
	return nil
}

func (s *InMemoryIdempotencyStore) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			for key, response := range s.store {
				if time.Since(response.CreatedAt) > s.ttl {
					delete(s.store, key)
				}
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

func (s *InMemoryIdempotencyStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (rc *responseCapture) WriteHeader(statusCode int) {
	rc.statusCode = statusCode
	rc.ResponseWriter.WriteHeader(statusCode)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

// Idempotency replays the first successful response for a repeated
// Idempotency-Key. Keys are scoped per subject, so it must run after Identity.
// Store failures fall through to the handler; the ledger still refuses a
// double booking.
func Idempotency(store IdempotencyStore, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headerKey := r.Header.Get(IdempotencyHeader)
			if headerKey == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			subject, _ := auth.FromContext(r.Context())
			key := scopedKey(subject.ID, r, headerKey)

			cached, started, err := store.Begin(r.Context(), key)
			if err != nil {
				log.Warn("Idempotency store unavailable, processing without replay protection",
					"request_id", RequestID(r.Context()),
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			if cached != nil {
				replayCachedResponse(w, cached)
				return
			}

			if !started {
				_ = httputil.WriteError(w, apperrors.RequestInProgress("A request with this Idempotency-Key is still in progress"))
				return
			}

			// The request context may already be done; finish bookkeeping anyway.
			ctx := context.WithoutCancel(r.Context())

			// A panicking handler must not leave the key claimed until it expires.
			defer func() {
				if rec := recover(); rec != nil {
					if err := store.Abort(ctx, key); err != nil {
						log.Warn("Failed to release idempotency key after panic", "request_id", RequestID(r.Context()), "error", err)
					}
					panic(rec)
				}
			}()

			capture := &responseCapture{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				body:           &bytes.Buffer{},
			}
			next.ServeHTTP(capture, r)

			if capture.statusCode >= 200 && capture.statusCode < 300 {
				err = store.Complete(ctx, key, &CachedResponse{
					StatusCode: capture.statusCode,
					Headers:    w.Header().Clone(),
					Body:       capture.body.Bytes(),
				})
			} else {
				err = store.Abort(ctx, key)
			}
			if err != nil {
				log.Warn("Failed to record idempotent response", "request_id", RequestID(r.Context()), "error", err)
			}
		})
	}
}

func scopedKey(subjectID string, r *http.Request, headerKey string) string {
	return "idem:" + subjectID + ":" + r.Method + ":" + r.URL.Path + ":" + headerKey
}

func replayCachedResponse(w http.ResponseWriter, cached *CachedResponse) {
	for key, values := range cached.Headers {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
}
