package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slotkeeper/pkg/auth"
	"slotkeeper/pkg/logger"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// expireBeforeGet deletes the key on the server right before the next GET,
// simulating a record that lapses between SETNX and GET.
type expireBeforeGet struct {
	mr    *miniredis.Miniredis
	armed atomic.Bool
}

func (h *expireBeforeGet) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *expireBeforeGet) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "get" && h.armed.CompareAndSwap(true, false) {
			if key, ok := cmd.Args()[1].(string); ok {
				h.mr.Del(key)
			}
		}
		return next(ctx, cmd)
	}
}

func (h *expireBeforeGet) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisIdempotencyStore, *miniredis.Miniredis, *expireBeforeGet) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hook := &expireBeforeGet{mr: mr}
	rdb.AddHook(hook)
	return NewRedisIdempotencyStore(rdb, ttl), mr, hook
}

func TestRedisIdempotencyStore(t *testing.T) {
	const key = "idem:alice:POST:/api/v1/bookings:k"
	ctx := context.Background()

	tests := []struct {
		name        string
		prepare     func(t *testing.T, s *RedisIdempotencyStore, mr *miniredis.Miniredis, hook *expireBeforeGet)
		wantStarted bool
		wantCached  int
		wantErr     bool
	}{
		{
			name:        "first begin claims the key",
			wantStarted: true,
		},
		{
			name: "repeat while running is in flight",
			prepare: func(t *testing.T, s *RedisIdempotencyStore, _ *miniredis.Miniredis, _ *expireBeforeGet) {
				mustBegin(t, s, key)
			},
		},
		{
			name: "completed response is replayed",
			prepare: func(t *testing.T, s *RedisIdempotencyStore, _ *miniredis.Miniredis, _ *expireBeforeGet) {
				mustBegin(t, s, key)
				resp := &CachedResponse{StatusCode: http.StatusCreated, Body: []byte(`{"ok":true}`)}
				if err := s.Complete(ctx, key, resp); err != nil {
					t.Fatalf("Complete: %v", err)
				}
			},
			wantCached: http.StatusCreated,
		},
		{
			name: "abort frees the key",
			prepare: func(t *testing.T, s *RedisIdempotencyStore, _ *miniredis.Miniredis, _ *expireBeforeGet) {
				mustBegin(t, s, key)
				if err := s.Abort(ctx, key); err != nil {
					t.Fatalf("Abort: %v", err)
				}
			},
			wantStarted: true,
		},
		{
			name: "record lapses after its ttl",
			prepare: func(t *testing.T, s *RedisIdempotencyStore, mr *miniredis.Miniredis, _ *expireBeforeGet) {
				mustBegin(t, s, key)
				mr.FastForward(2 * time.Minute)
			},
			wantStarted: true,
		},
		{
			name: "key expires between setnx and get",
			prepare: func(t *testing.T, s *RedisIdempotencyStore, _ *miniredis.Miniredis, hook *expireBeforeGet) {
				mustBegin(t, s, key)
				hook.armed.Store(true)
			},
		},
		{
			name: "corrupt record",
			prepare: func(t *testing.T, _ *RedisIdempotencyStore, mr *miniredis.Miniredis, _ *expireBeforeGet) {
				if err := mr.Set(key, "not json"); err != nil {
					t.Fatalf("seed: %v", err)
				}
			},
			wantErr: true,
		},
		{
			name: "server down",
			prepare: func(t *testing.T, _ *RedisIdempotencyStore, mr *miniredis.Miniredis, _ *expireBeforeGet) {
				mr.Close()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mr, hook := newRedisStore(t, time.Minute)
			if tt.prepare != nil {
				tt.prepare(t, s, mr, hook)
			}

			cached, started, err := s.Begin(ctx, key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if started != tt.wantStarted {
				t.Errorf("started = %v, want %v", started, tt.wantStarted)
			}
			switch {
			case tt.wantCached == 0 && cached != nil:
				t.Errorf("unexpected cached response %+v", cached)
			case tt.wantCached != 0 && (cached == nil || cached.StatusCode != tt.wantCached):
				t.Errorf("cached = %+v, want status %d", cached, tt.wantCached)
			}
			if started {
				if ttl := mr.TTL(key); ttl <= 0 || ttl > time.Minute {
					t.Errorf("claimed key ttl = %s", ttl)
				}
			}
		})
	}
}

func TestIdempotency_RedisStore(t *testing.T) {
	s, _, _ := newRedisStore(t, time.Hour)

	var calls int32
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	h := Idempotency(s, logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			entered <- struct{}{}
			<-release
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"r-1"}`))
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", nil)
		req.Header.Set(IdempotencyHeader, "k")
		req = req.WithContext(auth.WithSubject(req.Context(), auth.Subject{ID: "alice"}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() { first <- send() }()
	<-entered

	dup := send()
	if dup.Code != http.StatusConflict {
		t.Fatalf("duplicate while running: status = %d, want 409", dup.Code)
	}
	if code := decodeCode(t, dup); code != "REQUEST_IN_PROGRESS" {
		t.Errorf("code = %s, want REQUEST_IN_PROGRESS", code)
	}

	close(release)
	if rec := <-first; rec.Code != http.StatusCreated {
		t.Fatalf("first status = %d", rec.Code)
	}

	replay := send()
	if replay.Code != http.StatusCreated || replay.Body.String() != `{"id":"r-1"}` {
		t.Errorf("replay = %d %q", replay.Code, replay.Body.String())
	}
	if replay.Header().Get("Idempotent-Replayed") != "true" {
		t.Error("replayed response should be marked")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("handler calls = %d, want 1", got)
	}
}

func mustBegin(t *testing.T, s *RedisIdempotencyStore, key string) {
	t.Helper()
	if _, started, err := s.Begin(context.Background(), key); err != nil || !started {
		t.Fatalf("Begin: started=%v err=%v", started, err)
	}
}
