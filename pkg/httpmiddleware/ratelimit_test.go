package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, mutate func(r *http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for i := range 2 {
		w := serve(h, nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := serve(h, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var kind string
	var code int
	err := jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "error":
			v, err := d.Str()
			kind = v
			return err
		case "code":
			v, err := d.Int()
			code = v
			return err
		default:
			return d.Skip()
		}
	})
	require.NoError(t, err)
	assert.Equal(t, "RateLimited", kind)
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestRateLimit_Keys(t *testing.T) {
	tests := []struct {
		name    string
		keyFunc func(*http.Request) string
		first   func(r *http.Request)
		second  func(r *http.Request)
		want    int
	}{
		{
			name:   "different remote addresses",
			first:  func(r *http.Request) { r.RemoteAddr = "10.0.0.1:1" },
			second: func(r *http.Request) { r.RemoteAddr = "10.0.0.2:1" },
			want:   http.StatusOK,
		},
		{
			name:   "same address other port",
			first:  func(r *http.Request) { r.RemoteAddr = "10.0.0.1:1" },
			second: func(r *http.Request) { r.RemoteAddr = "10.0.0.1:2" },
			want:   http.StatusTooManyRequests,
		},
		{
			name: "first forwarded hop",
			first: func(r *http.Request) {
				r.RemoteAddr = "192.168.1.1:1"
				r.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")
			},
			second: func(r *http.Request) {
				r.RemoteAddr = "192.168.1.2:1"
				r.Header.Set("X-Forwarded-For", "203.0.113.50")
			},
			want: http.StatusTooManyRequests,
		},
		{
			name:    "api keys behind one address",
			keyFunc: APIKeyOrIP("api_key"),
			first:   func(r *http.Request) { r.Header.Set("api_key", "key-a") },
			second:  func(r *http.Request) { r.Header.Set("api_key", "key-b") },
			want:    http.StatusOK,
		},
		{
			name:    "same api key",
			keyFunc: APIKeyOrIP("api_key"),
			first:   func(r *http.Request) { r.Header.Set("api_key", "key-a") },
			second: func(r *http.Request) {
				r.RemoteAddr = "10.9.9.9:1"
				r.Header.Set("api_key", "key-a")
			},
			want: http.StatusTooManyRequests,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute, KeyFunc: tt.keyFunc})(okHandler())
			require.Equal(t, http.StatusOK, serve(h, tt.first).Code)
			assert.Equal(t, tt.want, serve(h, tt.second).Code)
		})
	}
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 4, Window: time.Minute})
	start := time.Date(2024, 5, 17, 10, 0, 0, 0, time.UTC)

	for range 4 {
		_, _, ok := l.take("k", start)
		require.True(t, ok)
	}
	_, _, ok := l.take("k", start.Add(30*time.Second))
	assert.False(t, ok, "window still full")

	// Half of the previous window still counts: 4*0.5 = 2 of 4 used.
	next := start.Add(90 * time.Second)
	_, _, ok = l.take("k", next)
	assert.True(t, ok)
	_, _, ok = l.take("k", next)
	assert.True(t, ok)
	_, _, ok = l.take("k", next)
	assert.False(t, ok)

	// Two windows later the history is gone.
	remaining, _, ok := l.take("k", start.Add(5*time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 3, remaining)
}

func TestLimiter_Evict(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	now := time.Date(2024, 5, 17, 10, 0, 0, 0, time.UTC)
	l.take("old", now)
	l.take("fresh", now.Add(2*time.Minute))

	l.evict(now.Add(2*time.Minute + time.Second))
	assert.NotContains(t, l.keys, "old")
	assert.Contains(t, l.keys, "fresh")
}
