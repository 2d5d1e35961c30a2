package sentiment

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		value float64
		want  string
	}{
		{5, ExtremeFear},
		{20, ExtremeFear},
		{35, Fear},
		{50, Neutral},
		{75, Greed},
		{95, ExtremeGreed},
	}
	for _, c := range cases {
		if got := Classify(c.value); got != c.want {
			t.Fatalf("Classify(%.0f) = %s, want %s", c.value, got, c.want)
		}
	}
}

func TestCurrentFetchesAndCaches(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.Write([]byte(`{"data":[{"value":"18","value_classification":"Extreme Fear"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Minute, zerolog.Nop())

	reading := client.Current()
	if reading == nil {
		t.Fatalf("expected reading")
	}
	if reading.Value != 18 || reading.Classification != ExtremeFear {
		t.Fatalf("unexpected reading: %+v", reading)
	}

	// Second call inside the TTL must be served from cache.
	if client.Current() == nil {
		t.Fatalf("expected cached reading")
	}
	if atomic.LoadInt64(&calls) != 1 {
		t.Fatalf("expected a single upstream call, got %d", calls)
	}
}

func TestCurrentFallsBackToStale(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"data":[{"value":"72","value_classification":"Greed"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Millisecond, zerolog.Nop())
	first := client.Current()
	if first == nil || first.Value != 72 {
		t.Fatalf("unexpected first reading: %+v", first)
	}

	fail.Store(true)
	time.Sleep(5 * time.Millisecond)
	stale := client.Current()
	if stale == nil || stale.Value != 72 {
		t.Fatalf("expected stale fallback, got %+v", stale)
	}
}

func TestCurrentBacksOffDuringOutage(t *testing.T) {
	var calls int64
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"data":[{"value":"72","value_classification":"Greed"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Minute, zerolog.Nop())
	base := time.Now()
	client.now = func() time.Time { return base }

	if first := client.Current(); first == nil || first.Value != 72 {
		t.Fatalf("unexpected first reading: %+v", first)
	}

	// Cache goes stale while the endpoint is down. Only the first stale call
	// may hit upstream; the rest must be served from the stale cache without
	// blocking on HTTP.
	fail.Store(true)
	client.now = func() time.Time { return base.Add(2 * time.Minute) }
	for i := 0; i < 5; i++ {
		if got := client.Current(); got == nil || got.Value != 72 {
			t.Fatalf("call %d: expected stale fallback, got %+v", i, got)
		}
	}
	if n := atomic.LoadInt64(&calls); n != 2 {
		t.Fatalf("upstream calls = %d, want 2 (initial fetch + one retry)", n)
	}
}

func TestCurrentRetriesAfterBackoff(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Minute, zerolog.Nop())
	base := time.Now()
	client.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		if got := client.Current(); got != nil {
			t.Fatalf("expected nil reading, got %+v", got)
		}
	}
	if n := atomic.LoadInt64(&calls); n != 1 {
		t.Fatalf("upstream calls = %d, want 1 inside the backoff window", n)
	}

	client.now = func() time.Time { return base.Add(attemptBackoff + time.Second) }
	client.Current()
	if n := atomic.LoadInt64(&calls); n != 2 {
		t.Fatalf("upstream calls = %d, want a second attempt after backoff", n)
	}
}

func TestCurrentNilWhenNeverFetched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Minute, zerolog.Nop())
	if reading := client.Current(); reading != nil {
		t.Fatalf("expected nil reading, got %+v", reading)
	}
}
