package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	body, err := Fetch(context.Background(), NewRestyClient(time.Second), server.URL, nil, Policy{
		Timeout:    time.Second,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if string(body) != "ok" {
		t.Fatalf("body = %q, want ok", body)
	}
	if hits.Load() != 3 {
		t.Fatalf("hits = %d, want 3", hits.Load())
	}
}

func TestFetchSurfacesLastErrorWhenBudgetExhausted(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	_, err := Fetch(context.Background(), NewRestyClient(time.Second), server.URL, nil, Policy{
		Timeout:    time.Second,
		MaxRetries: 1,
	})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.StatusCode != http.StatusInternalServerError || fe.Attempt != 2 || fe.RateLimited {
		t.Fatalf("unexpected error fields: %+v", fe)
	}
	if hits.Load() != 2 {
		t.Fatalf("hits = %d, want 2", hits.Load())
	}
}

func TestFetchStopsOnRateLimit(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := Fetch(context.Background(), NewRestyClient(time.Second), server.URL, nil, Policy{
		Timeout:    time.Second,
		MaxRetries: 5,
	})
	if !IsRateLimited(err) {
		t.Fatalf("expected rate limited error, got %v", err)
	}
	var fe *FetchError
	errors.As(err, &fe)
	if fe.RetryAfter != 3*time.Second {
		t.Fatalf("RetryAfter = %v, want 3s", fe.RetryAfter)
	}
	if hits.Load() != 1 {
		t.Fatalf("hits = %d, want 1", hits.Load())
	}
}

func TestFetchTimeoutCountsAgainstBudget(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	_, err := Fetch(context.Background(), NewRestyClient(5*time.Second), server.URL, nil, Policy{
		Timeout:    30 * time.Millisecond,
		MaxRetries: 1,
	})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if IsRateLimited(err) {
		t.Fatalf("timeout must not be reported as rate limit")
	}
	if hits.Load() != 2 {
		t.Fatalf("hits = %d, want 2", hits.Load())
	}
}

func TestSnippet(t *testing.T) {
	t.Parallel()

	if got := Snippet([]byte("   ")); got != "<empty>" {
		t.Fatalf("Snippet(blank) = %q", got)
	}
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'a'
	}
	if got := Snippet(long); len(got) != 515 {
		t.Fatalf("Snippet(long) length = %d, want 515", len(got))
	}
}
