package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adda-Baaj/taja-feed/internal/domain"
	"github.com/Adda-Baaj/taja-feed/internal/logger"
	"github.com/Adda-Baaj/taja-feed/internal/memo"
	"github.com/Adda-Baaj/taja-feed/pkg/httpclient"
	"github.com/Adda-Baaj/taja-feed/pkg/providers"
)

type fakeResponse struct {
	status int
	body   []byte
	header http.Header
}

func (r fakeResponse) StatusCode() int     { return r.status }
func (r fakeResponse) Body() []byte        { return r.body }
func (r fakeResponse) Header() http.Header { return r.header }

// scriptedClient replays responses per URL in order, repeating the last one.
type scriptedClient struct {
	mu      sync.Mutex
	scripts map[string][]fakeResponse
	calls   map[string]int
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{scripts: map[string][]fakeResponse{}, calls: map[string]int{}}
}

func (c *scriptedClient) on(url string, responses ...fakeResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[url] = responses
}

func (c *scriptedClient) Get(_ context.Context, url string, _ map[string]string) (httpclient.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	script, ok := c.scripts[url]
	if !ok || len(script) == 0 {
		return fakeResponse{status: http.StatusNotFound}, nil
	}
	n := c.calls[url]
	c.calls[url] = n + 1
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n], nil
}

func (c *scriptedClient) count(url string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[url]
}

// stubFetcher fetches each stub link through the getter and uses the body
// as the description.
type stubFetcher struct {
	profile providers.Profile
	stubs   []domain.ItemStub
	listErr error
	detail  func(ctx context.Context, stub domain.ItemStub, get providers.DetailGetter) (domain.EnrichedItem, error)
	details atomic.Int32
}

func (f *stubFetcher) ID() string                 { return "stub" }
func (f *stubFetcher) Profile() providers.Profile { return f.profile }
func (f *stubFetcher) Fetch(context.Context, providers.Provider) ([]domain.ItemStub, error) {
	return f.stubs, f.listErr
}

func (f *stubFetcher) Detail(ctx context.Context, _ providers.Provider, stub domain.ItemStub, get providers.DetailGetter) (domain.EnrichedItem, error) {
	f.details.Add(1)
	if f.detail != nil {
		return f.detail(ctx, stub, get)
	}
	body, err := get(ctx, stub.Link, nil)
	if err != nil {
		return domain.EnrichedItem{}, err
	}
	return domain.EnrichedItem{ItemStub: stub, Description: string(body)}, nil
}

func makeStubs(n int) []domain.ItemStub {
	stubs := make([]domain.ItemStub, n)
	for i := range stubs {
		stubs[i] = domain.ItemStub{
			ID:          fmt.Sprint(i),
			Title:       fmt.Sprintf("item %d", i),
			Link:        fmt.Sprintf("https://example.com/%d", i),
			PublishedAt: time.Date(2024, 1, 1, 0, i, 0, 0, time.UTC),
		}
	}
	return stubs
}

func newTestEnricher(client httpclient.Client) (*Enricher, *[]time.Duration) {
	var mu sync.Mutex
	var sleeps []time.Duration
	e := NewEnricher(client, memo.New[domain.EnrichedItem](time.Minute), logger.NopLogger{})
	e.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()
		return ctx.Err()
	}
	return e, &sleeps
}

func TestEnrichPreservesOrder(t *testing.T) {
	t.Parallel()

	for _, mode := range []providers.Mode{providers.ModeParallel, providers.ModeSerial} {
		mode := mode
		t.Run(string(mode), func(t *testing.T) {
			t.Parallel()

			stubs := makeStubs(20)
			f := &stubFetcher{
				profile: providers.Profile{Mode: mode, Workers: 4},
				detail: func(_ context.Context, stub domain.ItemStub, _ providers.DetailGetter) (domain.EnrichedItem, error) {
					// Later items finish first.
					var n int
					fmt.Sscan(stub.ID, &n)
					time.Sleep(time.Duration(20-n) * time.Millisecond)
					return domain.EnrichedItem{ItemStub: stub, Description: "body " + stub.ID}, nil
				},
			}
			e, _ := newTestEnricher(newScriptedClient())

			out := e.Enrich(context.Background(), f, providers.Provider{ID: "stub"}, stubs)
			if len(out) != len(stubs) {
				t.Fatalf("expected %d items, got %d", len(stubs), len(out))
			}
			for i := range out {
				if out[i].Link != stubs[i].Link {
					t.Fatalf("item %d link = %s, want %s", i, out[i].Link, stubs[i].Link)
				}
				if out[i].Degraded || out[i].Description != "body "+stubs[i].ID {
					t.Fatalf("item %d not enriched: %+v", i, out[i])
				}
			}
		})
	}
}

func TestEnrichDegradesOnlyFailingItem(t *testing.T) {
	t.Parallel()

	for _, mode := range []providers.Mode{providers.ModeParallel, providers.ModeSerial} {
		mode := mode
		t.Run(string(mode), func(t *testing.T) {
			t.Parallel()

			stubs := makeStubs(5)
			client := newScriptedClient()
			for i, s := range stubs {
				if i == 2 {
					client.on(s.Link, fakeResponse{status: http.StatusInternalServerError})
					continue
				}
				client.on(s.Link, fakeResponse{status: http.StatusOK, body: []byte("ok " + s.ID)})
			}
			f := &stubFetcher{profile: providers.Profile{
				Mode:     mode,
				Policy:   httpclient.Policy{MaxRetries: 1},
				Fallback: "unavailable: {title}",
			}}
			e, _ := newTestEnricher(client)

			out := e.Enrich(context.Background(), f, providers.Provider{ID: "stub"}, stubs)
			if len(out) != 5 {
				t.Fatalf("expected 5 items, got %d", len(out))
			}
			degraded := 0
			for i, item := range out {
				if !item.Degraded {
					continue
				}
				degraded++
				if i != 2 {
					t.Fatalf("unexpected degraded item %d", i)
				}
				if item.Description != "unavailable: item 2" {
					t.Fatalf("fallback = %q", item.Description)
				}
				if item.Title != stubs[2].Title || item.Link != stubs[2].Link || !item.PublishedAt.Equal(stubs[2].PublishedAt) {
					t.Fatalf("stub fields not preserved: %+v", item)
				}
			}
			if degraded != 1 {
				t.Fatalf("expected exactly 1 degraded item, got %d", degraded)
			}
			if got := client.count(stubs[2].Link); got != 2 {
				t.Fatalf("failing item attempts = %d, want 2", got)
			}
		})
	}
}

func TestSerialEscalatesOnceOnRateLimit(t *testing.T) {
	t.Parallel()

	stubs := makeStubs(1)
	client := newScriptedClient()
	client.on(stubs[0].Link,
		fakeResponse{status: http.StatusTooManyRequests},
		fakeResponse{status: http.StatusOK, body: []byte("detail")},
	)
	f := &stubFetcher{profile: providers.Profile{
		Mode:            providers.ModeSerial,
		RequestDelay:    500 * time.Millisecond,
		RateLimitDelay:  2 * time.Second,
		Policy:          httpclient.Policy{Timeout: time.Second, MaxRetries: 2},
		EscalatedPolicy: httpclient.Policy{Timeout: 3 * time.Second, MaxRetries: 1},
	}}
	e, sleeps := newTestEnricher(client)

	out := e.Enrich(context.Background(), f, providers.Provider{ID: "stub"}, stubs)
	if out[0].Degraded || out[0].Description != "detail" {
		t.Fatalf("expected enriched item, got %+v", out[0])
	}
	if got := client.count(stubs[0].Link); got != 2 {
		t.Fatalf("requests = %d, want 2", got)
	}
	want := []time.Duration{500 * time.Millisecond, 2 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", *sleeps, want)
	}
	for i := range want {
		if (*sleeps)[i] != want[i] {
			t.Fatalf("sleeps = %v, want %v", *sleeps, want)
		}
	}
}

func TestSerialEscalationHonoursRetryAfter(t *testing.T) {
	t.Parallel()

	stubs := makeStubs(1)
	client := newScriptedClient()
	client.on(stubs[0].Link,
		fakeResponse{status: http.StatusTooManyRequests, header: http.Header{"Retry-After": []string{"5"}}},
		fakeResponse{status: http.StatusTooManyRequests},
	)
	f := &stubFetcher{profile: providers.Profile{
		Mode:           providers.ModeSerial,
		RateLimitDelay: 2 * time.Second,
		Fallback:       "rate limited",
	}}
	e, sleeps := newTestEnricher(client)

	out := e.Enrich(context.Background(), f, providers.Provider{ID: "stub"}, stubs)
	if !out[0].Degraded || out[0].Description != "rate limited" {
		t.Fatalf("expected degraded item, got %+v", out[0])
	}
	if got := client.count(stubs[0].Link); got != 2 {
		t.Fatalf("requests = %d, want 2 (one escalation only)", got)
	}
	if last := (*sleeps)[len(*sleeps)-1]; last != 5*time.Second {
		t.Fatalf("cooldown = %v, want 5s", last)
	}
}

func TestParallelDoesNotEscalate(t *testing.T) {
	t.Parallel()

	stubs := makeStubs(1)
	client := newScriptedClient()
	client.on(stubs[0].Link,
		fakeResponse{status: http.StatusTooManyRequests},
		fakeResponse{status: http.StatusOK, body: []byte("detail")},
	)
	f := &stubFetcher{profile: providers.Profile{Mode: providers.ModeParallel, RateLimitDelay: time.Second}}
	e, _ := newTestEnricher(client)

	out := e.Enrich(context.Background(), f, providers.Provider{ID: "stub"}, stubs)
	if !out[0].Degraded {
		t.Fatalf("expected degraded item, got %+v", out[0])
	}
	if got := client.count(stubs[0].Link); got != 1 {
		t.Fatalf("requests = %d, want 1", got)
	}
}

func TestEnrichSharesCacheAcrossDuplicateLinks(t *testing.T) {
	t.Parallel()

	stubs := makeStubs(3)
	stubs[1].Link = stubs[0].Link
	stubs[2].Link = stubs[0].Link
	client := newScriptedClient()
	client.on(stubs[0].Link, fakeResponse{status: http.StatusOK, body: []byte("shared")})
	f := &stubFetcher{profile: providers.Profile{Mode: providers.ModeParallel}}
	e, _ := newTestEnricher(client)

	out := e.Enrich(context.Background(), f, providers.Provider{ID: "stub"}, stubs)
	for i, item := range out {
		if item.Description != "shared" {
			t.Fatalf("item %d description = %q", i, item.Description)
		}
	}
	if got := f.details.Load(); got != 1 {
		t.Fatalf("detail calls = %d, want 1", got)
	}

	// A second run is served from the cache.
	e.Enrich(context.Background(), f, providers.Provider{ID: "stub"}, stubs)
	if got := client.count(stubs[0].Link); got != 1 {
		t.Fatalf("requests = %d, want 1", got)
	}
}

func TestEnrichDoesNotCacheFailures(t *testing.T) {
	t.Parallel()

	stubs := makeStubs(1)
	calls := 0
	f := &stubFetcher{
		profile: providers.Profile{Mode: providers.ModeSerial},
		detail: func(_ context.Context, stub domain.ItemStub, _ providers.DetailGetter) (domain.EnrichedItem, error) {
			calls++
			if calls == 1 {
				return domain.EnrichedItem{}, fmt.Errorf("shape: %w", providers.ErrParse)
			}
			return domain.EnrichedItem{ItemStub: stub, Description: "second try"}, nil
		},
	}
	e, _ := newTestEnricher(newScriptedClient())

	first := e.Enrich(context.Background(), f, providers.Provider{ID: "stub"}, stubs)
	second := e.Enrich(context.Background(), f, providers.Provider{ID: "stub"}, stubs)
	if !first[0].Degraded {
		t.Fatalf("expected first run degraded")
	}
	if second[0].Degraded || second[0].Description != "second try" {
		t.Fatalf("expected second run enriched, got %+v", second[0])
	}
}

func TestEnrichEmptyDescriptionDegrades(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{
		profile: providers.Profile{},
		detail: func(_ context.Context, stub domain.ItemStub, _ providers.DetailGetter) (domain.EnrichedItem, error) {
			return domain.EnrichedItem{ItemStub: stub, Description: "   "}, nil
		},
	}
	e, _ := newTestEnricher(newScriptedClient())

	out := e.Enrich(context.Background(), f, providers.Provider{ID: "stub"}, makeStubs(1))
	if !out[0].Degraded || out[0].Description != "Details could not be retrieved." {
		t.Fatalf("expected default fallback, got %+v", out[0])
	}
}

func TestEnrichCancelledKeepsLength(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, mode := range []providers.Mode{providers.ModeParallel, providers.ModeSerial} {
		f := &stubFetcher{profile: providers.Profile{Mode: mode}}
		e, _ := newTestEnricher(newScriptedClient())

		out := e.Enrich(ctx, f, providers.Provider{ID: "stub"}, makeStubs(4))
		if len(out) != 4 {
			t.Fatalf("%s: expected 4 items, got %d", mode, len(out))
		}
		for i, item := range out {
			if !item.Degraded || item.Link == "" {
				t.Fatalf("%s: item %d = %+v", mode, i, item)
			}
		}
	}
}

func TestPipelineRun(t *testing.T) {
	t.Parallel()

	client := newScriptedClient()
	stubs := makeStubs(2)
	for _, s := range stubs {
		client.on(s.Link, fakeResponse{status: http.StatusOK, body: []byte("ok")})
	}
	good := &stubFetcher{profile: providers.Profile{Title: "Stub feed", Link: "https://example.com"}, stubs: stubs}
	bad := &namedFetcher{stubFetcher: &stubFetcher{listErr: errors.New("boom")}, id: "broken"}

	e, _ := newTestEnricher(client)
	p := NewPipeline(nil, providers.NewFetcherRegistry(good, bad), e, logger.NopLogger{})

	feed, err := p.Run(context.Background(), "STUB", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if feed.Meta.Title != "Stub feed" || len(feed.Items) != 2 || feed.SourceID != "stub" {
		t.Fatalf("unexpected feed: %+v", feed)
	}

	_, err = p.Run(context.Background(), "broken", nil)
	var le *ListingError
	if !errors.As(err, &le) || le.SourceID != "broken" {
		t.Fatalf("expected ListingError, got %v", err)
	}

	if _, err := p.Run(context.Background(), "missing", nil); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("expected ErrUnknownSource, got %v", err)
	}

	if ids := p.Sources(); len(ids) != 2 || ids[0] != "broken" || ids[1] != "stub" {
		t.Fatalf("sources = %v", ids)
	}
}

func TestPipelineResolveUsesConfiguredSources(t *testing.T) {
	t.Parallel()

	off := false
	reg, err := providers.NewConfigRegistry(
		providers.Provider{ID: "stub", Params: map[string]string{"limit": "5", "speed": "1"}},
		providers.Provider{ID: "hidden", Type: "stub", Enabled: &off},
	)
	if err != nil {
		t.Fatalf("NewConfigRegistry: %v", err)
	}
	p := NewPipeline(reg, providers.NewFetcherRegistry(&stubFetcher{}), nil, nil)

	cfg, err := p.Resolve("stub", map[string]string{"limit": "2", "speed": ""})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Param("limit", "") != "2" || cfg.Param("speed", "") != "1" {
		t.Fatalf("params = %v", cfg.Params)
	}
	if _, err := p.Resolve("hidden", nil); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("expected disabled source to be rejected, got %v", err)
	}
	if ids := p.Sources(); len(ids) != 1 || ids[0] != "stub" {
		t.Fatalf("sources = %v", ids)
	}
}

type namedFetcher struct {
	*stubFetcher
	id string
}

func (f *namedFetcher) ID() string { return f.id }
