package crawler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Adda-Baaj/taja-feed/internal/domain"
	"github.com/Adda-Baaj/taja-feed/internal/logger"
	"github.com/Adda-Baaj/taja-feed/internal/memo"
	"github.com/Adda-Baaj/taja-feed/pkg/httpclient"
	"github.com/Adda-Baaj/taja-feed/pkg/providers"
)

// Cache is the memoizing cache shared by every enrichment in the process.
// *memo.Cache[domain.EnrichedItem] satisfies it.
type Cache interface {
	TryGet(ctx context.Context, key string, producer memo.Producer[domain.EnrichedItem]) (domain.EnrichedItem, error)
}

var errEmptyDescription = errors.New("detail produced an empty description")

// Enricher turns listing stubs into enriched items through the cache,
// following each source's enrichment profile.
type Enricher struct {
	client httpclient.Client
	cache  Cache
	log    logger.Logger
	sleep  func(context.Context, time.Duration) error
}

// NewEnricher creates an Enricher. A nil cache gets a process-lifetime
// in-memory cache.
func NewEnricher(client httpclient.Client, cache Cache, log logger.Logger) *Enricher {
	if client == nil {
		client = providers.DefaultHTTPClient()
	}
	log = logger.Ensure(log)
	if cache == nil {
		cache = memo.New[domain.EnrichedItem](0, memo.WithLogger(log))
	}
	return &Enricher{client: client, cache: cache, log: log, sleep: httpclient.Sleep}
}

// Enrich returns one item per stub in input order. Items whose detail could
// not be produced are degraded to the profile's fallback text; Enrich itself
// never fails.
func (e *Enricher) Enrich(ctx context.Context, f providers.Fetcher, cfg providers.Provider, stubs []domain.ItemStub) []domain.EnrichedItem {
	out := make([]domain.EnrichedItem, len(stubs))
	if len(stubs) == 0 {
		return out
	}
	profile := cfg.Resolve(f.Profile())

	if profile.Mode == providers.ModeSerial {
		e.enrichSerial(ctx, f, cfg, profile, stubs, out)
	} else {
		e.enrichParallel(ctx, f, cfg, profile, stubs, out)
	}

	degraded := 0
	for i := range out {
		// Slots left empty by cancellation still get a fallback.
		if out[i].Description == "" {
			out[i] = domain.Degrade(stubs[i], profile.FallbackFor(stubs[i]))
		}
		if out[i].Degraded {
			degraded++
		}
	}
	e.log.InfoObj("enrichment finished", "enrich_done", map[string]any{
		"provider_id": cfg.ID,
		"mode":        string(profile.Mode),
		"items":       len(out),
		"degraded":    degraded,
	})
	return out
}

// enrichSerial handles one stub at a time in input order: the request delay
// and rate limit escalation happen inside the getter, so cache hits and
// sources without a detail fetch go straight through.
func (e *Enricher) enrichSerial(ctx context.Context, f providers.Fetcher, cfg providers.Provider, profile providers.Profile, stubs []domain.ItemStub, out []domain.EnrichedItem) {
	get := e.getter(cfg, profile, nil, true)
	for idx, stub := range stubs {
		if ctx.Err() != nil {
			return
		}
		out[idx] = e.enrichOne(ctx, f, cfg, profile, stub, get, 0)
	}
}

// enrichParallel fans stubs out to a worker pool; a ticker spaces detail
// requests when the profile sets a request delay.
func (e *Enricher) enrichParallel(ctx context.Context, f providers.Fetcher, cfg providers.Provider, profile providers.Profile, stubs []domain.ItemStub, out []domain.EnrichedItem) {
	workerCount := len(stubs)
	if profile.Workers > 0 {
		workerCount = min(workerCount, profile.Workers)
	}

	var limiter <-chan time.Time
	if profile.RequestDelay > 0 {
		ticker := time.NewTicker(profile.RequestDelay)
		defer ticker.Stop()
		limiter = ticker.C
	}
	get := e.getter(cfg, profile, limiter, false)

	jobCh := make(chan int)
	var wg sync.WaitGroup

	for workerID := 0; workerID < workerCount; workerID++ {
		workerID := workerID
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobCh {
				out[idx] = e.enrichOne(ctx, f, cfg, profile, stubs[idx], get, workerID)
			}
		}()
	}

feed:
	for idx := range stubs {
		select {
		case <-ctx.Done():
			break feed
		case jobCh <- idx:
		}
	}
	close(jobCh)

	wg.Wait()
}

// enrichOne runs a single stub through the cache. Every error is absorbed
// here and turned into a degraded item.
func (e *Enricher) enrichOne(ctx context.Context, f providers.Fetcher, cfg providers.Provider, profile providers.Profile, stub domain.ItemStub, get providers.DetailGetter, workerID int) domain.EnrichedItem {
	key := cacheKey(f, cfg, stub)
	item, err := e.cache.TryGet(ctx, key, func(ctx context.Context) (domain.EnrichedItem, error) {
		item, err := f.Detail(ctx, cfg, stub, get)
		if err != nil {
			return domain.EnrichedItem{}, err
		}
		if strings.TrimSpace(item.Description) == "" {
			return domain.EnrichedItem{}, errEmptyDescription
		}
		return item, nil
	})
	if err == nil {
		return item
	}

	e.log.WarnObj("item enrichment degraded", "enrich_degraded", map[string]any{
		"worker_id":    workerID,
		"provider_id":  cfg.ID,
		"url":          stub.Link,
		"rate_limited": httpclient.IsRateLimited(err),
		"error":        err.Error(),
	})
	return domain.Degrade(stub, profile.FallbackFor(stub))
}

// getter builds the DetailGetter handed to the source. Escalation retries a
// rate limited fetch once, after the longer of the profile cooldown and the
// upstream Retry-After, under the escalated policy.
func (e *Enricher) getter(cfg providers.Provider, profile providers.Profile, limiter <-chan time.Time, escalate bool) providers.DetailGetter {
	escalated := profile.EscalatedPolicy
	if escalated.Timeout == 0 {
		escalated.Timeout = profile.Policy.Timeout
	}

	return func(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
		if limiter != nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-limiter:
			}
		} else if err := e.sleep(ctx, profile.RequestDelay); err != nil {
			return nil, err
		}

		body, err := httpclient.Fetch(ctx, e.client, url, headers, profile.Policy)
		if err == nil || !escalate || !httpclient.IsRateLimited(err) {
			return body, err
		}

		wait := profile.RateLimitDelay
		var fe *httpclient.FetchError
		if errors.As(err, &fe) && fe.RetryAfter > wait {
			wait = fe.RetryAfter
		}
		e.log.WarnObj("rate limited, escalating", "rate_limited", map[string]any{
			"provider_id": cfg.ID,
			"url":         url,
			"cooldown_ms": wait.Milliseconds(),
			"timeout_ms":  escalated.Timeout.Milliseconds(),
		})
		if err := e.sleep(ctx, wait); err != nil {
			return nil, err
		}
		return httpclient.Fetch(ctx, e.client, url, headers, escalated)
	}
}

func cacheKey(f providers.Fetcher, cfg providers.Provider, stub domain.ItemStub) string {
	if k, ok := f.(providers.CacheKeyer); ok {
		return k.CacheKey(cfg, stub)
	}
	return stub.Link
}
