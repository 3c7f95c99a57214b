package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Adda-Baaj/taja-feed/internal/domain"
	"github.com/Adda-Baaj/taja-feed/internal/logger"
	"github.com/Adda-Baaj/taja-feed/pkg/providers"
)

// ErrUnknownSource is returned for ids that are neither configured nor
// registered.
var ErrUnknownSource = errors.New("unknown source")

// ListingError wraps a failure to fetch or parse a source listing. It is the
// only failure that aborts a run.
type ListingError struct {
	SourceID string
	Err      error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("source %s listing: %v", e.SourceID, e.Err)
}

func (e *ListingError) Unwrap() error { return e.Err }

// SourceLookup resolves configured sources. *providers.ConfigRegistry
// satisfies it.
type SourceLookup interface {
	ByID(id string) (providers.Provider, bool)
	Enabled() []providers.Provider
}

// Pipeline runs listing, enrichment and feed assembly for a source.
type Pipeline struct {
	sources  SourceLookup
	fetchers providers.FetcherRegistry
	enricher *Enricher
	log      logger.Logger
	now      func() time.Time
}

// NewPipeline wires a pipeline. sources may be nil, in which case every
// registered fetcher is runnable with its default profile.
func NewPipeline(sources SourceLookup, fetchers providers.FetcherRegistry, enricher *Enricher, log logger.Logger) *Pipeline {
	log = logger.Ensure(log)
	if fetchers == nil {
		fetchers = providers.DefaultFetcherRegistry(nil)
	}
	if enricher == nil {
		enricher = NewEnricher(nil, nil, log)
	}
	return &Pipeline{sources: sources, fetchers: fetchers, enricher: enricher, log: log, now: time.Now}
}

// Sources lists the runnable source ids.
func (p *Pipeline) Sources() []string {
	if p.sources == nil {
		return p.fetchers.IDs()
	}
	enabled := p.sources.Enabled()
	ids := make([]string, 0, len(enabled))
	for _, cfg := range enabled {
		ids = append(ids, cfg.ID)
	}
	return ids
}

// Resolve returns the provider config for id with params overridden.
func (p *Pipeline) Resolve(id string, overrides map[string]string) (providers.Provider, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	cfg, ok := providers.Provider{}, false
	if p.sources != nil {
		cfg, ok = p.sources.ByID(id)
	}
	if ok && !cfg.EnabledValue() {
		return providers.Provider{}, fmt.Errorf("source %q is disabled: %w", id, ErrUnknownSource)
	}
	if !ok {
		cfg = providers.Provider{ID: id}
		if _, err := p.fetchers.FetcherFor(cfg); err != nil {
			return providers.Provider{}, fmt.Errorf("source %q: %w", id, ErrUnknownSource)
		}
	}
	return cfg.WithParams(overrides), nil
}

// Run resolves id and runs it.
func (p *Pipeline) Run(ctx context.Context, id string, overrides map[string]string) (domain.Feed, error) {
	cfg, err := p.Resolve(id, overrides)
	if err != nil {
		return domain.Feed{}, err
	}
	return p.RunSource(ctx, cfg)
}

// RunSource fetches the listing for cfg, enriches every stub and assembles
// the feed.
func (p *Pipeline) RunSource(ctx context.Context, cfg providers.Provider) (domain.Feed, error) {
	f, err := p.fetchers.FetcherFor(cfg)
	if err != nil {
		return domain.Feed{}, fmt.Errorf("source %q: %w", cfg.ID, ErrUnknownSource)
	}

	start := p.now()
	stubs, err := f.Fetch(ctx, cfg)
	if err != nil {
		p.log.ErrorObj("listing fetch failed", "listing_error", map[string]any{
			"provider_id": cfg.ID,
			"error":       err.Error(),
		})
		return domain.Feed{}, &ListingError{SourceID: cfg.ID, Err: err}
	}

	items := p.enricher.Enrich(ctx, f, cfg, stubs)
	p.log.InfoObj("feed built", "feed_built", map[string]any{
		"provider_id": cfg.ID,
		"items":       len(items),
		"elapsed_ms":  p.now().Sub(start).Milliseconds(),
	})

	return domain.Feed{
		SourceID: cfg.ID,
		Meta:     cfg.Resolve(f.Profile()).Meta(),
		Items:    items,
		Built:    p.now(),
	}, nil
}
