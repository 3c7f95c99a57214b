package providers

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Adda-Baaj/taja-feed/pkg/httpclient"
)

type fetcherRegistry struct {
	fetchers map[string]Fetcher
	mu       sync.RWMutex
}

// NewFetcherRegistry builds a registry for the provided fetcher implementations.
func NewFetcherRegistry(fetchers ...Fetcher) FetcherRegistry {
	reg := &fetcherRegistry{
		fetchers: make(map[string]Fetcher, len(fetchers)),
	}

	for _, f := range fetchers {
		if f == nil {
			continue
		}
		reg.fetchers[strings.ToLower(strings.TrimSpace(f.ID()))] = f
	}

	return reg
}

// FetcherFor selects the fetcher for the given provider based on its type,
// falling back to its id.
func (r *fetcherRegistry) FetcherFor(cfg Provider) (Fetcher, error) {
	key := cfg.TypeKey()
	if key == "" {
		return nil, fmt.Errorf("provider id is empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if f, ok := r.fetchers[key]; ok {
		return f, nil
	}

	return nil, fmt.Errorf("no fetcher registered for provider %q (type %q)", cfg.ID, key)
}

// IDs lists registered fetcher ids in order.
func (r *fetcherRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.fetchers))
	for id := range r.fetchers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// DefaultHTTPClient returns a tuned resty client for provider fetchers.
func DefaultHTTPClient() HTTPClient { return httpclient.NewRestyClient(30 * time.Second) }

// DefaultFetcherRegistry wires up the known source fetchers, including the
// Google News sitemap publisher presets.
func DefaultFetcherRegistry(client HTTPClient) FetcherRegistry {
	if client == nil {
		client = DefaultHTTPClient()
	}

	fetchers := []Fetcher{
		NewSukebeiFetcher(client),
		NewCBNWeekFetcher(client),
		NewKaiyanFetcher(client),
		NewT66yFetcher(client),
		NewGoogleNewsFetcher(client),
	}
	for _, preset := range googleNewsPresets {
		fetchers = append(fetchers, newGoogleNewsPreset(client, preset))
	}

	return NewFetcherRegistry(fetchers...)
}
