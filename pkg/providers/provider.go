package providers

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/Adda-Baaj/taja-feed/internal/domain"
	"github.com/Adda-Baaj/taja-feed/pkg/httpclient"
)

// ErrParse marks detail or listing content that is present but not in the
// expected shape.
var ErrParse = errors.New("unexpected content shape")

// HTTPClient is the transport used by fetchers.
type HTTPClient = httpclient.Client

// Mode selects how the crawler schedules detail fetches for a source.
type Mode string

const (
	// ModeParallel starts every detail fetch at once, bounded by Workers.
	ModeParallel Mode = "parallel"
	// ModeSerial fetches one item at a time with a delay before each fetch
	// and escalates once on a rate limit signal.
	ModeSerial Mode = "serial"
)

const defaultFallback = "Details could not be retrieved."

// DetailGetter retrieves a detail body under the crawler's fetch policy.
type DetailGetter func(ctx context.Context, url string, headers map[string]string) ([]byte, error)

// Fetcher adapts one source: it parses the listing into stubs and turns a
// stub into an enriched item.
type Fetcher interface {
	ID() string
	Profile() Profile
	Fetch(ctx context.Context, cfg Provider) ([]domain.ItemStub, error)
	Detail(ctx context.Context, cfg Provider, stub domain.ItemStub, get DetailGetter) (domain.EnrichedItem, error)
}

// CacheKeyer is implemented by fetchers whose detail output depends on more
// than the stub link.
type CacheKeyer interface {
	CacheKey(cfg Provider, stub domain.ItemStub) string
}

// FetcherRegistry resolves the fetcher for a configured provider.
type FetcherRegistry interface {
	FetcherFor(cfg Provider) (Fetcher, error)
	IDs() []string
}

// Profile holds a source's feed identity and enrichment behaviour.
type Profile struct {
	Title       string
	Link        string
	Description string

	Mode            Mode
	Workers         int
	RequestDelay    time.Duration
	RateLimitDelay  time.Duration
	Policy          httpclient.Policy
	EscalatedPolicy httpclient.Policy
	ListPolicy      httpclient.Policy

	// Fallback is the degraded description; "{title}" expands to the item
	// title.
	Fallback string
}

// FallbackFor returns the degraded description for stub.
func (p Profile) FallbackFor(stub domain.ItemStub) string {
	text := p.Fallback
	if strings.TrimSpace(text) == "" {
		text = defaultFallback
	}
	return strings.ReplaceAll(text, "{title}", stub.Title)
}

// Meta returns the feed level title/link.
func (p Profile) Meta() domain.FeedMeta {
	return domain.FeedMeta{Title: p.Title, Link: p.Link, Description: p.Description}
}

// Provider is a configured source entry.
type Provider struct {
	ID        string            `json:"id" yaml:"id"`
	Type      string            `json:"type" yaml:"type"`
	Enabled   *bool             `json:"enabled" yaml:"enabled"`
	SourceURL string            `json:"source_url" yaml:"source_url"`
	Title     string            `json:"title" yaml:"title"`
	Link      string            `json:"link" yaml:"link"`
	Headers   map[string]string `json:"headers" yaml:"headers"`
	Params    map[string]string `json:"params" yaml:"params"`
	Limit     int               `json:"limit" yaml:"limit"`
	Enrich    EnrichConfig      `json:"enrich" yaml:"enrich"`
}

// EnrichConfig overrides a fetcher's default Profile. Zero values keep the
// default.
type EnrichConfig struct {
	Mode               string `json:"mode" yaml:"mode"`
	Workers            int    `json:"workers" yaml:"workers"`
	RequestDelayMs     int    `json:"request_delay_ms" yaml:"request_delay_ms"`
	RateLimitDelayMs   int    `json:"rate_limit_delay_ms" yaml:"rate_limit_delay_ms"`
	TimeoutMs          int    `json:"timeout_ms" yaml:"timeout_ms"`
	Retries            *int   `json:"retries" yaml:"retries"`
	RetryDelayMs       int    `json:"retry_delay_ms" yaml:"retry_delay_ms"`
	EscalatedTimeoutMs int    `json:"escalated_timeout_ms" yaml:"escalated_timeout_ms"`
	EscalatedRetries   *int   `json:"escalated_retries" yaml:"escalated_retries"`
	Fallback           string `json:"fallback" yaml:"fallback"`
}

// TypeKey returns the registry key for the provider.
func (cfg Provider) TypeKey() string {
	if t := strings.TrimSpace(cfg.Type); t != "" {
		return strings.ToLower(t)
	}
	return strings.ToLower(strings.TrimSpace(cfg.ID))
}

// EnabledValue returns the enabled flag defaulting to true.
func (cfg Provider) EnabledValue() bool {
	if cfg.Enabled == nil {
		return true
	}
	return *cfg.Enabled
}

// Param returns a request parameter, or def when unset.
func (cfg Provider) Param(key, def string) string {
	if v := strings.TrimSpace(cfg.Params[key]); v != "" {
		return v
	}
	return def
}

// WithParams returns a copy of cfg with overrides merged over its params.
func (cfg Provider) WithParams(overrides map[string]string) Provider {
	if len(overrides) == 0 {
		return cfg
	}
	merged := make(map[string]string, len(cfg.Params)+len(overrides))
	maps.Copy(merged, cfg.Params)
	for k, v := range overrides {
		if strings.TrimSpace(v) != "" {
			merged[k] = v
		}
	}
	cfg.Params = merged
	return cfg
}

// Resolve applies the provider's overrides to the fetcher default profile.
func (cfg Provider) Resolve(def Profile) Profile {
	p := def
	if cfg.Title != "" {
		p.Title = cfg.Title
	}
	if cfg.Link != "" {
		p.Link = cfg.Link
	}

	e := cfg.Enrich
	switch Mode(strings.ToLower(strings.TrimSpace(e.Mode))) {
	case ModeParallel:
		p.Mode = ModeParallel
	case ModeSerial:
		p.Mode = ModeSerial
	}
	if p.Mode == "" {
		p.Mode = ModeParallel
	}
	if e.Workers > 0 {
		p.Workers = e.Workers
	}
	if e.RequestDelayMs > 0 {
		p.RequestDelay = ms(e.RequestDelayMs)
	}
	if e.RateLimitDelayMs > 0 {
		p.RateLimitDelay = ms(e.RateLimitDelayMs)
	}
	if e.TimeoutMs > 0 {
		p.Policy.Timeout = ms(e.TimeoutMs)
	}
	if e.Retries != nil && *e.Retries >= 0 {
		p.Policy.MaxRetries = *e.Retries
	}
	if e.RetryDelayMs > 0 {
		p.Policy.RetryDelay = ms(e.RetryDelayMs)
		p.EscalatedPolicy.RetryDelay = ms(e.RetryDelayMs)
	}
	if e.EscalatedTimeoutMs > 0 {
		p.EscalatedPolicy.Timeout = ms(e.EscalatedTimeoutMs)
	}
	if e.EscalatedRetries != nil && *e.EscalatedRetries >= 0 {
		p.EscalatedPolicy.MaxRetries = *e.EscalatedRetries
	}
	if e.Fallback != "" {
		p.Fallback = e.Fallback
	}
	if p.ListPolicy.Timeout == 0 {
		p.ListPolicy = p.Policy
	}
	return p
}

// Headers returns the configured request headers merged over defaults.
func Headers(cfg Provider, defaults map[string]string) map[string]string {
	out := make(map[string]string, len(defaults)+len(cfg.Headers))
	maps.Copy(out, defaults)
	for k, v := range cfg.Headers {
		if k = strings.TrimSpace(k); k != "" && strings.TrimSpace(v) != "" {
			out[k] = strings.TrimSpace(v)
		}
	}
	return out
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
