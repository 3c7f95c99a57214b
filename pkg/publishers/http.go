package publishers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Adda-Baaj/taja-feed/pkg/httpclient"
)

// httpPublisher posts each event as JSON to a webhook.
type httpPublisher struct {
	id     string
	url    string
	method string
	client *resty.Client
	log    Logger
}

func newHTTPPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.HTTP == nil || cfg.HTTP.URL == "" {
		return nil, fmt.Errorf("publisher %q missing http configuration", cfg.ID)
	}

	client := resty.New().
		SetTimeout(time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeaders(cfg.HTTP.Headers)

	return &httpPublisher{
		id:     cfg.ID,
		url:    cfg.HTTP.URL,
		method: cfg.HTTP.Method,
		client: client,
		log:    ensureLogger(log),
	}, nil
}

func (p *httpPublisher) ID() string   { return p.id }
func (p *httpPublisher) Type() string { return TypeHTTP }
func (p *httpPublisher) Close() error { return nil }

// Publish sends the event; any non-2xx answer is an error.
func (p *httpPublisher) Publish(ctx context.Context, evt Event) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("X-Source-Id", evt.SourceID).
		SetBody(evt).
		Execute(p.method, p.url)
	if err != nil {
		return fmt.Errorf("http publish: %w", err)
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return fmt.Errorf("http publish: status %d body: %s", resp.StatusCode(), httpclient.Snippet(resp.Body()))
	}

	p.log.DebugObj("http publisher delivered event", "publisher_http_delivery", map[string]any{
		"publisher_id": p.id,
		"status":       resp.StatusCode(),
		"link":         evt.Link,
	})
	return nil
}
