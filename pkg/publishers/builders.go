package publishers

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Builder creates a Publisher from a config entry.
type Builder func(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error)

// Builders maps a publisher type to its constructor.
type Builders map[string]Builder

// DefaultBuilders covers the publisher types this module ships.
func DefaultBuilders() Builders {
	return Builders{
		TypeHTTP:  newHTTPPublisher,
		TypeQueue: newQueuePublisher,
	}
}

// Dispatcher builds one publisher per config and returns a Dispatcher over
// them. When a config cannot be built, the publishers created so far are
// closed and the error is returned.
func (b Builders) Dispatcher(ctx context.Context, cfgs []PublisherConfig, log Logger) (*Dispatcher, error) {
	log = ensureLogger(log)

	d := NewDispatcher(make([]Target, 0, len(cfgs)), log)
	for _, cfg := range cfgs {
		pub, err := b.build(ctx, cfg, log)
		if err != nil {
			return nil, errors.Join(err, d.Close())
		}
		d.targets = append(d.targets, Target{Config: cfg, Publisher: pub})
		log.InfoObj("publisher ready", "publisher_ready", map[string]any{
			"publisher_id": cfg.ID,
			"type":         pub.Type(),
			"sources":      cfg.Sources,
		})
	}
	return d, nil
}

func (b Builders) build(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	typ := strings.ToLower(strings.TrimSpace(cfg.Type))
	if typ == "" {
		return nil, fmt.Errorf("publisher %q has no type configured", cfg.ID)
	}
	builder, ok := b[typ]
	if !ok || builder == nil {
		return nil, fmt.Errorf("publisher %q: unsupported type %q", cfg.ID, cfg.Type)
	}
	return builder(ctx, cfg, log)
}
