package publishers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adda-Baaj/taja-feed/internal/domain"
	"github.com/Adda-Baaj/taja-feed/internal/logger"
)

const defaultDispatchConcurrency = 8

// Logger is the structured logger publishers report through.
type Logger = logger.Logger

func ensureLogger(log Logger) Logger { return logger.Ensure(log) }

// Event is the payload sent downstream for each enriched item.
type Event struct {
	SourceID      string    `json:"source_id"`
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Link          string    `json:"link"`
	Description   string    `json:"description"`
	Author        string    `json:"author,omitempty"`
	Categories    []string  `json:"categories,omitempty"`
	PublishedAt   time.Time `json:"published_at"`
	EnclosureURL  string    `json:"enclosure_url,omitempty"`
	EnclosureType string    `json:"enclosure_type,omitempty"`
	Degraded      bool      `json:"degraded"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// EventFromItem builds the event for an item of sourceID's feed.
func EventFromItem(sourceID string, item domain.EnrichedItem, fetchedAt time.Time) Event {
	return Event{
		SourceID:      sourceID,
		ID:            item.ID,
		Title:         item.Title,
		Link:          item.Link,
		Description:   item.Description,
		Author:        item.Author,
		Categories:    item.Categories,
		PublishedAt:   item.PublishedAt,
		EnclosureURL:  item.EnclosureURL,
		EnclosureType: item.EnclosureType,
		Degraded:      item.Degraded,
		FetchedAt:     fetchedAt,
	}
}

// Publisher delivers events to one downstream sink.
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Target pairs a built publisher with the config that filters its events.
type Target struct {
	Config    PublisherConfig
	Publisher Publisher
}

// Dispatcher fans feed items out to every target that accepts them.
type Dispatcher struct {
	targets     []Target
	log         Logger
	concurrency int
}

// NewDispatcher creates a Dispatcher over targets.
func NewDispatcher(targets []Target, log Logger) *Dispatcher {
	return &Dispatcher{targets: targets, log: ensureLogger(log), concurrency: defaultDispatchConcurrency}
}

// PublishFeed sends every accepted item of feed to every target. Delivery
// failures do not stop other deliveries; they are joined into the returned
// error.
func (d *Dispatcher) PublishFeed(ctx context.Context, feed domain.Feed) error {
	if d == nil || len(d.targets) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs []error
		sent int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for _, t := range d.targets {
		t := t
		for _, item := range feed.Items {
			if !t.Config.Accepts(feed.SourceID, item.Degraded) {
				continue
			}
			evt := EventFromItem(feed.SourceID, item, feed.Built)
			g.Go(func() error {
				err := t.Publisher.Publish(gctx, evt)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, fmt.Errorf("publisher %s: %s: %w", t.Publisher.ID(), evt.Link, err))
					return nil
				}
				sent++
				return nil
			})
		}
	}
	_ = g.Wait()

	d.log.InfoObj("feed published", "publish_done", map[string]any{
		"provider_id": feed.SourceID,
		"delivered":   sent,
		"failed":      len(errs),
	})
	return errors.Join(errs...)
}

// Close closes every publisher.
func (d *Dispatcher) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, t := range d.targets {
		if err := t.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher %s: %w", t.Publisher.ID(), err))
		}
	}
	return errors.Join(errs...)
}
