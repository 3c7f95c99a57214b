package domain

import "time"

// Domain contains core models shared by sources, the crawler and feed output.

// ItemStub is the lightweight item produced by a listing page. Link is the
// enrichment cache key and the final item identity.
type ItemStub struct {
	ID          string
	Title       string
	Link        string
	PublishedAt time.Time
	Author      string
	Categories  []string
	// Extra carries source specific listing fields the detail step needs
	// (cover image, api id, ...).
	Extra map[string]string
}

// EnrichedItem is a stub plus its detail content. Description is always set;
// degraded items carry a fallback text instead.
type EnrichedItem struct {
	ItemStub
	Description   string
	EnclosureURL  string
	EnclosureType string
	Degraded      bool
}

// FeedMeta is the feed level title/link pair.
type FeedMeta struct {
	Title       string
	Link        string
	Description string
}

// Feed is the assembled output of one pipeline run.
type Feed struct {
	SourceID string
	Meta     FeedMeta
	Items    []EnrichedItem
	Built    time.Time
}

// Degrade builds the fallback representation of a stub.
func Degrade(stub ItemStub, description string) EnrichedItem {
	return EnrichedItem{
		ItemStub:    stub,
		Description: description,
		Degraded:    true,
	}
}
