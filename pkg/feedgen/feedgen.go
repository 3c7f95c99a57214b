// Package feedgen renders assembled feeds to RSS, Atom or JSON Feed.
package feedgen

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gorilla/feeds"

	"github.com/Adda-Baaj/taja-feed/internal/domain"
)

// Format is an output wire format.
type Format string

const (
	FormatRSS  Format = "rss"
	FormatAtom Format = "atom"
	FormatJSON Format = "json"
)

// ParseFormat maps a query or config value to a Format. Empty means RSS.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FormatRSS, nil
	case FormatRSS, FormatAtom, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported feed format %q", raw)
	}
}

// ContentType returns the HTTP content type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatAtom:
		return "application/atom+xml; charset=utf-8"
	case FormatJSON:
		return "application/feed+json; charset=utf-8"
	default:
		return "application/rss+xml; charset=utf-8"
	}
}

// Ext returns the file extension used when feeds are written to disk.
func (f Format) Ext() string {
	switch f {
	case FormatAtom:
		return ".atom"
	case FormatJSON:
		return ".json"
	default:
		return ".xml"
	}
}

// Build converts an assembled feed into a gorilla feed, keeping item order.
func Build(feed domain.Feed) *feeds.Feed {
	out := &feeds.Feed{
		Title:       feed.Meta.Title,
		Link:        &feeds.Link{Href: feed.Meta.Link},
		Description: firstNonEmpty(feed.Meta.Description, feed.Meta.Title),
		Id:          feed.Meta.Link,
		Updated:     feed.Built,
		Created:     feed.Built,
		Items:       make([]*feeds.Item, 0, len(feed.Items)),
	}

	for _, it := range feed.Items {
		item := &feeds.Item{
			Title:       it.Title,
			Link:        &feeds.Link{Href: it.Link},
			Id:          it.Link,
			Description: it.Description,
			Created:     it.PublishedAt,
		}
		if it.Author != "" {
			item.Author = &feeds.Author{Name: it.Author}
		}
		if it.EnclosureURL != "" {
			item.Enclosure = &feeds.Enclosure{Url: it.EnclosureURL, Type: it.EnclosureType, Length: "0"}
		}
		out.Items = append(out.Items, item)
	}
	return out
}

// Render serializes feed in the given format. Categories are carried into
// the RSS and JSON outputs, which have a field for them.
func Render(feed domain.Feed, format Format) (string, error) {
	built := Build(feed)

	switch format {
	case FormatAtom:
		return built.ToAtom()
	case FormatJSON:
		jf := (&feeds.JSON{Feed: built}).JSONFeed()
		for i, item := range jf.Items {
			if i < len(feed.Items) {
				item.Tags = feed.Items[i].Categories
			}
		}
		raw, err := json.MarshalIndent(jf, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode json feed: %w", err)
		}
		return string(raw), nil
	case FormatRSS, "":
		rf := (&feeds.Rss{Feed: built}).RssFeed()
		for i, item := range rf.Items {
			if i < len(feed.Items) {
				item.Category = strings.Join(feed.Items[i].Categories, ", ")
			}
		}
		return feeds.ToXML(rf)
	default:
		return "", fmt.Errorf("unsupported feed format %q", format)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
