package providers

import (
	"encoding/xml"
	"strings"

	"github.com/Adda-Baaj/taja-feed/internal/domain"
	"github.com/Adda-Baaj/taja-feed/pkg/dates"
)

type googleNewsSitemap struct {
	URLs []googleNewsURL `xml:"url"`
}

type googleNewsURL struct {
	Loc    string            `xml:"loc"`
	News   googleNewsDetail  `xml:"news"`
	Images []googleNewsImage `xml:"image"`
}

type sitemapIndex struct {
	Sitemaps []sitemapIndexEntry `xml:"sitemap"`
}

type sitemapIndexEntry struct {
	Loc string `xml:"loc"`
}

type googleNewsDetail struct {
	PublicationDate string                `xml:"publication_date"`
	Keywords        string                `xml:"keywords"`
	Title           string                `xml:"title"`
	Publication     googleNewsPublication `xml:"publication"`
}

type googleNewsPublication struct {
	Name string `xml:"name"`
}

type googleNewsImage struct {
	Loc   string `xml:"loc"`
	Title string `xml:"title"`
}

// parseGoogleNewsSitemap parses the XML data into a slice of googleNewsURL structs.
func parseGoogleNewsSitemap(data []byte) ([]googleNewsURL, error) {
	var sitemap googleNewsSitemap
	if err := xml.Unmarshal(data, &sitemap); err != nil {
		return nil, err
	}
	return sitemap.URLs, nil
}

// parseSitemapIndex parses an XML sitemap index file and returns the nested sitemap URLs.
func parseSitemapIndex(data []byte) ([]string, error) {
	var index sitemapIndex
	if err := xml.Unmarshal(data, &index); err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(index.Sitemaps))
	for _, entry := range index.Sitemaps {
		if loc := strings.TrimSpace(entry.Loc); loc != "" {
			urls = append(urls, loc)
		}
	}
	return urls, nil
}

// buildStubsFromSitemap turns sitemap entries into item stubs, keeping
// sitemap order.
func buildStubsFromSitemap(urls []googleNewsURL, limit int) []domain.ItemStub {
	stubs := make([]domain.ItemStub, 0, len(urls))
	for _, entry := range urls {
		if limit > 0 && len(stubs) >= limit {
			break
		}
		loc := strings.TrimSpace(entry.Loc)
		if loc == "" {
			continue
		}

		stub := domain.ItemStub{
			ID:          hashURL(loc),
			Title:       strings.TrimSpace(entry.News.Title),
			Link:        loc,
			PublishedAt: dates.Parse(entry.News.PublicationDate),
			Author:      strings.TrimSpace(entry.News.Publication.Name),
			Categories:  parseKeywords(entry.News.Keywords),
		}
		if img := firstImageURL(entry.Images); img != "" {
			stub.Extra = map[string]string{"image": img}
		}
		stubs = append(stubs, stub)
	}
	return stubs
}

// firstImageURL returns the first non-empty image URL from the list.
func firstImageURL(images []googleNewsImage) string {
	for _, img := range images {
		if loc := strings.TrimSpace(img.Loc); loc != "" {
			return loc
		}
	}
	return ""
}

// parseKeywords splits a comma-separated string of keywords into a slice of trimmed strings.
func parseKeywords(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	keywords := make([]string, 0, len(parts))
	for _, part := range parts {
		if kw := strings.TrimSpace(part); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	if len(keywords) == 0 {
		return nil
	}
	return keywords
}
