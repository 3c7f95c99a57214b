package providers

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Adda-Baaj/taja-feed/internal/domain"
	"github.com/Adda-Baaj/taja-feed/pkg/dates"
	"github.com/Adda-Baaj/taja-feed/pkg/httpclient"
	"github.com/Adda-Baaj/taja-feed/pkg/sanitize"
)

const (
	sukebeiProviderID   = "sukebei"
	sukebeiRootURL      = "https://sukebei.nyaa.si"
	sukebeiDefaultLimit = 30
	torrentMIMEType     = "application/x-bittorrent"
)

// sukebeiFetcher reads the torrent index listing. Detail pages are
// aggressively throttled upstream, so it enriches serially.
type sukebeiFetcher struct {
	client HTTPClient
}

// NewSukebeiFetcher builds a fetcher for the sukebei torrent index.
func NewSukebeiFetcher(client HTTPClient) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &sukebeiFetcher{client: client}
}

func (f *sukebeiFetcher) ID() string {
	return sukebeiProviderID
}

func (f *sukebeiFetcher) Profile() Profile {
	return Profile{
		Title:           "Sukebei - Latest Torrents",
		Link:            sukebeiRootURL,
		Mode:            ModeSerial,
		RequestDelay:    500 * time.Millisecond,
		RateLimitDelay:  2 * time.Second,
		Policy:          httpclient.Policy{Timeout: 10 * time.Second, MaxRetries: 2, RetryDelay: 500 * time.Millisecond},
		EscalatedPolicy: httpclient.Policy{Timeout: 15 * time.Second, MaxRetries: 1, RetryDelay: 500 * time.Millisecond},
		Fallback:        "Details could not be retrieved due to rate limiting.",
	}
}

// Fetch lists the latest torrents. Params: filter (0 none, 1 no remakes,
// 2 trusted only), category (e.g. 1_0), limit.
func (f *sukebeiFetcher) Fetch(ctx context.Context, cfg Provider) ([]domain.ItemStub, error) {
	root := trimRoot(cfg.SourceURL, sukebeiRootURL)

	q := url.Values{}
	q.Set("f", cfg.Param("filter", "0"))
	if category := cfg.Param("category", ""); category != "" {
		q.Set("c", category)
	}
	listURL := root + "/?" + q.Encode()

	raw, err := fetchListing(ctx, f.client, listURL, sukebeiProviderID, Headers(cfg, nil), cfg.Resolve(f.Profile()).ListPolicy)
	if err != nil {
		return nil, err
	}

	stubs, err := parseSukebeiListing(raw, root, limitFor(cfg, sukebeiDefaultLimit))
	if err != nil {
		return nil, err
	}
	if len(stubs) == 0 {
		return nil, fmt.Errorf("sukebei listing returned no records")
	}
	return stubs, nil
}

func parseSukebeiListing(raw []byte, root string, limit int) ([]domain.ItemStub, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse sukebei listing: %w", err)
	}

	var stubs []domain.ItemStub
	doc.Find("tr.default").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if len(stubs) >= limit {
			return false
		}

		a := row.Find("td:nth-child(2) a:not(.comments)").First()
		href, ok := a.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return true
		}
		link := resolveURL(href, root+"/")

		title := firstNonEmpty(a.AttrOr("title", ""), a.Text())
		dateCell := row.Find("td:nth-child(5)")
		published := dates.Parse(dateCell.AttrOr("data-timestamp", ""))
		if !dates.Valid(published) {
			published = dates.Parse(dateCell.Text())
		}

		id := path.Base(strings.TrimRight(link, "/"))
		if id == "" || id == "." || id == "/" {
			id = hashURL(link)
		}

		stubs = append(stubs, domain.ItemStub{
			ID:          id,
			Title:       title,
			Link:        link,
			PublishedAt: published,
			Categories:  categoryOf(row),
		})
		return true
	})
	return stubs, nil
}

func categoryOf(row *goquery.Selection) []string {
	if c := strings.TrimSpace(row.Find("td:nth-child(1) a").First().AttrOr("title", "")); c != "" {
		return []string{c}
	}
	return nil
}

// Detail renders the torrent description, file list and magnet enclosure.
func (f *sukebeiFetcher) Detail(ctx context.Context, cfg Provider, stub domain.ItemStub, get DetailGetter) (domain.EnrichedItem, error) {
	body, err := get(ctx, stub.Link, Headers(cfg, nil))
	if err != nil {
		return domain.EnrichedItem{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return domain.EnrichedItem{}, fmt.Errorf("parse sukebei detail: %w", err)
	}

	magnet := strings.TrimSpace(doc.Find(`a[href^="magnet:"]`).First().AttrOr("href", ""))
	descDiv := doc.Find("#torrent-description")
	files := doc.Find(".torrent-file-list")
	if magnet == "" && descDiv.Length() == 0 && files.Length() == 0 {
		return domain.EnrichedItem{}, fmt.Errorf("%s: no torrent details: %w", stub.Link, ErrParse)
	}

	var b strings.Builder
	if descDiv.Length() > 0 {
		b.WriteString(sanitize.Markdown(strings.TrimSpace(descDiv.Text())))
	}
	if files.Length() > 0 {
		b.WriteString("<h3>File List</h3><pre>")
		files.Find("li").Each(func(_ int, li *goquery.Selection) {
			name := strings.TrimSpace(li.Contents().FilterFunction(func(_ int, s *goquery.Selection) bool {
				return goquery.NodeName(s) == "#text"
			}).Text())
			size := strings.TrimSpace(li.Find(".file-size").Text())
			b.WriteString(html.EscapeString(strings.TrimSpace(name+" "+size)) + "\n")
		})
		b.WriteString("</pre>")
	}
	if b.Len() == 0 {
		b.WriteString("<p>" + html.EscapeString(stub.Title) + "</p>")
	}

	item := domain.EnrichedItem{
		ItemStub:    stub,
		Description: sanitize.RemoveInvalidChars(b.String()),
	}
	if magnet != "" {
		item.EnclosureURL = magnet
		item.EnclosureType = torrentMIMEType
	}
	return item, nil
}
