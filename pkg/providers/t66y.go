package providers

import (
	"bytes"
	"context"
	"fmt"
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
	t66yProviderID   = "t66y"
	t66yRootURL      = "https://www.t66y.com"
	t66yDefaultForum = "7"
	t66yDefaultLimit = 30
)

// t66yFetcher reads a forum board and extracts the first post of each
// thread.
type t66yFetcher struct {
	client HTTPClient
}

// NewT66yFetcher builds a fetcher for t66y forum boards.
func NewT66yFetcher(client HTTPClient) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &t66yFetcher{client: client}
}

func (f *t66yFetcher) ID() string {
	return t66yProviderID
}

func (f *t66yFetcher) Profile() Profile {
	return Profile{
		Title:    "草榴社区",
		Link:     t66yRootURL,
		Mode:     ModeParallel,
		Workers:  5,
		Policy:   httpclient.Policy{Timeout: 15 * time.Second, MaxRetries: 1, RetryDelay: time.Second},
		Fallback: "Post content unavailable: {title}",
	}
}

// Fetch lists threads on a board. Params: fid (board id), search (listing
// filter passed through), limit.
func (f *t66yFetcher) Fetch(ctx context.Context, cfg Provider) ([]domain.ItemStub, error) {
	root := trimRoot(cfg.SourceURL, t66yRootURL)

	q := url.Values{}
	q.Set("fid", cfg.Param("fid", t66yDefaultForum))
	if search := cfg.Param("search", ""); search != "" {
		q.Set("search", search)
	}
	listURL := root + "/thread0806.php?" + q.Encode()

	raw, err := fetchListing(ctx, f.client, listURL, t66yProviderID, Headers(cfg, nil), cfg.Resolve(f.Profile()).ListPolicy)
	if err != nil {
		return nil, err
	}

	stubs, err := parseT66yListing(raw, root, limitFor(cfg, t66yDefaultLimit))
	if err != nil {
		return nil, err
	}
	if len(stubs) == 0 {
		return nil, fmt.Errorf("t66y listing returned no records")
	}
	return stubs, nil
}

func parseT66yListing(raw []byte, root string, limit int) ([]domain.ItemStub, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse t66y listing: %w", err)
	}

	var stubs []domain.ItemStub
	seen := make(map[string]struct{})
	doc.Find("tr.tr3").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if len(stubs) >= limit {
			return false
		}

		a := row.Find("td.tal h3 a").First()
		href := strings.TrimSpace(a.AttrOr("href", ""))
		// Sticky rows link to notices outside the htm_data tree.
		if href == "" || !strings.Contains(href, "htm_data") {
			return true
		}
		link := resolveURL(href, root+"/")
		if _, dup := seen[link]; dup {
			return true
		}
		seen[link] = struct{}{}

		id := strings.TrimSuffix(path.Base(link), path.Ext(link))
		if id == "" {
			id = hashURL(link)
		}

		author := strings.TrimSpace(row.Find("td:nth-child(3) a").First().Text())
		published := dates.ParseIn(row.Find("td:nth-child(3) span[data-timestamp]").AttrOr("data-timestamp", ""), chinaStandardTime)
		if !dates.Valid(published) {
			published = dates.ParseIn(row.Find("td:nth-child(3) div.f12").Text(), chinaStandardTime)
		}

		stubs = append(stubs, domain.ItemStub{
			ID:          id,
			Title:       strings.TrimSpace(a.Text()),
			Link:        link,
			PublishedAt: published,
			Author:      author,
		})
		return true
	})
	return stubs, nil
}

// Detail fetches the thread and keeps the first post body.
func (f *t66yFetcher) Detail(ctx context.Context, cfg Provider, stub domain.ItemStub, get DetailGetter) (domain.EnrichedItem, error) {
	body, err := get(ctx, stub.Link, Headers(cfg, map[string]string{"Referer": trimRoot(cfg.SourceURL, t66yRootURL) + "/"}))
	if err != nil {
		return domain.EnrichedItem{}, err
	}
	post, err := t66yFirstPost(body)
	if err != nil {
		return domain.EnrichedItem{}, fmt.Errorf("%s: %w", stub.Link, err)
	}

	content := sanitize.Forum.Sanitize(post)
	if strings.TrimSpace(content) == "" {
		return domain.EnrichedItem{}, fmt.Errorf("%s: empty post content: %w", stub.Link, ErrParse)
	}
	return domain.EnrichedItem{ItemStub: stub, Description: content}, nil
}

// t66yFirstPost returns the inner HTML of the outermost first post
// container. Quoted posts nested inside it stay part of the body.
func t66yFirstPost(page []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse thread: %w", ErrParse)
	}
	post := doc.Find("div.tpc_content").First()
	if post.Length() == 0 {
		return "", fmt.Errorf("no post content: %w", ErrParse)
	}
	inner, err := post.Html()
	if err != nil {
		return "", fmt.Errorf("render post: %w", ErrParse)
	}
	return inner, nil
}
