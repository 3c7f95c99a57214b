package providers

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Adda-Baaj/taja-feed/internal/domain"
	"github.com/Adda-Baaj/taja-feed/pkg/httpclient"
	"github.com/Adda-Baaj/taja-feed/pkg/sanitize"
)

// ProviderTypeGoogleNews is the generic Google News sitemap source type.
const ProviderTypeGoogleNews = "googlenews"

const maxHTMLBodyBytes = 1 << 20 // 1 MiB

type googleNewsPreset struct {
	id    string
	title string
	link  string
}

// Publishers known to expose Google News sitemaps. Their source_url still
// comes from config since sitemap paths move around.
var googleNewsPresets = []googleNewsPreset{
	{id: "ndtv", title: "NDTV", link: "https://www.ndtv.com"},
	{id: "thehindu", title: "The Hindu", link: "https://www.thehindu.com"},
	{id: "financialexpress", title: "Financial Express", link: "https://www.financialexpress.com"},
	{id: "anandabazarpatrika", title: "Anandabazar Patrika", link: "https://www.anandabazar.com"},
	{id: "eisamay", title: "Ei Samay", link: "https://eisamay.com"},
	{id: "aajtak", title: "Aaj Tak", link: "https://www.aajtak.in"},
	{id: "jagran", title: "Dainik Jagran", link: "https://www.jagran.com"},
	{id: "dinamalar", title: "Dinamalar", link: "https://www.dinamalar.com"},
}

// googleNewsFetcher implements Fetcher for Google News sitemap providers.
type googleNewsFetcher struct {
	client HTTPClient
	id     string
	title  string
	link   string
}

// NewGoogleNewsFetcher builds a Fetcher for Google News sitemap providers.
func NewGoogleNewsFetcher(client HTTPClient) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &googleNewsFetcher{client: client, id: ProviderTypeGoogleNews, title: "Google News sitemap"}
}

func newGoogleNewsPreset(client HTTPClient, p googleNewsPreset) Fetcher {
	return &googleNewsFetcher{client: client, id: p.id, title: p.title, link: p.link}
}

// ID returns the provider type for the Google News fetcher.
func (f *googleNewsFetcher) ID() string {
	return f.id
}

func (f *googleNewsFetcher) Profile() Profile {
	return Profile{
		Title:        f.title,
		Link:         f.link,
		Mode:         ModeParallel,
		Workers:      10,
		RequestDelay: 200 * time.Millisecond,
		Policy:       httpclient.Policy{Timeout: 15 * time.Second, MaxRetries: 1, RetryDelay: time.Second},
		Fallback:     "Article preview unavailable: {title}",
	}
}

// Fetch retrieves article stubs from a Google News sitemap provider.
func (f *googleNewsFetcher) Fetch(ctx context.Context, cfg Provider) ([]domain.ItemStub, error) {
	if strings.TrimSpace(cfg.SourceURL) == "" {
		return nil, fmt.Errorf("provider %q source_url is empty", cfg.ID)
	}

	headers := Headers(cfg, nil)
	policy := cfg.Resolve(f.Profile()).ListPolicy

	urls, err := f.fetchGoogleNewsURLs(ctx, cfg, cfg.SourceURL, headers, policy, nil)
	if err != nil {
		return nil, err
	}

	stubs := buildStubsFromSitemap(urls, limitFor(cfg, 0))
	if len(stubs) == 0 {
		return nil, fmt.Errorf("%s sitemap returned no records", cfg.ID)
	}
	return stubs, nil
}

// fetchGoogleNewsURLs resolves the given sitemap URL into article entries, following sitemap indexes if necessary.
func (f *googleNewsFetcher) fetchGoogleNewsURLs(ctx context.Context, cfg Provider, url string, headers map[string]string, policy httpclient.Policy, visited map[string]struct{}) ([]googleNewsURL, error) {
	if visited == nil {
		visited = make(map[string]struct{})
	}
	if _, seen := visited[url]; seen {
		return nil, nil
	}
	visited[url] = struct{}{}

	raw, err := fetchListing(ctx, f.client, url, cfg.ID, headers, policy)
	if err != nil {
		return nil, err
	}

	urls, err := parseGoogleNewsSitemap(raw)
	if err != nil {
		return nil, fmt.Errorf("decode google news sitemap: %w", err)
	}
	if len(urls) > 0 {
		return urls, nil
	}

	indexURLs, err := parseSitemapIndex(raw)
	if err != nil {
		return nil, fmt.Errorf("decode sitemap index: %w", err)
	}

	var all []googleNewsURL
	for _, indexURL := range indexURLs {
		nested, err := f.fetchGoogleNewsURLs(ctx, cfg, indexURL, headers, policy, visited)
		if err != nil {
			return nil, err
		}
		all = append(all, nested...)
	}
	return all, nil
}

// Detail scrapes the article page metadata into a short description.
func (f *googleNewsFetcher) Detail(ctx context.Context, cfg Provider, stub domain.ItemStub, get DetailGetter) (domain.EnrichedItem, error) {
	body, err := get(ctx, stub.Link, Headers(cfg, nil))
	if err != nil {
		return domain.EnrichedItem{}, err
	}
	if len(body) > maxHTMLBodyBytes {
		body = body[:maxHTMLBodyBytes]
	}

	meta, err := parseMeta(body)
	if err != nil {
		return domain.EnrichedItem{}, err
	}
	if meta.Description == "" {
		return domain.EnrichedItem{}, fmt.Errorf("%s: no description meta: %w", stub.Link, ErrParse)
	}

	item := domain.EnrichedItem{ItemStub: stub}
	if item.Title == "" {
		item.Title = meta.Title
	}

	var b strings.Builder
	b.WriteString("<p>" + html.EscapeString(meta.Description) + "</p>")
	image := firstNonEmpty(resolveURL(meta.ImageURL, stub.Link), stub.Extra["image"])
	if image != "" {
		b.WriteString(`<img src="` + html.EscapeString(image) + `"/>`)
	}
	item.Description = sanitize.Sanitize(b.String())
	return item, nil
}

// pageMeta holds metadata extracted from an HTML page.
type pageMeta struct {
	Title       string
	Description string
	ImageURL    string
}

// parseMeta extracts page metadata from the HTML body.
func parseMeta(body []byte) (pageMeta, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return pageMeta{}, fmt.Errorf("parse html: %w", err)
	}

	extract := func(sel string) string {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if val, ok := node.Attr("content"); ok {
				return strings.TrimSpace(val)
			}
		}
		return ""
	}

	return pageMeta{
		Title: firstNonEmpty(
			extract(`meta[property="og:title"]`),
			strings.TrimSpace(doc.Find("title").First().Text()),
		),
		Description: firstNonEmpty(
			extract(`meta[property="og:description"]`),
			extract(`meta[name="description"]`),
		),
		ImageURL: extract(`meta[property="og:image"]`),
	}, nil
}
