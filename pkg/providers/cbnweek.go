package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Adda-Baaj/taja-feed/internal/domain"
	"github.com/Adda-Baaj/taja-feed/pkg/dates"
	"github.com/Adda-Baaj/taja-feed/pkg/httpclient"
	"github.com/Adda-Baaj/taja-feed/pkg/sanitize"
)

const (
	cbnweekProviderID = "cbnweek"
	cbnweekRootURL    = "https://www2021.cbnweek.com"
	cbnweekAPIURL     = "https://api2021.cbnweek.com"
)

var chinaStandardTime = time.FixedZone("CST", 8*3600)

// cbnweekFetcher reads the magazine's first page API and pulls article
// bodies from the article API.
type cbnweekFetcher struct {
	client HTTPClient
}

// NewCBNWeekFetcher builds a fetcher for the CBN Weekly article API.
func NewCBNWeekFetcher(client HTTPClient) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &cbnweekFetcher{client: client}
}

func (f *cbnweekFetcher) ID() string {
	return cbnweekProviderID
}

func (f *cbnweekFetcher) Profile() Profile {
	return Profile{
		Title:    "第一财经杂志",
		Link:     cbnweekRootURL,
		Mode:     ModeParallel,
		Policy:   httpclient.Policy{Timeout: 15 * time.Second, MaxRetries: 1, RetryDelay: time.Second},
		Fallback: "无法获取文章内容: {title}",
	}
}

type cbnweekFirstPage struct {
	Data []struct {
		Data []cbnweekPost `json:"data"`
	} `json:"data"`
}

type cbnweekPost struct {
	ID          flexString `json:"id"`
	Title       string     `json:"title"`
	DisplayTime flexString `json:"display_time"`
	Authors     []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Topics []struct {
		Name string `json:"name"`
	} `json:"topics"`
}

type cbnweekArticle struct {
	Data struct {
		Content string `json:"content"`
	} `json:"data"`
}

func (f *cbnweekFetcher) headers(cfg Provider) map[string]string {
	return Headers(cfg, map[string]string{"Referer": cbnweekRoot(cfg)})
}

func cbnweekRoot(cfg Provider) string { return trimRoot(cfg.Link, cbnweekRootURL) }

func (f *cbnweekFetcher) Fetch(ctx context.Context, cfg Provider) ([]domain.ItemStub, error) {
	api := trimRoot(cfg.SourceURL, cbnweekAPIURL)
	raw, err := fetchListing(ctx, f.client, api+"/v4/first_page_infos?per=1", cbnweekProviderID, f.headers(cfg), cfg.Resolve(f.Profile()).ListPolicy)
	if err != nil {
		return nil, err
	}

	stubs, err := parseCBNWeekListing(raw, cbnweekRoot(cfg), limitFor(cfg, 0))
	if err != nil {
		return nil, err
	}
	if len(stubs) == 0 {
		return nil, fmt.Errorf("cbnweek listing returned no records")
	}
	return stubs, nil
}

func parseCBNWeekListing(raw []byte, root string, limit int) ([]domain.ItemStub, error) {
	var page cbnweekFirstPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("decode cbnweek listing: %w", err)
	}

	stubs := make([]domain.ItemStub, 0, len(page.Data))
	for _, block := range page.Data {
		if limit > 0 && len(stubs) >= limit {
			break
		}
		if len(block.Data) == 0 {
			continue
		}
		post := block.Data[0]
		id := post.ID.String()
		if id == "" {
			continue
		}

		authors := make([]string, 0, len(post.Authors))
		for _, a := range post.Authors {
			if n := strings.TrimSpace(a.Name); n != "" {
				authors = append(authors, n)
			}
		}
		var topics []string
		for _, t := range post.Topics {
			if n := strings.TrimSpace(t.Name); n != "" {
				topics = append(topics, n)
			}
		}

		stubs = append(stubs, domain.ItemStub{
			ID:          id,
			Title:       strings.TrimSpace(post.Title),
			Link:        root + "/article_detail/" + id,
			PublishedAt: dates.ParseIn(post.DisplayTime.String(), chinaStandardTime),
			Author:      strings.Join(authors, ", "),
			Categories:  topics,
		})
	}
	return stubs, nil
}

// Detail fetches the article body from the API by id.
func (f *cbnweekFetcher) Detail(ctx context.Context, cfg Provider, stub domain.ItemStub, get DetailGetter) (domain.EnrichedItem, error) {
	api := trimRoot(cfg.SourceURL, cbnweekAPIURL)
	body, err := get(ctx, api+"/v4/articles/"+stub.ID, f.headers(cfg))
	if err != nil {
		return domain.EnrichedItem{}, err
	}

	var article cbnweekArticle
	if err := json.Unmarshal(body, &article); err != nil {
		return domain.EnrichedItem{}, fmt.Errorf("decode cbnweek article %s: %w", stub.ID, ErrParse)
	}
	content := sanitize.Sanitize(article.Data.Content)
	if strings.TrimSpace(content) == "" {
		return domain.EnrichedItem{}, fmt.Errorf("cbnweek article %s has no content: %w", stub.ID, ErrParse)
	}

	return domain.EnrichedItem{ItemStub: stub, Description: content}, nil
}
