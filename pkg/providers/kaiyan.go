package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/Adda-Baaj/taja-feed/internal/domain"
	"github.com/Adda-Baaj/taja-feed/pkg/dates"
	"github.com/Adda-Baaj/taja-feed/pkg/sanitize"
)

const (
	kaiyanProviderID    = "kaiyan"
	kaiyanAPIURL        = "https://baobab.kaiyanapp.com/api/v5/index/tab/allRec"
	kaiyanDefaultAuthor = "开眼每日精选"
)

// kaiyanFetcher reads the daily video selection. Everything needed for an
// item is already in the listing, so Detail renders locally.
type kaiyanFetcher struct {
	client HTTPClient
}

// NewKaiyanFetcher builds a fetcher for the Kaiyan video catalog.
func NewKaiyanFetcher(client HTTPClient) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &kaiyanFetcher{client: client}
}

func (f *kaiyanFetcher) ID() string {
	return kaiyanProviderID
}

func (f *kaiyanFetcher) Profile() Profile {
	return Profile{
		Title:       "开眼精选",
		Link:        "https://www.kaiyanapp.com/",
		Description: "开眼每日精选",
		Mode:        ModeParallel,
	}
}

type kaiyanResponse struct {
	ItemList []struct {
		Data struct {
			ItemList []kaiyanCard `json:"itemList"`
		} `json:"data"`
	} `json:"itemList"`
}

type kaiyanCard struct {
	Type string `json:"type"`
	Data struct {
		Header struct {
			Time flexString `json:"time"`
		} `json:"header"`
		Content struct {
			Data struct {
				Title       string `json:"title"`
				PlayURL     string `json:"playUrl"`
				Description string `json:"description"`
				Cover       struct {
					Feed string `json:"feed"`
				} `json:"cover"`
				Author *struct {
					Name string `json:"name"`
				} `json:"author"`
			} `json:"data"`
		} `json:"content"`
	} `json:"data"`
}

func (f *kaiyanFetcher) Fetch(ctx context.Context, cfg Provider) ([]domain.ItemStub, error) {
	api := firstNonEmpty(cfg.SourceURL, kaiyanAPIURL)
	raw, err := fetchListing(ctx, f.client, api, kaiyanProviderID, Headers(cfg, nil), cfg.Resolve(f.Profile()).ListPolicy)
	if err != nil {
		return nil, err
	}

	stubs, err := parseKaiyanListing(raw, limitFor(cfg, 0))
	if err != nil {
		return nil, err
	}
	if len(stubs) == 0 {
		return nil, fmt.Errorf("kaiyan listing returned no records")
	}
	return stubs, nil
}

func parseKaiyanListing(raw []byte, limit int) ([]domain.ItemStub, error) {
	var resp kaiyanResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode kaiyan listing: %w", err)
	}
	if len(resp.ItemList) == 0 {
		return nil, fmt.Errorf("kaiyan listing has no item list: %w", ErrParse)
	}

	var stubs []domain.ItemStub
	for _, card := range resp.ItemList[0].Data.ItemList {
		if limit > 0 && len(stubs) >= limit {
			break
		}
		if card.Type != "followCard" {
			continue
		}
		video := card.Data.Content.Data
		playURL := strings.TrimSpace(video.PlayURL)
		if playURL == "" {
			continue
		}

		author := kaiyanDefaultAuthor
		if video.Author != nil && strings.TrimSpace(video.Author.Name) != "" {
			author = strings.TrimSpace(video.Author.Name)
		}

		stubs = append(stubs, domain.ItemStub{
			ID:          hashURL(playURL),
			Title:       strings.TrimSpace(video.Title),
			Link:        playURL,
			PublishedAt: dates.Parse(card.Data.Header.Time.String()),
			Author:      author,
			Extra: map[string]string{
				"description": video.Description,
				"cover":       strings.TrimSpace(video.Cover.Feed),
			},
		})
	}
	return stubs, nil
}

// kaiyanSpeed returns the playback speed param, clamped to [0.25, 4] with
// 1 as the default for anything out of range.
func kaiyanSpeed(cfg Provider) float64 {
	speed, err := strconv.ParseFloat(cfg.Param("speed", "1"), 64)
	if err != nil || speed < 0.25 || speed > 4 {
		return 1
	}
	return speed
}

// CacheKey includes the speed since it is baked into the description.
func (f *kaiyanFetcher) CacheKey(cfg Provider, stub domain.ItemStub) string {
	return stub.Link + "#speed=" + strconv.FormatFloat(kaiyanSpeed(cfg), 'g', -1, 64)
}

func (f *kaiyanFetcher) Detail(_ context.Context, cfg Provider, stub domain.ItemStub, _ DetailGetter) (domain.EnrichedItem, error) {
	speed := strconv.FormatFloat(kaiyanSpeed(cfg), 'g', -1, 64)
	src := html.EscapeString(stub.Link)

	var b strings.Builder
	b.WriteString(html.EscapeString(stub.Extra["description"]))
	if cover := stub.Extra["cover"]; cover != "" {
		b.WriteString(`<br/><img src="` + html.EscapeString(cover) + `" />`)
	}
	b.WriteString(`<br/><video src="` + src + `" controls="controls" playbackRate="` + speed +
		`" defaultPlaybackRate="` + speed + `"></video>`)

	return domain.EnrichedItem{ItemStub: stub, Description: sanitize.Sanitize(b.String())}, nil
}
