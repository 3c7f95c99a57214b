package feedgen

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Adda-Baaj/taja-feed/internal/domain"
)

func sampleFeed() domain.Feed {
	published := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.Feed{
		SourceID: "sukebei",
		Meta:     domain.FeedMeta{Title: "Sukebei", Link: "https://sukebei.example"},
		Built:    published,
		Items: []domain.EnrichedItem{
			{
				ItemStub: domain.ItemStub{
					ID: "1", Title: "First", Link: "https://sukebei.example/view/1",
					PublishedAt: published, Author: "uploader", Categories: []string{"Art", "Anime"},
				},
				Description:   "<p>desc</p>",
				EnclosureURL:  "magnet:?xt=urn:btih:abc",
				EnclosureType: "application/x-bittorrent",
			},
			domain.Degrade(domain.ItemStub{ID: "2", Title: "Second", Link: "https://sukebei.example/view/2"}, "unavailable"),
		},
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	cases := map[string]Format{"": FormatRSS, "RSS": FormatRSS, " atom ": FormatAtom, "json": FormatJSON}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("yaml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestRenderRSSKeepsOrderAndEnclosure(t *testing.T) {
	t.Parallel()

	out, err := Render(sampleFeed(), FormatRSS)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	first := strings.Index(out, "<title>First</title>")
	second := strings.Index(out, "<title>Second</title>")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("items missing or out of order:\n%s", out)
	}
	for _, want := range []string{`type="application/x-bittorrent"`, "<category>Art, Anime</category>", "unavailable"} {
		if !strings.Contains(out, want) {
			t.Fatalf("rss missing %q:\n%s", want, out)
		}
	}
}

func TestRenderAtom(t *testing.T) {
	t.Parallel()

	out, err := Render(sampleFeed(), FormatAtom)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "<feed") || !strings.Contains(out, `rel="enclosure"`) {
		t.Fatalf("unexpected atom output:\n%s", out)
	}
}

func TestRenderJSONCarriesTags(t *testing.T) {
	t.Parallel()

	out, err := Render(sampleFeed(), FormatJSON)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	var doc struct {
		Title string `json:"title"`
		Items []struct {
			Title string   `json:"title"`
			Tags  []string `json:"tags"`
		} `json:"items"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Title != "Sukebei" || len(doc.Items) != 2 {
		t.Fatalf("unexpected doc: %+v", doc)
	}
	if len(doc.Items[0].Tags) != 2 || doc.Items[0].Tags[1] != "Anime" {
		t.Fatalf("tags = %v", doc.Items[0].Tags)
	}
}
