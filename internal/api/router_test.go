package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Adda-Baaj/taja-feed/internal/crawler"
	"github.com/Adda-Baaj/taja-feed/internal/domain"
	"github.com/Adda-Baaj/taja-feed/internal/logger"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeRunner struct {
	overrides map[string]string
}

func (f *fakeRunner) Sources() []string { return []string{"kaiyan", "sukebei"} }

func (f *fakeRunner) Run(_ context.Context, id string, overrides map[string]string) (domain.Feed, error) {
	f.overrides = overrides
	switch id {
	case "sukebei":
		return domain.Feed{
			SourceID: id,
			Meta:     domain.FeedMeta{Title: "Sukebei", Link: "https://sukebei.example"},
			Built:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Items: []domain.EnrichedItem{
				{ItemStub: domain.ItemStub{ID: "1", Title: "One", Link: "https://sukebei.example/1"}, Description: "ok"},
				domain.Degrade(domain.ItemStub{ID: "2", Title: "Two", Link: "https://sukebei.example/2"}, "fallback"),
			},
		}, nil
	case "broken":
		return domain.Feed{}, &crawler.ListingError{SourceID: id, Err: errors.New("status 503")}
	case "panic":
		return domain.Feed{}, errors.New("unexpected")
	default:
		return domain.Feed{}, crawler.ErrUnknownSource
	}
}

func serve(t *testing.T, runner FeedRunner, target string) *httptest.ResponseRecorder {
	t.Helper()
	r := NewServer(runner, logger.NopLogger{}, time.Second).NewRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestHealth(t *testing.T) {
	t.Parallel()

	w := serve(t, &fakeRunner{}, "/health")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("health = %d %s", w.Code, w.Body.String())
	}
}

func TestListFeeds(t *testing.T) {
	t.Parallel()

	w := serve(t, &fakeRunner{}, "/feeds")
	var resp struct {
		Data []string `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 2 || resp.Data[1] != "sukebei" {
		t.Fatalf("data = %v", resp.Data)
	}
}

func TestFeedRendersAndPassesOverrides(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	w := serve(t, runner, "/feeds/sukebei?format=atom&limit=5&category=1_1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/atom+xml") {
		t.Fatalf("content type = %q", ct)
	}
	if w.Header().Get("X-Feed-Items") != "2" || w.Header().Get("X-Feed-Degraded") != "1" {
		t.Fatalf("headers = %v", w.Header())
	}
	if runner.overrides["limit"] != "5" || runner.overrides["category"] != "1_1" {
		t.Fatalf("overrides = %v", runner.overrides)
	}
	if _, ok := runner.overrides["format"]; ok {
		t.Fatalf("format must not be forwarded as a source param")
	}
}

func TestFeedErrorStatuses(t *testing.T) {
	t.Parallel()

	cases := map[string]int{
		"/feeds/missing":            http.StatusNotFound,
		"/feeds/broken":             http.StatusBadGateway,
		"/feeds/panic":              http.StatusInternalServerError,
		"/feeds/sukebei?format=xml": http.StatusBadRequest,
	}
	for target, want := range cases {
		if w := serve(t, &fakeRunner{}, target); w.Code != want {
			t.Fatalf("%s: status = %d, want %d", target, w.Code, want)
		}
	}
}
