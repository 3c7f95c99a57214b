package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adda-Baaj/taja-feed/internal/domain"
	"github.com/Adda-Baaj/taja-feed/internal/logger"
	"github.com/Adda-Baaj/taja-feed/pkg/feedgen"
)

type fakeRunner struct{}

func (fakeRunner) Sources() []string { return []string{"good", "bad"} }

func (fakeRunner) Run(_ context.Context, id string, _ map[string]string) (domain.Feed, error) {
	if id == "bad" {
		return domain.Feed{}, errors.New("listing down")
	}
	return domain.Feed{
		SourceID: id,
		Meta:     domain.FeedMeta{Title: "Good", Link: "https://good.example"},
		Built:    time.Now(),
		Items: []domain.EnrichedItem{
			{ItemStub: domain.ItemStub{ID: "1", Title: "Hello", Link: "https://good.example/1"}, Description: "body"},
		},
	}, nil
}

type recordingPublisher struct {
	mu    sync.Mutex
	feeds []string
}

func (p *recordingPublisher) PublishFeed(_ context.Context, feed domain.Feed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.feeds = append(p.feeds, feed.SourceID)
	return nil
}

func TestRunOnceWritesAndPublishes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pub := &recordingPublisher{}
	s, err := New(Options{Spec: "@every 1h", OutputDir: dir, Format: feedgen.FormatRSS}, fakeRunner{}, pub, logger.NopLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = s.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "bad: listing down") {
		t.Fatalf("expected bad source error, got %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "good.xml"))
	if err != nil {
		t.Fatalf("read feed: %v", err)
	}
	if !strings.Contains(string(raw), "<title>Hello</title>") {
		t.Fatalf("unexpected feed file:\n%s", raw)
	}
	if _, err := os.Stat(filepath.Join(dir, "bad.xml")); !os.IsNotExist(err) {
		t.Fatalf("failed source should not write a file: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
	if len(pub.feeds) != 1 || pub.feeds[0] != "good" {
		t.Fatalf("published = %v", pub.feeds)
	}
}

func TestRunOnceUsesSelectedSources(t *testing.T) {
	t.Parallel()

	s, err := New(Options{Spec: "@every 1h", Sources: []string{"good"}}, fakeRunner{}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
}

func TestNewRejectsBadSpec(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{Spec: "every now and then"}, fakeRunner{}, nil, nil); err == nil {
		t.Fatalf("expected spec error")
	}
}
