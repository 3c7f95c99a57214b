package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Adda-Baaj/taja-feed/internal/domain"
	"github.com/Adda-Baaj/taja-feed/internal/logger"
	"github.com/Adda-Baaj/taja-feed/pkg/feedgen"
)

// Runner builds feeds. *crawler.Pipeline satisfies it.
type Runner interface {
	Sources() []string
	Run(ctx context.Context, id string, overrides map[string]string) (domain.Feed, error)
}

// FeedPublisher forwards built feeds downstream. *publishers.Dispatcher
// satisfies it.
type FeedPublisher interface {
	PublishFeed(ctx context.Context, feed domain.Feed) error
}

// Options configures the periodic job.
type Options struct {
	Spec      string
	OutputDir string
	Format    feedgen.Format
	// Sources to run; empty runs every runnable source.
	Sources []string
	// RunTimeout bounds one source run.
	RunTimeout time.Duration
}

type Scheduler struct {
	cron      *cron.Cron
	runner    Runner
	publisher FeedPublisher
	opts      Options
	log       logger.Logger
}

// New registers the job; publisher may be nil.
func New(opts Options, runner Runner, publisher FeedPublisher, log logger.Logger) (*Scheduler, error) {
	log = logger.Ensure(log)
	if opts.Format == "" {
		opts.Format = feedgen.FormatRSS
	}

	cl := cronLogger{log: log}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	s := &Scheduler{cron: c, runner: runner, publisher: publisher, opts: opts, log: log}
	if _, err := c.AddFunc(opts.Spec, func() { _ = s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", opts.Spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling and returns a context done once a running job ends.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }

// RunOnce builds every selected source concurrently, writes the rendered
// feeds and publishes them. A failing source does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	sources := s.opts.Sources
	if len(sources) == 0 {
		sources = s.runner.Sources()
	}
	s.log.InfoObj("scheduled run started", "schedule_start", map[string]any{"sources": sources})

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, id := range sources {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.runSource(ctx, id); err != nil {
				s.log.ErrorObj("scheduled source failed", "schedule_source_error", map[string]any{
					"provider_id": id,
					"error":       err.Error(),
				})
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.log.InfoObj("scheduled run done", "schedule_done", map[string]any{
		"sources": len(sources),
		"failed":  len(errs),
	})
	return errors.Join(errs...)
}

func (s *Scheduler) runSource(ctx context.Context, id string) error {
	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}

	feed, err := s.runner.Run(ctx, id, nil)
	if err != nil {
		return err
	}

	var errs []error
	if s.opts.OutputDir != "" {
		if err := s.writeFeed(feed); err != nil {
			errs = append(errs, err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishFeed(ctx, feed); err != nil {
			errs = append(errs, fmt.Errorf("publish: %w", err))
		}
	}
	return errors.Join(errs...)
}

// writeFeed renders feed into OutputDir/<id><ext>, replacing the previous
// file atomically.
func (s *Scheduler) writeFeed(feed domain.Feed) error {
	body, err := feedgen.Render(feed, s.opts.Format)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if err := os.MkdirAll(s.opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	final := filepath.Join(s.opts.OutputDir, feed.SourceID+s.opts.Format.Ext())
	tmp, err := os.CreateTemp(s.opts.OutputDir, "."+feed.SourceID+"-*")
	if err != nil {
		return fmt.Errorf("create temp feed: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		return fmt.Errorf("write feed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close feed: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return fmt.Errorf("replace feed: %w", err)
	}

	s.log.InfoObj("feed written", "feed_written", map[string]any{
		"provider_id": feed.SourceID,
		"path":        final,
		"items":       len(feed.Items),
	})
	return nil
}

// cronLogger adapts the service logger to cron's logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.DebugObj(msg, "cron", kv(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	obj := kv(keysAndValues)
	obj["error"] = err.Error()
	l.log.ErrorObj(msg, "cron_error", obj)
}

func kv(pairs []any) map[string]any {
	out := make(map[string]any, len(pairs)/2+1)
	for i := 0; i+1 < len(pairs); i += 2 {
		out[fmt.Sprint(pairs[i])] = pairs[i+1]
	}
	return out
}
