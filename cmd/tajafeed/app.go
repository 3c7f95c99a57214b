package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Adda-Baaj/taja-feed/internal/config"
	"github.com/Adda-Baaj/taja-feed/internal/crawler"
	"github.com/Adda-Baaj/taja-feed/internal/domain"
	"github.com/Adda-Baaj/taja-feed/internal/logger"
	"github.com/Adda-Baaj/taja-feed/internal/memo"
	"github.com/Adda-Baaj/taja-feed/pkg/httpclient"
	"github.com/Adda-Baaj/taja-feed/pkg/providers"
	"github.com/Adda-Baaj/taja-feed/pkg/publishers"
)

// app holds the process wide collaborators. The memo cache lives here for
// the process lifetime and is passed down explicitly.
type app struct {
	cfg        config.Config
	log        logger.Logger
	pipeline   *crawler.Pipeline
	dispatcher *publishers.Dispatcher
	closers    []func() error
}

func newApp(ctx context.Context, opts config.Options) (*app, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}
	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	store, err := a.cacheStore()
	if err != nil {
		return err
	}
	cacheOpts := []memo.Option{memo.WithLogger(a.log)}
	if store != nil {
		cacheOpts = append(cacheOpts, memo.WithStore(store))
	}
	cache := memo.New[domain.EnrichedItem](a.cfg.Cache.TTL, cacheOpts...)

	client := httpclient.NewRestyClientWithAgent(a.cfg.HTTP.Timeout, a.cfg.HTTP.UserAgent)
	enricher := crawler.NewEnricher(client, cache, a.log)

	var sources crawler.SourceLookup
	if a.cfg.SourcesFile != "" {
		reg, err := providers.LoadConfig(a.cfg.SourcesFile)
		if err != nil {
			return err
		}
		sources = reg
	}
	a.pipeline = crawler.NewPipeline(sources, providers.DefaultFetcherRegistry(client), enricher, a.log)

	if a.cfg.PublishersFile != "" {
		reg, err := publishers.LoadRegistry(a.cfg.PublishersFile)
		if err != nil {
			return err
		}
		dispatcher, err := publishers.DefaultBuilders().Dispatcher(ctx, reg.Enabled(), a.log)
		if err != nil {
			return fmt.Errorf("build publishers: %w", err)
		}
		a.dispatcher = dispatcher
		a.closers = append(a.closers, a.dispatcher.Close)
	}
	return nil
}

func (a *app) cacheStore() (memo.Store, error) {
	switch a.cfg.Cache.Backend {
	case config.CacheBolt:
		store, err := memo.OpenBolt(a.cfg.Cache.BoltPath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		a.log.InfoObj("cache backed by bolt", "cache_backend", map[string]any{"path": a.cfg.Cache.BoltPath})
		return store, nil
	case config.CacheRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Cache.RedisAddr,
			Password: a.cfg.Cache.RedisPassword,
			DB:       a.cfg.Cache.RedisDB,
		})
		a.closers = append(a.closers, client.Close)
		a.log.InfoObj("cache backed by redis", "cache_backend", map[string]any{"addr": a.cfg.Cache.RedisAddr})
		return memo.NewRedisStore(client, a.cfg.Cache.RedisPrefix), nil
	default:
		return nil, nil
	}
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	_ = a.log.Sync()
	return errors.Join(errs...)
}
