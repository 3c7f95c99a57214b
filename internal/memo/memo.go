// Package memo is a memoizing, TTL bound cache that runs at most one
// producer per key at a time.
//
// An entry is pending while its producer runs (callers for the same key
// share that flight), ready once the producer returns a value, and expired
// once its TTL has elapsed, at which point the next lookup starts a fresh
// flight. Producer failures are never stored.
package memo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adda-Baaj/taja-feed/internal/logger"
)

// ErrMiss is returned by a Store when the key is absent or expired.
var ErrMiss = errors.New("memo: cache miss")

// Store is an optional second level that outlives the in-process entries
// (bbolt file, redis). It must honour the TTL passed to Set.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Producer builds the value for a key on a miss.
type Producer[V any] func(ctx context.Context) (V, error)

type entry[V any] struct {
	value   V
	readyAt time.Time
}

type options struct {
	store Store
	log   logger.Logger
	now   func() time.Time
}

// Option customizes a Cache.
type Option func(*options)

// WithStore adds a second level store.
func WithStore(s Store) Option { return func(o *options) { o.store = s } }

// WithLogger sets the logger used for store failures.
func WithLogger(l logger.Logger) Option { return func(o *options) { o.log = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// Cache memoizes values of type V by string key.
type Cache[V any] struct {
	ttl   time.Duration
	store Store
	log   logger.Logger
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]entry[V]
	flights singleflight.Group
}

// New builds a Cache. A ttl <= 0 keeps ready entries for the process
// lifetime.
func New[V any](ttl time.Duration, opts ...Option) *Cache[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}
	return &Cache[V]{
		ttl:     ttl,
		store:   o.store,
		log:     logger.Ensure(o.log),
		now:     o.now,
		entries: make(map[string]entry[V]),
	}
}

// TryGet returns the ready value for key, or runs producer to build it.
// Concurrent callers for the same key wait on the same producer call and
// receive its result, success or failure.
func (c *Cache[V]) TryGet(ctx context.Context, key string, producer Producer[V]) (V, error) {
	var zero V
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	// The flight is shared, so it must not die with the caller that started
	// it. Each waiter still leaves on its own ctx below.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(key, func() (any, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		if v, ok := c.load(flightCtx, key); ok {
			c.put(key, v)
			return v, nil
		}

		v, err := runProducer(flightCtx, producer)
		if err != nil {
			return nil, err
		}
		c.put(key, v)
		c.save(flightCtx, key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

// Invalidate drops key from the in-process level.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len reports the number of ready, unexpired entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if !c.expired(e) {
			n++
		}
	}
	return n
}

func (c *Cache[V]) lookup(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.expired(e) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) expired(e entry[V]) bool {
	return c.ttl > 0 && c.now().Sub(e.readyAt) >= c.ttl
}

func (c *Cache[V]) put(key string, v V) {
	c.mu.Lock()
	c.entries[key] = entry[V]{value: v, readyAt: c.now()}
	c.mu.Unlock()
}

func (c *Cache[V]) load(ctx context.Context, key string) (V, bool) {
	var zero V
	if c.store == nil {
		return zero, false
	}
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.log.WarnObj("cache store read failed", "cache_store_error", map[string]any{
				"key":   key,
				"error": err.Error(),
			})
		}
		return zero, false
	}
	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		c.log.WarnObj("cache store value undecodable", "cache_store_error", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
		return zero, false
	}
	return v, true
}

func (c *Cache[V]) save(ctx context.Context, key string, v V) {
	if c.store == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err == nil {
		err = c.store.Set(ctx, key, raw, c.ttl)
	}
	if err != nil {
		c.log.WarnObj("cache store write failed", "cache_store_error", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
	}
}

func runProducer[V any](ctx context.Context, producer Producer[V]) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("memo: producer panic: %v", r)
		}
	}()
	return producer(ctx)
}
