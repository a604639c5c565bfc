// Package registry supplies enrolled descriptors to the verification
// workflow: a plain scan of the store, a Redis read-through cache, and an
// HNSW prefilter.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"classattend/internal/face"
)

// Lister reads every enrolled descriptor, ordered by enrollment time.
type Lister interface {
	ListDescriptors(ctx context.Context) ([]face.Registered, error)
}

// Source is a full registry in enrollment order.
type Source interface {
	All(ctx context.Context) ([]face.Registered, error)
}

// Scan returns the whole registry for every query.
type Scan struct {
	store Lister
}

// NewScan wraps a store.
func NewScan(store Lister) *Scan {
	return &Scan{store: store}
}

// All reads the registry from the store.
func (s *Scan) All(ctx context.Context) ([]face.Registered, error) {
	return s.store.ListDescriptors(ctx)
}

// Candidates ignores the query and returns everything.
func (s *Scan) Candidates(ctx context.Context, _ face.Descriptor) ([]face.Registered, error) {
	return s.All(ctx)
}

// Invalidate is a no-op; every call reads the store.
func (s *Scan) Invalidate(context.Context) {}

// DefaultCacheKey prefixes the Redis keys holding the serialized registry.
const DefaultCacheKey = "attendance:descriptors"

// Cached keeps a JSON copy of the registry in Redis for ttl. Redis
// failures fall through to the source.
//
// Copies live under "<key>:<generation>". Invalidate bumps the generation,
// so a refill that read the store before an invalidation can only write a
// key that no later read looks at.
type Cached struct {
	src    Source
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewCached builds a read-through cache. An empty key uses DefaultCacheKey.
func NewCached(src Source, client *redis.Client, key string, ttl time.Duration) *Cached {
	if key == "" {
		key = DefaultCacheKey
	}
	return &Cached{src: src, client: client, key: key, ttl: ttl}
}

func (c *Cached) genKey() string { return c.key + ":gen" }

func (c *Cached) dataKey(gen int64) string { return fmt.Sprintf("%s:%d", c.key, gen) }

// generation returns the current generation; a missing counter is zero.
func (c *Cached) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// All serves the registry from Redis when present.
func (c *Cached) All(ctx context.Context) ([]face.Registered, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		log.Printf("descriptor cache: generation read failed, reading store: %v", err)
		return c.src.All(ctx)
	}
	key := c.dataKey(gen)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var regs []face.Registered
		if jerr := json.Unmarshal(raw, &regs); jerr == nil {
			return regs, nil
		}
		log.Printf("descriptor cache: discarding unreadable entry %s", key)
	case !errors.Is(err, redis.Nil):
		log.Printf("descriptor cache: get failed, reading store: %v", err)
	}

	regs, err := c.src.All(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(regs)
	if err != nil {
		return nil, fmt.Errorf("encode registry: %w", err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		log.Printf("descriptor cache: set failed: %v", err)
	}
	return regs, nil
}

// Candidates returns the full cached registry.
func (c *Cached) Candidates(ctx context.Context, _ face.Descriptor) ([]face.Registered, error) {
	return c.All(ctx)
}

// Invalidate moves readers to a fresh generation and drops the old copy.
func (c *Cached) Invalidate(ctx context.Context) {
	gen, err := c.client.Incr(ctx, c.genKey()).Result()
	if err != nil {
		log.Printf("descriptor cache: invalidate failed: %v", err)
		return
	}
	if err := c.client.Del(ctx, c.dataKey(gen-1)).Err(); err != nil {
		log.Printf("descriptor cache: drop generation %d failed: %v", gen-1, err)
	}
}

// Indexed narrows each query to its k approximate nearest neighbours before
// the matcher sees them. The index is rebuilt lazily after Invalidate.
type Indexed struct {
	src   Source
	dim   int
	k     int
	index *face.Index

	mu    sync.Mutex
	stale bool
}

// NewIndexed builds an HNSW prefilter over src.
func NewIndexed(src Source, dim, k int) *Indexed {
	if k <= 0 {
		k = 8
	}
	return &Indexed{src: src, dim: dim, k: k, index: face.NewIndex(), stale: true}
}

func (x *Indexed) refresh(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if !x.stale {
		return nil
	}
	regs, err := x.src.All(ctx)
	if err != nil {
		return err
	}
	x.index.Build(regs, x.dim)
	x.stale = false
	log.Printf("descriptor index rebuilt with %d entries", x.index.Len())
	return nil
}

// Candidates returns the nearest enrolled descriptors to query.
func (x *Indexed) Candidates(ctx context.Context, query face.Descriptor) ([]face.Registered, error) {
	if err := x.refresh(ctx); err != nil {
		return nil, err
	}
	return x.index.Nearest(query, x.k), nil
}

// Invalidate marks the index for rebuild on the next query.
func (x *Indexed) Invalidate(context.Context) {
	x.mu.Lock()
	x.stale = true
	x.mu.Unlock()
}
