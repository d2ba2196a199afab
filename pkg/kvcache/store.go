package kvcache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Store provides best-effort access to the shared response cache.
//
// Every read returns (value, ok); every write is fire-and-forget. Redis
// errors are counted and logged at debug level but never returned, since
// the cache is an optimization and its unavailability must only force an
// unconditional request.
type Store struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

// NewStore creates a store on top of an existing Redis client. The
// client's connection pool is shared across all concurrent callers.
func NewStore(rdb *redis.Client, logger zerolog.Logger) *Store {
	if rdb == nil {
		panic("kvcache: redis client cannot be nil")
	}
	return &Store{
		rdb:    rdb,
		logger: logger,
	}
}

// Body returns the previously cached response body for an identity.
func (s *Store) Body(ctx context.Context, identity string) ([]byte, bool) {
	body, err := s.rdb.Get(ctx, jsonKey(identity)).Bytes()
	if err != nil {
		s.miss(identity, "json", err)
		return nil, false
	}

	cacheHits.WithLabelValues("json").Inc()
	return body, true
}

// ETag returns the previously cached validator for an identity.
func (s *Store) ETag(ctx context.Context, identity string) (string, bool) {
	etag, err := s.rdb.Get(ctx, etagKey(identity)).Result()
	if err != nil {
		s.miss(identity, "etag", err)
		return "", false
	}

	cacheHits.WithLabelValues("etag").Inc()
	return etag, true
}

// PageCount returns the previously cached total page count for an
// identity. A stored value that is not an integer reads as a miss.
func (s *Store) PageCount(ctx context.Context, identity string) (int, bool) {
	raw, err := s.rdb.Get(ctx, pagesKey(identity)).Result()
	if err != nil {
		s.miss(identity, "pages", err)
		return 0, false
	}

	pages, err := strconv.Atoi(raw)
	if err != nil {
		s.miss(identity, "pages", err)
		return 0, false
	}

	cacheHits.WithLabelValues("pages").Inc()
	return pages, true
}

// SaveBody stores a response body and its validator under an identity,
// both with the same TTL. Non-positive TTLs are not written.
func (s *Store) SaveBody(ctx context.Context, identity string, body []byte, etag string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, jsonKey(identity), body, ttl)
	pipe.Set(ctx, etagKey(identity), etag, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		s.logger.Debug().Err(err).Str("identity", identity).Msg("cache write absorbed")
	}
}

// SavePage stores a paginated identity's first-page body, validator, and
// total page count, all with the same TTL. Non-positive TTLs are not
// written.
func (s *Store) SavePage(ctx context.Context, identity string, body []byte, etag string, pages int, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, jsonKey(identity), body, ttl)
	pipe.Set(ctx, pagesKey(identity), strconv.Itoa(pages), ttl)
	pipe.Set(ctx, etagKey(identity), etag, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		s.logger.Debug().Err(err).Str("identity", identity).Msg("cache write absorbed")
	}
}

// miss records a read that produced nothing, distinguishing plain misses
// from absorbed store errors.
func (s *Store) miss(identity, kind string, err error) {
	cacheMisses.WithLabelValues(kind).Inc()
	if err != redis.Nil {
		cacheErrors.WithLabelValues("get").Inc()
		s.logger.Debug().Err(err).Str("identity", identity).Str("kind", kind).Msg("cache read absorbed")
	}
}
