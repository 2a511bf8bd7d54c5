package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/BookReviewGo/internal/domain"
	"github.com/utafrali/BookReviewGo/internal/repository"
	apperrors "github.com/utafrali/BookReviewGo/pkg/errors"
)

const keyPrefix = "book:"

func versionKey(id string) string { return keyPrefix + id + ":ver" }

// setIfVersion writes KEYS[1] only while the generation in KEYS[2] equals
// ARGV[1]. A missing generation counts as zero.
var setIfVersion = redis.NewScript(`
local cur = redis.call("GET", KEYS[2])
if not cur then cur = "0" end
if cur ~= ARGV[1] then return 0 end
if tonumber(ARGV[3]) > 0 then
  redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
else
  redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

// BookCache implements repository.BookCache using Redis.
type BookCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ repository.BookCache = (*BookCache)(nil)

// NewBookCache creates a Redis-backed book cache. Entries expire after ttl.
func NewBookCache(client *redis.Client, ttl time.Duration) *BookCache {
	return &BookCache{
		client: client,
		ttl:    ttl,
	}
}

// Get returns the cached book, or a NOT_FOUND error on a miss.
func (c *BookCache) Get(ctx context.Context, id string) (*domain.Book, error) {
	data, err := c.client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("cached book", id)
		}
		return nil, fmt.Errorf("redis get book: %w", err)
	}

	var book domain.Book
	if err := json.Unmarshal(data, &book); err != nil {
		return nil, fmt.Errorf("unmarshal book: %w", err)
	}
	return &book, nil
}

// Version returns the invalidation generation of id, zero if it was never
// invalidated.
func (c *BookCache) Version(ctx context.Context, id string) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(id)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get book version: %w", err)
	}
	return v, nil
}

// Set stores book with the configured TTL if its generation is still version.
func (c *BookCache) Set(ctx context.Context, book *domain.Book, version int64) (bool, error) {
	data, err := json.Marshal(book)
	if err != nil {
		return false, fmt.Errorf("marshal book: %w", err)
	}

	stored, err := setIfVersion.Run(ctx, c.client,
		[]string{keyPrefix + book.ID, versionKey(book.ID)},
		strconv.FormatInt(version, 10), data, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis set book: %w", err)
	}
	return stored == 1, nil
}

// Invalidate drops the cached copy of a book and bumps its generation so that
// fills loaded before this call are rejected. Missing keys are not an error.
func (c *BookCache) Invalidate(ctx context.Context, id string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keyPrefix+id)
		pipe.Incr(ctx, versionKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate book: %w", err)
	}
	return nil
}
