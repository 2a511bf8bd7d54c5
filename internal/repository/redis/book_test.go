package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/BookReviewGo/internal/domain"
	apperrors "github.com/utafrali/BookReviewGo/pkg/errors"
)

func setupTestRedis(t *testing.T) (*BookCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewBookCache(client, 10*time.Minute), mr
}

func sampleBook() *domain.Book {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.Book{
		ID:            "book-001",
		Title:         "Dune",
		Author:        "Frank Herbert",
		Description:   "Desert planet politics.",
		Genre:         "SciFi",
		Year:          1965,
		AddedBy:       "user-001",
		AverageRating: 3.5,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestBookCache_SetThenGet(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	book := sampleBook()

	stored, err := cache.Set(ctx, book, 0)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.True(t, mr.Exists("book:book-001"))
	assert.Equal(t, 10*time.Minute, mr.TTL("book:book-001"))

	got, err := cache.Get(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, book.Title, got.Title)
	assert.Equal(t, 3.5, got.AverageRating)
	assert.True(t, book.CreatedAt.Equal(got.CreatedAt))
}

func TestBookCache_ReadsRawJSON(t *testing.T) {
	cache, mr := setupTestRedis(t)

	data, err := json.Marshal(sampleBook())
	require.NoError(t, err)
	require.NoError(t, mr.Set("book:book-001", string(data)))

	got, err := cache.Get(context.Background(), "book-001")
	require.NoError(t, err)
	assert.Equal(t, "Frank Herbert", got.Author)
}

func TestBookCache_Miss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	got, err := cache.Get(context.Background(), "nope")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestBookCache_Expiry(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := cache.Set(ctx, sampleBook(), 0)
	require.NoError(t, err)
	mr.FastForward(11 * time.Minute)

	_, err = cache.Get(ctx, "book-001")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestBookCache_CorruptEntry(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("book:book-001", "{broken"))

	_, err := cache.Get(context.Background(), "book-001")
	assert.ErrorContains(t, err, "unmarshal book")
	assert.NotErrorIs(t, err, apperrors.ErrNotFound)
}

func TestBookCache_Invalidate(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := cache.Set(ctx, sampleBook(), 0)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, "book-001"))
	assert.False(t, mr.Exists("book:book-001"))

	v, err := cache.Version(ctx, "book-001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	assert.NoError(t, cache.Invalidate(ctx, "book-001"), "invalidating a missing key is fine")
}

func TestBookCache_SetRejectsStaleVersion(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	before, err := cache.Version(ctx, "book-001")
	require.NoError(t, err)
	assert.Zero(t, before)

	// A rating lands between the miss and the fill.
	require.NoError(t, cache.Invalidate(ctx, "book-001"))

	stored, err := cache.Set(ctx, sampleBook(), before)
	require.NoError(t, err)
	assert.False(t, stored)
	assert.False(t, mr.Exists("book:book-001"))

	now, err := cache.Version(ctx, "book-001")
	require.NoError(t, err)
	stored, err = cache.Set(ctx, sampleBook(), now)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.True(t, mr.Exists("book:book-001"))
}

func TestBookCache_ServerDown(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.SetError("ERR backend unavailable")
	ctx := context.Background()

	_, err := cache.Get(ctx, "book-001")
	assert.ErrorContains(t, err, "redis get book")
	_, err = cache.Version(ctx, "book-001")
	assert.ErrorContains(t, err, "redis get book version")
	_, err = cache.Set(ctx, sampleBook(), 0)
	assert.Error(t, err)
	assert.Error(t, cache.Invalidate(ctx, "book-001"))
}
