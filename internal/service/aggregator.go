package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/utafrali/BookReviewGo/internal/domain"
	"github.com/utafrali/BookReviewGo/internal/event"
	"github.com/utafrali/BookReviewGo/internal/repository"
	apperrors "github.com/utafrali/BookReviewGo/pkg/errors"
)

const aggregatorStripes = 64

// Recomputer refreshes the cached average rating of a book.
type Recomputer interface {
	Recompute(ctx context.Context, bookID string)
}

// RatingAggregator keeps Book.AverageRating consistent with the book's live
// review set. Stores implementing repository.AverageRecomputer serialize
// recomputations of a book across replicas. Other stores fall back to a
// per-book lock, which orders recomputations within this process only.
type RatingAggregator struct {
	books    repository.BookRepository
	reviews  repository.ReviewRepository
	cache    repository.BookCache
	producer *event.Producer
	logger   *slog.Logger

	stripes [aggregatorStripes]sync.Mutex
}

var _ Recomputer = (*RatingAggregator)(nil)

// NewRatingAggregator creates a new aggregator. cache may be nil.
func NewRatingAggregator(
	books repository.BookRepository,
	reviews repository.ReviewRepository,
	cache repository.BookCache,
	producer *event.Producer,
	logger *slog.Logger,
) *RatingAggregator {
	if cache == nil {
		cache = nopBookCache{}
	}
	return &RatingAggregator{
		books:    books,
		reviews:  reviews,
		cache:    cache,
		producer: producer,
		logger:   logger,
	}
}

// Recompute reads every rating referencing bookID and writes their mean to the
// book. Failures are logged and never returned: the review mutation that
// triggered the call has already been committed.
func (a *RatingAggregator) Recompute(ctx context.Context, bookID string) {
	// The triggering request may already be finishing.
	ctx = context.WithoutCancel(ctx)

	avg, count, err := a.recompute(ctx, bookID)
	switch {
	case err == nil:
		ratingRecomputationsTotal.WithLabelValues(outcomeOK).Inc()
	case errors.Is(err, apperrors.ErrNotFound):
		ratingRecomputationsTotal.WithLabelValues(outcomeOrphaned).Inc()
		a.logger.WarnContext(ctx, "orphaned rating: book not found, average not updated",
			slog.String("book_id", bookID),
			slog.Int("review_count", count),
		)
		return
	default:
		ratingRecomputationsTotal.WithLabelValues(outcomeError).Inc()
		a.logger.ErrorContext(ctx, "failed to recompute average rating",
			slog.String("book_id", bookID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := a.cache.Invalidate(ctx, bookID); err != nil {
		a.logger.WarnContext(ctx, "failed to invalidate cached book",
			slog.String("book_id", bookID),
			slog.String("error", err.Error()),
		)
	}

	if err := a.producer.PublishRatingRecomputed(ctx, bookID, avg, count); err != nil {
		a.logger.ErrorContext(ctx, "failed to publish book.rating_recomputed event",
			slog.String("book_id", bookID),
			slog.String("error", err.Error()),
		)
	}

	a.logger.DebugContext(ctx, "average rating recomputed",
		slog.String("book_id", bookID),
		slog.Float64("average_rating", avg),
		slog.Int("review_count", count),
	)
}

func (a *RatingAggregator) recompute(ctx context.Context, bookID string) (float64, int, error) {
	if store, ok := a.books.(repository.AverageRecomputer); ok {
		avg, count, err := store.RecomputeAverageRating(ctx, bookID)
		if err != nil {
			return avg, count, fmt.Errorf("recompute average rating: %w", err)
		}
		return avg, count, nil
	}

	mu := a.stripe(bookID)
	mu.Lock()
	defer mu.Unlock()

	ratings, err := a.reviews.RatingsForBook(ctx, bookID)
	if err != nil {
		return 0, 0, fmt.Errorf("read ratings: %w", err)
	}

	avg := domain.MeanRating(ratings)
	if err := a.books.SetAverageRating(ctx, bookID, avg); err != nil {
		return avg, len(ratings), fmt.Errorf("write average rating: %w", err)
	}
	return avg, len(ratings), nil
}

func (a *RatingAggregator) stripe(bookID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(bookID))
	return &a.stripes[h.Sum32()%aggregatorStripes]
}

// nopBookCache is used when the Redis cache is disabled.
type nopBookCache struct{}

func (nopBookCache) Get(_ context.Context, id string) (*domain.Book, error) {
	return nil, apperrors.NotFound("cached book", id)
}

func (nopBookCache) Version(context.Context, string) (int64, error) { return 0, nil }

func (nopBookCache) Set(context.Context, *domain.Book, int64) (bool, error) { return false, nil }

func (nopBookCache) Invalidate(context.Context, string) error { return nil }
