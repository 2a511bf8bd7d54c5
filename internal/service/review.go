package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/BookReviewGo/internal/domain"
	"github.com/utafrali/BookReviewGo/internal/event"
	"github.com/utafrali/BookReviewGo/internal/repository"
	apperrors "github.com/utafrali/BookReviewGo/pkg/errors"
)

// SubmitReviewInput holds the parameters for submitting a review.
type SubmitReviewInput struct {
	BookID     string
	UserID     string
	Rating     int
	ReviewText string
}

// AmendReviewInput holds the fields an author may change. Nil fields are left
// as they are.
type AmendReviewInput struct {
	Rating     *int
	ReviewText *string
}

// BookReviews is the review listing of one book.
type BookReviews struct {
	Reviews []domain.ReviewWithAuthor `json:"reviews"`
	Summary domain.RatingSummary      `json:"summary"`
}

// ReviewService guards the one-review-per-(book, user) rule and triggers a
// rating recomputation after every committed change that affects the average.
type ReviewService struct {
	reviews    repository.ReviewRepository
	books      repository.BookRepository
	aggregator Recomputer
	producer   *event.Producer
	logger     *slog.Logger
}

// NewReviewService creates a new review service.
func NewReviewService(
	reviews repository.ReviewRepository,
	books repository.BookRepository,
	aggregator Recomputer,
	producer *event.Producer,
	logger *slog.Logger,
) *ReviewService {
	return &ReviewService{
		reviews:    reviews,
		books:      books,
		aggregator: aggregator,
		producer:   producer,
		logger:     logger,
	}
}

// Submit creates a review of an existing book. A second review of the same
// book by the same user fails with DUPLICATE_REVIEW.
func (s *ReviewService) Submit(ctx context.Context, input *SubmitReviewInput) (*domain.Review, error) {
	if err := domain.ValidateRating(input.Rating); err != nil {
		return nil, err
	}
	text, err := domain.NormalizeReviewText(input.ReviewText)
	if err != nil {
		return nil, err
	}

	if _, err := s.books.GetByID(ctx, input.BookID); err != nil {
		return nil, fmt.Errorf("get book for review: %w", err)
	}

	// Advisory only; the store enforces the pair at insert time.
	_, err = s.reviews.GetByBookAndUser(ctx, input.BookID, input.UserID)
	switch {
	case err == nil:
		return nil, domain.DuplicateReview()
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, fmt.Errorf("check existing review: %w", err)
	}

	now := time.Now().UTC()
	review := &domain.Review{
		ID:         uuid.New().String(),
		BookID:     input.BookID,
		UserID:     input.UserID,
		Rating:     input.Rating,
		ReviewText: text,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.reviews.Create(ctx, review); err != nil {
		if errors.Is(err, domain.ErrDuplicateReview) {
			return nil, domain.DuplicateReview()
		}
		return nil, fmt.Errorf("create review: %w", err)
	}
	reviewMutationsTotal.WithLabelValues("submit").Inc()

	s.logger.InfoContext(ctx, "review submitted",
		slog.String("review_id", review.ID),
		slog.String("book_id", review.BookID),
		slog.String("user_id", review.UserID),
		slog.Int("rating", review.Rating),
	)

	s.aggregator.Recompute(ctx, review.BookID)

	if err := s.producer.PublishReviewSubmitted(ctx, review); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish review.submitted event",
			slog.String("review_id", review.ID),
			slog.String("error", err.Error()),
		)
	}

	return review, nil
}

// Amend applies the author's changes to a review. The average is recomputed
// only when the rating changed.
func (s *ReviewService) Amend(ctx context.Context, reviewID, byUserID string, input *AmendReviewInput) (*domain.Review, error) {
	review, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	if !review.WrittenBy(byUserID) {
		return nil, apperrors.Forbidden("only the author can modify this review")
	}

	var previousRating *int
	changed := false

	if input.Rating != nil && *input.Rating != review.Rating {
		if err := domain.ValidateRating(*input.Rating); err != nil {
			return nil, err
		}
		prev := review.Rating
		previousRating = &prev
		review.Rating = *input.Rating
		changed = true
	}
	if input.ReviewText != nil {
		text, err := domain.NormalizeReviewText(*input.ReviewText)
		if err != nil {
			return nil, err
		}
		if text != review.ReviewText {
			review.ReviewText = text
			changed = true
		}
	}

	if !changed {
		return review, nil
	}

	review.UpdatedAt = time.Now().UTC()
	if err := s.reviews.Update(ctx, review); err != nil {
		return nil, fmt.Errorf("update review: %w", err)
	}
	reviewMutationsTotal.WithLabelValues("amend").Inc()

	s.logger.InfoContext(ctx, "review amended",
		slog.String("review_id", review.ID),
		slog.String("book_id", review.BookID),
		slog.Bool("rating_changed", previousRating != nil),
	)

	if previousRating != nil {
		s.aggregator.Recompute(ctx, review.BookID)
	}

	if err := s.producer.PublishReviewAmended(ctx, review, previousRating); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish review.amended event",
			slog.String("review_id", review.ID),
			slog.String("error", err.Error()),
		)
	}

	return review, nil
}

// Retract removes a review on behalf of its author.
func (s *ReviewService) Retract(ctx context.Context, reviewID, byUserID string) error {
	review, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return fmt.Errorf("get review: %w", err)
	}
	if !review.WrittenBy(byUserID) {
		return apperrors.Forbidden("only the author can delete this review")
	}

	if err := s.reviews.Delete(ctx, review.ID); err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	reviewMutationsTotal.WithLabelValues("retract").Inc()

	s.logger.InfoContext(ctx, "review retracted",
		slog.String("review_id", review.ID),
		slog.String("book_id", review.BookID),
	)

	s.aggregator.Recompute(ctx, review.BookID)

	if err := s.producer.PublishReviewRetracted(ctx, review); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish review.retracted event",
			slog.String("review_id", review.ID),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

// ListByBook returns a book's reviews, newest first, with a rating summary.
func (s *ReviewService) ListByBook(ctx context.Context, bookID string) (*BookReviews, error) {
	if _, err := s.books.GetByID(ctx, bookID); err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}

	reviews, err := s.reviews.ListByBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("list reviews by book: %w", err)
	}

	ratings := make([]int, len(reviews))
	for i := range reviews {
		ratings[i] = reviews[i].Rating
	}

	return &BookReviews{
		Reviews: reviews,
		Summary: domain.NewRatingSummary(ratings),
	}, nil
}

// ListByUser returns the reviews written by userID, newest first.
func (s *ReviewService) ListByUser(ctx context.Context, userID string) ([]domain.ReviewWithBook, error) {
	reviews, err := s.reviews.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list reviews by user: %w", err)
	}
	return reviews, nil
}
