// Package seed populates a running book review instance through its public
// HTTP API, so every seeded rating goes through submission and aggregation.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/utafrali/BookReviewGo/internal/domain"
	apperrors "github.com/utafrali/BookReviewGo/pkg/errors"
	"github.com/utafrali/BookReviewGo/pkg/httpclient"
)

// Report summarizes a seeding run.
type Report struct {
	Users   int `json:"users"`
	Books   int `json:"books"`
	Reviews int `json:"reviews"`
	Skipped int `json:"skipped"`
}

type reader struct {
	id    string
	token string
}

// Seeder drives the API to create readers, books and reviews.
type Seeder struct {
	cfg    *Config
	api    *apiClient
	rng    *rand.Rand
	logger *slog.Logger
}

// New creates a Seeder calling cfg.APIURL through doer.
func New(cfg *Config, doer httpclient.Doer, logger *slog.Logger) *Seeder {
	return &Seeder{
		cfg:    cfg,
		api:    newAPIClient(cfg.APIURL, doer),
		rng:    rand.New(rand.NewPCG(cfg.RandomSeed, cfg.RandomSeed^0x9e3779b97f4a7c15)),
		logger: logger,
	}
}

// Run seeds readers, then books, then reviews. It stops at the first error
// other than an already reviewed book.
func (s *Seeder) Run(ctx context.Context) (*Report, error) {
	if err := s.api.ready(ctx); err != nil {
		return nil, fmt.Errorf("api not ready: %w", err)
	}

	readers, err := s.registerReaders(ctx)
	if err != nil {
		return nil, err
	}

	books, err := s.createBooks(ctx, readers)
	if err != nil {
		return &Report{Users: len(readers)}, err
	}

	reviews, skipped, err := s.submitReviews(ctx, readers, books)
	report := &Report{Users: len(readers), Books: len(books), Reviews: reviews, Skipped: skipped}
	if err != nil {
		return report, err
	}

	s.logger.Info("seeding complete",
		slog.Int("users", report.Users),
		slog.Int("books", report.Books),
		slog.Int("reviews", report.Reviews),
		slog.Int("skipped", report.Skipped),
	)
	return report, nil
}

// registerReaders signs up the configured readers. A reader left over from a
// previous run logs in instead.
func (s *Seeder) registerReaders(ctx context.Context) ([]reader, error) {
	readers := make([]reader, 0, s.cfg.Users)
	for i := 0; i < s.cfg.Users; i++ {
		name, email := readerAt(i)

		auth, err := s.api.register(ctx, name, email, s.cfg.Password)
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			s.logger.Debug("reader exists, logging in", slog.String("email", email))
			auth, err = s.api.login(ctx, email, s.cfg.Password)
		}
		if err != nil {
			return nil, fmt.Errorf("seed reader %s: %w", email, err)
		}

		readers = append(readers, reader{id: auth.User.ID, token: auth.AccessToken})
	}
	s.logger.Info("readers ready", slog.Int("count", len(readers)))
	return readers, nil
}

// createBooks adds the catalogue round-robin across readers.
func (s *Seeder) createBooks(ctx context.Context, readers []reader) ([]*domain.Book, error) {
	books := make([]*domain.Book, 0, s.cfg.Books)
	for i := 0; i < s.cfg.Books; i++ {
		entry := bookAt(i)
		owner := readers[i%len(readers)]

		book, err := s.api.createBook(ctx, owner.token, entry)
		if err != nil {
			return books, fmt.Errorf("seed book %q: %w", entry.Title, err)
		}
		s.logger.Debug("book created", slog.String("book_id", book.ID), slog.String("owner", owner.id))
		books = append(books, book)
	}
	s.logger.Info("books created", slog.Int("count", len(books)))
	return books, nil
}

// submitReviews gives each book reviews from distinct readers.
func (s *Seeder) submitReviews(ctx context.Context, readers []reader, books []*domain.Book) (int, int, error) {
	var submitted, skipped int
	perBook := min(s.cfg.ReviewsPerBook, len(readers))

	for bi, book := range books {
		for j := 0; j < perBook; j++ {
			author := readers[(bi+1+j)%len(readers)]
			rating := s.rng.IntN(domain.MaxRating-domain.MinRating+1) + domain.MinRating
			text := reviewTexts[s.rng.IntN(len(reviewTexts))]

			_, err := s.api.submitReview(ctx, author.token, book.ID, rating, text)
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) && appErr.Code == domain.ErrCodeDuplicateReview {
				skipped++
				continue
			}
			if err != nil {
				return submitted, skipped, fmt.Errorf("seed review on %s: %w", book.ID, err)
			}
			submitted++
		}
	}
	s.logger.Info("reviews submitted", slog.Int("count", submitted), slog.Int("skipped", skipped))
	return submitted, skipped, nil
}
