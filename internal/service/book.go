package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/BookReviewGo/internal/domain"
	"github.com/utafrali/BookReviewGo/internal/event"
	"github.com/utafrali/BookReviewGo/internal/repository"
	apperrors "github.com/utafrali/BookReviewGo/pkg/errors"
	"github.com/utafrali/BookReviewGo/pkg/pagination"
)

// DefaultBooksPerPage is the page size of a book listing that does not ask
// for one.
const DefaultBooksPerPage = 5

// CreateBookInput holds the parameters for adding a book.
type CreateBookInput struct {
	Title       string
	Author      string
	Description string
	Genre       string
	Year        int
}

// UpdateBookInput holds the editable fields of a book. Nil fields are left
// unchanged.
type UpdateBookInput struct {
	Title       *string
	Author      *string
	Description *string
	Genre       *string
	Year        *int
}

// ListBooksInput holds the query of a book listing.
type ListBooksInput struct {
	Search  *string
	Genre   *string
	Sort    domain.BookSort
	Page    int
	PerPage int
}

// BookService implements the business logic for the book catalog.
type BookService struct {
	books    repository.BookRepository
	reviews  repository.ReviewRepository
	cache    repository.BookCache
	index    repository.BookIndex
	producer *event.Producer
	logger   *slog.Logger
}

// NewBookService creates a new book service. cache may be nil.
func NewBookService(
	books repository.BookRepository,
	reviews repository.ReviewRepository,
	cache repository.BookCache,
	producer *event.Producer,
	logger *slog.Logger,
) *BookService {
	if cache == nil {
		cache = nopBookCache{}
	}
	return &BookService{
		books:    books,
		reviews:  reviews,
		cache:    cache,
		producer: producer,
		logger:   logger,
	}
}

// WithSearchIndex routes free-text listings through index and keeps it in step
// with catalog writes.
func (s *BookService) WithSearchIndex(index repository.BookIndex) *BookService {
	s.index = index
	return s
}

// CreateBook adds a book on behalf of actorID.
func (s *BookService) CreateBook(ctx context.Context, actorID string, input *CreateBookInput) (*domain.Book, error) {
	now := time.Now().UTC()
	book := &domain.Book{
		ID:          uuid.New().String(),
		Title:       input.Title,
		Author:      input.Author,
		Description: strings.TrimSpace(input.Description),
		Genre:       strings.TrimSpace(input.Genre),
		Year:        input.Year,
		AddedBy:     actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := book.Validate(); err != nil {
		return nil, err
	}

	if err := s.books.Create(ctx, book); err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}

	s.logger.InfoContext(ctx, "book created",
		slog.String("book_id", book.ID),
		slog.String("added_by", book.AddedBy),
	)
	s.reindex(ctx, book)

	if err := s.producer.PublishBookCreated(ctx, book); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish book.created event",
			slog.String("book_id", book.ID),
			slog.String("error", err.Error()),
		)
	}

	return book, nil
}

// GetBook returns a book with its reviews. The book record is read through
// the cache; reviews always come from the store.
func (s *BookService) GetBook(ctx context.Context, id string) (*domain.BookDetail, error) {
	book, err := s.cachedBook(ctx, id)
	if err != nil {
		return nil, err
	}

	reviews, err := s.reviews.ListByBook(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list reviews for book: %w", err)
	}

	return &domain.BookDetail{
		Book:    *book,
		Reviews: reviews,
	}, nil
}

func (s *BookService) cachedBook(ctx context.Context, id string) (*domain.Book, error) {
	book, err := s.cache.Get(ctx, id)
	if err == nil {
		return book, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		s.logger.WarnContext(ctx, "book cache read failed",
			slog.String("book_id", id),
			slog.String("error", err.Error()),
		)
	}

	// Read the generation before loading so a recompute that lands in between
	// rejects the fill.
	version, verErr := s.cache.Version(ctx, id)

	book, err = s.books.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get book by id: %w", err)
	}

	if verErr != nil {
		s.logger.WarnContext(ctx, "book cache version read failed",
			slog.String("book_id", id),
			slog.String("error", verErr.Error()),
		)
		return book, nil
	}
	stored, err := s.cache.Set(ctx, book, version)
	if err != nil {
		s.logger.WarnContext(ctx, "book cache write failed",
			slog.String("book_id", id),
			slog.String("error", err.Error()),
		)
	} else if !stored {
		s.logger.DebugContext(ctx, "book cache fill skipped after invalidation",
			slog.String("book_id", id),
		)
	}
	return book, nil
}

// ListBooks returns one page of the catalog.
func (s *BookService) ListBooks(ctx context.Context, input *ListBooksInput) (*pagination.Result[domain.Book], error) {
	params := pagination.New(input.Page, input.PerPage, DefaultBooksPerPage)

	filter := repository.BookFilter{
		Search:  input.Search,
		Genre:   input.Genre,
		Sort:    input.Sort,
		Page:    params.Page,
		PerPage: params.PerPage,
	}

	if s.searchable(filter) {
		books, total, err := s.searchIndex(ctx, filter)
		if err == nil {
			result := pagination.NewResult(books, total, params)
			return &result, nil
		}
		s.logger.WarnContext(ctx, "book search index failed, falling back to store",
			slog.String("error", err.Error()),
		)
	}

	books, total, err := s.books.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}

	result := pagination.NewResult(books, total, params)
	return &result, nil
}

// searchable reports whether filter can be answered by the index. The index
// holds no ratings, so rating orders always go to the store.
func (s *BookService) searchable(filter repository.BookFilter) bool {
	if s.index == nil || filter.Search == nil || strings.TrimSpace(*filter.Search) == "" {
		return false
	}
	return filter.Sort != domain.SortRating && filter.Sort != domain.SortRatingDesc
}

func (s *BookService) searchIndex(ctx context.Context, filter repository.BookFilter) ([]domain.Book, int, error) {
	ids, total, err := s.index.Search(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	books := make([]domain.Book, 0, len(ids))
	for _, id := range ids {
		book, err := s.books.GetByID(ctx, id)
		if errors.Is(err, apperrors.ErrNotFound) {
			// Deleted after it was indexed.
			total--
			continue
		}
		if err != nil {
			return nil, 0, fmt.Errorf("load indexed book: %w", err)
		}
		books = append(books, *book)
	}
	return books, max(total, 0), nil
}

// ListBooksByUser returns every book added by userID, newest first.
func (s *BookService) ListBooksByUser(ctx context.Context, userID string) ([]domain.Book, error) {
	books, err := s.books.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list books by user: %w", err)
	}
	return books, nil
}

// UpdateBook edits a book. Only the user who added it may do so; the average
// rating is never touched.
func (s *BookService) UpdateBook(ctx context.Context, id, actorID string, input *UpdateBookInput) (*domain.Book, error) {
	book, err := s.books.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get book by id: %w", err)
	}
	if !book.OwnedBy(actorID) {
		return nil, apperrors.Forbidden("only the user who added this book can modify it")
	}

	if input.Title != nil {
		book.Title = *input.Title
	}
	if input.Author != nil {
		book.Author = *input.Author
	}
	if input.Description != nil {
		book.Description = strings.TrimSpace(*input.Description)
	}
	if input.Genre != nil {
		book.Genre = strings.TrimSpace(*input.Genre)
	}
	if input.Year != nil {
		book.Year = *input.Year
	}
	if err := book.Validate(); err != nil {
		return nil, err
	}

	book.UpdatedAt = time.Now().UTC()
	if err := s.books.Update(ctx, book); err != nil {
		return nil, fmt.Errorf("update book: %w", err)
	}
	s.invalidate(ctx, id)
	s.reindex(ctx, book)

	s.logger.InfoContext(ctx, "book updated",
		slog.String("book_id", book.ID),
	)

	if err := s.producer.PublishBookUpdated(ctx, book); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish book.updated event",
			slog.String("book_id", book.ID),
			slog.String("error", err.Error()),
		)
	}

	return book, nil
}

// DeleteBook removes a book. Its reviews are left in place.
func (s *BookService) DeleteBook(ctx context.Context, id, actorID string) error {
	book, err := s.books.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get book by id: %w", err)
	}
	if !book.OwnedBy(actorID) {
		return apperrors.Forbidden("only the user who added this book can delete it")
	}

	if err := s.books.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	s.invalidate(ctx, id)
	s.unindex(ctx, id)

	s.logger.InfoContext(ctx, "book deleted",
		slog.String("book_id", id),
	)

	if err := s.producer.PublishBookDeleted(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish book.deleted event",
			slog.String("book_id", id),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

func (s *BookService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate cached book",
			slog.String("book_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func (s *BookService) reindex(ctx context.Context, book *domain.Book) {
	if s.index == nil {
		return
	}
	if err := s.index.Index(ctx, book); err != nil {
		s.logger.WarnContext(ctx, "failed to index book",
			slog.String("book_id", book.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *BookService) unindex(ctx context.Context, id string) {
	if s.index == nil {
		return
	}
	if err := s.index.Delete(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "failed to remove book from index",
			slog.String("book_id", id),
			slog.String("error", err.Error()),
		)
	}
}
