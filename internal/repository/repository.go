package repository

import (
	"context"

	"github.com/utafrali/BookReviewGo/internal/domain"
)

// BookFilter defines filter criteria for listing books.
type BookFilter struct {
	// Search matches title or author, case-insensitively.
	Search  *string
	Genre   *string
	Sort    domain.BookSort
	Page    int
	PerPage int
}

// BookRepository defines the interface for book persistence operations.
type BookRepository interface {
	// Create inserts a new book.
	Create(ctx context.Context, book *domain.Book) error

	// GetByID returns the book or an apperrors.ErrNotFound error.
	GetByID(ctx context.Context, id string) (*domain.Book, error)

	// List returns one page of books matching filter along with the total count.
	List(ctx context.Context, filter BookFilter) ([]domain.Book, int, error)

	// ListByUser returns every book added by userID, newest first.
	ListByUser(ctx context.Context, userID string) ([]domain.Book, error)

	// Update writes the editable fields of book. AverageRating is left untouched.
	Update(ctx context.Context, book *domain.Book) error

	// Delete removes the book only. Its reviews are left in place.
	Delete(ctx context.Context, id string) error

	// SetAverageRating stores the derived average. Returns apperrors.ErrNotFound
	// when the book no longer exists.
	SetAverageRating(ctx context.Context, id string, avg float64) error
}

// AverageRecomputer is implemented by book stores that can derive and store
// the average rating atomically, serializing concurrent recomputations of the
// same book across processes.
type AverageRecomputer interface {
	// RecomputeAverageRating stores the exact mean of the book's ratings, 0
	// when it has none, and returns it with the rating count. Returns
	// apperrors.ErrNotFound when the book no longer exists.
	RecomputeAverageRating(ctx context.Context, bookID string) (float64, int, error)
}

// ReviewRepository defines the interface for review persistence operations.
// Implementations enforce one review per (book, user) at write time.
type ReviewRepository interface {
	// Create inserts review, returning domain.ErrDuplicateReview when the
	// (book, user) pair is taken.
	Create(ctx context.Context, review *domain.Review) error

	// GetByID returns the review or an apperrors.ErrNotFound error.
	GetByID(ctx context.Context, id string) (*domain.Review, error)

	// GetByBookAndUser returns the user's review of a book or an
	// apperrors.ErrNotFound error.
	GetByBookAndUser(ctx context.Context, bookID, userID string) (*domain.Review, error)

	// Update writes rating, text and updated_at.
	Update(ctx context.Context, review *domain.Review) error

	// Delete removes a review by id.
	Delete(ctx context.Context, id string) error

	// ListByBook returns a book's reviews with author names, newest first.
	ListByBook(ctx context.Context, bookID string) ([]domain.ReviewWithAuthor, error)

	// ListByUser returns a user's reviews with book title and author, newest first.
	ListByUser(ctx context.Context, userID string) ([]domain.ReviewWithBook, error)

	// RatingsForBook returns the rating of every review currently referencing bookID.
	RatingsForBook(ctx context.Context, bookID string) ([]int, error)
}

// UserRepository defines the interface for account persistence operations.
type UserRepository interface {
	// Create inserts a user, returning an ALREADY_EXISTS error for a taken email.
	Create(ctx context.Context, user *domain.User) error

	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail looks a user up by email, case-insensitively.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// BookCache is a read-through cache for single book records.
type BookCache interface {
	// Get returns the cached book or an apperrors.ErrNotFound error on a miss.
	Get(ctx context.Context, id string) (*domain.Book, error)

	// Version returns the invalidation generation of id. It starts at zero
	// and moves forward on every Invalidate.
	Version(ctx context.Context, id string) (int64, error)

	// Set stores book only while its generation still equals version, and
	// reports whether it did. A fill loaded before a concurrent Invalidate is
	// dropped.
	Set(ctx context.Context, book *domain.Book, version int64) (bool, error)

	Invalidate(ctx context.Context, id string) error
}

// BookIndex is a secondary full-text index of the catalog. The BookRepository
// remains authoritative; Search returns IDs to load from it.
type BookIndex interface {
	Index(ctx context.Context, book *domain.Book) error

	// Delete removes id from the index. Missing documents are not an error.
	Delete(ctx context.Context, id string) error

	// Search returns one page of matching IDs and the total match count.
	Search(ctx context.Context, filter BookFilter) ([]string, int, error)
}
