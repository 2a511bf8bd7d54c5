package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/utafrali/BookReviewGo/internal/domain"
	"github.com/utafrali/BookReviewGo/internal/repository"
	apperrors "github.com/utafrali/BookReviewGo/pkg/errors"
)

// BookRepository implements repository.BookRepository in memory.
type BookRepository struct {
	s *Store
}

var _ repository.BookRepository = (*BookRepository)(nil)

func (r *BookRepository) Create(_ context.Context, book *domain.Book) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.books[book.ID]; exists {
		return apperrors.AlreadyExists("book", "id", book.ID)
	}
	r.s.books[book.ID] = *book
	return nil
}

func (r *BookRepository) GetByID(_ context.Context, id string) (*domain.Book, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b, ok := r.s.books[id]
	if !ok {
		return nil, apperrors.NotFound("book", id)
	}
	return &b, nil
}

func (r *BookRepository) List(_ context.Context, filter repository.BookFilter) ([]domain.Book, int, error) {
	r.s.mu.RLock()
	matched := make([]domain.Book, 0, len(r.s.books))
	for _, b := range r.s.books {
		if matchesBook(b, filter) {
			matched = append(matched, b)
		}
	}
	r.s.mu.RUnlock()

	sortBooks(matched, filter.Sort)

	total := len(matched)
	if filter.PerPage <= 0 {
		return matched, total, nil
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * filter.PerPage
	if start >= total {
		return []domain.Book{}, total, nil
	}
	end := start + filter.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *BookRepository) ListByUser(_ context.Context, userID string) ([]domain.Book, error) {
	r.s.mu.RLock()
	books := make([]domain.Book, 0)
	for _, b := range r.s.books {
		if b.AddedBy == userID {
			books = append(books, b)
		}
	}
	r.s.mu.RUnlock()

	sortBooks(books, domain.SortNewest)
	return books, nil
}

func (r *BookRepository) Update(_ context.Context, book *domain.Book) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.books[book.ID]
	if !ok {
		return apperrors.NotFound("book", book.ID)
	}

	current.Title = book.Title
	current.Author = book.Author
	current.Description = book.Description
	current.Genre = book.Genre
	current.Year = book.Year
	current.UpdatedAt = book.UpdatedAt
	r.s.books[book.ID] = current
	return nil
}

func (r *BookRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.books[id]; !ok {
		return apperrors.NotFound("book", id)
	}
	delete(r.s.books, id)
	return nil
}

func (r *BookRepository) SetAverageRating(_ context.Context, id string, avg float64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.books[id]
	if !ok {
		return apperrors.NotFound("book", id)
	}
	b.AverageRating = avg
	r.s.books[id] = b
	return nil
}

func matchesBook(b domain.Book, f repository.BookFilter) bool {
	if f.Genre != nil && b.Genre != *f.Genre {
		return false
	}
	if f.Search != nil && *f.Search != "" {
		q := strings.ToLower(*f.Search)
		if !strings.Contains(strings.ToLower(b.Title), q) && !strings.Contains(strings.ToLower(b.Author), q) {
			return false
		}
	}
	return true
}

// sortBooks orders books the way the postgres repository does, with id as
// the final tie-breaker so pages are stable.
func sortBooks(books []domain.Book, by domain.BookSort) {
	sort.Slice(books, func(i, j int) bool {
		a, b := books[i], books[j]
		switch by {
		case domain.SortYear:
			if a.Year != b.Year {
				return a.Year < b.Year
			}
		case domain.SortYearDesc:
			if a.Year != b.Year {
				return a.Year > b.Year
			}
		case domain.SortRating:
			if a.AverageRating != b.AverageRating {
				return a.AverageRating < b.AverageRating
			}
		case domain.SortRatingDesc:
			if a.AverageRating != b.AverageRating {
				return a.AverageRating > b.AverageRating
			}
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
