package memory

import (
	"context"
	"sort"

	"github.com/utafrali/BookReviewGo/internal/domain"
	"github.com/utafrali/BookReviewGo/internal/repository"
	apperrors "github.com/utafrali/BookReviewGo/pkg/errors"
)

// ReviewRepository implements repository.ReviewRepository in memory.
type ReviewRepository struct {
	s *Store
}

var _ repository.ReviewRepository = (*ReviewRepository)(nil)

// Create inserts review unless its (book, user) pair is already taken. The
// check and the insert happen under one write lock.
func (r *ReviewRepository) Create(_ context.Context, review *domain.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := pairKey{bookID: review.BookID, userID: review.UserID}
	if _, taken := r.s.reviewByPair[key]; taken {
		return domain.ErrDuplicateReview
	}
	if _, exists := r.s.reviews[review.ID]; exists {
		return apperrors.AlreadyExists("review", "id", review.ID)
	}

	r.s.reviews[review.ID] = *review
	r.s.reviewByPair[key] = review.ID
	return nil
}

func (r *ReviewRepository) GetByID(_ context.Context, id string) (*domain.Review, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rv, ok := r.s.reviews[id]
	if !ok {
		return nil, apperrors.NotFound("review", id)
	}
	return &rv, nil
}

func (r *ReviewRepository) GetByBookAndUser(_ context.Context, bookID, userID string) (*domain.Review, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.reviewByPair[pairKey{bookID: bookID, userID: userID}]
	if !ok {
		return nil, apperrors.NotFound("review", bookID+"/"+userID)
	}
	rv := r.s.reviews[id]
	return &rv, nil
}

func (r *ReviewRepository) Update(_ context.Context, review *domain.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.reviews[review.ID]
	if !ok {
		return apperrors.NotFound("review", review.ID)
	}
	current.Rating = review.Rating
	current.ReviewText = review.ReviewText
	current.UpdatedAt = review.UpdatedAt
	r.s.reviews[review.ID] = current
	return nil
}

func (r *ReviewRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rv, ok := r.s.reviews[id]
	if !ok {
		return apperrors.NotFound("review", id)
	}
	delete(r.s.reviews, id)
	delete(r.s.reviewByPair, pairKey{bookID: rv.BookID, userID: rv.UserID})
	return nil
}

func (r *ReviewRepository) ListByBook(_ context.Context, bookID string) ([]domain.ReviewWithAuthor, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]domain.ReviewWithAuthor, 0)
	for _, rv := range r.s.reviews {
		if rv.BookID != bookID {
			continue
		}
		out = append(out, domain.ReviewWithAuthor{
			Review:     rv,
			AuthorName: r.s.users[rv.UserID].Name,
		})
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i].Review, out[j].Review) })
	return out, nil
}

func (r *ReviewRepository) ListByUser(_ context.Context, userID string) ([]domain.ReviewWithBook, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]domain.ReviewWithBook, 0)
	for _, rv := range r.s.reviews {
		if rv.UserID != userID {
			continue
		}
		b := r.s.books[rv.BookID]
		out = append(out, domain.ReviewWithBook{
			Review:     rv,
			BookTitle:  b.Title,
			BookAuthor: b.Author,
		})
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i].Review, out[j].Review) })
	return out, nil
}

func (r *ReviewRepository) RatingsForBook(_ context.Context, bookID string) ([]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ratings := make([]int, 0)
	for _, rv := range r.s.reviews {
		if rv.BookID == bookID {
			ratings = append(ratings, rv.Rating)
		}
	}
	return ratings, nil
}

func newer(a, b domain.Review) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}
