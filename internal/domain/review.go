package domain

import (
	"strings"
	"time"

	apperrors "github.com/utafrali/BookReviewGo/pkg/errors"
)

const (
	MinRating = 1
	MaxRating = 5
)

// Review is a rated comment by one user on one book. A user holds at most one
// review per book.
type Review struct {
	ID         string    `json:"id"`
	BookID     string    `json:"book_id"`
	UserID     string    `json:"user_id"`
	Rating     int       `json:"rating"`
	ReviewText string    `json:"review_text"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ReviewWithAuthor is a review joined with its author's display name.
type ReviewWithAuthor struct {
	Review
	AuthorName string `json:"author_name"`
}

// ReviewWithBook is a review joined with the title and author of its book.
type ReviewWithBook struct {
	Review
	BookTitle  string `json:"book_title"`
	BookAuthor string `json:"book_author"`
}

// WrittenBy reports whether userID authored the review.
func (r *Review) WrittenBy(userID string) bool {
	return r.UserID == userID
}

// ValidateRating rejects ratings outside MinRating..MaxRating.
func ValidateRating(rating int) error {
	if rating < MinRating || rating > MaxRating {
		return apperrors.Validation("rating must be between 1 and 5")
	}
	return nil
}

// NormalizeReviewText trims text and rejects it when nothing is left.
func NormalizeReviewText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperrors.Validation("review text is required")
	}
	return text, nil
}

// MeanRating is the arithmetic mean of ratings, or 0 for none. The result is
// not rounded.
func MeanRating(ratings []int) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return float64(sum) / float64(len(ratings))
}

// RatingSummary describes the distribution of a book's ratings.
type RatingSummary struct {
	AverageRating float64     `json:"average_rating"`
	TotalCount    int         `json:"total_count"`
	Distribution  map[int]int `json:"distribution"`
}

// NewRatingSummary builds a summary with an entry for every star value.
func NewRatingSummary(ratings []int) RatingSummary {
	dist := make(map[int]int, MaxRating)
	for star := MinRating; star <= MaxRating; star++ {
		dist[star] = 0
	}
	for _, r := range ratings {
		dist[r]++
	}
	return RatingSummary{
		AverageRating: MeanRating(ratings),
		TotalCount:    len(ratings),
		Distribution:  dist,
	}
}
