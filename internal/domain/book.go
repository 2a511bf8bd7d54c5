package domain

import (
	"strings"
	"time"

	apperrors "github.com/utafrali/BookReviewGo/pkg/errors"
)

// MaxTitleLength is the longest title a book may carry.
const MaxTitleLength = 100

// Book is a catalog entry users can review.
type Book struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Genre       string `json:"genre"`
	Year        int    `json:"year"`
	AddedBy     string `json:"added_by"`

	// AverageRating is derived from the book's reviews and written only by
	// the rating aggregator.
	AverageRating float64 `json:"average_rating"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BookDetail is a book together with its reviews.
type BookDetail struct {
	Book
	Reviews []ReviewWithAuthor `json:"reviews"`
}

// Validate checks the fields a book must always carry. Title and author are
// trimmed in place.
func (b *Book) Validate() error {
	b.Title = strings.TrimSpace(b.Title)
	b.Author = strings.TrimSpace(b.Author)

	switch {
	case b.Title == "":
		return apperrors.Validation("title is required")
	case len([]rune(b.Title)) > MaxTitleLength:
		return apperrors.Validation("title cannot be more than 100 characters")
	case b.Author == "":
		return apperrors.Validation("author is required")
	case strings.TrimSpace(b.Description) == "":
		return apperrors.Validation("description is required")
	case strings.TrimSpace(b.Genre) == "":
		return apperrors.Validation("genre is required")
	case b.Year == 0:
		return apperrors.Validation("published year is required")
	}
	return nil
}

// OwnedBy reports whether userID added the book.
func (b *Book) OwnedBy(userID string) bool {
	return b.AddedBy == userID
}

// BookSort selects the ordering of a book listing.
type BookSort string

const (
	SortNewest     BookSort = ""
	SortYear       BookSort = "year"
	SortYearDesc   BookSort = "year_desc"
	SortRating     BookSort = "rating"
	SortRatingDesc BookSort = "rating_desc"
)

// ParseBookSort maps a query value to a BookSort. Unknown values fall back to
// newest first.
func ParseBookSort(s string) BookSort {
	switch BookSort(s) {
	case SortYear, SortYearDesc, SortRating, SortRatingDesc:
		return BookSort(s)
	default:
		return SortNewest
	}
}
