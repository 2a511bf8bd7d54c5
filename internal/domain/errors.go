package domain

import (
	"fmt"

	apperrors "github.com/utafrali/BookReviewGo/pkg/errors"
)

// ErrCodeDuplicateReview is the AppError code answered for a second review of
// the same book by the same user.
const ErrCodeDuplicateReview = "DUPLICATE_REVIEW"

// ErrDuplicateReview is returned by review stores when (book, user) already
// has a review. It wraps apperrors.ErrAlreadyExists.
var ErrDuplicateReview = fmt.Errorf("%w: review for this book by this user", apperrors.ErrAlreadyExists)

// DuplicateReview is the client-facing form of ErrDuplicateReview.
func DuplicateReview() *apperrors.AppError {
	return apperrors.Duplicate(ErrCodeDuplicateReview, "you have already reviewed this book", ErrDuplicateReview)
}
