package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/BookReviewGo/internal/domain"
	"github.com/utafrali/BookReviewGo/internal/repository"
	"github.com/utafrali/BookReviewGo/pkg/database"
	apperrors "github.com/utafrali/BookReviewGo/pkg/errors"
)

// uniqueBookUser is the constraint holding one review per (book, user).
const uniqueBookUser = "reviews_book_user_key"

const reviewColumns = `r.id, r.book_id, r.user_id, r.rating, r.review_text, r.created_at, r.updated_at`

// ReviewRepository implements repository.ReviewRepository using PostgreSQL.
type ReviewRepository struct {
	pool database.DBTX
}

var _ repository.ReviewRepository = (*ReviewRepository)(nil)

// NewReviewRepository creates a new PostgreSQL-backed review repository.
func NewReviewRepository(pool database.DBTX) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

// Create inserts a review. A violation of the (book_id, user_id) constraint
// is reported as domain.ErrDuplicateReview.
func (r *ReviewRepository) Create(ctx context.Context, rv *domain.Review) (err error) {
	query := `
		INSERT INTO reviews (id, book_id, user_id, rating, review_text, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	ctx, end := database.TraceQuery(ctx, "CreateReview", query)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, query,
		rv.ID, rv.BookID, rv.UserID, rv.Rating, rv.ReviewText, rv.CreatedAt, rv.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			if name := database.ConstraintName(err); name == "" || name == uniqueBookUser {
				return fmt.Errorf("insert review: %w", domain.ErrDuplicateReview)
			}
			return apperrors.AlreadyExists("review", "id", rv.ID)
		}
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

// GetByID retrieves a review by id.
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (rv *domain.Review, err error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews r WHERE r.id = $1`

	ctx, end := database.TraceQuery(ctx, "GetReview", query)
	defer func() { end(err) }()

	rv, err = scanReview(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperrors.NotFound("review", id)
		}
		return nil, fmt.Errorf("get review: %w", err)
	}
	return rv, nil
}

// GetByBookAndUser retrieves the review a user left on a book.
func (r *ReviewRepository) GetByBookAndUser(ctx context.Context, bookID, userID string) (rv *domain.Review, err error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews r WHERE r.book_id = $1 AND r.user_id = $2`

	ctx, end := database.TraceQuery(ctx, "GetReviewByBookAndUser", query)
	defer func() { end(err) }()

	rv, err = scanReview(r.pool.QueryRow(ctx, query, bookID, userID))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperrors.NotFound("review", bookID+"/"+userID)
		}
		return nil, fmt.Errorf("get review by book and user: %w", err)
	}
	return rv, nil
}

// Update writes the rating and text of a review.
func (r *ReviewRepository) Update(ctx context.Context, rv *domain.Review) (err error) {
	query := `UPDATE reviews SET rating = $1, review_text = $2, updated_at = $3 WHERE id = $4`

	ctx, end := database.TraceQuery(ctx, "UpdateReview", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query, rv.Rating, rv.ReviewText, rv.UpdatedAt, rv.ID)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("review", rv.ID)
	}
	return nil
}

// Delete removes a review by id.
func (r *ReviewRepository) Delete(ctx context.Context, id string) (err error) {
	query := `DELETE FROM reviews WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "DeleteReview", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("review", id)
	}
	return nil
}

// ListByBook returns a book's reviews with their author names.
func (r *ReviewRepository) ListByBook(ctx context.Context, bookID string) (out []domain.ReviewWithAuthor, err error) {
	query := `
		SELECT ` + reviewColumns + `, COALESCE(u.name, '')
		FROM reviews r
		LEFT JOIN users u ON u.id = r.user_id
		WHERE r.book_id = $1
		ORDER BY r.created_at DESC, r.id`

	ctx, end := database.TraceQuery(ctx, "ListReviewsByBook", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, bookID)
	if err != nil {
		return nil, fmt.Errorf("list reviews by book: %w", err)
	}
	defer rows.Close()

	out = []domain.ReviewWithAuthor{}
	for rows.Next() {
		var rv domain.ReviewWithAuthor
		if err = rows.Scan(
			&rv.ID, &rv.BookID, &rv.UserID, &rv.Rating, &rv.ReviewText, &rv.CreatedAt, &rv.UpdatedAt,
			&rv.AuthorName,
		); err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		out = append(out, rv)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review rows: %w", err)
	}
	return out, nil
}

// ListByUser returns a user's reviews with the title and author of each book.
// Reviews of deleted books come back with empty book fields.
func (r *ReviewRepository) ListByUser(ctx context.Context, userID string) (out []domain.ReviewWithBook, err error) {
	query := `
		SELECT ` + reviewColumns + `, COALESCE(b.title, ''), COALESCE(b.author, '')
		FROM reviews r
		LEFT JOIN books b ON b.id = r.book_id
		WHERE r.user_id = $1
		ORDER BY r.created_at DESC, r.id`

	ctx, end := database.TraceQuery(ctx, "ListReviewsByUser", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list reviews by user: %w", err)
	}
	defer rows.Close()

	out = []domain.ReviewWithBook{}
	for rows.Next() {
		var rv domain.ReviewWithBook
		if err = rows.Scan(
			&rv.ID, &rv.BookID, &rv.UserID, &rv.Rating, &rv.ReviewText, &rv.CreatedAt, &rv.UpdatedAt,
			&rv.BookTitle, &rv.BookAuthor,
		); err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		out = append(out, rv)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review rows: %w", err)
	}
	return out, nil
}

// RatingsForBook returns the rating of every review of a book.
func (r *ReviewRepository) RatingsForBook(ctx context.Context, bookID string) (ratings []int, err error) {
	query := `SELECT rating FROM reviews WHERE book_id = $1`

	ctx, end := database.TraceQuery(ctx, "RatingsForBook", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, bookID)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	ratings = []int{}
	for rows.Next() {
		var rating int
		if err = rows.Scan(&rating); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		ratings = append(ratings, rating)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ratings: %w", err)
	}
	return ratings, nil
}

func scanReview(row pgx.Row) (*domain.Review, error) {
	var rv domain.Review
	if err := row.Scan(&rv.ID, &rv.BookID, &rv.UserID, &rv.Rating, &rv.ReviewText, &rv.CreatedAt, &rv.UpdatedAt); err != nil {
		return nil, err
	}
	return &rv, nil
}
