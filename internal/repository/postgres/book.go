package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/BookReviewGo/internal/domain"
	"github.com/utafrali/BookReviewGo/internal/repository"
	"github.com/utafrali/BookReviewGo/pkg/database"
	apperrors "github.com/utafrali/BookReviewGo/pkg/errors"
)

const bookColumns = `id, title, author, description, genre, year, added_by, average_rating, created_at, updated_at`

// BookRepository implements repository.BookRepository using PostgreSQL.
type BookRepository struct {
	pool database.DBTX
}

var (
	_ repository.BookRepository    = (*BookRepository)(nil)
	_ repository.AverageRecomputer = (*BookRepository)(nil)
)

// NewBookRepository creates a new PostgreSQL-backed book repository.
func NewBookRepository(pool database.DBTX) *BookRepository {
	return &BookRepository{pool: pool}
}

// Create inserts a new book.
func (r *BookRepository) Create(ctx context.Context, b *domain.Book) (err error) {
	query := `
		INSERT INTO books (` + bookColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	ctx, end := database.TraceQuery(ctx, "CreateBook", query)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, query,
		b.ID, b.Title, b.Author, b.Description, b.Genre, b.Year,
		b.AddedBy, b.AverageRating, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("book", "id", b.ID)
		}
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

// GetByID retrieves a book by id.
func (r *BookRepository) GetByID(ctx context.Context, id string) (b *domain.Book, err error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetBook", query)
	defer func() { end(err) }()

	b, err = scanBook(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperrors.NotFound("book", id)
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	return b, nil
}

// List returns one page of books matching filter, with the total count taken
// from count(*) OVER().
func (r *BookRepository) List(ctx context.Context, filter repository.BookFilter) (books []domain.Book, total int, err error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.Search != nil && *filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(title ILIKE $%d OR author ILIKE $%d)", argIndex, argIndex))
		args = append(args, "%"+escapeLike(*filter.Search)+"%")
		argIndex++
	}

	if filter.Genre != nil {
		conditions = append(conditions, fmt.Sprintf("genre = $%d", argIndex))
		args = append(args, *filter.Genre)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM books
		%s
		ORDER BY %s
		LIMIT $%d OFFSET $%d`,
		bookColumns, whereClause, orderBy(filter.Sort), argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}
	args = append(args, limit, offset)

	ctx, end := database.TraceQuery(ctx, "ListBooks", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b domain.Book
		if err = rows.Scan(
			&b.ID, &b.Title, &b.Author, &b.Description, &b.Genre, &b.Year,
			&b.AddedBy, &b.AverageRating, &b.CreatedAt, &b.UpdatedAt,
			&total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan book row: %w", err)
		}
		books = append(books, b)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate book rows: %w", err)
	}

	if books == nil {
		books = []domain.Book{}
	}
	return books, total, nil
}

// ListByUser returns the books a user added, newest first.
func (r *BookRepository) ListByUser(ctx context.Context, userID string) (books []domain.Book, err error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE added_by = $1 ORDER BY created_at DESC, id`

	ctx, end := database.TraceQuery(ctx, "ListBooksByUser", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list books by user: %w", err)
	}
	defer rows.Close()

	books = []domain.Book{}
	for rows.Next() {
		var b *domain.Book
		if b, err = scanBook(rows); err != nil {
			return nil, fmt.Errorf("scan book row: %w", err)
		}
		books = append(books, *b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate book rows: %w", err)
	}
	return books, nil
}

// Update writes the editable fields. average_rating is never part of it.
func (r *BookRepository) Update(ctx context.Context, b *domain.Book) (err error) {
	query := `
		UPDATE books
		SET title = $1, author = $2, description = $3, genre = $4, year = $5, updated_at = $6
		WHERE id = $7`

	ctx, end := database.TraceQuery(ctx, "UpdateBook", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query, b.Title, b.Author, b.Description, b.Genre, b.Year, b.UpdatedAt, b.ID)
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("book", b.ID)
	}
	return nil
}

// Delete removes a book. Its reviews stay where they are.
func (r *BookRepository) Delete(ctx context.Context, id string) (err error) {
	query := `DELETE FROM books WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "DeleteBook", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("book", id)
	}
	return nil
}

// SetAverageRating stores the derived average for a book.
func (r *BookRepository) SetAverageRating(ctx context.Context, id string, avg float64) (err error) {
	query := `UPDATE books SET average_rating = $1 WHERE id = $2`

	ctx, end := database.TraceQuery(ctx, "SetAverageRating", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query, avg, id)
	if err != nil {
		return fmt.Errorf("set average rating: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("book", id)
	}
	return nil
}

// RecomputeAverageRating locks the book row, then derives and stores the mean
// of its ratings in the same transaction. The aggregate is read only once the
// lock is held, so whichever replica writes last has seen every rating
// committed before it.
func (r *BookRepository) RecomputeAverageRating(ctx context.Context, id string) (avg float64, count int, err error) {
	const lockQuery = `SELECT id FROM books WHERE id = $1 FOR UPDATE`
	const updateQuery = `
		UPDATE books SET average_rating = agg.avg
		FROM (
			SELECT COALESCE(SUM(rating)::float8 / NULLIF(COUNT(*), 0), 0) AS avg, COUNT(*) AS n
			FROM reviews WHERE book_id = $1
		) agg
		WHERE books.id = $1
		RETURNING agg.avg, agg.n`

	ctx, end := database.TraceQuery(ctx, "RecomputeAverageRating", updateQuery)
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin recompute tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked string
	if err = tx.QueryRow(ctx, lockQuery, id).Scan(&locked); err != nil {
		if database.IsNoRows(err) {
			return 0, 0, apperrors.NotFound("book", id)
		}
		return 0, 0, fmt.Errorf("lock book: %w", err)
	}

	var n int64
	if err = tx.QueryRow(ctx, updateQuery, id).Scan(&avg, &n); err != nil {
		return 0, 0, fmt.Errorf("update average rating: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit recompute tx: %w", err)
	}
	return avg, int(n), nil
}

func scanBook(row pgx.Row) (*domain.Book, error) {
	var b domain.Book
	if err := row.Scan(
		&b.ID, &b.Title, &b.Author, &b.Description, &b.Genre, &b.Year,
		&b.AddedBy, &b.AverageRating, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &b, nil
}

// orderBy maps a sort key to a fixed ORDER BY clause. Only these literals
// ever reach the query text.
func orderBy(s domain.BookSort) string {
	switch s {
	case domain.SortYear:
		return "year ASC, created_at DESC, id"
	case domain.SortYearDesc:
		return "year DESC, created_at DESC, id"
	case domain.SortRating:
		return "average_rating ASC, created_at DESC, id"
	case domain.SortRatingDesc:
		return "average_rating DESC, created_at DESC, id"
	default:
		return "created_at DESC, id"
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
