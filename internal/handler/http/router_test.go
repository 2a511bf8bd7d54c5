package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/BookReviewGo/internal/auth"
	"github.com/utafrali/BookReviewGo/internal/domain"
	"github.com/utafrali/BookReviewGo/internal/event"
	"github.com/utafrali/BookReviewGo/internal/repository/memory"
	"github.com/utafrali/BookReviewGo/internal/service"
	"github.com/utafrali/BookReviewGo/pkg/health"
	"github.com/utafrali/BookReviewGo/pkg/httputil"
	"github.com/utafrali/BookReviewGo/pkg/middleware"
)

// =============================================================================
// Test helpers
// =============================================================================

type envelope struct {
	Data  json.RawMessage         `json:"data"`
	Error *httputil.ErrorResponse `json:"error"`
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return newTestRouterWithLimit(t, middleware.RateLimitConfig{})
}

func newTestRouterWithLimit(t *testing.T, limit middleware.RateLimitConfig) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store := memory.NewStore()
	producer := event.NewNoopProducer(logger)
	jwtManager := auth.NewJWTManager("handler-test-secret-of-sufficient-size", time.Hour)

	aggregator := service.NewRatingAggregator(store.Books(), store.Reviews(), nil, producer, logger)
	bookSvc := service.NewBookService(store.Books(), store.Reviews(), nil, producer, logger)
	reviewSvc := service.NewReviewService(store.Reviews(), store.Books(), aggregator, producer, logger)
	userSvc := service.NewUserService(store.Users(), jwtManager, logger)

	return NewRouter(bookSvc, reviewSvc, userSvc, jwtManager.TokenValidator(), health.NewHandler(), logger, RouterConfig{
		ServiceName: "bookreview-test",
		CORS:        middleware.CORSConfig{AllowedOrigins: []string{"*"}, Environment: "test"},
		RateLimit:   limit,
	})
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func register(t *testing.T, h http.Handler, name, email string) (token, userID string) {
	t.Helper()
	rec, env := do(t, h, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"name": name, "email": email, "password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result domain.AuthResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	return result.AccessToken, result.User.ID
}

func createBook(t *testing.T, h http.Handler, token, title string, year int) domain.Book {
	t.Helper()
	rec, env := do(t, h, http.MethodPost, "/api/v1/books", token, map[string]any{
		"title":       title,
		"author":      "N. K. Jemisin",
		"description": "The world ends again.",
		"genre":       "Fantasy",
		"year":        year,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var b domain.Book
	require.NoError(t, json.Unmarshal(env.Data, &b))
	return b
}

// =============================================================================
// Tests
// =============================================================================

func TestRouter_Health(t *testing.T) {
	h := newTestRouter(t)

	rec, _ := do(t, h, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/debug/pprof/", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthHandler(t *testing.T) {
	h := newTestRouter(t)
	token, userID := register(t, h, "Ada", "ada@example.com")

	rec, env := do(t, h, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"name": "Ada", "email": "ADA@example.com", "password": "hunter22",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "ALREADY_EXISTS", env.Error.Code)

	rec, env = do(t, h, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"name": "Bob", "email": "not-an-email", "password": "123",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Fields, "email")
	assert.Contains(t, env.Error.Fields, "password")

	rec, env = do(t, h, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email": "ada@example.com", "password": "hunter22",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var login domain.AuthResult
	require.NoError(t, json.Unmarshal(env.Data, &login))
	assert.Equal(t, userID, login.User.ID)

	rec, _ = do(t, h, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email": "ada@example.com", "password": "wrong-pass",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env = do(t, h, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "ada@example.com", me["email"])
	assert.NotContains(t, me, "password_hash")
	assert.NotContains(t, me, "PasswordHash")

	rec, _ = do(t, h, http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = do(t, h, http.MethodGet, "/api/v1/auth/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBookHandler_CRUD(t *testing.T) {
	h := newTestRouter(t)
	owner, ownerID := register(t, h, "Owner", "owner@example.com")
	other, _ := register(t, h, "Other", "other@example.com")

	rec, _ := do(t, h, http.MethodPost, "/api/v1/books", "", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := do(t, h, http.MethodPost, "/api/v1/books", owner, map[string]any{"title": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	book := createBook(t, h, owner, "The Fifth Season", 2015)
	assert.Equal(t, ownerID, book.AddedBy)

	rec, env = do(t, h, http.MethodGet, "/api/v1/books/"+book.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail domain.BookDetail
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, "The Fifth Season", detail.Title)
	assert.Empty(t, detail.Reviews)

	rec, env = do(t, h, http.MethodGet, "/api/v1/books/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PARAMETER", env.Error.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/books/00000000-0000-0000-0000-000000000001", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = do(t, h, http.MethodPut, "/api/v1/books/"+book.ID, other, map[string]any{"title": "Stolen"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	rec, env = do(t, h, http.MethodPut, "/api/v1/books/"+book.ID, owner, map[string]any{"year": 2016})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated domain.Book
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, 2016, updated.Year)
	assert.Equal(t, "The Fifth Season", updated.Title)

	rec, env = do(t, h, http.MethodGet, "/api/v1/books/user/"+ownerID, owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []domain.Book
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	assert.Len(t, mine, 1)

	rec, _ = do(t, h, http.MethodDelete, "/api/v1/books/"+book.ID, other, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = do(t, h, http.MethodDelete, "/api/v1/books/"+book.ID, owner, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/books/"+book.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookHandler_List(t *testing.T) {
	h := newTestRouter(t)
	token, _ := register(t, h, "Owner", "owner@example.com")
	for i := 0; i < 7; i++ {
		createBook(t, h, token, fmt.Sprintf("Book %d", i), 2000+i)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/books", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Data       []domain.Book `json:"data"`
		TotalCount int           `json:"total_count"`
		TotalPages int           `json:"total_pages"`
		HasNext    bool          `json:"has_next"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Data, 5)
	assert.Equal(t, 7, page.TotalCount)
	assert.Equal(t, 2, page.TotalPages)
	assert.True(t, page.HasNext)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/books?sort=year&limit=2&page=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Data, 2)
	assert.Equal(t, 2002, page.Data[0].Year)
	assert.Equal(t, 2003, page.Data[1].Year)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/books?search=book%206", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Data, 1)
	assert.Equal(t, "Book 6", page.Data[0].Title)
}

func TestReviewHandler_Flow(t *testing.T) {
	h := newTestRouter(t)
	owner, _ := register(t, h, "Owner", "owner@example.com")
	u, uID := register(t, h, "U", "u@example.com")
	v, _ := register(t, h, "V", "v@example.com")
	book := createBook(t, h, owner, "The Obelisk Gate", 2016)
	reviewsPath := "/api/v1/books/" + book.ID + "/reviews"

	rec, _ := do(t, h, http.MethodPost, reviewsPath, "", map[string]any{"rating": 4, "review_text": "good"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := do(t, h, http.MethodPost, reviewsPath, u, map[string]any{"rating": 6, "review_text": "too good"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error.Fields, "rating")

	rec, env = do(t, h, http.MethodPost, reviewsPath, u, map[string]any{"rating": 4, "review_text": "good"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var review domain.Review
	require.NoError(t, json.Unmarshal(env.Data, &review))
	assert.Equal(t, uID, review.UserID)

	rec, env = do(t, h, http.MethodPost, reviewsPath, u, map[string]any{"rating": 2, "review_text": "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_REVIEW", env.Error.Code)

	rec, _ = do(t, h, http.MethodPost, reviewsPath, v, map[string]any{"rating": 2, "review_text": "meh"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/v1/books/00000000-0000-0000-0000-000000000001/reviews", v,
		map[string]any{"rating": 2, "review_text": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = do(t, h, http.MethodGet, reviewsPath, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing service.BookReviews
	require.NoError(t, json.Unmarshal(env.Data, &listing))
	assert.Len(t, listing.Reviews, 2)
	assert.Equal(t, 3.0, listing.Summary.AverageRating)
	names := []string{listing.Reviews[0].AuthorName, listing.Reviews[1].AuthorName}
	assert.ElementsMatch(t, []string{"U", "V"}, names)

	rec, env = do(t, h, http.MethodPut, "/api/v1/reviews/"+review.ID, v, map[string]any{"rating": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	rec, _ = do(t, h, http.MethodPut, "/api/v1/reviews/"+review.ID, u, map[string]any{"rating": 5})
	require.Equal(t, http.StatusOK, rec.Code)

	_, env = do(t, h, http.MethodGet, "/api/v1/books/"+book.ID, "", nil)
	var detail domain.BookDetail
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, 3.5, detail.AverageRating)

	rec, env = do(t, h, http.MethodGet, "/api/v1/reviews/user/"+uID, u, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []domain.ReviewWithBook
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, "The Obelisk Gate", mine[0].BookTitle)

	rec, _ = do(t, h, http.MethodDelete, "/api/v1/reviews/"+review.ID, v, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = do(t, h, http.MethodDelete, "/api/v1/reviews/"+review.ID, u, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, env = do(t, h, http.MethodGet, "/api/v1/books/"+book.ID, "", nil)
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, 2.0, detail.AverageRating)
}

func TestRouter_RateLimitsAuthAndReviewWrites(t *testing.T) {
	h := newTestRouterWithLimit(t, middleware.RateLimitConfig{RPS: 0.001, Burst: 2})

	token, _ := register(t, h, "Ada", "ada@example.com")
	book := createBook(t, h, token, "The Fifth Season", 2015)

	rec, _ := do(t, h, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email": "ada@example.com", "password": "hunter22",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := do(t, h, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email": "ada@example.com", "password": "hunter22",
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "RATE_LIMITED", env.Error.Code)

	// Review writes draw from their own bucket.
	reviewPath := "/api/v1/books/" + book.ID + "/reviews"
	rec, _ = do(t, h, http.MethodPost, reviewPath, token, map[string]any{"rating": 4, "review_text": "Stunning."})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec, _ = do(t, h, http.MethodPost, reviewPath, token, map[string]any{"rating": 4, "review_text": "Again."})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec, _ = do(t, h, http.MethodPost, reviewPath, token, map[string]any{"rating": 4, "review_text": "Third."})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Reads stay unlimited.
	for i := 0; i < 5; i++ {
		rec, _ = do(t, h, http.MethodGet, "/api/v1/books/"+book.ID, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
}
