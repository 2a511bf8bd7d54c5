package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/BookReviewGo/internal/domain"
	"github.com/utafrali/BookReviewGo/internal/service"
	"github.com/utafrali/BookReviewGo/pkg/httputil"
	"github.com/utafrali/BookReviewGo/pkg/middleware"
	"github.com/utafrali/BookReviewGo/pkg/pagination"
	"github.com/utafrali/BookReviewGo/pkg/validator"
)

// BookHandler handles HTTP requests for book endpoints.
type BookHandler struct {
	service *service.BookService
	logger  *slog.Logger
}

// NewBookHandler creates a new book HTTP handler.
func NewBookHandler(svc *service.BookService, logger *slog.Logger) *BookHandler {
	return &BookHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateBookRequest is the JSON request body for adding a book.
type CreateBookRequest struct {
	Title       string `json:"title" validate:"required,notblank,max=100"`
	Author      string `json:"author" validate:"required,notblank,max=255"`
	Description string `json:"description" validate:"required,notblank"`
	Genre       string `json:"genre" validate:"required,notblank,max=100"`
	Year        int    `json:"year" validate:"required,lte=9999"`
}

// UpdateBookRequest is the JSON request body for editing a book. Omitted
// fields keep their current value.
type UpdateBookRequest struct {
	Title       *string `json:"title" validate:"omitempty,notblank,max=100"`
	Author      *string `json:"author" validate:"omitempty,notblank,max=255"`
	Description *string `json:"description" validate:"omitempty,notblank"`
	Genre       *string `json:"genre" validate:"omitempty,notblank,max=100"`
	Year        *int    `json:"year" validate:"omitempty,lte=9999"`
}

// --- Handlers ---

// ListBooks handles GET /api/v1/books
// Query: search, genre, sort (year|year_desc|rating|rating_desc), page, limit|per_page.
func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := pagination.FromRequestWithDefault(r, service.DefaultBooksPerPage)

	input := &service.ListBooksInput{
		Sort:    domain.ParseBookSort(q.Get("sort")),
		Page:    params.Page,
		PerPage: params.PerPage,
	}
	if v := q.Get("search"); v != "" {
		input.Search = &v
	}
	if v := q.Get("genre"); v != "" {
		input.Genre = &v
	}

	result, err := h.service.ListBooks(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// GetBook handles GET /api/v1/books/{id}
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	detail, err := h.service.GetBook(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, detail)
}

// CreateBook handles POST /api/v1/books
func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req CreateBookRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	book, err := h.service.CreateBook(r.Context(), middleware.UserIDFromContext(r.Context()), &service.CreateBookInput{
		Title:       req.Title,
		Author:      req.Author,
		Description: req.Description,
		Genre:       req.Genre,
		Year:        req.Year,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, book)
}

// UpdateBook handles PUT /api/v1/books/{id}
func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req UpdateBookRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	book, err := h.service.UpdateBook(r.Context(), id.String(), middleware.UserIDFromContext(r.Context()), &service.UpdateBookInput{
		Title:       req.Title,
		Author:      req.Author,
		Description: req.Description,
		Genre:       req.Genre,
		Year:        req.Year,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, book)
}

// DeleteBook handles DELETE /api/v1/books/{id}
func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.DeleteBook(r.Context(), id.String(), middleware.UserIDFromContext(r.Context())); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListUserBooks handles GET /api/v1/books/user/{userId}
func (h *BookHandler) ListUserBooks(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParseUUID(w, chi.URLParam(r, "userId"))
	if !ok {
		return
	}

	books, err := h.service.ListBooksByUser(r.Context(), userID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, books)
}
