package pagination

import (
	"net/http"
	"strconv"
)

const (
	// DefaultPerPage is used when a request does not ask for a page size.
	DefaultPerPage = 20
	// MaxPerPage caps the page size a client may request.
	MaxPerPage = 100
)

// Params holds pagination parameters extracted from query strings.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Offset  int `json:"-"`
}

// DefaultParams returns page 1 with DefaultPerPage items.
func DefaultParams() Params {
	return New(1, DefaultPerPage, DefaultPerPage)
}

// New normalizes page and perPage: non-positive pages become 1, non-positive
// sizes become fallback and sizes above MaxPerPage are capped.
func New(page, perPage, fallback int) Params {
	if fallback <= 0 {
		fallback = DefaultPerPage
	}
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = fallback
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return Params{
		Page:    page,
		PerPage: perPage,
		Offset:  (page - 1) * perPage,
	}
}

// FromRequest extracts pagination parameters using DefaultPerPage.
func FromRequest(r *http.Request) Params {
	return FromRequestWithDefault(r, DefaultPerPage)
}

// FromRequestWithDefault extracts "page" and "per_page" (or its alias "limit")
// from the query string. Unparseable values fall back to the defaults.
func FromRequestWithDefault(r *http.Request, perPageDefault int) Params {
	q := r.URL.Query()

	page := atoiOr(q.Get("page"), 1)

	raw := q.Get("per_page")
	if raw == "" {
		raw = q.Get("limit")
	}
	perPage := atoiOr(raw, perPageDefault)

	return New(page, perPage, perPageDefault)
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

// TotalPages returns the number of pages needed for totalCount items.
func TotalPages(totalCount, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	pages := totalCount / perPage
	if totalCount%perPage > 0 {
		pages++
	}
	return pages
}

// Result wraps a paginated response.
type Result[T any] struct {
	Data       []T  `json:"data"`
	TotalCount int  `json:"total_count"`
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NewResult creates a paginated result. A nil slice is rendered as an empty list.
func NewResult[T any](data []T, totalCount int, params Params) Result[T] {
	if data == nil {
		data = []T{}
	}
	totalPages := TotalPages(totalCount, params.PerPage)

	return Result[T]{
		Data:       data,
		TotalCount: totalCount,
		Page:       params.Page,
		PerPage:    params.PerPage,
		TotalPages: totalPages,
		HasNext:    params.Page < totalPages,
		HasPrev:    params.Page > 1,
	}
}
