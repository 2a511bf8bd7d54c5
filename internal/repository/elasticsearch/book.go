// Package elasticsearch keeps a full-text index of the catalog for fuzzy
// title and author search. The relational store stays the source of truth:
// searches return book IDs only.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/utafrali/BookReviewGo/internal/domain"
	"github.com/utafrali/BookReviewGo/internal/repository"
)

// BookIndex implements repository.BookIndex on Elasticsearch.
type BookIndex struct {
	client    *elasticsearch.Client
	indexName string
	logger    *slog.Logger
}

var _ repository.BookIndex = (*BookIndex)(nil)

type bookDocument struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Genre     string    `json:"genre"`
	Year      int       `json:"year"`
	AddedBy   string    `json:"added_by"`
	CreatedAt time.Time `json:"created_at"`
}

type esSearchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID string `json:"_id"`
		} `json:"hits"`
	} `json:"hits"`
}

type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// New connects to the cluster at esURL and creates the index if it is
// missing. An empty indexName selects DefaultIndexName.
func New(ctx context.Context, esURL, indexName string, logger *slog.Logger) (*BookIndex, error) {
	if indexName == "" {
		indexName = DefaultIndexName
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{esURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	idx := &BookIndex{client: client, indexName: indexName, logger: logger}
	if err := idx.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("ensure elasticsearch index: %w", err)
	}
	return idx, nil
}

// Ping checks that the cluster is reachable.
func (i *BookIndex) Ping(ctx context.Context) error {
	res, err := i.client.Ping(i.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

func (i *BookIndex) ensureIndex(ctx context.Context) error {
	res, err := i.client.Indices.Exists([]string{i.indexName}, i.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	_ = res.Body.Close()

	if res.StatusCode == http.StatusOK {
		i.logger.Info("elasticsearch index already exists", slog.String("index", i.indexName))
		return nil
	}

	res, err = i.client.Indices.Create(
		i.indexName,
		i.client.Indices.Create.WithBody(strings.NewReader(buildIndexMapping())),
		i.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("create index", res.Status(), res.Body)
	}

	i.logger.Info("elasticsearch index created", slog.String("index", i.indexName))
	return nil
}

// Index adds or replaces the document of book.
func (i *BookIndex) Index(ctx context.Context, book *domain.Book) error {
	data, err := json.Marshal(bookDocument{
		ID:        book.ID,
		Title:     book.Title,
		Author:    book.Author,
		Genre:     book.Genre,
		Year:      book.Year,
		AddedBy:   book.AddedBy,
		CreatedAt: book.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal book document: %w", err)
	}

	res, err := i.client.Index(
		i.indexName,
		bytes.NewReader(data),
		i.client.Index.WithDocumentID(book.ID),
		i.client.Index.WithRefresh("true"),
		i.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch index book: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("elasticsearch index book", res.Status(), res.Body)
	}
	return nil
}

// Delete drops the document of id. A missing document is not an error.
func (i *BookIndex) Delete(ctx context.Context, id string) error {
	res, err := i.client.Delete(
		i.indexName,
		id,
		i.client.Delete.WithRefresh("true"),
		i.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete book: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("elasticsearch delete book", res.Status(), res.Body)
	}
	return nil
}

// Search returns the IDs of one page of books matching filter, plus the
// total number of matches.
func (i *BookIndex) Search(ctx context.Context, filter repository.BookFilter) ([]string, int, error) {
	data, err := json.Marshal(buildSearchQuery(filter))
	if err != nil {
		return nil, 0, fmt.Errorf("marshal search query: %w", err)
	}

	res, err := i.client.Search(
		i.client.Search.WithIndex(i.indexName),
		i.client.Search.WithBody(bytes.NewReader(data)),
		i.client.Search.WithTrackTotalHits(true),
		i.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("elasticsearch search books: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, 0, responseError("elasticsearch search books", res.Status(), res.Body)
	}

	var out esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, 0, fmt.Errorf("decode search response: %w", err)
	}

	ids := make([]string, 0, len(out.Hits.Hits))
	for _, hit := range out.Hits.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, out.Hits.Total.Value, nil
}

func buildSearchQuery(filter repository.BookFilter) map[string]any {
	var must any = map[string]any{"match_all": map[string]any{}}
	if filter.Search != nil && strings.TrimSpace(*filter.Search) != "" {
		must = map[string]any{
			"multi_match": map[string]any{
				"query":         strings.TrimSpace(*filter.Search),
				"fields":        []string{"title^2", "author"},
				"type":          "best_fields",
				"fuzziness":     "AUTO",
				"prefix_length": 1,
			},
		}
	}

	boolQuery := map[string]any{"must": []any{must}}
	if filter.Genre != nil && *filter.Genre != "" {
		boolQuery["filter"] = []any{
			map[string]any{"term": map[string]any{"genre": *filter.Genre}},
		}
	}

	page, perPage := max(filter.Page, 1), max(filter.PerPage, 1)
	return map[string]any{
		"query":   map[string]any{"bool": boolQuery},
		"sort":    buildSort(filter.Sort),
		"from":    (page - 1) * perPage,
		"size":    perPage,
		"_source": false,
	}
}

// buildSort mirrors the store orderings. ID breaks ties so pages are stable.
func buildSort(sort domain.BookSort) []any {
	var primary map[string]any
	switch sort {
	case domain.SortYear:
		primary = map[string]any{"year": "asc"}
	case domain.SortYearDesc:
		primary = map[string]any{"year": "desc"}
	default:
		primary = map[string]any{"created_at": "desc"}
	}
	return []any{primary, map[string]any{"id": "asc"}}
}

func responseError(op, status string, body io.Reader) error {
	var errResp esErrorResponse
	if err := json.NewDecoder(body).Decode(&errResp); err == nil && errResp.Error.Type != "" {
		return fmt.Errorf("%s: %s: %s", op, errResp.Error.Type, errResp.Error.Reason)
	}
	return fmt.Errorf("%s: unexpected status %s", op, status)
}
