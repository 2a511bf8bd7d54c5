package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/utafrali/BookReviewGo/internal/domain"
	"github.com/utafrali/BookReviewGo/pkg/httpclient"
)

const remoteName = "bookreview"

// apiClient speaks the service's JSON envelope over a httpclient.Doer.
type apiClient struct {
	baseURL string
	doer    httpclient.Doer
}

func newAPIClient(baseURL string, doer httpclient.Doer) *apiClient {
	return &apiClient{baseURL: strings.TrimRight(baseURL, "/"), doer: doer}
}

func (c *apiClient) call(ctx context.Context, method, path, token string, body, out any) error {
	var payload io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		// bytes.Reader keeps the body replayable for retries.
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("create %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return httpclient.ParseResponseError(resp, remoteName)
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	envelope := struct {
		Data any `json:"data"`
	}{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *apiClient) ready(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/health/ready", "", nil, nil)
}

func (c *apiClient) register(ctx context.Context, name, email, password string) (*domain.AuthResult, error) {
	var out domain.AuthResult
	err := c.call(ctx, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": name, "email": email, "password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) login(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	var out domain.AuthResult
	err := c.call(ctx, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": email, "password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) createBook(ctx context.Context, token string, b catalogueBook) (*domain.Book, error) {
	var out domain.Book
	err := c.call(ctx, http.MethodPost, "/api/v1/books", token, map[string]any{
		"title":       b.Title,
		"author":      b.Author,
		"description": b.Description,
		"genre":       b.Genre,
		"year":        b.Year,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) submitReview(ctx context.Context, token, bookID string, rating int, text string) (*domain.Review, error) {
	var out domain.Review
	err := c.call(ctx, http.MethodPost, "/api/v1/books/"+bookID+"/reviews", token, map[string]any{
		"rating":      rating,
		"review_text": text,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
