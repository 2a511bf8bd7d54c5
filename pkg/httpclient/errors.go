package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/BookReviewGo/pkg/errors"
)

const maxErrorBody = 1 << 20

type errorEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError consumes and closes the body of a non-2xx response and
// turns it into an error. A body in the standard envelope yields an
// *apperrors.AppError keeping the remote code and status, wrapping the
// sentinel that matches the status so errors.Is works on the caller's side.
func ParseResponseError(resp *http.Response, remote string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s returned status %d (read body: %w)", remote, resp.StatusCode, err)
	}

	var env errorEnvelope
	if json.Unmarshal(body, &env) != nil || env.Error == nil {
		return fmt.Errorf("%s returned status %d: %s", remote, resp.StatusCode, string(body))
	}

	return &apperrors.AppError{
		Code:    env.Error.Code,
		Message: fmt.Sprintf("%s: %s", remote, env.Error.Message),
		Status:  resp.StatusCode,
		Err:     sentinelFor(resp.StatusCode, env.Error.Code),
	}
}

func sentinelFor(status int, code string) error {
	switch {
	case status == http.StatusNotFound:
		return apperrors.ErrNotFound
	case status == http.StatusBadRequest:
		return apperrors.ErrInvalidInput
	case status == http.StatusUnauthorized:
		return apperrors.ErrUnauthorized
	case status == http.StatusForbidden:
		return apperrors.ErrForbidden
	case status == http.StatusConflict && code == "CONFLICT":
		return apperrors.ErrConflict
	case status == http.StatusConflict:
		return apperrors.ErrAlreadyExists
	case status >= http.StatusInternalServerError:
		return apperrors.ErrInternal
	default:
		return nil
	}
}
