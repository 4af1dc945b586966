package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"snda-portal/internal/domain"
)

// maxErrorBody bounds how much of an error response is read
const maxErrorBody = 64 << 10

// ResponseError is returned for any non-2xx backend response
type ResponseError struct {
	StatusCode int
	Message    string
}

func (e *ResponseError) Error() string {
	return e.Message
}

// ReadErrorMessage extracts a human-readable message from a failed response.
// A JSON "detail" field is preferred, other JSON is returned re-encoded, then the
// raw body text, then the HTTP status text.
func ReadErrorMessage(resp *http.Response) string {
	statusText := http.StatusText(resp.StatusCode)
	if resp.Body == nil {
		return statusText
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return statusText
	}

	return errorMessageFromBody(body, statusText)
}

func errorMessageFromBody(body []byte, statusText string) string {
	var data any
	if err := json.Unmarshal(body, &data); err == nil {
		if obj, ok := data.(map[string]any); ok {
			if detail, found := obj["detail"]; found {
				s, _ := detail.(string)
				return s
			}
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, body); err == nil {
			return compact.String()
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return statusText
}

func newResponseError(resp *http.Response) *ResponseError {
	return &ResponseError{
		StatusCode: resp.StatusCode,
		Message:    ReadErrorMessage(resp),
	}
}

func transportError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrBackendUnreachable, err)
}
