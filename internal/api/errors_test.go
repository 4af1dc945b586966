package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestReadErrorMessage(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail field", 401, `{"detail":"Invalid credentials"}`, "Invalid credentials"},
		{"empty detail", 401, `{"detail":""}`, ""},
		{"non-string detail", 400, `{"detail":["a","b"]}`, ""},
		{"json without detail", 400, `{"username": ["This field is required."]}`, `{"username":["This field is required."]}`},
		{"json array", 400, `["bad"]`, `["bad"]`},
		{"plain text", 502, "upstream exploded\n", "upstream exploded"},
		{"empty body", 503, "", "Service Unavailable"},
		{"whitespace body", 500, "   ", "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReadErrorMessage(response(tt.status, tt.body)))
		})
	}
}

func TestReadErrorMessage_UnreadableBody(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusForbidden, Body: io.NopCloser(failingReader{})}
	assert.Equal(t, "Forbidden", ReadErrorMessage(resp))
}

func TestReadErrorMessage_NilBody(t *testing.T) {
	assert.Equal(t, "Not Found", ReadErrorMessage(&http.Response{StatusCode: http.StatusNotFound}))
}
