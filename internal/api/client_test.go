package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"snda-portal/internal/domain"
	"snda-portal/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackendWithUser(t *testing.T) *testutil.FakeBackend {
	t.Helper()
	fb := testutil.NewFakeBackend(t)
	fb.AddUser("pw", &domain.User{ID: "7", Username: "user@example.com", Email: "user@example.com"})
	return fb
}

func TestObtainToken_Success(t *testing.T) {
	fb := newBackendWithUser(t)
	client := NewClient(fb.URL())

	pair, err := client.ObtainToken(context.Background(), "user@example.com", "pw")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.Access)
	assert.Equal(t, "refresh-user@example.com", pair.Refresh)
}

func TestObtainToken_SendsUsernameField(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/token/", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		testutil.WriteJSON(w, http.StatusOK, domain.TokenPair{Access: "a", Refresh: "r"})
	}))
	defer server.Close()

	_, err := NewClient(server.URL).ObtainToken(context.Background(), "amal", "secret")
	require.NoError(t, err)
	assert.JSONEq(t, `{"username":"amal","password":"secret"}`, body)
}

func TestObtainToken_InvalidCredentials(t *testing.T) {
	fb := newBackendWithUser(t)
	client := NewClient(fb.URL())

	pair, err := client.ObtainToken(context.Background(), "user@example.com", "wrong")
	assert.Nil(t, pair)

	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, http.StatusUnauthorized, respErr.StatusCode)
	assert.Equal(t, "Invalid credentials", respErr.Error())
}

func TestObtainToken_MissingAccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteJSON(w, http.StatusOK, map[string]string{"refresh": "r"})
	}))
	defer server.Close()

	_, err := NewClient(server.URL).ObtainToken(context.Background(), "amal", "pw")
	assert.ErrorIs(t, err, domain.ErrMalformedToken)
}

func TestObtainToken_UndecodableBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "<html>maintenance</html>")
	}))
	defer server.Close()

	_, err := NewClient(server.URL).ObtainToken(context.Background(), "amal", "pw")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedToken)
	assert.Contains(t, err.Error(), "failed to decode token response")
}

func TestObtainToken_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewClient(url).ObtainToken(context.Background(), "amal", "pw")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBackendUnreachable)
}

func TestCurrentUser(t *testing.T) {
	fb := newBackendWithUser(t)
	fb.IssueToken("tok-1", "user@example.com")
	client := NewClient(fb.URL())

	user, err := client.CurrentUser(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ID("7"), user.ID)
	assert.Equal(t, "Bearer tok-1", fb.LastAuth)
}

func TestCurrentUser_Unauthorized(t *testing.T) {
	fb := newBackendWithUser(t)
	client := NewClient(fb.URL())

	_, err := client.CurrentUser(context.Background(), "unknown")

	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, "Given token not valid for any token type", respErr.Message)
}

func TestCurrentUser_BadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL).CurrentUser(context.Background(), "t")
	assert.ErrorContains(t, err, "failed to decode user profile")
}

func TestAuthFetch(t *testing.T) {
	fb := newBackendWithUser(t)
	fb.IssueToken("tok-2", "user@example.com")
	client := NewClient(fb.URL())

	t.Run("with_token", func(t *testing.T) {
		resp, err := client.AuthFetch(context.Background(), "tok-2", http.MethodGet, "/api/cases/", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(data), "Medical support")
	})

	t.Run("without_token", func(t *testing.T) {
		resp, err := client.AuthFetch(context.Background(), "", http.MethodGet, "api/cases/", nil)
		assert.Nil(t, resp)
		assert.EqualError(t, err, "Authentication credentials were not provided.")
	})
}

func TestAuthFetch_OmitsAuthorizationWithoutToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	resp, err := NewClient(server.URL).AuthFetch(context.Background(), "", http.MethodDelete, "/x", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestWithRateLimit_Waits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRateLimit(1, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	resp, err := client.AuthFetch(ctx, "", http.MethodGet, "/", nil)
	require.NoError(t, err)
	resp.Body.Close()

	// The bucket is empty; the limiter refuses to wait past the deadline.
	_, err = client.AuthFetch(ctx, "", http.MethodGet, "/", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}

func TestWithEndpoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/me", r.URL.Path)
		testutil.WriteJSON(w, http.StatusOK, domain.User{ID: "1", Username: "x"})
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", WithEndpoints(Endpoints{Login: "/auth/login", Me: "/auth/me"}))
	assert.Equal(t, server.URL, client.BaseURL())

	_, err := client.CurrentUser(context.Background(), "t")
	require.NoError(t, err)
}

func TestContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(server.URL).CurrentUser(ctx, "t")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, strings.HasPrefix(err.Error(), "fetch current user"))
}
