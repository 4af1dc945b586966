package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"snda-portal/internal/domain"

	"github.com/go-chi/chi/v5"
)

// FakeBackend is an httptest server speaking the token and users/me endpoints
type FakeBackend struct {
	Server *httptest.Server

	mu sync.Mutex
	// Users maps username to (password, profile)
	passwords map[string]string
	profiles  map[string]*domain.User
	// tokens maps issued access tokens to usernames
	tokens map[string]string

	// Overrides; when set they replace the default behaviour
	TokenHandler http.HandlerFunc
	MeHandler    http.HandlerFunc

	TokenCalls int
	MeCalls    int
	LastAuth   string
	Cookies    []*http.Cookie

	t *testing.T
}

// NewFakeBackend starts a backend and registers cleanup with t
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()
	fb := &FakeBackend{
		passwords: make(map[string]string),
		profiles:  make(map[string]*domain.User),
		tokens:    make(map[string]string),
		t:         t,
	}

	r := chi.NewRouter()
	r.Post("/api/token/", fb.handleToken)
	r.Get("/api/users/me/", fb.handleMe)
	r.Get("/api/cases/", fb.handleCases)

	fb.Server = httptest.NewServer(r)
	t.Cleanup(fb.Server.Close)
	return fb
}

// URL returns the backend origin
func (fb *FakeBackend) URL() string {
	return fb.Server.URL
}

// AddUser registers credentials and the profile returned after login
func (fb *FakeBackend) AddUser(password string, user *domain.User) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.passwords[user.Username] = password
	fb.profiles[user.Username] = user
}

// IssueToken makes token valid for username on the users/me endpoint
func (fb *FakeBackend) IssueToken(token, username string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.tokens[token] = username
}

// Calls returns the number of token and users/me requests seen
func (fb *FakeBackend) Calls() (token, me int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.TokenCalls, fb.MeCalls
}

func (fb *FakeBackend) handleToken(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	fb.TokenCalls++
	override := fb.TokenHandler
	fb.mu.Unlock()

	if override != nil {
		override(w, r)
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"detail": "Malformed request"})
		return
	}

	fb.mu.Lock()
	want, ok := fb.passwords[req.Username]
	if !ok || want != req.Password {
		fb.mu.Unlock()
		WriteJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid credentials"})
		return
	}
	access := ValidAccessToken(fb.t, string(fb.profiles[req.Username].ID))
	refresh := "refresh-" + req.Username
	fb.tokens[access] = req.Username
	fb.mu.Unlock()

	WriteJSON(w, http.StatusOK, domain.TokenPair{Access: access, Refresh: refresh})
}

func (fb *FakeBackend) handleMe(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	fb.MeCalls++
	fb.LastAuth = r.Header.Get("Authorization")
	fb.Cookies = r.Cookies()
	override := fb.MeHandler
	fb.mu.Unlock()

	if override != nil {
		override(w, r)
		return
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	fb.mu.Lock()
	username, ok := fb.tokens[token]
	var profile *domain.User
	if ok {
		profile = fb.profiles[username]
	}
	fb.mu.Unlock()

	if !ok || profile == nil {
		WriteJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
		return
	}
	WriteJSON(w, http.StatusOK, profile)
}

func (fb *FakeBackend) handleCases(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	fb.mu.Lock()
	_, ok := fb.tokens[token]
	fb.mu.Unlock()
	if !ok {
		WriteJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
		return
	}
	WriteJSON(w, http.StatusOK, []map[string]string{{"id": "c1", "title": "Medical support", "status": "open"}})
}

// WriteJSON writes v with the given status code
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
