package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"snda-portal/internal/api"
	"snda-portal/internal/auth"
	"snda-portal/internal/domain"
	"snda-portal/internal/observability"
	"snda-portal/internal/storage"
)

const (
	loginFailedMessage   = "Login failed"
	profileFailedMessage = "Failed to load user profile"
	loginSuccessMessage  = "Logged in successfully"
)

// Backend is the subset of the REST API the session manager depends on
type Backend interface {
	ObtainToken(ctx context.Context, username, password string) (*domain.TokenPair, error)
	CurrentUser(ctx context.Context, accessToken string) (*domain.User, error)
	AuthFetch(ctx context.Context, token, method, path string, body any) (*http.Response, error)
}

// TokenCookies is the cookie half of the token dual write
type TokenCookies interface {
	SetTokens(pair domain.TokenPair, accessTTL, refreshTTL time.Duration)
	Clear()
}

// SessionManager is the single source of truth for who is logged in.
// Restore and Login are not serialised against each other; the last write wins.
type SessionManager struct {
	backend   Backend
	store     domain.Store
	cookies   TokenCookies
	keys      domain.StorageKeys
	navigator Navigator
	notifier  Notifier
	now       func() time.Time
	locale    string

	accessTTL  time.Duration
	refreshTTL time.Duration

	mu          sync.RWMutex
	user        *domain.User
	loading     bool
	subscribers map[int]func(*domain.User)
	nextSubID   int
}

// SessionOption configures a SessionManager
type SessionOption func(*SessionManager)

// WithNavigator receives the redirect targets after login and logout
func WithNavigator(n Navigator) SessionOption {
	return func(s *SessionManager) { s.navigator = n }
}

// WithNotifier receives user-facing success notifications
func WithNotifier(n Notifier) SessionOption {
	return func(s *SessionManager) { s.notifier = n }
}

// WithClock overrides the time source used for expiry checks
func WithClock(now func() time.Time) SessionOption {
	return func(s *SessionManager) { s.now = now }
}

// WithStorageKeys overrides the persisted key names
func WithStorageKeys(keys domain.StorageKeys) SessionOption {
	return func(s *SessionManager) { s.keys = keys }
}

// WithLocale sets the locale prefix of redirect locations
func WithLocale(locale string) SessionOption {
	return func(s *SessionManager) { s.locale = locale }
}

// WithCookieTTL overrides the mirrored cookie lifetimes
func WithCookieTTL(access, refresh time.Duration) SessionOption {
	return func(s *SessionManager) {
		s.accessTTL = access
		s.refreshTTL = refresh
	}
}

// NewSessionManager creates a manager in the loading state. cookies may be nil
// when no cookie surface exists.
func NewSessionManager(backend Backend, store domain.Store, cookies TokenCookies, opts ...SessionOption) *SessionManager {
	s := &SessionManager{
		backend:     backend,
		store:       store,
		cookies:     cookies,
		keys:        domain.DefaultStorageKeys(),
		navigator:   LogNavigator{},
		notifier:    LogNotifier{},
		now:         time.Now,
		locale:      "en",
		accessTTL:   storage.DefaultAccessCookieTTL,
		refreshTTL:  storage.DefaultRefreshCookieTTL,
		loading:     true,
		subscribers: make(map[int]func(*domain.User)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cookies == nil {
		s.cookies = noCookies{}
	}
	return s
}

// CurrentUser returns the logged-in profile or nil
func (s *SessionManager) CurrentUser() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// IsAuthenticated reports whether a user is logged in
func (s *SessionManager) IsAuthenticated() bool {
	return s.CurrentUser() != nil
}

// State returns LoggedIn or LoggedOut
func (s *SessionManager) State() domain.SessionState {
	if s.IsAuthenticated() {
		return domain.LoggedIn
	}
	return domain.LoggedOut
}

// Loading is true until the first Restore completes
func (s *SessionManager) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// HomeLocation is where logout sends the caller
func (s *SessionManager) HomeLocation() string {
	return "/" + s.locale
}

// LandingLocation is where a successful login sends the caller
func (s *SessionManager) LandingLocation() string {
	return "/" + s.locale + "/dashboard"
}

// Subscribe registers fn to be called on every LoggedIn/LoggedOut transition.
// fn receives nil on logout. The returned func removes the subscription.
func (s *SessionManager) Subscribe(fn func(*domain.User)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// Restore rebuilds the session from the persisted access token. Every failure
// resolves to LoggedOut; nothing is returned to the caller.
func (s *SessionManager) Restore(ctx context.Context) {
	defer s.setLoading(false)

	token, ok, err := s.store.Get(ctx, s.keys.AccessToken)
	if err != nil {
		slog.Warn("failed to read persisted token", slog.String("error", err.Error()))
		observability.SessionRestores.WithLabelValues("store_error").Inc()
		s.Logout(ctx)
		return
	}
	if !ok || token == "" {
		observability.SessionRestores.WithLabelValues("anonymous").Inc()
		return
	}

	claims, err := auth.DecodeClaims(token)
	if err != nil {
		slog.Debug("discarding undecodable token", slog.String("error", err.Error()))
		observability.SessionRestores.WithLabelValues("malformed").Inc()
		s.Logout(ctx)
		return
	}

	if err := claims.Usable(s.now()); err != nil {
		slog.Info("persisted token expired",
			slog.String("error", err.Error()),
			slog.String("subject", claims.Subject))
		observability.SessionRestores.WithLabelValues("expired").Inc()
		s.Logout(ctx)
		return
	}

	user, err := s.backend.CurrentUser(ctx, token)
	if err != nil {
		outcome := "rejected"
		if errors.Is(err, domain.ErrBackendUnreachable) {
			outcome = "unreachable"
		}
		slog.Warn("session restore failed",
			slog.String("error", err.Error()),
			slog.String("subject", claims.Subject))
		observability.SessionRestores.WithLabelValues(outcome).Inc()
		s.Logout(ctx)
		return
	}

	s.mirrorCookies(ctx, token)
	s.persistUser(ctx, user)
	s.setUser(user)
	observability.SessionRestores.WithLabelValues("restored").Inc()
	observability.FromContext(observability.WithUserID(ctx, string(user.ID))).Info("session restored",
		slog.String("username", user.Username))
}

// Login exchanges credentials for tokens, persists them, and loads the profile.
// The session is LoggedIn only once the profile fetch has succeeded. Returned
// errors are *domain.AuthError whose message is fit for display.
func (s *SessionManager) Login(ctx context.Context, identifier, password string) (*domain.User, error) {
	if strings.TrimSpace(identifier) == "" || password == "" {
		observability.LoginAttempts.WithLabelValues("invalid_input").Inc()
		return nil, &domain.AuthError{
			Kind:    domain.ErrInvalidInput,
			Message: "Username and password are required",
		}
	}

	pair, err := s.backend.ObtainToken(ctx, identifier, password)
	if err != nil {
		authErr := classifyLoginError(err)
		observability.LoginAttempts.WithLabelValues(outcomeFor(authErr.Kind)).Inc()
		slog.Info("login rejected",
			slog.String("identifier", identifier),
			slog.String("error", authErr.Message))
		return nil, authErr
	}

	if err := s.persistTokens(ctx, *pair); err != nil {
		observability.LoginAttempts.WithLabelValues("store_error").Inc()
		return nil, err
	}

	user, err := s.backend.CurrentUser(ctx, pair.Access)
	if err != nil {
		authErr := classifyProfileError(err)
		observability.LoginAttempts.WithLabelValues("profile_failed").Inc()
		slog.Warn("profile fetch after login failed",
			slog.String("identifier", identifier),
			slog.String("error", authErr.Message))
		return nil, authErr
	}

	s.persistUser(ctx, user)
	s.setUser(user)
	observability.LoginAttempts.WithLabelValues("success").Inc()
	observability.FromContext(observability.WithUserID(ctx, string(user.ID))).Info("user logged in",
		slog.String("username", user.Username))

	s.navigator.Navigate(s.LandingLocation())
	s.notifier.Success(loginSuccessMessage)
	return user, nil
}

// Logout clears persisted and in-memory session state and redirects home.
// No backend call is made. Safe to call when already logged out.
func (s *SessionManager) Logout(ctx context.Context) {
	s.clearPersisted(ctx)
	s.setUser(nil)
	s.navigator.Navigate(s.HomeLocation())
}

// AccessToken returns the persisted access token, if any
func (s *SessionManager) AccessToken(ctx context.Context) (string, bool) {
	token, ok, err := s.store.Get(ctx, s.keys.AccessToken)
	if err != nil || !ok || token == "" {
		return "", false
	}
	return token, true
}

// CachedUser returns the profile persisted by the last successful load. It is
// for display while offline and never decides authentication.
func (s *SessionManager) CachedUser(ctx context.Context) (*domain.User, bool) {
	raw, ok, err := s.store.Get(ctx, s.keys.User)
	if err != nil || !ok {
		return nil, false
	}
	var user domain.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, false
	}
	return &user, true
}

// Fetch performs an authenticated backend request using the persisted token
func (s *SessionManager) Fetch(ctx context.Context, method, path string, body any) (*http.Response, error) {
	token, _ := s.AccessToken(ctx)
	return s.backend.AuthFetch(ctx, token, method, path, body)
}

func (s *SessionManager) persistTokens(ctx context.Context, pair domain.TokenPair) error {
	if batch, ok := s.store.(domain.BatchStore); ok {
		if err := batch.SetMany(ctx, map[string]string{
			s.keys.AccessToken:  pair.Access,
			s.keys.RefreshToken: pair.Refresh,
		}); err != nil {
			return fmt.Errorf("failed to persist tokens: %w", err)
		}
		s.cookies.SetTokens(pair, s.accessTTL, s.refreshTTL)
		return nil
	}

	if err := s.store.Set(ctx, s.keys.AccessToken, pair.Access); err != nil {
		return fmt.Errorf("failed to persist access token: %w", err)
	}
	if err := s.store.Set(ctx, s.keys.RefreshToken, pair.Refresh); err != nil {
		if delErr := s.store.Delete(ctx, s.keys.AccessToken); delErr != nil {
			slog.Warn("failed to roll back access token", slog.String("error", delErr.Error()))
		}
		return fmt.Errorf("failed to persist refresh token: %w", err)
	}
	s.cookies.SetTokens(pair, s.accessTTL, s.refreshTTL)
	return nil
}

// mirrorCookies rewrites the cookie surface from the persisted pair. Cookies do
// not outlive the process, so a restored session has to put them back.
func (s *SessionManager) mirrorCookies(ctx context.Context, access string) {
	refresh, _, err := s.store.Get(ctx, s.keys.RefreshToken)
	if err != nil {
		slog.Warn("failed to read persisted refresh token", slog.String("error", err.Error()))
	}
	s.cookies.SetTokens(domain.TokenPair{Access: access, Refresh: refresh}, s.accessTTL, s.refreshTTL)
}

func (s *SessionManager) persistUser(ctx context.Context, user *domain.User) {
	data, err := json.Marshal(user)
	if err != nil {
		slog.Warn("failed to encode user profile", slog.String("error", err.Error()))
		return
	}
	if err := s.store.Set(ctx, s.keys.User, string(data)); err != nil {
		slog.Warn("failed to cache user profile", slog.String("error", err.Error()))
	}
}

func (s *SessionManager) clearPersisted(ctx context.Context) {
	if err := s.store.Delete(ctx, s.keys.AccessToken, s.keys.RefreshToken, s.keys.User); err != nil {
		slog.Warn("failed to clear persisted session", slog.String("error", err.Error()))
	}
	s.cookies.Clear()
}

func (s *SessionManager) setUser(user *domain.User) {
	s.mu.Lock()
	changed := s.user != user
	s.user = user
	subs := make([]func(*domain.User), 0, len(s.subscribers))
	if changed {
		for _, fn := range s.subscribers {
			subs = append(subs, fn)
		}
	}
	s.mu.Unlock()

	if user != nil {
		observability.SessionAuthenticated.Set(1)
	} else {
		observability.SessionAuthenticated.Set(0)
	}

	for _, fn := range subs {
		fn(user)
	}
}

func (s *SessionManager) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

func classifyLoginError(err error) *domain.AuthError {
	var respErr *api.ResponseError
	if errors.As(err, &respErr) {
		kind := domain.ErrInvalidCredentials
		if respErr.StatusCode >= http.StatusInternalServerError {
			kind = domain.ErrBackendUnreachable
		}
		return domain.NewAuthError(kind, respErr.StatusCode, respErr.Message, loginFailedMessage)
	}
	if errors.Is(err, domain.ErrBackendUnreachable) {
		return domain.NewAuthError(domain.ErrBackendUnreachable, 0, err.Error(), loginFailedMessage)
	}
	if errors.Is(err, domain.ErrMalformedToken) {
		return domain.NewAuthError(domain.ErrMalformedToken, 0, err.Error(), loginFailedMessage)
	}
	return domain.NewAuthError(domain.ErrInvalidCredentials, 0, err.Error(), loginFailedMessage)
}

func classifyProfileError(err error) *domain.AuthError {
	var respErr *api.ResponseError
	if errors.As(err, &respErr) {
		return domain.NewAuthError(domain.ErrProfileFetchFailed, respErr.StatusCode, respErr.Message, profileFailedMessage)
	}
	return domain.NewAuthError(domain.ErrProfileFetchFailed, 0, err.Error(), profileFailedMessage)
}

func outcomeFor(kind error) string {
	switch {
	case errors.Is(kind, domain.ErrBackendUnreachable):
		return "unreachable"
	case errors.Is(kind, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	default:
		return "error"
	}
}

type noCookies struct{}

func (noCookies) SetTokens(domain.TokenPair, time.Duration, time.Duration) {}
func (noCookies) Clear() {}
