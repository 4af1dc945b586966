package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrMalformedToken     = errors.New("malformed token")
	ErrSessionExpired     = errors.New("session expired")
	ErrBackendUnreachable = errors.New("backend unreachable")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrProfileFetchFailed = errors.New("profile fetch failed")
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotAuthenticated   = errors.New("not authenticated")
)

// TokenPair is the credential pair issued by the token endpoint
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// SessionState is the two-state session machine
type SessionState int

const (
	LoggedOut SessionState = iota
	LoggedIn
)

func (s SessionState) String() string {
	if s == LoggedIn {
		return "logged_in"
	}
	return "logged_out"
}

// AuthError carries the human-readable message shown to the user.
// Error returns the message verbatim; the Kind sentinel is reachable through errors.Is.
type AuthError struct {
	Kind       error
	Message    string
	StatusCode int
}

func (e *AuthError) Error() string {
	if e.Message == "" && e.Kind != nil {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Kind
}

// NewAuthError builds an AuthError, using fallback when message is empty
func NewAuthError(kind error, status int, message, fallback string) *AuthError {
	if message == "" {
		message = fallback
	}
	return &AuthError{Kind: kind, Message: message, StatusCode: status}
}

// StorageKeys names the persistent entries owned by the session manager
type StorageKeys struct {
	AccessToken  string `toml:"access_token"`
	RefreshToken string `toml:"refresh_token"`
	User         string `toml:"user"`
}

// DefaultStorageKeys returns the key names used by the web front-end
func DefaultStorageKeys() StorageKeys {
	return StorageKeys{
		AccessToken:  "snda_access_token",
		RefreshToken: "snda_refresh_token",
		User:         "snda_user",
	}
}

// Validate reports an error when any key name is empty
func (k StorageKeys) Validate() error {
	if k.AccessToken == "" || k.RefreshToken == "" || k.User == "" {
		return fmt.Errorf("storage keys must be non-empty: %w", ErrInvalidInput)
	}
	return nil
}

// Store defines the persistent key-value surface shared with the rest of the application
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// BatchStore is a Store that can write several entries as one unit. Either
// every entry is written or none is.
type BatchStore interface {
	Store
	SetMany(ctx context.Context, entries map[string]string) error
}
