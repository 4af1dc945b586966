// Package testutil provides shared test helpers for the snda-portal packages.
package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSigningKey = "test-signing-key-not-secret"

// NewToken signs claims with a throwaway HMAC key. The session code never
// verifies signatures so the key is irrelevant to callers.
func NewToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSigningKey))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return token
}

// AccessToken returns a token for userID that expires at exp
func AccessToken(t *testing.T, userID string, exp time.Time) string {
	t.Helper()
	return NewToken(t, jwt.MapClaims{
		"token_type": "access",
		"user_id":    userID,
		"exp":        exp.Unix(),
	})
}

// ValidAccessToken returns a token that expires in one hour
func ValidAccessToken(t *testing.T, userID string) string {
	t.Helper()
	return AccessToken(t, userID, time.Now().Add(time.Hour))
}

// ExpiredAccessToken returns a token that expired one hour ago
func ExpiredAccessToken(t *testing.T, userID string) string {
	t.Helper()
	return AccessToken(t, userID, time.Now().Add(-time.Hour))
}
