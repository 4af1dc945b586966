// Package auth decodes access-token claims. Tokens are decoded, never verified:
// signature checks belong to the backend that issued them.
package auth

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"snda-portal/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// Claims holds the fields the session manager needs from an access token
type Claims struct {
	ExpiresAt time.Time
	Subject   string
}

// DecodeClaims extracts expiry and subject from a JWT without checking its signature
func DecodeClaims(token string) (Claims, error) {
	if strings.TrimSpace(token) == "" {
		return Claims{}, fmt.Errorf("empty token: %w", domain.ErrMalformedToken)
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", domain.ErrMalformedToken, err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("unexpected claims type: %w", domain.ErrMalformedToken)
	}

	var claims Claims

	exp, err := mapClaims.GetExpirationTime()
	if err != nil {
		return Claims{}, fmt.Errorf("invalid exp claim: %w", domain.ErrMalformedToken)
	}
	if exp != nil {
		claims.ExpiresAt = exp.Time
	}

	if sub, err := mapClaims.GetSubject(); err == nil && sub != "" {
		claims.Subject = sub
	} else {
		claims.Subject = stringClaim(mapClaims["user_id"])
	}

	return claims, nil
}

// Expired reports whether the token is no longer usable at now.
// A token without an exp claim is treated as expired.
func (c Claims) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return !c.ExpiresAt.After(now)
}

// Usable returns an error wrapping domain.ErrSessionExpired when the token is
// expired at now, and nil otherwise.
func (c Claims) Usable(now time.Time) error {
	if c.ExpiresAt.IsZero() {
		return fmt.Errorf("token has no exp claim: %w", domain.ErrSessionExpired)
	}
	if c.Expired(now) {
		return fmt.Errorf("token expired at %s: %w", c.ExpiresAt.UTC().Format(time.RFC3339), domain.ErrSessionExpired)
	}
	return nil
}

func stringClaim(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
