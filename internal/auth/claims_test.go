package auth

import (
	"testing"
	"time"

	"snda-portal/internal/domain"
	"snda-portal/internal/testutil"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClaims_UserIDClaim(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := testutil.AccessToken(t, "17", exp)

	claims, err := DecodeClaims(token)
	require.NoError(t, err)

	assert.Equal(t, "17", claims.Subject)
	assert.True(t, claims.ExpiresAt.Equal(exp), "expected %v, got %v", exp, claims.ExpiresAt)
	assert.False(t, claims.Expired(time.Now()))
}

func TestDecodeClaims_SubjectPreferred(t *testing.T) {
	token := testutil.NewToken(t, jwt.MapClaims{
		"sub":     "subject-1",
		"user_id": "ignored",
		"exp":     time.Now().Add(time.Minute).Unix(),
	})

	claims, err := DecodeClaims(token)
	require.NoError(t, err)
	assert.Equal(t, "subject-1", claims.Subject)
}

func TestDecodeClaims_NumericUserID(t *testing.T) {
	token := testutil.NewToken(t, jwt.MapClaims{
		"user_id": 42,
		"exp":     time.Now().Add(time.Minute).Unix(),
	})

	claims, err := DecodeClaims(token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
}

func TestDecodeClaims_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"not a jwt", "definitely-not-a-token"},
		{"two segments", "abc.def"},
		{"bad base64", "###.$$$.%%%"},
		{"bad exp type", testutil.NewToken(t, jwt.MapClaims{"exp": "tomorrow"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeClaims(tt.token)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrMalformedToken)
		})
	}
}

func TestClaims_Expired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name    string
		exp     time.Time
		expired bool
	}{
		{"future", now.Add(time.Second), false},
		{"exactly now", now, true},
		{"past", now.Add(-time.Second), true},
		{"missing exp", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Claims{ExpiresAt: tt.exp}
			assert.Equal(t, tt.expired, c.Expired(now))
		})
	}
}

func TestDecodeClaims_MissingExp(t *testing.T) {
	token := testutil.NewToken(t, jwt.MapClaims{"user_id": "5"})

	claims, err := DecodeClaims(token)
	require.NoError(t, err)
	assert.True(t, claims.ExpiresAt.IsZero())
	assert.True(t, claims.Expired(time.Now()))
}

func TestClaims_Usable(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	assert.NoError(t, Claims{ExpiresAt: now.Add(time.Minute)}.Usable(now))

	err := Claims{ExpiresAt: now}.Usable(now)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
	assert.Contains(t, err.Error(), "token expired at 2023-11-14T22:13:20Z")

	err = Claims{}.Usable(now)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
	assert.Contains(t, err.Error(), "no exp claim")
}
