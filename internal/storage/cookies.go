package storage

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"snda-portal/internal/domain"

	"golang.org/x/net/publicsuffix"
)

// Default cookie lifetimes for the mirrored tokens
const (
	DefaultAccessCookieTTL  = time.Hour
	DefaultRefreshCookieTTL = 7 * 24 * time.Hour
)

// CookieMirror mirrors the token pair into cookies on the API origin so that
// origin-side checks can read them without a backend round trip.
type CookieMirror struct {
	jar    http.CookieJar
	origin *url.URL
	keys   domain.StorageKeys
}

// NewCookieMirror creates a mirror over a fresh public-suffix-aware jar
func NewCookieMirror(origin string, keys domain.StorageKeys) (*CookieMirror, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return NewCookieMirrorWithJar(jar, origin, keys)
}

// NewCookieMirrorWithJar creates a mirror over an existing jar
func NewCookieMirrorWithJar(jar http.CookieJar, origin string, keys domain.StorageKeys) (*CookieMirror, error) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid cookie origin %q: %w", origin, domain.ErrInvalidInput)
	}
	return &CookieMirror{jar: jar, origin: &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}, keys: keys}, nil
}

// Jar returns the underlying jar so HTTP clients can share it
func (m *CookieMirror) Jar() http.CookieJar {
	return m.jar
}

// SetTokens writes both token cookies with their lifetimes
func (m *CookieMirror) SetTokens(pair domain.TokenPair, accessTTL, refreshTTL time.Duration) {
	m.jar.SetCookies(m.origin, []*http.Cookie{
		m.cookie(m.keys.AccessToken, pair.Access, accessTTL),
		m.cookie(m.keys.RefreshToken, pair.Refresh, refreshTTL),
	})
}

// Clear expires both token cookies immediately
func (m *CookieMirror) Clear() {
	m.jar.SetCookies(m.origin, []*http.Cookie{
		{Name: m.keys.AccessToken, Value: "", Path: "/", MaxAge: -1},
		{Name: m.keys.RefreshToken, Value: "", Path: "/", MaxAge: -1},
	})
}

// Token returns the current value of the named cookie
func (m *CookieMirror) Token(name string) (string, bool) {
	for _, c := range m.jar.Cookies(m.origin) {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

func (m *CookieMirror) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		SameSite: http.SameSiteLaxMode,
		Secure:   m.origin.Scheme == "https",
	}
}
