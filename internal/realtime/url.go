// Package realtime implements a reconnecting websocket channel client.
package realtime

import (
	"net/url"
	"strings"
)

// ResolveURL builds the channel URL from the scheme and host of origin and
// path, translating http to ws and https to wss. Any path on origin is ignored. When origin is not an absolute URL the fallback origin
// is used instead; when neither parses, path is returned unchanged.
func ResolveURL(origin, path, fallback string) string {
	if isSocketURL(path) {
		return path
	}
	for _, candidate := range []string{origin, fallback} {
		if u, ok := parseOrigin(candidate); ok {
			return join(u, path)
		}
	}
	return path
}

func parseOrigin(raw string) (*url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, false
	}
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return nil, false
	}
	return u, true
}

func join(u *url.URL, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return u.Scheme + "://" + u.Host + path
}

func isSocketURL(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasPrefix(lower, "ws://") || strings.HasPrefix(lower, "wss://")
}
