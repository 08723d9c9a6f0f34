package connection

import (
	"fmt"
	"net/url"
	"strings"
)

// normalizeURL accepts ws:/wss: URLs with an implicit scheme, rejects
// http(s), and appends defaultPath if the URL carries none (spec.md §4.3
// "URL normalization").
func normalizeURL(raw, defaultPath string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("connection: invalid url %q: %w", raw, err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		return "", fmt.Errorf("connection: scheme %q not allowed, use ws", u.Scheme)
	case "https":
		return "", fmt.Errorf("connection: scheme %q not allowed, use wss", u.Scheme)
	default:
		return "", fmt.Errorf("connection: unsupported scheme %q", u.Scheme)
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = defaultPath
	}

	return u.String(), nil
}
