// Package validation checks user-supplied URLs, origins, hosts and names
// before they reach the preview document or the server.
package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// urlDangerous are characters that have no business in an asset URL and
// would break out of the attribute it is written into.
var urlDangerous = []string{"`", "<", ">", "\"", "'", "\\", "\n", "\r", " "}

// AssetURL validates a URL that will be referenced from the preview document.
// Only absolute http and https URLs with a host are accepted.
func AssetURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %q (only http/https allowed)", parsed.Scheme)
	}

	for _, char := range urlDangerous {
		if strings.Contains(rawURL, char) {
			return fmt.Errorf("URL contains dangerous character: %q", char)
		}
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must have a valid hostname")
	}

	return nil
}

// Origin validates an entry of an allowed-origins list: "*" or an http(s)
// origin without path, query or fragment.
func Origin(origin string) error {
	if origin == "*" {
		return nil
	}

	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid origin scheme %q: only http and https are allowed", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("origin %q has no host", origin)
	}
	if strings.Trim(u.Path, "/") != "" || u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("origin %q must not have a path, query or fragment", origin)
	}
	return nil
}
