package http

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// JoinURL appends path segments to baseURL. Each segment is escaped as a
// whole, so a "/" inside a segment stays in that segment. Dot segments are
// not resolved.
func JoinURL(baseURL string, segments ...string) (string, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("error parsing base URL: %w", err)
	}

	path := strings.TrimSuffix(parsedURL.Path, "/")
	rawPath := strings.TrimSuffix(parsedURL.EscapedPath(), "/")
	for _, seg := range segments {
		path += "/" + seg
		rawPath += "/" + url.PathEscape(seg)
	}
	parsedURL.Path = path
	parsedURL.RawPath = rawPath
	return parsedURL.String(), nil
}

// reasonPhrase strips the leading code from a "200 OK" style status line,
// falling back to the standard text for the code.
func reasonPhrase(code int, status string) string {
	if status != "" {
		prefix := strconv.Itoa(code) + " "
		if strings.HasPrefix(status, prefix) {
			return strings.TrimPrefix(status, prefix)
		}
		if status != strconv.Itoa(code) {
			return status
		}
	}
	return http.StatusText(code)
}
