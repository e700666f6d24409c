package crawler

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Asset extensions never worth fetching for text content.
var deniedExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".svg": {}, ".webp": {},
	".pdf": {}, ".zip": {}, ".gz": {}, ".tar": {}, ".rar": {}, ".7z": {},
	".mp3": {}, ".mp4": {}, ".avi": {}, ".mov": {}, ".wmv": {}, ".mkv": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
}

// NormalizeURL standardizes a URL to avoid duplicate visits: scheme and
// host lowercased, default ports stripped, fragment removed, query
// parameters sorted.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawQuery = u.Query().Encode()

	return u.String(), nil
}

// HasDeniedExtension reports whether the URL path points at a binary or
// media asset.
func HasDeniedExtension(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	_, denied := deniedExtensions[ext]
	return denied
}
