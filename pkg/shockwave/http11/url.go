package http11

import (
	"errors"
	"strconv"
	"strings"
)

var (
	// ErrInvalidURL is returned for URLs that do not match the supported grammar.
	ErrInvalidURL = errors.New("http11: invalid url")
	// ErrUnsupportedScheme is returned for schemes other than http/https.
	ErrUnsupportedScheme = errors.New("http11: unsupported url scheme")
	// ErrInvalidPort is returned when the port is out of the 1-65535 range.
	ErrInvalidPort = errors.New("http11: invalid url port")
)

// URL is a parsed HTTP or HTTPS URL:
//
//	scheme://host[:port][/path][?query][#fragment]
//
// Unlike net/url, this grammar is restricted to exactly what the wire
// codec needs: http/https schemes only, a mandatory host, numeric port
// validated to 1-65535, and no support for userinfo, opaque URLs, or
// relative references.
type URL struct {
	Scheme   string
	Host     string
	Port     int
	Path     string
	Query    string
	Fragment string
}

// DefaultPort returns the scheme's default port (80 for http, 443 for https).
func DefaultPort(scheme string) int {
	if scheme == "https" {
		return 443
	}
	return 80
}

// String reassembles the URL.
func (u *URL) String() string {
	var sb strings.Builder
	sb.WriteString(u.Scheme)
	sb.WriteString("://")
	sb.WriteString(u.Host)
	if u.Port != DefaultPort(u.Scheme) {
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(u.Port))
	}
	if u.Path == "" {
		sb.WriteByte('/')
	} else {
		sb.WriteString(u.Path)
	}
	if u.Query != "" {
		sb.WriteByte('?')
		sb.WriteString(u.Query)
	}
	if u.Fragment != "" {
		sb.WriteByte('#')
		sb.WriteString(u.Fragment)
	}
	return sb.String()
}

// ParseURL parses an absolute http(s) URL per the grammar documented on URL.
// It never delegates to net/url: this grammar is intentionally narrower
// (no opaque URLs, no userinfo, no relative references) than what
// net/url accepts.
func ParseURL(raw string) (*URL, error) {
	rest := raw

	schemeIdx := strings.Index(rest, "://")
	if schemeIdx <= 0 {
		return nil, ErrInvalidURL
	}
	scheme := strings.ToLower(rest[:schemeIdx])
	if scheme != "http" && scheme != "https" {
		return nil, ErrUnsupportedScheme
	}
	rest = rest[schemeIdx+3:]
	if rest == "" {
		return nil, ErrInvalidURL
	}

	// Split off fragment first, then query, then the authority+path.
	var fragment string
	if idx := strings.IndexByte(rest, '#'); idx >= 0 {
		fragment = rest[idx+1:]
		rest = rest[:idx]
	}

	var query string
	if idx := strings.IndexByte(rest, '?'); idx >= 0 {
		query = rest[idx+1:]
		rest = rest[:idx]
	}

	authority := rest
	path := "/"
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		authority = rest[:idx]
		path = rest[idx:]
	}
	if authority == "" {
		return nil, ErrInvalidURL
	}
	if strings.ContainsAny(authority, "@") {
		// userinfo is out of grammar scope
		return nil, ErrInvalidURL
	}

	host := authority
	port := DefaultPort(scheme)
	if idx := strings.LastIndexByte(authority, ':'); idx >= 0 {
		host = authority[:idx]
		portStr := authority[idx+1:]
		p, err := strconv.Atoi(portStr)
		if err != nil || p < 1 || p > 65535 {
			return nil, ErrInvalidPort
		}
		port = p
	}
	if host == "" {
		return nil, ErrInvalidURL
	}

	return &URL{
		Scheme:   scheme,
		Host:     host,
		Port:     port,
		Path:     path,
		Query:    query,
		Fragment: fragment,
	}, nil
}
