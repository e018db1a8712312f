package client

import (
	"io"
	"strings"
)

// isRedirectStatus reports whether status is one of the redirect codes
// this client follows: 301, 302, 303, 307, 308.
func isRedirectStatus(status int) bool {
	switch status {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}

// redirectMethodAndBody applies the pinned method-preservation policy
// (see DESIGN.md Open Question decision #1): 301/302/307/308 preserve the
// original method and body; 303 always becomes a bodyless GET.
func redirectMethodAndBody(status int, method string, body io.Reader) (string, io.Reader) {
	if status == 303 {
		return "GET", nil
	}
	return method, body
}

// resolveRedirectLocation turns a possibly-relative Location header value
// into an absolute URL against the origin the redirect response came from.
func resolveRedirectLocation(origin Origin, location string) string {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return location
	}
	if origin.Host == "" {
		return location
	}
	if !strings.HasPrefix(location, "/") {
		location = "/" + location
	}
	return origin.String() + location
}
