package client

import (
	"strings"
	"sync"
	"time"
)

// Cookie is a single parsed Set-Cookie response header.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time
	MaxAge   int // seconds; 0 means unset
	Secure   bool
	HTTPOnly bool
}

// ParseSetCookie parses one Set-Cookie header value per RFC 6265 §4.1.
// Unknown attributes are ignored; a missing Name=Value pair yields nil.
func ParseSetCookie(header string) *Cookie {
	parts := strings.Split(header, ";")
	if len(parts) == 0 {
		return nil
	}

	nameValue := strings.TrimSpace(parts[0])
	eq := strings.IndexByte(nameValue, '=')
	if eq < 0 {
		return nil
	}
	c := &Cookie{
		Name:  strings.TrimSpace(nameValue[:eq]),
		Value: strings.TrimSpace(nameValue[eq+1:]),
		Path:  "/",
	}
	if c.Name == "" {
		return nil
	}

	for _, attr := range parts[1:] {
		attr = strings.TrimSpace(attr)
		if attr == "" {
			continue
		}
		k, v, hasValue := attr, "", false
		if idx := strings.IndexByte(attr, '='); idx >= 0 {
			k = attr[:idx]
			v = attr[idx+1:]
			hasValue = true
		}
		switch strings.ToLower(k) {
		case "domain":
			if hasValue {
				c.Domain = strings.TrimPrefix(v, ".")
			}
		case "path":
			if hasValue && v != "" {
				c.Path = v
			}
		case "expires":
			if hasValue {
				if t, err := time.Parse(time.RFC1123, v); err == nil {
					c.Expires = t
				}
			}
		case "max-age":
			if hasValue {
				n := 0
				neg := false
				for i, r := range v {
					if i == 0 && r == '-' {
						neg = true
						continue
					}
					if r < '0' || r > '9' {
						n = 0
						break
					}
					n = n*10 + int(r-'0')
				}
				if neg {
					n = -n
				}
				c.MaxAge = n
			}
		case "secure":
			c.Secure = true
		case "httponly":
			c.HTTPOnly = true
		}
	}

	return c
}

// Expired reports whether the cookie's lifetime has already elapsed.
func (c *Cookie) Expired(now time.Time) bool {
	if c.MaxAge < 0 {
		return true
	}
	if c.MaxAge > 0 {
		return false // caller should track "stored at" to apply MaxAge precisely; treated as session-scoped here
	}
	if !c.Expires.IsZero() && now.After(c.Expires) {
		return true
	}
	return false
}

// CookieJar stores cookies per origin host, matched by path prefix on
// reassembly. It is intentionally simple: no public-suffix list, no
// cross-subdomain sharing beyond an exact Domain match.
type CookieJar struct {
	mu      sync.Mutex
	byHost  map[string][]*Cookie
}

// NewCookieJar creates an empty cookie jar.
func NewCookieJar() *CookieJar {
	return &CookieJar{byHost: make(map[string][]*Cookie)}
}

// Store records cookies received from a response for the given origin.
func (j *CookieJar) Store(origin Origin, cookies []*Cookie) {
	if len(cookies) == 0 {
		return
	}
	host := origin.Host
	j.mu.Lock()
	defer j.mu.Unlock()

	existing := j.byHost[host]
	for _, c := range cookies {
		if c.Domain == "" {
			c.Domain = host
		}
		if c.Expired(time.Now()) {
			existing = removeCookie(existing, c.Name, c.Path)
			continue
		}
		existing = removeCookie(existing, c.Name, c.Path)
		existing = append(existing, c)
	}
	j.byHost[host] = existing
}

func removeCookie(cookies []*Cookie, name, path string) []*Cookie {
	out := cookies[:0]
	for _, c := range cookies {
		if c.Name == name && c.Path == path {
			continue
		}
		out = append(out, c)
	}
	return out
}

// CookieHeader builds the Cookie request header value for origin/path, or
// "" if there is nothing to send.
func (j *CookieJar) CookieHeader(origin Origin, path string) string {
	j.mu.Lock()
	cookies := j.byHost[origin.Host]
	j.mu.Unlock()

	if len(cookies) == 0 {
		return ""
	}

	var sb strings.Builder
	first := true
	now := time.Now()
	for _, c := range cookies {
		if c.Expired(now) {
			continue
		}
		if c.Secure && origin.Scheme != "https" {
			continue
		}
		if !pathMatches(c.Path, path) {
			continue
		}
		if !first {
			sb.WriteString("; ")
		}
		sb.WriteString(c.Name)
		sb.WriteByte('=')
		sb.WriteString(c.Value)
		first = false
	}
	return sb.String()
}

func pathMatches(cookiePath, requestPath string) bool {
	if cookiePath == "" || cookiePath == "/" {
		return true
	}
	if requestPath == cookiePath {
		return true
	}
	return strings.HasPrefix(requestPath, cookiePath) &&
		(strings.HasSuffix(cookiePath, "/") || (len(requestPath) > len(cookiePath) && requestPath[len(cookiePath)] == '/'))
}
