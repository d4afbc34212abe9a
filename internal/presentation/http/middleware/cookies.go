package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// net/http drops cookie names containing separators such as ':', which the
// default split test prefix uses. These helpers read and write such names.

// ReadCookies parses every Cookie header on the request.
func ReadCookies(r *http.Request) []*http.Cookie {
	var cookies []*http.Cookie
	for _, line := range r.Header.Values("Cookie") {
		for _, part := range strings.Split(line, ";") {
			name, value, _ := strings.Cut(strings.TrimSpace(part), "=")
			name = strings.TrimSpace(name)
			if name == "" || strings.ContainsAny(name, " \t\",\\=") {
				continue
			}
			value = strings.TrimSpace(value)
			if len(value) > 1 && value[0] == '"' && value[len(value)-1] == '"' {
				value = value[1 : len(value)-1]
			}
			cookies = append(cookies, &http.Cookie{Name: name, Value: value})
		}
	}
	return cookies
}

// FormatSetCookie renders a Set-Cookie header value. A negative MaxAge
// expires the cookie immediately.
func FormatSetCookie(c *http.Cookie) string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(sanitizeCookieValue(c.Value))

	path := c.Path
	if path == "" {
		path = "/"
	}
	b.WriteString("; Path=")
	b.WriteString(path)

	if c.Domain != "" {
		b.WriteString("; Domain=")
		b.WriteString(strings.TrimPrefix(c.Domain, "."))
	}

	switch {
	case c.MaxAge > 0:
		b.WriteString("; Max-Age=")
		b.WriteString(strconv.Itoa(c.MaxAge))
	case c.MaxAge < 0:
		b.WriteString("; Expires=Thu, 01 Jan 1970 00:00:00 GMT; Max-Age=0")
	}

	if c.HttpOnly {
		b.WriteString("; HttpOnly")
	}
	if c.Secure {
		b.WriteString("; Secure")
	}
	switch c.SameSite {
	case http.SameSiteLaxMode:
		b.WriteString("; SameSite=Lax")
	case http.SameSiteStrictMode:
		b.WriteString("; SameSite=Strict")
	case http.SameSiteNoneMode:
		b.WriteString("; SameSite=None")
	}
	return b.String()
}

func sanitizeCookieValue(v string) string {
	return strings.Map(func(r rune) rune {
		if r <= 0x20 || r >= 0x7f || r == '"' || r == ';' || r == '\\' || r == ',' {
			return -1
		}
		return r
	}, v)
}
