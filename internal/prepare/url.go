package prepare

import (
	"net/url"
	"strings"
)

// parseRequestURL adds a default scheme and escapes query bytes that are not
// legal on the wire, such as the braces of an unresolved template.
// It returns nil when the URL cannot be parsed.
func parseRequestURL(raw string) *url.URL {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil
	}
	u.RawQuery = escapeQuery(u.RawQuery)
	u.Fragment = ""
	u.RawFragment = ""
	return u
}

// escapeQuery percent-encodes bytes outside the RFC 3986 query set.
// Existing escapes are kept.
func escapeQuery(q string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(q); i++ {
		c := q[i]
		if queryAllowed(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&15])
	}
	return b.String()
}

func queryAllowed(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-._~!$&'()*+,;=:@/?%", c) >= 0
}

type queryParam struct {
	key   string
	value string
}

func appendQuery(raw string, params []queryParam) string {
	parts := make([]string, 0, len(params)+1)
	if raw != "" {
		parts = append(parts, raw)
	}
	for _, p := range params {
		parts = append(parts, url.QueryEscape(p.key)+"="+url.QueryEscape(p.value))
	}
	return strings.Join(parts, "&")
}
