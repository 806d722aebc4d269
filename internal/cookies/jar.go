// Package cookies provides the run-scoped cookie jar shared by the header
// assembler (reads) and the transport (Set-Cookie writes).
package cookies

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// Jar is a public-suffix aware cookie jar. Reads and writes are serialized.
type Jar struct {
	mu    sync.Mutex
	inner *cookiejar.Jar
}

// New creates an empty jar
func New() (*Jar, error) {
	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Jar{inner: inner}, nil
}

// Cookies returns the cookies to send to u
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.inner.Cookies(u)
}

// SetCookies stores cookies received from u
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.inner.SetCookies(u, cookies)
}

// SetCookieString parses a Set-Cookie header value and stores it for rawURL
func (j *Jar) SetCookieString(rawURL, setCookie string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid cookie url %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid cookie url %q: missing host", rawURL)
	}
	c, err := http.ParseSetCookie(setCookie)
	if err != nil {
		return fmt.Errorf("invalid set-cookie %q: %w", setCookie, err)
	}
	j.SetCookies(u, []*http.Cookie{c})
	return nil
}
