// Package headers builds the ordered header set sent with a prepared request.
package headers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alcrishub/postman-runtime/internal/types"
)

// Well-known header keys handled by the assembler
const (
	KeyCookie        = "Cookie"
	KeyContentLength = "Content-Length"
	KeyContentType   = "Content-Type"
	KeyHost          = "Host"
	KeyUserAgent     = "User-Agent"
	KeyAuthorization = "Authorization"
)

// Entry is one header in a Set
type Entry struct {
	Key      string `json:"key" yaml:"key"`
	Value    string `json:"value" yaml:"value"`
	Disabled bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	System   bool   `json:"system,omitempty" yaml:"system,omitempty"`
}

// Default is a system header injected when the request does not declare it
type Default struct {
	Key   string
	Value string
}

// CookieSource returns the stored cookies applicable to a URL. http.CookieJar satisfies it.
type CookieSource interface {
	Cookies(u *url.URL) []*http.Cookie
}

// Options are the inputs besides the declared headers
type Options struct {
	// Defaults are injected in order when absent
	Defaults []Default
	// Jar is read for cookies matching URL; nil skips the jar
	Jar CookieSource
	URL *url.URL
	// Auth entries replace declared headers with the same key
	Auth []Entry
	// ContentLength is appended last when HasBody is set
	ContentLength int64
	HasBody       bool
}

// Set is an ordered multimap of headers with case-insensitive lookup.
// A Set is never modified after Assemble returns it.
type Set struct {
	entries []Entry
	index   map[string][]int
}

func newSet(entries []Entry) *Set {
	s := &Set{
		entries: entries,
		index:   make(map[string][]int, len(entries)),
	}
	for i, e := range entries {
		k := fold(e.Key)
		s.index[k] = append(s.index[k], i)
	}
	return s
}

// Assemble merges declared headers, cookies, auth and system defaults into one Set.
//
// Blank keys are dropped. Disabled entries are kept but never transmitted, and they
// still suppress a system default with the same key. Declared Cookie headers and jar
// cookies fold into a single system Cookie entry. Content-Length always comes last.
func Assemble(declared []types.Header, opts Options) *Set {
	entries := make([]Entry, 0, len(declared)+len(opts.Defaults)+2)
	for _, h := range declared {
		if strings.TrimSpace(h.Key) == "" {
			continue
		}
		entries = append(entries, Entry{Key: h.Key, Value: h.Value, Disabled: h.Disabled})
	}

	entries = foldCookies(entries, opts.Jar, opts.URL)

	for _, a := range opts.Auth {
		if strings.TrimSpace(a.Key) == "" {
			continue
		}
		entries = removeEnabled(entries, a.Key)
		entries = append(entries, Entry{Key: a.Key, Value: a.Value, System: true})
	}

	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		present[fold(e.Key)] = true
	}
	for _, d := range opts.Defaults {
		k := fold(d.Key)
		if k == "" || d.Value == "" || present[k] {
			continue
		}
		present[k] = true
		entries = append(entries, Entry{Key: d.Key, Value: d.Value, System: true})
	}

	if opts.HasBody {
		entries = removeAll(entries, KeyContentLength)
		entries = append(entries, Entry{
			Key:    KeyContentLength,
			Value:  strconv.FormatInt(opts.ContentLength, 10),
			System: true,
		})
	}

	return newSet(entries)
}

// foldCookies replaces enabled Cookie entries with one system entry holding the
// declared pairs followed by jar cookies, deduplicated by name
func foldCookies(entries []Entry, jar CookieSource, u *url.URL) []Entry {
	var (
		pairs []cookiePair
		seen  = map[string]bool{}
		first = -1
	)
	add := func(p cookiePair) {
		if seen[p.name] {
			return
		}
		seen[p.name] = true
		pairs = append(pairs, p)
	}

	kept := entries[:0:0]
	for _, e := range entries {
		if e.Disabled || fold(e.Key) != fold(KeyCookie) {
			kept = append(kept, e)
			continue
		}
		if first < 0 {
			first = len(kept)
		}
		for _, p := range parseCookiePairs(e.Value) {
			add(p)
		}
	}

	if jar != nil && u != nil {
		for _, c := range jar.Cookies(u) {
			add(cookiePair{name: c.Name, raw: c.Name + "=" + c.Value})
		}
	}

	if first < 0 && len(pairs) == 0 {
		return entries
	}
	if len(pairs) == 0 {
		// only empty declared cookies; nothing to send
		return kept
	}

	raw := make([]string, len(pairs))
	for i, p := range pairs {
		raw[i] = p.raw
	}
	folded := Entry{Key: KeyCookie, Value: strings.Join(raw, "; "), System: true}

	if first < 0 {
		return append(kept, folded)
	}
	out := make([]Entry, 0, len(kept)+1)
	out = append(out, kept[:first]...)
	out = append(out, folded)
	return append(out, kept[first:]...)
}

type cookiePair struct {
	name string
	raw  string
}

func parseCookiePairs(value string) []cookiePair {
	var pairs []cookiePair
	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name := part
		if i := strings.Index(part, "="); i >= 0 {
			name = strings.TrimSpace(part[:i])
		}
		pairs = append(pairs, cookiePair{name: name, raw: part})
	}
	return pairs
}

func removeEnabled(entries []Entry, key string) []Entry {
	k := fold(key)
	out := entries[:0]
	for _, e := range entries {
		if !e.Disabled && fold(e.Key) == k {
			continue
		}
		out = append(out, e)
	}
	return out
}

func removeAll(entries []Entry, key string) []Entry {
	k := fold(key)
	out := entries[:0]
	for _, e := range entries {
		if fold(e.Key) == k {
			continue
		}
		out = append(out, e)
	}
	return out
}

func fold(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
