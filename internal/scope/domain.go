package scope

import (
	"strings"
)

// DomainPattern is a normalized host pattern from a _domains list.
// A "*" label matches exactly one non-empty host label.
type DomainPattern struct {
	raw    string
	labels []string
}

// ParseDomainPattern normalizes a pattern such as "https://*.example.com/path"
func ParseDomainPattern(pattern string) DomainPattern {
	return DomainPattern{raw: pattern, labels: hostLabels(pattern)}
}

// String returns the pattern as written
func (p DomainPattern) String() string {
	return p.raw
}

// Match reports whether host is allowed by the pattern
func (p DomainPattern) Match(host string) bool {
	if len(p.labels) == 0 {
		return false
	}
	labels := hostLabels(host)
	if len(labels) != len(p.labels) {
		return false
	}
	for i, want := range p.labels {
		got := labels[i]
		if got == "" {
			return false
		}
		if want == "*" {
			continue
		}
		if want != got {
			return false
		}
	}
	return true
}

// Permits reports whether an entry restricted to patterns may be used for target.
// An empty pattern list is unrestricted; an unknown target denies every restricted entry.
func Permits(patterns []string, target Target) bool {
	if len(patterns) == 0 {
		return true
	}
	if !target.Known() {
		return false
	}
	for _, p := range patterns {
		if ParseDomainPattern(p).Match(target.Host()) {
			return true
		}
	}
	return false
}

// normalizeHost lower-cases s and strips scheme, userinfo, path, query, fragment, port and trailing dot
func normalizeHost(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	if strings.HasPrefix(s, "[") {
		if i := strings.Index(s, "]"); i >= 0 {
			return s[1:i]
		}
		return s
	}
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSuffix(s, ".")
}

func hostLabels(s string) []string {
	host := normalizeHost(s)
	if host == "" {
		return nil
	}
	return strings.Split(host, ".")
}
