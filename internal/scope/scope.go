package scope

import (
	"net/url"
	"strings"

	"github.com/alcrishub/postman-runtime/internal/types"
)

// Kind identifies where a variable set came from
type Kind int

const (
	KindLocal Kind = iota
	KindEnvironment
	KindCollection
	KindGlobal
	KindVault
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindEnvironment:
		return "environment"
	case KindCollection:
		return "collection"
	case KindGlobal:
		return "globals"
	case KindVault:
		return "vault"
	default:
		return "unknown"
	}
}

// VariableSet is a read-only map of enabled variables
type VariableSet struct {
	name   string
	kind   Kind
	values map[string]types.VariableEntry
}

// NewVariableSet indexes the enabled entries. Later entries with the same key replace earlier ones.
func NewVariableSet(name string, kind Kind, entries []types.VariableEntry) *VariableSet {
	set := &VariableSet{
		name:   name,
		kind:   kind,
		values: make(map[string]types.VariableEntry, len(entries)),
	}
	for _, e := range entries {
		if e.Key == "" || !e.IsEnabled() {
			continue
		}
		e.Domains = append([]string(nil), e.Domains...)
		set.values[e.Key] = e
	}
	return set
}

// Name of the set
func (s *VariableSet) Name() string { return s.name }

// Kind of the set
func (s *VariableSet) Kind() Kind { return s.kind }

// Len returns the number of enabled entries
func (s *VariableSet) Len() int { return len(s.values) }

// Lookup returns the enabled entry for key
func (s *VariableSet) Lookup(key string) (types.VariableEntry, bool) {
	if s == nil {
		return types.VariableEntry{}, false
	}
	e, ok := s.values[key]
	return e, ok
}

// Chain is an ordered list of variable sets; earlier sets take precedence
type Chain struct {
	sets []*VariableSet
}

// NewChain builds a chain in precedence order. Nil sets are skipped.
func NewChain(sets ...*VariableSet) *Chain {
	c := &Chain{}
	for _, s := range sets {
		if s != nil {
			c.sets = append(c.sets, s)
		}
	}
	return c
}

// Sets returns the sets in precedence order
func (c *Chain) Sets() []*VariableSet {
	if c == nil {
		return nil
	}
	return append([]*VariableSet(nil), c.sets...)
}

// Len returns the number of sets
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.sets)
}

// Target is the resolved request host that gates restricted entries
type Target struct {
	host  string
	known bool
}

// UnknownTarget is used before the host is resolved, or when it cannot be
func UnknownTarget() Target {
	return Target{}
}

// HostTarget builds a target for host. A blank or templated host yields an unknown target.
func HostTarget(host string) Target {
	h := normalizeHost(host)
	if h == "" || strings.Contains(h, "{{") || strings.Contains(h, "}}") {
		return Target{}
	}
	return Target{host: h, known: true}
}

// TargetFromURL extracts the host of a resolved URL. URLs without a scheme are read as http.
func TargetFromURL(raw string) Target {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Contains(hostPart(raw), "{{") {
		return Target{}
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return HostTarget(hostPart(raw))
	}
	return HostTarget(u.Hostname())
}

// Known reports whether the host could be determined
func (t Target) Known() bool { return t.known }

// Host returns the lower-cased host without port
func (t Target) Host() string { return t.host }

func (t Target) String() string {
	if !t.known {
		return "<unknown>"
	}
	return t.host
}

// hostPart returns the authority section of a raw URL without parsing it
func hostPart(raw string) string {
	s := raw
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return s
}
