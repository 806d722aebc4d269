package headers

import (
	"strings"
)

// Len returns the number of entries, disabled ones included
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Entries returns a copy of every entry in order
func (s *Set) Entries() []Entry {
	if s == nil {
		return nil
	}
	return append([]Entry(nil), s.entries...)
}

// Transmitted returns the enabled entries in order
func (s *Set) Transmitted() []Entry {
	if s == nil {
		return nil
	}
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.Disabled {
			out = append(out, e)
		}
	}
	return out
}

// Has reports whether any entry, enabled or not, uses key
func (s *Set) Has(key string) bool {
	if s == nil {
		return false
	}
	return len(s.index[fold(key)]) > 0
}

// Get returns the first enabled value for key
func (s *Set) Get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	for _, i := range s.index[fold(key)] {
		if !s.entries[i].Disabled {
			return s.entries[i].Value, true
		}
	}
	return "", false
}

// Values returns every enabled value for key in order
func (s *Set) Values(key string) []string {
	if s == nil {
		return nil
	}
	var out []string
	for _, i := range s.index[fold(key)] {
		if !s.entries[i].Disabled {
			out = append(out, s.entries[i].Value)
		}
	}
	return out
}

// Last returns the final entry of the set
func (s *Set) Last() (Entry, bool) {
	if s == nil || len(s.entries) == 0 {
		return Entry{}, false
	}
	return s.entries[len(s.entries)-1], true
}

// String renders the transmitted headers one per line
func (s *Set) String() string {
	var b strings.Builder
	for _, e := range s.Transmitted() {
		b.WriteString(e.Key)
		b.WriteString(": ")
		b.WriteString(e.Value)
		b.WriteString("\n")
	}
	return b.String()
}
