package types

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	json "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// Variable types
const (
	VariableTypeDefault = "default"
	VariableTypeSecret  = "secret"
	VariableTypeVault   = "vault"
)

// VariableEntry is one named value in a variable set
type VariableEntry struct {
	Key      string   `json:"key" yaml:"key"`
	Value    string   `json:"value" yaml:"value"`
	Type     string   `json:"type,omitempty" yaml:"type,omitempty"`
	Enabled  *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Disabled bool     `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Domains  []string `json:"_domains,omitempty" yaml:"_domains,omitempty"`
}

// IsEnabled reports whether the entry takes part in resolution.
// Entries are enabled unless explicitly disabled either way.
func (v VariableEntry) IsEnabled() bool {
	if v.Disabled {
		return false
	}
	if v.Enabled != nil {
		return *v.Enabled
	}
	return true
}

// Restricted reports whether the entry carries a domain allow-list
func (v VariableEntry) Restricted() bool {
	return len(v.Domains) > 0
}

type variableEntryWire struct {
	Key      string      `json:"key" yaml:"key"`
	Value    interface{} `json:"value" yaml:"value"`
	Type     string      `json:"type,omitempty" yaml:"type,omitempty"`
	Enabled  *bool       `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Disabled bool        `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Domains  []string    `json:"_domains,omitempty" yaml:"_domains,omitempty"`
}

func (w variableEntryWire) entry() VariableEntry {
	return VariableEntry{
		Key:      w.Key,
		Value:    scalarString(w.Value),
		Type:     w.Type,
		Enabled:  w.Enabled,
		Disabled: w.Disabled,
		Domains:  w.Domains,
	}
}

// UnmarshalJSON accepts string, number and boolean values
func (v *VariableEntry) UnmarshalJSON(data []byte) error {
	var w variableEntryWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*v = w.entry()
	return nil
}

// UnmarshalYAML accepts string, number and boolean values
func (v *VariableEntry) UnmarshalYAML(node *yaml.Node) error {
	var w variableEntryWire
	if err := node.Decode(&w); err != nil {
		return err
	}
	*v = w.entry()
	return nil
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		if b, err := json.Marshal(t); err == nil {
			return string(b)
		}
		return fmt.Sprint(t)
	}
}

// ItemList decodes either a single item object or an array of items
type ItemList []CollectionItem

// UnmarshalJSON implements the single-or-array item form
func (l *ItemList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}
	if trimmed[0] == '[' {
		var items []CollectionItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var item CollectionItem
	if err := json.Unmarshal(trimmed, &item); err != nil {
		return err
	}
	*l = ItemList{item}
	return nil
}

// UnmarshalYAML implements the single-or-array item form
func (l *ItemList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var items []CollectionItem
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = items
	case yaml.MappingNode:
		var item CollectionItem
		if err := node.Decode(&item); err != nil {
			return err
		}
		*l = ItemList{item}
	default:
		return fmt.Errorf("item must be a mapping or a sequence, got %s", node.Tag)
	}
	return nil
}

// URL is a request URL template. The source may be a string or an object with a raw field.
type URL struct {
	Raw string
}

// String returns the raw template
func (u URL) String() string {
	return u.Raw
}

// MarshalJSON writes the raw template as a string
func (u URL) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.Raw)
}

// MarshalYAML writes the raw template as a string
func (u URL) MarshalYAML() (interface{}, error) {
	return u.Raw, nil
}

// UnmarshalJSON accepts "https://..." or {"raw": "https://..."}
func (u *URL) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		u.Raw = str
		return nil
	}
	var obj struct {
		Raw string `json:"raw"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return errors.New("url must be a string or an object with a raw field")
	}
	u.Raw = obj.Raw
	return nil
}

// UnmarshalYAML accepts a scalar or a mapping with a raw field
func (u *URL) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		u.Raw = node.Value
		return nil
	}
	var obj struct {
		Raw string `yaml:"raw"`
	}
	if err := node.Decode(&obj); err != nil {
		return errors.New("url must be a string or a mapping with a raw field")
	}
	u.Raw = obj.Raw
	return nil
}

// Auth types
const (
	AuthNoAuth  = "noauth"
	AuthBasic   = "basic"
	AuthBearer  = "bearer"
	AuthAPIKey  = "apikey"
	AuthInherit = "inherit"
)

// AuthParam is one authentication parameter
type AuthParam struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Auth is an authentication block. Parameters live under a key named after the type:
//
//	{"type": "basic", "basic": [{"key": "username", "value": "..."}]}
type Auth struct {
	Type   string
	Params []AuthParam
}

// Param returns the parameter value for key
func (a *Auth) Param(key string) string {
	if a == nil {
		return ""
	}
	for _, p := range a.Params {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

// MarshalJSON writes the collection auth shape
func (a Auth) MarshalJSON() ([]byte, error) {
	obj := map[string]interface{}{"type": a.Type}
	if a.Type != "" && a.Type != AuthNoAuth {
		obj[a.Type] = a.Params
	}
	return json.Marshal(obj)
}

// UnmarshalJSON reads the collection auth shape
func (a *Auth) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return a.fromMap(raw)
}

// UnmarshalYAML reads the collection auth shape
func (a *Auth) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]interface{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return a.fromMap(raw)
}

func (a *Auth) fromMap(raw map[string]interface{}) error {
	typ, _ := raw["type"].(string)
	a.Type = strings.ToLower(strings.TrimSpace(typ))
	a.Params = nil
	if a.Type == "" {
		return errors.New("auth block without type")
	}

	switch params := raw[a.Type].(type) {
	case nil:
	case []interface{}:
		for _, p := range params {
			m, ok := p.(map[string]interface{})
			if !ok {
				return fmt.Errorf("auth %s: parameter must be an object", a.Type)
			}
			key, _ := m["key"].(string)
			a.Params = append(a.Params, AuthParam{Key: key, Value: scalarString(m["value"])})
		}
	case map[string]interface{}:
		// legacy object form: {"basic": {"username": "..."}}
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			a.Params = append(a.Params, AuthParam{Key: k, Value: scalarString(params[k])})
		}
	default:
		return fmt.Errorf("auth %s: unsupported parameter shape", a.Type)
	}
	return nil
}
