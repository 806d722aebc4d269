package collection

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/alcrishub/postman-runtime/internal/types"
)

// ErrInvalidDocument is returned when a file cannot be decoded
var ErrInvalidDocument = errors.New("invalid document")

// Format of a document on disk
type Format int

const (
	FormatAuto Format = iota
	FormatJSON
	FormatYAML
)

// FormatFromPath picks the format from the file extension
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json", ".jsonc":
		return FormatJSON
	default:
		return FormatAuto
	}
}

// LoadCollection reads a collection file
func LoadCollection(path string) (*types.Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection: %w", err)
	}
	c, err := ParseCollection(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ParseCollection decodes a collection document
func ParseCollection(data []byte, format Format) (*types.Collection, error) {
	var c types.Collection
	if err := decode(data, format, &c); err != nil {
		return nil, err
	}
	if c.Info.Name == "" && len(c.Item) == 0 {
		return nil, fmt.Errorf("%w: collection has no info and no items", ErrInvalidDocument)
	}
	return &c, nil
}

// variableDocument is an environment export; collections keep theirs under "variable"
type variableDocument struct {
	Name     string                `json:"name" yaml:"name"`
	Values   []types.VariableEntry `json:"values" yaml:"values"`
	Variable []types.VariableEntry `json:"variable" yaml:"variable"`
}

// LoadVariables reads an environment, globals or vault file. The name is the
// document's own name, or the file name when it has none.
func LoadVariables(path string) (string, []types.VariableEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read variables: %w", err)
	}
	name, entries, err := ParseVariables(data, FormatFromPath(path))
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", path, err)
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return name, entries, nil
}

// ParseVariables accepts {"values": [...]}, {"variable": [...]} or a bare list
func ParseVariables(data []byte, format Format) (string, []types.VariableEntry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return "", nil, nil
	}

	var list []types.VariableEntry
	if err := decode(trimmed, format, &list); err == nil {
		return "", list, nil
	}

	var doc variableDocument
	if err := decode(trimmed, format, &doc); err != nil {
		return "", nil, err
	}
	if doc.Values != nil {
		return doc.Name, doc.Values, nil
	}
	return doc.Name, doc.Variable, nil
}

func decode(data []byte, format Format, v interface{}) error {
	if format == FormatAuto {
		format = sniff(data)
	}
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(jsonc.ToJSON(data), v); err != nil {
			return fmt.Errorf("%w: json: %v", ErrInvalidDocument, err)
		}
	default:
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("%w: yaml: %v", ErrInvalidDocument, err)
		}
	}
	return nil
}

// sniff treats documents opening with a brace, bracket or comment as JSON
func sniff(data []byte) Format {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return FormatYAML
	}
	switch trimmed[0] {
	case '{', '[':
		return FormatJSON
	case '/':
		return FormatJSON
	}
	return FormatYAML
}
