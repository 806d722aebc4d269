// Package filter applies JMESPath expressions to response bodies and run reports.
package filter

import (
	"errors"
	"fmt"

	"github.com/jmespath/go-jmespath"
	json "github.com/json-iterator/go"
)

// ErrInvalidExpression is returned for expressions that do not compile
var ErrInvalidExpression = errors.New("invalid JMESPath expression")

// Apply narrows body with filter, then selects with query. Empty expressions
// are skipped. The result is indented JSON.
func Apply(body string, filter string, query string) (string, error) {
	result := body
	for _, step := range []struct{ name, expr string }{{"filter", filter}, {"query", query}} {
		if step.expr == "" {
			continue
		}
		out, err := applyJMESPath(result, step.expr)
		if err != nil {
			return "", fmt.Errorf("failed to apply %s: %w", step.name, err)
		}
		result = out
	}
	return result, nil
}

func applyJMESPath(jsonStr string, expression string) (string, error) {
	var data interface{}
	if err := json.UnmarshalFromString(jsonStr, &data); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	result, err := Search(data, expression)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "null", nil
	}
	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(output), nil
}

// Search evaluates expression against decoded JSON data
func Search(data interface{}, expression string) (interface{}, error) {
	jp, err := jmespath.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidExpression, expression, err)
	}
	result, err := jp.Search(data)
	if err != nil {
		return nil, fmt.Errorf("JMESPath search failed: %w", err)
	}
	return result, nil
}

// SearchValue round-trips v through JSON so struct tags define the field names
func SearchValue(v interface{}, expression string) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	var data interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return Search(data, expression)
}

// IsValidJMESPath checks if an expression is valid JMESPath syntax
func IsValidJMESPath(expression string) bool {
	_, err := jmespath.Compile(expression)
	return err == nil
}
