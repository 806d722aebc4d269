package mock

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ErrInvalidRoutes is returned for a routes file the server cannot serve
var ErrInvalidRoutes = errors.New("invalid routes")

// AnyMethod matches every request method
const AnyMethod = "*"

// LoadConfig reads static routes from a YAML or JSON (comments allowed) file
// and compiles them.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file: %w", err)
	}

	var config Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	case ".json", ".jsonc":
		err = json.Unmarshal(jsonc.ToJSON(data), &config)
	default:
		return nil, fmt.Errorf("%w: unsupported file format %q", ErrInvalidRoutes, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRoutes, filepath.Base(path), err)
	}

	if err := config.Compile(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Compile normalizes every route and precompiles regex paths. Methods are
// upper-cased, an empty path type becomes exact and a zero status becomes 200.
func (c *Config) Compile() error {
	for i := range c.Routes {
		if err := c.Routes[i].compile(); err != nil {
			return fmt.Errorf("%w: route %d (%s): %w", ErrInvalidRoutes, i, c.Routes[i].label(), err)
		}
	}
	return nil
}

func (r *Route) compile() error {
	r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
	if r.Method == "" {
		return errors.New("method is required")
	}
	if r.Status == 0 {
		r.Status = http.StatusOK
	}
	if r.Status < 100 || r.Status > 599 {
		return fmt.Errorf("status %d out of range", r.Status)
	}
	if r.Delay < 0 {
		return errors.New("delay must not be negative")
	}

	switch r.PathType {
	case "", "exact", "prefix":
		if r.PathType == "" {
			r.PathType = "exact"
		}
		if !strings.HasPrefix(r.Path, "/") {
			return fmt.Errorf("path %q must start with /", r.Path)
		}
	case "regex":
		re, err := regexp.Compile(r.Path)
		if err != nil {
			return err
		}
		r.re = re
	default:
		return fmt.Errorf("unknown path type %q (use exact, prefix or regex)", r.PathType)
	}
	return nil
}

func (r *Route) label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Method + " " + r.Path
}

func (r *Route) matches(method, path string) bool {
	if r.Method != AnyMethod && !strings.EqualFold(r.Method, method) {
		return false
	}
	switch r.PathType {
	case "prefix":
		return strings.HasPrefix(path, r.Path)
	case "regex":
		return r.re != nil && r.re.MatchString(path)
	default:
		return r.Path == path
	}
}
