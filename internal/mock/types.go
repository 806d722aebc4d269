package mock

import (
	"regexp"
	"time"
)

// Config is the echo server configuration
type Config struct {
	Port    int     `json:"port" yaml:"port"`       // Server port (0 picks a free port)
	Host    string  `json:"host" yaml:"host"`       // Server host (default: 127.0.0.1)
	Routes  []Route `json:"routes" yaml:"routes"`   // Static routes served before the echo endpoints
	Logging bool    `json:"logging" yaml:"logging"` // Keep a request log
}

// Route is a static response served for a matching method and path
type Route struct {
	Name     string            `json:"name,omitempty" yaml:"name,omitempty"`
	Method   string            `json:"method" yaml:"method"`
	Path     string            `json:"path" yaml:"path"`
	PathType string            `json:"pathType,omitempty" yaml:"pathType,omitempty"` // exact, prefix, regex (default: exact)
	Status   int               `json:"status" yaml:"status"`
	Headers  map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body     string            `json:"body,omitempty" yaml:"body,omitempty"`
	Delay    int               `json:"delay,omitempty" yaml:"delay,omitempty"` // milliseconds

	re *regexp.Regexp
}

// RequestLog is one request seen by the server
type RequestLog struct {
	Timestamp   time.Time         `json:"timestamp"`
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Proto       string            `json:"proto"`
	Headers     map[string]string `json:"headers"`
	Body        string            `json:"body"`
	MatchedRule string            `json:"matchedRule"`
	Status      int               `json:"status"`
	Duration    time.Duration     `json:"duration"`
}
