package mock

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/http2"
)

func startServer(t *testing.T, config *Config) *Server {
	t.Helper()
	s := NewServer(config, zaptest.NewLogger(t))
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func getJSON(t *testing.T, client *http.Client, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 && data[0] == '{' {
		require.NoError(t, json.Unmarshal(data, &out))
	}
	return resp.StatusCode, out
}

func TestEchoHeaders(t *testing.T) {
	s := startServer(t, &Config{Logging: true})

	req, _ := http.NewRequest(http.MethodGet, s.GetAddress()+"/headers", nil)
	req.Header.Add("Header-Name", "value1")
	req.Header.Add("Header-Name", "value2")
	req.Header.Set("Cookie", "c1=v1; c2=v2")

	status, body := getJSON(t, http.DefaultClient, req)
	require.Equal(t, http.StatusOK, status)

	headers := body["headers"].(map[string]interface{})
	assert.Equal(t, "value1, value2", headers["header-name"])
	assert.Equal(t, "c1=v1; c2=v2", headers["cookie"])
	assert.Equal(t, strings.TrimPrefix(s.GetAddress(), "http://"), headers["host"])

	logs := s.GetLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "/headers", logs[0].Path)
	assert.Equal(t, "echo", logs[0].MatchedRule)

	s.ClearLogs()
	assert.Empty(t, s.GetLogs())
}

func TestEchoBasicAuth(t *testing.T) {
	s := startServer(t, nil)

	req, _ := http.NewRequest(http.MethodGet, s.GetAddress()+"/basic-auth/postman/password", nil)
	req.SetBasicAuth("postman", "password")
	status, body := getJSON(t, http.DefaultClient, req)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["authenticated"])

	req, _ = http.NewRequest(http.MethodGet, s.GetAddress()+"/basic-auth/postman/password", nil)
	req.SetBasicAuth("postman", "wrong")
	status, _ = getJSON(t, http.DefaultClient, req)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestEchoPostForm(t *testing.T) {
	s := startServer(t, nil)

	req, _ := http.NewRequest(http.MethodPost, s.GetAddress()+"/post?x=1", strings.NewReader("a=1&b=two"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	status, body := getJSON(t, http.DefaultClient, req)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, map[string]interface{}{"a": "1", "b": "two"}, body["form"])
	assert.Equal(t, map[string]interface{}{"x": "1"}, body["args"])
	assert.Equal(t, "a=1&b=two", body["data"])
}

func TestEchoStatusAndStaticRoutes(t *testing.T) {
	s := startServer(t, &Config{
		Logging: true,
		Routes: []Route{{
			Name:    "teapot",
			Method:  "GET",
			Path:    "/brew",
			Status:  http.StatusTeapot,
			Headers: map[string]string{"X-Pot": "tea"},
			Body:    "short and stout",
		}},
	})

	resp, err := http.Get(s.GetAddress() + "/brew")
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "tea", resp.Header.Get("X-Pot"))
	assert.Equal(t, "short and stout", string(data))

	req, _ := http.NewRequest(http.MethodGet, s.GetAddress()+"/status/503", nil)
	status, _ := getJSON(t, http.DefaultClient, req)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	logs := s.GetLogs()
	require.Len(t, logs, 2)
	assert.Equal(t, "teapot", logs[0].MatchedRule)
	assert.Equal(t, http.StatusServiceUnavailable, logs[1].Status)
}

func TestEchoCleartextHTTP2(t *testing.T) {
	s := startServer(t, nil)

	client := &http.Client{Transport: &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}}

	req, _ := http.NewRequest(http.MethodGet, s.GetAddress()+"/get", nil)
	status, body := getJSON(t, client, req)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "HTTP/2.0", body["protocol"])
}

func TestEchoHandlerWithHTTPTest(t *testing.T) {
	ts := httptest.NewServer(NewServer(nil, nil).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/cookies/set?session=abc")
	require.NoError(t, err)
	resp.Body.Close()

	cookies := resp.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "session", cookies[0].Name)
	assert.Equal(t, "abc", cookies[0].Value)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "routes.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("routes:\n  - method: get\n    path: /ping\n    body: pong\n"), 0o644))
	cfg, err := LoadConfig(yamlPath)
	require.NoError(t, err)
	require.Len(t, cfg.Routes, 1)
	assert.Equal(t, "pong", cfg.Routes[0].Body)
	assert.Equal(t, "GET", cfg.Routes[0].Method)
	assert.Equal(t, "exact", cfg.Routes[0].PathType)
	assert.Equal(t, http.StatusOK, cfg.Routes[0].Status)

	jsoncPath := filepath.Join(dir, "routes.json")
	require.NoError(t, os.WriteFile(jsoncPath, []byte(`{
  // any method under /api
  "routes": [{"method": "*", "path": "^/api/v[0-9]+/", "pathType": "regex", "status": 204}]
}`), 0o644))
	cfg, err = LoadConfig(jsoncPath)
	require.NoError(t, err)
	assert.True(t, cfg.Routes[0].matches(http.MethodDelete, "/api/v2/items"))
	assert.False(t, cfg.Routes[0].matches(http.MethodGet, "/api/latest"))

	_, err = LoadConfig(filepath.Join(dir, "routes.toml"))
	assert.ErrorIs(t, err, ErrInvalidRoutes)
}

func TestConfigCompileRejects(t *testing.T) {
	tests := []struct {
		name  string
		route Route
	}{
		{"missing method", Route{Path: "/x"}},
		{"unknown path type", Route{Method: "GET", Path: "/x", PathType: "glob"}},
		{"relative path", Route{Method: "GET", Path: "x"}},
		{"bad regex", Route{Method: "GET", Path: "([", PathType: "regex"}},
		{"status out of range", Route{Method: "GET", Path: "/x", Status: 700}},
		{"negative delay", Route{Method: "GET", Path: "/x", Delay: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Routes: []Route{tt.route}}
			assert.ErrorIs(t, cfg.Compile(), ErrInvalidRoutes)
		})
	}
}

func TestNewServerDropsInvalidRoutes(t *testing.T) {
	s := NewServer(&Config{Routes: []Route{{Method: "GET", Path: "/x", PathType: "glob"}}}, zaptest.NewLogger(t))
	assert.Nil(t, s.findMatchingRoute(http.MethodGet, "/x"))
}
