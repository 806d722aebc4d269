package runner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/alcrishub/postman-runtime/internal/cookies"
	"github.com/alcrishub/postman-runtime/internal/executor"
	"github.com/alcrishub/postman-runtime/internal/mock"
	"github.com/alcrishub/postman-runtime/internal/prepare"
	"github.com/alcrishub/postman-runtime/internal/scope"
	"github.com/alcrishub/postman-runtime/internal/types"
)

func headerItem(name, rawURL, protocol string, body *types.Body, hdrs ...types.Header) types.CollectionItem {
	method := http.MethodGet
	if body != nil {
		method = http.MethodPost
	}
	return types.CollectionItem{
		Name:                    name,
		Request:                 &types.RequestTemplate{Method: method, URL: types.URL{Raw: rawURL}, Header: hdrs, Body: body},
		ProtocolProfileBehavior: &types.ProtocolProfile{ProtocolVersion: protocol},
	}
}

func echoedHeaders(t *testing.T, resp *types.Response) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body, &out))
	return out["headers"].(map[string]interface{})
}

func TestRunHeaderCollectionAgainstEchoServer(t *testing.T) {
	ts := httptest.NewUnstartedServer(mock.NewServer(nil, zaptest.NewLogger(t)).Handler())
	ts.EnableHTTP2 = true
	ts.StartTLS()
	defer ts.Close()

	jar, err := cookies.New()
	require.NoError(t, err)

	cfg := executor.DefaultConfig()
	cfg.Timeout = 5 * time.Second
	cfg.TLS = &executor.TLSConfig{InsecureSkipVerify: true}
	exec, err := executor.New(cfg, jar, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer exec.Close()

	materializer := prepare.New(scope.NewResolver(scope.NewChain()),
		prepare.WithCookieJar(jar),
		prepare.WithSystemHeaders(prepare.DefaultSystemHeaders("pmrun/test")),
		prepare.WithLogger(zaptest.NewLogger(t)))

	u := ts.URL + "/headers"
	collection := []types.CollectionItem{
		headerItem("duplicate headers", u, types.ProtocolHTTP1, nil,
			types.Header{Key: "Header-Name", Value: "value1"},
			types.Header{Key: "Header-Name", Value: "value2"}),
		headerItem("disabled and falsy headers", u, types.ProtocolHTTP1, nil,
			types.Header{Key: "X-Off", Value: "no", Disabled: true},
			types.Header{Key: "X-Empty", Value: ""},
			types.Header{Key: "", Value: "dropped"}),
		headerItem("case insensitivity", u, types.ProtocolHTTP1, nil,
			types.Header{Key: "x-case", Value: "lower"},
			types.Header{Key: "X-CASE", Value: "upper"}),
		headerItem("system headers", u, types.ProtocolHTTP1, nil),
		headerItem("duplicate cookies", u, types.ProtocolHTTP1, nil,
			types.Header{Key: "Cookie", Value: "foo=bar; baz=qux"},
			types.Header{Key: "cookie", Value: "foo=other"}),
		headerItem("content length", ts.URL+"/post", types.ProtocolHTTP1,
			&types.Body{Mode: types.BodyModeRaw, Raw: "hello"},
			types.Header{Key: "Content-Length", Value: "999"}),
		headerItem("http2 explicit", u, types.ProtocolHTTP2, nil,
			types.Header{Key: "X-Proto", Value: "h2"}),
		headerItem("http2 auto", u, types.ProtocolAuto, nil),
	}

	rec := &Recorder{}
	result := New(materializer, exec, WithLogger(zaptest.NewLogger(t))).Run(context.Background(), collection, rec)

	require.NoError(t, result.CompletionError)
	assertLifecycle(t, rec, len(collection))
	assert.Equal(t, 1, rec.Count(EventStart))
	assert.Equal(t, 1, rec.Count(EventDone))

	got := rec.Items()
	for i, ev := range got {
		require.NoError(t, ev.Err, "item %d", i)
		require.NotNil(t, ev.Response, "item %d", i)
		assert.Equal(t, http.StatusOK, ev.Response.Code, "item %d", i)
		assert.Equal(t, collection[i].Name, ev.Name)
		assert.NotNil(t, ev.Request)
	}

	assert.Equal(t, "value1, value2", echoedHeaders(t, got[0].Response)["header-name"])

	disabled := echoedHeaders(t, got[1].Response)
	assert.NotContains(t, disabled, "x-off")
	assert.Contains(t, disabled, "x-empty")

	assert.Equal(t, "lower, upper", echoedHeaders(t, got[2].Response)["x-case"])

	system := echoedHeaders(t, got[3].Response)
	assert.Equal(t, "pmrun/test", system["user-agent"])
	assert.Equal(t, "*/*", system["accept"])
	assert.Contains(t, system, "postman-token")

	assert.Equal(t, "foo=bar; baz=qux", echoedHeaders(t, got[4].Response)["cookie"])

	length, ok := got[5].Request.Headers().Get("Content-Length")
	require.True(t, ok)
	assert.Equal(t, "5", length)

	assert.Equal(t, "2.0", got[6].Response.HTTPVersion)
	assert.Equal(t, "h2", echoedHeaders(t, got[6].Response)["x-proto"])
	assert.Equal(t, "2.0", got[7].Response.HTTPVersion)
}
