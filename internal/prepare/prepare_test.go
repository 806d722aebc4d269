package prepare

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/alcrishub/postman-runtime/internal/headers"
	"github.com/alcrishub/postman-runtime/internal/scope"
	"github.com/alcrishub/postman-runtime/internal/types"
)

type mapReader map[string][]byte

func (m mapReader) ReadFile(name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return data, nil
}

type fixedJar []*http.Cookie

func (j fixedJar) Cookies(*url.URL) []*http.Cookie { return j }

func entries(kv ...string) []types.VariableEntry {
	var out []types.VariableEntry
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, types.VariableEntry{Key: kv[i], Value: kv[i+1]})
	}
	return out
}

func newMaterializer(t *testing.T, chain *scope.Chain, opts ...Option) *Materializer {
	t.Helper()
	opts = append([]Option{
		WithLogger(zaptest.NewLogger(t)),
		WithTokenFunc(func() string { return "token-1" }),
	}, opts...)
	return New(scope.NewResolver(chain), opts...)
}

func item(method, rawURL string) types.CollectionItem {
	return types.CollectionItem{
		Name:    "item",
		Request: &types.RequestTemplate{Method: method, URL: types.URL{Raw: rawURL}},
	}
}

func TestPrepareVaultScenario(t *testing.T) {
	vault := scope.NewVariableSet("vault", scope.KindVault, []types.VariableEntry{
		{Key: "vault:var1", Value: "basic-auth", Domains: []string{}},
		{Key: "vault:var2", Value: "postman", Domains: []string{"https://postman.com"}},
		{Key: "vault:var3", Value: "password"},
	})
	env := scope.NewVariableSet("env", scope.KindEnvironment, entries("url", "https://postman-echo.com"))
	m := newMaterializer(t, scope.NewChain(env, vault))

	it := item("get", "{{url}}/{{vault:var1}}?var2={{vault:var2}}&var3={{vault:var3}}")
	it.Request.Auth = &types.Auth{Type: types.AuthBasic, Params: []types.AuthParam{
		{Key: "username", Value: "{{vault:var2}}"},
		{Key: "password", Value: "{{vault:var3}}"},
	}}

	req, err := m.Prepare(context.Background(), it)
	require.NoError(t, err)

	assert.Equal(t, "https://postman-echo.com/basic-auth?var2=%7B%7Bvault:var2%7D%7D&var3=password", req.URL())
	assert.Equal(t, "GET", req.Method())
	assert.Equal(t, "postman-echo.com", req.Target().Host())
	assert.Equal(t, []types.AuthParam{
		{Key: "username", Value: "{{vault:var2}}"},
		{Key: "password", Value: "password"},
	}, req.AuthParams())

	authz, ok := req.Headers().Get("Authorization")
	require.True(t, ok)
	assert.Equal(t, "Basic e3t2YXVsdDp2YXIyfX06cGFzc3dvcmQ=", authz)
}

func TestPrepareDefaults(t *testing.T) {
	m := newMaterializer(t, scope.NewChain(), WithSystemHeaders(DefaultSystemHeaders("pmrun/test")))

	req, err := m.Prepare(context.Background(), item("", "localhost:8080/headers"))
	require.NoError(t, err)

	assert.Equal(t, "GET", req.Method())
	assert.Equal(t, "http://localhost:8080/headers", req.URL())
	assert.Equal(t, types.ProtocolAuto, req.Protocol())
	assert.False(t, req.HasBody())
	assert.Nil(t, req.BodyReader())

	assert.Equal(t, []headers.Entry{
		{Key: "User-Agent", Value: "pmrun/test", System: true},
		{Key: "Accept", Value: "*/*", System: true},
		{Key: "Cache-Control", Value: "no-cache", System: true},
		{Key: "Postman-Token", Value: "token-1", System: true},
		{Key: "Host", Value: "localhost:8080", System: true},
		{Key: "Accept-Encoding", Value: "gzip, deflate, br", System: true},
		{Key: "Connection", Value: "keep-alive", System: true},
	}, req.Headers().Entries())
}

func TestPrepareResolvesHeaders(t *testing.T) {
	env := scope.NewVariableSet("env", scope.KindEnvironment, entries("name", "X-Custom", "value", "resolved"))
	m := newMaterializer(t, scope.NewChain(env))

	it := item("POST", "http://localhost/")
	it.Request.Header = []types.Header{
		{Key: "{{name}}", Value: "{{value}}"},
		{Key: "X-Missing", Value: "{{missing}}"},
		{Key: "Accept", Value: "text/html", Disabled: true},
	}

	req, err := m.Prepare(context.Background(), it)
	require.NoError(t, err)

	v, _ := req.Headers().Get("x-custom")
	assert.Equal(t, "resolved", v)
	v, _ = req.Headers().Get("X-Missing")
	assert.Equal(t, "{{missing}}", v)
	_, ok := req.Headers().Get("Accept")
	assert.False(t, ok)
}

func TestPrepareRawBody(t *testing.T) {
	env := scope.NewVariableSet("env", scope.KindEnvironment, entries("id", "42"))
	m := newMaterializer(t, scope.NewChain(env))

	it := item("post", "http://localhost/post")
	it.Request.Body = &types.Body{
		Mode:    types.BodyModeRaw,
		Raw:     `{"id":{{id}}}`,
		Options: &types.BodyOptions{Raw: &types.RawOptions{Language: "json"}},
	}

	req, err := m.Prepare(context.Background(), it)
	require.NoError(t, err)

	assert.Equal(t, `{"id":42}`, string(req.Body()))
	ct, _ := req.Headers().Get("Content-Type")
	assert.Equal(t, "application/json", ct)
	last, _ := req.Headers().Last()
	assert.Equal(t, headers.Entry{Key: "Content-Length", Value: "9", System: true}, last)

	data, err := io.ReadAll(req.BodyReader())
	require.NoError(t, err)
	assert.Equal(t, `{"id":42}`, string(data))
}

func TestPrepareDeclaredContentTypeWins(t *testing.T) {
	m := newMaterializer(t, scope.NewChain())
	it := item("POST", "http://localhost/post")
	it.Request.Header = []types.Header{{Key: "content-type", Value: "text/csv"}}
	it.Request.Body = &types.Body{Mode: types.BodyModeRaw, Raw: "a,b"}

	req, err := m.Prepare(context.Background(), it)
	require.NoError(t, err)
	assert.Equal(t, []string{"text/csv"}, req.Headers().Values("Content-Type"))
}

func TestPrepareURLEncodedBody(t *testing.T) {
	m := newMaterializer(t, scope.NewChain())
	it := item("POST", "http://localhost/post")
	it.Request.Body = &types.Body{Mode: types.BodyModeURLEncoded, URLEncoded: []types.FormParam{
		{Key: "b", Value: "two words"},
		{Key: "a", Value: "1"},
		{Key: "off", Value: "x", Disabled: true},
	}}

	req, err := m.Prepare(context.Background(), it)
	require.NoError(t, err)
	assert.Equal(t, "b=two+words&a=1", string(req.Body()))
	ct, _ := req.Headers().Get("Content-Type")
	assert.Equal(t, "application/x-www-form-urlencoded", ct)
}

func TestPrepareMultipartContentLength(t *testing.T) {
	fixture := []byte(`{"key": "value"}` + "\n")
	m := newMaterializer(t, scope.NewChain(),
		WithFileReader(mapReader{"fixtures/upload-file.json": fixture}),
		WithBoundary(func() string { return "boundary123" }))

	it := item("POST", "https://postman-echo.com/post")
	it.Request.Body = &types.Body{Mode: types.BodyModeFormData, FormData: []types.FormParam{
		{Key: "file", Src: "fixtures/upload-file.json", Type: "file"},
		{Key: "note", Value: "hello"},
	}}

	req, err := m.Prepare(context.Background(), it)
	require.NoError(t, err)

	last, ok := req.Headers().Last()
	require.True(t, ok)
	assert.Equal(t, "Content-Length", last.Key)
	assert.True(t, last.System)
	assert.Equal(t, strconv.Itoa(len(req.Body())), last.Value)

	ct, _ := req.Headers().Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(ct)
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)
	assert.Equal(t, "boundary123", params["boundary"])

	mr := multipart.NewReader(req.BodyReader(), params["boundary"])
	part, err := mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "file", part.FormName())
	assert.Equal(t, "upload-file.json", part.FileName())
	assert.Equal(t, "application/json", part.Header.Get("Content-Type"))
	data, _ := io.ReadAll(part)
	assert.Equal(t, fixture, data)

	part, err = mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "note", part.FormName())
}

func TestPrepareFileBodyErrors(t *testing.T) {
	it := item("POST", "http://localhost/post")
	it.Request.Body = &types.Body{Mode: types.BodyModeFile, File: &types.FileSource{Src: "missing.bin"}}

	_, err := newMaterializer(t, scope.NewChain()).Prepare(context.Background(), it)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPreparation)

	_, err = newMaterializer(t, scope.NewChain(), WithFileReader(mapReader{})).Prepare(context.Background(), it)
	assert.ErrorIs(t, err, ErrPreparation)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestPrepareGraphQLBody(t *testing.T) {
	m := newMaterializer(t, scope.NewChain())
	it := item("POST", "http://localhost/graphql")
	it.Request.Body = &types.Body{Mode: types.BodyModeGraphQL, GraphQL: &types.GraphQL{
		Query:     "{ me { id } }",
		Variables: `{"a": 1}`,
	}}

	req, err := m.Prepare(context.Background(), it)
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"{ me { id } }","variables":{"a":1}}`, string(req.Body()))

	it.Request.Body.GraphQL.Variables = "{not json"
	_, err = m.Prepare(context.Background(), it)
	assert.ErrorIs(t, err, ErrPreparation)
}

func TestPrepareAuthVariants(t *testing.T) {
	collectionAuth := &types.Auth{Type: types.AuthBearer, Params: []types.AuthParam{{Key: "token", Value: "inherited"}}}
	m := newMaterializer(t, scope.NewChain(), WithCollectionAuth(collectionAuth))

	t.Run("inherits collection auth", func(t *testing.T) {
		req, err := m.Prepare(context.Background(), item("GET", "http://localhost/"))
		require.NoError(t, err)
		v, _ := req.Headers().Get("Authorization")
		assert.Equal(t, "Bearer inherited", v)
		assert.Equal(t, types.AuthBearer, req.AuthType())
	})

	t.Run("noauth overrides collection", func(t *testing.T) {
		it := item("GET", "http://localhost/")
		it.Request.Auth = &types.Auth{Type: types.AuthNoAuth}
		req, err := m.Prepare(context.Background(), it)
		require.NoError(t, err)
		assert.False(t, req.Headers().Has("Authorization"))
	})

	t.Run("apikey in query", func(t *testing.T) {
		it := item("GET", "http://localhost/get?a=1")
		it.Request.Auth = &types.Auth{Type: types.AuthAPIKey, Params: []types.AuthParam{
			{Key: "key", Value: "api key"}, {Key: "value", Value: "s&cret"}, {Key: "in", Value: "query"},
		}}
		req, err := m.Prepare(context.Background(), it)
		require.NoError(t, err)
		assert.Equal(t, "http://localhost/get?a=1&api+key=s%26cret", req.URL())
	})

	t.Run("apikey in header", func(t *testing.T) {
		it := item("GET", "http://localhost/")
		it.Request.Auth = &types.Auth{Type: types.AuthAPIKey, Params: []types.AuthParam{
			{Key: "key", Value: "X-Api-Key"}, {Key: "value", Value: "k"},
		}}
		req, err := m.Prepare(context.Background(), it)
		require.NoError(t, err)
		v, _ := req.Headers().Get("x-api-key")
		assert.Equal(t, "k", v)
	})

	t.Run("unsupported type", func(t *testing.T) {
		it := item("GET", "http://localhost/")
		it.Request.Auth = &types.Auth{Type: "hawk"}
		req, err := m.Prepare(context.Background(), it)
		assert.Nil(t, req)
		assert.ErrorIs(t, err, ErrPreparation)
	})
}

func TestPrepareProtocolProfile(t *testing.T) {
	m := newMaterializer(t, scope.NewChain(), WithDefaultProtocol("http1"))

	req, err := m.Prepare(context.Background(), item("GET", "http://localhost/"))
	require.NoError(t, err)
	assert.Equal(t, types.ProtocolHTTP1, req.Protocol())

	it := item("GET", "http://localhost/")
	it.ProtocolProfileBehavior = &types.ProtocolProfile{ProtocolVersion: "HTTP2"}
	req, err = m.Prepare(context.Background(), it)
	require.NoError(t, err)
	assert.Equal(t, types.ProtocolHTTP2, req.Protocol())

	it.ProtocolProfileBehavior.ProtocolVersion = "spdy"
	_, err = m.Prepare(context.Background(), it)
	assert.ErrorIs(t, err, ErrPreparation)
}

func TestPrepareDisableCookies(t *testing.T) {
	jar := fixedJar{{Name: "session", Value: "abc"}}
	m := newMaterializer(t, scope.NewChain(), WithCookieJar(jar))

	req, err := m.Prepare(context.Background(), item("GET", "http://localhost/"))
	require.NoError(t, err)
	v, _ := req.Headers().Get("Cookie")
	assert.Equal(t, "session=abc", v)

	it := item("GET", "http://localhost/")
	it.ProtocolProfileBehavior = &types.ProtocolProfile{DisableCookies: true}
	req, err = m.Prepare(context.Background(), it)
	require.NoError(t, err)
	assert.False(t, req.Headers().Has("Cookie"))
	assert.True(t, req.DisableCookies())
}

func TestPrepareUnparsableURLIsLeftForTransport(t *testing.T) {
	m := newMaterializer(t, scope.NewChain())

	req, err := m.Prepare(context.Background(), item("GET", "https://{{host}}/get"))
	require.NoError(t, err)
	assert.Nil(t, req.ParsedURL())
	assert.Equal(t, "https://{{host}}/get", req.URL())
	assert.False(t, req.Headers().Has("Host"))
}

func TestPrepareErrors(t *testing.T) {
	m := newMaterializer(t, scope.NewChain())

	_, err := m.Prepare(context.Background(), types.CollectionItem{Name: "folder"})
	assert.ErrorIs(t, err, ErrPreparation)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Prepare(ctx, item("GET", "http://localhost/"))
	assert.True(t, errors.Is(err, ErrPreparation) && errors.Is(err, context.Canceled))

	it := item("GET", "http://localhost/")
	it.Request.Body = &types.Body{Mode: "protobuf"}
	_, err = m.Prepare(context.Background(), it)
	assert.ErrorIs(t, err, ErrPreparation)
}

func TestEscapeQuery(t *testing.T) {
	assert.Equal(t, "a=%7B%7Bx%7D%7D&b=%20c%", escapeQuery("a={{x}}&b= c%"))
	assert.Equal(t, "a=1&b=:@/?", escapeQuery("a=1&b=:@/?"))
}
