// Package prepare turns collection items into immutable prepared requests.
package prepare

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alcrishub/postman-runtime/internal/headers"
	"github.com/alcrishub/postman-runtime/internal/scope"
	"github.com/alcrishub/postman-runtime/internal/types"
)

// ErrPreparation classifies every failure to build a request
var ErrPreparation = errors.New("request preparation failed")

func failf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrPreparation, fmt.Sprintf(format, args...))
}

// SystemHeaders are the defaults injected when a request does not declare them
type SystemHeaders struct {
	UserAgent      string
	Accept         string
	CacheControl   string
	PostmanToken   bool
	AcceptEncoding string
	Connection     string
}

// DefaultSystemHeaders returns the stock header defaults
func DefaultSystemHeaders(userAgent string) SystemHeaders {
	return SystemHeaders{
		UserAgent:      userAgent,
		Accept:         "*/*",
		CacheControl:   "no-cache",
		PostmanToken:   true,
		AcceptEncoding: "gzip, deflate, br",
		Connection:     "keep-alive",
	}
}

// Materializer prepares requests against one resolver. It holds no per-item state.
type Materializer struct {
	resolver        *scope.Resolver
	jar             headers.CookieSource
	files           FileReader
	collectionAuth  *types.Auth
	system          SystemHeaders
	defaultProtocol string
	boundary        func() string
	token           func() string
	logger          *zap.Logger
}

// Option configures a Materializer
type Option func(*Materializer)

// WithCookieJar sets the jar read during header assembly
func WithCookieJar(jar headers.CookieSource) Option {
	return func(m *Materializer) { m.jar = jar }
}

// WithFileReader sets the reader used for file and form-data bodies
func WithFileReader(files FileReader) Option {
	return func(m *Materializer) { m.files = files }
}

// WithCollectionAuth sets the auth inherited by items without their own
func WithCollectionAuth(auth *types.Auth) Option {
	return func(m *Materializer) { m.collectionAuth = auth }
}

// WithSystemHeaders overrides the header defaults
func WithSystemHeaders(system SystemHeaders) Option {
	return func(m *Materializer) { m.system = system }
}

// WithDefaultProtocol sets the protocol used when an item has no profile
func WithDefaultProtocol(protocol string) Option {
	return func(m *Materializer) { m.defaultProtocol = protocol }
}

// WithBoundary sets the multipart boundary generator
func WithBoundary(fn func() string) Option {
	return func(m *Materializer) { m.boundary = fn }
}

// WithTokenFunc sets the Postman-Token generator
func WithTokenFunc(fn func() string) Option {
	return func(m *Materializer) { m.token = fn }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(m *Materializer) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a Materializer
func New(resolver *scope.Resolver, opts ...Option) *Materializer {
	m := &Materializer{
		resolver:        resolver,
		system:          DefaultSystemHeaders("pmrun"),
		defaultProtocol: types.ProtocolAuto,
		token:           func() string { return uuid.NewString() },
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("prepare")
	return m
}

// Prepare resolves and serializes item. Any failure wraps ErrPreparation and
// no request is returned.
func (m *Materializer) Prepare(ctx context.Context, item types.CollectionItem) (*PreparedRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPreparation, err)
	}
	if m.resolver == nil {
		return nil, failf("no resolver configured")
	}
	req := item.Request
	if req == nil {
		return nil, failf("item %q has no request", item.Name)
	}

	rawURL, target := m.resolver.ResolveURL(req.URL.Raw)
	u := parseRequestURL(rawURL)

	method := strings.ToUpper(strings.TrimSpace(m.resolver.Resolve(req.Method, target)))
	if method == "" {
		method = "GET"
	}

	authType, params, authHeaders, authQuery, err := m.resolveAuth(req.Auth, target)
	if err != nil {
		return nil, err
	}
	if u != nil && len(authQuery) > 0 {
		u.RawQuery = appendQuery(u.RawQuery, authQuery)
	}

	declared := make([]types.Header, 0, len(req.Header))
	for _, h := range req.Header {
		declared = append(declared, types.Header{
			Key:      m.resolver.Resolve(h.Key, target),
			Value:    m.resolver.Resolve(h.Value, target),
			Disabled: h.Disabled,
		})
	}

	body, err := m.serializeBody(ctx, req.Body, target)
	if err != nil {
		return nil, err
	}

	protocol, err := m.protocol(item.ProtocolProfileBehavior)
	if err != nil {
		return nil, err
	}

	var profile types.ProtocolProfile
	if item.ProtocolProfileBehavior != nil {
		profile = *item.ProtocolProfileBehavior
	}

	opts := headers.Options{
		Defaults:      m.defaults(u, body.contentType),
		URL:           u,
		Auth:          authHeaders,
		HasBody:       body.present,
		ContentLength: int64(len(body.data)),
	}
	if !profile.DisableCookies && m.jar != nil {
		opts.Jar = m.jar
	}

	finalURL := rawURL
	if u != nil {
		finalURL = u.String()
	}

	prepared := &PreparedRequest{
		name:            item.Name,
		rawURL:          finalURL,
		url:             u,
		method:          method,
		headers:         headers.Assemble(declared, opts),
		body:            body.data,
		hasBody:         body.present,
		authType:        authType,
		auth:            params,
		protocol:        protocol,
		target:          target,
		disableCookies:  profile.DisableCookies,
		followRedirects: profile.FollowRedirects,
	}

	m.logger.Debug("prepared request",
		zap.String("item", item.Name),
		zap.String("method", method),
		zap.String("url", finalURL),
		zap.Stringer("target", target),
		zap.Int("headers", prepared.headers.Len()),
		zap.Int("body_bytes", len(body.data)))

	return prepared, nil
}

func (m *Materializer) defaults(u *url.URL, contentType string) []headers.Default {
	s := m.system
	out := []headers.Default{
		{Key: "User-Agent", Value: s.UserAgent},
		{Key: "Accept", Value: s.Accept},
		{Key: "Cache-Control", Value: s.CacheControl},
	}
	if s.PostmanToken && m.token != nil {
		out = append(out, headers.Default{Key: "Postman-Token", Value: m.token()})
	}
	if u != nil {
		out = append(out, headers.Default{Key: headers.KeyHost, Value: u.Host})
	}
	out = append(out,
		headers.Default{Key: "Accept-Encoding", Value: s.AcceptEncoding},
		headers.Default{Key: "Connection", Value: s.Connection},
	)
	if contentType != "" {
		out = append(out, headers.Default{Key: headers.KeyContentType, Value: contentType})
	}
	return out
}

func (m *Materializer) protocol(profile *types.ProtocolProfile) (string, error) {
	p := m.defaultProtocol
	if profile != nil && strings.TrimSpace(profile.ProtocolVersion) != "" {
		p = profile.ProtocolVersion
	}
	p = strings.ToLower(strings.TrimSpace(p))
	switch p {
	case "":
		return types.ProtocolAuto, nil
	case types.ProtocolHTTP1, types.ProtocolHTTP2, types.ProtocolAuto:
		return p, nil
	default:
		return "", failf("unsupported protocol version %q", p)
	}
}
