package executor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/alcrishub/postman-runtime/internal/prepare"
	"github.com/alcrishub/postman-runtime/internal/types"
)

// ErrTransport classifies network, timeout and protocol failures
var ErrTransport = errors.New("transport error")

// TLSConfig holds optional client certificate and CA settings
type TLSConfig struct {
	CertFile           string
	KeyFile            string
	CAFile             string
	InsecureSkipVerify bool
}

// Config controls the HTTP clients built by the executor
type Config struct {
	Timeout         time.Duration
	FollowRedirects bool
	MaxRedirects    int
	TLS             *TLSConfig
}

// DefaultConfig returns the transport defaults
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		FollowRedirects: true,
		MaxRedirects:    10,
	}
}

// Executor sends prepared requests. One Executor serves a whole run and reuses connections.
type Executor struct {
	config Config
	jar    http.CookieJar
	logger *zap.Logger

	http1 *http.Transport
	auto  *http.Transport
	h2    *http2.Transport
	h2c   *http2.Transport
}

// New builds the transports for every protocol profile. jar may be nil.
func New(config Config, jar http.CookieJar, logger *zap.Logger) (*Executor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tlsCfg, err := buildTLSConfig(config.TLS)
	if err != nil {
		return nil, fmt.Errorf("failed to configure TLS: %w", err)
	}

	dialer := &net.Dialer{Timeout: config.Timeout, KeepAlive: 30 * time.Second}

	http1 := &http.Transport{
		Proxy:              http.ProxyFromEnvironment,
		DialContext:        dialer.DialContext,
		TLSClientConfig:    tlsCfg.Clone(),
		DisableCompression: true,
		// a non-nil empty map keeps ALPN from offering h2
		TLSNextProto: map[string]func(string, *tls.Conn) http.RoundTripper{},
	}

	auto := &http.Transport{
		Proxy:              http.ProxyFromEnvironment,
		DialContext:        dialer.DialContext,
		TLSClientConfig:    tlsCfg.Clone(),
		DisableCompression: true,
	}
	if _, err := http2.ConfigureTransports(auto); err != nil {
		return nil, fmt.Errorf("failed to configure http2: %w", err)
	}

	h2 := &http2.Transport{
		TLSClientConfig:    tlsCfg.Clone(),
		DisableCompression: true,
	}

	h2c := &http2.Transport{
		AllowHTTP:          true,
		DisableCompression: true,
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		},
	}

	return &Executor{
		config: config,
		jar:    jar,
		logger: logger.Named("executor"),
		http1:  http1,
		auto:   auto,
		h2:     h2,
		h2c:    h2c,
	}, nil
}

// Close releases idle connections
func (e *Executor) Close() {
	e.http1.CloseIdleConnections()
	e.auto.CloseIdleConnections()
	e.h2.CloseIdleConnections()
	e.h2c.CloseIdleConnections()
}

// Send performs the request. The response body is fully read and decoded.
func (e *Executor) Send(ctx context.Context, req *prepare.PreparedRequest) (*types.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrTransport)
	}

	httpReq, err := e.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	recorder := newTraceRecorder()
	httpReq = httpReq.WithContext(withTrace(httpReq.Context(), recorder))

	client := e.client(req)
	resp, err := client.Do(httpReq)
	if err != nil {
		e.logger.Debug("request failed", zap.String("url", req.URL()), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %w", ErrTransport, err)
	}

	body, err := decodeBody(raw, resp.Header.Values("Content-Encoding"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	httpVersion := fmt.Sprintf("%d.%d", resp.ProtoMajor, resp.ProtoMinor)
	trace := recorder.finish(resp.Request.Method, resp.Request.URL.String(), httpVersion, resp.StatusCode)

	result := &types.Response{
		Code:         resp.StatusCode,
		Status:       resp.Status,
		Headers:      responseHeaders(resp.Header),
		Body:         body,
		HTTPVersion:  httpVersion,
		ResponseTime: trace.Timings.Total,
		Size:         len(raw),
		Trace:        trace,
		Cookies:      map[string]string{},
	}
	for _, c := range resp.Cookies() {
		result.Cookies[c.Name] = c.Value
	}

	e.logger.Debug("request completed",
		zap.String("method", req.Method()),
		zap.String("url", req.URL()),
		zap.Int("status", resp.StatusCode),
		zap.String("http_version", httpVersion),
		zap.Strings("wire_headers", wireHeaderKeys(trace)),
		zap.Duration("duration", trace.Timings.Total))

	return result, nil
}

// buildRequest copies the transmitted headers. Keys equal except for case
// share the first declared casing so their values stay in declaration order.
func (e *Executor) buildRequest(ctx context.Context, req *prepare.PreparedRequest) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method(), req.URL(), req.BodyReader())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", ErrTransport, err)
	}

	httpReq.Header = make(http.Header)
	casing := make(map[string]string)
	userAgent := false
	for _, h := range req.Headers().Transmitted() {
		lower := strings.ToLower(h.Key)
		switch lower {
		case "host":
			httpReq.Host = h.Value
		case "content-length":
			if n, err := strconv.ParseInt(h.Value, 10, 64); err == nil {
				httpReq.ContentLength = n
			}
		case "user-agent":
			userAgent = true
			httpReq.Header["User-Agent"] = append(httpReq.Header["User-Agent"], h.Value)
		default:
			key, ok := casing[lower]
			if !ok {
				key = h.Key
				casing[lower] = key
			}
			httpReq.Header[key] = append(httpReq.Header[key], h.Value)
		}
	}
	if !userAgent {
		httpReq.Header["User-Agent"] = []string{""}
	}
	if req.Protocol() == types.ProtocolHTTP2 {
		// connection-specific headers are not valid in HTTP/2 frames
		for key := range httpReq.Header {
			if strings.EqualFold(key, "Connection") {
				delete(httpReq.Header, key)
			}
		}
	}
	return httpReq, nil
}

func (e *Executor) roundTripper(req *prepare.PreparedRequest) http.RoundTripper {
	switch req.Protocol() {
	case types.ProtocolHTTP1:
		return e.http1
	case types.ProtocolHTTP2:
		if u := req.ParsedURL(); u != nil && u.Scheme == "http" {
			return e.h2c
		}
		return e.h2
	default:
		return e.auto
	}
}

func (e *Executor) client(req *prepare.PreparedRequest) *http.Client {
	follow := e.config.FollowRedirects
	if v, ok := req.FollowRedirects(); ok {
		follow = v
	}
	maxRedirects := e.config.MaxRedirects

	var rt http.RoundTripper = e.roundTripper(req)
	if e.jar != nil && !req.DisableCookies() {
		rt = &cookieTripper{next: rt, jar: e.jar}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   e.config.Timeout,
		CheckRedirect: func(r *http.Request, via []*http.Request) error {
			if !follow {
				return http.ErrUseLastResponse
			}
			if maxRedirects > 0 && len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// cookieTripper stores Set-Cookie headers from every hop and sends jar cookies on redirects.
// The first hop already carries the folded Cookie header from the prepared request.
type cookieTripper struct {
	next http.RoundTripper
	jar  http.CookieJar
}

func (c *cookieTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Response != nil {
		req = req.Clone(req.Context())
		for key := range req.Header {
			if strings.EqualFold(key, "Cookie") {
				delete(req.Header, key)
			}
		}
		for _, cookie := range c.jar.Cookies(req.URL) {
			req.AddCookie(cookie)
		}
	}

	resp, err := c.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if cookies := resp.Cookies(); len(cookies) > 0 {
		c.jar.SetCookies(req.URL, cookies)
	}
	return resp, nil
}

func responseHeaders(h http.Header) []types.Header {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]types.Header, 0, len(keys))
	for _, k := range keys {
		for _, v := range h[k] {
			out = append(out, types.Header{Key: k, Value: v})
		}
	}
	return out
}

// buildTLSConfig creates the client TLS settings with optional mTLS
func buildTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{}
	if cfg == nil {
		return tlsCfg, nil
	}
	tlsCfg.InsecureSkipVerify = cfg.InsecureSkipVerify

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsCfg.RootCAs = pool
	}

	return tlsCfg, nil
}
