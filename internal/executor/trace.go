package executor

import (
	"context"
	"crypto/tls"
	"net/http/httptrace"
	"strings"
	"sync"
	"time"

	"github.com/alcrishub/postman-runtime/internal/types"
)

// traceRecorder collects the wire headers and timings of one request.
// Header fields are reset per connection attempt so redirects report the final hop.
type traceRecorder struct {
	mu      sync.Mutex
	start   time.Time
	headers []types.Header
	timings types.Timings

	dnsStart, connectStart, tlsStart time.Time
}

func newTraceRecorder() *traceRecorder {
	return &traceRecorder{start: time.Now()}
}

func (r *traceRecorder) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GetConn: func(string) {
			r.mu.Lock()
			r.headers = nil
			r.mu.Unlock()
		},
		DNSStart: func(httptrace.DNSStartInfo) {
			r.mu.Lock()
			r.dnsStart = time.Now()
			r.mu.Unlock()
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			r.mu.Lock()
			r.timings.DNS = time.Since(r.dnsStart)
			r.mu.Unlock()
		},
		ConnectStart: func(string, string) {
			r.mu.Lock()
			r.connectStart = time.Now()
			r.mu.Unlock()
		},
		ConnectDone: func(string, string, error) {
			r.mu.Lock()
			r.timings.Connect = time.Since(r.connectStart)
			r.mu.Unlock()
		},
		TLSHandshakeStart: func() {
			r.mu.Lock()
			r.tlsStart = time.Now()
			r.mu.Unlock()
		},
		TLSHandshakeDone: func(tls.ConnectionState, error) {
			r.mu.Lock()
			r.timings.TLSHandshake = time.Since(r.tlsStart)
			r.mu.Unlock()
		},
		WroteHeaderField: func(key string, values []string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			for _, v := range values {
				r.headers = append(r.headers, types.Header{Key: key, Value: v})
			}
		},
		GotFirstResponseByte: func() {
			r.mu.Lock()
			r.timings.FirstByte = time.Since(r.start)
			r.mu.Unlock()
		},
	}
}

func withTrace(ctx context.Context, r *traceRecorder) context.Context {
	return httptrace.WithClientTrace(ctx, r.clientTrace())
}

// finish builds the execution trace once the response has been read
func (r *traceRecorder) finish(method, url, httpVersion string, status int) *types.ExecutionTrace {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.timings.Total = time.Since(r.start)
	return &types.ExecutionTrace{
		Request: types.TraceRequest{
			Method:  method,
			URL:     url,
			Headers: append([]types.Header(nil), r.headers...),
		},
		Response: types.TraceResponse{
			HTTPVersion: httpVersion,
			StatusCode:  status,
		},
		Timings: r.timings,
	}
}

// wireHeaderKeys lists the recorded header names lower-cased, in order
func wireHeaderKeys(trace *types.ExecutionTrace) []string {
	if trace == nil {
		return nil
	}
	keys := make([]string, len(trace.Request.Headers))
	for i, h := range trace.Request.Headers {
		keys[i] = strings.ToLower(h.Key)
	}
	return keys
}
