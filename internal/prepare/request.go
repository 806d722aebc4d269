package prepare

import (
	"bytes"
	"io"
	"net/url"

	"github.com/alcrishub/postman-runtime/internal/headers"
	"github.com/alcrishub/postman-runtime/internal/scope"
	"github.com/alcrishub/postman-runtime/internal/types"
)

// PreparedRequest is a fully resolved request ready for a transport.
// It is never modified after Prepare returns it; accessors return copies.
type PreparedRequest struct {
	name            string
	rawURL          string
	url             *url.URL
	method          string
	headers         *headers.Set
	body            []byte
	hasBody         bool
	authType        string
	auth            []types.AuthParam
	protocol        string
	target          scope.Target
	disableCookies  bool
	followRedirects *bool
}

// Name of the item the request was prepared from
func (r *PreparedRequest) Name() string { return r.name }

// URL returns the final request URL
func (r *PreparedRequest) URL() string { return r.rawURL }

// ParsedURL returns a copy of the parsed URL, or nil when the URL could not be parsed.
// An unparsable URL is left for the transport to report.
func (r *PreparedRequest) ParsedURL() *url.URL {
	if r.url == nil {
		return nil
	}
	u := *r.url
	if r.url.User != nil {
		user := *r.url.User
		u.User = &user
	}
	return &u
}

// Method returns the upper-cased HTTP method
func (r *PreparedRequest) Method() string { return r.method }

// Headers returns the assembled header set
func (r *PreparedRequest) Headers() *headers.Set { return r.headers }

// HasBody reports whether a body was serialized
func (r *PreparedRequest) HasBody() bool { return r.hasBody }

// Body returns a copy of the serialized body
func (r *PreparedRequest) Body() []byte {
	return append([]byte(nil), r.body...)
}

// BodyReader returns a fresh reader over the body, nil without one
func (r *PreparedRequest) BodyReader() io.Reader {
	if !r.hasBody {
		return nil
	}
	return bytes.NewReader(r.body)
}

// ContentLength is the serialized body size
func (r *PreparedRequest) ContentLength() int64 { return int64(len(r.body)) }

// AuthType is the effective auth type, empty when none applies
func (r *PreparedRequest) AuthType() string { return r.authType }

// AuthParams returns the resolved auth parameters
func (r *PreparedRequest) AuthParams() []types.AuthParam {
	return append([]types.AuthParam(nil), r.auth...)
}

// Protocol is one of http1, http2 or auto
func (r *PreparedRequest) Protocol() string { return r.protocol }

// Target is the host that gated restricted variables
func (r *PreparedRequest) Target() scope.Target { return r.target }

// DisableCookies reports whether the transport must not store response cookies
func (r *PreparedRequest) DisableCookies() bool { return r.disableCookies }

// FollowRedirects returns the per-item redirect override, if any
func (r *PreparedRequest) FollowRedirects() (follow bool, set bool) {
	if r.followRedirects == nil {
		return false, false
	}
	return *r.followRedirects, true
}
