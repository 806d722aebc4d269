package types

import (
	"strings"
	"time"
)

// Protocol versions accepted in a protocol profile
const (
	ProtocolHTTP1 = "http1"
	ProtocolHTTP2 = "http2"
	ProtocolAuto  = "auto"
)

// Body modes
const (
	BodyModeRaw        = "raw"
	BodyModeURLEncoded = "urlencoded"
	BodyModeFormData   = "formdata"
	BodyModeFile       = "file"
	BodyModeGraphQL    = "graphql"
)

// Collection is a loaded collection document
type Collection struct {
	Info     CollectionInfo  `json:"info" yaml:"info"`
	Item     ItemList        `json:"item" yaml:"item"`
	Variable []VariableEntry `json:"variable,omitempty" yaml:"variable,omitempty"`
	Auth     *Auth           `json:"auth,omitempty" yaml:"auth,omitempty"`
}

// CollectionInfo holds collection metadata
type CollectionInfo struct {
	ID          string `json:"_postman_id,omitempty" yaml:"_postman_id,omitempty"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Schema      string `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// CollectionItem is either a request item or a folder of items
type CollectionItem struct {
	ID                      string           `json:"id,omitempty" yaml:"id,omitempty"`
	Name                    string           `json:"name,omitempty" yaml:"name,omitempty"`
	Request                 *RequestTemplate `json:"request,omitempty" yaml:"request,omitempty"`
	ProtocolProfileBehavior *ProtocolProfile `json:"protocolProfileBehavior,omitempty" yaml:"protocolProfileBehavior,omitempty"`
	Item                    ItemList         `json:"item,omitempty" yaml:"item,omitempty"`
	Auth                    *Auth            `json:"auth,omitempty" yaml:"auth,omitempty"`
}

// IsFolder reports whether the item groups other items instead of holding a request
func (i CollectionItem) IsFolder() bool {
	return i.Request == nil && len(i.Item) > 0
}

// ProtocolProfile carries per-item transport behavior
type ProtocolProfile struct {
	ProtocolVersion string `json:"protocolVersion,omitempty" yaml:"protocolVersion,omitempty"`
	DisableCookies  bool   `json:"disableCookies,omitempty" yaml:"disableCookies,omitempty"`
	// FollowRedirects overrides network.follow_redirects when set
	FollowRedirects *bool `json:"followRedirects,omitempty" yaml:"followRedirects,omitempty"`
}

// RequestTemplate is an unresolved request definition
type RequestTemplate struct {
	URL         URL      `json:"url" yaml:"url"`
	Method      string   `json:"method,omitempty" yaml:"method,omitempty"`
	Header      []Header `json:"header,omitempty" yaml:"header,omitempty"`
	Body        *Body    `json:"body,omitempty" yaml:"body,omitempty"`
	Auth        *Auth    `json:"auth,omitempty" yaml:"auth,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// Header is a declared request header
type Header struct {
	Key      string `json:"key" yaml:"key"`
	Value    string `json:"value" yaml:"value"`
	Disabled bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// Body is an unresolved request body
type Body struct {
	Mode       string       `json:"mode,omitempty" yaml:"mode,omitempty"`
	Raw        string       `json:"raw,omitempty" yaml:"raw,omitempty"`
	URLEncoded []FormParam  `json:"urlencoded,omitempty" yaml:"urlencoded,omitempty"`
	FormData   []FormParam  `json:"formdata,omitempty" yaml:"formdata,omitempty"`
	File       *FileSource  `json:"file,omitempty" yaml:"file,omitempty"`
	GraphQL    *GraphQL     `json:"graphql,omitempty" yaml:"graphql,omitempty"`
	Options    *BodyOptions `json:"options,omitempty" yaml:"options,omitempty"`
	Disabled   bool         `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// FormParam is one urlencoded or multipart field
type FormParam struct {
	Key         string `json:"key" yaml:"key"`
	Value       string `json:"value,omitempty" yaml:"value,omitempty"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"` // text or file
	Src         string `json:"src,omitempty" yaml:"src,omitempty"`
	ContentType string `json:"contentType,omitempty" yaml:"contentType,omitempty"`
	Disabled    bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// FileSource points at a file used as the whole body
type FileSource struct {
	Src     string `json:"src,omitempty" yaml:"src,omitempty"`
	Content string `json:"content,omitempty" yaml:"content,omitempty"`
}

// GraphQL body
type GraphQL struct {
	Query     string `json:"query" yaml:"query"`
	Variables string `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// BodyOptions holds mode specific options
type BodyOptions struct {
	Raw *RawOptions `json:"raw,omitempty" yaml:"raw,omitempty"`
}

// RawOptions describes the raw body language (json, xml, text, html, javascript)
type RawOptions struct {
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
}

// Response is what a transport returns for one dispatched request
type Response struct {
	Code         int               `json:"code" yaml:"code"`
	Status       string            `json:"status" yaml:"status"`
	Headers      []Header          `json:"header" yaml:"header"`
	Body         []byte            `json:"-" yaml:"-"`
	HTTPVersion  string            `json:"httpVersion" yaml:"httpVersion"`
	ResponseTime time.Duration     `json:"responseTime" yaml:"responseTime"`
	Size         int               `json:"responseSize" yaml:"responseSize"`
	Trace        *ExecutionTrace   `json:"-" yaml:"-"`
	Cookies      map[string]string `json:"cookies,omitempty" yaml:"cookies,omitempty"`
}

// Header returns the first response header matching key case-insensitively
func (r *Response) Header(key string) (string, bool) {
	if r == nil {
		return "", false
	}
	for _, h := range r.Headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value, true
		}
	}
	return "", false
}

// ExecutionTrace records what actually crossed the wire
type ExecutionTrace struct {
	Request  TraceRequest  `json:"request" yaml:"request"`
	Response TraceResponse `json:"response" yaml:"response"`
	Timings  Timings       `json:"timings" yaml:"timings"`
}

// TraceRequest holds the literal header fields written for a request, in order
type TraceRequest struct {
	Method  string   `json:"method" yaml:"method"`
	URL     string   `json:"url" yaml:"url"`
	Headers []Header `json:"headers" yaml:"headers"`
}

// TraceResponse holds the negotiated protocol and status
type TraceResponse struct {
	HTTPVersion string `json:"httpVersion" yaml:"httpVersion"`
	StatusCode  int    `json:"statusCode" yaml:"statusCode"`
}

// Timings captured through httptrace
type Timings struct {
	DNS          time.Duration `json:"dns" yaml:"dns"`
	Connect      time.Duration `json:"connect" yaml:"connect"`
	TLSHandshake time.Duration `json:"tlsHandshake" yaml:"tlsHandshake"`
	FirstByte    time.Duration `json:"firstByte" yaml:"firstByte"`
	Total        time.Duration `json:"total" yaml:"total"`
}
