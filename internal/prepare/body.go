package prepare

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/alcrishub/postman-runtime/internal/scope"
	"github.com/alcrishub/postman-runtime/internal/types"
)

type serializedBody struct {
	data        []byte
	contentType string
	present     bool
}

var rawContentTypes = map[string]string{
	"json":       "application/json",
	"xml":        "application/xml",
	"html":       "text/html",
	"javascript": "application/javascript",
	"text":       "text/plain",
}

func (m *Materializer) serializeBody(ctx context.Context, body *types.Body, target scope.Target) (serializedBody, error) {
	if body == nil || body.Disabled {
		return serializedBody{}, nil
	}
	resolve := func(s string) string { return m.resolver.Resolve(s, target) }

	switch strings.ToLower(body.Mode) {
	case "":
		return serializedBody{}, nil

	case types.BodyModeRaw:
		raw := resolve(body.Raw)
		if raw == "" {
			return serializedBody{}, nil
		}
		contentType := "text/plain"
		if body.Options != nil && body.Options.Raw != nil {
			if ct, ok := rawContentTypes[strings.ToLower(body.Options.Raw.Language)]; ok {
				contentType = ct
			}
		}
		return serializedBody{data: []byte(raw), contentType: contentType, present: true}, nil

	case types.BodyModeURLEncoded:
		var pairs []string
		for _, p := range body.URLEncoded {
			if p.Disabled || p.Key == "" {
				continue
			}
			pairs = append(pairs, url.QueryEscape(resolve(p.Key))+"="+url.QueryEscape(resolve(p.Value)))
		}
		if len(pairs) == 0 {
			return serializedBody{}, nil
		}
		return serializedBody{
			data:        []byte(strings.Join(pairs, "&")),
			contentType: "application/x-www-form-urlencoded",
			present:     true,
		}, nil

	case types.BodyModeFormData:
		return m.serializeFormData(ctx, body.FormData, resolve)

	case types.BodyModeFile:
		if body.File == nil {
			return serializedBody{}, nil
		}
		if body.File.Content != "" {
			return serializedBody{data: []byte(body.File.Content), present: true}, nil
		}
		src := resolve(body.File.Src)
		if src == "" {
			return serializedBody{}, nil
		}
		data, err := m.readFile(ctx, src)
		if err != nil {
			return serializedBody{}, err
		}
		return serializedBody{data: data, contentType: contentTypeFor(src, ""), present: true}, nil

	case types.BodyModeGraphQL:
		if body.GraphQL == nil {
			return serializedBody{}, nil
		}
		payload := map[string]interface{}{"query": resolve(body.GraphQL.Query)}
		if vars := strings.TrimSpace(resolve(body.GraphQL.Variables)); vars != "" {
			var parsed interface{}
			if err := json.Unmarshal([]byte(vars), &parsed); err != nil {
				return serializedBody{}, failf("graphql variables are not valid JSON: %v", err)
			}
			payload["variables"] = parsed
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return serializedBody{}, failf("encode graphql body: %v", err)
		}
		return serializedBody{data: data, contentType: "application/json", present: true}, nil

	default:
		return serializedBody{}, failf("unsupported body mode %q", body.Mode)
	}
}

func (m *Materializer) serializeFormData(ctx context.Context, params []types.FormParam, resolve func(string) string) (serializedBody, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if m.boundary != nil {
		if err := w.SetBoundary(m.boundary()); err != nil {
			return serializedBody{}, failf("invalid multipart boundary: %v", err)
		}
	}

	fields := 0
	for _, p := range params {
		if p.Disabled || p.Key == "" {
			continue
		}
		key := resolve(p.Key)

		if p.Type == "file" {
			src := resolve(p.Src)
			if src == "" {
				return serializedBody{}, failf("form field %q: file without src", key)
			}
			data, err := m.readFile(ctx, src)
			if err != nil {
				return serializedBody{}, err
			}
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
				escapeQuotes(key), escapeQuotes(filepath.Base(src))))
			h.Set("Content-Type", contentTypeFor(src, p.ContentType))
			part, err := w.CreatePart(h)
			if err != nil {
				return serializedBody{}, failf("form field %q: %v", key, err)
			}
			if _, err := part.Write(data); err != nil {
				return serializedBody{}, failf("form field %q: %v", key, err)
			}
			fields++
			continue
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, escapeQuotes(key)))
		if p.ContentType != "" {
			h.Set("Content-Type", p.ContentType)
		}
		part, err := w.CreatePart(h)
		if err != nil {
			return serializedBody{}, failf("form field %q: %v", key, err)
		}
		if _, err := part.Write([]byte(resolve(p.Value))); err != nil {
			return serializedBody{}, failf("form field %q: %v", key, err)
		}
		fields++
	}

	if fields == 0 {
		return serializedBody{}, nil
	}
	if err := w.Close(); err != nil {
		return serializedBody{}, failf("close multipart body: %v", err)
	}
	return serializedBody{data: buf.Bytes(), contentType: w.FormDataContentType(), present: true}, nil
}

func (m *Materializer) readFile(ctx context.Context, name string) ([]byte, error) {
	if m.files == nil {
		return nil, failf("no file reader configured for %q", name)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPreparation, err)
	}
	data, err := m.files.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPreparation, err)
	}
	return data, nil
}

func contentTypeFor(name, declared string) string {
	if declared != "" {
		return declared
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
