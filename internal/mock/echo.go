package mock

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/go-chi/chi/v5"
	json "github.com/json-iterator/go"
)

const maxEchoBody = 32 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestHeaders returns lower-cased request headers including host
func requestHeaders(r *http.Request) map[string]string {
	out := make(map[string]string, len(r.Header)+1)
	for key, values := range r.Header {
		sep := ", "
		if strings.EqualFold(key, "Cookie") {
			sep = "; "
		}
		out[strings.ToLower(key)] = strings.Join(values, sep)
	}
	if r.Host != "" {
		out["host"] = r.Host
	}
	return out
}

func queryArgs(r *http.Request) map[string]string {
	args := make(map[string]string)
	for key, values := range r.URL.Query() {
		args[key] = strings.Join(values, ",")
	}
	return args
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// handleEcho reflects method, args, headers and body
func handleEcho(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEchoBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	resp := map[string]interface{}{
		"args":     queryArgs(r),
		"headers":  requestHeaders(r),
		"url":      requestURL(r),
		"method":   r.Method,
		"protocol": r.Proto,
	}

	form := map[string]string{}
	files := map[string]string{}
	var parsed interface{}

	mediaType, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/x-www-form-urlencoded":
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err := r.ParseForm(); err == nil {
			for key, values := range r.PostForm {
				form[key] = strings.Join(values, ",")
			}
		}
	case strings.HasPrefix(mediaType, "multipart/"):
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.Header.Set("Content-Type", mediaType+"; boundary="+params["boundary"])
		if err := r.ParseMultipartForm(maxEchoBody); err == nil {
			for key, values := range r.MultipartForm.Value {
				form[key] = strings.Join(values, ",")
			}
			for _, headers := range r.MultipartForm.File {
				for _, fh := range headers {
					f, err := fh.Open()
					if err != nil {
						continue
					}
					data, _ := io.ReadAll(f)
					_ = f.Close()
					files[fh.Filename] = string(data)
				}
			}
		}
	case strings.Contains(mediaType, "json"):
		_ = json.Unmarshal(body, &parsed)
	}

	resp["data"] = string(body)
	resp["form"] = form
	resp["files"] = files
	resp["json"] = parsed
	writeJSON(w, http.StatusOK, resp)
}

func handleHeaders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"headers": requestHeaders(r)})
}

func cookieMap(r *http.Request) map[string]string {
	out := make(map[string]string)
	for _, c := range r.Cookies() {
		if _, ok := out[c.Name]; !ok {
			out[c.Name] = c.Value
		}
	}
	return out
}

func handleCookies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"cookies": cookieMap(r)})
}

// handleSetCookies stores every query parameter as a cookie and echoes the result
func handleSetCookies(w http.ResponseWriter, r *http.Request) {
	cookies := cookieMap(r)
	query := r.URL.Query()
	names := make([]string, 0, len(query))
	for name := range query {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := query.Get(name)
		http.SetCookie(w, &http.Cookie{Name: name, Value: value, Path: "/"})
		cookies[name] = value
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cookies": cookies})
}

func handleBasicAuth(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != chi.URLParam(r, "user") || pass != chi.URLParam(r, "pass") {
		w.Header().Set("WWW-Authenticate", `Basic realm="Users"`)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"authenticated": true, "user": user})
}

func handleStatus(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(chi.URLParam(r, "code"))
	if err != nil || code < 100 || code > 599 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status code"})
		return
	}
	writeJSON(w, code, map[string]int{"status": code})
}

func handleRedirect(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid redirect count"})
		return
	}
	location := "/get"
	if n > 1 {
		location = fmt.Sprintf("/redirect/%d", n-1)
	}
	http.Redirect(w, r, location, http.StatusFound)
}

// handleEncoded returns an echo body compressed with encoding
func handleEncoded(encoding string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, _ := json.Marshal(map[string]interface{}{
			"encoding": encoding,
			"headers":  requestHeaders(r),
			"method":   r.Method,
		})

		var buf bytes.Buffer
		var zw io.WriteCloser
		switch encoding {
		case "gzip":
			zw = gzip.NewWriter(&buf)
		case "deflate":
			zw = zlib.NewWriter(&buf)
		default:
			zw = brotli.NewWriter(&buf)
		}
		_, _ = zw.Write(payload)
		_ = zw.Close()

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Content-Encoding", encoding)
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}
