// Package mock runs a local echo server that reflects requests back as JSON.
// It backs the integration tests and the echo command.
package mock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const maxLogs = 1000

// Server is the echo server. Cleartext HTTP/2 (h2c) is accepted alongside HTTP/1.1.
type Server struct {
	config     *Config
	httpServer *http.Server
	listener   net.Listener
	logs       []RequestLog
	logsMutex  sync.RWMutex
	notifyCh   chan struct{}
	logger     *zap.Logger
}

// NewServer creates a server; call Start to listen
func NewServer(config *Config, logger *zap.Logger) *Server {
	if config == nil {
		config = &Config{}
	}
	if config.Host == "" {
		config.Host = "127.0.0.1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Compile(); err != nil {
		logger.Warn("static routes disabled", zap.Error(err))
		config.Routes = nil
	}

	return &Server{
		config:   config,
		notifyCh: make(chan struct{}, 100),
		logger:   logger.Named("echo"),
	}
}

// Handler returns the echo routes wrapped with static routes and request logging
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logMiddleware)
	r.Use(s.staticRoutes)

	r.HandleFunc("/get", handleEcho)
	r.HandleFunc("/post", handleEcho)
	r.HandleFunc("/put", handleEcho)
	r.HandleFunc("/patch", handleEcho)
	r.HandleFunc("/delete", handleEcho)
	r.HandleFunc("/anything", handleEcho)
	r.HandleFunc("/anything/*", handleEcho)
	r.HandleFunc("/headers", handleHeaders)
	r.HandleFunc("/cookies", handleCookies)
	r.HandleFunc("/cookies/set", handleSetCookies)
	r.HandleFunc("/basic-auth/{user}/{pass}", handleBasicAuth)
	r.HandleFunc("/status/{code}", handleStatus)
	r.HandleFunc("/redirect/{n}", handleRedirect)
	r.HandleFunc("/gzip", handleEncoded("gzip"))
	r.HandleFunc("/deflate", handleEncoded("deflate"))
	r.HandleFunc("/brotli", handleEncoded("br"))

	return h2c.NewHandler(r, &http2.Server{})
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("echo server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("echo server listening", zap.String("address", s.GetAddress()))
	return nil
}

// Stop shuts the server down
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}

// GetAddress returns the base URL of the running server
func (s *Server) GetAddress() string {
	if s.listener != nil {
		return "http://" + s.listener.Addr().String()
	}
	return fmt.Sprintf("http://%s:%d", s.config.Host, s.config.Port)
}

// staticRoutes serves configured routes before the echo endpoints
func (s *Server) staticRoutes(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := s.findMatchingRoute(r.Method, r.URL.Path)
		if route == nil {
			next.ServeHTTP(w, r)
			return
		}

		if route.Delay > 0 {
			time.Sleep(time.Duration(route.Delay) * time.Millisecond)
		}
		for key, value := range route.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(route.Status)
		_, _ = io.WriteString(w, route.Body)
	})
}

// findMatchingRoute finds the first route that matches the method and path
func (s *Server) findMatchingRoute(method, path string) *Route {
	for i := range s.config.Routes {
		if route := &s.config.Routes[i]; route.matches(method, path) {
			return route
		}
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.config.Logging {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		matched := "echo"
		if route := s.findMatchingRoute(r.Method, r.URL.Path); route != nil {
			matched = route.Name
			if matched == "" {
				matched = route.Method + " " + route.Path
			}
		}

		s.logRequest(RequestLog{
			Timestamp:   start,
			Method:      r.Method,
			Path:        r.URL.Path,
			Proto:       r.Proto,
			Headers:     flattenHeaders(r.Header),
			Body:        string(body),
			MatchedRule: matched,
			Status:      rec.status,
			Duration:    time.Since(start),
		})
	})
}

func (s *Server) logRequest(log RequestLog) {
	s.logsMutex.Lock()
	defer s.logsMutex.Unlock()

	s.logs = append(s.logs, log)
	if len(s.logs) > maxLogs {
		s.logs = s.logs[len(s.logs)-maxLogs:]
	}

	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

// NotifyChannel signals when a request was logged
func (s *Server) NotifyChannel() <-chan struct{} {
	return s.notifyCh
}

// GetLogs returns a copy of the request log
func (s *Server) GetLogs() []RequestLog {
	s.logsMutex.RLock()
	defer s.logsMutex.RUnlock()

	logs := make([]RequestLog, len(s.logs))
	copy(logs, s.logs)
	return logs
}

// ClearLogs empties the request log
func (s *Server) ClearLogs() {
	s.logsMutex.Lock()
	defer s.logsMutex.Unlock()

	s.logs = nil
}

// flattenHeaders joins multiple values with ", "
func flattenHeaders(headers http.Header) map[string]string {
	result := make(map[string]string, len(headers))
	for key, values := range headers {
		result[key] = strings.Join(values, ", ")
	}
	return result
}
