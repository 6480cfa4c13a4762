// Package webhook implements a Source that accepts notifications over HTTP,
// for forwarders such as SMS relay apps and phone automation tools.
//
//	POST /v1/notifications  {"id": "optional", "text": "..."} or a text/plain body
//	GET  /healthz
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ArionMiles/txnotify/pkg/api"
)

// Default configuration values.
const (
	DefaultAddr         = ":8090"
	DefaultMaxBodyBytes = 64 << 10
	SourceName          = "webhook"
)

// Config holds configuration for the webhook reader.
type Config struct {
	// Addr is the listen address. Defaults to DefaultAddr.
	Addr string
	// Token, when set, must be presented as "Authorization: Bearer <token>".
	Token string
	// MaxBodyBytes limits request bodies. Defaults to DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// Reader serves the notification endpoint.
type Reader struct {
	config Config
	logger *slog.Logger
	// ready receives the bound address once the listener is up.
	ready chan string
}

type notificationRequest struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New creates a webhook reader.
func New(cfg Config, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Reader{
		config: cfg,
		logger: logger.With("component", "webhook_reader"),
		ready:  make(chan string, 1),
	}
}

// Ready returns a channel that receives the listen address once Read is serving.
func (r *Reader) Ready() <-chan string {
	return r.ready
}

// Read serves HTTP until ctx is cancelled, then shuts the server down and closes out.
func (r *Reader) Read(ctx context.Context, out chan<- *api.Notification, acks <-chan string) error {
	defer close(out)

	lis, err := net.Listen("tcp", r.config.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", r.config.Addr, err)
	}

	server := &http.Server{
		Handler:      r.Handler(ctx, out),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if acks != nil {
		go r.drainAcks(ctx, acks)
	}

	errc := make(chan error, 1)
	go func() {
		r.logger.Info("webhook reader listening", "addr", lis.Addr().String())
		errc <- server.Serve(lis)
	}()
	r.ready <- lis.Addr().String()

	select {
	case err := <-errc:
		return fmt.Errorf("serving webhook: %w", err)
	case <-ctx.Done():
	}

	r.logger.Info("webhook reader stopping", "reason", ctx.Err())

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("webhook server forced to shutdown", "error", err)
	}
	return ctx.Err()
}

// Handler returns the HTTP handler. Accepted notifications are sent to out
// until ctx is cancelled.
func (r *Reader) Handler(ctx context.Context, out chan<- *api.Notification) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("POST /v1/notifications", r.authorize(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.handleNotification(ctx, out, w, req)
	})))
	return r.recovery(r.logRequests(mux))
}

func (r *Reader) handleNotification(ctx context.Context, out chan<- *api.Notification, w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, r.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "reading body failed")
		return
	}

	var payload notificationRequest
	mediaType, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		if err := json.Unmarshal(body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	case "text/plain", "":
		payload.Text = string(body)
	default:
		writeError(w, http.StatusUnsupportedMediaType, "unsupported content type "+mediaType)
		return
	}

	payload.Text = strings.TrimSpace(payload.Text)
	if payload.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}

	n := &api.Notification{ID: payload.ID, Text: payload.Text, Source: SourceName}
	select {
	case out <- n:
	case <-ctx.Done():
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	case <-req.Context().Done():
		return
	}

	r.logger.Debug("accepted notification", "id", n.ID)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": n.ID})
}

func (r *Reader) authorize(next http.Handler) http.Handler {
	if r.config.Token == "" {
		return next
	}
	want := []byte("Bearer " + r.config.Token)
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		got := []byte(req.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, req)
	})
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (r *Reader) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		r.logger.Info("http request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"remote_addr", req.RemoteAddr,
		)
	})
}

func (r *Reader) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				r.logger.Error("panic recovered", "error", err, "method", req.Method, "path", req.URL.Path)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func (r *Reader) drainAcks(ctx context.Context, acks <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-acks:
			if !ok {
				return
			}
			r.logger.Debug("notification handled", "id", id)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
