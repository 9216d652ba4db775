package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// MaxPayloadBytes caps the webhook body held in memory.
const MaxPayloadBytes = 1_000_000 // 1 MB

type contextKey int

const bodyKey contextKey = iota

// requestBody returns the materialized payload stored by materializeBody.
func requestBody(r *http.Request) []byte {
	body, _ := r.Context().Value(bodyKey).([]byte)
	return body
}

// requestLogger records method, path, remote address, and the final status
// of every request, including short-circuited ones: inner layers write their
// response through the wrapped writer, so the deferred log always sees the
// status that actually went out.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			duration := time.Since(start)
			s.Logger.Info("http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", ww.Status(),
				"duration_ms", duration.Milliseconds())
			if s.Metrics != nil {
				s.Metrics.ObserveRequest(r.Method, ww.Status(), duration)
			}
		}()

		next.ServeHTTP(ww, r)
	})
}

// materializeBody reads the full payload into memory before any inner layer
// runs, so the signature check and the JSON parser see identical bytes.
func (s *Server) materializeBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > MaxPayloadBytes {
			respondText(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
			respondText(w, http.StatusUnsupportedMediaType, "expected application/json")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, MaxPayloadBytes+1))
		if err != nil {
			s.Logger.Error("reading request body failed", "error", err)
			respondText(w, http.StatusInternalServerError, "failed to read payload")
			return
		}
		if len(body) > MaxPayloadBytes {
			respondText(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}

		ctx := context.WithValue(r.Context(), bodyKey, body)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireSignature is the authentication gate. Dev mode bypasses it; that
// can only be enabled by the explicit GFC_DEV_MODE startup flag and is
// loudly logged when the server starts.
func (s *Server) requireSignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.DevMode {
			signature := requestSignature(r.Header.Get)
			if !Verify(requestBody(r), signature, s.Secret) {
				s.Logger.Warn("webhook signature rejected", "remote", r.RemoteAddr)
				respondText(w, http.StatusBadRequest, "invalid signature")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func respondText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(message + "\n"))
}
