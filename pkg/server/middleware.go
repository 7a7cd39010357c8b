package server

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/polisai/polis-relay/pkg/logging"
)

// CORS preflight values answered for every OPTIONS request.
const (
	preflightAllowMethods = "GET, POST, PUT, DELETE, PATCH, OPTIONS"
	preflightAllowHeaders = "Content-Type, Authorization, X-Requested-With"
	preflightMaxAge       = "86400"
)

// Preflight answers every OPTIONS request with 204 and the CORS preflight
// headers before any routing or authentication takes place.
func Preflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", preflightAllowMethods)
		h.Set("Access-Control-Allow-Headers", preflightAllowHeaders)
		h.Set("Access-Control-Max-Age", preflightMaxAge)
		w.WriteHeader(http.StatusNoContent)
	})
}

// Recover returns middleware converting a panic in the wrapped handler
// into a logged 500. The serving loop keeps running.
func Recover(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return recoverHandler(m, next)
	}
}

func recoverHandler(m *Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}
			m.RecordPanic()

			hlog.FromRequest(r).Error().
				Str("method", r.Method).
				Str("url", r.URL.String()).
				Str("request_id", logging.RequestIDFromContext(r.Context())).
				Str("panic", fmt.Sprint(p)).
				Msg("unhandled error while serving request")

			if rec.wroteHeader {
				// Too late for a clean status; drop the connection.
				panic(http.ErrAbortHandler)
			}
			writeText(rec, http.StatusInternalServerError, "Internal Server Error")
		}()
		next.ServeHTTP(rec, r)
	})
}

// statusRecorder wraps http.ResponseWriter to prevent multiple WriteHeader calls.
type statusRecorder struct {
	http.ResponseWriter
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.ResponseWriter.WriteHeader(code)
		r.wroteHeader = true
	}
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not support hijacking")
	}
	return hijacker.Hijack()
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
