package server

import (
	"net/http"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/polisai/polis-relay/pkg/logging"
)

// NewHandler assembles the data plane handler: tracing, access logging,
// panic recovery and CORS preflight around a Dispatcher built from opts.
func NewHandler(opts Options, logger zerolog.Logger) http.Handler {
	var h http.Handler = NewDispatcher(opts)
	h = Preflight(h)
	h = Recover(opts.Metrics)(h)
	h = logging.AccessLog(logger, h)
	return otelhttp.NewHandler(h, "relay.data")
}

// NewAdminHandler serves the health probe and, when m is set, the
// Prometheus exposition.
func NewAdminHandler(m *Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if m != nil {
		mux.Handle("/metrics", m.Handler())
	}
	return mux
}
