package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/polis-relay/pkg/domain"
	"github.com/polisai/polis-relay/pkg/router"
	"github.com/polisai/polis-relay/pkg/telemetry"
)

// HeaderAllowOrigin is the CORS header set on every relayed response.
const HeaderAllowOrigin = "Access-Control-Allow-Origin"

// RequestContext holds the state of one relayed request. It is owned by
// the handling goroutine and discarded once the response is written.
type RequestContext struct {
	Method string
	Path   string
	Header http.Header
	Body   io.ReadCloser
	// ContentLength is the inbound body length, -1 when unknown.
	ContentLength int64
	Route         router.Route
	UpstreamURL   *url.URL
}

// NewRequestContext captures r for forwarding along route.
func NewRequestContext(r *http.Request, route router.Route) *RequestContext {
	return &RequestContext{
		Method:        r.Method,
		Path:          r.URL.Path,
		Header:        cloneHeaders(r.Header),
		Body:          r.Body,
		ContentLength: r.ContentLength,
		Route:         route,
		UpstreamURL:   router.UpstreamURLFor(route, r.URL),
	}
}

// Config holds configuration for creating a Forwarder.
type Config struct {
	// Timeout bounds the whole upstream exchange. Zero means no limit.
	Timeout time.Duration
	// Transport overrides the outbound transport, mainly for tests.
	Transport http.RoundTripper
	Logger    *zerolog.Logger
}

// Forwarder relays requests to upstream origins.
type Forwarder struct {
	client  *http.Client
	timeout time.Duration
	logger  zerolog.Logger
}

// NewForwarder constructs a Forwarder. Outbound calls are traced through
// otelhttp and never follow redirects, so upstream 3xx responses reach
// the client untouched.
func NewForwarder(cfg Config) *Forwarder {
	base := cfg.Transport
	if base == nil {
		base = defaultTransport()
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Forwarder{
		client: &http.Client{
			Transport: otelhttp.NewTransport(base),
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

func defaultTransport() http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	// Relay upstream Content-Encoding verbatim instead of transparently
	// decompressing gzip the client never asked for.
	t.DisableCompression = true
	return t
}

// ServeRoute relays r to route's upstream and writes the result to w.
// The returned error is informational: by the time it is returned a
// response has already been written.
func (f *Forwarder) ServeRoute(w http.ResponseWriter, r *http.Request, route router.Route) error {
	return f.Forward(r.Context(), w, NewRequestContext(r, route))
}

// Forward issues the upstream call described by rc and streams the
// upstream response to w with CORS headers added. Transport failures are
// answered with 502, or 504 when the configured timeout expired.
func (f *Forwarder) Forward(ctx context.Context, w http.ResponseWriter, rc *RequestContext) error {
	start := time.Now()
	logger := f.requestLogger(ctx, rc)

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	outReq, err := f.newOutboundRequest(ctx, rc)
	if err != nil {
		return f.fail(ctx, w, rc, start, telemetry.OutcomeUnreachable, fmt.Errorf("failed to create upstream request: %w", errors.Join(domain.ErrUpstreamUnreachable, err)))
	}

	logger.Debug().Str("target_url", rc.UpstreamURL.Redacted()).Msg("forwarding request upstream")

	resp, err := f.client.Do(outReq)
	if err != nil {
		outcome, classified := classifyTransportError(ctx, err)
		return f.fail(ctx, w, rc, start, outcome, classified)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("failed to close upstream response body")
		}
	}()

	replaceHeaders(w.Header(), resp.Header)
	w.Header().Set(HeaderAllowOrigin, "*")
	w.WriteHeader(resp.StatusCode)

	streamWriter := newFlushCountingWriter(w)
	_, copyErr := io.Copy(streamWriter, resp.Body)

	outcome := telemetry.OutcomeSuccess
	if resp.StatusCode >= http.StatusBadRequest {
		outcome = telemetry.OutcomeUpstreamErr
	}
	telemetry.RecordUpstreamMetrics(ctx, telemetry.UpstreamMetrics{
		Route:      rc.Route.Prefix,
		Method:     rc.Method,
		StatusCode: resp.StatusCode,
		Outcome:    outcome,
		Duration:   time.Since(start),
		BytesSent:  streamWriter.count,
	})

	if copyErr != nil {
		logger.Warn().Err(copyErr).Int64("bytes_sent", streamWriter.count).Msg("upstream response relay interrupted")
		return fmt.Errorf("failed to relay response body: %w", copyErr)
	}

	logger.Debug().
		Int("status_code", resp.StatusCode).
		Int64("bytes_sent", streamWriter.count).
		Msg("upstream request completed")
	return nil
}

func (f *Forwarder) newOutboundRequest(ctx context.Context, rc *RequestContext) (*http.Request, error) {
	body := rc.Body
	if body == nil {
		body = http.NoBody
	}

	outReq, err := http.NewRequestWithContext(ctx, rc.Method, rc.UpstreamURL.String(), body)
	if err != nil {
		return nil, err
	}
	// NewRequest re-parses the URL; keep the exact path and encoding.
	outReq.URL = rc.UpstreamURL
	outReq.Host = rc.UpstreamURL.Host
	outReq.Header = outboundHeaders(rc.Header)
	outReq.ContentLength = contentLength(rc)
	if outReq.ContentLength == 0 {
		outReq.Body = http.NoBody
		outReq.GetBody = nil
	}
	return outReq, nil
}

func contentLength(rc *RequestContext) int64 {
	if rc.Body == nil || rc.Body == http.NoBody {
		return 0
	}
	return rc.ContentLength
}

func (f *Forwarder) fail(ctx context.Context, w http.ResponseWriter, rc *RequestContext, start time.Time, outcome string, err error) error {
	logger := f.requestLogger(ctx, rc)
	logger.Error().Err(err).Str("outcome", outcome).Msg("upstream request failed")

	telemetry.RecordUpstreamFailure(trace.SpanFromContext(ctx), outcome)
	telemetry.RecordUpstreamMetrics(ctx, telemetry.UpstreamMetrics{
		Route:    rc.Route.Prefix,
		Method:   rc.Method,
		Outcome:  outcome,
		Duration: time.Since(start),
	})

	if outcome == telemetry.OutcomeCanceled {
		// Client went away; nobody is listening for a response.
		return err
	}

	w.Header().Set(HeaderAllowOrigin, "*")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	status := domain.StatusCode(err)
	w.WriteHeader(status)
	_, _ = io.WriteString(w, domain.PublicMessage(err))
	return err
}

// classifyTransportError maps a client.Do failure onto an outcome and a
// domain error.
func classifyTransportError(ctx context.Context, err error) (string, error) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return telemetry.OutcomeTimeout, fmt.Errorf("upstream request timed out: %w", errors.Join(domain.ErrUpstreamTimeout, err))
	}
	if errors.Is(err, context.Canceled) {
		return telemetry.OutcomeCanceled, fmt.Errorf("client canceled request: %w", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return telemetry.OutcomeTimeout, fmt.Errorf("upstream request timed out: %w", errors.Join(domain.ErrUpstreamTimeout, err))
	}
	return telemetry.OutcomeUnreachable, fmt.Errorf("upstream request failed: %w", errors.Join(domain.ErrUpstreamUnreachable, err))
}

func (f *Forwarder) requestLogger(ctx context.Context, rc *RequestContext) zerolog.Logger {
	base := f.logger
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		base = *l
	}
	return base.With().
		Str("route", rc.Route.Prefix).
		Str("method", rc.Method).
		Str("path", rc.Path).
		Logger()
}
