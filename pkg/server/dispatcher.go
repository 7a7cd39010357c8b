package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/hlog"
	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/polis-relay/pkg/auth"
	"github.com/polisai/polis-relay/pkg/domain"
	"github.com/polisai/polis-relay/pkg/router"
	"github.com/polisai/polis-relay/pkg/telemetry"
)

// Dispatch rule names, used as metric labels and span attributes.
const (
	RuleLogin         = "login"
	RuleLoginRequired = "login_required"
	RuleDashboard     = "dashboard"
	RuleRobots        = "robots"
	RuleStatic        = "static"
	RuleForward       = "forward"
	RuleNotFound      = "not_found"
)

const (
	publicPrefix = "/public/"
	robotsBody   = "User-agent: *\nDisallow: /"

	msgInvalidPassword = "Invalid password."
	msgLoginFailed     = "An error occurred while logging in."

	maxLoginFormMemory = 32 << 10
)

// Forwarder relays an API request to its matched route.
type Forwarder interface {
	ServeRoute(w http.ResponseWriter, r *http.Request, route router.Route) error
}

// StaticServer serves a file below the public directory.
type StaticServer interface {
	ServeStatic(w http.ResponseWriter, r *http.Request, name string) error
}

// Renderer produces the HTML pages.
type Renderer interface {
	RenderLogin(w http.ResponseWriter, status int, errMsg string) error
	RenderDashboard(w http.ResponseWriter, routes *router.Table) error
}

// Options configures a Dispatcher.
type Options struct {
	Routes    *router.Table
	Secret    string
	Forwarder Forwarder
	Static    StaticServer
	Pages     Renderer
	Metrics   *Metrics
}

// Dispatcher selects the handler for each request from an ordered rule
// table. The first matching rule answers; the last rule always matches.
type Dispatcher struct {
	routes    *router.Table
	secret    string
	forwarder Forwarder
	static    StaticServer
	pages     Renderer
	metrics   *Metrics

	rules []rule
}

// dispatchRequest carries the per-request facts the rules match on. The
// route lookup happens once, before any rule runs.
type dispatchRequest struct {
	*http.Request
	path  string
	route router.Route
	isAPI bool
}

type rule struct {
	name   string
	match  func(*dispatchRequest) bool
	handle func(http.ResponseWriter, *dispatchRequest) error
}

// NewDispatcher builds a Dispatcher from opts.
func NewDispatcher(opts Options) *Dispatcher {
	d := &Dispatcher{
		routes:    opts.Routes,
		secret:    opts.Secret,
		forwarder: opts.Forwarder,
		static:    opts.Static,
		pages:     opts.Pages,
		metrics:   opts.Metrics,
	}

	// API prefixes bypass the login rules entirely; upstreams authenticate
	// with their own credentials.
	d.rules = []rule{
		{name: RuleLogin, match: d.isLoginSubmit, handle: d.handleLogin},
		{name: RuleLoginRequired, match: d.needsLogin, handle: d.handleLoginRequired},
		{name: RuleDashboard, match: isDashboardPath, handle: d.handleDashboard},
		{name: RuleRobots, match: isRobotsPath, handle: handleRobots},
		{name: RuleStatic, match: isPublicPath, handle: d.handleStatic},
		{name: RuleForward, match: isAPIRequest, handle: d.handleForward},
		{name: RuleNotFound, match: matchAll, handle: handleNotFound},
	}
	return d
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req := &dispatchRequest{Request: r, path: r.URL.Path}
	req.route, _, req.isAPI = d.routes.Match(req.path)

	for _, rl := range d.rules {
		if !rl.match(req) {
			continue
		}

		rw := &responseWriter{ResponseWriter: w}
		if err := rl.handle(rw, req); err != nil {
			hlog.FromRequest(r).Warn().
				Err(err).
				Str("rule", rl.name).
				Str("path", req.path).
				Msg("request handling failed")
			if rw.statusCode == 0 && r.Context().Err() == nil {
				writeError(rw, err)
			}
		}

		prefix := ""
		if req.isAPI {
			prefix = req.route.Prefix
		}
		d.metrics.RecordRequest(rl.name, prefix, rw.status(), time.Since(start))
		telemetry.RecordDispatchDecision(trace.SpanFromContext(r.Context()), rl.name, prefix)
		return
	}
}

func (d *Dispatcher) isLoginSubmit(r *dispatchRequest) bool {
	return !r.isAPI && r.Method == http.MethodPost && r.path == "/login"
}

func (d *Dispatcher) needsLogin(r *dispatchRequest) bool {
	return !r.isAPI && isDashboardPath(r) && d.secret != "" && !auth.IsAuthenticated(r.Request, d.secret)
}

func isDashboardPath(r *dispatchRequest) bool {
	return r.path == "/" || r.path == "/index.html"
}

func isRobotsPath(r *dispatchRequest) bool {
	return r.path == "/robots.txt"
}

func isPublicPath(r *dispatchRequest) bool {
	return strings.HasPrefix(r.path, publicPrefix)
}

func isAPIRequest(r *dispatchRequest) bool {
	return r.isAPI
}

func matchAll(*dispatchRequest) bool {
	return true
}

func (d *Dispatcher) handleLogin(w http.ResponseWriter, r *dispatchRequest) error {
	if d.secret == "" {
		d.metrics.RecordLogin("unconfigured")
		err := &domain.DomainError{
			Err:     domain.ErrAuthNotConfigured,
			Code:    "auth_not_configured",
			Message: "Authentication backend is misconfigured.",
		}
		writeError(w, err)
		return nil
	}

	// Accepts urlencoded and multipart bodies alike.
	if err := r.ParseMultipartForm(maxLoginFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		d.metrics.RecordLogin("malformed")
		hlog.FromRequest(r.Request).Warn().Err(err).Msg("parse login form")
		return d.pages.RenderLogin(w, http.StatusUnauthorized, msgLoginFailed)
	}

	if !auth.CheckPassword(r.PostFormValue("password"), d.secret) {
		d.metrics.RecordLogin("invalid")
		return d.pages.RenderLogin(w, http.StatusUnauthorized, msgInvalidPassword)
	}

	d.metrics.RecordLogin("success")
	http.SetCookie(w, auth.SessionCookie(d.secret))
	w.Header().Set("Location", "/")
	w.WriteHeader(http.StatusFound)
	return nil
}

func (d *Dispatcher) handleLoginRequired(w http.ResponseWriter, _ *dispatchRequest) error {
	return d.pages.RenderLogin(w, http.StatusUnauthorized, "")
}

func (d *Dispatcher) handleDashboard(w http.ResponseWriter, _ *dispatchRequest) error {
	return d.pages.RenderDashboard(w, d.routes)
}

func handleRobots(w http.ResponseWriter, _ *dispatchRequest) error {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, err := w.Write([]byte(robotsBody))
	return err
}

func (d *Dispatcher) handleStatic(w http.ResponseWriter, r *dispatchRequest) error {
	// Any ".." is refused outright, before the filesystem is consulted.
	if strings.Contains(r.path, "..") {
		writeError(w, domain.ErrPathTraversal)
		return nil
	}
	if d.static == nil {
		writeError(w, domain.ErrNotFound)
		return nil
	}
	return d.static.ServeStatic(w, r.Request, strings.TrimPrefix(r.path, publicPrefix))
}

func (d *Dispatcher) handleForward(w http.ResponseWriter, r *dispatchRequest) error {
	return d.forwarder.ServeRoute(w, r.Request, r.route)
}

func handleNotFound(w http.ResponseWriter, _ *dispatchRequest) error {
	writeError(w, domain.ErrNotFound)
	return nil
}

// writeError answers with the status and client-safe message for err.
func writeError(w http.ResponseWriter, err error) {
	writeText(w, domain.StatusCode(err), domain.PublicMessage(err))
}
