// Package router maps inbound request paths onto upstream API origins.
//
// A Table is an ordered list of prefix routes built once at startup. Lookups
// walk the table in order and the first prefix that matches wins, so the
// result is deterministic even when one configured prefix shadows another.
package router

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/polisai/polis-relay/pkg/domain"
)

// Route binds a path prefix to an upstream origin (scheme and host only).
type Route struct {
	Prefix   string
	Upstream *url.URL
}

// Definition is the unparsed form of a Route as it appears in configuration.
type Definition struct {
	Prefix   string `yaml:"prefix"`
	Upstream string `yaml:"upstream"`
}

// DefaultDefinitions is the compiled-in route table used when configuration
// does not supply one.
func DefaultDefinitions() []Definition {
	return []Definition{
		{Prefix: "/xai", Upstream: "https://api.x.ai"},
		{Prefix: "/openai", Upstream: "https://api.openai.com"},
		{Prefix: "/gemini", Upstream: "https://generativelanguage.googleapis.com"},
		{Prefix: "/perplexity", Upstream: "https://api.perplexity.ai"},
	}
}

// Table is an immutable, ordered route table. The zero value matches nothing.
type Table struct {
	routes []Route
}

// NewTable validates defs and builds a Table preserving their order.
func NewTable(defs []Definition) (*Table, error) {
	seen := make(map[string]struct{}, len(defs))
	routes := make([]Route, 0, len(defs))

	for i, def := range defs {
		route, err := parseDefinition(def)
		if err != nil {
			return nil, fmt.Errorf("route [%d]: %w", i, err)
		}
		if _, dup := seen[route.Prefix]; dup {
			return nil, fmt.Errorf("route [%d]: duplicate prefix %q: %w", i, route.Prefix, domain.ErrConfigInvalid)
		}
		seen[route.Prefix] = struct{}{}
		routes = append(routes, route)
	}

	return &Table{routes: routes}, nil
}

// MustNewTable is NewTable for tables known to be valid at compile time.
func MustNewTable(defs []Definition) *Table {
	t, err := NewTable(defs)
	if err != nil {
		panic(err)
	}
	return t
}

func parseDefinition(def Definition) (Route, error) {
	prefix := strings.TrimSpace(def.Prefix)
	if !strings.HasPrefix(prefix, "/") || len(prefix) < 2 {
		return Route{}, fmt.Errorf("prefix %q must start with '/' and name a segment: %w", def.Prefix, domain.ErrConfigInvalid)
	}
	if strings.HasSuffix(prefix, "/") {
		return Route{}, fmt.Errorf("prefix %q must not end with '/': %w", def.Prefix, domain.ErrConfigInvalid)
	}

	upstream, err := url.Parse(strings.TrimSpace(def.Upstream))
	if err != nil {
		return Route{}, fmt.Errorf("upstream %q: %w", def.Upstream, errors.Join(domain.ErrConfigInvalid, err))
	}
	if upstream.Scheme != "http" && upstream.Scheme != "https" {
		return Route{}, fmt.Errorf("upstream %q must use http or https: %w", def.Upstream, domain.ErrConfigInvalid)
	}
	if upstream.Host == "" {
		return Route{}, fmt.Errorf("upstream %q has no host: %w", def.Upstream, domain.ErrConfigInvalid)
	}
	if (upstream.Path != "" && upstream.Path != "/") || upstream.RawQuery != "" || upstream.Fragment != "" || upstream.User != nil {
		return Route{}, fmt.Errorf("upstream %q must be an origin (scheme and host only): %w", def.Upstream, domain.ErrConfigInvalid)
	}

	return Route{
		Prefix:   prefix,
		Upstream: &url.URL{Scheme: upstream.Scheme, Host: upstream.Host},
	}, nil
}

// Match returns the first route whose prefix starts path, together with the
// remainder of path after the prefix. The remainder may be empty.
func (t *Table) Match(path string) (Route, string, bool) {
	if t == nil {
		return Route{}, "", false
	}
	for _, route := range t.routes {
		if strings.HasPrefix(path, route.Prefix) {
			return route, path[len(route.Prefix):], true
		}
	}
	return Route{}, "", false
}

// IsAPIPath reports whether path is served by an upstream route.
func (t *Table) IsAPIPath(path string) bool {
	_, _, ok := t.Match(path)
	return ok
}

// Len returns the number of routes.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.routes)
}

// Routes returns a copy of the routes sorted by prefix, for display.
func (t *Table) Routes() []Route {
	if t == nil {
		return nil
	}
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	sort.Slice(out, func(i, j int) bool { return out[i].Prefix < out[j].Prefix })
	return out
}

// BuildUpstreamURL joins the route's origin with remainder and the inbound
// raw query. Neither is normalised: "..", doubled slashes and encodings are
// passed through exactly as received.
func BuildUpstreamURL(route Route, remainder, rawQuery string) *url.URL {
	return &url.URL{
		Scheme:   route.Upstream.Scheme,
		Host:     route.Upstream.Host,
		Path:     remainder,
		RawQuery: rawQuery,
	}
}

// UpstreamURLFor resolves the upstream URL for an inbound URL, keeping the
// inbound percent-encoding of the remainder when the client sent one.
func UpstreamURLFor(route Route, inbound *url.URL) *url.URL {
	remainder := strings.TrimPrefix(inbound.Path, route.Prefix)
	u := BuildUpstreamURL(route, remainder, inbound.RawQuery)

	if inbound.RawPath != "" {
		if raw, ok := strings.CutPrefix(inbound.EscapedPath(), route.Prefix); ok {
			u.RawPath = raw
		}
	}
	return u
}
