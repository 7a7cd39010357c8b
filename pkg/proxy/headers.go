package proxy

import (
	"net/http"
	"strings"
)

// Per RFC 7230, these headers are hop-by-hop and must not be forwarded.
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

// isHopByHopHeader identifies HTTP hop-by-hop headers that should not be forwarded.
func isHopByHopHeader(header string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(h, header) {
			return true
		}
	}
	return false
}

// connectionTokens returns the header names listed in Connection, which are
// hop-by-hop for this message only.
func connectionTokens(h http.Header) map[string]struct{} {
	tokens := map[string]struct{}{}
	for _, value := range h.Values("Connection") {
		for _, token := range strings.Split(value, ",") {
			if token = strings.TrimSpace(token); token != "" {
				tokens[http.CanonicalHeaderKey(token)] = struct{}{}
			}
		}
	}
	return tokens
}

// copyHeaders copies src into dst, filtering hop-by-hop headers.
func copyHeaders(dst, src http.Header) {
	extra := connectionTokens(src)
	for key, values := range src {
		if isHopByHopHeader(key) {
			continue
		}
		if _, drop := extra[http.CanonicalHeaderKey(key)]; drop {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// replaceHeaders is copyHeaders for the response direction: every header
// the upstream sends replaces what middleware already set under that name.
func replaceHeaders(dst, src http.Header) {
	for key := range src {
		dst.Del(key)
	}
	copyHeaders(dst, src)
}

// outboundHeaders builds the header set sent upstream.
func outboundHeaders(in http.Header) http.Header {
	out := make(http.Header, len(in))
	copyHeaders(out, in)

	// Suppress the Go default User-Agent when the client did not send one.
	if _, ok := out["User-Agent"]; !ok {
		out.Set("User-Agent", "")
	}
	// Content-Length travels on the request struct.
	out.Del("Content-Length")
	out.Del("Host")
	return out
}

// cloneHeaders returns a deep copy of the header map.
func cloneHeaders(src http.Header) http.Header {
	if src == nil {
		return http.Header{}
	}
	return src.Clone()
}
