// Package server implements the relay's HTTP surface.
//
// Every inbound request passes through the same chain: access logging,
// panic recovery, CORS preflight, then the Dispatcher. The Dispatcher is an
// ordered table of rules evaluated top to bottom with the first match
// answering the request. Rule order is the authentication boundary: API
// prefixes are forwarded without consulting the session cookie (upstreams
// authenticate with their own credentials), while the dashboard is gated
// by the shared-secret session.
package server
