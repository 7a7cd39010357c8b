// Package proxy relays API requests to their upstream origin.
//
// The Forwarder is a pure pass-through: the inbound method, headers and
// body are sent upstream unchanged apart from hop-by-hop headers and Host,
// and the upstream status, headers and body are streamed back with a
// permissive CORS origin added. There are no retries, no caching and no
// body limits beyond what the transport imposes.
package proxy
