// Package telemetry wires OpenTelemetry exporters and meters for the relay.
//
// It centralises trace provider setup, records upstream call metrics, and
// offers enrichment helpers that attach dispatch decisions to spans so
// operators can correlate a request's routing outcome with upstream
// behaviour. Request bodies, cookies and credentials are never recorded.
package telemetry
