// Package domain defines the error taxonomy shared by the relay packages.
//
// This package has ZERO dependencies outside the Go standard library. The
// HTTP-facing packages (auth, router, proxy, server) classify failures
// against the sentinels declared here with errors.Is and map them onto
// status codes in one place, so no handler needs to know another
// handler's failure modes.
package domain
