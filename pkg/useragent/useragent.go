// Package useragent identifies smartlists to the services it calls.
//
// Spotify asks API clients to send a descriptive User-Agent. This package
// builds that string from the build version and provides an http.RoundTripper
// that stamps it on every outgoing request.
package useragent

import (
	"fmt"
	"net/http"
	"runtime"

	log "github.com/sirupsen/logrus"
)

// Homepage is included in the user agent so API operators can reach us.
const Homepage = "https://github.com/toozej/smartlists"

// String returns the user agent for the given application version.
//
// Example:
//
//	ua := useragent.String("v1.2.0")
//	// Returns: "smartlists/v1.2.0 (linux; +https://github.com/toozej/smartlists)"
func String(version string) string {
	if version == "" {
		version = "dev"
	}
	return fmt.Sprintf("smartlists/%s (%s; +%s)", version, runtime.GOOS, Homepage)
}

// Transport sets the User-Agent header and delegates to Base.
type Transport struct {
	// Base is the underlying transport. nil uses http.DefaultTransport.
	Base      http.RoundTripper
	UserAgent string
}

// NewTransport wraps base with the smartlists user agent for version.
func NewTransport(base http.RoundTripper, version string) *Transport {
	ua := String(version)
	log.WithField("user_agent", ua).Debug("Using user agent for outbound requests")
	return &Transport{Base: base, UserAgent: ua}
}

// RoundTrip implements http.RoundTripper. The caller's request is not modified.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.UserAgent == "" {
		return base.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.UserAgent)
	return base.RoundTrip(clone)
}

// Client returns an http.Client using a Transport for version.
func Client(version string) *http.Client {
	return &http.Client{Transport: NewTransport(nil, version)}
}
