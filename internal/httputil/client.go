// Package httputil holds the outbound HTTP client helpers used by the probe tools.
package httputil

import (
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Second

func NewClient(rt http.RoundTripper) *http.Client {
	return &http.Client{Transport: rt, Timeout: defaultTimeout}
}

// NewBasicAuthRoundTripper adds basic auth to every request when username is set.
func NewBasicAuthRoundTripper(username, password string, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &basicAuthRoundTripper{username: username, password: password, next: next}
}

type basicAuthRoundTripper struct {
	username string
	password string
	next     http.RoundTripper
}

func (rt *basicAuthRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if rt.username == "" {
		return rt.next.RoundTrip(req)
	}

	req = req.Clone(req.Context())
	req.SetBasicAuth(rt.username, rt.password)
	return rt.next.RoundTrip(req)
}
