// Authgate - Forward-Authentication Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package policy

import (
	"net/http"
	"net/url"
)

// Input is the fact document handed to rego policies for a single
// forward-auth request. It is built fresh per request and never persisted.
type Input struct {
	// Subject holds the authenticated user performing the request, if any.
	// For unauthenticated requests the key is omitted entirely so policies
	// can detect anonymous traffic with `not input.subject`.
	Subject *SubjectInput `json:"subject,omitempty"`

	// Method is the HTTP method of the original request.
	Method string `json:"method"`

	// Path is the path of the original request.
	Path string `json:"path"`

	// Host is the hostname the original request was sent to.
	Host string `json:"host"`

	// Headers holds all original request headers.
	Headers http.Header `json:"headers"`

	// Query holds the parsed query parameters of the original request.
	Query url.Values `json:"query"`

	// ClientIP is the resolved client address in string form. X-Forwarded-For
	// is only honored when the immediate peer is a trusted proxy.
	ClientIP string `json:"client_ip"`
}

// Verdict is the outcome of evaluating the decision query for one Input.
type Verdict struct {
	// Allow reports whether the request may be proxied upstream.
	Allow bool `json:"allow" mapstructure:"allow"`

	// StatusCode may be set by the policy to pick the exact status returned
	// to the client on denial. Zero means the gateway chooses (login
	// redirect, refresh redirect or plain forbidden).
	StatusCode int `json:"status_code" mapstructure:"status_code"`

	// Headers holds additional response headers. On allow they are handed to
	// the reverse proxy which may forward them upstream; on deny they go
	// directly to the client.
	Headers map[string][]string `json:"headers" mapstructure:"headers"`

	// ResponseBody is returned verbatim to the client on an explicit,
	// policy-authored denial. Denials never leak internal error detail.
	ResponseBody string `json:"response_body" mapstructure:"response_body"`
}
