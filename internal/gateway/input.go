// Authgate - Forward-Authentication Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package gateway

import (
	"net/http"
	"net/netip"
	"net/url"
	"strings"

	"github.com/tomtom215/authgate/internal/logging"
	"github.com/tomtom215/authgate/internal/policy"
	"github.com/tomtom215/authgate/internal/trust"
)

// Forwarding convention headers set by the reverse proxy.
const (
	headerForwardedMethod = "X-Forwarded-Method"
	headerForwardedProto  = "X-Forwarded-Proto"
	headerForwardedHost   = "X-Forwarded-Host"
	headerForwardedURI    = "X-Forwarded-Uri"
	headerForwardedFor    = "X-Forwarded-For"
)

// forwardedRequest is the original client request reconstructed from the
// X-Forwarded-* headers.
type forwardedRequest struct {
	Method string
	Proto  string
	Host   string
	Path   string
	Query  url.Values
}

// URL returns the original request URL, used as the redirect target after
// login.
func (f *forwardedRequest) URL() string {
	u := url.URL{
		Scheme:   f.Proto,
		Host:     f.Host,
		Path:     f.Path,
		RawQuery: f.Query.Encode(),
	}

	return u.String()
}

// parseForwarded reconstructs the original request from the forwarding
// headers, falling back to the validate request itself when a header is
// absent (some proxies only set a subset).
func parseForwarded(r *http.Request) *forwardedRequest {
	f := &forwardedRequest{
		Method: r.Header.Get(headerForwardedMethod),
		Proto:  r.Header.Get(headerForwardedProto),
		Host:   r.Header.Get(headerForwardedHost),
		Query:  url.Values{},
	}

	if f.Method == "" {
		f.Method = r.Method
	}
	if f.Proto == "" {
		f.Proto = "https"
	}
	if f.Host == "" {
		f.Host = r.Host
	}

	if uri := r.Header.Get(headerForwardedURI); uri != "" {
		if parsed, err := url.ParseRequestURI(uri); err == nil {
			f.Path = parsed.Path
			f.Query = parsed.Query()
		} else {
			logging.Ctx(r.Context()).Warn().Str("uri", uri).Msg("invalid x-forwarded-uri header")
			f.Path = uri
		}
	}

	return f
}

// clientIP resolves the client address. X-Forwarded-For is only honored
// when the immediate peer is a trusted proxy; otherwise the peer address
// itself is used so untrusted peers cannot spoof client IPs.
func clientIP(r *http.Request, resolver *trust.Resolver) string {
	peer, err := netip.ParseAddrPort(r.RemoteAddr)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Str("remote_addr", r.RemoteAddr).Msg("unparsable peer address")
		return r.RemoteAddr
	}

	peerAddr := peer.Addr().Unmap()

	if resolver != nil && resolver.IsTrusted(peerAddr) {
		if fwd := r.Header.Get(headerForwardedFor); fwd != "" {
			first := strings.TrimSpace(strings.Split(fwd, ",")[0])
			if addr, err := netip.ParseAddr(first); err == nil {
				return addr.Unmap().String()
			}
			logging.Ctx(r.Context()).Warn().Str("header", fwd).Msg("invalid x-forwarded-for header")
		}
	}

	return peerAddr.String()
}

// buildInput assembles the policy input document for one validate request.
func buildInput(r *http.Request, f *forwardedRequest, resolver *trust.Resolver, subject *policy.SubjectInput) *policy.Input {
	return &policy.Input{
		Subject:  subject,
		Method:   f.Method,
		Path:     f.Path,
		Host:     f.Host,
		Headers:  r.Header,
		Query:    f.Query,
		ClientIP: clientIP(r, resolver),
	}
}
