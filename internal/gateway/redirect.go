// Authgate - Forward-Authentication Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package gateway

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/authgate/internal/logging"
	"github.com/tomtom215/authgate/internal/metrics"
)

// ErrRedirectNotAllowed marks a redirect target whose domain is not on the
// allow list. The redirect is suppressed and a plain forbidden returned so
// the gateway cannot be used as an open redirector.
var ErrRedirectNotAllowed = errors.New("redirect target not allowed")

// validateRedirect checks a redirect target against the allowed-domain
// list. An entry matches the host exactly, or as a suffix when it starts
// with a dot (".example.com" matches every subdomain). An empty allow list
// permits any target.
func validateRedirect(target string, allowed []string) (string, error) {
	if target == "" {
		return "", nil
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRedirectNotAllowed, err)
	}

	if len(allowed) == 0 {
		return u.String(), nil
	}

	for _, domain := range allowed {
		if strings.HasPrefix(domain, ".") && strings.HasSuffix(u.Host, domain) {
			return u.String(), nil
		}
		if u.Host == domain {
			return u.String(), nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrRedirectNotAllowed, u.Host)
}

// redirectTarget picks the URL the client should come back to after the
// login or refresh flow. Browsers navigating to a page use the original
// request URL; XHR and fetch callers are sent back to their referrer (or
// origin) since the forwarded URI is an API endpoint, not a page.
func redirectTarget(r *http.Request, f *forwardedRequest) string {
	if acceptsHTML(r) {
		return f.URL()
	}

	if ref := r.Referer(); ref != "" {
		if _, err := url.Parse(ref); err == nil {
			return ref
		}
	}

	if origin := r.Header.Get("Origin"); origin != "" {
		if _, err := url.Parse(origin); err == nil {
			return origin
		}
	}

	return f.URL()
}

func acceptsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// respondRedirect sends the client into the login or refresh flow. The
// format URL receives the base64url-encoded target. Browsers get a 302;
// XHR callers get a 403 with a JSON body naming the location, since a raw
// redirect would be followed transparently by fetch and break the caller.
//
// A missing format URL or a disallowed target degrades to a plain 403.
func respondRedirect(w http.ResponseWriter, r *http.Request, kind, formatURL, target string, allowed []string) {
	if formatURL == "" {
		respondForbidden(w)
		return
	}

	validated, err := validateRedirect(target, allowed)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("target", target).Msg("redirect suppressed")
		respondForbidden(w)
		return
	}

	encoded := base64.URLEncoding.EncodeToString([]byte(validated))
	targetURL := fmt.Sprintf(formatURL, encoded)

	metrics.RedirectsTotal.WithLabelValues(kind).Inc()

	if acceptsHTML(r) {
		http.Redirect(w, r, targetURL, http.StatusFound)
		return
	}

	blob, _ := json.Marshal(map[string]any{
		"location": targetURL,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write(blob)
}

func respondForbidden(w http.ResponseWriter) {
	http.Error(w, "not allowed", http.StatusForbidden)
}
