// Authgate - Forward-Authentication Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

// Package gateway implements the forward-auth decision endpoint.
//
// A reverse proxy sends every protected request to GET /validate with the
// original method, host, URI and client address carried in X-Forwarded-*
// headers. The gateway validates the access token, builds the policy input
// document and answers with a bare status: 2xx tells the proxy to forward
// the request upstream, anything else is returned to the client directly.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tomtom215/authgate/internal/config"
	"github.com/tomtom215/authgate/internal/logging"
	"github.com/tomtom215/authgate/internal/policy"
	"github.com/tomtom215/authgate/internal/token"
	"github.com/tomtom215/authgate/internal/trust"
)

// defaultValidateTimeout bounds token validation per request.
const defaultValidateTimeout = 5 * time.Second

// TokenValidator validates an access token and returns its claims.
// Satisfied by *token.Validator.
type TokenValidator interface {
	Validate(ctx context.Context, tokenString string) (*token.Claims, error)
}

// Handler answers forward-auth callbacks. The reloadable decision state
// lives in an atomically swapped Snapshot; everything else is fixed at
// startup.
type Handler struct {
	cfg             config.ForwardAuthConfig
	publicURL       string
	accessCookie    string
	validator       TokenValidator
	trust           *trust.Resolver
	validateTimeout time.Duration

	snapshot atomic.Pointer[Snapshot]
}

// NewHandler creates the forward-auth handler with its initial snapshot.
func NewHandler(cfg *config.Config, validator TokenValidator, resolver *trust.Resolver, snap *Snapshot) *Handler {
	timeout := cfg.Server.Timeout
	if timeout <= 0 {
		timeout = defaultValidateTimeout
	}

	h := &Handler{
		cfg:             cfg.ForwardAuth,
		publicURL:       strings.TrimSuffix(cfg.Server.PublicURL, "/"),
		accessCookie:    cfg.Session.AccessTokenCookie,
		validator:       validator,
		trust:           resolver,
		validateTimeout: timeout,
	}
	h.snapshot.Store(snap)

	return h
}

// Swap publishes a new snapshot. In-flight requests keep the one they
// loaded at entry.
func (h *Handler) Swap(snap *Snapshot) {
	h.snapshot.Store(snap)
}

// Validate handles one forward-auth callback.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap := h.snapshot.Load()
	fwd := parseForwarded(r)

	l := logging.Ctx(ctx).With().
		Str("method", fwd.Method).
		Str("host", fwd.Host).
		Str("path", fwd.Path).
		Logger()

	var (
		subject *policy.SubjectInput
		expired bool
	)

	if tokenStr := h.extractToken(r); tokenStr != "" {
		vctx, cancel := context.WithTimeout(ctx, h.validateTimeout)
		claims, err := h.validator.Validate(vctx, tokenStr)
		cancel()

		switch {
		case err == nil:
			subject, err = policy.NewSubjectInput(ctx, snap.Directory, snap.Tree, snap.Schema,
				claims.Subject, claims.Kind, claims.ID)
			if err != nil {
				l.Warn().Err(err).Msg("failed to resolve subject, treating request as unauthenticated")
				subject = nil
			}
		case errors.Is(err, token.ErrExpired):
			expired = true
			l.Debug().Msg("access token expired")
		default:
			l.Debug().Err(err).Msg("invalid access token")
		}
	}

	input := buildInput(r, fwd, h.trust, subject)

	verdict, err := snap.Engine.Evaluate(ctx, input)
	if err != nil {
		// Fail closed, always.
		l.Error().Err(err).Msg("policy evaluation failed, denying request")
		respondForbidden(w)
		return
	}

	l.Debug().Bool("allow", verdict.Allow).Int("status_code", verdict.StatusCode).Msg("request evaluated")

	h.respond(w, r, fwd, subject, expired, verdict)
}

// extractToken returns the access token from the Authorization header or,
// failing that, the configured access-token cookie.
func (h *Handler) extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if tokenStr := strings.TrimSpace(parts[1]); tokenStr != "" {
				return tokenStr
			}
		}
	}

	if h.accessCookie != "" {
		if cookie, err := r.Cookie(h.accessCookie); err == nil && cookie.Value != "" {
			return cookie.Value
		}
	}

	return ""
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, fwd *forwardedRequest, subject *policy.SubjectInput, expired bool, verdict *policy.Verdict) {
	// Verdict headers reach the proxy on allow and the client on deny.
	for name, values := range verdict.Headers {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}

	if verdict.Allow {
		if subject != nil {
			h.setIdentityHeaders(w.Header(), subject)
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	if verdict.StatusCode != 0 {
		w.WriteHeader(verdict.StatusCode)
		if verdict.ResponseBody != "" {
			_, _ = w.Write([]byte(verdict.ResponseBody))
		}
		return
	}

	target := redirectTarget(r, fwd)

	switch {
	case expired:
		respondRedirect(w, r, "refresh", h.cfg.RefreshRedirectURL, target, h.cfg.AllowedRedirects)
	case subject == nil:
		respondRedirect(w, r, "login", h.cfg.LoginRedirectURL, target, h.cfg.AllowedRedirects)
	default:
		respondForbidden(w)
	}
}

// setIdentityHeaders injects the subject's claims as the configured
// outbound headers. An empty header name disables that header.
func (h *Handler) setIdentityHeaders(header http.Header, subject *policy.SubjectInput) {
	set := func(name, value string) {
		if name != "" && value != "" {
			header.Set(name, value)
		}
	}

	set(h.cfg.UserIDHeader, subject.ID)
	set(h.cfg.UsernameHeader, subject.Username)
	set(h.cfg.MailHeader, subject.Email)
	set(h.cfg.DisplayNameHeader, subject.DisplayName)

	if h.publicURL != "" {
		set(h.cfg.AvatarHeader, fmt.Sprintf("%s/avatar/%s", h.publicURL, subject.ID))
	}

	if h.cfg.RoleHeader != "" {
		for _, role := range subject.Roles {
			header.Add(h.cfg.RoleHeader, role.ID)
		}
	}

	if h.cfg.PermissionHeader != "" {
		for _, perm := range subject.Permissions {
			header.Add(h.cfg.PermissionHeader, perm)
		}
	}
}
