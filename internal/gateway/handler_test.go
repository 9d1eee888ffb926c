// Authgate - Forward-Authentication Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/authgate/internal/config"
	"github.com/tomtom215/authgate/internal/store"
	"github.com/tomtom215/authgate/internal/token"
	"github.com/tomtom215/authgate/internal/trust"
)

const testPolicy = `package cisidm.forward_auth

import rego.v1

default allow := false

allow if {
	input.subject
}

allow if {
	input.path == "/public"
}

status_code := 451 if {
	input.path == "/explicit"
}

response_body := "denied" if {
	input.path == "/explicit"
}
`

// fakeValidator maps fixed token strings to validation outcomes.
type fakeValidator struct{}

func (fakeValidator) Validate(ctx context.Context, tokenString string) (*token.Claims, error) {
	switch tokenString {
	case "good":
		return token.NewClaims("user-1", "alice", token.KindPassword, "jti-1", time.Now().Add(time.Hour)), nil
	case "api":
		return token.NewClaims("user-1", "alice", token.KindAPI, "tok-1", time.Now().Add(time.Hour)), nil
	case "expired":
		return nil, token.ErrExpired
	default:
		return nil, token.ErrInvalid
	}
}

func testGatewayConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		Server: config.ServerConfig{
			Host:      "127.0.0.1",
			Port:      8080,
			Timeout:   5 * time.Second,
			PublicURL: "https://account.example.com",
		},
		ForwardAuth: config.ForwardAuthConfig{
			RegoQuery:          "data.cisidm.forward_auth",
			Default:            "deny",
			UserIDHeader:       "X-Remote-User-ID",
			UsernameHeader:     "X-Remote-User",
			MailHeader:         "X-Remote-Mail",
			RoleHeader:         "X-Remote-Role",
			AvatarHeader:       "X-Remote-Avatar-URL",
			DisplayNameHeader:  "X-Remote-User-Display-Name",
			PermissionHeader:   "X-Remote-Permission",
			LoginRedirectURL:   "https://account.example.com/login?redirect=%s",
			RefreshRedirectURL: "https://account.example.com/refresh?redirect=%s",
		},
		Policies: config.PoliciesConfig{
			Inline: map[string]string{"test.rego": testPolicy},
		},
		Session: config.SessionConfig{
			JWTSecret:         "0123456789abcdef0123456789abcdef",
			AccessTokenCookie: "cis_idm_access",
		},
		Permissions: []string{"roster", "roster:write:create", "roster:read"},
		Roles: []store.StaticRole{
			{ID: "admin", Name: "Administrator", Permissions: []string{"roster"}},
			{ID: "viewer", Name: "Viewer", Permissions: []string{"roster:read"}},
		},
		Users: []store.StaticUser{
			{ID: "user-1", Username: "alice", DisplayName: "Alice A.", Email: "alice@example.com", Roles: []string{"admin"}},
		},
		Tokens: []store.StaticToken{
			{ID: "tok-1", Roles: []string{"viewer"}},
		},
	}
}

func newTestHandler(t *testing.T, cfg *config.Config) *Handler {
	t.Helper()

	snap, err := BuildSnapshot(context.Background(), cfg)
	if err != nil {
		t.Fatalf("BuildSnapshot() error = %v", err)
	}

	resolver, err := trust.NewResolver([]string{"172.18.0.0/16"}, time.Minute)
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}

	return NewHandler(cfg, fakeValidator{}, resolver, snap)
}

func validateRequest(path, accessToken string) *http.Request {
	r := httptest.NewRequest("GET", "http://authgate.local/validate", nil)
	r.RemoteAddr = "172.18.0.2:41234"
	r.Header.Set("X-Forwarded-Method", "GET")
	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Forwarded-Host", "app.example.com")
	r.Header.Set("X-Forwarded-Uri", path)

	if accessToken != "" {
		r.Header.Set("Authorization", "Bearer "+accessToken)
	}

	return r
}

func TestValidateAllowedWithIdentityHeaders(t *testing.T) {
	h := newTestHandler(t, testGatewayConfig(t))

	w := httptest.NewRecorder()
	h.Validate(w, validateRequest("/private", "good"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	header := w.Header()
	if got := header.Get("X-Remote-User-ID"); got != "user-1" {
		t.Errorf("X-Remote-User-ID = %q", got)
	}
	if got := header.Get("X-Remote-User"); got != "alice" {
		t.Errorf("X-Remote-User = %q", got)
	}
	if got := header.Get("X-Remote-Mail"); got != "alice@example.com" {
		t.Errorf("X-Remote-Mail = %q", got)
	}
	if got := header.Get("X-Remote-User-Display-Name"); got != "Alice A." {
		t.Errorf("X-Remote-User-Display-Name = %q", got)
	}
	if got := header.Get("X-Remote-Avatar-URL"); got != "https://account.example.com/avatar/user-1" {
		t.Errorf("X-Remote-Avatar-URL = %q", got)
	}
	if got := header.Values("X-Remote-Role"); len(got) != 1 || got[0] != "admin" {
		t.Errorf("X-Remote-Role = %v", got)
	}

	perms := header.Values("X-Remote-Permission")
	joined := strings.Join(perms, ",")
	for _, want := range []string{"roster", "roster:write:create", "roster:read"} {
		if !strings.Contains(joined, want) {
			t.Errorf("X-Remote-Permission missing %q: %v", want, perms)
		}
	}
}

func TestValidateCookieToken(t *testing.T) {
	h := newTestHandler(t, testGatewayConfig(t))

	r := validateRequest("/private", "")
	r.AddCookie(&http.Cookie{Name: "cis_idm_access", Value: "good"})
	w := httptest.NewRecorder()
	h.Validate(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestValidateAPITokenRoles(t *testing.T) {
	h := newTestHandler(t, testGatewayConfig(t))

	w := httptest.NewRecorder()
	h.Validate(w, validateRequest("/private", "api"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	// API tokens carry the token's role subset, not the user's roles.
	if got := w.Header().Values("X-Remote-Role"); len(got) != 1 || got[0] != "viewer" {
		t.Errorf("X-Remote-Role = %v, want [viewer]", got)
	}
}

func TestValidateAnonymousPublicPath(t *testing.T) {
	h := newTestHandler(t, testGatewayConfig(t))

	w := httptest.NewRecorder()
	h.Validate(w, validateRequest("/public", ""))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("X-Remote-User-ID"); got != "" {
		t.Errorf("identity header set for anonymous request: %q", got)
	}
}

func TestValidateAnonymousLoginRedirect(t *testing.T) {
	h := newTestHandler(t, testGatewayConfig(t))

	r := validateRequest("/private", "")
	r.Header.Set("Accept", "text/html")
	w := httptest.NewRecorder()
	h.Validate(w, r)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}

	location := w.Header().Get("Location")
	if !strings.HasPrefix(location, "https://account.example.com/login?redirect=") {
		t.Errorf("Location = %q", location)
	}
}

func TestValidateExpiredTokenRefreshRedirect(t *testing.T) {
	h := newTestHandler(t, testGatewayConfig(t))

	r := validateRequest("/private", "expired")
	r.Header.Set("Accept", "text/html")
	w := httptest.NewRecorder()
	h.Validate(w, r)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if location := w.Header().Get("Location"); !strings.HasPrefix(location, "https://account.example.com/refresh?redirect=") {
		t.Errorf("Location = %q", location)
	}
}

func TestValidateInvalidTokenTreatedAsAnonymous(t *testing.T) {
	h := newTestHandler(t, testGatewayConfig(t))

	r := validateRequest("/private", "garbage")
	r.Header.Set("Accept", "text/html")
	w := httptest.NewRecorder()
	h.Validate(w, r)

	// Invalid (not expired) tokens go to login, not refresh.
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if location := w.Header().Get("Location"); !strings.HasPrefix(location, "https://account.example.com/login?redirect=") {
		t.Errorf("Location = %q", location)
	}
}

func TestValidateExplicitDenial(t *testing.T) {
	h := newTestHandler(t, testGatewayConfig(t))

	w := httptest.NewRecorder()
	h.Validate(w, validateRequest("/explicit", ""))

	if w.Code != 451 {
		t.Fatalf("status = %d, want 451", w.Code)
	}
	if body := w.Body.String(); body != "denied" {
		t.Errorf("body = %q, want %q", body, "denied")
	}
}

func TestValidateAuthenticatedDenialIsForbidden(t *testing.T) {
	cfg := testGatewayConfig(t)
	cfg.Policies.Inline = map[string]string{"deny.rego": `package cisidm.forward_auth

import rego.v1

default allow := false
`}

	h := newTestHandler(t, cfg)

	r := validateRequest("/private", "good")
	r.Header.Set("Accept", "text/html")
	w := httptest.NewRecorder()
	h.Validate(w, r)

	// Authenticated but denied: no redirect, plain forbidden.
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestValidateDisabledIdentityHeader(t *testing.T) {
	cfg := testGatewayConfig(t)
	cfg.ForwardAuth.RoleHeader = ""
	cfg.ForwardAuth.PermissionHeader = ""

	h := newTestHandler(t, cfg)

	w := httptest.NewRecorder()
	h.Validate(w, validateRequest("/private", "good"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Values("X-Remote-Role"); len(got) != 0 {
		t.Errorf("X-Remote-Role = %v, want unset", got)
	}
	if got := w.Header().Values("X-Remote-Permission"); len(got) != 0 {
		t.Errorf("X-Remote-Permission = %v, want unset", got)
	}
}

func TestValidateRedirectDomainNotAllowed(t *testing.T) {
	cfg := testGatewayConfig(t)
	cfg.ForwardAuth.AllowedRedirects = []string{"other.example.com"}

	h := newTestHandler(t, cfg)

	r := validateRequest("/private", "")
	r.Header.Set("Accept", "text/html")
	w := httptest.NewRecorder()
	h.Validate(w, r)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 when redirect target is not allowed", w.Code)
	}
}

func TestHandlerSwap(t *testing.T) {
	h := newTestHandler(t, testGatewayConfig(t))

	w := httptest.NewRecorder()
	h.Validate(w, validateRequest("/public", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("status before swap = %d, want 200", w.Code)
	}

	cfg := testGatewayConfig(t)
	cfg.Policies.Inline = map[string]string{"deny.rego": `package cisidm.forward_auth

import rego.v1

default allow := false
`}

	snap, err := BuildSnapshot(context.Background(), cfg)
	if err != nil {
		t.Fatalf("BuildSnapshot() error = %v", err)
	}
	h.Swap(snap)

	w = httptest.NewRecorder()
	h.Validate(w, validateRequest("/public", ""))
	if w.Code != http.StatusForbidden {
		t.Fatalf("status after swap = %d, want 403", w.Code)
	}
}
