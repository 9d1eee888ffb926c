// Authgate - Forward-Authentication Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

// Package config loads and validates the Authgate configuration.
//
// Configuration is layered: struct defaults, then an optional YAML file,
// then environment variables (highest priority). Validation failures are
// fatal at startup; a misconfigured authorization gateway must not serve
// traffic.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/authgate/internal/store"
)

// Config is the root configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	ForwardAuth ForwardAuthConfig `koanf:"forward_auth"`
	Policies    PoliciesConfig    `koanf:"policies"`
	Trust       TrustConfig       `koanf:"trust"`
	Session     SessionConfig     `koanf:"session"`
	Logging     LoggingConfig     `koanf:"logging"`

	// Permissions is the flat list of declared permission strings from
	// which the permission tree is built.
	Permissions []string `koanf:"permissions"`

	// Roles, Users, Tokens and Fields bootstrap the static identity store.
	// Deployments with an external identity store leave them empty.
	Roles  []store.StaticRole  `koanf:"roles"`
	Users  []store.StaticUser  `koanf:"users"`
	Tokens []store.StaticToken `koanf:"tokens"`
	Fields []store.StaticField `koanf:"fields"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// PublicURL is the externally reachable base URL of the identity
	// provider, used to build avatar URLs for the outbound headers.
	PublicURL string `koanf:"public_url"`
}

// Addr returns the listen address in host:port form.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ForwardAuthConfig configures the /validate decision endpoint.
type ForwardAuthConfig struct {
	// RegoQuery is the decision document evaluated per request.
	RegoQuery string `koanf:"rego_query"`

	// Default is the outcome when no rule sets allow: "deny" or "allow".
	Default string `koanf:"default"`

	// AllowCORSPreflight allows OPTIONS requests carrying an Origin header
	// without consulting any policy.
	AllowCORSPreflight bool `koanf:"allow_cors_preflight"`

	// Outbound identity header names, injected on allow. An empty name
	// disables the header.
	UserIDHeader      string `koanf:"user_id_header"`
	UsernameHeader    string `koanf:"username_header"`
	MailHeader        string `koanf:"mail_header"`
	RoleHeader        string `koanf:"role_header"`
	AvatarHeader      string `koanf:"avatar_header"`
	DisplayNameHeader string `koanf:"display_name_header"`
	PermissionHeader  string `koanf:"permission_header"`

	// LoginRedirectURL and RefreshRedirectURL are fmt format strings with a
	// single %s verb receiving the base64url-encoded original URL.
	LoginRedirectURL   string `koanf:"login_redirect_url"`
	RefreshRedirectURL string `koanf:"refresh_redirect_url"`

	// AllowedRedirects lists domains redirect targets may point at. An
	// entry matches exactly, or as a suffix when it starts with a dot.
	AllowedRedirects []string `koanf:"allowed_redirects"`
}

// PoliciesConfig configures policy loading.
type PoliciesConfig struct {
	// Directories are scanned recursively for .rego files.
	Directories []string `koanf:"directories"`

	// Inline maps module names to rego source embedded in the config file.
	Inline map[string]string `koanf:"inline"`

	// Debug enables per-evaluation rego tracing.
	Debug bool `koanf:"debug"`
}

// TrustConfig configures trusted reverse-proxy detection.
type TrustConfig struct {
	// TrustedNetworks lists CIDR ranges, IPs and hostnames of peers whose
	// X-Forwarded-For headers are honored.
	TrustedNetworks []string `koanf:"trusted_networks"`

	// RefreshInterval is how often hostname entries are re-resolved.
	RefreshInterval time.Duration `koanf:"refresh_interval"`
}

// SessionConfig configures access-token validation.
type SessionConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
	Audience  string `koanf:"audience"`

	// AccessTokenCookie is the cookie consulted when no Authorization
	// header is present.
	AccessTokenCookie string `koanf:"access_token_cookie"`

	// RevocationStorePath enables the on-disk revoked-token store when
	// non-empty.
	RevocationStorePath string `koanf:"revocation_store_path"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the configuration defaults, applied before the
// config file and environment layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		ForwardAuth: ForwardAuthConfig{
			RegoQuery:          "data.cisidm.forward_auth",
			Default:            "deny",
			AllowCORSPreflight: false,
			UserIDHeader:       "X-Remote-User-ID",
			UsernameHeader:     "X-Remote-User",
			MailHeader:         "X-Remote-Mail",
			RoleHeader:         "X-Remote-Role",
			AvatarHeader:       "X-Remote-Avatar-URL",
			DisplayNameHeader:  "X-Remote-User-Display-Name",
			PermissionHeader:   "X-Remote-Permission",
		},
		Trust: TrustConfig{
			RefreshInterval: time.Minute,
		},
		Session: SessionConfig{
			AccessTokenCookie: "cis_idm_access",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for fatal mistakes.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}

	if c.Session.JWTSecret == "" {
		return fmt.Errorf("session.jwt_secret is required")
	}
	if len(c.Session.JWTSecret) < 32 {
		return fmt.Errorf("session.jwt_secret must be at least 32 characters")
	}

	switch c.ForwardAuth.Default {
	case "deny", "allow":
	default:
		return fmt.Errorf("forward_auth.default must be %q or %q, got %q", "deny", "allow", c.ForwardAuth.Default)
	}

	for name, u := range map[string]string{
		"forward_auth.login_redirect_url":   c.ForwardAuth.LoginRedirectURL,
		"forward_auth.refresh_redirect_url": c.ForwardAuth.RefreshRedirectURL,
	} {
		if u != "" && !strings.Contains(u, "%s") {
			return fmt.Errorf("%s must contain a %%s placeholder for the encoded redirect target", name)
		}
	}

	for _, domain := range c.ForwardAuth.AllowedRedirects {
		if domain == "" {
			return fmt.Errorf("forward_auth.allowed_redirects contains an empty entry")
		}
	}

	for _, perm := range c.Permissions {
		if perm == "" {
			return fmt.Errorf("permissions contains an empty entry")
		}
	}

	return nil
}
