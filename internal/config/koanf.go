// Authgate - Forward-Authentication Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/authgate/config.yaml",
	"/etc/authgate/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load reads the configuration from defaults, the config file and the
// environment, then validates it.
func Load() (*Config, error) {
	return loadFrom(findConfigFile())
}

// LoadFile reads the configuration with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	return loadFrom(path)
}

func loadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths lists config paths that accept comma-separated strings
// from the environment.
var sliceConfigPaths = []string{
	"permissions",
	"policies.directories",
	"trust.trusted_networks",
	"forward_auth.allowed_redirects",
}

// processSliceFields converts comma-separated env values into slices. YAML
// values arrive as slices already and are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}

		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}

	return nil
}

// envMappings maps environment variable names (lowercased) to config paths.
// Unknown variables are ignored so unrelated environment noise cannot
// corrupt nested config sections.
var envMappings = map[string]string{
	"http_host":         "server.host",
	"http_port":         "server.port",
	"http_timeout":      "server.timeout",
	"shutdown_timeout":  "server.shutdown_timeout",
	"public_url":        "server.public_url",

	"rego_query":           "forward_auth.rego_query",
	"default_outcome":      "forward_auth.default",
	"allow_cors_preflight": "forward_auth.allow_cors_preflight",
	"login_redirect_url":   "forward_auth.login_redirect_url",
	"refresh_redirect_url": "forward_auth.refresh_redirect_url",
	"allowed_redirects":    "forward_auth.allowed_redirects",

	"user_id_header":      "forward_auth.user_id_header",
	"username_header":     "forward_auth.username_header",
	"mail_header":         "forward_auth.mail_header",
	"role_header":         "forward_auth.role_header",
	"avatar_header":       "forward_auth.avatar_header",
	"display_name_header": "forward_auth.display_name_header",
	"permission_header":   "forward_auth.permission_header",

	"policy_directories": "policies.directories",
	"policy_debug":       "policies.debug",

	"trusted_networks":       "trust.trusted_networks",
	"trust_refresh_interval": "trust.refresh_interval",

	"jwt_secret":            "session.jwt_secret",
	"jwt_audience":          "session.audience",
	"access_token_cookie":   "session.access_token_cookie",
	"revocation_store_path": "session.revocation_store_path",

	"permissions": "permissions",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps environment variable names to koanf paths.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}

	// Unknown variables are dropped.
	return ""
}
