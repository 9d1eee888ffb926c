// Authgate - Forward-Authentication Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

// Package metrics provides Prometheus metrics for Authgate.
//
// Metrics Categories:
//   - HTTP: request counts, latency histograms, in-flight gauge
//   - Forward-auth decisions: allow/deny counts, evaluation latency,
//     evaluation errors, redirect outcomes
//   - Trusted networks: hostname resolution refreshes
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics

	// HTTPRequestsTotal counts HTTP requests by method, path and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authgate_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"method", "path"},
	)

	// HTTPActiveRequests tracks the number of in-flight requests.
	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authgate_http_active_requests",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Forward-Auth Decision Metrics

	// DecisionsTotal counts forward-auth decisions by outcome.
	// outcome: "allow", "deny"; reason: "policy", "preflight", "error"
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_decisions_total",
			Help: "Total number of forward-auth decisions",
		},
		[]string{"outcome", "reason"},
	)

	// EvaluationDuration tracks policy evaluation latency.
	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "authgate_policy_evaluation_duration_seconds",
			Help:    "Duration of rego policy evaluations in seconds",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	// EvaluationErrorsTotal counts runtime policy evaluation failures.
	// These force a deny and should be alerted on.
	EvaluationErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authgate_policy_evaluation_errors_total",
			Help: "Total number of runtime policy evaluation errors (fail-closed denials)",
		},
	)

	// RedirectsTotal counts login/refresh redirect responses.
	// kind: "login", "refresh"
	RedirectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_redirects_total",
			Help: "Total number of login/refresh redirect responses",
		},
		[]string{"kind"},
	)

	// Trusted Network Metrics

	// TrustRefreshesTotal counts trusted-hostname resolution refreshes.
	TrustRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_trust_refreshes_total",
			Help: "Total number of trusted-hostname resolution refreshes",
		},
		[]string{"result"}, // "ok", "error"
	)

	// TrustedAddresses tracks the current number of resolved trusted addresses.
	TrustedAddresses = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authgate_trusted_addresses",
			Help: "Current number of resolved trusted peer addresses",
		},
	)
)

// RecordHTTPRequest records a completed HTTP request.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(start bool) {
	if start {
		HTTPActiveRequests.Inc()
	} else {
		HTTPActiveRequests.Dec()
	}
}

// RecordDecision records a forward-auth decision outcome.
func RecordDecision(allowed bool, reason string) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	DecisionsTotal.WithLabelValues(outcome, reason).Inc()
}
