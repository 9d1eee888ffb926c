// Authgate - Forward-Authentication Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

// Package trust decides which network peers may speak for the client.
//
// The forward-auth gateway only honors X-Forwarded-For when the immediate
// peer (the reverse proxy) is listed as trusted. Entries are CIDR ranges,
// plain IPs, or hostnames; hostname entries are re-resolved periodically so
// proxies with dynamic container addresses stay trusted.
package trust

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/tomtom215/authgate/internal/logging"
	"github.com/tomtom215/authgate/internal/metrics"
)

// DefaultRefreshInterval is how often hostname entries are re-resolved when
// no interval is configured.
const DefaultRefreshInterval = time.Minute

// LookupFunc resolves a hostname to IP addresses. The default uses
// net.DefaultResolver; tests inject their own.
type LookupFunc func(ctx context.Context, host string) ([]netip.Addr, error)

// Resolver answers whether a peer address is trusted. Static CIDR entries
// are immutable; hostname resolutions are published via atomic snapshot
// swap so the request path never blocks on DNS.
type Resolver struct {
	prefixes  []netip.Prefix
	hostnames []string
	interval  time.Duration
	lookup    LookupFunc

	resolved atomic.Pointer[[]netip.Addr]
}

// NewResolver parses the configured trusted-network entries. Each entry is
// a CIDR range ("10.0.0.0/8"), a plain IP ("172.17.0.2") or a hostname
// ("traefik"). Hostnames are resolved on the first Refresh, not here, so a
// proxy that boots later than the gateway does not fail startup.
func NewResolver(entries []string, refreshInterval time.Duration) (*Resolver, error) {
	if refreshInterval <= 0 {
		refreshInterval = DefaultRefreshInterval
	}

	r := &Resolver{
		interval: refreshInterval,
		lookup:   defaultLookup,
	}

	for _, entry := range entries {
		if entry == "" {
			return nil, fmt.Errorf("empty trusted network entry")
		}

		if prefix, err := netip.ParsePrefix(entry); err == nil {
			r.prefixes = append(r.prefixes, prefix)
			continue
		}

		if addr, err := netip.ParseAddr(entry); err == nil {
			r.prefixes = append(r.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}

		r.hostnames = append(r.hostnames, entry)
	}

	empty := make([]netip.Addr, 0)
	r.resolved.Store(&empty)

	return r, nil
}

// SetLookup replaces the hostname resolver. Intended for tests.
func (r *Resolver) SetLookup(lookup LookupFunc) {
	r.lookup = lookup
}

// IsTrusted reports whether the peer address is inside a trusted range or
// matches a resolved trusted hostname.
func (r *Resolver) IsTrusted(addr netip.Addr) bool {
	addr = addr.Unmap()

	for _, prefix := range r.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}

	for _, resolved := range *r.resolved.Load() {
		if resolved.Unmap() == addr {
			return true
		}
	}

	return false
}

// Refresh re-resolves all hostname entries and swaps the published address
// set. A hostname that fails to resolve is logged and skipped; the
// remaining entries still take effect.
func (r *Resolver) Refresh(ctx context.Context) {
	if len(r.hostnames) == 0 {
		return
	}

	resolved := make([]netip.Addr, 0, len(r.hostnames))
	failed := false

	for _, host := range r.hostnames {
		addrs, err := r.lookup(ctx, host)
		if err != nil {
			failed = true
			logging.Ctx(ctx).Warn().Err(err).Str("host", host).Msg("failed to resolve trusted hostname")
			continue
		}
		resolved = append(resolved, addrs...)
	}

	r.resolved.Store(&resolved)

	result := "success"
	if failed {
		result = "partial"
	}
	metrics.TrustRefreshesTotal.WithLabelValues(result).Inc()
	metrics.TrustedAddresses.Set(float64(len(resolved)))
}

// Serve implements suture.Service: an initial refresh followed by periodic
// re-resolution until the context is cancelled.
func (r *Resolver) Serve(ctx context.Context) error {
	r.Refresh(ctx)

	if len(r.hostnames) == 0 {
		// Nothing to refresh, sleep until shutdown.
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Refresh(ctx)
		}
	}
}

func defaultLookup(ctx context.Context, host string) ([]netip.Addr, error) {
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}

	addrs := make([]netip.Addr, 0, len(ips))
	for _, ip := range ips {
		if addr, ok := netip.AddrFromSlice(ip.IP); ok {
			addrs = append(addrs, addr.Unmap())
		}
	}

	return addrs, nil
}
