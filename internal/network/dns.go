package network

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"
)

// KDC Discovery via DNS SRV Records
//
// Kerberos realms advertise their KDCs in DNS:
//   _kerberos._tcp.<realm> and _kerberos._udp.<realm>
//
// Example for EXAMPLE.COM:
//   _kerberos._tcp.example.com. 600 IN SRV 0 100 88 kdc01.example.com.
//
// The record carries priority (lower = preferred), weight (load balancing
// within a priority), port (88 by default) and the KDC's FQDN. Clients
// without a krb5.conf realms section use these records instead of
// hardcoded addresses.

// KDCInfo describes a discovered KDC.
type KDCInfo struct {
	Host     string
	Port     int
	Priority int
	Weight   int
}

// Addr returns the host:port form of the KDC address.
func (k KDCInfo) Addr() string {
	return fmt.Sprintf("%s:%d", k.Host, k.Port)
}

// DiscoverKDC finds the KDCs for a realm via DNS SRV, TCP records first
// with a UDP fallback. Results are sorted by priority (lower first), then
// weight (higher first).
func DiscoverKDC(ctx context.Context, realm string) ([]KDCInfo, error) {
	srvName := "_kerberos._tcp." + strings.ToLower(realm)

	_, addrs, err := net.DefaultResolver.LookupSRV(ctx, "kerberos", "tcp", realm)
	if err != nil {
		_, addrs, err = net.DefaultResolver.LookupSRV(ctx, "kerberos", "udp", realm)
		if err != nil {
			return nil, fmt.Errorf("failed to discover KDC for %s (tried %s): %w", realm, srvName, err)
		}
	}

	if len(addrs) == 0 {
		return nil, fmt.Errorf("no KDCs found for realm %s", realm)
	}

	kdcs := make([]KDCInfo, len(addrs))
	for i, addr := range addrs {
		kdcs[i] = KDCInfo{
			Host:     strings.TrimSuffix(addr.Target, "."),
			Port:     int(addr.Port),
			Priority: int(addr.Priority),
			Weight:   int(addr.Weight),
		}
	}

	sortKDCs(kdcs)
	return kdcs, nil
}

// sortKDCs orders by priority ascending, then weight descending.
func sortKDCs(kdcs []KDCInfo) {
	sort.Slice(kdcs, func(i, j int) bool {
		if kdcs[i].Priority != kdcs[j].Priority {
			return kdcs[i].Priority < kdcs[j].Priority
		}
		return kdcs[i].Weight > kdcs[j].Weight
	})
}

// ResolveKDC returns KDC addresses for a realm, either the normalized
// explicit address or the discovered set.
func ResolveKDC(ctx context.Context, realm, explicitKDC string) ([]string, error) {
	if explicitKDC != "" {
		return []string{NormalizeKDCAddr(explicitKDC)}, nil
	}

	kdcs, err := DiscoverKDC(ctx, realm)
	if err != nil {
		return nil, err
	}

	addrs := make([]string, len(kdcs))
	for i, k := range kdcs {
		addrs[i] = k.Addr()
	}
	return addrs, nil
}

// NormalizeKDCAddr appends the default Kerberos port when none is given.
func NormalizeKDCAddr(addr string) string {
	if !strings.Contains(addr, ":") {
		return addr + ":88"
	}
	return addr
}

// DefaultTimeout bounds KDC discovery and probe operations.
const DefaultTimeout = 30 * time.Second
