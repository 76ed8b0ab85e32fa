package network

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Probe checks TCP reachability of a KDC address.
//
// Modern KDCs all speak TCP on port 88, so a successful dial is a strong
// signal the realm is reachable, and a refused or timed-out dial turns an
// opaque downstream exchange failure into an actionable diagnostic. The
// probe never sends a Kerberos message.
func Probe(ctx context.Context, addr string) error {
	dialer := &net.Dialer{Timeout: DefaultTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", NormalizeKDCAddr(addr))
	if err != nil {
		return fmt.Errorf("KDC %s unreachable: %w", addr, err)
	}
	conn.Close()
	return nil
}

// ProbeAny returns the first reachable address from the list, trying each
// in order with a per-attempt timeout.
func ProbeAny(ctx context.Context, addrs []string, perAttempt time.Duration) (string, error) {
	if perAttempt <= 0 {
		perAttempt = DefaultTimeout
	}

	var lastErr error
	for _, addr := range addrs {
		attemptCtx, cancel := context.WithTimeout(ctx, perAttempt)
		err := Probe(attemptCtx, addr)
		cancel()
		if err == nil {
			return addr, nil
		}
		lastErr = err
	}

	if lastErr == nil {
		return "", fmt.Errorf("no KDC addresses to probe")
	}
	return "", lastErr
}
