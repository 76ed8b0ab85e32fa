// Package network locates Kerberos KDCs.
//
// This package handles:
//   - KDC discovery via DNS SRV records
//   - Explicit KDC address normalization
//   - TCP reachability probes for diagnostics
//
// The Kerberos exchanges themselves happen inside the protocol engine; this
// package only answers "which KDC" and "can I reach it".
package network
