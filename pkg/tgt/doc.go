// Package tgt manages the lifecycle of Kerberos ticket-granting tickets
// for a single principal.
//
// # Overview
//
// A Session binds a principal to its credential cache and, optionally, a
// client keytab. Acquisition runs through a gss.Mechanism, so everything
// here is testable without a KDC; the production mechanism lives in
// pkg/gss.
//
// Sessions are built for callers that keep a service ticket fresh over a
// long process lifetime: validation failures (a malformed principal, a
// missing keytab file) surface immediately as errors, while acquisition
// and commit failures collapse to boolean outcomes with logged
// diagnostics, so a supervision loop can just retry on the next tick.
//
// Keytab acquisition is resilient to broken caches. When the direct
// attempt through the session cache fails, the TGT is acquired again into
// a scratch cache under a private temporary directory and then committed
// into the real cache explicitly. The scratch directory is removed
// whether or not that succeeds.
package tgt
