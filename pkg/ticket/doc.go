// Package ticket reads and writes MIT Kerberos credential caches.
//
// # Overview
//
// A credential cache (ccache) holds a principal's tickets and session keys
// between processes. This package implements the FILE ccache binary format
// used by MIT Kerberos on Linux/Unix:
//
//   - Versions 3 (0x0503) and 4 (0x0504) are read
//   - Version 4 is written, atomically and with owner-only permissions
//
// # Cache references
//
// Callers name caches with MIT-style references: a bare path, a FILE:path
// reference, or an empty reference meaning the process default (KRB5CCNAME,
// falling back to /tmp/krb5cc_<uid>). ResolveRef normalizes all of these to
// a filesystem path and rejects cache types this package does not manage.
//
// # Cache inspection
//
// ViewCache produces a klist-style summary of a cache for display:
//
//	view := ticket.ViewCache(cc, ticket.ViewOptions{})
//	fmt.Println(view.String())
package ticket
