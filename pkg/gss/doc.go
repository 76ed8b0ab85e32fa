// Package gss defines the security-mechanism boundary for credential
// acquisition and storage, plus a production implementation backed by the
// gokrb5 protocol engine.
//
// # Overview
//
// The Mechanism interface mirrors the GSS-API credential surface: parse a
// principal name, acquire credentials from a credential store, acquire with
// a password, inquire a credential handle, and store a handle into a store.
// Higher layers speak only to this interface, which keeps them testable
// without a KDC.
//
// The Krb5 type is the real mechanism. It resolves Kerberos configuration
// (krb5.conf, environment, or DNS SRV discovery), reads and writes MIT FILE
// credential caches, and performs AS exchanges through
// github.com/jcmturner/gokrb5 when a store carries a client keytab or a
// password is supplied.
//
// # Errors
//
// Every failure carries a Kind (expired, missing, invalid, protocol, or one
// of the store kinds) retrievable with KindOf, so callers can distinguish
// "credentials expired" from "KDC unreachable" without string matching.
package gss
