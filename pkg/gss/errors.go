package gss

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies mechanism failures the way GSS-API callers need to
// distinguish them: is the credential expired, absent, or unusable, did the
// protocol exchange fail, or did a store operation fail and how.
type Kind int

const (
	// KindNone marks errors that did not originate here.
	KindNone Kind = iota

	// KindBadName marks principal names that fail validation.
	KindBadName

	// KindExpiredCredentials marks credentials past their end time.
	KindExpiredCredentials

	// KindMissingCredentials marks stores holding no credentials for the
	// desired name.
	KindMissingCredentials

	// KindInvalidCredentials marks credentials or key material the
	// authority rejected, and malformed caches.
	KindInvalidCredentials

	// KindProtocol marks KDC exchange and transport failures.
	KindProtocol

	// KindStoreConflict marks stores already claimed by another identity.
	KindStoreConflict

	// KindStoreUnavailable marks stores that cannot be used at all:
	// unsupported cache types, unwritable paths, unsupported operations.
	KindStoreUnavailable

	// KindDuplicateElement marks stores that already hold the credential
	// when overwriting was not requested.
	KindDuplicateElement
)

func (k Kind) String() string {
	switch k {
	case KindBadName:
		return "bad name"
	case KindExpiredCredentials:
		return "expired credentials"
	case KindMissingCredentials:
		return "missing credentials"
	case KindInvalidCredentials:
		return "invalid credentials"
	case KindProtocol:
		return "protocol failure"
	case KindStoreConflict:
		return "store conflict"
	case KindStoreUnavailable:
		return "store unavailable"
	case KindDuplicateElement:
		return "duplicate element"
	default:
		return "unclassified"
	}
}

// Error is a classified mechanism failure.
type Error struct {
	Kind Kind
	Op   string // "parse-name", "acquire", "inquire", "store"
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gss %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the classification of err, or KindNone for foreign errors.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindNone
}

// opError builds a classified error from a format string.
func opError(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// kdcErrorKinds maps KDC error names, as they appear in protocol engine
// error text, to credential kinds. The engine flattens KRB-ERROR responses
// into wrapped message strings, so the protocol error name is the only
// stable signal that survives the error chain.
var kdcErrorKinds = []struct {
	name string
	kind Kind
	desc string
}{
	{"KDC_ERR_C_PRINCIPAL_UNKNOWN", KindInvalidCredentials, "client not found in database"},
	{"KDC_ERR_PREAUTH_FAILED", KindInvalidCredentials, "pre-authentication failed (wrong key or password)"},
	{"KDC_ERR_CLIENT_REVOKED", KindInvalidCredentials, "client credentials revoked"},
	{"KDC_ERR_KEY_EXPIRED", KindInvalidCredentials, "password has expired"},
	{"KDC_ERR_POLICY", KindInvalidCredentials, "policy rejects request"},
	{"KDC_ERR_ETYPE_NOSUPP", KindProtocol, "encryption type not supported"},
	{"KDC_ERR_PREAUTH_REQUIRED", KindProtocol, "pre-authentication required"},
	{"KDC_ERR_S_PRINCIPAL_UNKNOWN", KindProtocol, "server not found in database"},
	{"KRB_AP_ERR_SKEW", KindProtocol, "clock skew too great"},
	{"KDC_ERR_WRONG_REALM", KindProtocol, "wrong realm"},
	{"KRB_ERR_RESPONSE_TOO_BIG", KindProtocol, "response too big for transport"},
}

// classifyEngineError wraps a protocol engine failure with the kind its KDC
// error name implies; anything unrecognized is a generic protocol failure.
func classifyEngineError(op string, err error) *Error {
	msg := err.Error()
	for _, e := range kdcErrorKinds {
		if strings.Contains(msg, e.name) {
			return &Error{
				Kind: e.kind,
				Op:   op,
				Err:  fmt.Errorf("%s (%s): %w", e.name, e.desc, err),
			}
		}
	}
	return &Error{Kind: KindProtocol, Op: op, Err: err}
}
