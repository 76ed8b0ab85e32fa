package tgt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tgtkeep/tgtkeep/pkg/gss"
)

// TimestampFormat renders recorded expiry times for display.
const TimestampFormat = "2006-01-02 15:04:05"

var (
	// ErrInvalidPrincipal reports a principal name the mechanism rejected.
	ErrInvalidPrincipal = errors.New("invalid principal name")

	// ErrKeytabNotFound reports a keytab path that does not exist.
	ErrKeytabNotFound = errors.New("keytab not found")
)

// Session tracks the Kerberos identity of one principal: which credential
// cache holds its TGT, which client keytab can mint a fresh one, and when
// the last validated TGT expires. Acquisition outcomes are booleans; the
// session is built for callers that poll and retry rather than unwind on
// failure.
//
// A Session is not safe for concurrent use.
type Session struct {
	mech     gss.Mechanism
	name     gss.Name
	cacheRef string
	keytab   string
	expiry   time.Time
}

// Config carries the identity for NewSession.
type Config struct {
	// Principal is the textual principal name, comp1/comp2@REALM. The
	// realm part is optional when the mechanism has a default realm.
	Principal string

	// CacheRef names the credential cache. Empty selects the process
	// default: KRB5CCNAME, then the uid-keyed file cache.
	CacheRef string

	// Mechanism overrides the credential mechanism. Nil selects the
	// gokrb5-backed default.
	Mechanism gss.Mechanism
}

// NewSession validates the principal through the mechanism and returns a
// session bound to it. Name validation fails here, immediately, as
// ErrInvalidPrincipal; acquisition failures later are boolean outcomes.
func NewSession(cfg Config) (*Session, error) {
	mech := cfg.Mechanism
	if mech == nil {
		m, err := gss.Default()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize credential mechanism: %w", err)
		}
		mech = m
	}

	name, err := mech.ParseName(cfg.Principal)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPrincipal, err)
	}

	return &Session{mech: mech, name: name, cacheRef: cfg.CacheRef}, nil
}

// SetKeytab points the session at a client keytab, verifying the file
// exists first. On failure the previous keytab selection is kept.
func (s *Session) SetKeytab(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrKeytabNotFound, path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrKeytabNotFound, abs, err)
	}
	s.keytab = abs
	return nil
}

// SetCacheRef retargets the session's credential cache. The reference is
// taken verbatim and resolved by the mechanism on each acquisition.
func (s *Session) SetCacheRef(ref string) {
	s.cacheRef = ref
}

// Principal returns the parsed principal name.
func (s *Session) Principal() gss.Name {
	return s.name
}

// CacheRef returns the configured cache reference, which may be empty.
func (s *Session) CacheRef() string {
	return s.cacheRef
}

// Keytab returns the configured client keytab path, which may be empty.
func (s *Session) Keytab() string {
	return s.keytab
}

// Store assembles the credential store from the session's current
// identity. It is rebuilt on every call, never memoized, so SetKeytab and
// SetCacheRef always take effect on the next acquisition.
func (s *Session) Store() gss.Store {
	return gss.Store{
		ClientKeytab: s.keytab,
		CacheRef:     s.cacheRef,
	}
}

// Expiry returns the expiry recorded by the last validated acquisition.
// ok is false when no TGT lifetime is on record.
func (s *Session) Expiry() (expiry time.Time, ok bool) {
	return s.expiry, !s.expiry.IsZero()
}

// ExpiryTimestamp renders the recorded expiry for display, or the empty
// string when none is recorded.
func (s *Session) ExpiryTimestamp() string {
	if s.expiry.IsZero() {
		return ""
	}
	return s.expiry.Format(TimestampFormat)
}
