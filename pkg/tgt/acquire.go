package tgt

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/tgtkeep/tgtkeep/internal/logger"
	"github.com/tgtkeep/tgtkeep/pkg/gss"
)

// AcquireOptions tune how acquired credentials are validated and
// committed. The zero value (and a nil pointer) requests initiate usage
// and a commit that sets the cache's default identity and overwrites an
// existing TGT.
type AcquireOptions struct {
	// Usage selects the credential usage. Empty means initiate.
	Usage gss.CredUsage

	// NoSetDefault leaves the cache's default identity untouched when
	// committing.
	NoSetDefault bool

	// NoOverwrite refuses to replace credentials already in the cache.
	NoOverwrite bool
}

func (o *AcquireOptions) usage() gss.CredUsage {
	if o == nil || o.Usage == "" {
		return gss.UsageInitiate
	}
	return o.Usage
}

func (o *AcquireOptions) storeOptions() gss.StoreOptions {
	opts := gss.StoreOptions{Usage: o.usage(), SetDefault: true, Overwrite: true}
	if o != nil {
		opts.SetDefault = !o.NoSetDefault
		opts.Overwrite = !o.NoOverwrite
	}
	return opts
}

// outcome classifies one acquisition attempt.
type outcome int

const (
	outcomeValid outcome = iota
	outcomeExpired
	outcomeUnusable
)

// attemptAcquire runs one acquire-and-validate round against a store. On
// success the handle is returned and the session expiry is updated; on
// failure the expiry is cleared so a stale lifetime never outlives the
// credentials it described.
func (s *Session) attemptAcquire(ctx context.Context, store gss.Store, usage gss.CredUsage) (*gss.Credentials, outcome) {
	creds, err := s.mech.AcquireFromStore(ctx, s.name, usage, store)
	if err == nil {
		var info *gss.CredInfo
		if info, err = s.mech.Inquire(creds); err == nil {
			s.recordLifetime(info)
			return creds, outcomeValid
		}
	}

	s.expiry = time.Time{}
	if gss.KindOf(err) == gss.KindExpiredCredentials {
		logger.Debug("credentials expired", "principal", s.name.String(), "error", err)
		return nil, outcomeExpired
	}
	logger.Debug("credentials unusable", "principal", s.name.String(), "error", err)
	return nil, outcomeUnusable
}

// recordLifetime notes when validated credentials expire. Indefinite
// credentials record no expiry.
func (s *Session) recordLifetime(info *gss.CredInfo) {
	s.expiry = info.Expiry
}

// IsExpired reports whether the session currently lacks a usable TGT:
// the cached credentials are expired, absent, or rejected as invalid.
// The check acquires and validates live rather than trusting the
// recorded expiry, so external cache changes (a kdestroy, another tool
// refreshing the ticket) are observed. Protocol and store-level failures
// leave the question open and report false.
func (s *Session) IsExpired(ctx context.Context) bool {
	creds, err := s.mech.AcquireFromStore(ctx, s.name, gss.UsageInitiate, s.Store())
	if err == nil {
		var info *gss.CredInfo
		if info, err = s.mech.Inquire(creds); err == nil {
			s.recordLifetime(info)
			return false
		}
	}

	s.expiry = time.Time{}
	switch gss.KindOf(err) {
	case gss.KindExpiredCredentials, gss.KindMissingCredentials, gss.KindInvalidCredentials:
		logger.Debug("no usable TGT", "principal", s.name.String(), "error", err)
		return true
	default:
		logger.Debug("expiry check inconclusive", "principal", s.name.String(), "error", err)
		return false
	}
}

// AcquireFromDefault attempts acquisition from the session store as it
// stands: the cache first, then the client keytab when one is set.
func (s *Session) AcquireFromDefault(ctx context.Context, opts *AcquireOptions) bool {
	_, out := s.attemptAcquire(ctx, s.Store(), opts.usage())
	return out == outcomeValid
}

// AcquireWithKeytab installs the keytab into the session and acquires a
// TGT with it. The direct path lets the mechanism refresh the session
// cache itself; when that fails outright, acquisition retries through a
// scratch cache and the result is committed into the real cache
// explicitly. The scratch directory is removed in all cases.
//
// The returned error reports keytab validation failures only.
// Acquisition and commit failures are boolean outcomes.
func (s *Session) AcquireWithKeytab(ctx context.Context, path string, opts *AcquireOptions) (bool, error) {
	if err := s.SetKeytab(path); err != nil {
		return false, err
	}

	usage := opts.usage()

	if _, out := s.attemptAcquire(ctx, s.Store(), usage); out == outcomeValid {
		return true, nil
	}

	// The session cache itself can be what broke the direct attempt: an
	// unwritable path, an unsupported cache type, a cache claimed by
	// another identity. A scratch cache isolates acquisition from all
	// of that.
	scratchDir, err := os.MkdirTemp("", "*-krb5")
	if err != nil {
		logger.Error("failed to create scratch cache directory", "error", err)
		return false, nil
	}
	defer os.RemoveAll(scratchDir)

	scratch := s.Store()
	scratch.CacheRef = filepath.Join(scratchDir, "ccache")

	creds, _ := s.attemptAcquire(ctx, scratch, usage)

	// The result goes to the committer either way: a failed retry hands
	// it no credentials, which it reports as false without touching the
	// mechanism. Commit into the real cache only; the keytab stays out
	// of the commit store, storing is purely a cache operation.
	return s.commit(ctx, creds, gss.Store{CacheRef: s.cacheRef}, opts), nil
}

// AcquireWithPassword acquires a TGT through an AS exchange with the
// password and commits it into the session store. There is no fallback
// path: password acquisition never reads the cache, so cache problems
// cannot fail it, and a commit failure is definitive.
func (s *Session) AcquireWithPassword(ctx context.Context, password []byte, opts *AcquireOptions) bool {
	creds, err := s.mech.AcquireWithPassword(ctx, s.name, password, opts.usage())
	if err != nil {
		s.expiry = time.Time{}
		logger.Error("password acquisition failed", "principal", s.name.String(), "error", err)
		return false
	}

	info, err := s.mech.Inquire(creds)
	if err != nil {
		s.expiry = time.Time{}
		logger.Error("acquired credentials failed validation", "principal", s.name.String(), "error", err)
		return false
	}
	s.recordLifetime(info)

	return s.commit(ctx, creds, s.Store(), opts)
}

// commit persists validated credentials through the mechanism. All
// failures collapse to false with a logged diagnostic: a failed commit
// means the TGT exists but is not where consumers look, which callers
// treat the same as not having acquired at all. A nil handle commits
// nothing and reports false rather than reaching the mechanism.
func (s *Session) commit(ctx context.Context, creds *gss.Credentials, store gss.Store, opts *AcquireOptions) bool {
	if creds == nil {
		logger.Debug("no credentials to commit", "principal", s.name.String())
		return false
	}
	if err := s.mech.Store(ctx, creds, store, opts.storeOptions()); err != nil {
		logger.Error("failed to store credentials",
			"principal", s.name.String(), "cache", store.CacheRef, "error", err)
		return false
	}
	logger.Debug("credentials committed", "principal", s.name.String(), "cache", store.CacheRef)
	return true
}
