package tgt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jcmturner/gokrb5/v8/iana/nametype"
	"github.com/jcmturner/gokrb5/v8/types"
	"github.com/stretchr/testify/require"

	"github.com/tgtkeep/tgtkeep/pkg/gss"
)

// mockMechanism scripts mechanism behavior per call and records every
// store it sees, so session flows are testable without a KDC.
type mockMechanism struct {
	// acquire is consulted for AcquireFromStore. Nil means success with
	// a fresh one-hour handle.
	acquire func(store gss.Store) (*gss.Credentials, error)

	// password is consulted for AcquireWithPassword. Nil means success.
	password func(password []byte) (*gss.Credentials, error)

	// store is consulted for Store. Nil means success.
	store func(creds *gss.Credentials, store gss.Store, opts gss.StoreOptions) error

	acquireCalls []gss.Store
	storeCalls   []gss.Store
	storeOpts    []gss.StoreOptions
}

var _ gss.Mechanism = (*mockMechanism)(nil)

func (m *mockMechanism) ParseName(principal string) (gss.Name, error) {
	if principal == "" || strings.ContainsAny(principal, " \t") {
		return gss.Name{}, &gss.Error{Kind: gss.KindBadName, Op: "parse-name", Err: errors.New("malformed principal")}
	}
	return mockName(principal), nil
}

func (m *mockMechanism) AcquireFromStore(_ context.Context, name gss.Name, usage gss.CredUsage, store gss.Store) (*gss.Credentials, error) {
	m.acquireCalls = append(m.acquireCalls, store)
	if m.acquire != nil {
		return m.acquire(store)
	}
	return validCreds(name, time.Hour), nil
}

func (m *mockMechanism) AcquireWithPassword(_ context.Context, name gss.Name, password []byte, usage gss.CredUsage) (*gss.Credentials, error) {
	if m.password != nil {
		return m.password(password)
	}
	return validCreds(name, time.Hour), nil
}

func (m *mockMechanism) Inquire(creds *gss.Credentials) (*gss.CredInfo, error) {
	if creds == nil {
		return nil, &gss.Error{Kind: gss.KindInvalidCredentials, Op: "inquire", Err: errors.New("nil handle")}
	}
	if creds.EndTime.IsZero() {
		return &gss.CredInfo{Name: creds.Name, Usage: creds.Usage}, nil
	}
	remaining := time.Until(creds.EndTime)
	if remaining <= 0 {
		return nil, &gss.Error{Kind: gss.KindExpiredCredentials, Op: "inquire", Err: errors.New("past end time")}
	}
	return &gss.CredInfo{
		Name:          creds.Name,
		Usage:         creds.Usage,
		Expiry:        creds.EndTime,
		TimeRemaining: remaining,
	}, nil
}

func (m *mockMechanism) Store(_ context.Context, creds *gss.Credentials, store gss.Store, opts gss.StoreOptions) error {
	m.storeCalls = append(m.storeCalls, store)
	m.storeOpts = append(m.storeOpts, opts)
	if m.store != nil {
		return m.store(creds, store, opts)
	}
	return nil
}

func mockName(principal string) gss.Name {
	parts := strings.SplitN(principal, "@", 2)
	realm := "EXAMPLE.COM"
	if len(parts) == 2 {
		realm = parts[1]
	}
	return gss.Name{
		Principal: types.PrincipalName{
			NameType:   nametype.KRB_NT_PRINCIPAL,
			NameString: strings.Split(parts[0], "/"),
		},
		Realm: realm,
	}
}

func validCreds(name gss.Name, ttl time.Duration) *gss.Credentials {
	now := time.Now()
	return &gss.Credentials{
		Name:      name,
		Usage:     gss.UsageInitiate,
		Ticket:    []byte("mock-ticket"),
		AuthTime:  now,
		StartTime: now,
		EndTime:   now.Add(ttl),
		RenewTill: now.Add(2 * ttl),
	}
}

// kindError builds a classified failure for scripting mock outcomes.
func kindError(kind gss.Kind, msg string) error {
	return &gss.Error{Kind: kind, Op: "acquire", Err: errors.New(msg)}
}

func newTestSession(t *testing.T, mech gss.Mechanism, cacheRef string) *Session {
	t.Helper()
	s, err := NewSession(Config{Principal: "alice@EXAMPLE.COM", CacheRef: cacheRef, Mechanism: mech})
	require.NoError(t, err)
	return s
}

// writeFakeKeytab creates a file for keytab path validation. The mock
// never reads it, so two magic bytes suffice.
func writeFakeKeytab(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "svc.keytab")
	require.NoError(t, os.WriteFile(path, []byte{0x05, 0x02}, 0o600))
	return path
}
