package tgt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgtkeep/tgtkeep/pkg/gss"
)

func TestNewSession(t *testing.T) {
	mech := &mockMechanism{}
	s, err := NewSession(Config{Principal: "alice@EXAMPLE.COM", CacheRef: "/tmp/cc_test", Mechanism: mech})
	require.NoError(t, err)

	assert.Equal(t, []string{"alice"}, s.Principal().Principal.NameString)
	assert.Equal(t, "EXAMPLE.COM", s.Principal().Realm)
	assert.Equal(t, "/tmp/cc_test", s.CacheRef())
	assert.Empty(t, s.Keytab())

	_, ok := s.Expiry()
	assert.False(t, ok)
	assert.Equal(t, "", s.ExpiryTimestamp())
}

func TestNewSessionInvalidPrincipal(t *testing.T) {
	_, err := NewSession(Config{Principal: "not a principal", Mechanism: &mockMechanism{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPrincipal)
	assert.Equal(t, gss.KindBadName, gss.KindOf(err))
}

func TestSetKeytab(t *testing.T) {
	s := newTestSession(t, &mockMechanism{}, "")

	path := writeFakeKeytab(t)
	require.NoError(t, s.SetKeytab(path))
	assert.True(t, filepath.IsAbs(s.Keytab()))

	// A failed update keeps the previous selection.
	err := s.SetKeytab(filepath.Join(t.TempDir(), "absent.keytab"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKeytabNotFound)
	assert.Equal(t, path, s.Keytab())
}

func TestStoreReflectsCurrentIdentity(t *testing.T) {
	s := newTestSession(t, &mockMechanism{}, "/tmp/cc_one")

	assert.Equal(t, gss.Store{CacheRef: "/tmp/cc_one"}, s.Store())

	kt := writeFakeKeytab(t)
	require.NoError(t, s.SetKeytab(kt))
	s.SetCacheRef("/tmp/cc_two")

	want := gss.Store{ClientKeytab: kt, CacheRef: "/tmp/cc_two"}
	assert.Equal(t, want, s.Store())
	assert.Equal(t, want, s.Store(), "store must be rebuilt identically on every call")
}

func TestExpiryRecording(t *testing.T) {
	end := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	mech := &mockMechanism{}
	mech.acquire = func(store gss.Store) (*gss.Credentials, error) {
		creds := validCreds(mockName("alice@EXAMPLE.COM"), time.Hour)
		creds.EndTime = end
		return creds, nil
	}
	s := newTestSession(t, mech, "")

	require.True(t, s.AcquireFromDefault(context.Background(), nil))

	got, ok := s.Expiry()
	require.True(t, ok)
	assert.True(t, got.Equal(end))
	assert.Equal(t, end.Format(TimestampFormat), s.ExpiryTimestamp())
}

func TestExpiryClearedOnFailure(t *testing.T) {
	fail := false
	mech := &mockMechanism{}
	mech.acquire = func(store gss.Store) (*gss.Credentials, error) {
		if fail {
			return nil, kindError(gss.KindExpiredCredentials, "past end time")
		}
		return validCreds(mockName("alice@EXAMPLE.COM"), time.Hour), nil
	}
	s := newTestSession(t, mech, "")

	require.True(t, s.AcquireFromDefault(context.Background(), nil))
	_, ok := s.Expiry()
	require.True(t, ok)

	fail = true
	assert.True(t, s.IsExpired(context.Background()))
	_, ok = s.Expiry()
	assert.False(t, ok)
	assert.Equal(t, "", s.ExpiryTimestamp())
}
