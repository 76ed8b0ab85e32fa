package ticket

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jcmturner/gokrb5/v8/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alicePrincipal() CCachePrincipal {
	return CCachePrincipal{
		NameType:   1,
		NumComp:    1,
		Realm:      "EXAMPLE.COM",
		Components: []string{"alice"},
	}
}

func krbtgtServer() CCachePrincipal {
	return CCachePrincipal{
		NameType:   2,
		NumComp:    2,
		Realm:      "EXAMPLE.COM",
		Components: []string{"krbtgt", "EXAMPLE.COM"},
	}
}

func sampleTGT(endTime time.Time) CCacheCredential {
	auth := endTime.Add(-8 * time.Hour)
	return NewCredential(
		alicePrincipal(), krbtgtServer(),
		types.EncryptionKey{KeyType: 18, KeyValue: bytes.Repeat([]byte{0x42}, 32)},
		auth, auth, endTime, endTime.Add(16*time.Hour),
		0x00e10000,
		[]byte("der-encoded-ticket"),
	)
}

func TestCCacheRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ccache")
	end := time.Now().Add(8 * time.Hour).Truncate(time.Second)

	cc := NewCCache(alicePrincipal())
	cc.SetCredential(sampleTGT(end))
	require.NoError(t, SaveCCache(cc, path))

	got, err := LoadCCache(path)
	require.NoError(t, err)

	assert.Equal(t, uint8(4), got.Version)
	assert.True(t, got.DefaultPrinc.Equal(alicePrincipal()))
	assert.Equal(t, "alice@EXAMPLE.COM", got.DefaultPrinc.String())

	cred, ok := got.Lookup(alicePrincipal(), krbtgtServer())
	require.True(t, ok)
	assert.Equal(t, []byte("der-encoded-ticket"), cred.Ticket)
	assert.Equal(t, uint32(end.Unix()), cred.EndTime)
	assert.Equal(t, uint32(0x00e10000), cred.TicketFlags)
	assert.Equal(t, int32(18), cred.SessionKey().KeyType)
	assert.Equal(t, bytes.Repeat([]byte{0x42}, 32), cred.SessionKey().KeyValue)
	assert.False(t, cred.Expired(time.Now()))
}

func TestCCachePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ccache")
	cc := NewCCache(alicePrincipal())
	require.NoError(t, SaveCCache(cc, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSaveReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ccache")

	first := NewCCache(alicePrincipal())
	first.SetCredential(sampleTGT(time.Now().Add(time.Hour)))
	require.NoError(t, SaveCCache(first, path))

	second := NewCCache(alicePrincipal())
	newEnd := time.Now().Add(10 * time.Hour).Truncate(time.Second)
	second.SetCredential(sampleTGT(newEnd))
	require.NoError(t, SaveCCache(second, path))

	got, err := LoadCCache(path)
	require.NoError(t, err)
	cred, ok := got.Lookup(alicePrincipal(), krbtgtServer())
	require.True(t, ok)
	assert.Equal(t, uint32(newEnd.Unix()), cred.EndTime)

	// No stray temporary files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSetCredentialReplaces(t *testing.T) {
	cc := NewCCache(alicePrincipal())

	replaced := cc.SetCredential(sampleTGT(time.Now().Add(time.Hour)))
	assert.False(t, replaced)
	assert.Len(t, cc.Credentials, 1)

	newEnd := time.Now().Add(10 * time.Hour).Truncate(time.Second)
	replaced = cc.SetCredential(sampleTGT(newEnd))
	assert.True(t, replaced)
	assert.Len(t, cc.Credentials, 1)

	cred, ok := cc.Lookup(alicePrincipal(), krbtgtServer())
	require.True(t, ok)
	assert.Equal(t, uint32(newEnd.Unix()), cred.EndTime)
}

func TestLookupMiss(t *testing.T) {
	cc := NewCCache(alicePrincipal())
	cc.SetCredential(sampleTGT(time.Now().Add(time.Hour)))

	bob := CCachePrincipal{NameType: 1, NumComp: 1, Realm: "EXAMPLE.COM", Components: []string{"bob"}}
	_, ok := cc.Lookup(bob, krbtgtServer())
	assert.False(t, ok)

	otherRealm := krbtgtServer()
	otherRealm.Realm = "OTHER.NET"
	_, ok = cc.Lookup(alicePrincipal(), otherRealm)
	assert.False(t, ok)
}

func TestPrincipalEqualIgnoresNameType(t *testing.T) {
	a := alicePrincipal()
	b := alicePrincipal()
	b.NameType = 0
	assert.True(t, a.Equal(b))

	c := alicePrincipal()
	c.Components = []string{"alice", "admin"}
	assert.False(t, a.Equal(c))
}

func TestConfigEntriesPreserved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ccache")

	confEntry := CCacheCredential{
		Client: alicePrincipal(),
		Server: CCachePrincipal{
			NameType:   1,
			NumComp:    2,
			Realm:      "X-CACHECONF:",
			Components: []string{"krb5_ccache_conf_data", "fast_avail"},
		},
		Ticket: []byte("yes"),
	}

	cc := NewCCache(alicePrincipal())
	cc.Credentials = append(cc.Credentials, confEntry)
	cc.SetCredential(sampleTGT(time.Now().Add(time.Hour)))
	require.NoError(t, SaveCCache(cc, path))

	got, err := LoadCCache(path)
	require.NoError(t, err)
	require.Len(t, got.Credentials, 2)

	assert.True(t, got.Credentials[0].IsConfigEntry())
	assert.Equal(t, []byte("yes"), got.Credentials[0].Ticket)

	// Lookups skip configuration pseudo-entries even for matching names.
	cred, ok := got.Lookup(alicePrincipal(), krbtgtServer())
	require.True(t, ok)
	assert.False(t, cred.IsConfigEntry())
}

func TestCredentialAddressesSurviveRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ccache")

	cred := sampleTGT(time.Now().Add(time.Hour))
	cred.Addresses = []CCacheAddress{{AddrType: 2, Address: []byte{10, 0, 0, 1}}}
	cred.AuthData = []CCacheAuthData{{ADType: 1, Data: []byte{0x30, 0x00}}}

	cc := NewCCache(alicePrincipal())
	cc.SetCredential(cred)
	require.NoError(t, SaveCCache(cc, path))

	got, err := LoadCCache(path)
	require.NoError(t, err)
	loaded, ok := got.Lookup(alicePrincipal(), krbtgtServer())
	require.True(t, ok)
	require.Len(t, loaded.Addresses, 1)
	assert.Equal(t, []byte{10, 0, 0, 1}, loaded.Addresses[0].Address)
	require.Len(t, loaded.AuthData, 1)
	assert.Equal(t, uint16(1), loaded.AuthData[0].ADType)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := ParseCCache(bytes.NewReader([]byte("this is not a ccache")))
	require.Error(t, err)

	_, err = ParseCCache(bytes.NewReader([]byte{0x05}))
	require.Error(t, err)

	// Truncated mid-credential.
	var buf bytes.Buffer
	cc := NewCCache(alicePrincipal())
	cc.SetCredential(sampleTGT(time.Now().Add(time.Hour)))
	require.NoError(t, cc.Write(&buf))
	_, err = ParseCCache(bytes.NewReader(buf.Bytes()[:buf.Len()-4]))
	require.Error(t, err)
}

func TestParseRejectsOversizedFields(t *testing.T) {
	// Hostile counts are rejected up front, before any allocation.
	hugeRealm := []byte{
		0x05, 0x04, // version 4
		0x00, 0x00, // empty header
		0x00, 0x00, 0x00, 0x01, // name type
		0x00, 0x00, 0x00, 0x01, // one component
		0xFF, 0xFF, 0xFF, 0xFF, // realm length
	}
	_, err := ParseCCache(bytes.NewReader(hugeRealm))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")

	hugeComponentCount := []byte{
		0x05, 0x04,
		0x00, 0x00,
		0x00, 0x00, 0x00, 0x01, // name type
		0xFF, 0xFF, 0xFF, 0xFF, // component count
	}
	_, err = ParseCCache(bytes.NewReader(hugeComponentCount))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestParseVersion3(t *testing.T) {
	// Version 3 differs from 4 in the missing header block and in storing
	// the keyblock enctype twice.
	var buf bytes.Buffer
	cc := NewCCache(alicePrincipal())
	cc.SetCredential(sampleTGT(time.Now().Add(time.Hour)))
	require.NoError(t, cc.Write(&buf))

	raw := buf.Bytes()
	v3 := []byte{0x05, 0x03}
	v3 = append(v3, raw[4:]...) // drop v4 header length

	got, err := ParseCCache(bytes.NewReader(doubleKeyEType(v3)))
	require.NoError(t, err)
	assert.Equal(t, uint8(3), got.Version)
	cred, ok := got.Lookup(alicePrincipal(), krbtgtServer())
	require.True(t, ok)
	assert.Equal(t, []byte("der-encoded-ticket"), cred.Ticket)
	assert.Equal(t, uint16(18), cred.Key.KeyType)
}

// doubleKeyEType duplicates the first credential's 16-bit enctype, which
// version 3 streams carry twice.
func doubleKeyEType(stream []byte) []byte {
	// principal encoding length: 4 (type) + 4 (count) + 4+len(realm) +
	// sum(4+len(comp))
	plen := func(p CCachePrincipal) int {
		n := 8 + 4 + len(p.Realm)
		for _, c := range p.Components {
			n += 4 + len(c)
		}
		return n
	}
	// version (2) + default principal + client + server + keytype (2)
	off := 2 + plen(alicePrincipal()) + plen(alicePrincipal()) + plen(krbtgtServer()) + 2
	out := append([]byte{}, stream[:off]...)
	out = append(out, stream[off-2:off]...)
	return append(out, stream[off:]...)
}
