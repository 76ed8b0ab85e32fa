package ticket

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewCache(t *testing.T) {
	end := time.Now().Add(4 * time.Hour).Truncate(time.Second)
	cc := NewCCache(alicePrincipal())
	cc.SetCredential(sampleTGT(end))
	cc.Credentials = append(cc.Credentials, CCacheCredential{
		Client: alicePrincipal(),
		Server: CCachePrincipal{
			NameType:   1,
			NumComp:    2,
			Realm:      "X-CACHECONF:",
			Components: []string{"krb5_ccache_conf_data", "fast_avail"},
		},
	})

	view := ViewCache(cc, ViewOptions{})
	assert.Equal(t, "alice@EXAMPLE.COM", view.DefaultPrincipal)
	require.Len(t, view.Entries, 1)
	assert.Equal(t, "krbtgt/EXAMPLE.COM@EXAMPLE.COM", view.Entries[0].Server)
	assert.False(t, view.Entries[0].Expired)
	assert.False(t, view.Entries[0].Config)

	withConfig := ViewCache(cc, ViewOptions{ShowConfig: true})
	require.Len(t, withConfig.Entries, 2)
	assert.True(t, withConfig.Entries[1].Config)
}

func TestViewCacheMarksExpired(t *testing.T) {
	cc := NewCCache(alicePrincipal())
	cc.SetCredential(sampleTGT(time.Now().Add(-time.Hour)))

	view := ViewCache(cc, ViewOptions{})
	require.Len(t, view.Entries, 1)
	assert.True(t, view.Entries[0].Expired)
	assert.Contains(t, view.String(), "(expired)")
}

func TestCacheViewString(t *testing.T) {
	end := time.Now().Add(4 * time.Hour).Truncate(time.Second)
	cc := NewCCache(alicePrincipal())
	cc.SetCredential(sampleTGT(end))

	out := ViewCache(cc, ViewOptions{}).String()
	assert.Contains(t, out, "Default principal: alice@EXAMPLE.COM")
	assert.Contains(t, out, "Valid starting")
	assert.Contains(t, out, "krbtgt/EXAMPLE.COM@EXAMPLE.COM")
	assert.Contains(t, out, end.Format("2006-01-02 15:04:05"))

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 4) // principal, blank, header, one entry
}

func TestCacheViewStringEmpty(t *testing.T) {
	out := ViewCache(NewCCache(alicePrincipal()), ViewOptions{}).String()
	assert.Contains(t, out, "No credentials cached.")
}
