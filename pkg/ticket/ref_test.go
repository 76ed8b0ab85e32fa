package ticket

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRef(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"/tmp/krb5cc_explicit", "/tmp/krb5cc_explicit"},
		{"FILE:/tmp/krb5cc_prefixed", "/tmp/krb5cc_prefixed"},
		{"relative/ccache", "relative/ccache"},
		// A single leading letter before ':' is a Windows drive, not a
		// cache type.
		{`C:\temp\ccache`, `C:\temp\ccache`},
		// Unknown prefixes are treated as plain paths.
		{"/tmp/odd:name", "/tmp/odd:name"},
	}
	for _, tc := range tests {
		t.Run(tc.ref, func(t *testing.T) {
			got, err := ResolveRef(tc.ref)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveRefUnsupportedTypes(t *testing.T) {
	for _, ref := range []string{"DIR:/tmp/ccdir", "KEYRING:persistent:1000", "KCM:1000", "MEMORY:x", "MSLSA:", "API:x"} {
		t.Run(ref, func(t *testing.T) {
			_, err := ResolveRef(ref)
			require.Error(t, err)

			var unsupported *ErrUnsupportedCacheType
			require.True(t, errors.As(err, &unsupported))
			assert.NotEqual(t, "FILE", unsupported.Type)
		})
	}
}

func TestResolveRefDefault(t *testing.T) {
	t.Setenv("KRB5CCNAME", "/tmp/krb5cc_from_env")
	got, err := ResolveRef("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/krb5cc_from_env", got)

	t.Setenv("KRB5CCNAME", "FILE:/tmp/krb5cc_typed_env")
	got, err = ResolveRef("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/krb5cc_typed_env", got)

	t.Setenv("KRB5CCNAME", "")
	got, err = ResolveRef("")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid()), got)
	assert.Equal(t, DefaultCachePath(), got)
}
