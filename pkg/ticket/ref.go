package ticket

import (
	"fmt"
	"os"
	"strings"
)

// Cache references follow the MIT convention of an optional TYPE: prefix.
// Only FILE caches are managed here; collection types (DIR, KEYRING, KCM,
// MEMORY) live inside other processes or kernels and cannot be edited as
// plain files.

// ErrUnsupportedCacheType is returned for cache references naming a cache
// type other than FILE.
type ErrUnsupportedCacheType struct {
	Type string
}

func (e *ErrUnsupportedCacheType) Error() string {
	return fmt.Sprintf("unsupported credential cache type %q (only FILE caches are supported)", e.Type)
}

// ResolveRef normalizes a cache reference to a filesystem path.
//
// An empty reference resolves to the process default: the KRB5CCNAME
// environment variable if set, otherwise /tmp/krb5cc_<uid>. A FILE: prefix
// is stripped; a bare path is used as-is. References naming another cache
// type return ErrUnsupportedCacheType.
func ResolveRef(ref string) (string, error) {
	if ref == "" {
		ref = os.Getenv("KRB5CCNAME")
	}
	if ref == "" {
		return DefaultCachePath(), nil
	}

	if i := strings.Index(ref, ":"); i > 1 {
		// A single leading letter before ':' is a Windows drive, not a
		// cache type.
		typ := ref[:i]
		if typ == "FILE" {
			return ref[i+1:], nil
		}
		if isCacheType(typ) {
			return "", &ErrUnsupportedCacheType{Type: typ}
		}
	}

	return ref, nil
}

// DefaultCachePath returns the MIT default FILE cache location for the
// current user.
func DefaultCachePath() string {
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

func isCacheType(s string) bool {
	switch s {
	case "FILE", "DIR", "KEYRING", "KCM", "MEMORY", "MSLSA", "API":
		return true
	}
	return false
}
