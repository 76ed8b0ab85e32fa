package gss

import (
	"context"
	"strings"
	"time"

	"github.com/jcmturner/gokrb5/v8/types"
)

// CredUsage states what a credential may be used for, following the GSS-API
// convention: initiating security contexts (a client identity), accepting
// them (a service identity), or both.
type CredUsage string

const (
	UsageInitiate CredUsage = "initiate"
	UsageAccept   CredUsage = "accept"
	UsageBoth     CredUsage = "both"
)

// Valid reports whether the usage is one of the three defined values.
func (u CredUsage) Valid() bool {
	switch u {
	case UsageInitiate, UsageAccept, UsageBoth:
		return true
	}
	return false
}

// Name is a parsed, immutable principal name. The realm is always
// populated; names given without one get the mechanism's default realm at
// parse time.
type Name struct {
	Principal types.PrincipalName
	Realm     string
}

// IsZero reports whether the name is unset.
func (n Name) IsZero() bool {
	return len(n.Principal.NameString) == 0 && n.Realm == ""
}

// String renders the name as comp1/comp2@REALM.
func (n Name) String() string {
	return strings.Join(n.Principal.NameString, "/") + "@" + n.Realm
}

// Store describes where a mechanism finds and places credentials: an
// optional client keytab for non-interactive initiation and an optional
// credential cache reference. The zero value means the process defaults.
type Store struct {
	ClientKeytab string
	CacheRef     string
}

// Credentials is an acquired credential handle: the client identity, the
// raw ticket-granting ticket, its session key and its validity times.
// Callers outside this package should treat the handle as opaque and read
// it through Inquire.
type Credentials struct {
	Name  Name
	Usage CredUsage

	Ticket []byte // DER-encoded TGT
	Key    types.EncryptionKey

	AuthTime  time.Time
	StartTime time.Time
	EndTime   time.Time // zero means indefinite (acceptor credentials)
	RenewTill time.Time
	Flags     uint32
}

// CredInfo is the result of inquiring a credential handle.
type CredInfo struct {
	Name          Name
	Usage         CredUsage
	Expiry        time.Time     // zero means indefinite
	TimeRemaining time.Duration // zero when indefinite
}

// StoreOptions controls how credentials are placed into a store.
type StoreOptions struct {
	Usage      CredUsage
	SetDefault bool // make the stored identity the store's default
	Overwrite  bool // replace an existing credential for the same identity
}

// Mechanism is the security-mechanism boundary. Implementations must be
// safe for use from a single goroutine at a time; the production Krb5
// implementation is stateless apart from its resolved configuration.
type Mechanism interface {
	// ParseName validates and parses a textual principal name.
	ParseName(principal string) (Name, error)

	// AcquireFromStore obtains credentials for name from the given store,
	// minting fresh ones through the store's client keytab when the cached
	// credentials are missing or expired.
	AcquireFromStore(ctx context.Context, name Name, usage CredUsage, store Store) (*Credentials, error)

	// AcquireWithPassword obtains fresh credentials for name using the
	// Kerberos mechanism only. The returned handle is not persisted.
	AcquireWithPassword(ctx context.Context, name Name, password []byte, usage CredUsage) (*Credentials, error)

	// Inquire reports the identity and remaining lifetime of a handle.
	// Expired handles yield an error of kind KindExpiredCredentials.
	Inquire(creds *Credentials) (*CredInfo, error)

	// Store persists a credential handle into the given store.
	Store(ctx context.Context, creds *Credentials, store Store, opts StoreOptions) error
}
