package gss

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/iana/etypeID"
	"github.com/jcmturner/gokrb5/v8/iana/nametype"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/messages"
	"github.com/jcmturner/gokrb5/v8/types"

	"github.com/tgtkeep/tgtkeep/internal/logger"
	"github.com/tgtkeep/tgtkeep/pkg/ticket"
)

// Krb5Config configures the gokrb5-backed mechanism.
type Krb5Config struct {
	ConfPath  string // krb5.conf path; defaults to KRB5_CONFIG, then /etc/krb5.conf
	Realm     string // default realm override
	KDC       string // explicit KDC host[:port]; overrides any config file
	DNSLookup bool   // discover KDCs via DNS SRV when synthesizing config

	// DisablePAFXFAST turns off FAST negotiation in the AS exchange.
	// Required against Active Directory KDCs.
	DisablePAFXFAST bool
}

// Krb5 implements Mechanism with the gokrb5 protocol engine and MIT FILE
// credential caches. It is stateless apart from the resolved configuration,
// so one instance can serve many sessions.
type Krb5 struct {
	cfg  Krb5Config
	conf *config.Config
}

var _ Mechanism = (*Krb5)(nil)

// NewKrb5 builds the production mechanism. Kerberos configuration is
// resolved immediately so misconfiguration surfaces at construction rather
// than on first use.
func NewKrb5(cfg Krb5Config) (*Krb5, error) {
	conf, err := resolveConf(cfg)
	if err != nil {
		return nil, err
	}
	return &Krb5{cfg: cfg, conf: conf}, nil
}

// Default returns a mechanism configured purely from the environment.
func Default() (*Krb5, error) {
	return NewKrb5(Krb5Config{})
}

// DefaultRealm returns the realm used for principals given without one.
func (m *Krb5) DefaultRealm() string {
	return m.conf.LibDefaults.DefaultRealm
}

// ParseName validates and parses a textual principal name of the form
// comp1/comp2@REALM. The realm part is optional and defaults to the
// mechanism's default realm.
func (m *Krb5) ParseName(principal string) (Name, error) {
	if principal == "" {
		return Name{}, opError(KindBadName, "parse-name", "empty principal name")
	}
	if strings.ContainsAny(principal, " \t\r\n\x00") {
		return Name{}, opError(KindBadName, "parse-name", "principal %q contains whitespace or control characters", principal)
	}

	namePart := principal
	realm := ""
	if i := strings.Index(principal, "@"); i >= 0 {
		namePart = principal[:i]
		realm = principal[i+1:]
		if realm == "" {
			return Name{}, opError(KindBadName, "parse-name", "principal %q has an empty realm", principal)
		}
		if strings.Contains(realm, "@") {
			return Name{}, opError(KindBadName, "parse-name", "principal %q has multiple realm separators", principal)
		}
	}
	if namePart == "" {
		return Name{}, opError(KindBadName, "parse-name", "principal %q has no name part", principal)
	}

	comps := strings.Split(namePart, "/")
	for _, c := range comps {
		if c == "" {
			return Name{}, opError(KindBadName, "parse-name", "principal %q has an empty name component", principal)
		}
	}

	if realm == "" {
		realm = m.conf.LibDefaults.DefaultRealm
	}
	if realm == "" {
		return Name{}, opError(KindBadName, "parse-name", "principal %q has no realm and no default realm is configured", principal)
	}

	return Name{
		Principal: types.PrincipalName{
			NameType:   nametype.KRB_NT_PRINCIPAL,
			NameString: comps,
		},
		Realm: realm,
	}, nil
}

// AcquireFromStore obtains credentials for name from the store's cache.
// When the cache holds no usable TGT and the store names a client keytab,
// a fresh TGT is minted through the keytab and installed into the cache,
// matching the MIT client-keytab refresh behavior. Accept usage is served
// from keytab key material alone and never touches the network.
func (m *Krb5) AcquireFromStore(ctx context.Context, name Name, usage CredUsage, store Store) (*Credentials, error) {
	if err := ctx.Err(); err != nil {
		return nil, opError(KindProtocol, "acquire", "context done before acquisition: %v", err)
	}
	if name.IsZero() {
		return nil, opError(KindBadName, "acquire", "no name to acquire credentials for")
	}
	if usage == "" {
		usage = UsageInitiate
	}
	if !usage.Valid() {
		return nil, opError(KindProtocol, "acquire", "unknown credential usage %q", usage)
	}

	if usage == UsageAccept {
		return m.acquireAcceptor(name, store)
	}

	path, err := ticket.ResolveRef(store.CacheRef)
	if err != nil {
		return nil, &Error{Kind: KindStoreUnavailable, Op: "acquire", Err: err}
	}

	creds, cacheErr := m.credsFromCache(path, name, usage)
	if cacheErr == nil {
		return creds, nil
	}

	if store.ClientKeytab == "" {
		return nil, cacheErr
	}

	logger.Debug("cache cannot serve, initiating from client keytab",
		"principal", name.String(), "cache", path, "reason", cacheErr)

	fresh, err := m.initFromKeytab(ctx, name, store.ClientKeytab, usage)
	if err != nil {
		return nil, err
	}
	if err := m.installCredentials(fresh, path); err != nil {
		return nil, &Error{Kind: KindStoreUnavailable, Op: "acquire",
			Err: fmt.Errorf("cannot install fresh credentials into %s: %w", path, err)}
	}
	return fresh, nil
}

// AcquireWithPassword obtains fresh initiate credentials for name through
// an AS exchange. The returned handle lives only in memory; persisting it
// is Store's job.
func (m *Krb5) AcquireWithPassword(ctx context.Context, name Name, password []byte, usage CredUsage) (*Credentials, error) {
	if err := ctx.Err(); err != nil {
		return nil, opError(KindProtocol, "acquire", "context done before acquisition: %v", err)
	}
	if name.IsZero() {
		return nil, opError(KindBadName, "acquire", "no name to acquire credentials for")
	}
	if usage == "" {
		usage = UsageInitiate
	}
	if !usage.Valid() {
		return nil, opError(KindProtocol, "acquire", "unknown credential usage %q", usage)
	}
	if usage == UsageAccept {
		return nil, opError(KindProtocol, "acquire", "password acquisition yields initiate credentials only")
	}
	if len(password) == 0 {
		return nil, opError(KindInvalidCredentials, "acquire", "empty password for %s", name)
	}

	cl := client.NewWithPassword(userString(name), name.Realm, string(password), m.conf, m.settings()...)
	defer cl.Destroy()

	creds, err := m.requestTGT(cl, name, usage)
	if err != nil {
		return nil, err
	}
	logger.Debug("acquired TGT with password", "principal", name.String(), "expires", creds.EndTime)
	return creds, nil
}

// Inquire reports the identity and remaining lifetime of a handle.
func (m *Krb5) Inquire(creds *Credentials) (*CredInfo, error) {
	if creds == nil {
		return nil, opError(KindInvalidCredentials, "inquire", "nil credential handle")
	}

	info := &CredInfo{Name: creds.Name, Usage: creds.Usage}
	if creds.EndTime.IsZero() {
		// Acceptor credentials have no expiry.
		return info, nil
	}

	remaining := time.Until(creds.EndTime)
	if remaining <= 0 {
		return nil, opError(KindExpiredCredentials, "inquire",
			"credentials for %s expired at %s", creds.Name, creds.EndTime.Format(time.RFC3339))
	}

	info.Expiry = creds.EndTime
	info.TimeRemaining = remaining
	return info, nil
}

// Store persists a credential handle into the store's cache.
//
// FILE caches hold a single default principal in their header, so
// SetDefault is implicit: a fresh cache is always owned by the stored
// identity. An existing cache owned by another principal is only replaced
// when Overwrite is set; without it the store fails with a conflict.
func (m *Krb5) Store(ctx context.Context, creds *Credentials, store Store, opts StoreOptions) error {
	if err := ctx.Err(); err != nil {
		return opError(KindStoreUnavailable, "store", "context done before store: %v", err)
	}
	if creds == nil {
		return opError(KindInvalidCredentials, "store", "nil credential handle")
	}
	if creds.Usage == UsageAccept {
		return opError(KindStoreUnavailable, "store", "acceptor credentials cannot be stored")
	}
	if len(creds.Ticket) == 0 || creds.EndTime.IsZero() {
		return opError(KindInvalidCredentials, "store", "credential handle for %s is incomplete", creds.Name)
	}
	if !creds.EndTime.After(time.Now()) {
		return opError(KindExpiredCredentials, "store",
			"credentials for %s expired at %s", creds.Name, creds.EndTime.Format(time.RFC3339))
	}

	path, err := ticket.ResolveRef(store.CacheRef)
	if err != nil {
		return &Error{Kind: KindStoreUnavailable, Op: "store", Err: err}
	}

	owner := ticket.PrincipalFromName(creds.Name.Principal, creds.Name.Realm)
	entry := credentialFromHandle(creds)

	cc, loadErr := ticket.LoadCCache(path)
	switch {
	case loadErr == nil && cc.DefaultPrinc.Equal(owner):
		if _, exists := cc.Lookup(entry.Client, entry.Server); exists && !opts.Overwrite {
			return opError(KindDuplicateElement, "store", "cache %s already holds a TGT for %s", path, creds.Name)
		}
		cc.SetCredential(entry)
	case loadErr == nil:
		if !opts.Overwrite {
			return opError(KindStoreConflict, "store", "cache %s belongs to %s", path, cc.DefaultPrinc)
		}
		cc = ticket.NewCCache(owner)
		cc.SetCredential(entry)
	case errors.Is(loadErr, os.ErrNotExist):
		cc = ticket.NewCCache(owner)
		cc.SetCredential(entry)
	default:
		if !opts.Overwrite {
			return &Error{Kind: KindStoreConflict, Op: "store",
				Err: fmt.Errorf("existing cache %s is unreadable: %w", path, loadErr)}
		}
		cc = ticket.NewCCache(owner)
		cc.SetCredential(entry)
	}

	if err := ticket.SaveCCache(cc, path); err != nil {
		return &Error{Kind: KindStoreUnavailable, Op: "store", Err: err}
	}

	logger.Debug("stored credentials", "principal", creds.Name.String(), "cache", path, "expires", creds.EndTime)
	return nil
}

// credsFromCache reads the TGT for name out of the cache file at path.
func (m *Krb5) credsFromCache(path string, name Name, usage CredUsage) (*Credentials, error) {
	cc, err := ticket.LoadCCache(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, opError(KindMissingCredentials, "acquire", "credential cache %s does not exist", path)
		}
		return nil, &Error{Kind: KindInvalidCredentials, Op: "acquire",
			Err: fmt.Errorf("credential cache %s is unreadable: %w", path, err)}
	}

	owner := ticket.PrincipalFromName(name.Principal, name.Realm)
	cred, ok := cc.Lookup(owner, krbtgtPrincipal(name.Realm))
	if !ok {
		return nil, opError(KindMissingCredentials, "acquire", "no TGT for %s in cache %s", name, path)
	}
	if cred.Expired(time.Now()) {
		return nil, opError(KindExpiredCredentials, "acquire",
			"TGT for %s expired at %s", name, time.Unix(int64(cred.EndTime), 0).Format(time.RFC3339))
	}

	return &Credentials{
		Name:      name,
		Usage:     usage,
		Ticket:    cred.Ticket,
		Key:       cred.SessionKey(),
		AuthTime:  time.Unix(int64(cred.AuthTime), 0),
		StartTime: time.Unix(int64(cred.StartTime), 0),
		EndTime:   time.Unix(int64(cred.EndTime), 0),
		RenewTill: time.Unix(int64(cred.RenewTill), 0),
		Flags:     cred.TicketFlags,
	}, nil
}

// initFromKeytab performs the AS exchange with keys from the keytab.
func (m *Krb5) initFromKeytab(ctx context.Context, name Name, ktPath string, usage CredUsage) (*Credentials, error) {
	if err := ctx.Err(); err != nil {
		return nil, opError(KindProtocol, "acquire", "context done before keytab init: %v", err)
	}

	kt, err := loadKeytab(ktPath)
	if err != nil {
		return nil, err
	}

	cl := client.NewWithKeytab(userString(name), name.Realm, kt, m.conf, m.settings()...)
	defer cl.Destroy()

	creds, err := m.requestTGT(cl, name, usage)
	if err != nil {
		return nil, err
	}
	logger.Debug("acquired TGT from keytab", "principal", name.String(), "expires", creds.EndTime)
	return creds, nil
}

// acquireAcceptor builds acceptor credentials. Acceptors need no initial
// tickets, only keytab key material for the name, so this never touches
// the network and the resulting handle carries no expiry.
func (m *Krb5) acquireAcceptor(name Name, store Store) (*Credentials, error) {
	if store.ClientKeytab == "" {
		return nil, opError(KindMissingCredentials, "acquire",
			"acceptor credentials for %s require a keytab in the store", name)
	}
	kt, err := loadKeytab(store.ClientKeytab)
	if err != nil {
		return nil, err
	}
	if !keytabHasKey(kt, name) {
		return nil, opError(KindMissingCredentials, "acquire",
			"keytab %s holds no key for %s", store.ClientKeytab, name)
	}
	return &Credentials{Name: name, Usage: UsageAccept}, nil
}

// requestTGT authenticates the client through an explicit AS exchange
// and returns the minted TGT as a portable handle. The engine's own
// login flow buries the ticket and its validity times in an unexported
// session store; running the exchange directly keeps them in hand. The
// exchange negotiates pre-authentication and chases realm referrals on
// its own.
func (m *Krb5) requestTGT(cl *client.Client, name Name, usage CredUsage) (*Credentials, error) {
	asReq, err := messages.NewASReqForTGT(name.Realm, cl.Config, cl.Credentials.CName())
	if err != nil {
		return nil, opError(KindProtocol, "acquire", "failed to build TGT request: %v", err)
	}

	asRep, err := cl.ASExchange(name.Realm, asReq, 0)
	if err != nil {
		return nil, classifyEngineError("acquire", err)
	}

	return credentialsFromASRep(name, usage, asRep)
}

// credentialsFromASRep converts a decrypted AS reply into a credential
// handle. A reply without an explicit start time starts at auth time.
func credentialsFromASRep(name Name, usage CredUsage, asRep messages.ASRep) (*Credentials, error) {
	der, err := asRep.Ticket.Marshal()
	if err != nil {
		return nil, opError(KindProtocol, "acquire", "failed to encode TGT: %v", err)
	}

	enc := asRep.DecryptedEncPart
	start := enc.StartTime
	if start.IsZero() {
		start = enc.AuthTime
	}

	return &Credentials{
		Name:      name,
		Usage:     usage,
		Ticket:    der,
		Key:       enc.Key,
		AuthTime:  enc.AuthTime,
		StartTime: start,
		EndTime:   enc.EndTime,
		RenewTill: enc.RenewTill,
	}, nil
}

// installCredentials merges a fresh TGT into the cache file at path,
// preserving unrelated entries when the cache already belongs to the same
// principal.
func (m *Krb5) installCredentials(creds *Credentials, path string) error {
	owner := ticket.PrincipalFromName(creds.Name.Principal, creds.Name.Realm)
	cc, err := ticket.LoadCCache(path)
	if err != nil || !cc.DefaultPrinc.Equal(owner) {
		cc = ticket.NewCCache(owner)
	}
	cc.SetCredential(credentialFromHandle(creds))
	return ticket.SaveCCache(cc, path)
}

// credentialFromHandle converts a handle to its ccache representation.
func credentialFromHandle(creds *Credentials) ticket.CCacheCredential {
	return ticket.NewCredential(
		ticket.PrincipalFromName(creds.Name.Principal, creds.Name.Realm),
		krbtgtPrincipal(creds.Name.Realm),
		creds.Key,
		creds.AuthTime, creds.StartTime, creds.EndTime, creds.RenewTill,
		creds.Flags,
		creds.Ticket,
	)
}

// krbtgtPrincipal names the ticket-granting service of a realm.
func krbtgtPrincipal(realm string) ticket.CCachePrincipal {
	return ticket.CCachePrincipal{
		NameType:   uint32(nametype.KRB_NT_SRV_INST),
		NumComp:    2,
		Realm:      realm,
		Components: []string{"krbtgt", realm},
	}
}

// loadKeytab reads and parses a keytab file.
func loadKeytab(path string) (*keytab.Keytab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, opError(KindMissingCredentials, "acquire", "keytab %s does not exist", path)
		}
		return nil, &Error{Kind: KindStoreUnavailable, Op: "acquire",
			Err: fmt.Errorf("failed to read keytab %s: %w", path, err)}
	}

	kt := keytab.New()
	if err := kt.Unmarshal(data); err != nil {
		return nil, &Error{Kind: KindInvalidCredentials, Op: "acquire",
			Err: fmt.Errorf("failed to parse keytab %s: %w", path, err)}
	}
	return kt, nil
}

// keytabHasKey probes the keytab for any usable key for the name.
func keytabHasKey(kt *keytab.Keytab, name Name) bool {
	etypes := []int32{
		etypeID.AES256_CTS_HMAC_SHA1_96,
		etypeID.AES128_CTS_HMAC_SHA1_96,
		etypeID.RC4_HMAC,
		etypeID.DES3_CBC_SHA1_KD,
	}
	for _, etype := range etypes {
		if _, _, err := kt.GetEncryptionKey(name.Principal, name.Realm, 0, etype); err == nil {
			return true
		}
	}
	return false
}

func userString(name Name) string {
	return strings.Join(name.Principal.NameString, "/")
}

func (m *Krb5) settings() []func(*client.Settings) {
	return []func(*client.Settings){
		client.DisablePAFXFAST(m.cfg.DisablePAFXFAST),
	}
}
