package ticket

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jcmturner/gokrb5/v8/types"
)

// MIT Kerberos Credential Cache Format (.ccache)
//
// The ccache format is a binary format (not ASN.1) with big-endian byte
// order that stores a default principal plus an array of credentials, each
// carrying the session key, validity times and the raw ticket.
//
// File structure:
//   - Version (2 bytes): 0x0503 or 0x0504
//   - Header fields (version 4 only)
//   - Default principal
//   - Credentials until EOF
//
// MIT tools also store pseudo-credentials with the reserved server realm
// "X-CACHECONF:" to hold cache configuration; those are preserved on
// rewrite but excluded from ticket lookups.

// configRealm marks MIT cache-configuration pseudo-credentials.
const configRealm = "X-CACHECONF:"

// CCache represents a MIT Kerberos credential cache.
type CCache struct {
	Version      uint8
	Header       CCacheHeader
	DefaultPrinc CCachePrincipal
	Credentials  []CCacheCredential
}

// CCacheHeader contains ccache header information.
type CCacheHeader struct {
	HeaderLen uint16
	Fields    []CCacheHeaderField
}

// CCacheHeaderField is a header field.
type CCacheHeaderField struct {
	Tag    uint16
	Length uint16
	Data   []byte
}

// CCachePrincipal represents a principal in ccache format.
type CCachePrincipal struct {
	NameType   uint32
	NumComp    uint32
	Realm      string
	Components []string
}

// CCacheCredential represents a single credential in the cache.
type CCacheCredential struct {
	Client       CCachePrincipal
	Server       CCachePrincipal
	Key          CCacheKeyBlock
	AuthTime     uint32
	StartTime    uint32
	EndTime      uint32
	RenewTill    uint32
	IsSKey       uint8
	TicketFlags  uint32
	Addresses    []CCacheAddress
	AuthData     []CCacheAuthData
	Ticket       []byte // Raw DER ticket bytes
	SecondTicket []byte
}

// CCacheKeyBlock represents an encryption key.
type CCacheKeyBlock struct {
	KeyType uint16
	Key     []byte
}

// CCacheAddress represents a host address.
type CCacheAddress struct {
	AddrType uint16
	Address  []byte
}

// CCacheAuthData represents authorization data.
type CCacheAuthData struct {
	ADType uint16
	Data   []byte
}

// ccache version constants
const (
	CCacheVersion3 = 0x0503
	CCacheVersion4 = 0x0504
)

// Sanity limits for length-prefixed fields in untrusted cache files
// (max 10MB per field). Real caches stay orders of magnitude smaller.
const (
	maxFieldLen       = 10 * 1024 * 1024
	maxPrincipalComps = 256
)

// NewCCache creates an empty version 4 cache owned by the given principal.
func NewCCache(defaultPrinc CCachePrincipal) *CCache {
	return &CCache{
		Version:      4,
		DefaultPrinc: defaultPrinc,
	}
}

// PrincipalFromName converts a gokrb5 principal name plus realm to ccache form.
func PrincipalFromName(pn types.PrincipalName, realm string) CCachePrincipal {
	return CCachePrincipal{
		NameType:   uint32(pn.NameType),
		NumComp:    uint32(len(pn.NameString)),
		Realm:      realm,
		Components: pn.NameString,
	}
}

// Name returns the gokrb5 form of the principal.
func (p CCachePrincipal) Name() types.PrincipalName {
	return types.PrincipalName{
		NameType:   int32(p.NameType),
		NameString: p.Components,
	}
}

// String renders the principal as comp1/comp2@REALM.
func (p CCachePrincipal) String() string {
	return strings.Join(p.Components, "/") + "@" + p.Realm
}

// Equal reports whether two principals name the same identity. The name
// type is not significant for comparison, matching MIT semantics.
func (p CCachePrincipal) Equal(o CCachePrincipal) bool {
	if p.Realm != o.Realm || len(p.Components) != len(o.Components) {
		return false
	}
	for i := range p.Components {
		if p.Components[i] != o.Components[i] {
			return false
		}
	}
	return true
}

// SessionKey returns the credential's session key in gokrb5 form.
func (c *CCacheCredential) SessionKey() types.EncryptionKey {
	return types.EncryptionKey{
		KeyType:  int32(c.Key.KeyType),
		KeyValue: c.Key.Key,
	}
}

// IsConfigEntry reports whether the credential is an MIT cache-configuration
// pseudo-entry rather than a ticket.
func (c *CCacheCredential) IsConfigEntry() bool {
	return c.Server.Realm == configRealm
}

// Expired reports whether the credential's end time has passed.
func (c *CCacheCredential) Expired(now time.Time) bool {
	return !now.Before(time.Unix(int64(c.EndTime), 0))
}

// NewCredential builds a ccache credential from gokrb5 material.
func NewCredential(client, server CCachePrincipal, key types.EncryptionKey, authTime, startTime, endTime, renewTill time.Time, flags uint32, ticketDER []byte) CCacheCredential {
	return CCacheCredential{
		Client: client,
		Server: server,
		Key: CCacheKeyBlock{
			KeyType: uint16(key.KeyType),
			Key:     key.KeyValue,
		},
		AuthTime:    unixOrZero(authTime),
		StartTime:   unixOrZero(startTime),
		EndTime:     unixOrZero(endTime),
		RenewTill:   unixOrZero(renewTill),
		TicketFlags: flags,
		Ticket:      ticketDER,
	}
}

func unixOrZero(t time.Time) uint32 {
	if t.IsZero() {
		return 0
	}
	return uint32(t.Unix())
}

// Lookup returns the credential matching the client/server pair, skipping
// configuration pseudo-entries.
func (cc *CCache) Lookup(client, server CCachePrincipal) (*CCacheCredential, bool) {
	for i := range cc.Credentials {
		c := &cc.Credentials[i]
		if c.IsConfigEntry() {
			continue
		}
		if c.Client.Equal(client) && c.Server.Equal(server) {
			return c, true
		}
	}
	return nil, false
}

// SetCredential stores a credential, replacing any existing credential for
// the same client/server pair. Reports whether an entry was replaced.
func (cc *CCache) SetCredential(cred CCacheCredential) bool {
	for i := range cc.Credentials {
		c := &cc.Credentials[i]
		if c.IsConfigEntry() {
			continue
		}
		if c.Client.Equal(cred.Client) && c.Server.Equal(cred.Server) {
			cc.Credentials[i] = cred
			return true
		}
	}
	cc.Credentials = append(cc.Credentials, cred)
	return false
}

// LoadCCache reads a ccache file from disk.
func LoadCCache(path string) (*CCache, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ccache: %w", err)
	}
	defer f.Close()

	return ParseCCache(f)
}

// ParseCCache parses a ccache from a reader.
func ParseCCache(r io.Reader) (*CCache, error) {
	cc := &CCache{}

	// Version is 2 bytes, big-endian
	var versionBytes [2]byte
	if _, err := io.ReadFull(r, versionBytes[:]); err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	version := binary.BigEndian.Uint16(versionBytes[:])

	if version != CCacheVersion3 && version != CCacheVersion4 {
		return nil, fmt.Errorf("unsupported ccache version: 0x%04x", version)
	}
	cc.Version = uint8(version & 0xFF)

	// Version 4 has header fields
	if version == CCacheVersion4 {
		if err := cc.readHeader(r); err != nil {
			return nil, fmt.Errorf("failed to read header: %w", err)
		}
	}

	princ, err := readPrincipal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read default principal: %w", err)
	}
	cc.DefaultPrinc = *princ

	// Credentials until EOF
	for {
		cred, err := readCredential(r, version)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read credential: %w", err)
		}
		cc.Credentials = append(cc.Credentials, *cred)
	}

	return cc, nil
}

// SaveCCache writes the cache to disk atomically with owner-only permissions.
// The temporary file lands in the target directory so the rename stays on
// one filesystem.
func SaveCCache(cc *CCache, path string) error {
	dir := filepath.Dir(path)

	f, err := os.CreateTemp(dir, ".ccache-*")
	if err != nil {
		return fmt.Errorf("failed to create ccache: %w", err)
	}
	tmp := f.Name()

	if err := f.Chmod(0600); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to set ccache permissions: %w", err)
	}

	if err := cc.Write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write ccache: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write ccache: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace ccache: %w", err)
	}
	return nil
}

// Write writes the ccache to a writer in version 4 format.
func (cc *CCache) Write(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, uint16(CCacheVersion4)); err != nil {
		return err
	}

	// Empty v4 header
	if err := binary.Write(w, binary.BigEndian, uint16(0)); err != nil {
		return err
	}

	if err := writePrincipal(w, &cc.DefaultPrinc); err != nil {
		return err
	}

	for _, cred := range cc.Credentials {
		if err := writeCredential(w, &cred); err != nil {
			return err
		}
	}

	return nil
}

func (cc *CCache) readHeader(r io.Reader) error {
	var headerLen uint16
	if err := binary.Read(r, binary.BigEndian, &headerLen); err != nil {
		return err
	}
	cc.Header.HeaderLen = headerLen

	// Read and discard header fields
	headerData := make([]byte, headerLen)
	_, err := io.ReadFull(r, headerData)
	return err
}

func readPrincipal(r io.Reader) (*CCachePrincipal, error) {
	p := &CCachePrincipal{}

	if err := binary.Read(r, binary.BigEndian, &p.NameType); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &p.NumComp); err != nil {
		return nil, err
	}
	if p.NumComp > maxPrincipalComps {
		return nil, fmt.Errorf("principal component count too large: %d", p.NumComp)
	}

	realm, err := readCountedString(r)
	if err != nil {
		return nil, err
	}
	p.Realm = realm

	p.Components = make([]string, p.NumComp)
	for i := uint32(0); i < p.NumComp; i++ {
		comp, err := readCountedString(r)
		if err != nil {
			return nil, err
		}
		p.Components[i] = comp
	}

	return p, nil
}

func writePrincipal(w io.Writer, p *CCachePrincipal) error {
	if err := binary.Write(w, binary.BigEndian, p.NameType); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(p.Components))); err != nil {
		return err
	}
	if err := writeCountedString(w, p.Realm); err != nil {
		return err
	}
	for _, comp := range p.Components {
		if err := writeCountedString(w, comp); err != nil {
			return err
		}
	}
	return nil
}

// readCredential parses one credential. A clean end of stream returns
// io.EOF; a stream ending mid-credential is corrupt and returns
// io.ErrUnexpectedEOF so truncated caches are not silently shortened.
func readCredential(r io.Reader, version uint16) (*CCacheCredential, error) {
	cr := &countingReader{r: r}
	cred, err := readCredentialBody(cr, version)
	if err != nil {
		if err == io.EOF {
			if cr.n == 0 {
				return nil, io.EOF
			}
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return cred, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func readCredentialBody(r io.Reader, version uint16) (*CCacheCredential, error) {
	c := &CCacheCredential{}

	client, err := readPrincipal(r)
	if err != nil {
		return nil, err
	}
	c.Client = *client

	server, err := readPrincipal(r)
	if err != nil {
		return nil, err
	}
	c.Server = *server

	if err := binary.Read(r, binary.BigEndian, &c.Key.KeyType); err != nil {
		return nil, err
	}
	if version == CCacheVersion3 {
		// Version 3 stores the 16-bit enctype twice; the second copy wins.
		if err := binary.Read(r, binary.BigEndian, &c.Key.KeyType); err != nil {
			return nil, err
		}
	}
	key, err := readCountedBytes(r)
	if err != nil {
		return nil, err
	}
	c.Key.Key = key

	if err := binary.Read(r, binary.BigEndian, &c.AuthTime); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &c.StartTime); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &c.EndTime); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &c.RenewTill); err != nil {
		return nil, err
	}

	if err := binary.Read(r, binary.BigEndian, &c.IsSKey); err != nil {
		return nil, err
	}

	if err := binary.Read(r, binary.BigEndian, &c.TicketFlags); err != nil {
		return nil, err
	}

	var numAddr uint32
	if err := binary.Read(r, binary.BigEndian, &numAddr); err != nil {
		return nil, err
	}
	for i := uint32(0); i < numAddr; i++ {
		addr, err := readAddress(r)
		if err != nil {
			return nil, err
		}
		c.Addresses = append(c.Addresses, *addr)
	}

	var numAuthData uint32
	if err := binary.Read(r, binary.BigEndian, &numAuthData); err != nil {
		return nil, err
	}
	for i := uint32(0); i < numAuthData; i++ {
		ad, err := readAuthData(r)
		if err != nil {
			return nil, err
		}
		c.AuthData = append(c.AuthData, *ad)
	}

	ticket, err := readCountedBytes(r)
	if err != nil {
		return nil, err
	}
	c.Ticket = ticket

	secondTicket, err := readCountedBytes(r)
	if err != nil {
		return nil, err
	}
	c.SecondTicket = secondTicket

	return c, nil
}

func writeCredential(w io.Writer, c *CCacheCredential) error {
	if err := writePrincipal(w, &c.Client); err != nil {
		return err
	}
	if err := writePrincipal(w, &c.Server); err != nil {
		return err
	}

	// Keyblock in v4 format
	if err := binary.Write(w, binary.BigEndian, c.Key.KeyType); err != nil {
		return err
	}
	if err := writeCountedBytes(w, c.Key.Key); err != nil {
		return err
	}

	if err := binary.Write(w, binary.BigEndian, c.AuthTime); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, c.StartTime); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, c.EndTime); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, c.RenewTill); err != nil {
		return err
	}

	if err := binary.Write(w, binary.BigEndian, c.IsSKey); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, c.TicketFlags); err != nil {
		return err
	}

	if err := binary.Write(w, binary.BigEndian, uint32(len(c.Addresses))); err != nil {
		return err
	}
	for _, a := range c.Addresses {
		if err := binary.Write(w, binary.BigEndian, a.AddrType); err != nil {
			return err
		}
		if err := writeCountedBytes(w, a.Address); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.BigEndian, uint32(len(c.AuthData))); err != nil {
		return err
	}
	for _, ad := range c.AuthData {
		if err := binary.Write(w, binary.BigEndian, ad.ADType); err != nil {
			return err
		}
		if err := writeCountedBytes(w, ad.Data); err != nil {
			return err
		}
	}

	if err := writeCountedBytes(w, c.Ticket); err != nil {
		return err
	}
	if err := writeCountedBytes(w, c.SecondTicket); err != nil {
		return err
	}

	return nil
}

func readAddress(r io.Reader) (*CCacheAddress, error) {
	a := &CCacheAddress{}
	if err := binary.Read(r, binary.BigEndian, &a.AddrType); err != nil {
		return nil, err
	}
	addr, err := readCountedBytes(r)
	if err != nil {
		return nil, err
	}
	a.Address = addr
	return a, nil
}

func readAuthData(r io.Reader) (*CCacheAuthData, error) {
	ad := &CCacheAuthData{}
	if err := binary.Read(r, binary.BigEndian, &ad.ADType); err != nil {
		return nil, err
	}
	data, err := readCountedBytes(r)
	if err != nil {
		return nil, err
	}
	ad.Data = data
	return ad, nil
}

func readCountedString(r io.Reader) (string, error) {
	data, err := readCountedBytes(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func writeCountedString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readCountedBytes(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length > maxFieldLen {
		return nil, fmt.Errorf("counted field too large: %d bytes", length)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

func writeCountedBytes(w io.Writer, data []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}
