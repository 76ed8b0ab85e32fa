package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jcmturner/gokrb5/v8/iana/etypeID"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"golang.org/x/term"

	"github.com/tgtkeep/tgtkeep/internal/network"
	"github.com/tgtkeep/tgtkeep/pkg/gss"
	"github.com/tgtkeep/tgtkeep/pkg/tgt"
	"github.com/tgtkeep/tgtkeep/pkg/ticket"
)

// cmdAcquire acquires a TGT for the configured principal. The source
// depends on the flags: a client keytab (-t), a password (-p/-P), or
// whatever the credential cache already holds.
func cmdAcquire(args []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}

	opts, err := acquireOptions()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), network.DefaultTimeout)
	defer cancel()

	var ok bool
	switch {
	case flags.keytab != "":
		ok, err = s.AcquireWithKeytab(ctx, flags.keytab, opts)
		if err != nil {
			return err
		}
	case flags.password != "" || flags.prompt:
		var pw []byte
		pw, err = readPassword(s.Principal().String())
		if err != nil {
			return err
		}
		ok = s.AcquireWithPassword(ctx, pw, opts)
	default:
		ok = s.AcquireFromDefault(ctx, opts)
	}

	if !ok {
		return fmt.Errorf("failed to acquire credentials for %s", s.Principal())
	}

	fmt.Printf("[+] TGT acquired for %s\n", s.Principal())
	if ts := s.ExpiryTimestamp(); ts != "" {
		fmt.Printf("[+] Valid until %s\n", ts)
	}
	return nil
}

// cmdStatus reports whether the principal still holds a usable TGT and
// lists the credential cache contents. Without a principal it only
// lists the cache, like klist.
func cmdStatus(args []string) error {
	path, err := ticket.ResolveRef(flags.ccache)
	if err != nil {
		return err
	}

	if flags.principal != "" {
		s, err := newSession()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), network.DefaultTimeout)
		defer cancel()

		if s.IsExpired(ctx) {
			fmt.Printf("[!] No usable TGT for %s\n", s.Principal())
		} else {
			fmt.Printf("[+] TGT for %s is valid\n", s.Principal())
			if ts := s.ExpiryTimestamp(); ts != "" {
				fmt.Printf("[+] Valid until %s\n", ts)
			}
		}
		fmt.Println()
	}

	cc, err := ticket.LoadCCache(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Printf("[-] No credential cache at %s\n", path)
			return nil
		}
		return err
	}

	fmt.Printf("Ticket cache: FILE:%s\n", path)
	fmt.Print(ticket.ViewCache(cc, ticket.ViewOptions{ShowConfig: flags.all}))
	return nil
}

// cmdDestroy removes the credential cache file.
func cmdDestroy(args []string) error {
	path, err := ticket.ResolveRef(flags.ccache)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Printf("[-] No credential cache at %s\n", path)
			return nil
		}
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}

	fmt.Printf("[+] Removed credential cache %s\n", path)
	return nil
}

// cmdKeytab derives keys from a password and writes them to a keytab.
// An existing keytab at the output path is extended, not replaced, so
// old key versions keep working during a password rollover.
func cmdKeytab(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: keytab <principal> <output path>")
	}
	principal, outPath := args[0], args[1]

	user, realm, found := strings.Cut(principal, "@")
	if !found || user == "" || realm == "" {
		return fmt.Errorf("principal %q must include a realm (user@REALM)", principal)
	}

	if flags.kvno < 1 || flags.kvno > 255 {
		return fmt.Errorf("kvno %d out of range (1-255)", flags.kvno)
	}

	etypes, err := parseETypes(flags.etypes)
	if err != nil {
		return err
	}

	pw, err := readPassword(principal)
	if err != nil {
		return err
	}

	kt := keytab.New()
	if data, err := os.ReadFile(outPath); err == nil {
		if err := kt.Unmarshal(data); err != nil {
			return fmt.Errorf("failed to parse existing keytab %s: %w", outPath, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read %s: %w", outPath, err)
	}

	ts := time.Now()
	for _, etype := range etypes {
		if err := kt.AddEntry(user, strings.ToUpper(realm), string(pw), ts, uint8(flags.kvno), etype); err != nil {
			return fmt.Errorf("failed to add keytab entry: %w", err)
		}
	}

	data, err := kt.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode keytab: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write keytab: %w", err)
	}

	fmt.Printf("[+] Wrote %d entries for %s to %s\n", len(etypes), principal, outPath)
	return nil
}

// cmdProbe checks KDC reachability over TCP. KDC addresses come from
// the command line, the -k flag, or DNS SRV discovery for the realm.
func cmdProbe(args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), network.DefaultTimeout)
	defer cancel()

	var addrs []string
	switch {
	case len(args) > 0:
		for _, a := range args {
			addrs = append(addrs, network.NormalizeKDCAddr(a))
		}
	case flags.kdc != "":
		addrs = []string{network.NormalizeKDCAddr(flags.kdc)}
	case flags.realm != "":
		discovered, err := network.ResolveKDC(ctx, flags.realm, "")
		if err != nil {
			return err
		}
		for _, a := range discovered {
			fmt.Printf("[*] Discovered KDC %s\n", a)
		}
		addrs = discovered
	default:
		return fmt.Errorf("KDC address or realm is required (-k or -r)")
	}

	reachable, err := network.ProbeAny(ctx, addrs, 5*time.Second)
	if err != nil {
		return err
	}

	fmt.Printf("[+] KDC %s is reachable\n", reachable)
	return nil
}

// cmdVersion prints version information.
func cmdVersion(args []string) error {
	fmt.Printf("tgtkeep %s\n", version)
	return nil
}

// newSession builds a Session from the global flags.
func newSession() (*tgt.Session, error) {
	if flags.principal == "" {
		return nil, fmt.Errorf("principal is required (-u)")
	}

	mech, err := newMechanism()
	if err != nil {
		return nil, err
	}

	return tgt.NewSession(tgt.Config{
		Principal: flags.principal,
		CacheRef:  flags.ccache,
		Mechanism: mech,
	})
}

// newMechanism builds the Kerberos mechanism from the global flags.
func newMechanism() (*gss.Krb5, error) {
	return gss.NewKrb5(gss.Krb5Config{
		ConfPath:        flags.krb5conf,
		Realm:           flags.realm,
		KDC:             flags.kdc,
		DNSLookup:       flags.dnsLookup,
		DisablePAFXFAST: flags.noFAST,
	})
}

// acquireOptions translates flags into acquisition options.
func acquireOptions() (*tgt.AcquireOptions, error) {
	usage := gss.CredUsage(flags.usage)
	if !usage.Valid() {
		return nil, fmt.Errorf("invalid credential usage %q (want initiate, accept, or both)", flags.usage)
	}

	return &tgt.AcquireOptions{
		Usage:        usage,
		NoSetDefault: flags.noSetDefault,
		NoOverwrite:  flags.noOverwrite,
	}, nil
}

// readPassword returns the password from the -p flag or prompts for it
// on the terminal without echo.
func readPassword(principal string) ([]byte, error) {
	if flags.password != "" {
		return []byte(flags.password), nil
	}

	fmt.Fprintf(os.Stderr, "Password for %s: ", principal)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}

	return pw, nil
}

// parseETypes maps comma-separated encryption type names to their IDs.
func parseETypes(s string) ([]int32, error) {
	var out []int32
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, ok := etypeID.ETypesByName[name]
		if !ok {
			return nil, fmt.Errorf("unknown encryption type %q", name)
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, errors.New("no encryption types given")
	}
	return out, nil
}
