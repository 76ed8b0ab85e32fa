package gss

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jcmturner/gokrb5/v8/config"

	"github.com/tgtkeep/tgtkeep/internal/logger"
	"github.com/tgtkeep/tgtkeep/internal/network"
)

// resolveConf loads the Kerberos configuration for the mechanism.
//
// Resolution order: the explicit path, then KRB5_CONFIG, then
// /etc/krb5.conf. When no file exists, a minimal configuration is
// synthesized from the configured realm and KDC; without either, clients
// on hosts with no krb5.conf at all would have nothing to go on.
func resolveConf(cfg Krb5Config) (*config.Config, error) {
	path := cfg.ConfPath
	if path == "" {
		path = os.Getenv("KRB5_CONFIG")
	}
	if path == "" {
		path = "/etc/krb5.conf"
	}

	// Realm and KDC both explicit: no file has anything to contribute.
	if cfg.Realm != "" && cfg.KDC != "" && cfg.ConfPath == "" {
		return synthesizeConf(cfg, cfg.Realm)
	}

	if _, err := os.Stat(path); err == nil {
		conf, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load krb5 config %s: %w", path, err)
		}
		if cfg.Realm != "" {
			conf.LibDefaults.DefaultRealm = cfg.Realm
		}
		if cfg.KDC == "" {
			logger.Debug("loaded krb5 config", "path", path)
			return conf, nil
		}
		// An explicit KDC overrides the file's realm section, but the
		// file can still supply the default realm.
		realm := conf.LibDefaults.DefaultRealm
		if realm == "" {
			return nil, fmt.Errorf("explicit KDC %s given but no realm configured", cfg.KDC)
		}
		return synthesizeConf(cfg, realm)
	}

	realm := cfg.Realm
	if realm == "" {
		if cfg.ConfPath != "" {
			return nil, fmt.Errorf("krb5 config %s not found", cfg.ConfPath)
		}
		return nil, fmt.Errorf("no krb5 config found at %s and no realm configured", path)
	}

	return synthesizeConf(cfg, realm)
}

// synthesizeConf renders a krb5.conf equivalent for a single realm. KDC
// addresses come from the explicit override, DNS SRV discovery, or the
// engine's own dns_lookup_kdc support as a last resort.
func synthesizeConf(cfg Krb5Config, realm string) (*config.Config, error) {
	realm = strings.ToUpper(realm)

	var kdcs []string
	switch {
	case cfg.KDC != "":
		kdcs = []string{network.NormalizeKDCAddr(cfg.KDC)}
	case cfg.DNSLookup:
		ctx, cancel := context.WithTimeout(context.Background(), network.DefaultTimeout)
		defer cancel()
		discovered, err := network.ResolveKDC(ctx, realm, "")
		if err != nil {
			logger.Debug("KDC discovery failed, deferring to engine DNS lookup",
				"realm", realm, "error", err)
		} else {
			kdcs = discovered
		}
	}

	var b strings.Builder
	b.WriteString("[libdefaults]\n")
	fmt.Fprintf(&b, "  default_realm = %s\n", realm)
	b.WriteString("  dns_lookup_realm = false\n")
	if len(kdcs) == 0 {
		b.WriteString("  dns_lookup_kdc = true\n")
	} else {
		b.WriteString("  dns_lookup_kdc = false\n")
	}
	b.WriteString("  rdns = false\n")
	b.WriteString("  udp_preference_limit = 1\n")

	b.WriteString("\n[realms]\n")
	fmt.Fprintf(&b, "  %s = {\n", realm)
	for _, kdc := range kdcs {
		fmt.Fprintf(&b, "    kdc = %s\n", kdc)
	}
	b.WriteString("  }\n")

	conf, err := config.NewFromString(b.String())
	if err != nil {
		return nil, fmt.Errorf("failed to build krb5 config for realm %s: %w", realm, err)
	}
	logger.Debug("synthesized krb5 config", "realm", realm, "kdcs", strings.Join(kdcs, ","))
	return conf, nil
}
