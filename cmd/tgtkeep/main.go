package main

import (
	"fmt"
	"os"

	"github.com/mjwhitta/cli"

	"github.com/tgtkeep/tgtkeep/internal/logger"
)

// Version info
var version = "0.1.0"

// Exit codes
const (
	ExitSuccess = iota
	ExitError
	ExitMissingArg
)

// Global flags
var flags struct {
	principal    string
	ccache       string
	keytab       string
	password     string
	prompt       bool
	realm        string
	kdc          string
	krb5conf     string
	dnsLookup    bool
	noFAST       bool
	usage        string
	noSetDefault bool
	noOverwrite  bool
	etypes       string
	kvno         int
	all          bool
	verbose      bool
}

// Command to run
var command string
var cmdArgs []string

func init() {
	// Configure cli
	cli.Align = true
	cli.Authors = []string{"tgtkeep authors"}
	cli.Banner = fmt.Sprintf("%s [OPTIONS] <command> [args...]", os.Args[0])
	cli.Info(
		"tgtkeep - Kerberos TGT lifecycle manager",
		"",
		"Keeps ticket-granting tickets fresh for long-running services:",
		"acquires TGTs from keytabs or passwords, validates and stores",
		"them in MIT FILE credential caches, and reports expiry.",
	)
	cli.ExitStatus(
		"0 - Success",
		"1 - Error",
	)

	// Define flags (short, long, default, description)
	cli.Flag(&flags.principal, "u", "principal", "", "Principal name (user@REALM)")
	cli.Flag(&flags.ccache, "c", "ccache", "", "Credential cache path or FILE: reference")
	cli.Flag(&flags.keytab, "t", "keytab", "", "Client keytab path")
	cli.Flag(&flags.password, "p", "pass", "", "Password (prefer -P)")
	cli.Flag(&flags.prompt, "P", "prompt", false, "Prompt for the password")
	cli.Flag(&flags.realm, "r", "realm", "", "Kerberos realm")
	cli.Flag(&flags.kdc, "k", "kdc", "", "KDC address (host[:port])")
	cli.Flag(&flags.krb5conf, "C", "krb5-conf", "", "krb5.conf path")
	cli.Flag(&flags.dnsLookup, "n", "dns-lookup", false, "Discover KDCs via DNS SRV records")
	cli.Flag(&flags.noFAST, "F", "no-fast", false, "Disable FAST negotiation (Active Directory)")
	cli.Flag(&flags.usage, "U", "usage", "initiate", "Credential usage (initiate, accept, both)")
	cli.Flag(&flags.noSetDefault, "D", "no-set-default", false, "Keep the cache's current default identity")
	cli.Flag(&flags.noOverwrite, "O", "no-overwrite", false, "Do not replace cached credentials")
	cli.Flag(&flags.etypes, "e", "etypes", "aes256-cts-hmac-sha1-96,aes128-cts-hmac-sha1-96", "Keytab encryption types (comma separated)")
	cli.Flag(&flags.kvno, "V", "kvno", 1, "Keytab key version number")
	cli.Flag(&flags.all, "a", "all", false, "Include configuration entries in listings")
	cli.Flag(&flags.verbose, "v", "verbose", false, "Verbose output")

	// Commands section
	cli.Section("Commands",
		"  acquire  Acquire a TGT (keytab, password, or existing cache)\n",
		"  status   Report TGT validity and list the cache\n",
		"  destroy  Remove the credential cache\n",
		"  keytab   Create or extend a keytab from a password\n",
		"  probe    Check KDC reachability\n",
		"  version  Print version",
	)

	cli.Parse()

	// Get command from args
	if cli.NArg() == 0 {
		cli.Usage(ExitMissingArg)
	}

	command = cli.Arg(0)
	if cli.NArg() > 1 {
		cmdArgs = cli.Args()[1:]
	}

	if flags.verbose {
		logger.SetLevel("DEBUG")
	}
}

func main() {
	var err error
	switch command {
	case "acquire":
		err = cmdAcquire(cmdArgs)
	case "status", "klist":
		err = cmdStatus(cmdArgs)
	case "destroy", "purge":
		err = cmdDestroy(cmdArgs)
	case "keytab":
		err = cmdKeytab(cmdArgs)
	case "probe":
		err = cmdProbe(cmdArgs)
	case "version":
		err = cmdVersion(cmdArgs)
	case "help":
		cli.Usage(ExitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		cli.Usage(ExitError)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}
}
