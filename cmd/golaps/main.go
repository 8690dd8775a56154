package main

import (
	"fmt"
	"os"

	"github.com/mjwhitta/cli"
	"github.com/rs/zerolog"

	"github.com/golaps/golaps/internal/protolog"
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
	domain   string
	username string
	password string
	ntHash   string
	aesKey   string
	kerberos bool
	ccache   bool
	kdc      string
	dc       string
	blobFile string
	insecure bool
	verbose  bool
}

// Command to run
var command string
var cmdArgs []string

func init() {
	// Configure cli
	cli.Align = true
	cli.Authors = []string{"golaps authors"}
	cli.Banner = fmt.Sprintf("%s [OPTIONS] <command> [args...]", os.Args[0])
	cli.Info(
		"Golaps - Windows LAPS Credential Recovery",
		"",
		"Authenticates to Active Directory with password, NTLM hash or",
		"Kerberos credentials and recovers plaintext local administrator",
		"passwords from LAPS v2 encrypted password blobs.",
	)
	cli.ExitStatus(
		"0 - Success",
		"1 - Error",
	)

	// Define flags (short, long, default, description)
	cli.Flag(&flags.domain, "d", "domain", "", "Domain name")
	cli.Flag(&flags.username, "u", "user", "", "Username")
	cli.Flag(&flags.password, "p", "pass", "", "Password")
	cli.Flag(&flags.ntHash, "H", "hash", "", "NTLM hash (LM:NT or NT)")
	cli.Flag(&flags.aesKey, "a", "aes", "", "AES128/AES256 Kerberos key")
	cli.Flag(&flags.kerberos, "k", "kerberos", false, "Authenticate with Kerberos")
	cli.Flag(&flags.ccache, "c", "ccache", false, "Use KRB5CCNAME ticket cache")
	cli.Flag(&flags.kdc, "kdc", "", "KDC address (discovered via DNS if omitted)")
	cli.Flag(&flags.dc, "dc", "", "Domain controller host")
	cli.Flag(&flags.blobFile, "b", "blob", "", "File holding a raw msLAPS-EncryptedPassword value")
	cli.Flag(&flags.insecure, "i", "insecure", false, "Skip LDAPS certificate verification")
	cli.Flag(&flags.verbose, "v", "verbose", false, "Verbose output")

	// Commands section
	cli.Section("Commands",
		"  login    Authenticate to the DC and report the classified outcome\n",
		"  decrypt  Recover the plaintext password from an encrypted blob",
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
		protolog.Level = zerolog.DebugLevel
	}
}

func main() {
	var err error
	switch command {
	case "login":
		err = cmdLogin(cmdArgs)
	case "decrypt":
		err = cmdDecrypt(cmdArgs)
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
