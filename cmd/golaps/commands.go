package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/golaps/golaps/internal/network"
	"github.com/golaps/golaps/internal/protolog"
	"github.com/golaps/golaps/pkg/creds"
	"github.com/golaps/golaps/pkg/lapsv2"
	"github.com/golaps/golaps/pkg/ldapsession"
)

// checkAuthFlags validates the flags every authenticated command needs.
func checkAuthFlags() error {
	if flags.domain == "" {
		return fmt.Errorf("domain is required (-d)")
	}
	if flags.username == "" && !flags.ccache {
		return fmt.Errorf("username is required (-u)")
	}
	if flags.password == "" && flags.ntHash == "" && flags.aesKey == "" && !flags.ccache {
		return fmt.Errorf("credentials required (-p, --hash, --aes, or --ccache)")
	}
	return nil
}

// resolveDC returns the target DC, discovering it via DNS SRV when not
// given explicitly.
func resolveDC(ctx context.Context) (string, error) {
	if flags.dc != "" {
		return flags.dc, nil
	}
	dc, err := network.DiscoverDC(ctx, flags.domain)
	if err != nil {
		return "", fmt.Errorf("no DC found for %s, specify one with --dc: %w", flags.domain, err)
	}
	return dc, nil
}

// cmdLogin handles the login command.
func cmdLogin(args []string) error {
	if err := checkAuthFlags(); err != nil {
		return err
	}

	dc, err := resolveDC(context.Background())
	if err != nil {
		return err
	}

	sess, err := ldapsession.Connect(ldapsession.Options{
		Host:       dc,
		Domain:     flags.domain,
		Username:   flags.username,
		Password:   flags.password,
		NTLMHash:   flags.ntHash,
		AESKey:     flags.aesKey,
		Kerberos:   flags.kerberos,
		UseCCache:  flags.ccache,
		KDCHost:    flags.kdc,
		SkipVerify: flags.insecure,
	})
	if err != nil {
		var bindErr *ldapsession.BindError
		if errors.As(err, &bindErr) && bindErr.Status != "" {
			fmt.Printf("[-] %s\\%s %s\n", flags.domain, flags.username, bindErr.Status)
			return nil
		}
		return err
	}
	defer sess.Close()

	fmt.Printf("[+] %s\\%s authenticated over %s (base DN %s)\n",
		flags.domain, flags.username, sess.Scheme, sess.BaseDN)
	return nil
}

// cmdDecrypt handles the decrypt command.
func cmdDecrypt(args []string) error {
	if err := checkAuthFlags(); err != nil {
		return err
	}
	if flags.blobFile == "" {
		return fmt.Errorf("encrypted blob file is required (-b)")
	}

	blob, err := os.ReadFile(flags.blobFile)
	if err != nil {
		return fmt.Errorf("read blob: %w", err)
	}

	ctx := context.Background()
	dc, err := resolveDC(ctx)
	if err != nil {
		return err
	}

	cred := creds.New(flags.domain, flags.username, flags.password, flags.ntHash)
	cred.AESKey = flags.aesKey
	cred.UseCCache = flags.ccache

	d := &lapsv2.Decryptor{
		Cred:     cred,
		DC:       dc,
		Kerberos: flags.kerberos,
		Log:      protolog.New("gkdi", dc, 135, dc),
	}

	password, err := d.Decrypt(ctx, blob)
	if err != nil {
		return err
	}

	fmt.Println(password)
	return nil
}
