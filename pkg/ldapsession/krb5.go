package ldapsession

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/credentials"

	"github.com/golaps/golaps/pkg/creds"
)

// krb5Config builds a gokrb5 configuration programmatically so no
// /etc/krb5.conf is needed on the attacking host. kdc is "host:port".
func krb5Config(domain, kdc string) *config.Config {
	realm := strings.ToUpper(domain)

	conf := config.New()
	conf.LibDefaults.DefaultRealm = realm
	conf.LibDefaults.DNSLookupRealm = false
	conf.LibDefaults.DNSLookupKDC = false
	conf.LibDefaults.TicketLifetime = 24 * time.Hour
	conf.LibDefaults.RenewLifetime = 7 * 24 * time.Hour
	conf.LibDefaults.Forwardable = true
	conf.LibDefaults.RDNS = false
	// TCP only: AS-REPs with a PAC routinely exceed UDP limits
	conf.LibDefaults.UDPPreferenceLimit = 1

	// AES256, AES128, RC4
	conf.LibDefaults.PermittedEnctypeIDs = []int32{18, 17, 23}
	conf.LibDefaults.DefaultTGSEnctypeIDs = []int32{18, 17, 23}
	conf.LibDefaults.DefaultTktEnctypeIDs = []int32{18, 17, 23}

	conf.Realms = []config.Realm{{
		Realm:         realm,
		KDC:           []string{kdc},
		DefaultDomain: strings.ToLower(domain),
	}}
	conf.DomainRealm["."+strings.ToLower(domain)] = realm

	return conf
}

// kerberosClient builds a gokrb5 client from whatever material the
// credential holds: ticket cache, password, or raw keys via an in-memory
// keytab.
func kerberosClient(cred *creds.Credential, kdc string) (*client.Client, error) {
	conf := krb5Config(cred.Domain, kdc)

	if cred.UseCCache {
		path := strings.TrimPrefix(os.Getenv("KRB5CCNAME"), "FILE:")
		if path == "" {
			return nil, fmt.Errorf("KRB5CCNAME is not set")
		}
		ccache, err := credentials.LoadCCache(path)
		if err != nil {
			return nil, fmt.Errorf("load ticket cache %s: %w", path, err)
		}
		return client.NewFromCCache(ccache, conf, client.DisablePAFXFAST(true))
	}

	if cred.Password != "" {
		return client.NewWithPassword(cred.Username, strings.ToUpper(cred.Domain),
			cred.Password, conf, client.DisablePAFXFAST(true)), nil
	}

	kt, err := cred.Keytab()
	if err != nil {
		return nil, err
	}
	return client.NewWithKeytab(cred.Username, strings.ToUpper(cred.Domain),
		kt, conf, client.DisablePAFXFAST(true)), nil
}
