package ldapsession

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	ldap "github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	"github.com/jcmturner/gokrb5/v8/iana/flags"
	"github.com/rs/zerolog"

	"github.com/golaps/golaps/internal/network"
	"github.com/golaps/golaps/internal/protolog"
	"github.com/golaps/golaps/pkg/creds"
)

// Options selects the target and authentication material for a session.
type Options struct {
	Host     string // DC hostname or IP
	Domain   string
	Username string
	Password string
	NTLMHash string // "LM:NT" or bare NT, hex
	AESKey   string // hex AES128/AES256 Kerberos key

	Kerberos   bool   // authenticate with Kerberos instead of NTLM
	UseCCache  bool   // use the KRB5CCNAME ticket cache
	KDCHost    string // explicit KDC; discovered via DNS SRV when empty
	SkipVerify bool   // skip LDAPS certificate verification
}

// Session is an authenticated directory connection.
type Session struct {
	Conn   *ldap.Conn
	BaseDN string
	Scheme string // "ldap" or "ldaps"
	Port   int
	Cred   *creds.Credential
	Log    zerolog.Logger
}

// Close tears down the LDAP connection.
func (s *Session) Close() {
	if s.Conn != nil {
		s.Conn.Close()
	}
}

// BaseDN derives the default naming context from a DNS domain name
// (corp.local becomes dc=corp,dc=local).
func BaseDN(domain string) string {
	parts := strings.Split(domain, ".")
	return "dc=" + strings.Join(parts, ",dc=")
}

// Connect authenticates against the target DC.
//
// The first attempt is plaintext LDAP on 389. If the server rejects the
// bind with strongerAuthRequired (LDAP signing enforced), the identical
// bind is retried exactly once over LDAPS on 636; a second
// strongerAuthRequired is terminal. All other rejections are classified
// into a *BindError; transport failures surface as *ConnectError.
func Connect(opts Options) (*Session, error) {
	cred := creds.New(opts.Domain, opts.Username, opts.Password, opts.NTLMHash)
	cred.AESKey = opts.AESKey
	cred.UseCCache = opts.UseCCache

	sess, err := connect(opts, cred, "ldap", 389)
	if err != nil && strongerAuthRequired(err) {
		sess.Log.Debug().Msg("server requires signing, retrying over LDAPS")
		sess, err = connect(opts, cred, "ldaps", 636)
	}
	if err == nil {
		sess.Log.Info().Str("user", cred.LogonName()).Msg("bind succeeded")
		return sess, nil
	}

	var connErr *ConnectError
	if errors.As(err, &connErr) {
		sess.Log.Error().Err(connErr.Err).Str("hint", connErr.Hint).Msg("connection failed")
		return nil, err
	}

	bindErr := classifyBind(err)
	sess.Log.Error().Str("user", cred.LogonName()).
		Str("code", bindErr.Code).Str("status", bindErr.Status).Msg("bind rejected")
	return nil, bindErr
}

// connect performs a single dial+bind attempt. The returned *Session is
// non-nil even on error so the caller keeps the attempt's logger.
func connect(opts Options, cred *creds.Credential, scheme string, port int) (*Session, error) {
	sess := &Session{
		BaseDN: BaseDN(opts.Domain),
		Scheme: scheme,
		Port:   port,
		Cred:   cred,
		Log:    protolog.New(scheme, opts.Host, port, opts.Host),
	}

	url := fmt.Sprintf("%s://%s:%d", scheme, opts.Host, port)
	var conn *ldap.Conn
	var err error
	if scheme == "ldaps" {
		conn, err = ldap.DialURL(url,
			ldap.DialWithTLSConfig(&tls.Config{InsecureSkipVerify: opts.SkipVerify}))
	} else {
		conn, err = ldap.DialURL(url)
	}
	if err != nil {
		return sess, &ConnectError{
			Host: opts.Host,
			Hint: "is the LDAP service running on the target?",
			Err:  err,
		}
	}

	if err := bind(conn, opts, cred); err != nil {
		conn.Close()
		return sess, err
	}

	sess.Conn = conn
	return sess, nil
}

// bind picks the authentication mechanism from the credential material:
// Kerberos (GSSAPI) when requested or when only Kerberos material is
// usable, otherwise NTLM with password or hash.
func bind(conn *ldap.Conn, opts Options, cred *creds.Credential) error {
	if opts.Kerberos || cred.UseCCache || cred.AESKey != "" {
		kdc, err := network.ResolveKDC(opts.Domain, opts.KDCHost)
		if err != nil {
			return &ConnectError{
				Host: opts.Domain,
				Hint: "KDC not found via DNS, specify it explicitly",
				Err:  err,
			}
		}

		krb, err := kerberosClient(cred, kdc)
		if err != nil {
			return err
		}
		if err := krb.Login(); err != nil {
			return err
		}

		return conn.GSSAPIBindRequestWithAPOptions(&gssapi.Client{Client: krb},
			&ldap.GSSAPIBindRequest{
				ServicePrincipalName: "ldap/" + opts.Host,
				AuthZID:              "",
			},
			[]int{flags.APOptionMutualRequired})
	}

	if cred.Password != "" {
		return conn.NTLMBind(cred.Domain, cred.Username, cred.Password)
	}
	if cred.HasHash() {
		return conn.NTLMBindWithHash(cred.Domain, cred.Username, cred.NTHash)
	}

	return fmt.Errorf("no usable credential for %s", cred.LogonName())
}
