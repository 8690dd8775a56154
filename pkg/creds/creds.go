package creds

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jcmturner/gokrb5/v8/credentials"
	"github.com/jcmturner/gokrb5/v8/iana/etypeID"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"golang.org/x/crypto/md4"
)

// Credential is a single account's authentication material.
type Credential struct {
	Domain   string
	Username string

	// One of these should be set. Password wins when both are present.
	Password string
	LMHash   string // hex, 32 chars
	NTHash   string // hex, 32 chars

	// Optional Kerberos material
	AESKey    string // hex AES128/AES256 key
	UseCCache bool   // authenticate from KRB5CCNAME ticket cache
}

// New builds a Credential, splitting a combined "LM:NT" hash string.
func New(domain, username, password, ntlmHash string) *Credential {
	lm, nt := SplitNTLMHash(ntlmHash)
	return &Credential{
		Domain:   domain,
		Username: username,
		Password: password,
		LMHash:   lm,
		NTHash:   nt,
	}
}

// SplitNTLMHash splits a combined "LM:NT" hash into its halves. A bare
// value without a colon is treated as the NT half only.
func SplitNTLMHash(ntlmHash string) (lm, nt string) {
	if ntlmHash == "" {
		return "", ""
	}
	if i := strings.Index(ntlmHash, ":"); i != -1 {
		return ntlmHash[:i], ntlmHash[i+1:]
	}
	return "", ntlmHash
}

// JoinedHash returns the combined "LM:NT" form, or the bare NT hash when no
// LM half is held.
func (c *Credential) JoinedHash() string {
	if c.LMHash != "" {
		return c.LMHash + ":" + c.NTHash
	}
	return c.NTHash
}

// HasHash reports whether an NT hash is available.
func (c *Credential) HasHash() bool {
	return c.NTHash != ""
}

// LogonName is the legacy logon name (DOMAIN\username).
func (c *Credential) LogonName() string {
	return c.Domain + `\` + c.Username
}

// Secret is the credential as shown in log lines: the password when set,
// otherwise the hash string.
func (c *Credential) Secret() string {
	if c.Password != "" {
		return c.Password
	}
	return c.JoinedHash()
}

// NTHashBytes returns the NT hash as raw bytes, deriving it from the
// password when only a password is held.
//
// The NT hash is MD4(UTF-16LE(password)) - which is exactly why
// pass-the-hash works: the hash itself is the key material.
func (c *Credential) NTHashBytes() ([]byte, error) {
	if c.NTHash != "" {
		b, err := hex.DecodeString(c.NTHash)
		if err != nil {
			return nil, fmt.Errorf("invalid NT hash: %w", err)
		}
		if len(b) != 16 {
			return nil, fmt.Errorf("NT hash must be 16 bytes, got %d", len(b))
		}
		return b, nil
	}
	if c.Password == "" {
		return nil, fmt.Errorf("no password or NT hash available")
	}

	// UTF-16LE encode, then MD4
	encoded := make([]byte, 0, len(c.Password)*2)
	for _, r := range c.Password {
		if r > 0xffff {
			// surrogate pair
			r -= 0x10000
			encoded = binary.LittleEndian.AppendUint16(encoded, uint16(0xd800+(r>>10)))
			encoded = binary.LittleEndian.AppendUint16(encoded, uint16(0xdc00+(r&0x3ff)))
			continue
		}
		encoded = binary.LittleEndian.AppendUint16(encoded, uint16(r))
	}
	h := md4.New()
	h.Write(encoded)
	return h.Sum(nil), nil
}

// Keytab builds an in-memory keytab from the raw key material (NT hash
// and/or AES key), allowing Kerberos logons without a cleartext password.
func (c *Credential) Keytab() (*keytab.Keytab, error) {
	kt := &keytab.Keytab{}
	if err := kt.Unmarshal([]byte{0x05, 0x02, 0x00, 0x00, 0x00, 0x00}); err != nil {
		return nil, fmt.Errorf("initialize keytab: %w", err)
	}

	if c.AESKey != "" {
		if err := addKeyToKeytab(kt, c.Username, c.Domain, c.AESKey, true); err != nil {
			return nil, fmt.Errorf("add AES key: %w", err)
		}
	}
	if c.NTHash != "" {
		if err := addKeyToKeytab(kt, c.Username, c.Domain, c.NTHash, false); err != nil {
			return nil, fmt.Errorf("add RC4 key: %w", err)
		}
	}
	if len(kt.Entries) == 0 {
		return nil, fmt.Errorf("no key material for keytab")
	}

	return kt, nil
}

// addKeyToKeytab appends one raw key entry. The keytab wire format has no
// exported entry constructor, so a minimal dummy entry is unmarshaled and
// then overwritten.
func addKeyToKeytab(kt *keytab.Keytab, username, domain, key string, aes bool) error {
	keyBytes, err := hex.DecodeString(key)
	if err != nil {
		return fmt.Errorf("decode key: %w", err)
	}

	var keyType int32
	switch len(keyBytes) {
	case 32:
		keyType = etypeID.AES256_CTS_HMAC_SHA1_96
	case 16:
		if aes {
			keyType = etypeID.AES128_CTS_HMAC_SHA1_96
		} else {
			keyType = etypeID.RC4_HMAC
		}
	default:
		return fmt.Errorf("key must be 16 or 32 bytes, got %d", len(keyBytes))
	}

	tmp := &keytab.Keytab{}
	err = tmp.Unmarshal([]byte{
		// header
		0x05,                   // first-byte
		0x02,                   // version
		0x00, 0x00, 0x00, 0x11, // entry length
		// principal
		0x00, 0x00, // num components
		0x00, 0x00, // realm length
		0x00, 0x00, 0x00, 0x00, // name type
		// key
		0x00, 0x00, 0x00, 0x00, // timestamp
		0x00,       // kvno8
		0x00, 0x00, // key type
		0x00, 0x00, // key length
	})
	if err != nil {
		return fmt.Errorf("invalid dummy entry: %w", err)
	}

	e := tmp.Entries[0]
	krbCreds := credentials.New(username, domain)
	e.Principal.NumComponents = int16(len(krbCreds.CName().NameString))
	e.Principal.Components = krbCreds.CName().NameString
	e.Principal.Realm = strings.ToUpper(krbCreds.Realm())
	e.Principal.NameType = krbCreds.CName().NameType
	e.Timestamp = time.Now()
	e.KVNO8 = 0
	e.KVNO = 1
	e.Key.KeyType = keyType
	e.Key.KeyValue = keyBytes

	kt.Entries = append(kt.Entries, e)

	return nil
}
