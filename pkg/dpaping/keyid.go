package dpaping

import (
	"encoding/binary"
	"fmt"
)

// kdsMagic is the shared magic of KeyIdentifier and GroupKeyEnvelope
// structures ("KDSK" little-endian).
const kdsMagic = 0x4b53444b

// KeyIdentifier names the exact derived key a protected blob was encrypted
// under. It is carried in the CMS KEKRecipientInfo keyIdentifier field.
type KeyIdentifier struct {
	Version uint32
	Flags   uint32

	L0Index uint32
	L1Index uint32
	L2Index uint32

	// RootKeyID is the KDS root key GUID in its 16-byte mixed-endian wire
	// form, exactly as it must be fed back into KDF contexts and GetKey.
	RootKeyID [16]byte

	// KeyInfo is the per-message entropy mixed into the final KEK
	// derivation (a public key when IsPublicKey is set).
	KeyInfo []byte

	Domain string
	Forest string
}

// IsPublicKey reports whether KeyInfo holds a DH/ECDH public key instead of
// plain derivation entropy.
func (k *KeyIdentifier) IsPublicKey() bool {
	return k.Flags&1 != 0
}

// ParseKeyIdentifier decodes the fixed header and the three trailing
// variable-length fields of a KeyIdentifier.
func ParseKeyIdentifier(b []byte) (*KeyIdentifier, error) {
	// fixed part: 6 dwords + GUID + 3 length dwords
	const fixed = 4*6 + 16 + 4*3
	if len(b) < fixed {
		return nil, fmt.Errorf("key identifier too short: %d bytes", len(b))
	}

	k := &KeyIdentifier{
		Version: binary.LittleEndian.Uint32(b[0:]),
		Flags:   binary.LittleEndian.Uint32(b[8:]),
		L0Index: binary.LittleEndian.Uint32(b[12:]),
		L1Index: binary.LittleEndian.Uint32(b[16:]),
		L2Index: binary.LittleEndian.Uint32(b[20:]),
	}
	if magic := binary.LittleEndian.Uint32(b[4:]); magic != kdsMagic {
		return nil, fmt.Errorf("bad key identifier magic: 0x%08x", magic)
	}
	copy(k.RootKeyID[:], b[24:40])

	keyInfoLen := binary.LittleEndian.Uint32(b[40:])
	domainLen := binary.LittleEndian.Uint32(b[44:])
	forestLen := binary.LittleEndian.Uint32(b[48:])

	rest := b[fixed:]
	if uint64(len(rest)) < uint64(keyInfoLen)+uint64(domainLen)+uint64(forestLen) {
		return nil, fmt.Errorf("key identifier truncated: have %d, need %d",
			len(rest), keyInfoLen+domainLen+forestLen)
	}

	k.KeyInfo = append([]byte(nil), rest[:keyInfoLen]...)
	rest = rest[keyInfoLen:]
	k.Domain = decodeUTF16Z(rest[:domainLen])
	rest = rest[domainLen:]
	k.Forest = decodeUTF16Z(rest[:forestLen])

	return k, nil
}

// decodeUTF16Z decodes a NUL-terminated UTF-16LE string field.
func decodeUTF16Z(b []byte) string {
	var out []rune
	for i := 0; i+1 < len(b); i += 2 {
		c := binary.LittleEndian.Uint16(b[i:])
		if c == 0 {
			break
		}
		out = append(out, rune(c))
	}
	return string(out)
}
