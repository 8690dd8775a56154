package dpaping

import (
	"encoding/binary"
	"fmt"
)

// GroupKeyEnvelope is the root-key material the KDS returns from GetKey
// (MS-GKDI 2.2.4). It carries the newest L1/L2 keys the caller is allowed
// to see for the requested L0 period.
type GroupKeyEnvelope struct {
	Version uint32
	Flags   uint32

	L0Index uint32
	L1Index uint32
	L2Index uint32

	RootKeyID [16]byte

	KDFAlgorithm     string
	KDFParameters    []byte
	SecretAlgorithm  string
	SecretParameters []byte

	PrivateKeyLength uint32 // bits
	PublicKeyLength  uint32 // bits

	Domain string
	Forest string

	L1Key []byte
	L2Key []byte
}

// ParseGroupKeyEnvelope decodes the envelope's fixed header and the eight
// trailing variable-length fields, in wire order.
func ParseGroupKeyEnvelope(b []byte) (*GroupKeyEnvelope, error) {
	// fixed part: 6 dwords + GUID + 10 length dwords
	const fixed = 4*6 + 16 + 4*10
	if len(b) < fixed {
		return nil, fmt.Errorf("group key envelope too short: %d bytes", len(b))
	}

	e := &GroupKeyEnvelope{
		Version: binary.LittleEndian.Uint32(b[0:]),
		Flags:   binary.LittleEndian.Uint32(b[8:]),
		L0Index: binary.LittleEndian.Uint32(b[12:]),
		L1Index: binary.LittleEndian.Uint32(b[16:]),
		L2Index: binary.LittleEndian.Uint32(b[20:]),
	}
	if magic := binary.LittleEndian.Uint32(b[4:]); magic != kdsMagic {
		return nil, fmt.Errorf("bad envelope magic: 0x%08x", magic)
	}
	copy(e.RootKeyID[:], b[24:40])

	kdfAlgoLen := binary.LittleEndian.Uint32(b[40:])
	kdfParaLen := binary.LittleEndian.Uint32(b[44:])
	secAlgoLen := binary.LittleEndian.Uint32(b[48:])
	secParaLen := binary.LittleEndian.Uint32(b[52:])
	e.PrivateKeyLength = binary.LittleEndian.Uint32(b[56:])
	e.PublicKeyLength = binary.LittleEndian.Uint32(b[60:])
	l1KeyLen := binary.LittleEndian.Uint32(b[64:])
	l2KeyLen := binary.LittleEndian.Uint32(b[68:])
	domainLen := binary.LittleEndian.Uint32(b[72:])
	forestLen := binary.LittleEndian.Uint32(b[76:])

	total := uint64(kdfAlgoLen) + uint64(kdfParaLen) + uint64(secAlgoLen) +
		uint64(secParaLen) + uint64(domainLen) + uint64(forestLen) +
		uint64(l1KeyLen) + uint64(l2KeyLen)
	rest := b[fixed:]
	if uint64(len(rest)) < total {
		return nil, fmt.Errorf("group key envelope truncated: have %d, need %d",
			len(rest), total)
	}

	take := func(n uint32) []byte {
		v := rest[:n]
		rest = rest[n:]
		return v
	}

	e.KDFAlgorithm = decodeUTF16Z(take(kdfAlgoLen))
	e.KDFParameters = append([]byte(nil), take(kdfParaLen)...)
	e.SecretAlgorithm = decodeUTF16Z(take(secAlgoLen))
	e.SecretParameters = append([]byte(nil), take(secParaLen)...)
	e.Domain = decodeUTF16Z(take(domainLen))
	e.Forest = decodeUTF16Z(take(forestLen))
	e.L1Key = append([]byte(nil), take(l1KeyLen)...)
	e.L2Key = append([]byte(nil), take(l2KeyLen)...)

	return e, nil
}
