package dpaping

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
)

// kdfSP800_108CTRHMAC is the only key derivation function the KDS deploys
// for its root keys.
const kdfSP800_108CTRHMAC = "SP800_108_CTR_HMAC"

// kdsServiceLabel is the fixed KDF label, "KDS service" as NUL-terminated
// UTF-16LE.
var kdsServiceLabel = []byte{
	'K', 0, 'D', 0, 'S', 0, ' ', 0,
	's', 0, 'e', 0, 'r', 0, 'v', 0, 'i', 0, 'c', 0, 'e', 0,
	0, 0,
}

// KDF is SP800-108 in counter mode with HMAC-SHA512:
//
//	K(i) = HMAC(secret, BE32(i) || label || 0x00 || context || BE32(length*8))
//
// with the 32-bit counter placed before the fixed data. The output is the
// concatenation of the K(i) truncated to length bytes.
func KDF(secret, label, context []byte, length int) []byte {
	fixed := make([]byte, 0, len(label)+1+len(context)+4)
	fixed = append(fixed, label...)
	fixed = append(fixed, 0x00)
	fixed = append(fixed, context...)
	fixed = binary.BigEndian.AppendUint32(fixed, uint32(length)*8)

	out := make([]byte, 0, length)
	for i := uint32(1); len(out) < length; i++ {
		h := hmac.New(sha512.New, secret)
		var ctr [4]byte
		binary.BigEndian.PutUint32(ctr[:], i)
		h.Write(ctr[:])
		h.Write(fixed)
		out = append(out, h.Sum(nil)...)
	}
	return out[:length]
}

// kdfContext binds a derivation step to the root key and the target
// position in the hierarchy. Indices are packed as little-endian int32;
// an index of -1 marks the level being derived.
func kdfContext(rootKeyID [16]byte, l0, l1, l2 int32) []byte {
	ctx := make([]byte, 0, 16+12)
	ctx = append(ctx, rootKeyID[:]...)
	ctx = binary.LittleEndian.AppendUint32(ctx, uint32(l0))
	ctx = binary.LittleEndian.AppendUint32(ctx, uint32(l1))
	ctx = binary.LittleEndian.AppendUint32(ctx, uint32(l2))
	return ctx
}

// ComputeKEK derives the key-encryption key for the given key identifier
// from a group key envelope.
//
// The envelope carries the newest (L1, L2) keys for the L0 period; older L2
// keys are reached by walking the chain downward:
//
//  1. while envelope L1 > identifier L1: derive the previous L1 key
//  2. reseed the L2 chain from the L1 key when a fresh L1 was derived
//  3. while L2 > identifier L2: derive the previous L2 key
//  4. KEK = KDF(L2 key, "KDS service", identifier.KeyInfo, 32)
//
// The chain is one-way: an envelope older than the identifier cannot
// produce the key and is rejected.
func ComputeKEK(gke *GroupKeyEnvelope, keyID *KeyIdentifier) ([]byte, error) {
	if gke.KDFAlgorithm != kdfSP800_108CTRHMAC {
		return nil, fmt.Errorf("unsupported KDF algorithm %q", gke.KDFAlgorithm)
	}
	if keyID.IsPublicKey() {
		return nil, fmt.Errorf("public-key key identifiers are not supported")
	}
	if gke.L0Index != keyID.L0Index {
		return nil, fmt.Errorf("envelope L0 index %d does not match key identifier L0 index %d",
			gke.L0Index, keyID.L0Index)
	}
	if gke.L1Index < keyID.L1Index ||
		(gke.L1Index == keyID.L1Index && gke.L2Index < keyID.L2Index) {
		return nil, fmt.Errorf("envelope (L1=%d, L2=%d) is older than key identifier (L1=%d, L2=%d)",
			gke.L1Index, gke.L2Index, keyID.L1Index, keyID.L2Index)
	}

	l0 := int32(gke.L0Index)
	l1 := int32(gke.L1Index)
	l1Key := gke.L1Key
	l2 := int32(gke.L2Index)
	l2Key := gke.L2Key

	reseedL2 := l2 == 31 || l1 != int32(keyID.L1Index)

	for l1 != int32(keyID.L1Index) {
		l1--
		l1Key = KDF(l1Key, kdsServiceLabel, kdfContext(gke.RootKeyID, l0, l1, -1), 64)
	}

	if reseedL2 {
		l2 = 31
		l2Key = KDF(l1Key, kdsServiceLabel, kdfContext(gke.RootKeyID, l0, l1, l2), 64)
	}

	for l2 != int32(keyID.L2Index) {
		l2--
		l2Key = KDF(l2Key, kdsServiceLabel, kdfContext(gke.RootKeyID, l0, l1, l2), 64)
	}

	return KDF(l2Key, kdsServiceLabel, keyID.KeyInfo, 32), nil
}
