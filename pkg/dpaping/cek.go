package dpaping

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
)

// keywrapIV is the RFC 3394 default initial value. A mismatch after
// unwrapping means the wrong KEK was used or the wrapped key is corrupt.
var keywrapIV = []byte{0xa6, 0xa6, 0xa6, 0xa6, 0xa6, 0xa6, 0xa6, 0xa6}

// UnwrapCEK unwraps the content-encryption key with the derived KEK using
// AES key unwrap (RFC 3394).
func UnwrapCEK(kek, wrapped []byte) ([]byte, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("create KEK cipher: %w", err)
	}
	if len(wrapped)%8 != 0 || len(wrapped) < 24 {
		return nil, fmt.Errorf("wrapped key has invalid length %d", len(wrapped))
	}

	// n 64-bit blocks plus the integrity register A
	n := len(wrapped)/8 - 1
	a := make([]byte, 8)
	copy(a, wrapped[:8])
	r := make([]byte, len(wrapped)-8)
	copy(r, wrapped[8:])

	buf := make([]byte, 16)
	for j := 5; j >= 0; j-- {
		for i := n; i >= 1; i-- {
			t := uint64(n*j + i)
			copy(buf[:8], a)
			binary.BigEndian.PutUint64(buf[:8], binary.BigEndian.Uint64(buf[:8])^t)
			copy(buf[8:], r[(i-1)*8:i*8])
			block.Decrypt(buf, buf)
			copy(a, buf[:8])
			copy(r[(i-1)*8:i*8], buf[8:])
		}
	}

	if subtle.ConstantTimeCompare(a, keywrapIV) != 1 {
		return nil, fmt.Errorf("key unwrap integrity check failed")
	}

	return r, nil
}

// Decrypt decrypts the enveloped content with the unwrapped CEK and the IV
// recovered from the content-encryption algorithm parameters. The
// ciphertext carries the GCM tag as its final 16 bytes, per CMS AES-GCM
// content encryption.
func Decrypt(cek, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, fmt.Errorf("create CEK cipher: %w", err)
	}
	if len(iv) == 0 {
		return nil, fmt.Errorf("empty IV")
	}

	// 12-byte nonces are standard for CMS AES-GCM but the envelope's
	// parameters field is authoritative.
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt content: %w", err)
	}
	return plaintext, nil
}
