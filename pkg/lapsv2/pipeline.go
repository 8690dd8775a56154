package lapsv2

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/unicode"

	"github.com/golaps/golaps/pkg/creds"
	"github.com/golaps/golaps/pkg/dpaping"
	"github.com/golaps/golaps/pkg/gkdi"
)

// trailerLength is the fixed number of bytes after the JSON payload in a
// decrypted msLAPS-EncryptedPassword buffer (observed on the wire; a
// UTF-16 NUL terminator plus padding).
const trailerLength = 18

// KeyFetcher obtains the GroupKeyEnvelope bytes for a named KDS key.
// The production implementation is an MS-GKDI GetKey call against a DC.
type KeyFetcher interface {
	GetKey(ctx context.Context, targetSD []byte, rootKeyID [16]byte, l0, l1, l2 int32) ([]byte, error)
}

var _ KeyFetcher = (*gkdi.Client)(nil)

// Decryptor recovers plaintext from LAPS encrypted password blobs.
//
// Fetcher may be left nil, in which case each Decrypt call dials the
// configured DC's key service. The zero-value Log is a no-op.
type Decryptor struct {
	Cred     *creds.Credential
	DC       string
	Kerberos bool
	Fetcher  KeyFetcher
	Log      zerolog.Logger
}

// Decrypt runs the full recovery pipeline on a raw
// msLAPS-EncryptedPassword attribute value and returns the decrypted
// UTF-16LE payload decoded to a Go string (the LAPS JSON document).
func (d *Decryptor) Decrypt(ctx context.Context, data []byte) (string, error) {
	blob, err := ParseEncryptedPasswordBlob(data)
	if err != nil {
		return "", &DecodeError{Stage: "blob header", Err: err}
	}
	d.Log.Debug().Time("updated", blob.Updated).Uint32("flags", blob.Flags).
		Msg("parsed encrypted password blob")

	env, err := parseCMS(blob.Blob)
	if err != nil {
		return "", &DecodeError{Stage: "CMS envelope", Err: err}
	}

	keyID, err := dpaping.ParseKeyIdentifier(env.keyIdentifier)
	if err != nil {
		return "", &DecodeError{Stage: "key identifier", Err: err}
	}
	if keyID.IsPublicKey() {
		return "", &DecodeError{Stage: "key identifier",
			Err: fmt.Errorf("public-key protected blob is not supported")}
	}
	d.Log.Debug().Str("sid", env.sid).
		Uint32("l0", keyID.L0Index).Uint32("l1", keyID.L1Index).Uint32("l2", keyID.L2Index).
		Msg("key identifier parsed")

	targetSD, err := dpaping.SecurityDescriptor(env.sid)
	if err != nil {
		return "", &DecodeError{Stage: "protection SID", Err: err}
	}

	fetcher := d.Fetcher
	if fetcher == nil {
		client, err := gkdi.Dial(ctx, d.DC, d.Cred, d.Kerberos)
		if err != nil {
			return "", &RPCError{Op: "connect", Err: err}
		}
		defer client.Close(ctx)
		fetcher = client
	}

	envelopeBytes, err := fetcher.GetKey(ctx, targetSD, keyID.RootKeyID,
		int32(keyID.L0Index), int32(keyID.L1Index), int32(keyID.L2Index))
	if err != nil {
		return "", &RPCError{Op: "GetKey", Err: err}
	}

	gke, err := dpaping.ParseGroupKeyEnvelope(envelopeBytes)
	if err != nil {
		return "", &DecodeError{Stage: "group key envelope", Err: err}
	}

	kek, err := dpaping.ComputeKEK(gke, keyID)
	if err != nil {
		return "", &CryptoError{Stage: "derive KEK", Err: err}
	}

	cek, err := dpaping.UnwrapCEK(kek, env.encryptedKey)
	if err != nil {
		return "", &CryptoError{Stage: "unwrap CEK", Err: err}
	}

	plaintext, err := dpaping.Decrypt(cek, env.iv, env.ciphertext)
	if err != nil {
		return "", &CryptoError{Stage: "decrypt password blob", Err: err}
	}

	if len(plaintext) < trailerLength {
		return "", &DecodeError{Stage: "plaintext",
			Err: fmt.Errorf("decrypted payload too short: %d bytes", len(plaintext))}
	}

	decoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).
		NewDecoder().Bytes(plaintext[:len(plaintext)-trailerLength])
	if err != nil {
		return "", &DecodeError{Stage: "plaintext", Err: err}
	}

	d.Log.Debug().Int("bytes", len(decoded)).Msg("password blob decrypted")
	return string(decoded), nil
}
