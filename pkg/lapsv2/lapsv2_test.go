package lapsv2

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"

	ber "github.com/go-asn1-ber/asn1-ber"

	"github.com/golaps/golaps/pkg/dpaping"
)

// fakeKeyService hands back canned GroupKeyEnvelope bytes and records the
// request so tests can assert what the pipeline asked for.
type fakeKeyService struct {
	envelope []byte

	gotSD        []byte
	gotRootKeyID [16]byte
	gotL0        int32
	gotL1        int32
	gotL2        int32
}

func (f *fakeKeyService) GetKey(_ context.Context, targetSD []byte, rootKeyID [16]byte, l0, l1, l2 int32) ([]byte, error) {
	f.gotSD = targetSD
	f.gotRootKeyID = rootKeyID
	f.gotL0, f.gotL1, f.gotL2 = l0, l1, l2
	return f.envelope, nil
}

func encodeUTF16LE(s string) []byte {
	b := make([]byte, 0, len(s)*2)
	for _, r := range s {
		b = binary.LittleEndian.AppendUint16(b, uint16(r))
	}
	return b
}

func buildKeyIdentifier(t *testing.T, flags, l0, l1, l2 uint32, rootKeyID [16]byte, keyInfo []byte) []byte {
	t.Helper()
	domain := append(encodeUTF16LE("corp.local"), 0, 0)
	forest := append(encodeUTF16LE("corp.local"), 0, 0)

	b := make([]byte, 0, 64)
	b = binary.LittleEndian.AppendUint32(b, 1) // version
	b = binary.LittleEndian.AppendUint32(b, 0x4b53444b)
	b = binary.LittleEndian.AppendUint32(b, flags)
	b = binary.LittleEndian.AppendUint32(b, l0)
	b = binary.LittleEndian.AppendUint32(b, l1)
	b = binary.LittleEndian.AppendUint32(b, l2)
	b = append(b, rootKeyID[:]...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(keyInfo)))
	b = binary.LittleEndian.AppendUint32(b, uint32(len(domain)))
	b = binary.LittleEndian.AppendUint32(b, uint32(len(forest)))
	b = append(b, keyInfo...)
	b = append(b, domain...)
	b = append(b, forest...)
	return b
}

func buildGroupKeyEnvelope(t *testing.T, l0, l1, l2 uint32, rootKeyID [16]byte, l1Key, l2Key []byte) []byte {
	t.Helper()
	kdfAlgo := append(encodeUTF16LE("SP800_108_CTR_HMAC"), 0, 0)
	domain := append(encodeUTF16LE("corp.local"), 0, 0)
	forest := append(encodeUTF16LE("corp.local"), 0, 0)

	b := make([]byte, 0, 256)
	b = binary.LittleEndian.AppendUint32(b, 1) // version
	b = binary.LittleEndian.AppendUint32(b, 0x4b53444b)
	b = binary.LittleEndian.AppendUint32(b, 0) // flags
	b = binary.LittleEndian.AppendUint32(b, l0)
	b = binary.LittleEndian.AppendUint32(b, l1)
	b = binary.LittleEndian.AppendUint32(b, l2)
	b = append(b, rootKeyID[:]...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(kdfAlgo)))
	b = binary.LittleEndian.AppendUint32(b, 0) // kdf parameters
	b = binary.LittleEndian.AppendUint32(b, 0) // secret algorithm
	b = binary.LittleEndian.AppendUint32(b, 0) // secret parameters
	b = binary.LittleEndian.AppendUint32(b, 0) // private key length
	b = binary.LittleEndian.AppendUint32(b, 0) // public key length
	b = binary.LittleEndian.AppendUint32(b, uint32(len(l1Key)))
	b = binary.LittleEndian.AppendUint32(b, uint32(len(l2Key)))
	b = binary.LittleEndian.AppendUint32(b, uint32(len(domain)))
	b = binary.LittleEndian.AppendUint32(b, uint32(len(forest)))
	b = append(b, kdfAlgo...)
	b = append(b, domain...)
	b = append(b, forest...)
	b = append(b, l1Key...)
	b = append(b, l2Key...)
	return b
}

// wrapKey is RFC 3394 AES key wrap, used to build test fixtures.
func wrapKey(t *testing.T, kek, key []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(kek)
	if err != nil {
		t.Fatalf("create cipher: %v", err)
	}

	n := len(key) / 8
	a := []byte{0xa6, 0xa6, 0xa6, 0xa6, 0xa6, 0xa6, 0xa6, 0xa6}
	r := make([]byte, len(key))
	copy(r, key)

	buf := make([]byte, 16)
	for j := 0; j <= 5; j++ {
		for i := 1; i <= n; i++ {
			copy(buf[:8], a)
			copy(buf[8:], r[(i-1)*8:i*8])
			block.Encrypt(buf, buf)
			t := uint64(n*j + i)
			binary.BigEndian.PutUint64(a, binary.BigEndian.Uint64(buf[:8])^t)
			copy(r[(i-1)*8:i*8], buf[8:])
		}
	}

	return append(a, r...)
}

func berSequence(desc string) *ber.Packet {
	return ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, desc)
}

func berOctetString(b []byte) *ber.Packet {
	p := ber.Encode(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, nil, "octet string")
	p.Data.Write(b)
	return p
}

func berOID(content []byte) *ber.Packet {
	p := ber.Encode(ber.ClassUniversal, ber.TypePrimitive, ber.TagObjectIdentifier, nil, "oid")
	p.Data.Write(content)
	return p
}

func berInteger(v byte) *ber.Packet {
	p := ber.Encode(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, nil, "integer")
	p.Data.Write([]byte{v})
	return p
}

// buildRecipient assembles a KEKRecipientInfo ([2] IMPLICIT) carrying the
// key identifier, a SID key attribute, and the wrapped CEK.
func buildRecipient(keyIdentifier []byte, sid string, encryptedKey []byte) *ber.Packet {
	pair := berSequence("descriptor pair")
	pair.AppendChild(berOctetString([]byte("SID")))
	pair.AppendChild(berOctetString([]byte(sid)))

	inner := berSequence("descriptor")
	inner.AppendChild(pair)

	outer := berSequence("descriptor list")
	outer.AppendChild(inner)

	keyAttr := berSequence("key attribute")
	keyAttr.AppendChild(berOctetString([]byte("protection")))
	keyAttr.AppendChild(outer)

	other := berSequence("OtherKeyAttribute")
	other.AppendChild(berOID([]byte{0x2a, 0x03, 0x04}))
	other.AppendChild(keyAttr)

	kekid := berSequence("KEKIdentifier")
	kekid.AppendChild(berOctetString(keyIdentifier))
	kekid.AppendChild(other)

	keyEncAlg := berSequence("keyEncryptionAlgorithm")
	keyEncAlg.AppendChild(berOID([]byte{0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x01, 0x2d})) // aes256-wrap

	recipient := ber.Encode(ber.ClassContext, ber.TypeConstructed, 2, nil, "KEKRecipientInfo")
	recipient.AppendChild(berInteger(4))
	recipient.AppendChild(kekid)
	recipient.AppendChild(keyEncAlg)
	recipient.AppendChild(berOctetString(encryptedKey))
	return recipient
}

// buildBlob assembles a complete msLAPS-EncryptedPassword value: header,
// ContentInfo, trailing ciphertext.
func buildBlob(t *testing.T, updated time.Time, recipients []*ber.Packet, iv, ciphertext []byte) []byte {
	t.Helper()

	recipientInfos := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSet, nil, "recipientInfos")
	for _, r := range recipients {
		recipientInfos.AppendChild(r)
	}

	gcmParams := berSequence("GCMParameters")
	gcmParams.AppendChild(berOctetString(iv))
	gcmParams.AppendChild(berInteger(16))

	algorithm := berSequence("contentEncryptionAlgorithm")
	algorithm.AppendChild(berOID([]byte{0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x01, 0x2e})) // aes256-GCM
	algorithm.AppendChild(gcmParams)

	eci := berSequence("EncryptedContentInfo")
	eci.AppendChild(berOID([]byte{0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x07, 0x01})) // pkcs7-data
	eci.AppendChild(algorithm)

	envelopedData := berSequence("EnvelopedData")
	envelopedData.AppendChild(berInteger(2))
	envelopedData.AppendChild(recipientInfos)
	envelopedData.AppendChild(eci)

	wrapper := ber.Encode(ber.ClassContext, ber.TypeConstructed, 0, nil, "content")
	wrapper.AppendChild(envelopedData)

	contentInfo := berSequence("ContentInfo")
	contentInfo.AppendChild(berOID(oidEnvelopedData))
	contentInfo.AppendChild(wrapper)

	ft := uint64(updated.Unix()+11644473600)*10000000 + uint64(updated.Nanosecond()/100)
	cms := contentInfo.Bytes()

	blob := make([]byte, 0, 16+len(cms)+len(ciphertext))
	blob = binary.LittleEndian.AppendUint32(blob, uint32(ft))
	blob = binary.LittleEndian.AppendUint32(blob, uint32(ft>>32))
	blob = binary.LittleEndian.AppendUint32(blob, uint32(len(cms)+len(ciphertext)))
	blob = binary.LittleEndian.AppendUint32(blob, 0)
	blob = append(blob, cms...)
	blob = append(blob, ciphertext...)
	return blob
}

func TestParseEncryptedPasswordBlobHeader(t *testing.T) {
	updated := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	ft := uint64(updated.Unix()+11644473600) * 10000000

	data := make([]byte, 0, 32)
	data = binary.LittleEndian.AppendUint32(data, uint32(ft))
	data = binary.LittleEndian.AppendUint32(data, uint32(ft>>32))
	data = binary.LittleEndian.AppendUint32(data, 4)
	data = binary.LittleEndian.AppendUint32(data, 7)
	data = append(data, 0xde, 0xad, 0xbe, 0xef)

	blob, err := ParseEncryptedPasswordBlob(data)
	if err != nil {
		t.Fatalf("ParseEncryptedPasswordBlob failed: %v", err)
	}
	if !blob.Updated.Equal(updated) {
		t.Errorf("expected update time %v, got %v", updated, blob.Updated)
	}
	if blob.Flags != 7 {
		t.Errorf("expected flags 7, got %d", blob.Flags)
	}
	if !bytes.Equal(blob.Blob, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Errorf("unexpected payload %x", blob.Blob)
	}
}

func TestParseEncryptedPasswordBlobRejections(t *testing.T) {
	if _, err := ParseEncryptedPasswordBlob(make([]byte, 16)); err == nil {
		t.Error("expected error for header-only input")
	}

	// length field claims more payload than is present
	data := make([]byte, 20)
	binary.LittleEndian.PutUint32(data[8:], 100)
	if _, err := ParseEncryptedPasswordBlob(data); err == nil {
		t.Error("expected error for truncated payload")
	}
}

func TestDecryptRoundTrip(t *testing.T) {
	const sid = "S-1-5-21-1004336348-1177238915-682003330-512"
	const password = "P@ssw0rd!"
	document := `{"n":"Administrator","t":"1d9e7cba8f2a3b0","p":"` + password + `"}`

	rootKeyID := [16]byte{0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70, 0x80,
		0x90, 0xa0, 0xb0, 0xc0, 0xd0, 0xe0, 0xf0, 0x01}
	keyInfo := bytes.Repeat([]byte{0x5a}, 32)
	l2Key := bytes.Repeat([]byte{0x33}, 64)

	kidRaw := buildKeyIdentifier(t, 0, 1, 0, 0, rootKeyID, keyInfo)
	gkeRaw := buildGroupKeyEnvelope(t, 1, 0, 0, rootKeyID, bytes.Repeat([]byte{0x11}, 64), l2Key)

	gke, err := dpaping.ParseGroupKeyEnvelope(gkeRaw)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	kid, err := dpaping.ParseKeyIdentifier(kidRaw)
	if err != nil {
		t.Fatalf("parse key identifier: %v", err)
	}
	kek, err := dpaping.ComputeKEK(gke, kid)
	if err != nil {
		t.Fatalf("compute KEK: %v", err)
	}

	cek := bytes.Repeat([]byte{0x77}, 32)
	wrapped := wrapKey(t, kek, cek)

	plaintext := append(encodeUTF16LE(document), make([]byte, trailerLength)...)
	iv := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}

	block, _ := aes.NewCipher(cek)
	gcm, _ := cipher.NewGCMWithNonceSize(block, len(iv))
	ciphertext := gcm.Seal(nil, iv, plaintext, nil)

	recipient := buildRecipient(kidRaw, sid, wrapped)
	blob := buildBlob(t, time.Now(), []*ber.Packet{recipient}, iv, ciphertext)

	fake := &fakeKeyService{envelope: gkeRaw}
	d := &Decryptor{Fetcher: fake}

	got, err := d.Decrypt(context.Background(), blob)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if got != document {
		t.Errorf("expected %q, got %q", document, got)
	}
	if !strings.Contains(got, password) {
		t.Errorf("decrypted document does not contain the password: %q", got)
	}

	// the key service must have been asked for the exact key the blob names
	if fake.gotRootKeyID != rootKeyID {
		t.Errorf("wrong root key requested: %x", fake.gotRootKeyID)
	}
	if fake.gotL0 != 1 || fake.gotL1 != 0 || fake.gotL2 != 0 {
		t.Errorf("wrong indices requested: %d/%d/%d", fake.gotL0, fake.gotL1, fake.gotL2)
	}
	wantSD, _ := dpaping.SecurityDescriptor(sid)
	if !bytes.Equal(fake.gotSD, wantSD) {
		t.Error("target security descriptor does not match the protection SID")
	}
}

func TestDecryptBarePassword(t *testing.T) {
	// Minimal fixture: the plaintext is the password alone, 16-byte IV.
	const password = "P@ssw0rd!"

	rootKeyID := [16]byte{0xaa, 0xbb, 0xcc}
	keyInfo := bytes.Repeat([]byte{0x21}, 32)
	kidRaw := buildKeyIdentifier(t, 0, 1, 0, 0, rootKeyID, keyInfo)
	gkeRaw := buildGroupKeyEnvelope(t, 1, 0, 0, rootKeyID,
		bytes.Repeat([]byte{0x11}, 64), bytes.Repeat([]byte{0x22}, 64))

	gke, _ := dpaping.ParseGroupKeyEnvelope(gkeRaw)
	kid, _ := dpaping.ParseKeyIdentifier(kidRaw)
	kek, err := dpaping.ComputeKEK(gke, kid)
	if err != nil {
		t.Fatalf("compute KEK: %v", err)
	}

	cek := bytes.Repeat([]byte{0x99}, 32)
	iv := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	plaintext := append(encodeUTF16LE(password), make([]byte, trailerLength)...)

	block, _ := aes.NewCipher(cek)
	gcm, _ := cipher.NewGCMWithNonceSize(block, len(iv))
	ciphertext := gcm.Seal(nil, iv, plaintext, nil)

	blob := buildBlob(t, time.Now(),
		[]*ber.Packet{buildRecipient(kidRaw, "S-1-1-0", wrapKey(t, kek, cek))}, iv, ciphertext)

	d := &Decryptor{Fetcher: &fakeKeyService{envelope: gkeRaw}}
	got, err := d.Decrypt(context.Background(), blob)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if got != password {
		t.Errorf("expected %q, got %q", password, got)
	}
}

func TestDecryptWrongRootKeyMaterial(t *testing.T) {
	rootKeyID := [16]byte{1}
	keyInfo := bytes.Repeat([]byte{0x5a}, 32)

	kidRaw := buildKeyIdentifier(t, 0, 361, 14, 7, rootKeyID, keyInfo)
	goodEnvelope := buildGroupKeyEnvelope(t, 361, 14, 7, rootKeyID,
		bytes.Repeat([]byte{0x11}, 64), bytes.Repeat([]byte{0x33}, 64))

	gke, _ := dpaping.ParseGroupKeyEnvelope(goodEnvelope)
	kid, _ := dpaping.ParseKeyIdentifier(kidRaw)
	kek, _ := dpaping.ComputeKEK(gke, kid)

	cek := bytes.Repeat([]byte{0x77}, 32)
	wrapped := wrapKey(t, kek, cek)

	iv := bytes.Repeat([]byte{0xab}, 12)
	block, _ := aes.NewCipher(cek)
	gcm, _ := cipher.NewGCM(block)
	ciphertext := gcm.Seal(nil, iv, append(encodeUTF16LE("x"), make([]byte, trailerLength)...), nil)

	blob := buildBlob(t, time.Now(), []*ber.Packet{buildRecipient(kidRaw, "S-1-1-0", wrapped)}, iv, ciphertext)

	// key service hands back an envelope with different key material
	badEnvelope := buildGroupKeyEnvelope(t, 361, 14, 7, rootKeyID,
		bytes.Repeat([]byte{0x11}, 64), bytes.Repeat([]byte{0x44}, 64))
	d := &Decryptor{Fetcher: &fakeKeyService{envelope: badEnvelope}}

	_, err := d.Decrypt(context.Background(), blob)
	var cryptoErr *CryptoError
	if !errors.As(err, &cryptoErr) {
		t.Fatalf("expected CryptoError, got %v", err)
	}
}

func TestDecryptRejectsMultipleRecipients(t *testing.T) {
	kidRaw := buildKeyIdentifier(t, 0, 1, 0, 0, [16]byte{}, nil)
	r1 := buildRecipient(kidRaw, "S-1-1-0", make([]byte, 40))
	r2 := buildRecipient(kidRaw, "S-1-1-0", make([]byte, 40))
	blob := buildBlob(t, time.Now(), []*ber.Packet{r1, r2}, make([]byte, 12), []byte{1, 2, 3})

	d := &Decryptor{Fetcher: &fakeKeyService{}}
	_, err := d.Decrypt(context.Background(), blob)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if !strings.Contains(err.Error(), "recipient") {
		t.Errorf("error should name the recipient count problem: %v", err)
	}
}

func TestDecryptRejectsPublicKeyIdentifier(t *testing.T) {
	kidRaw := buildKeyIdentifier(t, 1, 1, 0, 0, [16]byte{}, bytes.Repeat([]byte{9}, 32))
	blob := buildBlob(t, time.Now(),
		[]*ber.Packet{buildRecipient(kidRaw, "S-1-1-0", make([]byte, 40))},
		make([]byte, 12), []byte{1, 2, 3})

	d := &Decryptor{Fetcher: &fakeKeyService{}}
	_, err := d.Decrypt(context.Background(), blob)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	d := &Decryptor{Fetcher: &fakeKeyService{}}

	for _, tc := range []struct {
		name string
		data []byte
	}{
		{"too short", make([]byte, 10)},
		{"garbage payload", append(make([]byte, 16), bytes.Repeat([]byte{0xff}, 32)...)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Decrypt(context.Background(), tc.data)
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("expected DecodeError, got %v", err)
			}
		})
	}
}

func TestParseCMSNoTrailingCiphertext(t *testing.T) {
	kidRaw := buildKeyIdentifier(t, 0, 1, 0, 0, [16]byte{}, nil)
	blob := buildBlob(t, time.Now(),
		[]*ber.Packet{buildRecipient(kidRaw, "S-1-1-0", make([]byte, 40))},
		make([]byte, 12), nil)

	// payload is the bare ContentInfo with nothing after it
	if _, err := parseCMS(blob[16:]); err == nil {
		t.Error("expected error when no ciphertext follows the ContentInfo")
	}
}
