package lapsv2

import (
	"bytes"
	"fmt"

	ber "github.com/go-asn1-ber/asn1-ber"
)

// oidEnvelopedData is the DER content of OBJECT IDENTIFIER
// 1.2.840.113549.1.7.3 (pkcs7-envelopedData).
var oidEnvelopedData = []byte{0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x07, 0x03}

// recipientTagKEKRI is the RecipientInfo CHOICE tag for KEKRecipientInfo.
const recipientTagKEKRI = 2

// cmsEnvelope is everything the pipeline needs out of the CMS layer.
type cmsEnvelope struct {
	keyIdentifier []byte // KEKIdentifier.keyIdentifier (a KDS KeyIdentifier)
	sid           string // protection SID from KEKIdentifier.other.keyAttr
	encryptedKey  []byte // the wrapped CEK
	iv            []byte // nonce from contentEncryptionAlgorithm.parameters
	ciphertext    []byte // content trailing the ContentInfo structure
}

// parseCMS walks ContentInfo -> EnvelopedData -> KEKRecipientInfo and
// collects the decryption inputs.
//
// LAPS blobs are single-recipient by construction; anything else is
// rejected outright rather than guessed at.
func parseCMS(data []byte) (*cmsEnvelope, error) {
	contentInfo, err := ber.DecodePacketErr(data)
	if err != nil {
		return nil, fmt.Errorf("ContentInfo: %w", err)
	}
	if contentInfo.ClassType != ber.ClassUniversal || contentInfo.Tag != ber.TagSequence ||
		len(contentInfo.Children) != 2 {
		return nil, fmt.Errorf("ContentInfo: not a two-element sequence")
	}
	if !bytes.Equal(contentInfo.Children[0].Data.Bytes(), oidEnvelopedData) {
		return nil, fmt.Errorf("ContentInfo: content type is not envelopedData")
	}

	// the AES-GCM ciphertext (and tag) trail the ContentInfo
	consumed := len(contentInfo.Bytes())
	if consumed >= len(data) {
		return nil, fmt.Errorf("no ciphertext after ContentInfo")
	}

	// content is [0] EXPLICIT EnvelopedData
	wrapper := contentInfo.Children[1]
	if wrapper.ClassType != ber.ClassContext || len(wrapper.Children) != 1 {
		return nil, fmt.Errorf("ContentInfo: malformed content wrapper")
	}

	env := &cmsEnvelope{ciphertext: data[consumed:]}
	if err := parseEnvelopedData(wrapper.Children[0], env); err != nil {
		return nil, err
	}
	return env, nil
}

func parseEnvelopedData(envelopedData *ber.Packet, env *cmsEnvelope) error {
	// version, recipientInfos, encryptedContentInfo
	if envelopedData.Tag != ber.TagSequence || len(envelopedData.Children) < 3 {
		return fmt.Errorf("EnvelopedData: not a sequence of at least 3 elements")
	}

	recipientInfos := envelopedData.Children[1]
	if len(recipientInfos.Children) != 1 {
		// single-recipient format is a hard precondition
		return fmt.Errorf("EnvelopedData: expected exactly 1 recipient, got %d",
			len(recipientInfos.Children))
	}

	if err := parseKEKRecipientInfo(recipientInfos.Children[0], env); err != nil {
		return err
	}

	return parseEncryptedContentInfo(envelopedData.Children[2], env)
}

func parseKEKRecipientInfo(recipient *ber.Packet, env *cmsEnvelope) error {
	if recipient.ClassType != ber.ClassContext || recipient.Tag != recipientTagKEKRI {
		return fmt.Errorf("RecipientInfo: not a KEKRecipientInfo (tag %d)", recipient.Tag)
	}
	// version, kekid, keyEncryptionAlgorithm, encryptedKey
	if len(recipient.Children) != 4 {
		return fmt.Errorf("KEKRecipientInfo: expected 4 elements, got %d",
			len(recipient.Children))
	}

	kekid := recipient.Children[1]
	if len(kekid.Children) < 2 {
		return fmt.Errorf("KEKIdentifier: missing key attributes")
	}
	env.keyIdentifier = kekid.Children[0].Data.Bytes()

	// other OtherKeyAttribute is the last element (date is optional)
	other := kekid.Children[len(kekid.Children)-1]
	if other.ClassType != ber.ClassUniversal || other.Tag != ber.TagSequence ||
		len(other.Children) != 2 {
		return fmt.Errorf("KEKIdentifier: malformed OtherKeyAttribute")
	}

	sid, err := extractSID(other.Children[1])
	if err != nil {
		return fmt.Errorf("KEKIdentifier: %w", err)
	}
	env.sid = sid

	env.encryptedKey = recipient.Children[3].Data.Bytes()
	if len(env.encryptedKey) == 0 {
		return fmt.Errorf("KEKRecipientInfo: empty encryptedKey")
	}

	return nil
}

// extractSID digs the protection SID out of the key attribute: a
// descriptor sequence whose second element is a sequence-of-sequences of
// (type, value) pairs, the first of which is ("SID", "S-1-5-...").
func extractSID(keyAttr *ber.Packet) (string, error) {
	if len(keyAttr.Children) < 2 {
		return "", fmt.Errorf("key attribute is not a descriptor sequence")
	}
	outer := keyAttr.Children[1]
	if len(outer.Children) < 1 || len(outer.Children[0].Children) < 1 {
		return "", fmt.Errorf("key attribute descriptor list is empty")
	}
	pair := outer.Children[0].Children[0]
	if len(pair.Children) < 2 {
		return "", fmt.Errorf("key attribute descriptor has no value")
	}
	sid := pair.Children[1].Data.String()
	if sid == "" {
		return "", fmt.Errorf("empty protection SID")
	}
	return sid, nil
}

func parseEncryptedContentInfo(eci *ber.Packet, env *cmsEnvelope) error {
	// contentType, contentEncryptionAlgorithm [, encryptedContent]
	if eci.Tag != ber.TagSequence || len(eci.Children) < 2 {
		return fmt.Errorf("EncryptedContentInfo: not a sequence of at least 2 elements")
	}

	algorithm := eci.Children[1]
	if len(algorithm.Children) < 2 {
		return fmt.Errorf("EncryptedContentInfo: algorithm has no parameters")
	}

	// parameters is GCMParameters: SEQUENCE { nonce OCTET STRING, ... }
	params := algorithm.Children[1]
	if len(params.Children) < 1 {
		return fmt.Errorf("EncryptedContentInfo: empty GCM parameters")
	}
	env.iv = params.Children[0].Data.Bytes()
	if len(env.iv) == 0 {
		return fmt.Errorf("EncryptedContentInfo: empty IV")
	}

	return nil
}
