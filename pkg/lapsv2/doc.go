// Package lapsv2 recovers plaintext passwords from Windows LAPS encrypted
// password blobs (the msLAPS-EncryptedPassword attribute).
//
// EDUCATIONAL: How Windows LAPS Encrypts Passwords
//
// Windows LAPS (the successor to legacy LAPS) no longer stores the local
// admin password in a cleartext attribute. The managed machine encrypts it
// with CNG DPAPI (DPAPI-NG) to a protection SID - by default the Domain
// Admins group - and writes the result to msLAPS-EncryptedPassword.
//
// The blob layout is:
//
//	[16-byte header: update FILETIME, length, flags]
//	[CMS ContentInfo(EnvelopedData) with one KEKRecipientInfo]
//	[AES-GCM ciphertext + tag]
//
// Unusually for CMS, the ciphertext is NOT inside the EnvelopedData's
// EncryptedContentInfo - it trails the ContentInfo structure. The
// KEKRecipientInfo's key identifier names the exact KDS-derived key
// (root key GUID + L0/L1/L2 indices), and its key attributes carry the
// protection SID.
//
// Recovery therefore needs domain credentials authorized by that SID:
// the pipeline asks the DC's Group Key Distribution Service for the root
// key material (MS-GKDI GetKey), re-derives the KEK locally, unwraps the
// CEK, and decrypts. The decrypted buffer is UTF-16LE JSON with a fixed
// 18-byte trailer.
//
// Every stage failure is reported with its stage name; nothing is retried
// and no partial result is ever returned.
package lapsv2
