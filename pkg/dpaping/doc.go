// Package dpaping implements the client side of DPAPI-NG (CNG DPAPI) key
// derivation and unwrapping, as used by Windows LAPS encrypted passwords.
//
// EDUCATIONAL: The DPAPI-NG Key Hierarchy
//
// DPAPI-NG protects data to a *principal* (a SID) instead of to a machine.
// A domain-wide root key, held by the Key Distribution Service (KDS) on the
// DCs, is never released directly. Instead the KDS derives a hierarchy:
//
//	root key --> L0 key --> L1 key (0..31) --> L2 key (0..31)
//
// and hands an authorized caller a GroupKeyEnvelope containing L1/L2 keys
// from which older L2 keys (same L0 period) can be derived, but never newer
// ones. Every derivation step is SP800-108 counter-mode HMAC-SHA512 with the
// fixed label "KDS service" and a context binding the root key GUID and the
// (L0, L1, L2) indices.
//
// The consumer side, implemented here:
//
//  1. Parse the KeyIdentifier embedded in the protected blob
//  2. Obtain the GroupKeyEnvelope from the KDS (MS-GKDI GetKey)
//  3. Walk the L1/L2 chain down to the identifier's indices
//  4. KEK = KDF(L2 key, "KDS service", KeyIdentifier.KeyInfo, 32)
//  5. Unwrap the content-encryption key (RFC 3394 AES key wrap)
//  6. AES-GCM decrypt the payload
//
// A single wrong index, context byte, or counter encoding breaks the chain,
// usually as an unwrap or GCM authentication failure.
package dpaping
