// Package creds holds the credential material used by the LDAP and RPC
// layers.
//
// EDUCATIONAL: AD Credential Forms
//
// Active Directory accepts several equivalent proofs of identity:
//
//   - Cleartext password (NTLM or Kerberos pre-auth)
//   - NTLM hash pair "LM:NT" (pass-the-hash, no password needed)
//   - Kerberos AES key (pass-the-key)
//   - Kerberos ticket cache (pass-the-ticket)
//
// Tools conventionally take the hash pair as a single "LM:NT" string, or a
// bare NT hash when the LM half is irrelevant (it almost always is - the LM
// half of modern accounts is the constant aad3b435b51404eeaad3b435b51404ee).
//
// The rule everywhere in this toolkit: when a password is present it wins;
// the hash pair is only consulted when the password is empty.
package creds
