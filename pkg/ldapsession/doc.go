// Package ldapsession establishes authenticated LDAP sessions against
// Active Directory domain controllers.
//
// EDUCATIONAL: LDAP Authentication Against AD
//
// A domain controller exposes LDAP on 389 (plaintext) and LDAPS on 636
// (TLS). Modern DCs enforce LDAP signing, which NTLM over plaintext LDAP
// cannot satisfy: the server answers the bind with resultCode 8
// (strongerAuthRequired). The standard operator move is a single retry of
// the same bind over LDAPS, where the TLS channel satisfies the signing
// requirement. Anything that fails twice is a real rejection, not a
// transport problem.
//
// Failed binds carry an AD-specific sub-code inside the diagnostic
// message ("... data 533 ..."), which distinguishes a wrong password from
// a disabled account, expired password, logon-hours restriction and so
// on. Those sub-codes are mapped to their NT status names so the operator
// sees STATUS_ACCOUNT_DISABLED instead of a bare LDAP resultCode 49.
package ldapsession
