// Package gkdi is a client for the Group Key Distribution Service
// (MS-GKDI) GetKey operation.
//
// EDUCATIONAL: MS-GKDI
//
// The KDS runs on every domain controller and exposes a single-method
// DCERPC interface, ISDKey (b9785960-524f-11df-8b6d-83dcded72085):
//
//	GetKey(targetSD, rootKeyID, L0, L1, L2) -> GroupKeyEnvelope
//
// The interface has no fixed TCP port; the endpoint mapper on port 135
// resolves the dynamic endpoint at connect time. The DC only releases key
// material over an authenticated connection with packet privacy, and only
// when the caller is granted access by the presented security descriptor.
//
// Protocol flow:
//  1. EPM lookup of the ISDKey interface on the DC
//  2. Authenticated bind (SPNEGO: Kerberos or NTLM) with sign + seal
//  3. GetKey(opnum 0) with the target descriptor and key indices
//  4. Output buffer = GroupKeyEnvelope (parsed by pkg/dpaping)
package gkdi
