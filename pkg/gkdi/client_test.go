package gkdi

import (
	"bytes"
	"testing"
)

func TestRegisterMechanismsLateKerberos(t *testing.T) {
	// A non-Kerberos dial followed by a Kerberos one must still end up
	// with KRB5 registered; the base mechanisms are only installed once.
	mechanismMu.Lock()
	baseRegistered, krb5Registered = false, false
	mechanismMu.Unlock()

	registerMechanisms(false)

	mechanismMu.Lock()
	base, krb5 := baseRegistered, krb5Registered
	mechanismMu.Unlock()
	if !base {
		t.Fatal("SPNEGO/NTLM must be registered on the first dial")
	}
	if krb5 {
		t.Fatal("KRB5 must not be registered without the kerberos flag")
	}

	registerMechanisms(true)

	mechanismMu.Lock()
	krb5 = krb5Registered
	mechanismMu.Unlock()
	if !krb5 {
		t.Fatal("a later Kerberos dial must register KRB5")
	}
}

func TestGUIDFromWire(t *testing.T) {
	wire := [16]byte{
		0x01, 0x02, 0x03, 0x04,
		0x05, 0x06,
		0x07, 0x08,
		0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10,
	}

	g := guidFromWire(wire)
	if g.Data1 != 0x04030201 {
		t.Errorf("Data1 = 0x%08x, want 0x04030201", g.Data1)
	}
	if g.Data2 != 0x0605 {
		t.Errorf("Data2 = 0x%04x, want 0x0605", g.Data2)
	}
	if g.Data3 != 0x0807 {
		t.Errorf("Data3 = 0x%04x, want 0x0807", g.Data3)
	}
	if !bytes.Equal(g.Data4, wire[8:]) {
		t.Errorf("Data4 = %x, want %x", g.Data4, wire[8:])
	}
}
