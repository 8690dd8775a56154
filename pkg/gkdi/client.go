package gkdi

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/oiweiwei/go-msrpc/dcerpc"
	"github.com/oiweiwei/go-msrpc/msrpc/dtyp"
	"github.com/oiweiwei/go-msrpc/msrpc/epm/epm/v3"
	"github.com/oiweiwei/go-msrpc/msrpc/gkdi/isdkey/v1"
	"github.com/oiweiwei/go-msrpc/ssp"
	"github.com/oiweiwei/go-msrpc/ssp/credential"
	"github.com/oiweiwei/go-msrpc/ssp/gssapi"

	"github.com/golaps/golaps/pkg/creds"
)

var (
	mechanismMu    sync.Mutex
	baseRegistered bool
	krb5Registered bool
)

// registerMechanisms installs the SSP mechanisms process-wide. SPNEGO and
// NTLM are registered once; KRB5 is added the first time any caller asks
// for Kerberos, even when earlier dials did not.
func registerMechanisms(kerberos bool) {
	mechanismMu.Lock()
	defer mechanismMu.Unlock()

	if kerberos && !krb5Registered {
		gssapi.AddMechanism(ssp.KRB5)
		krb5Registered = true
	}
	if !baseRegistered {
		gssapi.AddMechanism(ssp.SPNEGO)
		gssapi.AddMechanism(ssp.NTLM)
		baseRegistered = true
	}
}

// Client is an authenticated, sealed DCERPC channel to a DC's ISDKey
// interface.
type Client struct {
	conn   dcerpc.Conn
	client isdkey.ISDKeyClient
}

// Dial resolves the ISDKey endpoint on dc via the endpoint mapper and binds
// to it with the supplied credential. Packet privacy (which subsumes packet
// integrity) is required on the channel; the KDS rejects anything weaker.
func Dial(ctx context.Context, dc string, cred *creds.Credential, kerberos bool) (*Client, error) {
	if cred.Password != "" {
		gssapi.AddCredential(credential.NewFromPassword(cred.Username, cred.Password,
			credential.Domain(strings.ToUpper(cred.Domain))))
	} else if cred.HasHash() {
		hash, err := cred.NTHashBytes()
		if err != nil {
			return nil, fmt.Errorf("invalid credential: %w", err)
		}
		gssapi.AddCredential(credential.NewFromNTHashBytes(cred.Username, hash,
			credential.Domain(strings.ToUpper(cred.Domain))))
	} else {
		return nil, fmt.Errorf("no usable credential for %s", cred.LogonName())
	}

	registerMechanisms(kerberos)

	ctx = gssapi.NewSecurityContext(ctx)

	// No fixed endpoint for ISDKey: let the endpoint mapper on 135 resolve
	// the dynamic TCP port.
	cc, err := dcerpc.Dial(ctx, "ncacn_ip_tcp:"+dc,
		epm.EndpointMapper(ctx,
			net.JoinHostPort(dc, "135"),
			dcerpc.WithInsecure(),
		))
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", dc, err)
	}

	client, err := isdkey.NewISDKeyClient(ctx, cc,
		dcerpc.WithSeal(),
		dcerpc.WithTargetName(dc))
	if err != nil {
		cc.Close(ctx)
		return nil, fmt.Errorf("bind to ISDKey: %w", err)
	}

	return &Client{conn: cc, client: client}, nil
}

// Close tears down the RPC connection.
func (c *Client) Close(ctx context.Context) {
	if c.conn != nil {
		c.conn.Close(ctx)
	}
}

// GetKey invokes ISDKey opnum 0 and returns the raw GroupKeyEnvelope
// bytes. rootKeyID is the 16-byte wire-form GUID from the KeyIdentifier.
func (c *Client) GetKey(ctx context.Context, targetSD []byte, rootKeyID [16]byte, l0, l1, l2 int32) ([]byte, error) {
	resp, err := c.client.GetKey(ctx, &isdkey.GetKeyRequest{
		TargetSDLength: uint32(len(targetSD)),
		TargetSD:       targetSD,
		RootKeyID:      guidFromWire(rootKeyID),
		L0KeyID:        l0,
		L1KeyID:        l1,
		L2KeyID:        l2,
	})
	if err != nil {
		return nil, fmt.Errorf("GetKey RPC failed: %w", err)
	}
	if resp.Return != 0 {
		return nil, fmt.Errorf("GetKey returned error: 0x%08x", uint32(resp.Return))
	}
	if len(resp.Out) == 0 {
		return nil, fmt.Errorf("GetKey returned no key material")
	}

	return resp.Out, nil
}

// guidFromWire decodes a little-endian 16-byte GUID.
func guidFromWire(b [16]byte) *dtyp.GUID {
	return &dtyp.GUID{
		Data1: binary.LittleEndian.Uint32(b[0:4]),
		Data2: binary.LittleEndian.Uint16(b[4:6]),
		Data3: binary.LittleEndian.Uint16(b[6:8]),
		Data4: append([]byte(nil), b[8:16]...),
	}
}
