package dpaping

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// EDUCATIONAL: The GetKey Authorization Context
//
// MS-GKDI GetKey does not take a SID directly - it takes a security
// descriptor, and the KDS releases the key only if the caller would be
// granted access by that descriptor's DACL. The consumer therefore builds a
// descriptor whose DACL allows the protection SID (the group the blob was
// sealed to), plus Everyone with a reduced mask, and presents it as the
// "target" of the key request. This mirrors what the Windows CNG DPAPI
// client sends on the wire.

const (
	sdControl = 0x8004 // SE_SELF_RELATIVE | SE_DACL_PRESENT

	aceTypeAccessAllowed = 0x00
	aclRevision          = 2
)

// SecurityDescriptor builds the self-relative security descriptor presented
// to the KDS: owner and group SYSTEM, DACL granting mask 3 to the
// protection SID and mask 2 to Everyone.
func SecurityDescriptor(sid string) ([]byte, error) {
	target, err := ParseSID(sid)
	if err != nil {
		return nil, err
	}
	everyone, _ := ParseSID("S-1-1-0")
	system, _ := ParseSID("S-1-5-18")

	dacl := buildACL(
		buildAccessAllowedACE(target, 3),
		buildAccessAllowedACE(everyone, 2),
	)

	// header (20) + owner + group + dacl
	sd := make([]byte, 20, 20+len(system)*2+len(dacl))
	sd[0] = 1 // revision
	binary.LittleEndian.PutUint16(sd[2:], sdControl)
	binary.LittleEndian.PutUint32(sd[4:], 20)                              // owner offset
	binary.LittleEndian.PutUint32(sd[8:], uint32(20+len(system)))          // group offset
	binary.LittleEndian.PutUint32(sd[12:], 0)                              // no SACL
	binary.LittleEndian.PutUint32(sd[16:], uint32(20+len(system)*2))       // DACL offset
	sd = append(sd, system...)                                             // owner
	sd = append(sd, system...)                                             // group
	sd = append(sd, dacl...)

	return sd, nil
}

func buildAccessAllowedACE(sid []byte, mask uint32) []byte {
	ace := make([]byte, 8, 8+len(sid))
	ace[0] = aceTypeAccessAllowed
	ace[1] = 0 // flags
	binary.LittleEndian.PutUint16(ace[2:], uint16(8+len(sid)))
	binary.LittleEndian.PutUint32(ace[4:], mask)
	return append(ace, sid...)
}

func buildACL(aces ...[]byte) []byte {
	size := 8
	for _, ace := range aces {
		size += len(ace)
	}
	acl := make([]byte, 8, size)
	acl[0] = aclRevision
	binary.LittleEndian.PutUint16(acl[2:], uint16(size))
	binary.LittleEndian.PutUint16(acl[4:], uint16(len(aces)))
	for _, ace := range aces {
		acl = append(acl, ace...)
	}
	return acl
}

// ParseSID converts a canonical SID string (S-R-I-S-S...) to its binary
// form: revision, sub-authority count, 48-bit big-endian identifier
// authority, then little-endian 32-bit sub-authorities.
func ParseSID(s string) ([]byte, error) {
	parts := strings.Split(s, "-")
	if len(parts) < 3 || !strings.EqualFold(parts[0], "S") {
		return nil, fmt.Errorf("invalid SID %q", s)
	}

	revision, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid SID revision in %q: %w", s, err)
	}
	authority, err := strconv.ParseUint(parts[2], 10, 48)
	if err != nil {
		return nil, fmt.Errorf("invalid SID authority in %q: %w", s, err)
	}

	subAuths := parts[3:]
	if len(subAuths) > 15 {
		return nil, fmt.Errorf("too many sub-authorities in %q", s)
	}

	sid := make([]byte, 8, 8+4*len(subAuths))
	binary.BigEndian.PutUint64(sid[:8], authority) // low 48 bits land in sid[2:8]
	sid[0] = byte(revision)
	sid[1] = byte(len(subAuths))

	for _, sub := range subAuths {
		v, err := strconv.ParseUint(sub, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid sub-authority %q in %q: %w", sub, s, err)
		}
		sid = binary.LittleEndian.AppendUint32(sid, uint32(v))
	}

	return sid, nil
}
