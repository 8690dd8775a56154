package lapsv2

import (
	"encoding/binary"
	"fmt"
	"time"
)

// EncryptedPasswordBlob is the outer layer of msLAPS-EncryptedPassword:
// a 16-byte header followed by the CMS structure and trailing ciphertext.
type EncryptedPasswordBlob struct {
	Updated time.Time
	Flags   uint32
	Blob    []byte
}

// ParseEncryptedPasswordBlob splits the attribute value into its header
// and payload.
func ParseEncryptedPasswordBlob(data []byte) (*EncryptedPasswordBlob, error) {
	if len(data) <= 16 {
		return nil, fmt.Errorf("encrypted password blob too short: %d bytes", len(data))
	}

	// header: update FILETIME split into two dwords (lower dword first),
	// payload length, flags
	lower := binary.LittleEndian.Uint32(data[0:])
	upper := binary.LittleEndian.Uint32(data[4:])
	length := binary.LittleEndian.Uint32(data[8:])
	flags := binary.LittleEndian.Uint32(data[12:])

	payload := data[16:]
	if length != 0 && uint64(length) > uint64(len(payload)) {
		return nil, fmt.Errorf("encrypted password blob truncated: header says %d, have %d",
			length, len(payload))
	}

	return &EncryptedPasswordBlob{
		Updated: filetimeToTime(int64(uint64(upper)<<32 | uint64(lower))),
		Flags:   flags,
		Blob:    payload,
	}, nil
}

// filetimeToTime converts a Windows FILETIME (100-ns intervals since
// 1601-01-01) to Go time.
func filetimeToTime(ft int64) time.Time {
	const epochDiff = 11644473600
	seconds := ft/10000000 - epochDiff
	nanos := (ft % 10000000) * 100
	return time.Unix(seconds, nanos).UTC()
}
