package ntsd

import (
	"fmt"

	"github.com/google/uuid"
)

// GUIDLen is the wire size of a Microsoft GUID (Data1 u32 LE, Data2/Data3
// u16 LE, Data4 8 bytes as-is).
const GUIDLen = 16

// ChangePasswordRight is the extended-right GUID that governs whether a
// principal may change a user's password, per MS-ADTS.
var ChangePasswordRight = uuid.MustParse("ab721a53-1e2f-11d0-9819-00aa0040529b")

// GUIDToBytes serializes a uuid.UUID to its 16-byte mixed-endian wire form.
// google/uuid's MarshalBinary produces big-endian (RFC 4122) byte order, so
// the first three fields are byte-swapped here to the little-endian layout
// Windows expects.
func GUIDToBytes(id uuid.UUID) []byte {
	b := make([]byte, GUIDLen)
	b[0], b[1], b[2], b[3] = id[3], id[2], id[1], id[0]
	b[4], b[5] = id[5], id[4]
	b[6], b[7] = id[7], id[6]
	copy(b[8:16], id[8:16])
	return b
}

// BytesToGUID parses a 16-byte mixed-endian wire GUID into a uuid.UUID.
func BytesToGUID(b []byte) (uuid.UUID, error) {
	var id uuid.UUID
	if len(b) < GUIDLen {
		return id, fmt.Errorf("%w: GUID requires %d bytes, got %d", ErrTruncated, GUIDLen, len(b))
	}
	id[0], id[1], id[2], id[3] = b[3], b[2], b[1], b[0]
	id[4], id[5] = b[5], b[4]
	id[6], id[7] = b[7], b[6]
	copy(id[8:16], b[8:16])
	return id, nil
}
