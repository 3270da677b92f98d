package ntsd

import (
	"encoding/binary"
	"fmt"
)

// ACL is an Access Control List in wire format: an 8-byte header
// {Revision, Sbz1, Size:u16, AceCount:u16, Sbz2:u16} followed by AceCount
// ACEs in canonical order.
type ACL []byte

// ACL revisions. Directory-service ACLs (or any ACL containing an Object or
// MANDATORY_LABEL ACE) use the higher revision.
const (
	AclRevision   = 0x02
	AclRevisionDS = 0x04
)

const aclHeaderLen = 8

// AceCount returns the ACL header's declared ACE count.
func (a ACL) AceCount() uint16 {
	return binary.LittleEndian.Uint16(a[4:6])
}

// Size returns the ACL header's declared total size in bytes.
func (a ACL) Size() uint16 {
	return binary.LittleEndian.Uint16(a[2:4])
}

// AceList walks the ACL from its first ACE and returns each ACE's bytes in
// order. The walk is driven by each ACE's own Size field, not by AceCount;
// AceCount is only checked on mutation.
func (a ACL) AceList() []ACE {
	var aces []ACE
	cursor := aclHeaderLen
	for cursor < len(a) {
		size := binary.LittleEndian.Uint16(a[cursor+2 : cursor+4])
		aces = append(aces, ACE(a[cursor:cursor+int(size)]))
		cursor += int(size)
	}
	return aces
}

// AcePosition is a (offset, length) span of one ACE within its parent ACL.
type AcePosition struct {
	Offset int
	Length int
}

// AcePositions walks the ACL identically to AceList but returns spans
// instead of copies.
func (a ACL) AcePositions() []AcePosition {
	var positions []AcePosition
	cursor := aclHeaderLen
	for cursor < len(a) {
		size := int(binary.LittleEndian.Uint16(a[cursor+2 : cursor+4]))
		positions = append(positions, AcePosition{Offset: cursor, Length: size})
		cursor += size
	}
	return positions
}

// AceIndex returns the index of ace within the ACL's ACE list, or -1 if it
// is not present. Comparison is by byte equality.
func (a ACL) AceIndex(ace ACE) int {
	for i, existing := range a.AceList() {
		if string(existing) == string(ace) {
			return i
		}
	}
	return -1
}

func requiresDSRevision(aceType byte) bool {
	switch aceType {
	case AceTypeAccessAllowedObject, AceTypeAccessDeniedObject, AceTypeSystemAuditObject,
		AceTypeSystemAlarmObject, AceTypeSystemMandatoryLabel:
		return true
	default:
		return false
	}
}

// NewACL creates a new ACL from scratch containing exactly one ACE. The
// caller must supply a single, well-formed ACE; this constructor does not
// validate ace's internal structure beyond using its length.
func NewACL(ace ACE, isDSACL bool) ACL {
	revision := byte(AclRevision)
	if isDSACL {
		revision = AclRevisionDS
	}
	buf := make([]byte, 0, aclHeaderLen+len(ace))
	buf = append(buf, revision, 0)
	sizeBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(sizeBytes, uint16(aclHeaderLen+len(ace)))
	buf = append(buf, sizeBytes...)
	buf = append(buf, 0x01, 0x00) // AceCount = 1
	buf = append(buf, 0x00, 0x00) // Sbz2
	buf = append(buf, ace...)
	return ACL(buf)
}

// AddAceToACL inserts ace into acl at the position its canonical rank
// dictates and returns the resulting ACL. acl must be non-empty; callers
// must use NewACL to create the first ACL. Inherited or inheritable ACEs
// are rejected: insertion ordering for them is not implemented.
func AddAceToACL(acl ACL, ace ACE) (ACL, error) {
	if len(acl) == 0 {
		return nil, ErrACLEmpty
	}
	if ace.IsInheritable() || ace.IsInherited() {
		return nil, ErrInheritedNotAllowed
	}

	revision := acl[0]
	if requiresDSRevision(ace.Type()) {
		revision = AclRevisionDS
	}

	existing := acl.AceList()
	aceRank := ace.Rank()
	insertionIndex := len(existing)
	for i, e := range existing {
		if aceRank >= e.Rank() {
			insertionIndex = i
			break
		}
	}

	ordered := make([]ACE, 0, len(existing)+1)
	ordered = append(ordered, existing[:insertionIndex]...)
	ordered = append(ordered, ace)
	ordered = append(ordered, existing[insertionIndex:]...)

	totalAceBytes := 0
	for _, e := range ordered {
		totalAceBytes += len(e)
	}

	header := make([]byte, aclHeaderLen)
	header[0] = revision
	header[1] = 0
	binary.LittleEndian.PutUint16(header[2:4], uint16(aclHeaderLen+totalAceBytes))
	binary.LittleEndian.PutUint16(header[4:6], uint16(len(ordered)))

	buf := make([]byte, 0, aclHeaderLen+totalAceBytes)
	buf = append(buf, header...)
	for _, e := range ordered {
		buf = append(buf, e...)
	}
	return ACL(buf), nil
}

// RemoveAceFromACL removes the ACE at index from acl. If it was the last
// remaining ACE, returns an empty ACL, signaling to callers that the ACL
// itself should be dropped entirely rather than kept around with zero
// entries. Fails with ErrOutOfRange if index is out of bounds.
func RemoveAceFromACL(acl ACL, index int) (ACL, error) {
	count := int(acl.AceCount())
	if index < 0 || index >= count {
		return nil, fmt.Errorf("%w: index %d, count %d", ErrOutOfRange, index, count)
	}
	if count == 1 {
		return ACL{}, nil
	}

	positions := acl.AcePositions()
	target := positions[index]

	buf := make([]byte, 0, len(acl)-target.Length)
	buf = append(buf, acl[0], acl[1])
	sizeBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(sizeBytes, acl.Size()-uint16(target.Length))
	buf = append(buf, sizeBytes...)
	countBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(countBytes, uint16(count-1))
	buf = append(buf, countBytes...)
	buf = append(buf, acl[6], acl[7])
	buf = append(buf, acl[aclHeaderLen:target.Offset]...)
	buf = append(buf, acl[target.Offset+target.Length:]...)

	result := ACL(buf)
	if err := result.assertConsistent(); err != nil {
		return nil, err
	}
	return result, nil
}

// assertConsistent re-walks the ACL and checks AceCount and Size against
// what the walk actually finds. Callers need to be able to trust that a
// successful removal leaves AceCount and Size consistent, so this verifies
// the result instead of trusting the preceding slice arithmetic blindly.
func (a ACL) assertConsistent() error {
	list := a.AceList()
	if len(list) != int(a.AceCount()) {
		return fmt.Errorf("%w: header AceCount=%d but walk found %d ACEs", ErrInconsistentACL, a.AceCount(), len(list))
	}
	total := aclHeaderLen
	for _, ace := range list {
		total += len(ace)
	}
	if total != int(a.Size()) {
		return fmt.Errorf("%w: header Size=%d but walk measured %d bytes", ErrInconsistentACL, a.Size(), total)
	}
	return nil
}
