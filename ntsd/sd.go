package ntsd

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
)

// SD is a self-relative Security Descriptor in wire format: a 20-byte
// header {Revision, Sbz1, Control:u16, OwnerOffset:u32, GroupOffset:u32,
// SaclOffset:u32, DaclOffset:u32} followed by the four referenced bodies at
// their declared offsets.
type SD []byte

const sdHeaderLen = 20

// ACLKind distinguishes the DACL and SACL bodies of a Security Descriptor.
// The ACL bytes themselves carry no marker of which kind they are; kind is
// purely a function of which offset field references them.
type ACLKind int

const (
	KindDACL ACLKind = iota
	KindSACL
)

// Security Descriptor control flag bits.
const (
	ControlOwnerDefaulted             = 0x0001
	ControlGroupDefaulted             = 0x0002
	ControlDaclPresent                = 0x0004
	ControlDaclDefaulted              = 0x0008
	ControlSaclPresent                = 0x0010
	ControlSaclDefaulted              = 0x0020
	ControlServerSecurity             = 0x0040
	ControlDaclTrusted                = 0x0080
	ControlDaclComputedInheritanceReq = 0x0100
	ControlSaclComputedInheritanceReq = 0x0200
	ControlDaclAutoInherited          = 0x0400
	ControlSaclAutoInherited          = 0x0800
	ControlDaclProtected              = 0x1000
	ControlSaclProtected              = 0x2000
	ControlRMControlValid             = 0x4000
	ControlSelfRelative               = 0x8000
)

// OwnerOffset returns the byte offset of the owner SID within sd.
func (sd SD) OwnerOffset() uint32 { return binary.LittleEndian.Uint32(sd[4:8]) }

// GroupOffset returns the byte offset of the group SID within sd.
func (sd SD) GroupOffset() uint32 { return binary.LittleEndian.Uint32(sd[8:12]) }

// SaclOffset returns the byte offset of the SACL within sd, or 0 if absent.
func (sd SD) SaclOffset() uint32 { return binary.LittleEndian.Uint32(sd[12:16]) }

// DaclOffset returns the byte offset of the DACL within sd, or 0 if absent.
func (sd SD) DaclOffset() uint32 { return binary.LittleEndian.Uint32(sd[16:20]) }

// ControlFlags returns the 16-bit control field.
func (sd SD) ControlFlags() uint16 { return binary.LittleEndian.Uint16(sd[2:4]) }

// OwnerSIDBytes returns the owner SID's bytes, sized by its own
// sub-authority count.
func (sd SD) OwnerSIDBytes() SID {
	off := sd.OwnerOffset()
	if off == 0 {
		return nil
	}
	subAuthorityCount := int(sd[off+1])
	return SID(sd[off : off+8+4*uint32(subAuthorityCount)])
}

// GroupSIDBytes returns the group SID's bytes, sized by its own
// sub-authority count.
func (sd SD) GroupSIDBytes() SID {
	off := sd.GroupOffset()
	if off == 0 {
		return nil
	}
	subAuthorityCount := int(sd[off+1])
	return SID(sd[off : off+8+4*uint32(subAuthorityCount)])
}

// AclBytes returns the bytes of the requested ACL, sized by the ACL's own
// Size field, or an empty ACL if the corresponding offset is 0.
func (sd SD) AclBytes(kind ACLKind) (ACL, error) {
	var offset uint32
	switch kind {
	case KindSACL:
		offset = sd.SaclOffset()
	case KindDACL:
		offset = sd.DaclOffset()
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidACLType, kind)
	}
	if offset == 0 {
		return ACL{}, nil
	}
	size := binary.LittleEndian.Uint16(sd[offset+2 : offset+4])
	return ACL(sd[offset : offset+uint32(size)]), nil
}

// body identifies one of the four SD-referenced structures by its original
// offset, for the reassembly fold in ReplaceACL.
type body struct {
	kind   int // 0=owner 1=group 2=sacl 3=dacl; selects the header offset slot and breaks ties between equal offsets
	offset uint32
	bytes  []byte
}

// ReplaceACL is the central mutation: it substitutes newACL for the DACL or
// SACL within sd and returns a freshly reassembled Security Descriptor with
// every offset and the corresponding PRESENT control bit recomputed.
//
// The four referenced bodies are preserved in their original relative order
// (the order among owner SID / group SID / SACL / DACL is not prescribed by
// the format and varies across producers) except for the one being
// replaced.
func ReplaceACL(sd SD, kind ACLKind, newACL ACL) (SD, error) {
	if kind != KindDACL && kind != KindSACL {
		return nil, fmt.Errorf("%w: %d", ErrInvalidACLType, kind)
	}

	sacl, err := sd.AclBytes(KindSACL)
	if err != nil {
		return nil, err
	}
	dacl, err := sd.AclBytes(KindDACL)
	if err != nil {
		return nil, err
	}

	bodies := []body{
		{kind: 0, offset: sd.OwnerOffset(), bytes: sd.OwnerSIDBytes()},
		{kind: 1, offset: sd.GroupOffset(), bytes: sd.GroupSIDBytes()},
		{kind: 2, offset: sd.SaclOffset(), bytes: sacl},
		{kind: 3, offset: sd.DaclOffset(), bytes: dacl},
	}
	switch kind {
	case KindSACL:
		bodies[2].bytes = newACL
	case KindDACL:
		bodies[3].bytes = newACL
	}

	sort.SliceStable(bodies, func(i, j int) bool {
		if bodies[i].offset != bodies[j].offset {
			return bodies[i].offset < bodies[j].offset
		}
		return bodies[i].kind < bodies[j].kind
	})

	control := sd.ControlFlags()
	presentBit := uint16(ControlDaclPresent)
	if kind == KindSACL {
		presentBit = ControlSaclPresent
	}
	if len(newACL) == 0 {
		control &^= presentBit
	} else {
		control |= presentBit
	}

	offsets := make(map[int]uint32, 4)
	cursor := uint32(sdHeaderLen)
	for _, b := range bodies {
		if len(b.bytes) > 0 {
			offsets[b.kind] = cursor
		} else {
			offsets[b.kind] = 0
		}
		cursor += uint32(len(b.bytes))
	}

	out := make([]byte, sdHeaderLen, cursor)
	out[0] = sd[0]
	out[1] = sd[1]
	binary.LittleEndian.PutUint16(out[2:4], control)
	binary.LittleEndian.PutUint32(out[4:8], offsets[0])
	binary.LittleEndian.PutUint32(out[8:12], offsets[1])
	binary.LittleEndian.PutUint32(out[12:16], offsets[2])
	binary.LittleEndian.PutUint32(out[16:20], offsets[3])
	for _, b := range bodies {
		out = append(out, b.bytes...)
	}
	return SD(out), nil
}

// ReadableControlFlags decodes a control value into its set bit names. It
// operates strictly on the control parameter passed in.
func ReadableControlFlags(control uint16) []string {
	var names []string
	add := func(bit uint16, name string) {
		if control&bit != 0 {
			names = append(names, name)
		}
	}
	add(ControlSelfRelative, "SELF_RELATIVE")
	add(ControlRMControlValid, "RM_CONTROL_VALID")
	add(ControlSaclProtected, "SACL_PROTECTED")
	add(ControlDaclProtected, "DACL_PROTECTED")
	add(ControlSaclAutoInherited, "SACL_AUTO_INHERITED")
	add(ControlDaclAutoInherited, "DACL_AUTO_INHERITED")
	add(ControlSaclComputedInheritanceReq, "SACL_COMPUTED_INHERITANCE_REQD")
	add(ControlDaclComputedInheritanceReq, "DACL_COMPUTED_INHERITANCE_REQD")
	add(ControlDaclTrusted, "DACL_TRUSTED")
	add(ControlServerSecurity, "SERVER_SECURITY")
	add(ControlSaclDefaulted, "SACL_DEFAULTED")
	add(ControlSaclPresent, "SACL_PRESENT")
	add(ControlDaclDefaulted, "DACL_DEFAULTED")
	add(ControlDaclPresent, "DACL_PRESENT")
	add(ControlGroupDefaulted, "GROUP_DEFAULTED")
	add(ControlOwnerDefaulted, "OWNER_DEFAULTED")
	return names
}

// ReadableControlFlagsString joins ReadableControlFlags with "|", for
// diagnostics.
func ReadableControlFlagsString(control uint16) string {
	return strings.Join(ReadableControlFlags(control), "|")
}
