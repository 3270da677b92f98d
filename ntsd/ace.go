package ntsd

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ACE is a single access control entry in wire format: a 4-byte header
// {Type, Flags, Size:u16}, a 4-byte Mask, and variant-specific trailing
// fields determined by the ACE's shape.
type ACE []byte

// ACE type constants, the full set of assigned values 0 through 19
// documented for NT security descriptors.
const (
	AceTypeAccessAllowed             = 0
	AceTypeAccessDenied              = 1
	AceTypeSystemAudit               = 2
	AceTypeSystemAlarm               = 3
	AceTypeAccessAllowedCompound     = 4
	AceTypeAccessAllowedObject       = 5
	AceTypeAccessDeniedObject        = 6
	AceTypeSystemAuditObject         = 7
	AceTypeSystemAlarmObject         = 8
	AceTypeAccessAllowedCallback     = 9
	AceTypeAccessDeniedCallback      = 10
	AceTypeAccessAllowedCallbackObj  = 11
	AceTypeAccessDeniedCallbackObj   = 12
	AceTypeSystemAuditCallback       = 13
	AceTypeSystemAlarmCallback       = 14
	AceTypeSystemAuditCallbackObject = 15
	AceTypeSystemAlarmCallbackObject = 16
	AceTypeSystemMandatoryLabel      = 17
	AceTypeSystemResourceAttribute   = 18
	AceTypeSystemScopedPolicyID      = 19
)

// ACE flag bits.
const (
	AceFlagObjectInherit      = 0x01
	AceFlagContainerInherit   = 0x02
	AceFlagNoPropagateInherit = 0x04
	AceFlagInheritOnly        = 0x08
	AceFlagInherited          = 0x10
	AceFlagNotDocumented      = 0x20
	AceFlagSuccessfulAccess   = 0x40
	AceFlagFailedAccess       = 0x80
)

// Object-ACE ObjectFlags bits.
const (
	ObjectTypePresent          = 0x01
	InheritedObjectTypePresent = 0x02
)

// Standard and generic access mask bits, used by Simple/AppData ACEs.
const (
	AccessMaskGenericRead           = 1 << 31
	AccessMaskGenericWrite          = 1 << 30
	AccessMaskGenericExecute        = 1 << 29
	AccessMaskGenericAll            = 1 << 28
	AccessMaskMaximumAllowed        = 1 << 25
	AccessMaskAccessSystemSecurity  = 1 << 24
	AccessMaskSynchronize           = 1 << 20
	AccessMaskWriteOwner            = 1 << 19
	AccessMaskWriteDacl             = 1 << 18
	AccessMaskReadControl           = 1 << 17
	AccessMaskDelete                = 1 << 16
)

// Directory-service object-right mask bits. Object-shaped ACEs carry
// exactly one of these.
const (
	AdsRightDSCreateChild   = 1
	AdsRightDSDeleteChild   = 2
	AdsRightDSSelf          = 8
	AdsRightDSReadProp      = 16
	AdsRightDSWriteProp     = 32
	AdsRightDSControlAccess = 256
)

var simpleTypes = map[byte]bool{
	AceTypeAccessAllowed:        true,
	AceTypeAccessDenied:         true,
	AceTypeSystemAudit:          true,
	AceTypeSystemMandatoryLabel: true,
	AceTypeSystemScopedPolicyID: true,
}

var objectTypes = map[byte]bool{
	AceTypeAccessAllowedObject: true,
	AceTypeAccessDeniedObject:  true,
}

var appDataTypes = map[byte]bool{
	AceTypeAccessAllowedCallback: true,
	AceTypeAccessDeniedCallback:  true,
	AceTypeSystemAuditCallback:   true,
}

var objectAppDataTypes = map[byte]bool{
	AceTypeAccessAllowedCallbackObj:  true,
	AceTypeAccessDeniedCallbackObj:   true,
	AceTypeSystemAuditObject:         true,
	AceTypeSystemAuditCallbackObject: true,
}

// anyObjectShaped is the set of types whose trailing fields begin with
// ObjectFlags and optional GUIDs, combining objectTypes and objectAppDataTypes.
var anyObjectShaped = func() map[byte]bool {
	m := map[byte]bool{}
	for t := range objectTypes {
		m[t] = true
	}
	for t := range objectAppDataTypes {
		m[t] = true
	}
	return m
}()

var objectRightsMask = map[uint32]bool{
	AdsRightDSCreateChild:   true,
	AdsRightDSDeleteChild:   true,
	AdsRightDSSelf:          true,
	AdsRightDSReadProp:      true,
	AdsRightDSWriteProp:     true,
	AdsRightDSControlAccess: true,
}

func validSimpleMask(mask uint32) bool {
	return mask >= AccessMaskDelete && mask <= 0xF3000000
}

func padTo4(body []byte) []byte {
	if rem := len(body) % 4; rem != 0 {
		body = append(body, make([]byte, 4-rem)...)
	}
	return body
}

func checkSimpleConstruction(aceType byte, flags byte, mask uint32, trustee SID) error {
	if !simpleTypes[aceType] {
		return fmt.Errorf("%w: type %d not valid for a simple ACE", ErrInvalidAceType, aceType)
	}
	if !validSimpleMask(mask) {
		return fmt.Errorf("%w: mask %#x out of range for a simple ACE", ErrInvalidMask, mask)
	}
	if !SIDIsValid(trustee) {
		return fmt.Errorf("%w: trustee SID invalid", ErrMalformedSID)
	}
	return nil
}

// NewSimpleACE builds a Simple-shaped ACE: {header, Mask, Trustee SID}.
// Size must equal the buffer's on-wire length, so the body is zero-padded
// to a 4-byte boundary and the pad bytes are appended to the returned
// buffer before Size is written, keeping Size and len(ACE) in agreement.
func NewSimpleACE(aceType byte, flags byte, mask uint32, trustee SID) (ACE, error) {
	if err := checkSimpleConstruction(aceType, flags, mask, trustee); err != nil {
		return nil, err
	}
	body := make([]byte, 0, 8+len(trustee))
	body = append(body, aceType, flags, 0, 0)
	tail := make([]byte, 4)
	binary.LittleEndian.PutUint32(tail, mask)
	body = append(body, tail...)
	body = append(body, trustee...)
	body = padTo4(body)
	binary.LittleEndian.PutUint16(body[2:4], uint16(len(body)))
	return ACE(body), nil
}

// NewAppDataACE builds an AppData (callback)-shaped ACE: {header, Mask,
// Trustee SID, opaque application data}.
func NewAppDataACE(aceType byte, flags byte, mask uint32, trustee SID, appData []byte) (ACE, error) {
	if !appDataTypes[aceType] {
		return nil, fmt.Errorf("%w: type %d not valid for an AppData ACE", ErrInvalidAceType, aceType)
	}
	if !validSimpleMask(mask) {
		return nil, fmt.Errorf("%w: mask %#x out of range for an AppData ACE", ErrInvalidMask, mask)
	}
	if !SIDIsValid(trustee) {
		return nil, fmt.Errorf("%w: trustee SID invalid", ErrMalformedSID)
	}
	body := make([]byte, 0, 8+len(trustee)+len(appData))
	body = append(body, aceType, flags, 0, 0)
	tail := make([]byte, 4)
	binary.LittleEndian.PutUint32(tail, mask)
	body = append(body, tail...)
	body = append(body, trustee...)
	body = append(body, appData...)
	body = padTo4(body)
	binary.LittleEndian.PutUint16(body[2:4], uint16(len(body)))
	return ACE(body), nil
}

func objectFlagsAndGUIDs(objectType, inheritedObjectType *uuid.UUID) (uint32, []byte) {
	var flags uint32
	var guids []byte
	if objectType != nil {
		flags |= ObjectTypePresent
		guids = append(guids, GUIDToBytes(*objectType)...)
	}
	if inheritedObjectType != nil {
		flags |= InheritedObjectTypePresent
		guids = append(guids, GUIDToBytes(*inheritedObjectType)...)
	}
	return flags, guids
}

func checkObjectMask(mask uint32) error {
	if !objectRightsMask[mask] {
		return fmt.Errorf("%w: mask %#x must be exactly one DS right", ErrInvalidMask, mask)
	}
	return nil
}

// NewObjectACE builds an Object-shaped ACE: {header, Mask, ObjectFlags,
// [ObjectType GUID], [InheritedObjectType GUID], Trustee SID}.
func NewObjectACE(aceType byte, flags byte, mask uint32, trustee SID, objectType, inheritedObjectType *uuid.UUID) (ACE, error) {
	if !objectTypes[aceType] {
		return nil, fmt.Errorf("%w: type %d not valid for an object ACE", ErrInvalidAceType, aceType)
	}
	if err := checkObjectMask(mask); err != nil {
		return nil, err
	}
	if !SIDIsValid(trustee) {
		return nil, fmt.Errorf("%w: trustee SID invalid", ErrMalformedSID)
	}
	objFlags, guids := objectFlagsAndGUIDs(objectType, inheritedObjectType)

	body := make([]byte, 0, 12+len(guids)+len(trustee))
	body = append(body, aceType, flags, 0, 0)
	tail := make([]byte, 4)
	binary.LittleEndian.PutUint32(tail, mask)
	body = append(body, tail...)
	ofb := make([]byte, 4)
	binary.LittleEndian.PutUint32(ofb, objFlags)
	body = append(body, ofb...)
	body = append(body, guids...)
	body = append(body, trustee...)
	body = padTo4(body)
	binary.LittleEndian.PutUint16(body[2:4], uint16(len(body)))
	return ACE(body), nil
}

// NewObjectAppDataACE builds an Object+AppData-shaped ACE: {header, Mask,
// ObjectFlags, [ObjectType GUID], [InheritedObjectType GUID], Trustee SID,
// opaque application data}.
func NewObjectAppDataACE(aceType byte, flags byte, mask uint32, trustee SID, objectType, inheritedObjectType *uuid.UUID, appData []byte) (ACE, error) {
	if !objectAppDataTypes[aceType] {
		return nil, fmt.Errorf("%w: type %d not valid for an object+appdata ACE", ErrInvalidAceType, aceType)
	}
	if err := checkObjectMask(mask); err != nil {
		return nil, err
	}
	if !SIDIsValid(trustee) {
		return nil, fmt.Errorf("%w: trustee SID invalid", ErrMalformedSID)
	}
	objFlags, guids := objectFlagsAndGUIDs(objectType, inheritedObjectType)

	body := make([]byte, 0, 12+len(guids)+len(trustee)+len(appData))
	body = append(body, aceType, flags, 0, 0)
	tail := make([]byte, 4)
	binary.LittleEndian.PutUint32(tail, mask)
	body = append(body, tail...)
	ofb := make([]byte, 4)
	binary.LittleEndian.PutUint32(ofb, objFlags)
	body = append(body, ofb...)
	body = append(body, guids...)
	body = append(body, trustee...)
	body = append(body, appData...)
	body = padTo4(body)
	binary.LittleEndian.PutUint16(body[2:4], uint16(len(body)))
	return ACE(body), nil
}

// NewMandatoryLabelACE, NewResourceAttributeACE and NewScopedPolicyIDACE are
// reserved for future NT-spec-compliant implementation; construction is not
// currently available.
func NewMandatoryLabelACE(flags byte, mask uint32, trustee SID) (ACE, error) {
	return nil, fmt.Errorf("%w: system mandatory label ACEs", ErrUnimplemented)
}

func NewResourceAttributeACE(flags byte, mask uint32, trustee SID, attributeData []byte) (ACE, error) {
	return nil, fmt.Errorf("%w: system resource attribute ACEs", ErrUnimplemented)
}

func NewScopedPolicyIDACE(flags byte, mask uint32, trustee SID) (ACE, error) {
	return nil, fmt.Errorf("%w: system scoped policy id ACEs", ErrUnimplemented)
}

// Type returns the ACE's wire type byte.
func (a ACE) Type() byte { return a[0] }

// Flags returns the ACE's wire flags byte.
func (a ACE) Flags() byte { return a[1] }

// Size returns the ACE's declared size in bytes.
func (a ACE) Size() uint16 { return binary.LittleEndian.Uint16(a[2:4]) }

// Mask returns the ACE's access mask.
func (a ACE) Mask() uint32 { return binary.LittleEndian.Uint32(a[4:8]) }

// ObjectFlags returns the ObjectFlags field of an Object-shaped ACE. It
// fails with ErrUnsupportedForType for any other shape.
func (a ACE) ObjectFlags() (uint32, error) {
	if !anyObjectShaped[a.Type()] {
		return 0, fmt.Errorf("%w: ACE type %d has no object flags", ErrUnsupportedForType, a.Type())
	}
	return binary.LittleEndian.Uint32(a[8:12]), nil
}

// ObjectTypeGUID returns the ACE's ObjectType GUID, if present.
func (a ACE) ObjectTypeGUID() (uuid.UUID, error) {
	if !a.ObjectTypeIsValid() {
		return uuid.UUID{}, fmt.Errorf("%w: ACE has no object type", ErrUnsupportedForType)
	}
	return BytesToGUID(a[12:28])
}

// InheritedObjectTypeGUID returns the ACE's InheritedObjectType GUID, if
// present.
func (a ACE) InheritedObjectTypeGUID() (uuid.UUID, error) {
	if !a.InheritedObjectTypeIsValid() {
		return uuid.UUID{}, fmt.Errorf("%w: ACE has no inherited object type", ErrUnsupportedForType)
	}
	objFlags, _ := a.ObjectFlags()
	if objFlags == InheritedObjectTypePresent {
		return BytesToGUID(a[12:28])
	}
	return BytesToGUID(a[28:44])
}

// ObjectTypeIsValid reports whether this ACE is Object-shaped and carries
// an ObjectType GUID.
func (a ACE) ObjectTypeIsValid() bool {
	if !anyObjectShaped[a.Type()] {
		return false
	}
	objFlags, _ := a.ObjectFlags()
	return objFlags == ObjectTypePresent || objFlags == (ObjectTypePresent|InheritedObjectTypePresent)
}

// InheritedObjectTypeIsValid reports whether this ACE is Object-shaped and
// carries an InheritedObjectType GUID.
func (a ACE) InheritedObjectTypeIsValid() bool {
	if !anyObjectShaped[a.Type()] {
		return false
	}
	objFlags, _ := a.ObjectFlags()
	return objFlags == InheritedObjectTypePresent || objFlags == (ObjectTypePresent|InheritedObjectTypePresent)
}

// TrusteeSID returns the trustee SID embedded in this ACE, accounting for
// its shape and (for Object-shaped ACEs) which GUIDs are present.
func (a ACE) TrusteeSID() (SID, error) {
	var offset int
	switch {
	case simpleTypes[a.Type()] || appDataTypes[a.Type()] || a.Type() == AceTypeSystemResourceAttribute:
		offset = 8
	case anyObjectShaped[a.Type()]:
		objFlags, err := a.ObjectFlags()
		if err != nil {
			return nil, err
		}
		switch objFlags {
		case 0:
			offset = 12
		case ObjectTypePresent, InheritedObjectTypePresent:
			offset = 28
		case ObjectTypePresent | InheritedObjectTypePresent:
			offset = 44
		}
	default:
		return nil, fmt.Errorf("%w: unknown ACE type %d", ErrInvalidAceType, a.Type())
	}
	if offset+1 >= len(a) {
		return nil, fmt.Errorf("%w: ACE too short for trustee SID", ErrTruncated)
	}
	subAuthorityCount := int(a[offset+1])
	length := 8 + 4*subAuthorityCount
	if offset+length > len(a) {
		return nil, fmt.Errorf("%w: ACE too short for trustee SID", ErrTruncated)
	}
	return SID(a[offset : offset+length]), nil
}

// IsInherited reports whether the INHERITED flag is set.
func (a ACE) IsInherited() bool {
	return a.Flags()&AceFlagInherited != 0
}

// IsDeny reports whether this ACE's type is one of the DENY variants.
func (a ACE) IsDeny() bool {
	switch a.Type() {
	case AceTypeAccessDenied, AceTypeAccessDeniedObject, AceTypeAccessDeniedCallback, AceTypeAccessDeniedCallbackObj:
		return true
	default:
		return false
	}
}

// IsInheritable reports whether any of OBJECT_INHERIT, CONTAINER_INHERIT,
// or INHERIT_ONLY is set.
func (a ACE) IsInheritable() bool {
	f := a.Flags()
	return f&AceFlagObjectInherit != 0 || f&AceFlagContainerInherit != 0 || f&AceFlagInheritOnly != 0
}

// DefinesObjectRights reports whether this ACE is Object-shaped with a
// valid ObjectType GUID (as opposed to defining property/child-object
// rights generally).
func (a ACE) DefinesObjectRights() bool {
	return a.ObjectTypeIsValid()
}

// SupportsInheritanceOrdering always returns false: this codec does not
// order inherited ACEs by ancestor depth. That refinement is future work,
// not an assumption this package silently makes.
func SupportsInheritanceOrdering() bool { return false }

// Rank computes the integer sort key used to place this ACE within an ACL.
// Higher ranks sort earlier: explicit before inherited, deny before allow
// within explicit, object-rights before property-rights within a polarity.
func (a ACE) Rank() int {
	rank := 0
	if a.IsInherited() {
		rank += 1000000
	} else {
		rank += 2000000
	}
	if rank == 2000000 {
		if a.IsDeny() {
			rank += 200000
		} else {
			rank += 100000
		}
		if a.DefinesObjectRights() {
			rank += 20000
		} else {
			rank += 10000
		}
	}
	return rank
}

// TypeName returns the diagnostic name of an ACE type constant, or
// "ACE_TYPE_INVALID" if unrecognized.
func TypeName(aceType byte) string {
	switch aceType {
	case AceTypeAccessAllowed:
		return "ACCESS_ALLOWED"
	case AceTypeAccessDenied:
		return "ACCESS_DENIED"
	case AceTypeSystemAudit:
		return "SYSTEM_AUDIT"
	case AceTypeSystemAlarm:
		return "SYSTEM_ALARM"
	case AceTypeAccessAllowedCompound:
		return "ACCESS_ALLOWED_COMPOUND"
	case AceTypeAccessAllowedObject:
		return "ACCESS_ALLOWED_OBJECT"
	case AceTypeAccessDeniedObject:
		return "ACCESS_DENIED_OBJECT"
	case AceTypeSystemAuditObject:
		return "SYSTEM_AUDIT_OBJECT"
	case AceTypeSystemAlarmObject:
		return "SYSTEM_ALARM_OBJECT"
	case AceTypeAccessAllowedCallback:
		return "ACCESS_ALLOWED_CALLBACK"
	case AceTypeAccessDeniedCallback:
		return "ACCESS_DENIED_CALLBACK"
	case AceTypeAccessAllowedCallbackObj:
		return "ACCESS_ALLOWED_CALLBACK_OBJECT"
	case AceTypeAccessDeniedCallbackObj:
		return "ACCESS_DENIED_CALLBACK_OBJECT"
	case AceTypeSystemAuditCallback:
		return "SYSTEM_AUDIT_CALLBACK"
	case AceTypeSystemAlarmCallback:
		return "SYSTEM_ALARM_CALLBACK"
	case AceTypeSystemAuditCallbackObject:
		return "SYSTEM_AUDIT_CALLBACK_OBJECT"
	case AceTypeSystemAlarmCallbackObject:
		return "SYSTEM_ALARM_CALLBACK_OBJECT"
	case AceTypeSystemMandatoryLabel:
		return "SYSTEM_MANDATORY_LABEL"
	case AceTypeSystemResourceAttribute:
		return "SYSTEM_RESOURCE_ATTRIBUTE"
	case AceTypeSystemScopedPolicyID:
		return "SYSTEM_SCOPED_POLICY_ID"
	default:
		return "ACE_TYPE_INVALID"
	}
}

// FlagsString renders an ACE flags byte as a "|"-joined list of flag names,
// for diagnostics.
func FlagsString(flags byte) string {
	var names []string
	add := func(bit byte, name string) {
		if flags&bit != 0 {
			names = append(names, name)
		}
	}
	add(AceFlagObjectInherit, "OBJECT_INHERIT")
	add(AceFlagContainerInherit, "CONTAINER_INHERIT")
	add(AceFlagNoPropagateInherit, "NO_PROPAGATE_INHERIT")
	add(AceFlagInheritOnly, "INHERIT_ONLY")
	add(AceFlagInherited, "INHERITED")
	add(AceFlagNotDocumented, "NOTDOCUMENTED")
	add(AceFlagSuccessfulAccess, "SUCCESSFUL_ACCESS")
	add(AceFlagFailedAccess, "FAILED_ACCESS")
	return strings.Join(names, "|")
}

// MaskString renders an access mask as a "|"-joined list of recognized bit
// names, for diagnostics. Unrecognized bits are silently omitted.
func MaskString(mask uint32) string {
	var names []string
	add := func(bit uint32, name string) {
		if mask&bit != 0 {
			names = append(names, name)
		}
	}
	add(AccessMaskGenericRead, "GENERIC_READ")
	add(AccessMaskGenericWrite, "GENERIC_WRITE")
	add(AccessMaskGenericExecute, "GENERIC_EXECUTE")
	add(AccessMaskGenericAll, "GENERIC_ALL")
	add(AccessMaskMaximumAllowed, "MAXIMUM_ALLOWED")
	add(AccessMaskAccessSystemSecurity, "ACCESS_SYSTEM_SECURITY")
	add(AccessMaskSynchronize, "SYNCHRONIZE")
	add(AccessMaskWriteOwner, "WRITE_OWNER")
	add(AccessMaskWriteDacl, "WRITE_DACL")
	add(AccessMaskReadControl, "READ_CONTROL")
	add(AccessMaskDelete, "DELETE")
	add(AdsRightDSCreateChild, "DS_CREATE_CHILD")
	add(AdsRightDSDeleteChild, "DS_DELETE_CHILD")
	add(AdsRightDSSelf, "DS_SELF")
	add(AdsRightDSReadProp, "DS_READ_PROP")
	add(AdsRightDSWriteProp, "DS_WRITE_PROP")
	add(AdsRightDSControlAccess, "DS_CONTROL_ACCESS")
	return strings.Join(names, "|")
}

// Info is a diagnostic snapshot of an ACE's decoded fields.
type Info struct {
	Type                string
	Flags               string
	Mask                string
	Trustee             string
	Inherited           bool
	Rank                int
	ObjectTypeFlags     string
	ObjectType          string
	InheritedObjectType string
}

// Inspect decodes a into an Info suitable for logging or CLI display.
func (a ACE) Inspect() (Info, error) {
	trustee, err := a.TrusteeSID()
	if err != nil {
		return Info{}, err
	}
	readable, err := BytesToReadable(trustee)
	if err != nil {
		return Info{}, err
	}
	info := Info{
		Type:      TypeName(a.Type()),
		Flags:     FlagsString(a.Flags()),
		Mask:      MaskString(a.Mask()),
		Trustee:   readable,
		Inherited: a.IsInherited(),
		Rank:      a.Rank(),
	}
	if anyObjectShaped[a.Type()] {
		objFlags, _ := a.ObjectFlags()
		info.ObjectTypeFlags = objectFlagsString(objFlags)
		if a.ObjectTypeIsValid() {
			g, err := a.ObjectTypeGUID()
			if err == nil {
				info.ObjectType = g.String()
			}
		}
		if a.InheritedObjectTypeIsValid() {
			g, err := a.InheritedObjectTypeGUID()
			if err == nil {
				info.InheritedObjectType = g.String()
			}
		}
	}
	return info, nil
}

func objectFlagsString(flags uint32) string {
	var names []string
	if flags&ObjectTypePresent != 0 {
		names = append(names, "OBJECT_TYPE_PRESENT")
	}
	if flags&InheritedObjectTypePresent != 0 {
		names = append(names, "INHERITED_OBJECT_TYPE_PRESENT")
	}
	return strings.Join(names, "|")
}
