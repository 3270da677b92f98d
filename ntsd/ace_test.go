package ntsd

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func mustSID(t *testing.T, readable string) SID {
	t.Helper()
	s, err := ReadableToBytes(readable)
	if err != nil {
		t.Fatalf("ReadableToBytes(%q): %v", readable, err)
	}
	return s
}

func TestNewSimpleACE(t *testing.T) {
	everyone := mustSID(t, "S-1-1-0")

	tests := []struct {
		name     string
		aceType  byte
		flags    byte
		mask     uint32
		trustee  SID
		wantErr  error
		wantSize int
	}{
		{
			name:     "access allowed, generic all",
			aceType:  AceTypeAccessAllowed,
			flags:    0,
			mask:     AccessMaskGenericAll,
			trustee:  everyone,
			wantSize: 20, // 8 header+mask + 12 SID, already 4-aligned
		},
		{
			name:    "invalid type for simple shape",
			aceType: AceTypeAccessAllowedObject,
			mask:    AccessMaskGenericAll,
			trustee: everyone,
			wantErr: ErrInvalidAceType,
		},
		{
			name:    "mask out of range",
			aceType: AceTypeAccessAllowed,
			mask:    1,
			trustee: everyone,
			wantErr: ErrInvalidMask,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ace, err := NewSimpleACE(tt.aceType, tt.flags, tt.mask, tt.trustee)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NewSimpleACE() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSimpleACE(): %v", err)
			}
			if len(ace) != tt.wantSize {
				t.Errorf("len(ace) = %d, want %d", len(ace), tt.wantSize)
			}
			if int(ace.Size()) != len(ace) {
				t.Errorf("ace.Size() = %d, but buffer is %d bytes", ace.Size(), len(ace))
			}
			if len(ace)%4 != 0 {
				t.Errorf("ace length %d not 4-byte aligned", len(ace))
			}
		})
	}
}

func TestACERoundTrip(t *testing.T) {
	trustee := mustSID(t, "S-1-5-18")
	ace, err := NewSimpleACE(AceTypeAccessDenied, AceFlagInheritOnly, AccessMaskGenericWrite, trustee)
	if err != nil {
		t.Fatalf("NewSimpleACE: %v", err)
	}

	if ace.Type() != AceTypeAccessDenied {
		t.Errorf("Type() = %d, want %d", ace.Type(), AceTypeAccessDenied)
	}
	if ace.Flags() != AceFlagInheritOnly {
		t.Errorf("Flags() = %d, want %d", ace.Flags(), AceFlagInheritOnly)
	}
	if ace.Mask() != AccessMaskGenericWrite {
		t.Errorf("Mask() = %#x, want %#x", ace.Mask(), AccessMaskGenericWrite)
	}
	got, err := ace.TrusteeSID()
	if err != nil {
		t.Fatalf("TrusteeSID(): %v", err)
	}
	if string(got) != string(trustee) {
		t.Errorf("TrusteeSID() = % x, want % x", []byte(got), []byte(trustee))
	}
}

func TestNewObjectACE_ExtendedRightEncoding(t *testing.T) {
	everyone := mustSID(t, "S-1-1-0")
	ace, err := NewObjectACE(AceTypeAccessDeniedObject, 0, AdsRightDSControlAccess, everyone, &ChangePasswordRight, nil)
	if err != nil {
		t.Fatalf("NewObjectACE: %v", err)
	}
	// 4 header + 4 mask + 4 objectflags + 16 GUID + 12 SID = 40, already aligned.
	if len(ace) != 40 {
		t.Errorf("len(ace) = %d, want 40", len(ace))
	}
	if int(ace.Size()) != len(ace) {
		t.Errorf("ace.Size() = %d, but buffer is %d bytes", ace.Size(), len(ace))
	}
	objFlags, err := ace.ObjectFlags()
	if err != nil {
		t.Fatalf("ObjectFlags(): %v", err)
	}
	if objFlags != ObjectTypePresent {
		t.Errorf("ObjectFlags() = %#x, want %#x", objFlags, ObjectTypePresent)
	}
	guid, err := ace.ObjectTypeGUID()
	if err != nil {
		t.Fatalf("ObjectTypeGUID(): %v", err)
	}
	if guid != ChangePasswordRight {
		t.Errorf("ObjectTypeGUID() = %v, want %v", guid, ChangePasswordRight)
	}
}

func TestNewObjectACE_InvalidMask(t *testing.T) {
	everyone := mustSID(t, "S-1-1-0")
	_, err := NewObjectACE(AceTypeAccessAllowedObject, 0, AdsRightDSCreateChild|AdsRightDSSelf, everyone, nil, nil)
	if !errors.Is(err, ErrInvalidMask) {
		t.Errorf("expected ErrInvalidMask, got %v", err)
	}
}

func TestACE_ObjectFlagsUnsupportedForSimpleShape(t *testing.T) {
	trustee := mustSID(t, "S-1-1-0")
	ace, err := NewSimpleACE(AceTypeAccessAllowed, 0, AccessMaskGenericAll, trustee)
	if err != nil {
		t.Fatalf("NewSimpleACE: %v", err)
	}
	if _, err := ace.ObjectFlags(); !errors.Is(err, ErrUnsupportedForType) {
		t.Errorf("expected ErrUnsupportedForType, got %v", err)
	}
}

func TestACERank(t *testing.T) {
	trustee := mustSID(t, "S-1-1-0")
	allow, err := NewSimpleACE(AceTypeAccessAllowed, 0, AccessMaskGenericAll, trustee)
	if err != nil {
		t.Fatalf("NewSimpleACE: %v", err)
	}
	deny, err := NewSimpleACE(AceTypeAccessDenied, 0, AccessMaskGenericAll, trustee)
	if err != nil {
		t.Fatalf("NewSimpleACE: %v", err)
	}
	if deny.Rank() >= allow.Rank() {
		t.Errorf("deny.Rank() = %d should be less than allow.Rank() = %d", deny.Rank(), allow.Rank())
	}

	inheritedFlags := byte(AceFlagInherited)
	inherited, err := NewSimpleACE(AceTypeAccessAllowed, inheritedFlags, AccessMaskGenericAll, trustee)
	if err != nil {
		t.Fatalf("NewSimpleACE: %v", err)
	}
	if inherited.Rank() >= allow.Rank() {
		t.Errorf("inherited.Rank() = %d should be less than explicit allow.Rank() = %d", inherited.Rank(), allow.Rank())
	}
}

func TestUnimplementedConstructors(t *testing.T) {
	trustee := mustSID(t, "S-1-1-0")
	if _, err := NewMandatoryLabelACE(0, AccessMaskGenericAll, trustee); !errors.Is(err, ErrUnimplemented) {
		t.Errorf("NewMandatoryLabelACE: expected ErrUnimplemented, got %v", err)
	}
	if _, err := NewResourceAttributeACE(0, AccessMaskGenericAll, trustee, nil); !errors.Is(err, ErrUnimplemented) {
		t.Errorf("NewResourceAttributeACE: expected ErrUnimplemented, got %v", err)
	}
	if _, err := NewScopedPolicyIDACE(0, AccessMaskGenericAll, trustee); !errors.Is(err, ErrUnimplemented) {
		t.Errorf("NewScopedPolicyIDACE: expected ErrUnimplemented, got %v", err)
	}
}

func TestACEInspect(t *testing.T) {
	trustee := mustSID(t, "S-1-5-18")
	inheritedGUID := uuid.New()
	ace, err := NewObjectACE(AceTypeAccessAllowedObject, AceFlagInherited, AdsRightDSReadProp, trustee, nil, &inheritedGUID)
	if err != nil {
		t.Fatalf("NewObjectACE: %v", err)
	}
	info, err := ace.Inspect()
	if err != nil {
		t.Fatalf("Inspect(): %v", err)
	}
	if info.Type != "ACCESS_ALLOWED_OBJECT" {
		t.Errorf("info.Type = %q", info.Type)
	}
	if !info.Inherited {
		t.Error("info.Inherited = false, want true")
	}
	if info.InheritedObjectType != inheritedGUID.String() {
		t.Errorf("info.InheritedObjectType = %q, want %q", info.InheritedObjectType, inheritedGUID.String())
	}
}
