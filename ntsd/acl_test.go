package ntsd

import (
	"errors"
	"testing"
)

func mustACE(t *testing.T, aceType byte, flags byte, mask uint32, trustee string) ACE {
	t.Helper()
	sid := mustSID(t, trustee)
	ace, err := NewSimpleACE(aceType, flags, mask, sid)
	if err != nil {
		t.Fatalf("NewSimpleACE: %v", err)
	}
	return ace
}

func TestACLSizeAccounting(t *testing.T) {
	ace := mustACE(t, AceTypeAccessAllowed, 0, AccessMaskGenericAll, "S-1-1-0")
	acl := NewACL(ace, false)

	if int(acl.AceCount()) != len(acl.AceList()) {
		t.Errorf("AceCount() = %d, len(AceList()) = %d", acl.AceCount(), len(acl.AceList()))
	}
	wantSize := 8
	for _, a := range acl.AceList() {
		wantSize += len(a)
	}
	if int(acl.Size()) != wantSize {
		t.Errorf("Size() = %d, want %d", acl.Size(), wantSize)
	}
}

func TestNewACL_RevisionBasedOnDSFlag(t *testing.T) {
	ace := mustACE(t, AceTypeAccessAllowed, 0, AccessMaskGenericAll, "S-1-1-0")
	if got := NewACL(ace, false)[0]; got != AclRevision {
		t.Errorf("NewACL(ace, false) revision = %#x, want %#x", got, AclRevision)
	}
	if got := NewACL(ace, true)[0]; got != AclRevisionDS {
		t.Errorf("NewACL(ace, true) revision = %#x, want %#x", got, AclRevisionDS)
	}
}

func TestAddAceToACL_DenyOrdering(t *testing.T) {
	allow := mustACE(t, AceTypeAccessAllowed, 0, AccessMaskGenericAll, "S-1-1-0")
	acl := NewACL(allow, false)

	deny := mustACE(t, AceTypeAccessDenied, 0, AccessMaskGenericWrite, "S-1-1-0")
	acl, err := AddAceToACL(acl, deny)
	if err != nil {
		t.Fatalf("AddAceToACL: %v", err)
	}

	list := acl.AceList()
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if list[0].Type() != AceTypeAccessDenied {
		t.Errorf("list[0].Type() = %d, want deny ACE first", list[0].Type())
	}
	if list[1].Type() != AceTypeAccessAllowed {
		t.Errorf("list[1].Type() = %d, want allow ACE second", list[1].Type())
	}
}

func TestAddAceToACL_InsertionMonotonicity(t *testing.T) {
	first := mustACE(t, AceTypeAccessAllowed, 0, AccessMaskGenericAll, "S-1-1-0")
	acl := NewACL(first, false)

	toAdd := []ACE{
		mustACE(t, AceTypeAccessDenied, 0, AccessMaskGenericWrite, "S-1-1-0"),
		mustACE(t, AceTypeAccessAllowed, 0, AccessMaskGenericRead, "S-1-1-0"),
		mustACE(t, AceTypeAccessDenied, 0, AccessMaskGenericExecute, "S-1-1-0"),
	}
	var err error
	for _, ace := range toAdd {
		acl, err = AddAceToACL(acl, ace)
		if err != nil {
			t.Fatalf("AddAceToACL: %v", err)
		}
	}

	list := acl.AceList()
	for i := 1; i < len(list); i++ {
		if list[i-1].Rank() < list[i].Rank() {
			t.Errorf("rank not monotonic at index %d: %d < %d", i, list[i-1].Rank(), list[i].Rank())
		}
	}
}

func TestAddAceToACL_AppendsWhenLowestRank(t *testing.T) {
	// Higher ranks sort earlier. An explicit allow ACE ranks below an
	// explicit deny ACE, so adding it to a deny-only ACL must append it at
	// the end, not fall through to the second-to-last position.
	deny := mustACE(t, AceTypeAccessDenied, 0, AccessMaskGenericWrite, "S-1-1-0")
	acl := NewACL(deny, false)

	allow := mustACE(t, AceTypeAccessAllowed, 0, AccessMaskGenericAll, "S-1-1-0")
	acl, err := AddAceToACL(acl, allow)
	if err != nil {
		t.Fatalf("AddAceToACL: %v", err)
	}
	list := acl.AceList()
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if list[1].Type() != AceTypeAccessAllowed {
		t.Errorf("lowest-rank ACE should be appended last; got list[1].Type() = %d", list[1].Type())
	}
}

func TestAddAceToACL_RejectsInheritable(t *testing.T) {
	first := mustACE(t, AceTypeAccessAllowed, 0, AccessMaskGenericAll, "S-1-1-0")
	acl := NewACL(first, false)
	inheritable := mustACE(t, AceTypeAccessAllowed, AceFlagContainerInherit, AccessMaskGenericRead, "S-1-1-0")
	if _, err := AddAceToACL(acl, inheritable); !errors.Is(err, ErrInheritedNotAllowed) {
		t.Errorf("expected ErrInheritedNotAllowed, got %v", err)
	}
}

func TestAddAceToACL_EmptyACLRejected(t *testing.T) {
	ace := mustACE(t, AceTypeAccessAllowed, 0, AccessMaskGenericAll, "S-1-1-0")
	if _, err := AddAceToACL(ACL{}, ace); !errors.Is(err, ErrACLEmpty) {
		t.Errorf("expected ErrACLEmpty, got %v", err)
	}
}

func TestAddAceToACL_ObjectRevisionUpgrade(t *testing.T) {
	base := mustACE(t, AceTypeAccessAllowed, 0, AccessMaskGenericAll, "S-1-1-0")
	acl := NewACL(base, false)
	if acl[0] != AclRevision {
		t.Fatalf("initial revision = %#x, want %#x", acl[0], AclRevision)
	}

	objectACE, err := NewObjectACE(AceTypeAccessAllowedObject, 0, AdsRightDSControlAccess, mustSID(t, "S-1-1-0"), &ChangePasswordRight, nil)
	if err != nil {
		t.Fatalf("NewObjectACE: %v", err)
	}
	acl, err = AddAceToACL(acl, objectACE)
	if err != nil {
		t.Fatalf("AddAceToACL: %v", err)
	}
	if acl[0] != AclRevisionDS {
		t.Errorf("revision after adding object ACE = %#x, want %#x", acl[0], AclRevisionDS)
	}
}

func TestRemoveAceFromACL(t *testing.T) {
	first := mustACE(t, AceTypeAccessDenied, 0, AccessMaskGenericWrite, "S-1-1-0")
	acl := NewACL(first, false)
	second := mustACE(t, AceTypeAccessAllowed, 0, AccessMaskGenericAll, "S-1-1-0")
	acl, err := AddAceToACL(acl, second)
	if err != nil {
		t.Fatalf("AddAceToACL: %v", err)
	}

	idx := acl.AceIndex(second)
	if idx < 0 {
		t.Fatalf("AceIndex did not find the second ACE")
	}
	result, err := RemoveAceFromACL(acl, idx)
	if err != nil {
		t.Fatalf("RemoveAceFromACL: %v", err)
	}
	if int(result.AceCount()) != 1 {
		t.Errorf("AceCount() = %d, want 1", result.AceCount())
	}
	if result.AceList()[0].Type() != AceTypeAccessDenied {
		t.Errorf("remaining ACE type = %d, want deny", result.AceList()[0].Type())
	}
}

func TestRemoveAceFromACL_LastOneReturnsEmpty(t *testing.T) {
	only := mustACE(t, AceTypeAccessAllowed, 0, AccessMaskGenericAll, "S-1-1-0")
	acl := NewACL(only, false)
	result, err := RemoveAceFromACL(acl, 0)
	if err != nil {
		t.Fatalf("RemoveAceFromACL: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("len(result) = %d, want 0", len(result))
	}
}

func TestRemoveAceFromACL_OutOfRange(t *testing.T) {
	only := mustACE(t, AceTypeAccessAllowed, 0, AccessMaskGenericAll, "S-1-1-0")
	acl := NewACL(only, false)
	if _, err := RemoveAceFromACL(acl, 5); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

func TestAddThenRemoveInverse(t *testing.T) {
	base := mustACE(t, AceTypeAccessAllowed, 0, AccessMaskGenericAll, "S-1-1-0")
	original := NewACL(base, false)

	added := mustACE(t, AceTypeAccessDenied, 0, AccessMaskGenericWrite, "S-1-1-0")
	withAdded, err := AddAceToACL(original, added)
	if err != nil {
		t.Fatalf("AddAceToACL: %v", err)
	}
	idx := withAdded.AceIndex(added)
	if idx < 0 {
		t.Fatalf("AceIndex did not find the added ACE")
	}
	back, err := RemoveAceFromACL(withAdded, idx)
	if err != nil {
		t.Fatalf("RemoveAceFromACL: %v", err)
	}
	if string(back) != string(original) {
		t.Errorf("remove(add(A)) != A: got % x, want % x", []byte(back), []byte(original))
	}
}
