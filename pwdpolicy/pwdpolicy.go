// Package pwdpolicy implements the "user cannot change password" checkbox
// that Active Directory Users and Computers exposes on a user account. The
// checkbox is not a real attribute: it is surfaced by the presence or
// absence of three specific ACEs in the user object's DACL.
package pwdpolicy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/go-ntsd/ntsd/directory"
	"github.com/go-ntsd/ntsd/ntsd"
)

// ErrNotAUser is returned when the target object's objectClass does not
// include "user".
var ErrNotAUser = errors.New("pwdpolicy: target is not a user object")

var (
	everyoneSID = mustSID("S-1-1-0")
	selfSID     = mustSID("S-1-5-10")
)

func mustSID(readable string) ntsd.SID {
	sid, err := ntsd.ReadableToBytes(readable)
	if err != nil {
		panic(fmt.Sprintf("pwdpolicy: invalid well-known SID %q: %v", readable, err))
	}
	return sid
}

func denyEveryoneACE() (ntsd.ACE, error) {
	return ntsd.NewObjectACE(ntsd.AceTypeAccessDeniedObject, 0, ntsd.AdsRightDSControlAccess, everyoneSID, &ntsd.ChangePasswordRight, nil)
}

func denySelfACE() (ntsd.ACE, error) {
	return ntsd.NewObjectACE(ntsd.AceTypeAccessDeniedObject, 0, ntsd.AdsRightDSControlAccess, selfSID, &ntsd.ChangePasswordRight, nil)
}

func allowEveryoneACE() (ntsd.ACE, error) {
	return ntsd.NewObjectACE(ntsd.AceTypeAccessAllowedObject, 0, ntsd.AdsRightDSControlAccess, everyoneSID, &ntsd.ChangePasswordRight, nil)
}

// ObjectClassFetcher retrieves the objectClass values for dn, so this
// package never needs to know how directory attributes other than the
// security descriptor are read.
type ObjectClassFetcher func(ctx context.Context, dn string) ([]string, error)

// Set toggles "user cannot change password" for dn. When enable is true it
// adds the deny-Everyone and deny-Self ACEs (removing any stale
// allow-Everyone ACE first); when false it removes the deny ACEs and
// ensures the allow-Everyone ACE is present, matching what AD itself does
// when the checkbox is unticked. It reports whether the DACL actually
// changed, and only writes back to the directory when it did.
func Set(ctx context.Context, dir *directory.Client, classes ObjectClassFetcher, log *zap.Logger, dn string, enable bool) (changed bool, err error) {
	if log == nil {
		log = zap.NewNop()
	}

	objectClasses, err := classes(ctx, dn)
	if err != nil {
		return false, fmt.Errorf("pwdpolicy: fetch objectClass for %s: %w", dn, err)
	}
	if !hasClass(objectClasses, "user") {
		return false, fmt.Errorf("%w: %s", ErrNotAUser, dn)
	}

	sdBytes, err := dir.GetSecurityDescriptor(ctx, dn)
	if err != nil {
		return false, fmt.Errorf("pwdpolicy: read security descriptor for %s: %w", dn, err)
	}

	dacl, err := ntsd.SD(sdBytes).AclBytes(ntsd.KindDACL)
	if err != nil {
		return false, fmt.Errorf("pwdpolicy: read DACL for %s: %w", dn, err)
	}

	newDACL, changed, err := apply(dacl, enable)
	if err != nil {
		return false, fmt.Errorf("pwdpolicy: compute DACL for %s: %w", dn, err)
	}
	if !changed {
		log.Debug("user cannot change password already in desired state", zap.String("dn", dn), zap.Bool("enable", enable))
		return false, nil
	}

	newSD, err := ntsd.ReplaceACL(ntsd.SD(sdBytes), ntsd.KindDACL, newDACL)
	if err != nil {
		return false, fmt.Errorf("pwdpolicy: splice DACL for %s: %w", dn, err)
	}

	if err := dir.SetSecurityDescriptor(ctx, dn, newSD); err != nil {
		return false, fmt.Errorf("pwdpolicy: write security descriptor for %s: %w", dn, err)
	}

	log.Info("updated user cannot change password", zap.String("dn", dn), zap.Bool("enable", enable))
	return true, nil
}

// apply computes the new DACL for the given desired state, reporting
// whether anything changed. It is pure and directory-free so it can be
// unit tested without a live LDAP connection.
func apply(dacl ntsd.ACL, enable bool) (ntsd.ACL, bool, error) {
	denyEveryone, err := denyEveryoneACE()
	if err != nil {
		return nil, false, err
	}
	denySelf, err := denySelfACE()
	if err != nil {
		return nil, false, err
	}
	allowEveryone, err := allowEveryoneACE()
	if err != nil {
		return nil, false, err
	}

	changed := false
	add := func(ace ntsd.ACE) error {
		if len(dacl) == 0 {
			dacl = ntsd.NewACL(ace, true)
			return nil
		}
		var err error
		dacl, err = ntsd.AddAceToACL(dacl, ace)
		return err
	}

	if enable {
		if idx := dacl.AceIndex(allowEveryone); idx != -1 {
			dacl, err = ntsd.RemoveAceFromACL(dacl, idx)
			if err != nil {
				return nil, false, err
			}
			changed = true
		}
		if dacl.AceIndex(denyEveryone) == -1 {
			if err := add(denyEveryone); err != nil {
				return nil, false, err
			}
			changed = true
		}
		if dacl.AceIndex(denySelf) == -1 {
			if err := add(denySelf); err != nil {
				return nil, false, err
			}
			changed = true
		}
		return dacl, changed, nil
	}

	if idx := dacl.AceIndex(denyEveryone); idx != -1 {
		dacl, err = ntsd.RemoveAceFromACL(dacl, idx)
		if err != nil {
			return nil, false, err
		}
		changed = true
	}
	if idx := dacl.AceIndex(denySelf); idx != -1 {
		dacl, err = ntsd.RemoveAceFromACL(dacl, idx)
		if err != nil {
			return nil, false, err
		}
		changed = true
	}
	// Permissions default to deny once the deny ACEs are gone, so the
	// allow-Everyone ACE must be explicitly present, matching what AD
	// itself writes when the checkbox is unticked.
	if dacl.AceIndex(allowEveryone) == -1 {
		if err := add(allowEveryone); err != nil {
			return nil, false, err
		}
		changed = true
	}
	return dacl, changed, nil
}

func hasClass(classes []string, want string) bool {
	for _, c := range classes {
		if strings.EqualFold(c, want) {
			return true
		}
	}
	return false
}
