package ntsd

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// SID is a self-contained Security Identifier in wire format:
//
//	Revision            1 byte, always 0x01
//	SubAuthorityCount    1 byte, range 0-15
//	IdentifierAuthority  6 bytes, big-endian, first 4 bytes zero
//	SubAuthority[]       4 bytes each, little-endian
type SID []byte

// ValidAuthorities enumerates the only IdentifierAuthority values this codec
// accepts, per the documented NT security descriptor format.
var ValidAuthorities = map[uint16]bool{
	0:  true, // NULL
	1:  true, // WORLD
	2:  true, // LOCAL
	3:  true, // CREATOR
	4:  true, // NON_UNIQUE
	5:  true, // SECURITY_NT
	15: true, // SECURITY_APP_PACKAGE
	16: true, // SECURITY_MANDATORY_LABEL
}

// WellKnown maps a handful of universal SIDs (fixed by the NT security
// model, never resolved against a directory) to their conventional names.
var WellKnown = map[string]string{
	"S-1-0-0":      "NULL SID",
	"S-1-1-0":      "Everyone",
	"S-1-5-10":     "SELF",
	"S-1-5-18":     "LOCAL SYSTEM",
	"S-1-5-32-544": "BUILTIN\\Administrators",
}

// SIDIsValid reports whether b conforms to the wire format: revision 1,
// sub-authority count in [0,15], a zeroed high 32 bits of the identifier
// authority, an authority value drawn from ValidAuthorities, and a length
// consistent with the declared sub-authority count.
func SIDIsValid(b []byte) bool {
	if len(b) < 8 {
		return false
	}
	if b[0] != 0x01 {
		return false
	}
	subAuthorityCount := int(b[1])
	if subAuthorityCount > 15 {
		return false
	}
	if binary.BigEndian.Uint32(b[2:6]) != 0 {
		return false
	}
	authority := binary.BigEndian.Uint16(b[6:8])
	if !ValidAuthorities[authority] {
		return false
	}
	return len(b) == 8+4*subAuthorityCount
}

// SubAuthorityCount returns the declared sub-authority count without
// validating the rest of the buffer.
func (s SID) SubAuthorityCount() int {
	if len(s) < 2 {
		return 0
	}
	return int(s[1])
}

// Len returns the number of bytes this SID occupies according to its own
// sub-authority count (8 + 4*count), independent of len(s).
func (s SID) Len() int {
	return 8 + 4*s.SubAuthorityCount()
}

// ReadableToBytes parses a "S-<revision>-<authority>-<sub0>-<sub1>-..."
// string into its SID wire form.
func ReadableToBytes(readable string) (SID, error) {
	if !strings.HasPrefix(readable, "S-") {
		return nil, fmt.Errorf("%w: %q must start with \"S-\"", ErrMalformedSID, readable)
	}
	parts := strings.Split(readable, "-")
	if len(parts) < 3 {
		return nil, fmt.Errorf("%w: %q has too few components", ErrMalformedSID, readable)
	}

	revision, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid revision %q: %v", ErrMalformedSID, parts[1], err)
	}
	authority, err := strconv.ParseUint(parts[2], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid authority %q: %v", ErrMalformedSID, parts[2], err)
	}
	subAuthorityStrs := parts[3:]
	if len(subAuthorityStrs) > 15 {
		return nil, fmt.Errorf("%w: %d sub-authorities exceeds maximum of 15", ErrMalformedSID, len(subAuthorityStrs))
	}

	b := make([]byte, 8, 8+4*len(subAuthorityStrs))
	b[0] = byte(revision)
	b[1] = byte(len(subAuthorityStrs))
	binary.BigEndian.PutUint16(b[6:8], uint16(authority))

	for _, sa := range subAuthorityStrs {
		v, err := strconv.ParseUint(sa, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid sub-authority %q: %v", ErrMalformedSID, sa, err)
		}
		tail := make([]byte, 4)
		binary.LittleEndian.PutUint32(tail, uint32(v))
		b = append(b, tail...)
	}

	if !SIDIsValid(b) {
		return nil, fmt.Errorf("%w: %q did not produce a valid SID", ErrMalformedSID, readable)
	}
	return SID(b), nil
}

// BytesToReadable renders a SID's wire form as "S-<revision>-<authority>-...".
func BytesToReadable(b []byte) (string, error) {
	if !SIDIsValid(b) {
		return "", fmt.Errorf("%w: %x", ErrMalformedSID, b)
	}
	subAuthorityCount := int(b[1])
	parts := make([]string, 0, 3+subAuthorityCount)
	parts = append(parts, "S", strconv.Itoa(int(b[0])), strconv.Itoa(int(binary.BigEndian.Uint16(b[6:8]))))
	for i := 0; i < subAuthorityCount; i++ {
		n := 8 + 4*i
		parts = append(parts, strconv.FormatUint(uint64(binary.LittleEndian.Uint32(b[n:n+4])), 10))
	}
	return strings.Join(parts, "-"), nil
}

// BytesToLDAPFilter renders a SID as an LDAP search-filter byte-escaped
// string, e.g. "\01\01\00...".
func BytesToLDAPFilter(b []byte) (string, error) {
	if !SIDIsValid(b) {
		return "", fmt.Errorf("%w: %x", ErrMalformedSID, b)
	}
	var sb strings.Builder
	for _, c := range b {
		fmt.Fprintf(&sb, "\\%02X", c)
	}
	return sb.String(), nil
}
