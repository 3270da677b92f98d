//go:build !windows

package filesd

import "errors"

// ErrUnsupportedPlatform is returned by GetBytes on any OS other than
// Windows, where the underlying advapi32 security APIs do not exist.
var ErrUnsupportedPlatform = errors.New("filesd: reading a file security descriptor is only supported on windows")

// GetBytes always fails outside Windows.
func GetBytes(path string) ([]byte, error) {
	return nil, ErrUnsupportedPlatform
}
