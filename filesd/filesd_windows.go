//go:build windows

// Package filesd reads the security descriptor attached to a file or
// directory on the local filesystem, for callers that want to inspect or
// diff on-disk ACLs with the same ntsd codec used for directory objects.
package filesd

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	advapi32                      = windows.NewLazyDLL("advapi32.dll")
	getSecurityInfo               = advapi32.NewProc("GetSecurityInfo")
	getSecurityDescriptorLength   = advapi32.NewProc("GetSecurityDescriptorLength")
	getSecurityDescriptorControl  = advapi32.NewProc("GetSecurityDescriptorControl")
	makeSelfRelativeSD            = advapi32.NewProc("MakeSelfRelativeSD")
	openProcessToken              = advapi32.NewProc("OpenProcessToken")
	lookupPrivilegeValueW         = advapi32.NewProc("LookupPrivilegeValueW")
	adjustTokenPrivileges         = advapi32.NewProc("AdjustTokenPrivileges")
)

const (
	ownerSecurityInformation = 0x00000001
	groupSecurityInformation = 0x00000002
	daclSecurityInformation  = 0x00000004
	saclSecurityInformation  = 0x00000008

	seSecurityName        = "SeSecurityPrivilege"
	tokenAdjustPrivileges = 0x0020
	tokenQuery            = 0x0008

	readControl          = 0x00020000
	accessSystemSecurity = 0x01000000

	seSelfRelative = 0x8000
)

type luid struct {
	LowPart  uint32
	HighPart int32
}

type luidAndAttributes struct {
	Luid       luid
	Attributes uint32
}

type tokenPrivileges struct {
	PrivilegeCount uint32
	Privileges     [1]luidAndAttributes
}

// enableSecurityPrivilege asks the current process token for
// SeSecurityPrivilege, needed to read a SACL. Callers without the
// privilege still get the rest of the descriptor; GetBytes degrades
// gracefully when this fails.
func enableSecurityPrivilege() error {
	var token windows.Token
	currentProcess := windows.CurrentProcess()

	ret, _, err := openProcessToken.Call(
		uintptr(currentProcess),
		uintptr(tokenAdjustPrivileges|tokenQuery),
		uintptr(unsafe.Pointer(&token)),
	)
	if ret == 0 {
		return fmt.Errorf("OpenProcessToken: %w", err)
	}
	defer token.Close()

	var id luid
	privName, err := syscall.UTF16PtrFromString(seSecurityName)
	if err != nil {
		return fmt.Errorf("UTF16PtrFromString: %w", err)
	}

	ret, _, err = lookupPrivilegeValueW.Call(
		0,
		uintptr(unsafe.Pointer(privName)),
		uintptr(unsafe.Pointer(&id)),
	)
	if ret == 0 {
		return fmt.Errorf("LookupPrivilegeValue: %w", err)
	}

	var tp tokenPrivileges
	tp.PrivilegeCount = 1
	tp.Privileges[0].Luid = id
	tp.Privileges[0].Attributes = 0x00000002 // SE_PRIVILEGE_ENABLED

	ret, _, err = adjustTokenPrivileges.Call(
		uintptr(token),
		0,
		uintptr(unsafe.Pointer(&tp)),
		0, 0, 0,
	)
	if ret == 0 {
		return fmt.Errorf("AdjustTokenPrivileges: %w", err)
	}
	return nil
}

func securityDescriptorPointer(path string) (uintptr, error) {
	pathPtr, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return 0, fmt.Errorf("convert path: %w", err)
	}

	attrs, err := syscall.GetFileAttributes(pathPtr)
	if err != nil {
		return 0, fmt.Errorf("get file attributes: %w", err)
	}

	fileFlags := uint32(syscall.FILE_ATTRIBUTE_NORMAL)
	if attrs&syscall.FILE_ATTRIBUTE_DIRECTORY != 0 {
		fileFlags = syscall.FILE_FLAG_BACKUP_SEMANTICS
	}

	handle, err := syscall.CreateFile(
		pathPtr,
		readControl|accessSystemSecurity,
		syscall.FILE_SHARE_READ,
		nil,
		syscall.OPEN_EXISTING,
		fileFlags,
		0,
	)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer syscall.CloseHandle(handle)

	var pSD, pOwner, pGroup, pDacl, pSacl uintptr
	secInfo := ownerSecurityInformation | groupSecurityInformation | daclSecurityInformation | saclSecurityInformation

	ret, _, callErr := getSecurityInfo.Call(
		uintptr(handle), uintptr(1), uintptr(secInfo),
		uintptr(unsafe.Pointer(&pOwner)), uintptr(unsafe.Pointer(&pGroup)),
		uintptr(unsafe.Pointer(&pDacl)), uintptr(unsafe.Pointer(&pSacl)),
		uintptr(unsafe.Pointer(&pSD)),
	)
	if ret != 0 {
		// SACL access commonly requires a privilege we may not hold; retry
		// without it rather than failing the whole read.
		secInfo = ownerSecurityInformation | groupSecurityInformation | daclSecurityInformation
		ret, _, callErr = getSecurityInfo.Call(
			uintptr(handle), uintptr(1), uintptr(secInfo),
			uintptr(unsafe.Pointer(&pOwner)), uintptr(unsafe.Pointer(&pGroup)),
			uintptr(unsafe.Pointer(&pDacl)), 0,
			uintptr(unsafe.Pointer(&pSD)),
		)
		if ret != 0 {
			return 0, fmt.Errorf("GetSecurityInfo: %w", callErr)
		}
	}
	return pSD, nil
}

// GetBytes reads path's security descriptor and returns it in self-relative
// binary form, ready for ntsd.SD.
func GetBytes(path string) ([]byte, error) {
	if err := enableSecurityPrivilege(); err != nil {
		fmt.Fprintf(os.Stderr, "filesd: could not enable SeSecurityPrivilege, continuing with reduced access: %v\n", err)
	}

	pSD, err := securityDescriptorPointer(path)
	if err != nil {
		return nil, err
	}

	var control uint16
	var revision uint32
	ret, _, callErr := getSecurityDescriptorControl.Call(
		pSD, uintptr(unsafe.Pointer(&control)), uintptr(unsafe.Pointer(&revision)),
	)
	if ret == 0 {
		return nil, fmt.Errorf("GetSecurityDescriptorControl: %w", callErr)
	}

	var finalSD uintptr
	var sdSize uint32

	if control&seSelfRelative == 0 {
		ret, _, callErr = makeSelfRelativeSD.Call(pSD, 0, uintptr(unsafe.Pointer(&sdSize)))
		if ret == 0 {
			return nil, fmt.Errorf("MakeSelfRelativeSD (size): %w", callErr)
		}

		buf, err := windows.LocalAlloc(0, sdSize)
		if err != nil {
			return nil, fmt.Errorf("LocalAlloc: %w", err)
		}
		defer windows.LocalFree(windows.Handle(buf))
		finalSD = buf

		ret, _, callErr = makeSelfRelativeSD.Call(pSD, finalSD, uintptr(unsafe.Pointer(&sdSize)))
		if ret == 0 {
			return nil, fmt.Errorf("MakeSelfRelativeSD: %w", callErr)
		}
	} else {
		finalSD = pSD
		length, _, _ := getSecurityDescriptorLength.Call(pSD)
		sdSize = uint32(length)
	}

	sdBytes := make([]byte, sdSize)
	for i := uint32(0); i < sdSize; i++ {
		sdBytes[i] = *(*byte)(unsafe.Pointer(finalSD + uintptr(i)))
	}
	return sdBytes, nil
}
