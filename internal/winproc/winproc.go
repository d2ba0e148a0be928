//go:build windows

// Package winproc reads identity and command-line information out of
// a debuggee process's PEB (process environment block) on Windows,
// the data a debugger cannot get any other way since the target
// process never calls back into the observer.
//
// Grounded on clade/intercept/windows/debugger.cpp's GetPbi,
// GetCmdLine and GetCurDirPath, translated from raw pointer-width
// #ifdef'd offsets and new[]/delete[] buffers into typed offset
// descriptors and owned Go strings, per the approach golang.org/x/sys
// already takes for the rest of the Windows surface this package
// depends on.
package winproc

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// pebOffsets describes the pointer-width-dependent field offsets
// debugger.cpp hard-codes behind #ifdef _M_X64. Parameterising them
// this way means a 32-bit build target does not need a second copy
// of every reader function, only a second offsets value.
type pebOffsets struct {
	procParams uintptr // PEB -> RTL_USER_PROCESS_PARAMETERS*
	cmdLine    uintptr // RTL_USER_PROCESS_PARAMETERS -> CommandLine (UNICODE_STRING)
	curDirPath uintptr // RTL_USER_PROCESS_PARAMETERS -> CurrentDirectory.DosPath (UNICODE_STRING)
}

var (
	offsets64 = pebOffsets{procParams: 0x20, cmdLine: 0x70, curDirPath: 0x38}
	offsets32 = pebOffsets{procParams: 0x10, cmdLine: 0x40, curDirPath: 0x24}
)

func currentOffsets() pebOffsets {
	if unsafe.Sizeof(uintptr(0)) == 8 {
		return offsets64
	}
	return offsets32
}

var (
	ntdll                         = windows.NewLazySystemDLL("ntdll.dll")
	procNtQueryInformationProcess = ntdll.NewProc("NtQueryInformationProcess")

	psapi                    = windows.NewLazySystemDLL("psapi.dll")
	procGetModuleFileNameExW = psapi.NewProc("GetModuleFileNameExW")
)

// processBasicInformation mirrors PROCESS_BASIC_INFORMATION, the
// subset NtQueryInformationProcess(ProcessBasicInformation, ...)
// fills in. Field layout matches MY_PROCESS_BASIC_INFORMATION in
// debugger.cpp.
type processBasicInformation struct {
	ExitStatus                   uintptr
	PebBaseAddress               uintptr
	AffinityMask                 uintptr
	BasePriority                 uintptr
	UniqueProcessID              uintptr
	InheritedFromUniqueProcessID uintptr
}

// Info is everything HandleCreateProcess needs out of one
// CREATE_PROCESS_DEBUG_EVENT: the new process's own id, its parent's
// id in the Windows process table (not clade's own numbering — the
// debug driver maps that), the command line actually passed to
// CreateProcess, its current directory, and the resolved path of its
// executable image.
type Info struct {
	ProcessID        uint32
	ParentProcessID  uint32
	CommandLine      string
	CurrentDirectory string
	ExecutablePath   string
}

// Query reads Info out of a just-created debuggee process. hProcess
// must be the handle delivered in the CREATE_PROCESS_DEBUG_EVENT;
// the kernel guarantees the PEB is already mapped and initialized by
// the time that event is delivered, matching debugger.cpp's ordering.
func Query(hProcess windows.Handle) (Info, error) {
	pbi, err := queryBasicInfo(hProcess)
	if err != nil {
		return Info{}, err
	}

	off := currentOffsets()

	procParamsAddr, err := readPointer(hProcess, uintptr(pbi.PebBaseAddress)+off.procParams)
	if err != nil {
		return Info{}, fmt.Errorf("winproc: reading ProcessParameters: %w", err)
	}

	cmdLine, err := readUnicodeString(hProcess, procParamsAddr+off.cmdLine)
	if err != nil {
		return Info{}, fmt.Errorf("winproc: reading CommandLine: %w", err)
	}
	curDir, err := readUnicodeString(hProcess, procParamsAddr+off.curDirPath)
	if err != nil {
		return Info{}, fmt.Errorf("winproc: reading CurrentDirectoryPath: %w", err)
	}

	exe, err := moduleFileName(hProcess)
	if err != nil {
		return Info{}, fmt.Errorf("winproc: reading module file name: %w", err)
	}

	return Info{
		ProcessID:        uint32(pbi.UniqueProcessID),
		ParentProcessID:  uint32(pbi.InheritedFromUniqueProcessID),
		CommandLine:      cmdLine,
		CurrentDirectory: curDir,
		ExecutablePath:   exe,
	}, nil
}

func queryBasicInfo(hProcess windows.Handle) (processBasicInformation, error) {
	var pbi processBasicInformation
	r1, _, _ := procNtQueryInformationProcess.Call(
		uintptr(hProcess),
		0, // ProcessBasicInformation
		uintptr(unsafe.Pointer(&pbi)),
		unsafe.Sizeof(pbi),
		0,
	)
	if r1 != 0 {
		return pbi, fmt.Errorf("winproc: NtQueryInformationProcess failed with NTSTATUS 0x%x", r1)
	}
	return pbi, nil
}

func readPointer(hProcess windows.Handle, addr uintptr) (uintptr, error) {
	buf := make([]byte, unsafe.Sizeof(uintptr(0)))
	if err := readProcessMemory(hProcess, addr, buf); err != nil {
		return 0, err
	}
	if len(buf) == 8 {
		return uintptr(binary.LittleEndian.Uint64(buf)), nil
	}
	return uintptr(binary.LittleEndian.Uint32(buf)), nil
}

// readUnicodeString reads a UNICODE_STRING structure at addr, then
// its backing buffer, and returns the decoded Go string. The
// structure is Length(uint16), MaximumLength(uint16), then
// pointer-aligned padding, then Buffer(pointer).
func readUnicodeString(hProcess windows.Handle, addr uintptr) (string, error) {
	ptrSize := unsafe.Sizeof(uintptr(0))
	headerLen := 2 * ptrSize // header occupies one pointer-width of length fields + padding, then one pointer-width for Buffer
	header := make([]byte, headerLen)
	if err := readProcessMemory(hProcess, addr, header); err != nil {
		return "", err
	}

	length := binary.LittleEndian.Uint16(header[0:2])
	var buffer uintptr
	if ptrSize == 8 {
		buffer = uintptr(binary.LittleEndian.Uint64(header[8:16]))
	} else {
		buffer = uintptr(binary.LittleEndian.Uint32(header[4:8]))
	}

	if length == 0 {
		return "", nil
	}

	raw := make([]byte, length)
	if err := readProcessMemory(hProcess, buffer, raw); err != nil {
		return "", err
	}
	return utf16BytesToString(raw), nil
}

func readProcessMemory(hProcess windows.Handle, addr uintptr, out []byte) error {
	var read uintptr
	err := windows.ReadProcessMemory(hProcess, addr, &out[0], uintptr(len(out)), &read)
	if err != nil {
		return err
	}
	if read != uintptr(len(out)) {
		return fmt.Errorf("winproc: short read at 0x%x: got %d of %d bytes", addr, read, len(out))
	}
	return nil
}

func utf16BytesToString(b []byte) string {
	u16 := make([]uint16, len(b)/2)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(b[2*i : 2*i+2])
	}
	return windows.UTF16ToString(u16)
}

func moduleFileName(hProcess windows.Handle) (string, error) {
	buf := make([]uint16, windows.MAX_PATH)
	r1, _, err := procGetModuleFileNameExW.Call(
		uintptr(hProcess),
		0,
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)),
	)
	if r1 == 0 {
		return "", err
	}
	return windows.UTF16ToString(buf), nil
}

// SplitCommandLine splits a Windows command line into argv fields
// using the same CommandLineToArgvW rules cmd.exe and every MSVC
// toolchain binary use for interpreting argv — required because the
// raw CommandLine string from the PEB is unparsed.
func SplitCommandLine(cmdLine string) ([]string, error) {
	ptr, err := windows.UTF16PtrFromString(cmdLine)
	if err != nil {
		return nil, err
	}
	argv, err := windows.CommandLineToArgv(ptr, new(int32))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(argv))
	for _, p := range argv {
		out = append(out, windows.UTF16PtrToString(p))
	}
	return out, nil
}
