//go:build windows

// Package debugdriver runs the Windows debug-event loop that takes
// the place of LD_PRELOAD interposition on platforms with no shared
// library interception mechanism for process creation: every exec in
// the debuggee's process tree surfaces as a CREATE_PROCESS_DEBUG_EVENT
// because the driver launched the root process under DEBUG_PROCESS.
//
// Grounded on clade/intercept/windows/debugger.cpp's
// CreateProcessToDebug/EnterDebugLoop/HandleCreateProcess, rewritten
// around golang.org/x/sys/windows plus this module's internal/winproc,
// internal/respfile, internal/reclog and internal/sink packages
// instead of the original's inline WinAPI calls and ad hoc string
// building.
package debugdriver

import (
	"fmt"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/clade-build/clade/internal/diag"
	"github.com/clade-build/clade/internal/reclog"
	"github.com/clade-build/clade/internal/respfile"
	"github.com/clade-build/clade/internal/sink"
	"github.com/clade-build/clade/internal/winproc"
)

const (
	debugProcessFlag = 0x00000001 // DEBUG_PROCESS

	createProcessDebugEvent = 3
	exitProcessDebugEvent   = 5
	loadDLLDebugEvent       = 6
	exceptionDebugEvent     = 1

	dbgContinue            = 0x00010002
	dbgExceptionNotHandled = 0x80010001

	infinite = 0xFFFFFFFF
)

var (
	kernel32               = windows.NewLazySystemDLL("kernel32.dll")
	procWaitForDebugEvent  = kernel32.NewProc("WaitForDebugEvent")
	procContinueDebugEvent = kernel32.NewProc("ContinueDebugEvent")
)

// debugEventSize is a generous upper bound on sizeof(DEBUG_EVENT): the
// largest union member (EXCEPTION_DEBUG_INFO) makes the whole struct
// 176 bytes on 64-bit, so 256 bytes leaves ample room without needing
// an exact struct translation of every union arm this driver never reads.
const debugEventSize = 256

// Driver observes one build's process tree and emits an exec record
// for every process Windows creates within it.
type Driver struct {
	Sink         sink.Config
	FallbackPath string
	ReadRespFile respfile.FileReader
}

// Spawn launches argv under cmd.exe /c with DEBUG_PROCESS set, the way
// CreateProcessToDebug does, and returns the new process's id.
func Spawn(argv []string) (uint32, error) {
	var b strings.Builder
	b.WriteString(`C:\windows\system32\cmd.exe /c`)
	for _, a := range argv {
		b.WriteByte(' ')
		if strings.ContainsRune(a, ' ') {
			b.WriteByte('"')
			b.WriteString(a)
			b.WriteByte('"')
		} else {
			b.WriteString(a)
		}
	}

	cmdLine, err := windows.UTF16PtrFromString(b.String())
	if err != nil {
		return 0, err
	}

	var si windows.StartupInfo
	si.Cb = uint32(unsafe.Sizeof(si))
	var pi windows.ProcessInformation
	err = windows.CreateProcess(nil, cmdLine, nil, nil, true, debugProcessFlag, nil, nil, &si, &pi)
	if err != nil {
		return 0, fmt.Errorf("debugdriver: CreateProcess: %w", err)
	}
	windows.CloseHandle(pi.Process)
	windows.CloseHandle(pi.Thread)
	return pi.ProcessId, nil
}

// Run enters the debug-event loop for the process tree rooted at
// buildPID, returning once that root process exits. It is the
// equivalent of EnterDebugLoop.
func (d *Driver) Run(buildPID uint32) error {
	pidGraph := map[uint32]int{}
	nextID := 0

	buf := make([]byte, debugEventSize)

	for {
		r1, _, err := procWaitForDebugEvent.Call(uintptr(unsafe.Pointer(&buf[0])), infinite)
		if r1 == 0 {
			return fmt.Errorf("debugdriver: WaitForDebugEvent: %w", err)
		}

		code := le32(buf[0:4])
		pid := le32(buf[4:8])
		tid := le32(buf[8:12])

		switch code {
		case createProcessDebugEvent:
			if err := d.handleCreateProcess(buf, pidGraph, &nextID); err != nil {
				// "Remote-read failure" and "I/O failure" are both fatal:
				// a process this driver failed to observe must not be
				// allowed to run unrecorded.
				diag.Default.Fatalf("clade-debugger: %v", err)
			}
		case exitProcessDebugEvent:
			if pid == buildPID {
				return nil
			}
		case loadDLLDebugEvent:
			hFile := windows.Handle(lePointer(buf, unionOffset()))
			if hFile != 0 {
				windows.CloseHandle(hFile)
			}
		}

		continueStatus := uint32(dbgContinue)
		if code == exceptionDebugEvent {
			continueStatus = dbgExceptionNotHandled
		}
		procContinueDebugEvent.Call(uintptr(pid), uintptr(tid), uintptr(continueStatus))
	}
}

// unionOffset is where DEBUG_EVENT's anonymous union begins: three
// DWORDs (dwDebugEventCode, dwProcessId, dwThreadId), then padding up
// to pointer alignment since every union member leads with a handle.
func unionOffset() int {
	ptrSize := int(unsafe.Sizeof(uintptr(0)))
	base := 12
	if rem := base % ptrSize; rem != 0 {
		base += ptrSize - rem
	}
	return base
}

func (d *Driver) handleCreateProcess(buf []byte, pidGraph map[uint32]int, nextID *int) error {
	ptrSize := int(unsafe.Sizeof(uintptr(0)))
	u := unionOffset()

	hProcess := windows.Handle(lePointer(buf, u+ptrSize))
	hFile := windows.Handle(lePointer(buf, u))
	if hFile != 0 {
		defer windows.CloseHandle(hFile)
	}

	info, err := winproc.Query(hProcess)
	if err != nil {
		return fmt.Errorf("querying process info: %w", err)
	}

	if _, ok := pidGraph[info.ParentProcessID]; !ok {
		pidGraph[info.ParentProcessID] = *nextID
		*nextID++
	}
	pidGraph[info.ProcessID] = *nextID
	*nextID++

	parentID := pidGraph[info.ParentProcessID]

	processedCmdLine := respfile.Expand(info.CommandLine, d.ReadRespFile)
	args, err := winproc.SplitCommandLine(processedCmdLine)
	if err != nil {
		return fmt.Errorf("splitting command line: %w", err)
	}
	if len(args) > 1 {
		args = args[1:]
	} else {
		args = nil
	}

	line := reclog.BuildExecLine(info.CurrentDirectory, parentID, info.ExecutablePath, args)
	return sink.SendWithFallback(d.Sink, d.FallbackPath, line)
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func lePointer(b []byte, offset int) uintptr {
	ptrSize := int(unsafe.Sizeof(uintptr(0)))
	if ptrSize == 8 {
		var v uint64
		for i := 0; i < 8; i++ {
			v |= uint64(b[offset+i]) << (8 * i)
		}
		return uintptr(v)
	}
	return uintptr(le32(b[offset : offset+4]))
}
