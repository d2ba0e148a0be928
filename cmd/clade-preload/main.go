// Command clade-preload builds into the shared library loaded via
// LD_PRELOAD (or DYLD_INSERT_LIBRARIES on macOS) that performs the
// POSIX side of the interception table: execve, execvp,
// execv, posix_spawn, open and open64.
//
// It is built with `go build -buildmode=c-shared`, which requires
// package main and a Go-exported C ABI; the functions LD_PRELOAD
// actually interposes (execve and friends) are implemented in the
// companion shim.c, in C, because dlsym(RTLD_NEXT, ...) resolution
// and the matching libc call signatures are not expressible from Go.
// shim.c delegates every decision — whether to intercept, how to
// rebuild envp, what record to emit — back into this file's exported
// functions, which is where internal/engine, internal/envstore and
// internal/reclog actually run.
//
// Grounded on clade/intercept/unix/interceptor.c for the call
// sequence each hook follows; see DESIGN.md for the rationale behind
// this package's use of cgo's c-shared build mode.
package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"os"
	"unsafe"

	"github.com/clade-build/clade/internal/diag"
	"github.com/clade-build/clade/internal/engine"
	"github.com/clade-build/clade/internal/envstore"
	"github.com/clade-build/clade/internal/envvars"
)

// sharedEngine is built once, at library-load time, the same moment
// clade_environ is captured in interceptor.c's on_load. "Configuration
// missing" (ID_FILE unset) is a fatal condition: a build proceeding
// unobserved because the observer silently gave up is worse than a
// build that fails loudly, so init terminates the whole process
// rather than letting the hooks fall through undecorated.
var sharedEngine *engine.Engine

func init() {
	envstore.Snapshot(os.Environ())

	e, err := engine.FromEnv()
	if err != nil {
		diag.Default.Fatalf("clade-preload: %v", err)
	}
	sharedEngine = e
}

func main() {} // required by -buildmode=c-shared, never runs

// cStringArray converts a NULL-terminated char** into a Go []string,
// without taking ownership of the underlying C memory.
func cStringArray(arr **C.char) []string {
	if arr == nil {
		return nil
	}
	var out []string
	ptrSize := unsafe.Sizeof(arr)
	for p := unsafe.Pointer(arr); *(**C.char)(p) != nil; p = unsafe.Add(p, ptrSize) {
		out = append(out, C.GoString(*(**C.char)(p)))
	}
	return out
}

// newCStringArray allocates a NULL-terminated char** from ss using
// the C heap, for handing to the real exec call. The observed process
// either execs (replacing its address space, so the allocation is
// reclaimed by the kernel) or shim.c frees it explicitly after the
// real call returns — see freeCStringArray in shim.c. Not itself
// exported: only cladeObserveExec, which is exported, calls it.
func newCStringArray(ss []string) **C.char {
	ptrSize := unsafe.Sizeof((*C.char)(nil))
	base := C.malloc(C.size_t(len(ss)+1) * C.size_t(ptrSize))
	for i, s := range ss {
		slot := unsafe.Add(base, uintptr(i)*ptrSize)
		*(**C.char)(slot) = C.CString(s)
	}
	*(**C.char)(unsafe.Add(base, uintptr(len(ss))*ptrSize)) = nil
	return (**C.char)(base)
}

// cladeOnLoad runs once when the library is dlopen'd. The reference
// environment is actually captured earlier, in init() (guaranteed to
// run before any cgo-exported function, including this one, can be
// called), so by the time shim.c's constructor calls this there is
// nothing left to do beyond confirming the Go runtime has finished
// initializing before any hook fires.
//
//export cladeOnLoad
func cladeOnLoad() {}

// cladeShouldHandleExec reports whether INTERCEPT_EXEC is set in the
// current process environment, the guard every exec hook in
// interceptor.c checks before doing any work.
//
//export cladeShouldHandleExec
func cladeShouldHandleExec() C.int {
	if _, ok := os.LookupEnv(envvars.InterceptExec); ok {
		return 1
	}
	return 0
}

// cladeShouldHandleOpen reports whether INTERCEPT_OPEN is set.
//
//export cladeShouldHandleOpen
func cladeShouldHandleOpen() C.int {
	if _, ok := os.LookupEnv(envvars.InterceptOpen); ok {
		return 1
	}
	return 0
}

// cladeObserveExec implements the exec-hook sequence for
// one intercepted call. path/argv/envp are the arguments the real
// libc call was about to receive; it returns a newly allocated envp
// (via newCStringArray) that the caller must pass to the real exec
// instead, with recognized variables recovered and PARENT_ID rotated.
// "I/O failure" on any step here is fatal, per the error handling
// design: an unobserved exec must not be allowed to proceed silently.
//
//export cladeObserveExec
func cladeObserveExec(cPath *C.char, cArgv **C.char, cEnvp **C.char) **C.char {
	path := C.GoString(cPath)
	argv := cStringArray(cArgv)
	envp := cStringArray(cEnvp)

	var args []string
	if len(argv) > 1 {
		args = argv[1:]
	}

	cwd, err := os.Getwd()
	if err != nil {
		diag.Default.Fatalf("clade-preload: getwd: %v", err)
	}

	obs, err := sharedEngine.ObserveExec(cwd, path, args, envp)
	if err != nil {
		diag.Default.Fatalf("clade-preload: observe exec: %v", err)
	}
	return newCStringArray(obs.Envp)
}

// cladeObserveOpen implements the open-hook sequence.
// flags is the raw integer flags argument to open(2); exists is
// determined by the caller with access(F_OK) before calling the real
// open, matching the "exists" field's definition in the record format.
// A failure here is fatal, the same as cladeObserveExec.
//
//export cladeObserveOpen
func cladeObserveOpen(cPath *C.char, flags C.int, exists C.int) {
	path := C.GoString(cPath)
	if err := sharedEngine.ObserveOpen(path, int(flags), exists != 0); err != nil {
		diag.Default.Fatalf("clade-preload: observe open: %v", err)
	}
}
