// Package envvars names the environment variables clade recognizes.
//
// Grounded on clade/intercept/unix/env.h (the CLADE_* #define list) and
// the naming style of gravwell's config env overrides
// (ingest/config/env.go: envSecret, envLogLevel, ...).
package envvars

const (
	InterceptExec = "INTERCEPT_EXEC"
	InterceptOpen = "INTERCEPT_OPEN"
	IDFile        = "ID_FILE"
	ParentID      = "PARENT_ID"
	UnixAddress   = "UNIX_ADDRESS"
	InetHost      = "INET_HOST"
	InetPort      = "INET_PORT"
	Preprocess    = "PREPROCESS"
	EnvVars       = "ENV_VARS"

	// InterceptExecFallback and InterceptOpenFallback name the
	// secondary sinks used when the primary sink cannot be reached.
	// See SPEC_FULL.md section 9.
	InterceptExecFallback = "INTERCEPT_EXEC_FALLBACK"
	InterceptOpenFallback = "INTERCEPT_OPEN_FALLBACK"

	// LDPreload and friends are not clade's own variables, but they
	// must survive a child's sanitized exec the same way the
	// recognized set does, or the chain of interception breaks at the
	// first process that scrubs its environment.
	LDPreload              = "LD_PRELOAD"
	LDLibraryPath          = "LD_LIBRARY_PATH"
	DYLDInsertLibraries    = "DYLD_INSERT_LIBRARIES"
	DYLDForceFlatNamespace = "DYLD_FORCE_FLAT_NAMESPACE"
)

// Recognized lists every variable the core reads or writes, in the
// order a process environment should be searched when recovering
// variables a caller stripped. Mirrors clade_envs in
// clade/intercept/unix/env.c.
var Recognized = []string{
	InterceptExec,
	InterceptOpen,
	IDFile,
	ParentID,
	UnixAddress,
	InetHost,
	InetPort,
	Preprocess,
	EnvVars,
	InterceptExecFallback,
	InterceptOpenFallback,
	LDPreload,
	LDLibraryPath,
	DYLDInsertLibraries,
	DYLDForceFlatNamespace,
}
