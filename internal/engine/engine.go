// Package engine wires identity, reclog, sink, fslock, and envstore
// together into the two composite operations every interception point
// performs: "observe an exec" and "observe an open". It is the Go
// analogue of clade/intercept/unix/data.c's prepare_and_send and
// env.c's rotate_parent call sites, which the C hooks inline
// one-by-one; here the sequence is a single reusable type so
// cmd/clade-preload and cmd/clade-wrapper drive the same critical
// section. The Windows driver (internal/debugdriver) does not use it.
package engine

import (
	"fmt"
	"os"

	"github.com/clade-build/clade/internal/envstore"
	"github.com/clade-build/clade/internal/envvars"
	"github.com/clade-build/clade/internal/fslock"
	"github.com/clade-build/clade/internal/identity"
	"github.com/clade-build/clade/internal/reclog"
	"github.com/clade-build/clade/internal/sink"
)

// Engine holds the configuration read once from the process
// environment at hook-load or wrapper-startup time, read once and
// cached since these variables do not change
// for the life of the process).
type Engine struct {
	IDFilePath string
	LockPath   string

	Counter *identity.Counter

	ExecSink         sink.Config
	ExecFallbackPath string
	OpenSink         sink.Config
	OpenFallbackPath string

	EnvVarsAllowList string
}

// FromEnv builds an Engine from the recognized environment variables.
// ID_FILE must be set; every other variable is optional, subject to
// the sink's own precedence rules, validated lazily by Send.
func FromEnv() (*Engine, error) {
	idPath, ok := os.LookupEnv(envvars.IDFile)
	if !ok {
		return nil, fmt.Errorf("engine: %s is not set", envvars.IDFile)
	}

	return &Engine{
		IDFilePath:       idPath,
		LockPath:         idPath,
		Counter:          identity.Open(idPath),
		ExecSink:         sink.ConfigFromEnv(envvars.InterceptExec),
		ExecFallbackPath: os.Getenv(envvars.InterceptExecFallback),
		OpenSink:         sink.ConfigFromEnv(envvars.InterceptOpen),
		OpenFallbackPath: os.Getenv(envvars.InterceptOpenFallback),
		EnvVarsAllowList: os.Getenv(envvars.EnvVars),
	}, nil
}

// ExecObservation is the outcome of ObserveExec: the envp the caller
// should actually pass to the wrapped exec call, already carrying the
// rotated PARENT_ID.
type ExecObservation struct {
	Envp []string
}

// ObserveExec performs the full exec-hook sequence: lock,
// recover/propagate recognized (and allow-listed) environment
// variables, rotate PARENT_ID, build the exec record, emit it, unlock.
// It returns the envp the caller must pass to the real exec so the
// child observes its own freshly rotated PARENT_ID.
func (e *Engine) ObserveExec(cwd, exe string, args []string, envp []string) (ExecObservation, error) {
	merged := envstore.Copy(envp, e.EnvVarsAllowList)

	var inherited int
	err := fslock.With(e.LockPath, func() error {
		var rotateErr error
		inherited, _, rotateErr = e.Counter.RotateParent()
		if rotateErr != nil {
			return rotateErr
		}
		line := reclog.BuildExecLine(cwd, inherited, exe, args)
		return sink.SendWithFallback(e.ExecSink, e.ExecFallbackPath, line)
	})
	if err != nil {
		return ExecObservation{}, err
	}

	merged = envstore.PropagateParentID(merged)
	return ExecObservation{Envp: merged}, nil
}

// ObserveOpen performs the open-hook sequence: read (not
// rotate) the current command id, build the open record, emit it. The
// read and the emit still run under the same lock as ObserveExec, so
// an open can never read a command id that an in-flight exec rotation
// is about to change out from under it.
func (e *Engine) ObserveOpen(path string, flags int, exists bool) error {
	return fslock.With(e.LockPath, func() error {
		cmdID, err := e.Counter.Current()
		if err != nil {
			return err
		}
		line := reclog.BuildOpenLine(cmdID, exists, flags, path)
		return sink.SendWithFallback(e.OpenSink, e.OpenFallbackPath, line)
	})
}
