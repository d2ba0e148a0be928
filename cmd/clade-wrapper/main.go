//go:build !windows

// Command clade-wrapper stands in for a real toolchain executable
// that a build system invokes by name only (no shadow LD_PRELOAD
// interception point), either because it was swapped in under the
// original binary's name (which was renamed aside with a ".clade"
// suffix) or because a directory of wrapper symlinks sits ahead of
// the original toolchain directory on PATH.
//
// Not part of the core interception mechanism — wrapping is only
// needed for tools that spawn the compiler in ways execve/posix_spawn
// interposition cannot see — but it drives the same record emission
// through internal/engine as every other interception point.
//
// Grounded on clade/intercept/unix/wrapper.c.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/clade-build/clade/internal/diag"
	"github.com/clade-build/clade/internal/engine"
	"github.com/clade-build/clade/internal/envstore"
	"github.com/clade-build/clade/internal/envvars"
	"github.com/clade-build/clade/internal/pathsearch"
)

const wrapperSuffix = ".clade"

func init() {
	envstore.Snapshot(os.Environ())
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "clade-wrapper: %v\n", err)
		os.Exit(1)
	}
}

// run resolves the real target and, if interception is enabled,
// observes this invocation as an exec before replacing itself with
// the target. A failure anywhere in the observe step is fatal — per
// the error handling design, the build must not silently proceed
// unobserved — so it terminates here rather than falling through to
// syscall.Exec with the record unsent.
func run() error {
	target, err := resolveTarget(os.Args[0])
	if err != nil {
		return err
	}

	envp := os.Environ()
	if _, ok := os.LookupEnv(envvars.InterceptExec); ok {
		e, ferr := engine.FromEnv()
		if ferr != nil {
			diag.Default.Fatalf("clade-wrapper: %v", ferr)
		}
		cwd, err := os.Getwd()
		if err != nil {
			diag.Default.Fatalf("clade-wrapper: getwd: %v", err)
		}
		obs, oerr := e.ObserveExec(cwd, target, os.Args[1:], envp)
		if oerr != nil {
			diag.Default.Fatalf("clade-wrapper: observe exec: %v", oerr)
		}
		envp = obs.Envp
	}

	argv := append([]string{target}, os.Args[1:]...)
	return syscall.Exec(target, argv, envp)
}

// resolveTarget finds the real executable this wrapper stands in for,
// trying the renamed-neighbor case before falling back to a PATH
// search that skips the wrapper's own directory.
func resolveTarget(invokedAs string) (string, error) {
	renamed := invokedAs + wrapperSuffix
	if _, err := os.Stat(renamed); err == nil {
		real, err := filepath.EvalSymlinks(renamed)
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", renamed, err)
		}
		return real, nil
	}

	name := filepath.Base(invokedAs)
	target, err := pathsearch.WhichSkippingFirst(name, os.Getenv("PATH"))
	if err != nil {
		return "", fmt.Errorf("resolving %s in PATH: %w", name, err)
	}
	return target, nil
}
