// Package identity implements the command-identity protocol: a
// persistent decimal counter file is the single
// source of truth for command ids, and PARENT_ID is rotated through
// the process environment so that a soon-to-be-exec'd image sees its
// own freshly allocated id before it resumes.
//
// Grounded on clade/intercept/unix/env.c's get_cmd_id/get_cmd_id_and_update.
// The Windows driver does not use this package; it numbers processes
// with its own pid map in internal/debugdriver.
package identity

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/renameio"

	"github.com/clade-build/clade/internal/envvars"
	"github.com/clade-build/clade/internal/fslock"
)

// Counter is the persistent identity-counter file named by ID_FILE.
// Every method that touches the file must be called while the
// caller holds the fslock.Lock over the same path — Counter itself
// does not lock — the lock must be acquired before every record
// emission, covering both the identity update and the write/send.
type Counter struct {
	path string
}

// Open returns a Counter bound to ID_FILE. It does not read or create
// the file; Seed does that for a fresh build.
func Open(path string) *Counter {
	return &Counter{path: path}
}

// OpenFromEnv reads ID_FILE out of the process environment, failing
// the way the design requires ("configuration missing" is fatal to
// the observed process).
func OpenFromEnv() (*Counter, error) {
	path, ok := os.LookupEnv(envvars.IDFile)
	if !ok {
		return nil, fmt.Errorf("identity: %s is not set", envvars.IDFile)
	}
	return Open(path), nil
}

// Seed creates the counter file with the initial value 0, the way a
// driver seeds it before spawning the root process. It uses an atomic rename-into-place swap
// since this runs once, off the per-exec hot path, and a crash
// mid-write here must not leave a half-written counter file for the
// very first command to read.
func (c *Counter) Seed() error {
	return renameio.WriteFile(c.path, []byte("0"), 0o644)
}

// Current reads the counter without incrementing it. Used for open
// records, which are tagged with the current command's id rather
// than a freshly allocated one.
func (c *Counter) Current() (int, error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return 0, fmt.Errorf("identity: reading %s: %w", c.path, err)
	}
	id, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("identity: %s does not contain a decimal integer: %w", c.path, err)
	}
	return id, nil
}

// Allocate reads the counter, increments it, writes it back, and
// returns the new value. The write is an ordinary in-place rewrite
// (not a rename swap): this runs once per intercepted exec, inside
// the held fslock, and the lock plus the at-most-once guard upstream
// already give it the ordering guarantee needed here; a rename per
// exec would only add syscalls to the hot path for no correctness
// gain.
func (c *Counter) Allocate() (int, error) {
	id, err := c.Current()
	if err != nil {
		return 0, err
	}
	id++
	if err := os.WriteFile(c.path, []byte(strconv.Itoa(id)), 0o644); err != nil {
		return 0, fmt.Errorf("identity: writing %s: %w", c.path, err)
	}
	return id, nil
}

// RotateParent is the composite identity-rotation operation, invoked
// exactly once per intercepted exec while the fslock is held. It
// returns the inherited parent id (the value the record should carry)
// and the newly allocated own id (the value left in PARENT_ID for any
// children of the process about to be exec'd).
func (c *Counter) RotateParent() (inherited, own int, err error) {
	inheritedStr, ok := os.LookupEnv(envvars.ParentID)
	if !ok {
		return 0, 0, fmt.Errorf("identity: %s is not set", envvars.ParentID)
	}
	inherited, err = strconv.Atoi(strings.TrimSpace(inheritedStr))
	if err != nil {
		return 0, 0, fmt.Errorf("identity: %s is not a decimal integer: %w", envvars.ParentID, err)
	}

	own, err = c.Allocate()
	if err != nil {
		return 0, 0, err
	}

	if err := os.Setenv(envvars.ParentID, strconv.Itoa(own)); err != nil {
		return 0, 0, fmt.Errorf("identity: setting %s: %w", envvars.ParentID, err)
	}
	return inherited, own, nil
}

// WithLockedRotate acquires the fslock over lockPath, rotates the
// parent id, and releases the lock — the Allocate-scoped half of
// the same "acquire the lock, then rotate the parent id" sequence.
// It does not build or emit a record; internal/engine takes the lock
// itself and calls RotateParent directly so that record assembly and
// emission happen under the same held lock. Within this module only
// tests call this helper.
func WithLockedRotate(lockPath string, c *Counter) (inherited, own int, err error) {
	err = fslock.With(lockPath, func() error {
		var innerErr error
		inherited, own, innerErr = c.RotateParent()
		return innerErr
	})
	return
}
