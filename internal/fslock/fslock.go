// Package fslock provides the cross-process mutual-exclusion
// primitive clade serializes every record emission through: an
// advisory exclusive lock on the identity-counter file. It replaces
// the raw flock(2)/LockFileEx calls of clade/intercept/unix/lock.c
// with github.com/gofrs/flock, a cross-platform wrapper present in
// the teacher's go.mod require block but not actually imported by any
// gravwell package — this is new use of an already-required
// dependency for the locking concern this spec needs and gravwell's
// own source happens not to exercise.
package fslock

import (
	"github.com/gofrs/flock"
)

// Lock holds an OS-advisory exclusive lock on a single path, taken
// and released around the identity+emit critical section described
// around that critical section.
type Lock struct {
	fl *flock.Flock
}

// New returns a Lock over path. The lock is not acquired yet.
func New(path string) *Lock {
	return &Lock{fl: flock.New(path)}
}

// Acquire blocks until the exclusive lock is held.
//
// The original first-generation interceptor releases its lock after
// fclose-ing the file descriptor it locked (flagged as a bug in
// a known bug class); gofrs/flock keeps the lock's file handle
// private to the Lock value and only closes it on Unlock, so that
// ordering mistake cannot be reproduced here.
func (l *Lock) Acquire() error {
	return l.fl.Lock()
}

// Release drops the exclusive lock.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}

// With runs fn while holding the lock, releasing it unconditionally
// afterward regardless of whether fn returns an error.
func With(path string, fn func() error) error {
	l := New(path)
	if err := l.Acquire(); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}
