package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/clade-build/clade/internal/envvars"
	"github.com/clade-build/clade/internal/fslock"
)

func newSeededCounter(t *testing.T) *Counter {
	t.Helper()
	path := filepath.Join(t.TempDir(), "id")
	c := Open(path)
	if err := c.Seed(); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	return c
}

func TestSeedStartsAtZero(t *testing.T) {
	c := newSeededCounter(t)
	id, err := c.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if id != 0 {
		t.Errorf("got %d, want 0", id)
	}
}

func TestAllocateIncrementsAndPersists(t *testing.T) {
	c := newSeededCounter(t)

	first, err := c.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if first != 1 {
		t.Errorf("first allocation = %d, want 1", first)
	}

	second, err := c.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if second != 2 {
		t.Errorf("second allocation = %d, want 2", second)
	}

	reopened := Open(c.path)
	current, err := reopened.Current()
	if err != nil {
		t.Fatalf("Current after reopen: %v", err)
	}
	if current != 2 {
		t.Errorf("persisted value = %d, want 2", current)
	}
}

func TestRotateParentUsesInheritedAndAllocatesOwn(t *testing.T) {
	c := newSeededCounter(t)
	t.Setenv(envvars.ParentID, "0")

	inherited, own, err := c.RotateParent()
	if err != nil {
		t.Fatalf("RotateParent: %v", err)
	}
	if inherited != 0 {
		t.Errorf("inherited = %d, want 0", inherited)
	}
	if own != 1 {
		t.Errorf("own = %d, want 1", own)
	}
	if v := os.Getenv(envvars.ParentID); v != "1" {
		t.Errorf("PARENT_ID not rotated in process env: %q", v)
	}
}

func TestRotateParentChain(t *testing.T) {
	c := newSeededCounter(t)
	t.Setenv(envvars.ParentID, "0")

	_, rootID, err := c.RotateParent()
	if err != nil {
		t.Fatalf("RotateParent (root): %v", err)
	}
	if rootID != 1 {
		t.Fatalf("root id = %d, want 1", rootID)
	}

	// The root's child observes PARENT_ID=1 (rootID) via process
	// environ, exactly as propagated by envstore.PropagateParentID.
	childInherited, childID, err := c.RotateParent()
	if err != nil {
		t.Fatalf("RotateParent (child): %v", err)
	}
	if childInherited != rootID {
		t.Errorf("child inherited = %d, want %d", childInherited, rootID)
	}
	if childID <= childInherited {
		t.Errorf("invariant violated: child id %d must exceed parent id %d", childID, childInherited)
	}
}

func TestRotateParentFailsWithoutParentIDSet(t *testing.T) {
	c := newSeededCounter(t)
	os.Unsetenv(envvars.ParentID)

	if _, _, err := c.RotateParent(); err == nil {
		t.Fatal("expected error when PARENT_ID is unset")
	}
}

func TestWithLockedRotateAllocatesAndReleasesLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id")
	c := Open(path)
	if err := c.Seed(); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	lockPath := path

	t.Setenv(envvars.ParentID, "0")

	_, own, err := WithLockedRotate(lockPath, c)
	if err != nil {
		t.Fatalf("WithLockedRotate: %v", err)
	}
	if own != 1 {
		t.Errorf("own = %d, want 1", own)
	}

	// The lock must be released afterward.
	l := fslock.New(lockPath)
	if err := l.Acquire(); err != nil {
		t.Fatalf("lock was not released: %v", err)
	}
	l.Release()
}
