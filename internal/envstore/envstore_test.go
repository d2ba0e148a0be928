package envstore

import (
	"os"
	"reflect"
	"testing"

	"github.com/clade-build/clade/internal/envvars"
)

func TestGetSet(t *testing.T) {
	envp := []string{"PATH=/bin", "PARENT_ID=3"}

	v, ok := Get(envp, "PARENT_ID")
	if !ok || v != "3" {
		t.Fatalf("Get PARENT_ID = %q, %v", v, ok)
	}

	if _, ok := Get(envp, "MISSING"); ok {
		t.Fatalf("Get MISSING should report absent")
	}

	updated := Set(envp, "PARENT_ID", "7")
	if v, _ := Get(updated, "PARENT_ID"); v != "7" {
		t.Errorf("Set in place failed, got %q", v)
	}
	if v, _ := Get(envp, "PARENT_ID"); v != "3" {
		t.Errorf("Set mutated the original slice: %q", v)
	}

	grown := Set(envp, "NEW_VAR", "x")
	if v, ok := Get(grown, "NEW_VAR"); !ok || v != "x" {
		t.Errorf("Set append failed: %q, %v", v, ok)
	}
	if len(grown) != len(envp)+1 {
		t.Errorf("Set append changed length unexpectedly: %d", len(grown))
	}
}

func TestGetDoesNotMatchPrefixWithoutEquals(t *testing.T) {
	envp := []string{"PARENT_IDENTITY=nope"}
	if _, ok := Get(envp, "PARENT_ID"); ok {
		t.Errorf("Get matched a key that is only a prefix, not an exact key")
	}
}

func TestCopyRecoversStrippedRecognizedVars(t *testing.T) {
	Snapshot([]string{envvars.IDFile + "=/tmp/clade.id", envvars.ParentID + "=2"})
	defer Snapshot(nil)

	stripped := []string{"PATH=/bin"}
	out := Copy(stripped, "")

	if v, ok := Get(out, envvars.IDFile); !ok || v != "/tmp/clade.id" {
		t.Errorf("ID_FILE not recovered: %q, %v", v, ok)
	}
	if v, ok := Get(out, envvars.ParentID); !ok || v != "2" {
		t.Errorf("PARENT_ID not recovered: %q, %v", v, ok)
	}
	if v, _ := Get(out, "PATH"); v != "/bin" {
		t.Errorf("existing entries must survive Copy unchanged: %q", v)
	}
}

func TestCopyRecoversFromSnapshotNotLiveEnv(t *testing.T) {
	Snapshot([]string{envvars.ParentID + "=7"})
	defer Snapshot(nil)

	// The live process environment has since lost the variable — Copy
	// must still recover it from the snapshot taken at load time.
	os.Unsetenv(envvars.ParentID)

	out := Copy(nil, "")
	if v, ok := Get(out, envvars.ParentID); !ok || v != "7" {
		t.Errorf("PARENT_ID not recovered from snapshot: %q, %v", v, ok)
	}
}

func TestCopyPrefersExistingOverRecovered(t *testing.T) {
	Snapshot([]string{envvars.ParentID + "=99"})
	defer Snapshot(nil)

	envp := []string{envvars.ParentID + "=5"}
	out := Copy(envp, "")

	if v, _ := Get(out, envvars.ParentID); v != "5" {
		t.Errorf("Copy overwrote an already-present recognized var: %q", v)
	}
}

func TestCopyHonorsAllowListGlob(t *testing.T) {
	Snapshot([]string{"MYTOOL_FOO=bar"})
	defer Snapshot(nil)

	out := Copy(nil, "MYTOOL_*")
	if v, ok := Get(out, "MYTOOL_FOO"); !ok || v != "bar" {
		t.Errorf("allow-listed var not propagated: %q, %v", v, ok)
	}
}

func TestCopyAllowListDoesNotLeakUnmatched(t *testing.T) {
	Snapshot([]string{"OTHER_VAR=leak"})
	defer Snapshot(nil)

	out := Copy(nil, "MYTOOL_*")
	if _, ok := Get(out, "OTHER_VAR"); ok {
		t.Errorf("non-matching var should not have been propagated")
	}
}

func TestPropagateParentIDUsesCurrentProcessValue(t *testing.T) {
	t.Setenv(envvars.ParentID, "42")

	envp := []string{envvars.ParentID + "=1"}
	out := PropagateParentID(envp)

	if v, _ := Get(out, envvars.ParentID); v != "42" {
		t.Errorf("got %q, want 42", v)
	}
}

func TestUnset(t *testing.T) {
	envp := []string{"A=1", "B=2"}
	out := Unset(envp, "A")
	if !reflect.DeepEqual(out, []string{"B=2"}) {
		t.Errorf("got %v", out)
	}
}
