//go:build !windows

package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveTargetRenamedNeighbor(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "gcc.clade")
	if err := os.WriteFile(real, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	wrapper := filepath.Join(dir, "gcc")
	got, err := resolveTarget(wrapper)
	if err != nil {
		t.Fatalf("resolveTarget: %v", err)
	}
	if got != real {
		t.Errorf("got %q, want %q", got, real)
	}
}

func TestResolveTargetFallsBackToPathSearch(t *testing.T) {
	wrapperDir := t.TempDir()
	realDir := t.TempDir()

	real := filepath.Join(realDir, "gcc")
	if err := os.WriteFile(real, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("PATH", wrapperDir+string(os.PathListSeparator)+realDir)

	got, err := resolveTarget(filepath.Join(wrapperDir, "gcc"))
	if err != nil {
		t.Fatalf("resolveTarget: %v", err)
	}
	if got != real {
		t.Errorf("got %q, want %q", got, real)
	}
}

func TestResolveTargetNotFound(t *testing.T) {
	wrapperDir := t.TempDir()
	t.Setenv("PATH", wrapperDir)

	if _, err := resolveTarget(filepath.Join(wrapperDir, "nonexistent-tool")); err == nil {
		t.Fatal("expected error when target cannot be resolved")
	}
}
