package env

import (
	"path/filepath"
	"testing"
)

func TestStoreDirOverride(t *testing.T) {
	t.Setenv(StoreEnv, "/tmp/custom-store")
	if got := StoreDir(); got != "/tmp/custom-store" {
		t.Fatalf("StoreDir = %q", got)
	}
}

func TestStoreDirDefault(t *testing.T) {
	t.Setenv(StoreEnv, "")
	got := StoreDir()
	if filepath.Base(got) != "store" {
		t.Fatalf("StoreDir = %q, want .../store", got)
	}
}

func TestWorkRootOverride(t *testing.T) {
	t.Setenv(WorkEnv, "/tmp/custom-work")
	if got := WorkRoot(); got != "/tmp/custom-work" {
		t.Fatalf("WorkRoot = %q", got)
	}
}

func TestWorkRootDefault(t *testing.T) {
	t.Setenv(WorkEnv, "")
	got := WorkRoot()
	if filepath.Base(got) != "work" {
		t.Fatalf("WorkRoot = %q, want .../work", got)
	}
}
