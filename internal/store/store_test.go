package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kilnbuild/kiln/internal/env"
)

func open(t *testing.T) *Store {
	t.Helper()
	t.Setenv(env.WorkEnv, t.TempDir())
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPackageDirLayout(t *testing.T) {
	s := open(t)
	dir, err := s.PackageDir("hello", "2.12.1")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(dir) != "hello@2.12.1" {
		t.Fatalf("PackageDir = %q", dir)
	}
	out, err := s.OutputDir("hello", "2.12.1", "lib")
	if err != nil {
		t.Fatal(err)
	}
	if out != filepath.Join(dir, "lib") {
		t.Fatalf("OutputDir = %q", out)
	}
}

func TestPackageDirEscapesCase(t *testing.T) {
	s := open(t)
	dir, err := s.PackageDir("Hello", "1.0")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(filepath.Base(dir), "!hello") {
		t.Fatalf("PackageDir = %q, want case-escaped name", dir)
	}
}

func TestEntryRoundTrip(t *testing.T) {
	s := open(t)
	if _, ok := s.Entry("hello", "1.0"); ok {
		t.Fatal("Entry reported a build that never happened")
	}
	e := &Entry{Name: "hello", Version: "1.0", Outputs: []string{"out", "lib"}, BuildTime: time.Now()}
	if err := s.SaveEntry(e); err != nil {
		t.Fatal(err)
	}
	got, ok := s.Entry("hello", "1.0")
	if !ok {
		t.Fatal("Entry not found after SaveEntry")
	}
	if got.Outputs[1] != "lib" {
		t.Fatalf("Outputs = %v", got.Outputs)
	}
}

func TestNewWorkDirIsFresh(t *testing.T) {
	s := open(t)
	a, err := s.NewWorkDir("hello")
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.NewWorkDir("hello")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("NewWorkDir reused a working tree")
	}
	if !strings.HasPrefix(a, env.WorkRoot()) {
		t.Fatalf("working tree %q outside work root %q", a, env.WorkRoot())
	}
	if strings.HasPrefix(a, s.Dir()) {
		t.Fatalf("working tree %q inside the store", a)
	}
}

func TestRemovePackage(t *testing.T) {
	s := open(t)
	if err := s.SaveEntry(&Entry{Name: "hello", Version: "1.0"}); err != nil {
		t.Fatal(err)
	}
	if err := s.RemovePackage("hello", "1.0"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Entry("hello", "1.0"); ok {
		t.Fatal("Entry survived RemovePackage")
	}
}

func TestPackagesListsOnlyCompleted(t *testing.T) {
	s := open(t)
	if err := s.SaveEntry(&Entry{Name: "hello", Version: "1.0"}); err != nil {
		t.Fatal(err)
	}
	// A package dir without metadata is an aborted build, not a package.
	partial, err := s.PackageDir("broken", "0.1")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(partial, 0o755); err != nil {
		t.Fatal(err)
	}

	pkgs, err := s.Packages()
	if err != nil {
		t.Fatal(err)
	}
	if len(pkgs) != 1 || pkgs[0] != "hello@1.0" {
		t.Fatalf("Packages = %v", pkgs)
	}
}

func TestPackagesUnescapesNames(t *testing.T) {
	s := open(t)
	if err := s.SaveEntry(&Entry{Name: "Hello", Version: "1.0"}); err != nil {
		t.Fatal(err)
	}
	pkgs, err := s.Packages()
	if err != nil {
		t.Fatal(err)
	}
	if len(pkgs) != 1 || pkgs[0] != "Hello@1.0" {
		t.Fatalf("Packages = %v, want the original casing back", pkgs)
	}
}

func TestClean(t *testing.T) {
	s := open(t)
	if err := s.SaveEntry(&Entry{Name: "hello", Version: "1.0"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clean(); err != nil {
		t.Fatal(err)
	}
	pkgs, err := s.Packages()
	if err != nil {
		t.Fatal(err)
	}
	if len(pkgs) != 0 {
		t.Fatalf("Packages after Clean = %v", pkgs)
	}
	if _, err := os.Stat(env.WorkRoot()); !os.IsNotExist(err) {
		t.Fatalf("work root survived Clean: %v", err)
	}
	if _, err := s.NewWorkDir("x"); err != nil {
		t.Fatalf("NewWorkDir after Clean: %v", err)
	}
}
