package split

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"testing"

	"github.com/kilnbuild/kiln/pkgs/recipe"
)

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func listFiles(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(files)
	return files
}

func outputs(t *testing.T, names ...string) map[string]string {
	t.Helper()
	outs := make(map[string]string, len(names))
	for _, n := range names {
		outs[n] = filepath.Join(t.TempDir(), n)
		if err := os.MkdirAll(outs[n], 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return outs
}

func TestSplitSingleOutputIsIdentity(t *testing.T) {
	stage := t.TempDir()
	write(t, stage, "bin/run", "#!/bin/sh")
	write(t, stage, "share/doc/readme", "hi")

	outs := outputs(t, "out")
	placed, err := Split(stage, outs, nil)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	want := []string{"bin/run", "share/doc/readme"}
	if !slices.Equal(placed["out"], want) {
		t.Fatalf("placed = %v, want %v", placed["out"], want)
	}
	if got := listFiles(t, outs["out"]); !slices.Equal(got, want) {
		t.Fatalf("out tree = %v, want %v", got, want)
	}
}

func TestSplitIsPartition(t *testing.T) {
	stage := t.TempDir()
	staged := []string{"bin/run", "lib/libhello.so", "lib/pkgconfig/hello.pc", "share/man/hello.1"}
	for _, rel := range staged {
		write(t, stage, rel, rel)
	}

	outs := outputs(t, "out", "lib")
	rules := []recipe.SplitRule{{Output: "lib", Patterns: []string{"lib/**"}}}
	placed, err := Split(stage, outs, rules)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	gotOut := listFiles(t, outs["out"])
	gotLib := listFiles(t, outs["lib"])

	// Every staged file lands in exactly one output.
	union := append(slices.Clone(gotOut), gotLib...)
	sort.Strings(union)
	wantAll := slices.Clone(staged)
	sort.Strings(wantAll)
	if !slices.Equal(union, wantAll) {
		t.Fatalf("union = %v, want %v", union, wantAll)
	}
	if !slices.Equal(gotLib, []string{"lib/libhello.so", "lib/pkgconfig/hello.pc"}) {
		t.Fatalf("lib = %v", gotLib)
	}
	// Nothing may remain staged.
	if rest := listFiles(t, stage); len(rest) != 0 {
		t.Fatalf("stage not emptied: %v", rest)
	}
	_ = placed
}

func TestSplitFirstMatchWins(t *testing.T) {
	stage := t.TempDir()
	write(t, stage, "lib/libhello.a", "")

	outs := outputs(t, "out", "lib", "dev")
	rules := []recipe.SplitRule{
		{Output: "dev", Patterns: []string{"lib/*.a"}},
		{Output: "lib", Patterns: []string{"lib/**"}},
	}
	_, err := Split(stage, outs, rules)
	if err != nil {
		t.Fatal(err)
	}
	if got := listFiles(t, outs["dev"]); !slices.Equal(got, []string{"lib/libhello.a"}) {
		t.Fatalf("dev = %v", got)
	}
	if got := listFiles(t, outs["lib"]); len(got) != 0 {
		t.Fatalf("lib = %v, want empty", got)
	}
}

func TestSplitRequiresDefaultOutput(t *testing.T) {
	if _, err := Split(t.TempDir(), map[string]string{"lib": t.TempDir()}, nil); err == nil {
		t.Fatal("Split accepted outputs without \"out\"")
	}
}

func TestApplyFixupsRename(t *testing.T) {
	outs := outputs(t, "out")
	write(t, outs["out"], "lib/sbcl/image-auto.core", "core")

	err := ApplyFixups(outs, []recipe.Fixup{
		{Output: "out", From: "lib/sbcl/image-auto.core", To: "lib/sbcl/expected.core"},
	})
	if err != nil {
		t.Fatalf("ApplyFixups: %v", err)
	}
	got := listFiles(t, outs["out"])
	if !slices.Equal(got, []string{"lib/sbcl/expected.core"}) {
		t.Fatalf("tree = %v", got)
	}
}

func TestApplyFixupsKeepDuplicates(t *testing.T) {
	outs := outputs(t, "out")
	write(t, outs["out"], "bin/tool-1.0", "x")

	err := ApplyFixups(outs, []recipe.Fixup{
		{Output: "out", From: "bin/tool-1.0", To: "bin/tool", Keep: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	got := listFiles(t, outs["out"])
	if !slices.Equal(got, []string{"bin/tool", "bin/tool-1.0"}) {
		t.Fatalf("tree = %v", got)
	}
}

func TestApplyFixupsMissingSourceFatal(t *testing.T) {
	outs := outputs(t, "out")
	err := ApplyFixups(outs, []recipe.Fixup{{Output: "out", From: "nope", To: "yep"}})
	var fe *FixupError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FixupError", err)
	}
}

func TestApplyFixupsOverwritesExistingDestination(t *testing.T) {
	outs := outputs(t, "out")
	write(t, outs["out"], "a", "new")
	write(t, outs["out"], "b", "old")

	err := ApplyFixups(outs, []recipe.Fixup{{Output: "out", From: "a", To: "b"}})
	if err != nil {
		t.Fatalf("ApplyFixups: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(outs["out"], "b"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "new" {
		t.Fatalf("b = %q, want overwritten content", data)
	}
}
