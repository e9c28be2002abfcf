package recipe

import (
	"slices"
	"testing"
)

func reg(t *testing.T, versions ...string) *Registry {
	t.Helper()
	g := NewRegistry()
	for _, v := range versions {
		g.MustRegister(&Recipe{Name: "hello", Version: v})
	}
	return g
}

func TestRegistryLookup(t *testing.T) {
	g := reg(t, "1.9.0", "1.10.0")

	r, err := g.Lookup("hello", "1.9.0")
	if err != nil || r.Version != "1.9.0" {
		t.Fatalf("Lookup exact = %v, %v", r, err)
	}
	if _, err := g.Lookup("hello", "2.0.0"); err == nil {
		t.Fatal("Lookup accepted unknown version")
	}
	if _, err := g.Lookup("nope", ""); err == nil {
		t.Fatal("Lookup accepted unknown package")
	}
}

func TestRegistryLatestSemver(t *testing.T) {
	g := reg(t, "1.9.0", "1.10.0", "1.2.3")
	r, err := g.Lookup("hello", "latest")
	if err != nil {
		t.Fatal(err)
	}
	if r.Version != "1.10.0" {
		t.Fatalf("latest = %q, want 1.10.0", r.Version)
	}
}

func TestRegistryLatestFreeForm(t *testing.T) {
	// Not all versions parse as semver: falls back to GNU-style ordering.
	g := reg(t, "2.12.1", "2.9", "2.12.1a")
	r, err := g.Lookup("hello", "")
	if err != nil {
		t.Fatal(err)
	}
	if r.Version != "2.12.1a" {
		t.Fatalf("latest = %q, want 2.12.1a", r.Version)
	}
}

func TestRegistryDuplicate(t *testing.T) {
	g := reg(t, "1.0.0")
	if err := g.Register(&Recipe{Name: "hello", Version: "1.0.0"}); err == nil {
		t.Fatal("Register accepted a duplicate")
	}
}

func TestRegistryVersionsSorted(t *testing.T) {
	g := reg(t, "1.10.0", "1.2.0", "1.9.0")
	want := []string{"1.2.0", "1.9.0", "1.10.0"}
	if got := g.Versions("hello"); !slices.Equal(got, want) {
		t.Fatalf("Versions = %v, want %v", got, want)
	}
}
