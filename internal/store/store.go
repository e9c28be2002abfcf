// Package store manages the on-disk layout of built package outputs.
//
// Store directory layout:
//
//	storeDir/
//	  .lock                          # session lock
//	  <name>@<version>/              # one built package
//	    .build.json                  # metadata of the completed build
//	    out/                         # one directory per declared output
//	    lib/
//	    ...
//
// Working trees live outside the store, under env.WorkRoot, one fresh
// directory per build attempt.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/mod/module"

	"github.com/kilnbuild/kiln/internal/env"
)

const metaFile = ".build.json"

// Store is a build store opened by exactly one session at a time; Open
// takes an advisory lock released by Close, so concurrent kiln processes
// do not race on one store.
type Store struct {
	dir    string
	unlock func() error
}

// Open creates the store directory if needed and locks it.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	unlock, err := lockFile(filepath.Join(dir, ".lock"))
	if err != nil {
		return nil, fmt.Errorf("store: lock %s: %w", dir, err)
	}
	return &Store{dir: dir, unlock: unlock}, nil
}

// Close releases the session lock.
func (s *Store) Close() error {
	if s.unlock == nil {
		return nil
	}
	unlock := s.unlock
	s.unlock = nil
	return unlock()
}

// Dir returns the store root.
func (s *Store) Dir() string { return s.dir }

// PackageDir returns the directory of one built package:
// storeDir/<name>@<version>, with both components escaped for
// case-insensitive filesystems.
func (s *Store) PackageDir(name, version string) (string, error) {
	en, err := module.EscapeVersion(name)
	if err != nil {
		return "", fmt.Errorf("store: bad package name %q: %w", name, err)
	}
	ev, err := module.EscapeVersion(version)
	if err != nil {
		return "", fmt.Errorf("store: bad version %q: %w", version, err)
	}
	return filepath.Join(s.dir, en+"@"+ev), nil
}

// OutputDir returns the directory of one named output of a built package.
func (s *Store) OutputDir(name, version, output string) (string, error) {
	pkg, err := s.PackageDir(name, version)
	if err != nil {
		return "", err
	}
	return filepath.Join(pkg, output), nil
}

// NewWorkDir creates a fresh working tree directory for one build attempt,
// under env.WorkRoot so partial trees never sit next to finished outputs.
func (s *Store) NewWorkDir(name string) (string, error) {
	root := env.WorkRoot()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	return os.MkdirTemp(root, "build-"+name+"-*")
}

// RemovePackage deletes a package's directory, used to discard the partial
// result of a failed build so it can never be mistaken for a usable output.
func (s *Store) RemovePackage(name, version string) error {
	pkg, err := s.PackageDir(name, version)
	if err != nil {
		return err
	}
	return os.RemoveAll(pkg)
}

// Clean removes every built package from the store, plus any leftover
// working trees under env.WorkRoot.
func (s *Store) Clean() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == ".lock" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			return err
		}
	}
	return os.RemoveAll(env.WorkRoot())
}

// -----------------------------------------------------------------------------

// Entry records one completed build.
type Entry struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Outputs   []string  `json:"outputs"`
	BuildTime time.Time `json:"build_time"`
}

// Entry loads the metadata of a completed build, reporting ok=false when
// the package has not been built.
func (s *Store) Entry(name, version string) (*Entry, bool) {
	pkg, err := s.PackageDir(name, version)
	if err != nil {
		return nil, false
	}
	data, err := os.ReadFile(filepath.Join(pkg, metaFile))
	if err != nil {
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false
	}
	return &e, true
}

// SaveEntry marks a build complete. It is written last: a package directory
// without metadata is treated as not built.
func (s *Store) SaveEntry(e *Entry) error {
	pkg, err := s.PackageDir(e.Name, e.Version)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(pkg, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(pkg, metaFile), data, 0o644)
}

// Packages lists the completed builds as name@version, with the directory
// escaping undone.
func (s *Store) Packages() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var pkgs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.dir, e.Name(), metaFile)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		en, ev, ok := strings.Cut(e.Name(), "@")
		if !ok {
			continue
		}
		name, err := module.UnescapeVersion(en)
		if err != nil {
			continue
		}
		version, err := module.UnescapeVersion(ev)
		if err != nil {
			continue
		}
		pkgs = append(pkgs, name+"@"+version)
	}
	return pkgs, nil
}
