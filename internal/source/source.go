// Package source captures a package's source snapshot: the subset of a
// working tree that is tracked by version control.
package source

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrUnavailable reports that the tracked-file manifest cannot be obtained.
// There is deliberately no fallback to "include everything": an untracked
// snapshot would not be reproducible.
var ErrUnavailable = errors.New("source: tracked-file manifest unavailable")

// Predicate decides whether a file or symlink belongs to the snapshot.
// rel is slash-separated and relative to the session root.
type Predicate func(rel string, d fs.DirEntry) bool

// Session scopes the tracked-file manifest to a single build session. The
// manifest is computed on first use and reused for the session's lifetime;
// a new session sees a fresh manifest. Safe for concurrent use.
type Session struct {
	root string

	once     sync.Once
	repoRoot string
	manifest map[string]struct{}
	err      error
}

// NewSession creates a session rooted at the given working tree directory.
func NewSession(root string) *Session {
	return &Session{root: root}
}

// Root returns the session's working tree root.
func (s *Session) Root() string { return s.root }

func (s *Session) load() {
	repo, err := git.PlainOpenWithOptions(s.root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		s.err = fmt.Errorf("%w: open %s: %v", ErrUnavailable, s.root, err)
		return
	}
	wt, err := repo.Worktree()
	if err != nil {
		s.err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		return
	}
	s.repoRoot = wt.Filesystem.Root()

	head, err := repo.Head()
	if err != nil {
		s.err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		return
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		s.err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		return
	}
	tree, err := commit.Tree()
	if err != nil {
		s.err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		return
	}

	manifest := make(map[string]struct{})
	err = tree.Files().ForEach(func(f *object.File) error {
		manifest[f.Name] = struct{}{}
		return nil
	})
	if err != nil {
		s.err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		return
	}
	s.manifest = manifest
}

// Manifest returns the set of tracked paths, relative to the repository
// root, computing it on first call.
func (s *Session) Manifest() (map[string]struct{}, error) {
	s.once.Do(s.load)
	return s.manifest, s.err
}

// Tracked is the default predicate: a file or symlink is part of the
// snapshot iff the manifest lists it.
func (s *Session) Tracked() (Predicate, error) {
	manifest, err := s.Manifest()
	if err != nil {
		return nil, err
	}
	// Session root may sit below the repository root; manifest entries are
	// repo-relative, selection paths are root-relative.
	prefix := ""
	if rel, err := filepath.Rel(s.repoRoot, s.root); err == nil && rel != "." {
		prefix = filepath.ToSlash(rel) + "/"
	}
	return func(rel string, d fs.DirEntry) bool {
		_, ok := manifest[prefix+rel]
		return ok
	}, nil
}

// Select walks the session root and returns the sorted relative paths of
// every regular file and symlink the predicate accepts. Directories are
// always recursed into; the version-control directory itself is not.
func (s *Session) Select(pred Predicate) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == git.GitDirName && path != s.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if pred(rel, d) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// Snapshot copies the tracked files of the session root into dst,
// preserving file modes and symlink targets. The captured source is
// immutable from the build's point of view: phases only ever write into
// the copy.
func (s *Session) Snapshot(dst string) error {
	pred, err := s.Tracked()
	if err != nil {
		return err
	}
	paths, err := s.Select(pred)
	if err != nil {
		return fmt.Errorf("source: select: %w", err)
	}
	for _, rel := range paths {
		src := filepath.Join(s.root, filepath.FromSlash(rel))
		out := filepath.Join(dst, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}
		if err := copyEntry(src, out); err != nil {
			return fmt.Errorf("source: snapshot %s: %w", rel, err)
		}
	}
	return nil
}

func copyEntry(src, dst string) error {
	fi, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if fi.Mode()&fs.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		return os.Symlink(target, dst)
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Describe returns a short human form of the manifest for debug logs.
func (s *Session) Describe() string {
	manifest, err := s.Manifest()
	if err != nil {
		return "unavailable"
	}
	return fmt.Sprintf("%d tracked files under %s", len(manifest), strings.TrimSuffix(s.root, "/"))
}
