// Package assemble composes a final distributable tree from one or more
// already-built outputs.
package assemble

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Source is one output tree to copy into the assembly, labeled for error
// reporting.
type Source struct {
	Label string // e.g. "sbcl:lib"
	Dir   string
}

// PruneError reports a prune path that was not present in the assembled
// tree. It is fatal rather than a no-op so stale prune lists surface
// immediately.
type PruneError struct {
	Path string
}

func (e *PruneError) Error() string {
	return fmt.Sprintf("assemble: prune target missing: %s", e.Path)
}

// Assemble copies each source tree into dst in order, later sources
// overwriting earlier ones on path collision (last wins), then removes
// every prune path. Sources are only ever read, never mutated. Assembling
// the same sources twice yields byte-identical trees.
func Assemble(dst string, sources []Source, prune []string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, src := range sources {
		if err := copyTree(dst, src); err != nil {
			return fmt.Errorf("assemble: copy %s: %w", src.Label, err)
		}
	}
	for _, rel := range prune {
		p := filepath.Join(dst, filepath.FromSlash(rel))
		if _, err := os.Lstat(p); err != nil {
			return &PruneError{Path: rel}
		}
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("assemble: prune %s: %w", rel, err)
		}
	}
	return nil
}

func copyTree(dst string, src Source) error {
	return filepath.WalkDir(src.Dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src.Dir, p)
		if err != nil {
			return err
		}
		out := filepath.Join(dst, rel)
		if d.IsDir() {
			// Last wins also when an earlier source left a file where this
			// source has a directory.
			if fi, err := os.Lstat(out); err == nil && !fi.IsDir() {
				if err := os.Remove(out); err != nil {
					return err
				}
			}
			return os.MkdirAll(out, 0o755)
		}
		if d.Type()&fs.ModeSymlink != 0 {
			target, err := os.Readlink(p)
			if err != nil {
				return err
			}
			// Last wins: replace whatever an earlier source put here.
			if err := os.RemoveAll(out); err != nil {
				return err
			}
			return os.Symlink(target, out)
		}
		return copyFile(p, out)
	})
}

func copyFile(src, dst string) error {
	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
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
