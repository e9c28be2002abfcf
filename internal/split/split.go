// Package split partitions the files a build generated across the
// package's declared outputs.
package split

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kilnbuild/kiln/pkgs/recipe"
)

// FixupError reports a post-split fix-up whose source file does not exist.
// A missing fix-up source means the consumer's declared artifact contract
// cannot be honored, so it is fatal rather than skipped.
type FixupError struct {
	Fixup recipe.Fixup
	Err   error
}

func (e *FixupError) Error() string {
	return fmt.Sprintf("split: fixup %s -> %s in output %q: %v", e.Fixup.From, e.Fixup.To, e.Fixup.Output, e.Err)
}

func (e *FixupError) Unwrap() error { return e.Err }

// Split moves every file under stage into exactly one of the declared
// output directories. Rules apply in order, first match wins; files no
// rule claims go to recipe.DefaultOutput. The result is a partition: the
// union of all outputs equals the staged file set.
//
// Returned is the per-output list of relative paths that were placed,
// sorted, for logging and tests.
func Split(stage string, outputs map[string]string, rules []recipe.SplitRule) (map[string][]string, error) {
	if _, ok := outputs[recipe.DefaultOutput]; !ok {
		return nil, fmt.Errorf("split: no %q output directory", recipe.DefaultOutput)
	}

	placed := make(map[string][]string, len(outputs))
	err := filepath.WalkDir(stage, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(stage, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		out := route(rel, rules)
		dstRoot, ok := outputs[out]
		if !ok {
			return fmt.Errorf("split: rule routes %s to unknown output %q", rel, out)
		}
		dst := filepath.Join(dstRoot, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := os.Rename(p, dst); err != nil {
			return err
		}
		placed[out] = append(placed[out], rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, files := range placed {
		sort.Strings(files)
	}
	return placed, nil
}

// route returns the output name rel belongs to.
func route(rel string, rules []recipe.SplitRule) string {
	for _, rule := range rules {
		for _, pattern := range rule.Patterns {
			if matchPattern(pattern, rel) {
				return rule.Output
			}
		}
	}
	return recipe.DefaultOutput
}

// matchPattern matches rel against pattern. A trailing "/**" claims the
// whole subtree; otherwise path.Match semantics apply to the full path.
// Matching is deterministic, never fuzzy.
func matchPattern(pattern, rel string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		return rel == prefix || strings.HasPrefix(rel, prefix+"/")
	}
	ok, err := path.Match(pattern, rel)
	return err == nil && ok
}

// ApplyFixups renames or duplicates declared files inside their outputs so
// downstream consumers find artifacts under the exact names they expect.
// A missing source is fatal; an existing destination is overwritten.
func ApplyFixups(outputs map[string]string, fixups []recipe.Fixup) error {
	for _, f := range fixups {
		root, ok := outputs[f.Output]
		if !ok {
			return &FixupError{Fixup: f, Err: fmt.Errorf("unknown output")}
		}
		src := filepath.Join(root, filepath.FromSlash(f.From))
		dst := filepath.Join(root, filepath.FromSlash(f.To))
		if _, err := os.Lstat(src); err != nil {
			return &FixupError{Fixup: f, Err: err}
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return &FixupError{Fixup: f, Err: err}
		}
		if f.Keep {
			if err := copyFile(src, dst); err != nil {
				return &FixupError{Fixup: f, Err: err}
			}
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			return &FixupError{Fixup: f, Err: err}
		}
	}
	return nil
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
