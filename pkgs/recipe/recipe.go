package recipe

import (
	"fmt"
	"maps"
	"slices"

	"github.com/kilnbuild/kiln/pkgs/phase"
)

// DefaultOutput is the output every package declares unless it says otherwise.
const DefaultOutput = "out"

// -----------------------------------------------------------------------------

// OutputRef names one output of one package, e.g. {Package: "sbcl", Output: "lib"}.
type OutputRef struct {
	Package string
	Output  string
}

func (r OutputRef) String() string {
	return r.Package + ":" + r.Output
}

// SplitRule routes generated files whose path matches one of Patterns into
// the named output. Patterns use path.Match syntax per element; a trailing
// "/**" matches the whole subtree. Rules apply in order, first match wins;
// files no rule claims land in DefaultOutput.
type SplitRule struct {
	Output   string
	Patterns []string
}

// Fixup renames (or, with Keep, duplicates) a file inside an output after
// splitting, so a consumer finds the artifact under the exact name it was
// promised. From must exist; To is overwritten if present.
type Fixup struct {
	Output string
	From   string
	To     string
	Keep   bool // copy instead of rename
}

// Assembly declares the final composition of a package: the outputs to copy
// into its "out" output, in order (later sources overwrite earlier ones on
// path collision), and the paths to prune from the result.
type Assembly struct {
	Sources []OutputRef
	Prune   []string
}

// -----------------------------------------------------------------------------

// Recipe describes how one package is built. A recipe is a value: once
// constructed it is never modified, and Derive produces independent copies.
type Recipe struct {
	Name    string
	Version string

	// BuildSystem names the toolchain family the phases drive. It is
	// informational: a derived recipe that changes it must also supply a
	// compatible pipeline.
	BuildSystem string

	// Source is the root of the working tree whose tracked files form the
	// package's source snapshot. Empty for assembly-only recipes.
	Source string

	Phases phase.Pipeline

	// Inputs and NativeInputs map a logical dependency name to another
	// package's output. NativeInputs are build-time only.
	Inputs       map[string]OutputRef
	NativeInputs map[string]OutputRef

	// Outputs lists the named outputs; nil means {DefaultOutput}.
	Outputs []string

	Flags map[string]string

	Split    []SplitRule
	Fixups   []Fixup
	Assembly *Assembly
}

// ID returns "name@version".
func (r *Recipe) ID() string {
	return r.Name + "@" + r.Version
}

// OutputNames returns the declared outputs, defaulting to {DefaultOutput}.
func (r *Recipe) OutputNames() []string {
	if len(r.Outputs) == 0 {
		return []string{DefaultOutput}
	}
	return slices.Clone(r.Outputs)
}

// HasOutput reports whether the recipe declares the named output.
func (r *Recipe) HasOutput(name string) bool {
	return slices.Contains(r.OutputNames(), name)
}

// Validate checks the structural invariants of the recipe.
func (r *Recipe) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("recipe: missing name")
	}
	if r.Version == "" {
		return fmt.Errorf("recipe %s: missing version", r.Name)
	}
	if err := r.Phases.Validate(); err != nil {
		return fmt.Errorf("recipe %s: %w", r.ID(), err)
	}
	outs := r.OutputNames()
	seen := make(map[string]bool, len(outs))
	for _, o := range outs {
		if seen[o] {
			return fmt.Errorf("recipe %s: duplicate output %q", r.ID(), o)
		}
		seen[o] = true
	}
	if !seen[DefaultOutput] {
		return fmt.Errorf("recipe %s: outputs must include %q", r.ID(), DefaultOutput)
	}
	for _, rule := range r.Split {
		if !seen[rule.Output] {
			return fmt.Errorf("recipe %s: split rule routes to undeclared output %q", r.ID(), rule.Output)
		}
	}
	for _, f := range r.Fixups {
		if !seen[f.Output] {
			return fmt.Errorf("recipe %s: fixup in undeclared output %q", r.ID(), f.Output)
		}
		if f.From == "" || f.To == "" {
			return fmt.Errorf("recipe %s: fixup needs both from and to", r.ID())
		}
	}
	if r.Assembly != nil && len(r.Assembly.Sources) == 0 {
		return fmt.Errorf("recipe %s: assembly with no sources", r.ID())
	}
	return nil
}

// clone returns a deep enough copy that no mutation of the result can be
// observed through the original.
func (r *Recipe) clone() *Recipe {
	c := *r
	c.Phases = r.Phases.Clone()
	c.Inputs = maps.Clone(r.Inputs)
	c.NativeInputs = maps.Clone(r.NativeInputs)
	c.Outputs = slices.Clone(r.Outputs)
	c.Flags = maps.Clone(r.Flags)
	c.Split = slices.Clone(r.Split)
	c.Fixups = slices.Clone(r.Fixups)
	if r.Assembly != nil {
		a := Assembly{
			Sources: slices.Clone(r.Assembly.Sources),
			Prune:   slices.Clone(r.Assembly.Prune),
		}
		c.Assembly = &a
	}
	return &c
}

// -----------------------------------------------------------------------------

// UnresolvedOutputError reports a consumer asking for an output its producer
// never declared.
type UnresolvedOutputError struct {
	Ref OutputRef
}

func (e *UnresolvedOutputError) Error() string {
	return fmt.Sprintf("recipe: output mapping unresolved: %s", e.Ref)
}
