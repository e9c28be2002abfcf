package recipe

import (
	"fmt"
	"maps"
	"slices"

	"github.com/kilnbuild/kiln/pkgs/phase"
)

// Overrides is a partial record of descriptor fields. A zero field means
// "inherit from the base"; a set field replaces the base's value wholesale,
// except Phases which compose against the base's resolved pipeline and
// VersionSuffix which appends to the inherited version.
type Overrides struct {
	Name          string
	Version       string
	VersionSuffix string
	BuildSystem   string
	Source        string

	// NoSource drops the base's source capture entirely. Assembly-only
	// derivations set it so they never touch a working tree.
	NoSource bool

	Phases []phase.Override

	Inputs       map[string]OutputRef
	NativeInputs map[string]OutputRef
	Outputs      []string
	Flags        map[string]string

	Split    []SplitRule
	Fixups   []Fixup
	Assembly *Assembly
}

// Derive produces a new recipe from base with the given overrides applied.
// The base is never mutated; fields not covered by ov are carried over.
// Phase overrides apply against base's resolved pipeline, so inheritance
// composes pipelines rather than replacing them.
func Derive(base *Recipe, ov Overrides) (*Recipe, error) {
	if ov.Version != "" && ov.VersionSuffix != "" {
		return nil, fmt.Errorf("recipe: derive %s: version and version suffix are mutually exclusive", base.ID())
	}
	if ov.NoSource && ov.Source != "" {
		return nil, fmt.Errorf("recipe: derive %s: source and no-source are mutually exclusive", base.ID())
	}

	d := base.clone()
	if ov.Name != "" {
		d.Name = ov.Name
	}
	if ov.Version != "" {
		d.Version = ov.Version
	}
	if ov.VersionSuffix != "" {
		d.Version = base.Version + ov.VersionSuffix
	}
	if ov.BuildSystem != "" {
		d.BuildSystem = ov.BuildSystem
	}
	if ov.NoSource {
		d.Source = ""
	} else if ov.Source != "" {
		d.Source = ov.Source
	}
	if len(ov.Phases) > 0 {
		derived, err := base.Phases.Apply(ov.Phases...)
		if err != nil {
			return nil, fmt.Errorf("recipe: derive %s: %w", base.ID(), err)
		}
		d.Phases = derived
	}
	if ov.Inputs != nil {
		d.Inputs = maps.Clone(ov.Inputs)
	}
	if ov.NativeInputs != nil {
		d.NativeInputs = maps.Clone(ov.NativeInputs)
	}
	if ov.Outputs != nil {
		d.Outputs = slices.Clone(ov.Outputs)
	}
	if ov.Flags != nil {
		d.Flags = maps.Clone(ov.Flags)
	}
	if ov.Split != nil {
		d.Split = slices.Clone(ov.Split)
	}
	if ov.Fixups != nil {
		d.Fixups = slices.Clone(ov.Fixups)
	}
	if ov.Assembly != nil {
		a := Assembly{
			Sources: slices.Clone(ov.Assembly.Sources),
			Prune:   slices.Clone(ov.Assembly.Prune),
		}
		d.Assembly = &a
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}
