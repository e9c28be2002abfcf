package phase

import (
	"context"
	"fmt"
	"io"
	"slices"
)

// -----------------------------------------------------------------------------

// Context is the build context handed to every phase action. All cross-phase
// state passes through the filesystem: an action may read or write files under
// WorkDir and under any output directory that already exists.
type Context struct {
	// Ctx carries cancellation for actions that spawn subprocesses.
	Ctx context.Context

	// WorkDir is the root of the working tree the snapshot was captured into.
	WorkDir string

	// Stage is the staging install root. Files an action installs here are
	// partitioned across the declared outputs once the pipeline completes.
	Stage string

	// Inputs maps a logical dependency name to the directory of another
	// package's named output.
	Inputs map[string]string

	// Outputs maps each declared output name to its final directory.
	Outputs map[string]string

	// Flags holds key/value build parameters (target selection, compiler
	// override, install prefix, ...).
	Flags map[string]string

	Stdout io.Writer
	Stderr io.Writer
}

// Flag returns the build flag for key, or def if it is unset.
func (c *Context) Flag(key, def string) string {
	if v, ok := c.Flags[key]; ok {
		return v
	}
	return def
}

// Action is a single executable build step. A non-nil error aborts the
// enclosing pipeline.
type Action func(c *Context) error

// Phase is a named step of a build pipeline.
type Phase struct {
	Name string
	Run  Action
}

// Pipeline is an ordered sequence of uniquely named phases.
type Pipeline []Phase

// New builds a pipeline from alternating steps, validating name uniqueness.
func New(phases ...Phase) (Pipeline, error) {
	p := Pipeline(phases)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate reports the first duplicate phase name, if any.
func (p Pipeline) Validate() error {
	seen := make(map[string]bool, len(p))
	for _, ph := range p {
		if seen[ph.Name] {
			return fmt.Errorf("phase: duplicate phase name %q", ph.Name)
		}
		seen[ph.Name] = true
	}
	return nil
}

// Names returns the phase names in pipeline order.
func (p Pipeline) Names() []string {
	names := make([]string, len(p))
	for i, ph := range p {
		names[i] = ph.Name
	}
	return names
}

// Clone returns an independent copy of the pipeline.
func (p Pipeline) Clone() Pipeline {
	return slices.Clone(p)
}

func (p Pipeline) index(name string) int {
	for i, ph := range p {
		if ph.Name == name {
			return i
		}
	}
	return -1
}

// -----------------------------------------------------------------------------

// ConflictError reports an override that cannot be applied: it references a
// phase the pipeline does not have, collides with an existing name, or
// targets a step another override of the same set already touched.
type ConflictError struct {
	Name   string // phase name the override targets
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("phase: override conflict on %q: %s", e.Name, e.Reason)
}

type overrideOp int

const (
	opDelete overrideOp = iota
	opReplace
	opAddBefore
	opAddAfter
)

// Override is one operation of the override algebra. Overrides are applied
// in the order given; two overrides of one set may not target the same
// phase name.
type Override struct {
	op     overrideOp
	name   string
	anchor string
	run    Action
}

// Delete removes the named phase. It fails if the phase is absent.
func Delete(name string) Override {
	return Override{op: opDelete, name: name}
}

// Replace swaps the action of an existing phase, preserving its position.
func Replace(name string, run Action) Override {
	return Override{op: opReplace, name: name, run: run}
}

// AddBefore inserts a new phase immediately before anchor.
func AddBefore(anchor, name string, run Action) Override {
	return Override{op: opAddBefore, name: name, anchor: anchor, run: run}
}

// AddAfter inserts a new phase immediately after anchor.
func AddAfter(anchor, name string, run Action) Override {
	return Override{op: opAddAfter, name: name, anchor: anchor, run: run}
}

// Apply derives a new pipeline from p by applying each override in order.
// p itself is never modified. Overrides targeting a missing phase or anchor
// fail, as does a set in which two overrides touch the same phase name:
// last-writer ambiguity is rejected rather than silently resolved.
func (p Pipeline) Apply(overrides ...Override) (Pipeline, error) {
	derived := p.Clone()
	touched := make(map[string]bool, len(overrides))

	for _, ov := range overrides {
		if touched[ov.name] {
			return nil, &ConflictError{Name: ov.name, Reason: "targeted by more than one override"}
		}
		touched[ov.name] = true

		switch ov.op {
		case opDelete:
			i := derived.index(ov.name)
			if i < 0 {
				return nil, &ConflictError{Name: ov.name, Reason: "cannot delete: no such phase"}
			}
			derived = slices.Delete(derived, i, i+1)

		case opReplace:
			i := derived.index(ov.name)
			if i < 0 {
				return nil, &ConflictError{Name: ov.name, Reason: "cannot replace: no such phase"}
			}
			derived[i].Run = ov.run

		case opAddBefore, opAddAfter:
			if derived.index(ov.name) >= 0 {
				return nil, &ConflictError{Name: ov.name, Reason: "cannot insert: name already in pipeline"}
			}
			i := derived.index(ov.anchor)
			if i < 0 {
				return nil, &ConflictError{Name: ov.name, Reason: fmt.Sprintf("cannot insert: no such anchor %q", ov.anchor)}
			}
			if ov.op == opAddAfter {
				i++
			}
			derived = slices.Insert(derived, i, Phase{Name: ov.name, Run: ov.run})
		}
	}
	return derived, nil
}
