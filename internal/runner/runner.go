// Package runner executes recipe builds against a store: it captures the
// source snapshot, runs the phase pipeline, splits outputs and performs the
// declared assembly. Ordering across packages (inputs before consumers) is
// the driver's job, not the runner's.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/qiniu/x/log"

	"github.com/kilnbuild/kiln/internal/assemble"
	"github.com/kilnbuild/kiln/internal/source"
	"github.com/kilnbuild/kiln/internal/split"
	"github.com/kilnbuild/kiln/internal/store"
	"github.com/kilnbuild/kiln/pkgs/phase"
	"github.com/kilnbuild/kiln/pkgs/recipe"
)

// ExecError reports a phase whose underlying action failed. The build it
// belonged to is fatal; the wrapped error carries the tool's exit detail.
type ExecError struct {
	Package string
	Phase   string
	Err     error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("runner: %s: phase %q failed: %v", e.Package, e.Phase, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Result is one completed build.
type Result struct {
	Recipe  *recipe.Recipe
	Outputs map[string]string // output name -> directory
	Cached  bool
}

// Built caches completed results by package name within one driver run.
type Built map[string]*Result

// Runner builds recipes into a store.
type Runner struct {
	Store    *store.Store
	Registry *recipe.Registry

	// Stdout and Stderr receive tool output. Nil means the process streams.
	Stdout io.Writer
	Stderr io.Writer
}

// BuildAll builds rec and, first, every package it references through
// inputs, native inputs or assembly sources. Dependencies build before
// their consumers; within one package, phases run strictly in sequence.
func (r *Runner) BuildAll(ctx context.Context, rec *recipe.Recipe, built Built) (*Result, error) {
	if built == nil {
		built = make(Built)
	}
	if res, ok := built[rec.Name]; ok {
		return res, nil
	}
	for _, ref := range r.refsOf(rec) {
		if _, ok := built[ref.Package]; ok {
			continue
		}
		dep, err := r.Registry.Lookup(ref.Package, "")
		if err != nil {
			return nil, fmt.Errorf("runner: %s: %w", rec.ID(), err)
		}
		if _, err := r.BuildAll(ctx, dep, built); err != nil {
			return nil, err
		}
	}
	res, err := r.Build(ctx, rec, built)
	if err != nil {
		return nil, err
	}
	built[rec.Name] = res
	return res, nil
}

// refsOf returns every cross-package reference of rec, sorted by logical
// name so build order is stable.
func (r *Runner) refsOf(rec *recipe.Recipe) []recipe.OutputRef {
	var refs []recipe.OutputRef
	for _, m := range []map[string]recipe.OutputRef{rec.NativeInputs, rec.Inputs} {
		names := make([]string, 0, len(m))
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			refs = append(refs, m[name])
		}
	}
	if rec.Assembly != nil {
		refs = append(refs, rec.Assembly.Sources...)
	}
	return refs
}

// resolveRef maps an output reference to the directory the producer built
// it into. Requesting an output the producer never declared fails with
// recipe.UnresolvedOutputError.
func (r *Runner) resolveRef(ref recipe.OutputRef, built Built) (string, error) {
	res, ok := built[ref.Package]
	if !ok {
		return "", fmt.Errorf("runner: input package %q not built", ref.Package)
	}
	if !res.Recipe.HasOutput(ref.Output) {
		return "", &recipe.UnresolvedOutputError{Ref: ref}
	}
	return res.Outputs[ref.Output], nil
}

// resolveInputs maps every logical input name of rec to a filesystem path.
func (r *Runner) resolveInputs(rec *recipe.Recipe, built Built) (map[string]string, error) {
	inputs := make(map[string]string, len(rec.Inputs)+len(rec.NativeInputs))
	for _, m := range []map[string]recipe.OutputRef{rec.Inputs, rec.NativeInputs} {
		for name, ref := range m {
			dir, err := r.resolveRef(ref, built)
			if err != nil {
				return nil, err
			}
			inputs[name] = dir
		}
	}
	return inputs, nil
}

// Build runs one descriptor through the full state machine. Every package
// it references must already appear in built.
func (r *Runner) Build(ctx context.Context, rec *recipe.Recipe, built Built) (*Result, error) {
	if entry, ok := r.Store.Entry(rec.Name, rec.Version); ok {
		outputs := make(map[string]string, len(entry.Outputs))
		for _, name := range entry.Outputs {
			dir, err := r.Store.OutputDir(rec.Name, rec.Version, name)
			if err != nil {
				return nil, err
			}
			outputs[name] = dir
		}
		log.Debugf("%s already built, reusing store outputs", rec.ID())
		return &Result{Recipe: rec, Outputs: outputs, Cached: true}, nil
	}

	b := &build{runner: r, rec: rec, built: built, state: Unbuilt}
	res, err := b.run(ctx)
	if err != nil {
		// A failed build must never leave a partially populated output
		// directory behind as if it were usable.
		if rmErr := r.Store.RemovePackage(rec.Name, rec.Version); rmErr != nil {
			log.Warnf("discarding failed build of %s: %v", rec.ID(), rmErr)
		}
		b.fail()
		return nil, err
	}
	return res, nil
}

// build is the state of one build attempt.
type build struct {
	runner *Runner
	rec    *recipe.Recipe
	built  Built
	state  State
	work   string
}

// State returns the attempt's current state.
func (b *build) State() State { return b.state }

func (b *build) to(next State) {
	if !b.state.canEnter(next) {
		panic(fmt.Sprintf("runner: invalid transition %v -> %v for %s", b.state, next, b.rec.ID()))
	}
	b.state = next
}

func (b *build) fail() {
	if !b.state.Terminal() {
		b.to(Failed)
	}
}

func (b *build) run(ctx context.Context) (*Result, error) {
	rec := b.rec
	work, err := b.runner.Store.NewWorkDir(rec.Name)
	if err != nil {
		return nil, err
	}
	b.work = work
	defer os.RemoveAll(work)

	// Capture the source snapshot into the fresh working tree. Phases only
	// ever write into this copy, never into the captured source.
	if rec.Source != "" {
		sess := source.NewSession(rec.Source)
		log.Debugf("%s: capturing source (%s)", rec.ID(), sess.Describe())
		if err := sess.Snapshot(work); err != nil {
			return nil, fmt.Errorf("runner: %s: %w", rec.ID(), err)
		}
	}
	b.to(SourceCaptured)

	inputs, err := b.runner.resolveInputs(rec, b.built)
	if err != nil {
		return nil, err
	}

	outputs := make(map[string]string, len(rec.OutputNames()))
	for _, name := range rec.OutputNames() {
		dir, err := b.runner.Store.OutputDir(rec.Name, rec.Version, name)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		outputs[name] = dir
	}
	stage, err := os.MkdirTemp(work, ".stage-*")
	if err != nil {
		return nil, err
	}

	b.to(PhasesRunning)
	pctx := &phase.Context{
		Ctx:     ctx,
		WorkDir: work,
		Stage:   stage,
		Inputs:  inputs,
		Outputs: outputs,
		Flags:   rec.Flags,
		Stdout:  b.runner.Stdout,
		Stderr:  b.runner.Stderr,
	}
	for _, ph := range rec.Phases {
		if err := ctx.Err(); err != nil {
			return nil, &ExecError{Package: rec.ID(), Phase: ph.Name, Err: err}
		}
		log.Infof("%s: running phase %s", rec.ID(), ph.Name)
		if err := ph.Run(pctx); err != nil {
			return nil, &ExecError{Package: rec.ID(), Phase: ph.Name, Err: err}
		}
	}

	if _, err := split.Split(stage, outputs, rec.Split); err != nil {
		return nil, fmt.Errorf("runner: %s: %w", rec.ID(), err)
	}
	b.to(SplitDone)
	if err := split.ApplyFixups(outputs, rec.Fixups); err != nil {
		return nil, fmt.Errorf("runner: %s: %w", rec.ID(), err)
	}

	if rec.Assembly != nil {
		sources := make([]assemble.Source, 0, len(rec.Assembly.Sources))
		for _, ref := range rec.Assembly.Sources {
			dir, err := b.runner.resolveRef(ref, b.built)
			if err != nil {
				return nil, err
			}
			sources = append(sources, assemble.Source{Label: ref.String(), Dir: dir})
		}
		if err := assemble.Assemble(outputs[recipe.DefaultOutput], sources, rec.Assembly.Prune); err != nil {
			return nil, fmt.Errorf("runner: %s: %w", rec.ID(), err)
		}
	}
	b.to(Assembled)

	entry := &store.Entry{
		Name:      rec.Name,
		Version:   rec.Version,
		Outputs:   rec.OutputNames(),
		BuildTime: time.Now(),
	}
	if err := b.runner.Store.SaveEntry(entry); err != nil {
		return nil, err
	}
	return &Result{Recipe: rec, Outputs: outputs}, nil
}
