package recipe

import (
	"fmt"
	"slices"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/kilnbuild/kiln/pkgs/vers"
)

// Registry holds recipes by name, possibly several versions per name.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	recipes map[string]map[string]*Recipe // name -> version -> recipe
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{recipes: make(map[string]map[string]*Recipe)}
}

// Register validates r and adds it. Re-registering the same name@version
// is an error.
func (g *Registry) Register(r *Recipe) error {
	if err := r.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	byVer := g.recipes[r.Name]
	if byVer == nil {
		byVer = make(map[string]*Recipe)
		g.recipes[r.Name] = byVer
	}
	if _, ok := byVer[r.Version]; ok {
		return fmt.Errorf("recipe: %s already registered", r.ID())
	}
	byVer[r.Version] = r
	return nil
}

// MustRegister is Register that panics on error, for static recipe sets.
func (g *Registry) MustRegister(r *Recipe) {
	if err := g.Register(r); err != nil {
		panic(err)
	}
}

// Lookup returns the recipe for name at version. An empty version or
// "latest" selects the greatest registered version.
func (g *Registry) Lookup(name, version string) (*Recipe, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	byVer := g.recipes[name]
	if len(byVer) == 0 {
		return nil, fmt.Errorf("recipe: unknown package %q", name)
	}
	if version == "" || version == "latest" {
		version = latestOf(byVer)
	}
	r, ok := byVer[version]
	if !ok {
		return nil, fmt.Errorf("recipe: no recipe for %s@%s", name, version)
	}
	return r, nil
}

// Versions returns the registered versions of name, ascending.
func (g *Registry) Versions(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	vs := make([]string, 0, len(g.recipes[name]))
	for v := range g.recipes[name] {
		vs = append(vs, v)
	}
	vers.Sort(vs)
	return vs
}

// Names returns all registered package names, sorted.
func (g *Registry) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.recipes))
	for n := range g.recipes {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// latestOf prefers semver ordering when every version parses as semver,
// and falls back to GNU-style comparison for free-form versions.
func latestOf(byVer map[string]*Recipe) string {
	var svs []*semver.Version
	for v := range byVer {
		sv, err := semver.NewVersion(v)
		if err != nil {
			svs = nil
			break
		}
		svs = append(svs, sv)
	}
	if len(svs) == len(byVer) && len(svs) > 0 {
		max := svs[0]
		for _, sv := range svs[1:] {
			if sv.GreaterThan(max) {
				max = sv
			}
		}
		return max.Original()
	}
	all := make([]string, 0, len(byVer))
	for v := range byVer {
		all = append(all, v)
	}
	return vers.Latest(all)
}
