// Package recipes holds the builtin recipe set the kiln CLI serves. It
// describes a conventional GNU-style project in the current working tree,
// plus derived variants showing pipeline inheritance and final assembly.
package recipes

import (
	"github.com/kilnbuild/kiln/pkgs/phase"
	"github.com/kilnbuild/kiln/pkgs/recipe"
	"github.com/kilnbuild/kiln/pkgs/toolchain"
)

// Register fills reg with the builtin recipes, rooted at sourceDir.
func Register(reg *recipe.Registry, sourceDir string) error {
	base, err := project(sourceDir)
	if err != nil {
		return err
	}
	if err := reg.Register(base); err != nil {
		return err
	}

	static, err := recipe.Derive(base, recipe.Overrides{
		Name:          "project-static",
		VersionSuffix: "-static",
		Phases: []phase.Override{
			phase.Replace("configure", toolchain.CommandFunc("sh", func(c *phase.Context) []string {
				return []string{"-c", "./configure --prefix=" + c.Flag("prefix", "/") + " --disable-shared --enable-static"}
			})),
		},
	})
	if err != nil {
		return err
	}
	if err := reg.Register(static); err != nil {
		return err
	}

	dist, err := recipe.Derive(base, recipe.Overrides{
		Name: "project-dist",
		// The dist package only repackages the already-built outputs; it
		// runs no phases of its own and needs no source snapshot.
		NoSource: true,
		Phases: []phase.Override{
			phase.Delete("configure"),
			phase.Delete("build"),
			phase.Delete("install"),
		},
		Assembly: &recipe.Assembly{
			Sources: []recipe.OutputRef{
				{Package: "project", Output: "out"},
				{Package: "project", Output: "lib"},
			},
		},
	})
	if err != nil {
		return err
	}
	return reg.Register(dist)
}

// project is the base descriptor: configure/build/install against the
// tracked files of sourceDir, with library artifacts split into their own
// output.
func project(sourceDir string) (*recipe.Recipe, error) {
	pipeline, err := phase.New(
		phase.Phase{
			Name: "configure",
			Run: toolchain.CommandFunc("sh", func(c *phase.Context) []string {
				return []string{"-c", "./configure --prefix=" + c.Flag("prefix", "/")}
			}),
		},
		phase.Phase{
			Name: "build",
			Run: toolchain.CommandFunc("make", func(c *phase.Context) []string {
				return []string{"-j", c.Flag("jobs", "1")}
			}),
		},
		phase.Phase{
			Name: "install",
			Run: toolchain.CommandFunc("make", func(c *phase.Context) []string {
				return []string{"install", "DESTDIR=" + c.Stage}
			}),
		},
	)
	if err != nil {
		return nil, err
	}
	return &recipe.Recipe{
		Name:        "project",
		Version:     "0.1.0",
		BuildSystem: "gnu",
		Source:      sourceDir,
		Phases:      pipeline,
		Outputs:     []string{"out", "lib"},
		Flags:       map[string]string{"prefix": "/", "jobs": "1"},
		Split: []recipe.SplitRule{
			{Output: "lib", Patterns: []string{"lib/**"}},
		},
	}, nil
}
