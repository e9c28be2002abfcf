package internal

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilnbuild/kiln/internal/env"
	"github.com/kilnbuild/kiln/internal/recipes"
	"github.com/kilnbuild/kiln/internal/runner"
	"github.com/kilnbuild/kiln/internal/store"
	"github.com/kilnbuild/kiln/pkgs/recipe"
)

var (
	buildSource string
	buildStore  string
)

var buildCmd = &cobra.Command{
	Use:   "build <package>[@version]",
	Short: "Build a package and print its output paths",
	Long: `Build runs the named package's recipe: it captures the source snapshot,
executes the phase pipeline, splits the generated files across the declared
outputs and assembles the final result. Dependencies build first.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuildCmd,
}

func init() {
	buildCmd.Flags().StringVarP(&buildSource, "source", "s", ".", "Source working tree")
	buildCmd.Flags().StringVar(&buildStore, "store", "", "Store directory (default: "+env.StoreEnv+" or the XDG data dir)")
	rootCmd.AddCommand(buildCmd)
}

func runBuildCmd(cmd *cobra.Command, args []string) error {
	name, version := parsePackageArg(args[0])

	sourceDir, err := filepath.Abs(buildSource)
	if err != nil {
		return err
	}
	reg := recipe.NewRegistry()
	if err := recipes.Register(reg, sourceDir); err != nil {
		return fmt.Errorf("failed to load recipes: %w", err)
	}
	rec, err := reg.Lookup(name, version)
	if err != nil {
		return err
	}

	st, err := openStore(buildStore)
	if err != nil {
		return err
	}
	defer st.Close()

	r := &runner.Runner{Store: st, Registry: reg}
	res, err := r.BuildAll(cmd.Context(), rec, nil)
	if err != nil {
		return fmt.Errorf("failed to build %s: %w", rec.ID(), err)
	}

	outs := make([]string, 0, len(res.Outputs))
	for out := range res.Outputs {
		outs = append(outs, out)
	}
	sort.Strings(outs)
	for _, out := range outs {
		fmt.Printf("%s\t%s\n", out, res.Outputs[out])
	}
	return nil
}

func openStore(dir string) (*store.Store, error) {
	if dir == "" {
		dir = env.StoreDir()
	}
	st, err := store.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return st, nil
}

// parsePackageArg splits "name@version"; a bare name selects the latest
// registered version.
func parsePackageArg(arg string) (name, version string) {
	if i := strings.LastIndexByte(arg, '@'); i >= 0 {
		return arg[:i], arg[i+1:]
	}
	return arg, ""
}
