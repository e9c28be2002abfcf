package internal

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kilnbuild/kiln/internal/recipes"
	"github.com/kilnbuild/kiln/pkgs/recipe"
)

var phasesSource string

var phasesCmd = &cobra.Command{
	Use:   "phases <package>[@version]",
	Short: "Print a package's resolved phase pipeline",
	Long: `Phases prints the pipeline a package would run, after applying any
inherited overrides. Useful to inspect what a derived recipe changed.`,
	Args: cobra.ExactArgs(1),
	RunE: runPhasesCmd,
}

func init() {
	phasesCmd.Flags().StringVarP(&phasesSource, "source", "s", ".", "Source working tree")
	rootCmd.AddCommand(phasesCmd)
}

func runPhasesCmd(cmd *cobra.Command, args []string) error {
	name, version := parsePackageArg(args[0])
	sourceDir, err := filepath.Abs(phasesSource)
	if err != nil {
		return err
	}
	reg := recipe.NewRegistry()
	if err := recipes.Register(reg, sourceDir); err != nil {
		return err
	}
	rec, err := reg.Lookup(name, version)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s)\n", rec.ID(), rec.BuildSystem)
	for i, ph := range rec.Phases {
		fmt.Printf("  %d. %s\n", i+1, ph.Name)
	}
	if rec.Assembly != nil {
		fmt.Printf("  assembly: %d source(s), %d prune path(s)\n",
			len(rec.Assembly.Sources), len(rec.Assembly.Prune))
	}
	return nil
}
