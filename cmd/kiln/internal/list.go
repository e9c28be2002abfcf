package internal

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilnbuild/kiln/internal/env"
	"github.com/kilnbuild/kiln/internal/recipes"
	"github.com/kilnbuild/kiln/pkgs/recipe"
)

var (
	listSource string
	listStore  string
	listBuilt  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the available packages",
	RunE:  runListCmd,
}

func init() {
	listCmd.Flags().StringVarP(&listSource, "source", "s", ".", "Source working tree")
	listCmd.Flags().StringVar(&listStore, "store", "", "Store directory (default: "+env.StoreEnv+" or the XDG data dir)")
	listCmd.Flags().BoolVar(&listBuilt, "built", false, "List completed builds in the store instead of recipes")
	rootCmd.AddCommand(listCmd)
}

func runListCmd(cmd *cobra.Command, args []string) error {
	if listBuilt {
		return listBuiltPackages()
	}
	sourceDir, err := filepath.Abs(listSource)
	if err != nil {
		return err
	}
	reg := recipe.NewRegistry()
	if err := recipes.Register(reg, sourceDir); err != nil {
		return err
	}
	for _, name := range reg.Names() {
		fmt.Printf("%s\t%s\n", name, strings.Join(reg.Versions(name), ", "))
	}
	return nil
}

func listBuiltPackages() error {
	st, err := openStore(listStore)
	if err != nil {
		return err
	}
	defer st.Close()
	pkgs, err := st.Packages()
	if err != nil {
		return err
	}
	for _, pkg := range pkgs {
		fmt.Println(pkg)
	}
	return nil
}
