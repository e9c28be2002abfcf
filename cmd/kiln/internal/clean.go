package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanStore string

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove every built package from the store",
	RunE:  runCleanCmd,
}

func init() {
	cleanCmd.Flags().StringVar(&cleanStore, "store", "", "Store directory")
	rootCmd.AddCommand(cleanCmd)
}

func runCleanCmd(cmd *cobra.Command, args []string) error {
	st, err := openStore(cleanStore)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Clean(); err != nil {
		return fmt.Errorf("failed to clean store: %w", err)
	}
	fmt.Println("store cleaned")
	return nil
}
