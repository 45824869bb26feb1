package main

import (
	"github.com/spf13/cobra"

	"github.com/safe-pkgs/safe-pkgs/internal/supportmap"
)

var supportMapNoColor bool

var supportMapCmd = &cobra.Command{
	Use:   "support-map",
	Short: "Print the registry x check support matrix",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(logger)
		if err != nil {
			return err
		}
		defer a.Close()

		color := supportmap.UseColor() && !supportMapNoColor
		supportmap.RenderCatalog(cmd.OutOrStdout(), a.catalog, color)
		return nil
	},
}

func init() {
	supportMapCmd.Flags().BoolVar(&supportMapNoColor, "no-color", false, "suppress ANSI color output")
	rootCmd.AddCommand(supportMapCmd)
}
