package cli

import (
	"github.com/spf13/cobra"

	"coinwatch/internal/app"
)

var (
	watchesOwner      string
	watchesActiveOnly bool
	exportCSVPath     string
)

var watchesCmd = &cobra.Command{
	Use:   "watches",
	Short: "Inspect stored price watches",
}

var watchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print watches as a table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListWatches(cmd.Context(), app.ListOptions{
			Owner:      watchesOwner,
			ActiveOnly: watchesActiveOnly,
			Out:        cmd.OutOrStdout(),
		})
	},
}

var watchesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export watches as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ExportWatches(cmd.Context(), app.ExportOptions{
			Owner:      watchesOwner,
			ActiveOnly: watchesActiveOnly,
			CSVPath:    exportCSVPath,
			Out:        cmd.OutOrStdout(),
		})
	},
}

func init() {
	watchesCmd.PersistentFlags().StringVar(&watchesOwner, "owner", "", "Only watches of this chat id (default: all active watches)")
	watchesCmd.PersistentFlags().BoolVar(&watchesActiveOnly, "active", false, "Only active watches")
	watchesExportCmd.Flags().StringVar(&exportCSVPath, "csv", "-", "Path to write CSV data (- for stdout)")

	watchesCmd.AddCommand(watchesListCmd)
	watchesCmd.AddCommand(watchesExportCmd)
}
