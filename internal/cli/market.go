package cli

import (
	"github.com/spf13/cobra"
)

var newsLimit int

var quoteCmd = &cobra.Command{
	Use:   "quote SYMBOL",
	Short: "Print the current price of an asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Quote(cmd.Context(), args[0], cmd.OutOrStdout())
	},
}

var sentimentCmd = &cobra.Command{
	Use:   "sentiment",
	Short: "Print the current Fear & Greed index",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Sentiment(cmd.Context(), cmd.OutOrStdout())
	},
}

var newsCmd = &cobra.Command{
	Use:   "news",
	Short: "Print the latest crypto headlines",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().News(cmd.Context(), newsLimit, cmd.OutOrStdout())
	},
}

func init() {
	newsCmd.Flags().IntVar(&newsLimit, "limit", 0, "Maximum headlines (defaults to config)")
}
