package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"coinwatch/internal/app"
)

var (
	simulateOwner     string
	simulateSymbol    string
	simulateDirection string
	simulateTarget    string
	simulatePrice     string
	simulateTelegram  bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-trigger",
	Short: "模拟一次价格触发并走完通知流程",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateTarget == "" || simulatePrice == "" {
			return errors.New("--target 与 --price 必须提供")
		}
		return getApp().SimulateTrigger(cmd.Context(), app.SimulateOptions{
			Owner:     simulateOwner,
			Symbol:    simulateSymbol,
			Direction: simulateDirection,
			Target:    simulateTarget,
			Price:     simulatePrice,
			Telegram:  simulateTelegram,
			Out:       cmd.OutOrStdout(),
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateOwner, "owner", "", "Telegram chat id that owns the simulated watch")
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "BTC", "Asset symbol")
	simulateCmd.Flags().StringVar(&simulateDirection, "direction", "above", "Trigger direction (above|below)")
	simulateCmd.Flags().StringVar(&simulateTarget, "target", "", "Target price in USD")
	simulateCmd.Flags().StringVar(&simulatePrice, "price", "", "Simulated current price in USD")
	simulateCmd.Flags().BoolVar(&simulateTelegram, "telegram", false, "Send the notification to --owner via Telegram")
}
