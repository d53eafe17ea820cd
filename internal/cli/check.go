package cli

import (
	"github.com/spf13/cobra"

	"coinwatch/internal/app"
)

var checkNotify bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "执行一次告警评估后退出",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Check(cmd.Context(), app.CheckOptions{
			Notify: checkNotify,
			Out:    cmd.OutOrStdout(),
		})
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkNotify, "notify", false, "Deliver triggered alerts via Telegram instead of logging them")
}
