package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	simulateAddress string
	simulatePoints  int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次空投积分提醒，验证推送通道",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateAddress == "" {
			return errors.New("--address 必须提供")
		}
		return getApp().SimulateAlert(cmd.Context(), simulateAddress, simulatePoints)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateAddress, "address", "", "地址")
	simulateCmd.Flags().Int64Var(&simulatePoints, "points", 200, "窗口积分")
}
