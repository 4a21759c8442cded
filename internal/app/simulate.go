package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"alphapoints/internal/alerting"
)

// SimulateAlert 通过给定的窗口积分模拟一次空投提醒，用于验证推送通道。
func (a *App) SimulateAlert(ctx context.Context, address string, windowPoints int64) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}
	if windowPoints < 0 {
		return errors.New("窗口积分不能为负")
	}

	threshold := int64(a.Config.Points.AirdropPoints)
	note := alerting.Notification{
		Address:       address,
		Day:           time.Now().UTC().Truncate(24 * time.Hour),
		Kind:          alerting.KindAirdrop,
		WindowPoints:  windowPoints,
		Threshold:     threshold,
		SpendMoreUSD:  decimal.Zero,
		Channels:      a.Config.Alerting.Channels,
		AdditionalMsg: "(simulated)",
	}
	return a.newNotifier().Notify(ctx, note)
}
