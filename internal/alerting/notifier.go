package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Alert kinds.
const (
	KindAirdrop    = "airdrop"
	KindTierChange = "tier_change"
)

// Notification 封装积分提醒上下文。
type Notification struct {
	Address string
	Day     time.Time
	Kind    string
	// WindowPoints 为滚动窗口内累计积分。
	WindowPoints int64
	Threshold    int64
	// SpendMoreUSD 为达到空投交易量目标仍需的 USD。
	SpendMoreUSD  decimal.Decimal
	PreviousTier  string
	CurrentTier   string
	Channels      []string
	AdditionalMsg string
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("address", note.Address).
		Str("kind", note.Kind).
		Int64("window_points", note.WindowPoints).
		Msg("提醒已发送 (Telegram)")
	return nil
}

// LogNotifier 仅写日志，用于未配置推送渠道时。
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier 构造日志告警器。
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify writes the rendered message at warn level.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Warn().Str("address", note.Address).
		Str("kind", note.Kind).
		Time("day", note.Day).
		Msg(renderMessage(note))
	return nil
}

// Fanout 向多个渠道推送，单个渠道失败不影响其余渠道。
type Fanout []Notifier

// Notify delivers to every notifier and joins their errors.
func (f Fanout) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	switch note.Kind {
	case KindTierChange:
		builder.WriteString("[Alpha Points] Balance tier changed\n")
	default:
		builder.WriteString("[Alpha Points] Airdrop threshold reached\n")
	}
	builder.WriteString(fmt.Sprintf("Address: %s\n", note.Address))
	builder.WriteString(fmt.Sprintf("Day: %s UTC\n", note.Day.UTC().Format(time.DateOnly)))
	builder.WriteString(fmt.Sprintf("Window points: %d (threshold %d)\n", note.WindowPoints, note.Threshold))
	if note.Kind == KindTierChange {
		builder.WriteString(fmt.Sprintf("Tier: %s -> %s\n", note.PreviousTier, note.CurrentTier))
	}
	if note.SpendMoreUSD.IsPositive() {
		builder.WriteString(fmt.Sprintf("Spend more: $%s\n", note.SpendMoreUSD.StringFixed(2)))
	}
	if len(note.Channels) > 0 {
		builder.WriteString(fmt.Sprintf("Channels: %s\n", strings.Join(note.Channels, ",")))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = Fanout(nil)
)
