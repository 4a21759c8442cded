package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func sampleNote() Notification {
	return Notification{
		Address:      "0x8894e0a0c962cb723c1976a4421c95949be2d4e3",
		Day:          time.Date(2025, 5, 21, 0, 0, 0, 0, time.UTC),
		Kind:         KindAirdrop,
		WindowPoints: 205,
		Threshold:    200,
		SpendMoreUSD: decimal.RequireFromString("1234.5"),
		Channels:     []string{"telegram"},
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/bottoken/sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNote()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "Window points: 205 (threshold 200)") {
		t.Fatalf("text 缺少积分信息: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNote()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestTelegramNotifierStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNote()); err == nil {
		t.Fatal("401 应报错")
	}
}

func TestRenderMessage(t *testing.T) {
	msg := renderMessage(sampleNote())
	for _, want := range []string{"Airdrop threshold reached", "Day: 2025-05-21 UTC", "Spend more: $1234.50", "Channels: telegram"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("消息缺少 %q:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "Tier:") {
		t.Fatal("空投提醒不应包含等级变化")
	}

	note := sampleNote()
	note.Kind = KindTierChange
	note.PreviousTier = "$100–$1,000"
	note.CurrentTier = "$1,000–$10,000"
	note.SpendMoreUSD = decimal.Zero
	msg = renderMessage(note)
	if !strings.Contains(msg, "Tier: $100–$1,000 -> $1,000–$10,000") {
		t.Fatalf("等级变化消息不符:\n%s", msg)
	}
	if strings.Contains(msg, "Spend more") {
		t.Fatal("无需追加交易量时不应输出 Spend more")
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))
	if err := n.Notify(context.Background(), sampleNote()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"level":"warn"`) || !strings.Contains(buf.String(), `"kind":"airdrop"`) {
		t.Fatalf("日志输出不符: %s", buf.String())
	}
}

type stubNotifier struct {
	err   error
	calls int
}

func (s *stubNotifier) Notify(context.Context, Notification) error {
	s.calls++
	return s.err
}

func TestFanoutContinuesAfterFailure(t *testing.T) {
	failing := &stubNotifier{err: errors.New("down")}
	ok := &stubNotifier{}
	err := Fanout{failing, ok}.Notify(context.Background(), sampleNote())
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Fatalf("应返回失败渠道的错误, 实际 %v", err)
	}
	if ok.calls != 1 {
		t.Fatal("其余渠道仍应收到提醒")
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
