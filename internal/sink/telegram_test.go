package sink

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/john/prayerlog/internal/detect"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func TestTelegramMinTier(t *testing.T) {
	bot := &fakeSender{}
	tg := newTelegram(bot, 42, detect.TierHigh, testLogger())
	ctx := context.Background()

	medium := sampleRequest
	medium.Probability = detect.TierMedium.Label()
	if !tg.Append(ctx, medium) {
		t.Fatal("below-threshold record should be accepted")
	}
	if len(bot.sent) != 0 {
		t.Fatalf("sent %d notifications for a medium record", len(bot.sent))
	}

	if !tg.Append(ctx, sampleRequest) {
		t.Fatal("append failed")
	}
	if len(bot.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(bot.sent))
	}
	msg := bot.sent[0]
	if msg.ChatID != 42 {
		t.Errorf("chat id = %d", msg.ChatID)
	}
	for _, want := range []string{"Alta", "Maria Silva", sampleRequest.Content} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("notification %q missing %q", msg.Text, want)
		}
	}
}

func TestTelegramSendFailure(t *testing.T) {
	tg := newTelegram(&fakeSender{err: errors.New("network down")}, 1, detect.TierNone, testLogger())
	if tg.Append(context.Background(), sampleRequest) {
		t.Fatal("expected failure when the bot cannot send")
	}
	if tg.minTier != detect.TierLow {
		t.Errorf("minTier = %v, want Low", tg.minTier)
	}
}
