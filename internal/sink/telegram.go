package sink

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/john/prayerlog/internal/detect"
	"github.com/john/prayerlog/internal/message"
)

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram notifies a chat about prayer requests at or above a minimum tier.
// Lower tiers are accepted without sending anything.
type Telegram struct {
	bot     messageSender
	chatID  int64
	minTier detect.Tier
	logger  *slog.Logger
}

// NewTelegram connects to the Bot API with token
func NewTelegram(token string, chatID int64, minTier detect.Tier, logger *slog.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect Telegram bot: %w", err)
	}
	return newTelegram(bot, chatID, minTier, logger), nil
}

func newTelegram(bot messageSender, chatID int64, minTier detect.Tier, logger *slog.Logger) *Telegram {
	if logger == nil {
		logger = slog.Default()
	}
	if minTier == detect.TierNone {
		minTier = detect.TierLow
	}
	return &Telegram{
		bot:     bot,
		chatID:  chatID,
		minTier: minTier,
		logger:  logger.With("sink", "telegram", "chat_id", chatID),
	}
}

// Append sends a notification for rec when its tier qualifies
func (t *Telegram) Append(ctx context.Context, rec message.PrayerRequest) bool {
	tier, ok := detect.ParseTier(rec.Probability)
	if !ok {
		t.logger.Warn("unknown probability label", "probability", rec.Probability)
	}
	if tier < t.minTier {
		return true
	}

	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, formatNotification(rec))); err != nil {
		t.logger.Error("failed to send notification", "author", rec.Author, "error", err)
		return false
	}
	return true
}

func formatNotification(rec message.PrayerRequest) string {
	return fmt.Sprintf("🙏 Pedido de oração (%s)\n%s - %s\n\n%s", rec.Probability, rec.Timestamp, rec.Author, rec.Content)
}

// Layout returns LayoutFull
func (t *Telegram) Layout() Layout { return LayoutFull }

// Close is a no-op
func (t *Telegram) Close() error { return nil }
