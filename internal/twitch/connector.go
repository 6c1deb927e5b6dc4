package twitch

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gempir/go-twitch-irc/v4"
	"github.com/john/prayerlog/internal/message"
	"github.com/john/prayerlog/internal/source"
)

// Connector manages Twitch chat connections
type Connector struct {
	username string
	oauth    string
	channels []string
	client   *twitch.Client
	logger   *slog.Logger
}

// New creates a new Twitch connector. Without credentials it joins anonymously,
// which is enough to read chat.
func New(username, oauth string, channels []string, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		username: username,
		oauth:    oauth,
		channels: channels,
		logger:   logger.With("source", "twitch"),
	}
}

// Start begins listening to Twitch chat and pushes messages into buf until ctx is done
func (c *Connector) Start(ctx context.Context, buf *source.Buffer) error {
	if c.username != "" && c.oauth != "" {
		c.client = twitch.NewClient(c.username, c.oauth)
	} else {
		c.client = twitch.NewAnonymousClient()
	}

	c.client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		buf.Push(toChatMessage(msg))
	})

	c.client.OnConnect(func() {
		c.logger.Info("connected to Twitch IRC")
	})

	c.client.OnReconnectMessage(func(msg twitch.ReconnectMessage) {
		c.logger.Info("reconnecting to Twitch IRC")
	})

	c.client.Join(c.channels...)
	c.logger.Info("joined channels", "channels", c.channels)

	go func() {
		if err := c.client.Connect(); err != nil && err != twitch.ErrClientDisconnected {
			c.logger.Error("Twitch IRC connection error", "error", err)
		}
	}()

	<-ctx.Done()

	c.logger.Info("disconnecting from Twitch IRC")
	c.client.Disconnect()
	buf.Close()

	return ctx.Err()
}

// toChatMessage converts an IRC PRIVMSG into our message format
func toChatMessage(msg twitch.PrivateMessage) message.ChatMessage {
	sent := msg.Time
	if sent.IsZero() {
		sent = time.Now()
	}

	author := msg.User.DisplayName
	if author == "" {
		author = msg.User.Name
	}

	return message.ChatMessage{
		Kind:        message.KindText,
		Author:      author,
		Text:        msg.Message,
		PublishedAt: sent.UTC().Format(time.RFC3339),
		Platform:    "twitch:" + strings.TrimPrefix(msg.Channel, "#"),
	}
}
