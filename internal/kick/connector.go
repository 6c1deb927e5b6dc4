package kick

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	kickchat "github.com/johanvandegriff/kick-chat-wrapper"
	"github.com/john/prayerlog/internal/message"
	"github.com/john/prayerlog/internal/source"
)

const defaultAPIBase = "https://kick.com/api/v2/channels"

// ChannelResponse represents the channel API response from Kick
type ChannelResponse struct {
	ID       int    `json:"id"`
	Slug     string `json:"slug"`
	Chatroom struct {
		ID int `json:"id"`
	} `json:"chatroom"`
}

// ChannelConfig represents a Kick channel with optional pre-configured chatroom ID
type ChannelConfig struct {
	Slug       string `yaml:"slug"`
	ChatroomID int    `yaml:"chatroom_id"` // 0 means not pre-configured, needs resolution
}

// Connector manages Kick chat connections
type Connector struct {
	channels   []ChannelConfig
	idToSlug   map[int]string // chatroom ID -> channel slug
	client     *kickchat.Client
	httpClient *http.Client
	apiBase    string
	logger     *slog.Logger
}

// New creates a new Kick connector
func New(channels []ChannelConfig, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		channels:   channels,
		idToSlug:   make(map[int]string),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiBase:    defaultAPIBase,
		logger:     logger.With("source", "kick"),
	}
}

// Start resolves chatrooms, joins them and pushes messages into buf until ctx is done
func (c *Connector) Start(ctx context.Context, buf *source.Buffer) error {
	defer buf.Close()

	c.logger.Info("resolving Kick channel IDs")
	for _, channel := range c.channels {
		if channel.ChatroomID > 0 {
			c.idToSlug[channel.ChatroomID] = channel.Slug
			c.logger.Info("using pre-configured Kick channel", "slug", channel.Slug, "chatroom_id", channel.ChatroomID)
			continue
		}

		info, err := c.ResolveChannel(ctx, channel.Slug)
		if err != nil {
			c.logger.Warn("failed to resolve Kick channel, skipping", "slug", channel.Slug, "error", err)
			continue
		}
		c.idToSlug[info.Chatroom.ID] = info.Slug
		c.logger.Info("resolved Kick channel", "slug", info.Slug, "chatroom_id", info.Chatroom.ID)
	}

	if len(c.idToSlug) == 0 {
		return fmt.Errorf("no valid Kick channels could be resolved")
	}

	client, err := kickchat.NewClient()
	if err != nil {
		return fmt.Errorf("create Kick client: %w", err)
	}
	c.client = client
	defer c.client.Close()

	for chatroomID, slug := range c.idToSlug {
		if err := c.client.JoinChannelByID(chatroomID); err != nil {
			c.logger.Warn("failed to join Kick channel", "slug", slug, "chatroom_id", chatroomID, "error", err)
			continue
		}
		c.logger.Info("joined Kick channel", "slug", slug)
	}

	messages := c.client.ListenForMessages()
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				c.logger.Info("Kick message channel closed")
				return source.ErrChatClosed
			}
			chatMessage, ok := c.convertMessage(msg)
			if !ok {
				continue
			}
			buf.Push(chatMessage)

		case <-ctx.Done():
			c.logger.Info("disconnecting from Kick chat")
			return ctx.Err()
		}
	}
}

// ResolveChannel fetches channel information, including the chatroom ID, from the Kick API
func (c *Connector) ResolveChannel(ctx context.Context, slug string) (*ChannelResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/"+slug, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// Kick sits behind CloudFlare and rejects obvious bots
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", "https://kick.com/")
	req.Header.Set("Origin", "https://kick.com")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request channel: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var info ChannelResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode channel: %w", err)
	}
	if info.Chatroom.ID == 0 {
		return nil, fmt.Errorf("channel %s has no chatroom", slug)
	}

	return &info, nil
}

// convertMessage converts a Kick ChatMessage to our message format
func (c *Connector) convertMessage(msg kickchat.ChatMessage) (message.ChatMessage, bool) {
	slug, ok := c.idToSlug[msg.ChatroomID]
	if !ok {
		c.logger.Warn("message from unknown chatroom", "chatroom_id", msg.ChatroomID)
		return message.ChatMessage{}, false
	}

	return message.ChatMessage{
		Kind:        message.KindText,
		Author:      msg.Sender.Username,
		Text:        msg.Content,
		PublishedAt: msg.CreatedAt.UTC().Format(time.RFC3339),
		Platform:    "kick:" + slug,
	}, true
}
