// Package youtube polls a YouTube live chat through the Data API v3.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/john/prayerlog/internal/message"
	"github.com/john/prayerlog/internal/source"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const textMessageEvent = "textMessageEvent"

// ErrNoLiveChat is returned when no active live chat can be found
var ErrNoLiveChat = errors.New("no active live chat found")

// NewService creates a YouTube API client from an authorized HTTP client
func NewService(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*youtube.Service, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create YouTube service: %w", err)
	}
	return svc, nil
}

// FindLiveChatID returns the active chat of videoID, or of the authorized
// channel's current broadcast when videoID is empty
func FindLiveChatID(ctx context.Context, svc *youtube.Service, videoID string) (string, error) {
	if videoID != "" {
		resp, err := svc.Videos.List([]string{"liveStreamingDetails"}).Id(videoID).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("list video: %w", err)
		}
		if len(resp.Items) == 0 || resp.Items[0].LiveStreamingDetails == nil ||
			resp.Items[0].LiveStreamingDetails.ActiveLiveChatId == "" {
			return "", fmt.Errorf("video %s: %w", videoID, ErrNoLiveChat)
		}
		return resp.Items[0].LiveStreamingDetails.ActiveLiveChatId, nil
	}

	resp, err := svc.LiveBroadcasts.List([]string{"snippet", "contentDetails"}).
		BroadcastStatus("active").
		MaxResults(5).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("list broadcasts: %w", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil || resp.Items[0].Snippet.LiveChatId == "" {
		return "", ErrNoLiveChat
	}
	return resp.Items[0].Snippet.LiveChatId, nil
}

// Source fetches pages of a single live chat
type Source struct {
	svc        *youtube.Service
	liveChatID string
	logger     *slog.Logger
}

// New creates a live chat source
func New(svc *youtube.Service, liveChatID string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		svc:        svc,
		liveChatID: liveChatID,
		logger:     logger.With("source", "youtube", "live_chat_id", liveChatID),
	}
}

// FetchNextBatch lists the chat messages after cursor (the page token)
func (s *Source) FetchNextBatch(ctx context.Context, cursor string) (source.Batch, error) {
	call := s.svc.LiveChatMessages.List(s.liveChatID, []string{"snippet", "authorDetails"}).Context(ctx)
	if cursor != "" {
		call = call.PageToken(cursor)
	}

	resp, err := call.Do()
	if err != nil {
		if chatClosed(err) {
			return source.Batch{}, fmt.Errorf("list chat messages: %w", source.ErrChatClosed)
		}
		return source.Batch{}, fmt.Errorf("list chat messages: %w", err)
	}

	msgs := make([]message.ChatMessage, 0, len(resp.Items))
	for _, item := range resp.Items {
		msg, ok := convertMessage(item)
		if !ok {
			continue
		}
		if msg.Kind == message.KindText {
			s.logger.Debug("chat message received", "author", msg.Author, "text", msg.Text)
		}
		msgs = append(msgs, msg)
	}

	return source.Batch{
		Messages:       msgs,
		NextCursor:     resp.NextPageToken,
		SuggestedDelay: time.Duration(resp.PollingIntervalMillis) * time.Millisecond,
	}, nil
}

// convertMessage maps an API item onto ChatMessage; items without a snippet are skipped
func convertMessage(item *youtube.LiveChatMessage) (message.ChatMessage, bool) {
	if item == nil || item.Snippet == nil {
		return message.ChatMessage{}, false
	}

	kind := message.KindOther
	if item.Snippet.Type == textMessageEvent {
		kind = message.KindText
	}

	var author string
	if item.AuthorDetails != nil {
		author = item.AuthorDetails.DisplayName
	}

	return message.ChatMessage{
		Kind:        kind,
		Author:      author,
		Text:        item.Snippet.DisplayMessage,
		PublishedAt: item.Snippet.PublishedAt,
		Platform:    "youtube",
	}, true
}

// chatClosed reports whether the API says the chat is gone for good
func chatClosed(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code == http.StatusNotFound {
		return true
	}
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "liveChatEnded", "liveChatDisabled", "liveChatNotFound":
			return true
		}
	}
	return false
}
