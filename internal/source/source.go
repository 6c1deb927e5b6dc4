// Package source defines how the monitor pulls chat messages from a platform.
package source

import (
	"context"
	"errors"
	"time"

	"github.com/john/prayerlog/internal/message"
)

// ErrChatClosed is returned when the chat has ended and no more batches will arrive
var ErrChatClosed = errors.New("chat closed")

// Batch is one page of chat messages
type Batch struct {
	Messages       []message.ChatMessage
	NextCursor     string        // Opaque token to resume polling
	SuggestedDelay time.Duration // Source's hint before the next fetch
}

// Source yields successive batches of chat messages.
// An empty cursor requests the first page.
type Source interface {
	FetchNextBatch(ctx context.Context, cursor string) (Batch, error)
}
