package source

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/john/prayerlog/internal/message"
)

// Buffer adapts a push-based chat connection (IRC, websocket) to Source.
// Connectors Push messages as they arrive and the monitor drains them on each fetch.
type Buffer struct {
	mu       sync.Mutex
	pending  []message.ChatMessage
	capacity int
	dropped  int
	seq      int
	closed   bool
	delay    time.Duration
}

// NewBuffer creates a buffer holding at most capacity messages between fetches;
// the oldest messages are dropped when it overflows
func NewBuffer(capacity int, delay time.Duration) *Buffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Buffer{capacity: capacity, delay: delay}
}

// Push appends a message
func (b *Buffer) Push(msg message.ChatMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if len(b.pending) >= b.capacity {
		b.pending = b.pending[1:]
		b.dropped++
	}
	b.pending = append(b.pending, msg)
}

// Close marks the stream as finished. Buffered messages are still returned
// before ErrChatClosed.
func (b *Buffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// Dropped returns how many messages were discarded on overflow
func (b *Buffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// FetchNextBatch drains everything pushed since the previous fetch.
// The cursor is a running batch counter and is not interpreted.
func (b *Buffer) FetchNextBatch(ctx context.Context, cursor string) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed && len(b.pending) == 0 {
		return Batch{}, ErrChatClosed
	}

	msgs := b.pending
	b.pending = nil
	b.seq++

	return Batch{
		Messages:       msgs,
		NextCursor:     strconv.Itoa(b.seq),
		SuggestedDelay: b.delay,
	}, nil
}
