package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/john/prayerlog/internal/message"
)

func TestBufferDrainsInOrder(t *testing.T) {
	b := NewBuffer(10, 2*time.Second)
	b.Push(message.ChatMessage{Text: "one"})
	b.Push(message.ChatMessage{Text: "two"})

	batch, err := b.FetchNextBatch(context.Background(), "")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(batch.Messages) != 2 || batch.Messages[0].Text != "one" || batch.Messages[1].Text != "two" {
		t.Fatalf("unexpected batch: %+v", batch.Messages)
	}
	if batch.SuggestedDelay != 2*time.Second || batch.NextCursor != "1" {
		t.Fatalf("unexpected delay/cursor: %v %q", batch.SuggestedDelay, batch.NextCursor)
	}

	batch, err = b.FetchNextBatch(context.Background(), batch.NextCursor)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(batch.Messages) != 0 {
		t.Fatalf("want empty batch, got %d", len(batch.Messages))
	}
}

func TestBufferOverflowDropsOldest(t *testing.T) {
	b := NewBuffer(2, 0)
	for _, s := range []string{"a", "b", "c"} {
		b.Push(message.ChatMessage{Text: s})
	}

	batch, _ := b.FetchNextBatch(context.Background(), "")
	if len(batch.Messages) != 2 || batch.Messages[0].Text != "b" {
		t.Fatalf("unexpected batch: %+v", batch.Messages)
	}
	if b.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", b.Dropped())
	}
}

func TestBufferClose(t *testing.T) {
	b := NewBuffer(5, 0)
	b.Push(message.ChatMessage{Text: "last"})
	b.Close()
	b.Push(message.ChatMessage{Text: "ignored"})

	batch, err := b.FetchNextBatch(context.Background(), "")
	if err != nil || len(batch.Messages) != 1 {
		t.Fatalf("want final message, got %v %+v", err, batch.Messages)
	}

	if _, err := b.FetchNextBatch(context.Background(), ""); !errors.Is(err, ErrChatClosed) {
		t.Fatalf("want ErrChatClosed, got %v", err)
	}
}

func TestBufferCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewBuffer(1, 0).FetchNextBatch(ctx, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
