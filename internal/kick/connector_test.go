package kick

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	kickchat "github.com/johanvandegriff/kick-chat-wrapper"
	"github.com/john/prayerlog/internal/message"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/igreja":
			w.Write([]byte(`{"id": 7, "slug": "igreja", "chatroom": {"id": 4242}}`))
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(nil, testLogger())
	c.apiBase = srv.URL

	info, err := c.ResolveChannel(context.Background(), "igreja")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if info.Chatroom.ID != 4242 || info.Slug != "igreja" {
		t.Fatalf("unexpected info: %+v", info)
	}

	if _, err := c.ResolveChannel(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown channel")
	}
}

func TestConvertMessage(t *testing.T) {
	c := New(nil, testLogger())
	c.idToSlug[4242] = "igreja"

	msg := kickchat.ChatMessage{
		ChatroomID: 4242,
		Content:    "orem pela minha família",
		CreatedAt:  time.Date(2025, 4, 25, 15, 0, 0, 0, time.FixedZone("BRT", -3*3600)),
	}
	msg.Sender.Username = "maria"

	got, ok := c.convertMessage(msg)
	if !ok {
		t.Fatal("expected message to convert")
	}
	want := message.ChatMessage{
		Kind:        message.KindText,
		Author:      "maria",
		Text:        "orem pela minha família",
		PublishedAt: "2025-04-25T18:00:00Z",
		Platform:    "kick:igreja",
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	msg.ChatroomID = 1
	if _, ok := c.convertMessage(msg); ok {
		t.Fatal("expected unknown chatroom to be skipped")
	}
}
