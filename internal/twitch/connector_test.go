package twitch

import (
	"testing"
	"time"

	"github.com/gempir/go-twitch-irc/v4"
	"github.com/john/prayerlog/internal/message"
)

func TestToChatMessage(t *testing.T) {
	sent := time.Date(2025, 4, 25, 18, 0, 0, 0, time.UTC)
	got := toChatMessage(twitch.PrivateMessage{
		User:    twitch.User{Name: "maria", DisplayName: "Maria"},
		Message: "ore por mim",
		Channel: "#igreja",
		Time:    sent,
	})

	want := message.ChatMessage{
		Kind:        message.KindText,
		Author:      "Maria",
		Text:        "ore por mim",
		PublishedAt: "2025-04-25T18:00:00Z",
		Platform:    "twitch:igreja",
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestToChatMessageFallbacks(t *testing.T) {
	got := toChatMessage(twitch.PrivateMessage{
		User:    twitch.User{Name: "joao"},
		Message: "oi",
		Channel: "igreja",
	})
	if got.Author != "joao" {
		t.Errorf("author = %q", got.Author)
	}
	if _, err := time.Parse(time.RFC3339, got.PublishedAt); err != nil {
		t.Errorf("published at %q: %v", got.PublishedAt, err)
	}
}
