package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/john/prayerlog/internal/message"
)

func readJSONL(t *testing.T, path string) []message.PrayerRequest {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var out []message.PrayerRequest
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec message.PrayerRequest
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		out = append(out, rec)
	}
	return out
}

func TestJSONLRotatesOnTime(t *testing.T) {
	dir := t.TempDir()
	completed := make(chan string, 4)

	j, err := NewJSONL(dir, JSONLOptions{
		Prefix:      "test",
		RotateAfter: time.Hour,
		Completed:   completed,
		Logger:      testLogger(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	now := time.Date(2025, 4, 25, 18, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }
	ctx := context.Background()

	if !j.Append(ctx, sampleRequest) || !j.Append(ctx, sampleRequest) {
		t.Fatal("append failed")
	}
	first := filepath.Join(dir, "test_20250425_180000.jsonl")
	if !j.IsActive(first) {
		t.Error("first file should be active")
	}
	if got := readJSONL(t, first); len(got) != 2 || got[0].Author != "Maria Silva" {
		t.Fatalf("first file = %v", got)
	}

	now = now.Add(time.Hour)
	if !j.Append(ctx, sampleRequest) {
		t.Fatal("append after rotation failed")
	}

	if j.IsActive(first) {
		t.Error("rotated file still reported active")
	}

	select {
	case path := <-completed:
		if path != first {
			t.Errorf("completed = %s, want %s", path, first)
		}
	default:
		t.Fatal("rotated file not reported")
	}

	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	second := <-completed
	if filepath.Base(second) != "test_20250425_190000.jsonl" {
		t.Errorf("second file = %s", second)
	}
	if got := readJSONL(t, second); len(got) != 1 {
		t.Errorf("second file records = %d", len(got))
	}
}

func TestJSONLRotatesOnSize(t *testing.T) {
	dir := t.TempDir()
	completed := make(chan string, 4)

	j, err := NewJSONL(dir, JSONLOptions{RotateMegabytes: 1, Completed: completed, Logger: testLogger()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer j.Close()
	now := time.Date(2025, 4, 25, 18, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }

	j.Append(context.Background(), sampleRequest)
	j.bytesWritten = j.rotateBytes
	now = now.Add(time.Second)
	j.Append(context.Background(), sampleRequest)

	if len(completed) != 1 {
		t.Fatalf("completed = %d, want 1", len(completed))
	}
	if path := <-completed; filepath.Base(path) != "prayers_20250425_180000.jsonl" {
		t.Errorf("rotated = %s", path)
	}
}

func TestJSONLRotatesIdleFile(t *testing.T) {
	dir := t.TempDir()
	completed := make(chan string, 4)

	j, err := NewJSONL(dir, JSONLOptions{
		RotateAfter:   time.Hour,
		CheckInterval: 10 * time.Millisecond,
		Completed:     completed,
		Logger:        testLogger(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer j.Close()

	now := time.Date(2025, 4, 25, 18, 0, 0, 0, time.UTC)
	j.mu.Lock()
	j.now = func() time.Time { return now }
	j.mu.Unlock()

	if !j.Append(context.Background(), sampleRequest) {
		t.Fatal("append failed")
	}

	j.mu.Lock()
	now = now.Add(time.Hour)
	j.mu.Unlock()

	select {
	case path := <-completed:
		if filepath.Base(path) != "prayers_20250425_180000.jsonl" {
			t.Errorf("completed = %s", path)
		}
		if j.IsActive(path) {
			t.Error("rotated file still reported active")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("idle file was not rotated")
	}
}

func TestJSONLCloseTwice(t *testing.T) {
	j, err := NewJSONL(t.TempDir(), JSONLOptions{Logger: testLogger()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestJSONLFullQueueDoesNotBlock(t *testing.T) {
	completed := make(chan string)
	j, err := NewJSONL(t.TempDir(), JSONLOptions{Completed: completed, Logger: testLogger()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	j.Append(context.Background(), sampleRequest)

	done := make(chan struct{})
	go func() {
		j.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on a full upload queue")
	}
}
