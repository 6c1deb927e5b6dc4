package uploader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	fails   int
	calls   int
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.fails > 0 {
		f.fails--
		return nil, errors.New("service unavailable")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = make(map[string]string)
	}
	f.objects[*in.Key] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func testOptions() Options {
	return Options{Bucket: "archive", Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestGenerateS3Key(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
		wantErr  bool
	}{
		{"simple", "prayers_20250425_183000.jsonl", "2025/04/25/prayers/prayers_20250425_183000.jsonl", false},
		{"underscored prefix", "culto_domingo_20251230_090500.jsonl", "2025/12/30/culto_domingo/culto_domingo_20251230_090500.jsonl", false},
		{"too few parts", "prayers.jsonl", "", true},
		{"bad timestamp", "prayers_2025_1830.jsonl", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := generateS3Key(tt.filename)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUploadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "prayers_20250425_180000.jsonl", "{}\n")
	active := writeFile(t, dir, "prayers_20250425_190000.jsonl", "{}\n")
	writeFile(t, dir, "notes.txt", "ignored")

	fake := &fakeS3{}
	opts := testOptions()
	opts.KeyPrefix = "/live/"
	opts.DeleteAfter = true
	opts.IsActive = func(p string) bool { return p == active }
	u := newUploader(fake, opts)

	n, err := u.UploadDir(context.Background(), dir)
	if err != nil || n != 1 {
		t.Fatalf("UploadDir = %d, %v", n, err)
	}
	keys := fake.keys()
	if len(keys) != 1 || keys[0] != "live/2025/04/25/prayers/prayers_20250425_180000.jsonl" {
		t.Fatalf("keys = %v", keys)
	}
	if _, err := os.Stat(filepath.Join(dir, "prayers_20250425_180000.jsonl")); !os.IsNotExist(err) {
		t.Error("uploaded file should be deleted")
	}
	if _, err := os.Stat(active); err != nil {
		t.Error("active file must be left alone")
	}
}

func TestUploadDirSkipsAlreadyUploaded(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "prayers_20250425_180000.jsonl", "{}\n")

	fake := &fakeS3{}
	u := newUploader(fake, testOptions())

	if n, _ := u.UploadDir(context.Background(), dir); n != 1 {
		t.Fatalf("first pass uploaded %d", n)
	}
	if n, _ := u.UploadDir(context.Background(), dir); n != 0 {
		t.Fatalf("second pass uploaded %d, want 0", n)
	}
	if fake.calls != 1 {
		t.Errorf("PutObject calls = %d", fake.calls)
	}
}

func TestUploadRetries(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "prayers_20250425_180000.jsonl", "line\n")

	fake := &fakeS3{fails: 2}
	opts := testOptions()
	opts.MaxRetries = 2
	u := newUploader(fake, opts)
	u.backoff = time.Millisecond

	if err := u.uploadWithRetry(context.Background(), p); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if fake.calls != 3 {
		t.Errorf("calls = %d, want 3", fake.calls)
	}

	fake.fails = 5
	u.done = make(map[string]struct{})
	if err := u.uploadWithRetry(context.Background(), p); err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
}

func TestStartUploadsQueuedFiles(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "prayers_20250425_180000.jsonl", "queued\n")

	fake := &fakeS3{}
	u := newUploader(fake, testOptions())

	fileChan := make(chan string, 1)
	fileChan <- p
	close(fileChan)

	if err := u.Start(context.Background(), dir, fileChan); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := fake.objects["2025/04/25/prayers/prayers_20250425_180000.jsonl"]; got != "queued\n" {
		t.Errorf("object body = %q", got)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	opts := testOptions()
	opts.RescanSchedule = "not a schedule"
	u := newUploader(&fakeS3{}, opts)

	if err := u.Start(context.Background(), t.TempDir(), make(chan string)); err == nil {
		t.Fatal("expected schedule parse error")
	}
}

func TestStartStopsRescanBeforeReturning(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "prayers_20250425_180000.jsonl", "first\n")

	fake := &fakeS3{}
	opts := testOptions()
	opts.RescanSchedule = "@every 10ms"
	u := newUploader(fake, opts)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- u.Start(ctx, dir, make(chan string)) }()

	deadline := time.After(5 * time.Second)
	for len(fake.keys()) == 0 {
		select {
		case <-deadline:
			t.Fatal("rescan never uploaded the existing file")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("start = %v, want context.Canceled", err)
	}

	writeFile(t, dir, "prayers_20250425_190000.jsonl", "late\n")
	time.Sleep(50 * time.Millisecond)
	if got := fake.keys(); len(got) != 1 {
		t.Errorf("keys after shutdown = %v, want only the first file", got)
	}
}
