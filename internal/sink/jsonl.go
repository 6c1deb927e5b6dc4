package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/john/prayerlog/internal/message"
)

// FileTimeLayout is the timestamp suffix of JSONL file names
const FileTimeLayout = "20060102_150405"

// JSONLOptions configures a JSONL sink
type JSONLOptions struct {
	Prefix          string        // File name prefix, default "prayers"
	RotateAfter     time.Duration // 0 disables time-based rotation
	RotateMegabytes int           // 0 disables size-based rotation
	// CheckInterval is how often an idle file is checked for rotation, default 1m
	CheckInterval time.Duration
	// Completed receives the path of every closed file; sends never block
	Completed chan<- string
	Logger    *slog.Logger
}

// JSONL writes one JSON object per record to rotating files
type JSONL struct {
	dir         string
	prefix      string
	rotateAfter time.Duration
	rotateBytes int64
	completed   chan<- string
	logger      *slog.Logger
	now         func() time.Time

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu           sync.Mutex
	file         *os.File
	writer       *bufio.Writer
	filename     string
	createdAt    time.Time
	bytesWritten int64
}

// NewJSONL creates the output directory and returns a sink writing into it
func NewJSONL(dir string, opts JSONLOptions) (*JSONL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "prayers"
	}

	interval := opts.CheckInterval
	if interval <= 0 {
		interval = time.Minute
	}

	j := &JSONL{
		dir:         dir,
		prefix:      prefix,
		rotateAfter: opts.RotateAfter,
		rotateBytes: int64(opts.RotateMegabytes) * 1024 * 1024,
		completed:   opts.Completed,
		logger:      logger.With("sink", "jsonl", "dir", dir),
		now:         time.Now,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go j.rotateLoop(interval)
	return j, nil
}

// rotateLoop closes files that reached their limits while no records arrive
func (j *JSONL) rotateLoop(interval time.Duration) {
	defer close(j.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.checkRotation()
		case <-j.stop:
			return
		}
	}
}

func (j *JSONL) checkRotation() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file != nil && j.needsRotation() {
		j.closeFile()
	}
}

// Append writes rec and flushes it to disk
func (j *JSONL) Append(ctx context.Context, rec message.PrayerRequest) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.write(rec); err != nil {
		j.logger.Error("failed to write record", "author", rec.Author, "error", err)
		return false
	}
	return true
}

func (j *JSONL) write(rec message.PrayerRequest) error {
	if j.file != nil && j.needsRotation() {
		j.closeFile()
	}
	if j.file == nil {
		if err := j.openFile(); err != nil {
			return err
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	data = append(data, '\n')

	n, err := j.writer.Write(data)
	j.bytesWritten += int64(n)
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	return j.writer.Flush()
}

func (j *JSONL) needsRotation() bool {
	if j.rotateAfter > 0 && j.now().Sub(j.createdAt) >= j.rotateAfter {
		j.logger.Info("rotating file (time limit)", "file", j.filename)
		return true
	}
	if j.rotateBytes > 0 && j.bytesWritten >= j.rotateBytes {
		j.logger.Info("rotating file (size limit)", "file", j.filename)
		return true
	}
	return false
}

func (j *JSONL) openFile() error {
	now := j.now()
	filename := fmt.Sprintf("%s_%s.jsonl", j.prefix, now.UTC().Format(FileTimeLayout))

	file, err := os.OpenFile(filepath.Join(j.dir, filename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat file: %w", err)
	}

	j.file = file
	j.writer = bufio.NewWriter(file)
	j.filename = filename
	j.createdAt = now
	j.bytesWritten = info.Size()

	j.logger.Info("opened log file", "file", filename)
	return nil
}

// closeFile closes the current file and hands it to the completed channel
func (j *JSONL) closeFile() {
	if err := j.writer.Flush(); err != nil {
		j.logger.Error("failed to flush file", "file", j.filename, "error", err)
	}
	if err := j.file.Close(); err != nil {
		j.logger.Error("failed to close file", "file", j.filename, "error", err)
	}

	path := filepath.Join(j.dir, j.filename)
	j.file, j.writer = nil, nil

	if j.completed == nil {
		return
	}
	select {
	case j.completed <- path:
		j.logger.Info("queued file for upload", "file", filepath.Base(path))
	default:
		j.logger.Warn("upload queue full, file will be uploaded on the next scan", "file", filepath.Base(path))
	}
}

// Layout returns LayoutFull
func (j *JSONL) Layout() Layout { return LayoutFull }

// Close stops the rotation check and closes the current file
func (j *JSONL) Close() error {
	j.closeOnce.Do(func() { close(j.stop) })
	<-j.done

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file != nil {
		j.closeFile()
	}
	return nil
}

// IsActive reports whether path is the file currently being written
func (j *JSONL) IsActive(path string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.file != nil && filepath.Join(j.dir, j.filename) == filepath.Clean(path)
}
