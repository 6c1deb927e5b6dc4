// Package uploader archives rotated JSONL files to S3.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/robfig/cron/v3"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Options configures an Uploader
type Options struct {
	Bucket string
	Region string
	// KeyPrefix is prepended to every object key
	KeyPrefix string
	// Endpoint overrides the S3 endpoint (MinIO, R2); path-style addressing is used
	Endpoint string

	// RoleARN and TokenFile enable web identity federation
	RoleARN   string
	TokenFile string

	AccessKeyID     string
	SecretAccessKey string

	DeleteAfter bool
	MaxRetries  int
	// RescanSchedule is a cron expression for rescanning the output directory
	RescanSchedule string
	// IsActive reports files still being written; they are skipped by scans
	IsActive func(path string) bool
	Logger   *slog.Logger
}

// Uploader handles uploading completed JSONL files to S3
type Uploader struct {
	client      objectPutter
	bucket      string
	keyPrefix   string
	deleteAfter bool
	maxRetries  int
	backoff     time.Duration
	schedule    string
	isActive    func(string) bool
	logger      *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	done     map[string]struct{}
	wg       sync.WaitGroup
}

// New creates an uploader. Credentials come from web identity when RoleARN is
// set, from the static keys when given, and from the default chain otherwise.
func New(ctx context.Context, opts Options) (*Uploader, error) {
	if opts.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" && opts.RoleARN == "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	if opts.RoleARN != "" {
		if opts.TokenFile == "" {
			return nil, errors.New("token file is required with a role ARN")
		}
		provider := stscreds.NewWebIdentityRoleProvider(
			sts.NewFromConfig(cfg),
			opts.RoleARN,
			stscreds.IdentityTokenFile(opts.TokenFile),
		)
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newUploader(client, opts), nil
}

func newUploader(client objectPutter, opts Options) *Uploader {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	isActive := opts.IsActive
	if isActive == nil {
		isActive = func(string) bool { return false }
	}
	return &Uploader{
		client:      client,
		bucket:      opts.Bucket,
		keyPrefix:   strings.Trim(opts.KeyPrefix, "/"),
		deleteAfter: opts.DeleteAfter,
		maxRetries:  opts.MaxRetries,
		backoff:     time.Second,
		schedule:    opts.RescanSchedule,
		isActive:    isActive,
		logger:      logger.With("component", "uploader", "bucket", opts.Bucket),
		inflight:    make(map[string]struct{}),
		done:        make(map[string]struct{}),
	}
}

// pending lists the .jsonl files in dir that are neither active nor already uploaded
func (u *Uploader) pending(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		p := filepath.Join(dir, entry.Name())
		if u.isActive(p) {
			continue
		}
		if _, ok := u.done[p]; ok {
			continue
		}
		files = append(files, p)
	}
	return files, nil
}

// ScanAndUploadExisting queues every finished .jsonl file in dir for upload
func (u *Uploader) ScanAndUploadExisting(ctx context.Context, dir string) error {
	files, err := u.pending(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		u.logger.Debug("no existing files to upload", "dir", dir)
		return nil
	}

	u.logger.Info("found existing files to upload", "dir", dir, "count", len(files))
	for _, p := range files {
		u.enqueue(ctx, p)
	}
	return nil
}

// UploadDir uploads every finished .jsonl file in dir and waits for the result
func (u *Uploader) UploadDir(ctx context.Context, dir string) (int, error) {
	files, err := u.pending(dir)
	if err != nil {
		return 0, err
	}

	uploaded := 0
	var errs []error
	for _, p := range files {
		if err := u.uploadWithRetry(ctx, p); err != nil {
			errs = append(errs, err)
			continue
		}
		uploaded++
	}
	return uploaded, errors.Join(errs...)
}

// Start uploads every path received on fileChan until ctx is cancelled, and
// rescans dir on the configured schedule
func (u *Uploader) Start(ctx context.Context, dir string, fileChan <-chan string) error {
	stopRescan := func() {}
	if u.schedule != "" {
		c := cron.New(cron.WithLocation(time.UTC))
		_, err := c.AddFunc(u.schedule, func() {
			if err := u.ScanAndUploadExisting(ctx, dir); err != nil {
				u.logger.Warn("scheduled rescan failed", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("schedule rescan %q: %w", u.schedule, err)
		}
		c.Start()
		stopRescan = func() { <-c.Stop().Done() }
		u.logger.Info("rescan scheduled", "schedule", u.schedule)
	}

	// No rescan may enqueue once the final wait begins
	drain := func() {
		stopRescan()
		u.wg.Wait()
	}

	for {
		select {
		case p, ok := <-fileChan:
			if !ok {
				drain()
				return nil
			}
			u.enqueue(ctx, p)

		case <-ctx.Done():
			u.logger.Info("uploader shutting down")
			drain()
			return ctx.Err()
		}
	}
}

// enqueue uploads p in the background unless it is already being uploaded
func (u *Uploader) enqueue(ctx context.Context, p string) {
	u.mu.Lock()
	if _, busy := u.inflight[p]; busy {
		u.mu.Unlock()
		return
	}
	u.inflight[p] = struct{}{}
	u.mu.Unlock()

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		defer func() {
			u.mu.Lock()
			delete(u.inflight, p)
			u.mu.Unlock()
		}()
		if err := u.uploadWithRetry(ctx, p); err != nil {
			u.logger.Error("upload failed", "file", filepath.Base(p), "error", err)
		}
	}()
}

// uploadWithRetry uploads a file with exponential backoff
func (u *Uploader) uploadWithRetry(ctx context.Context, localPath string) error {
	filename := filepath.Base(localPath)

	key, err := u.objectKey(filename)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= u.maxRetries; attempt++ {
		lastErr = u.uploadFile(ctx, localPath, key)
		if lastErr == nil {
			u.logger.Info("uploaded file", "file", filename, "key", key)
			u.markDone(localPath)
			return nil
		}

		if attempt < u.maxRetries {
			wait := u.backoff << uint(attempt)
			u.logger.Warn("upload attempt failed", "file", filename, "attempt", attempt+1,
				"max_retries", u.maxRetries, "retry_in", wait, "error", lastErr)

			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("upload %s after %d attempts: %w", filename, u.maxRetries+1, lastErr)
}

func (u *Uploader) markDone(localPath string) {
	if u.deleteAfter {
		if err := os.Remove(localPath); err != nil {
			u.logger.Error("failed to delete local file", "file", localPath, "error", err)
		} else {
			u.logger.Info("deleted local file", "file", localPath)
			return
		}
	}
	u.mu.Lock()
	u.done[localPath] = struct{}{}
	u.mu.Unlock()
}

func (u *Uploader) uploadFile(ctx context.Context, localPath, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

func (u *Uploader) objectKey(filename string) (string, error) {
	key, err := generateS3Key(filename)
	if err != nil {
		return "", err
	}
	if u.keyPrefix != "" {
		key = path.Join(u.keyPrefix, key)
	}
	return key, nil
}

// generateS3Key generates an S3 key from a filename
// Input: prayers_20250425_183000.jsonl
// Output: 2025/04/25/prayers/prayers_20250425_183000.jsonl
func generateS3Key(filename string) (string, error) {
	name := strings.TrimSuffix(filename, ".jsonl")

	// The prefix may contain underscores, so parse from the end
	parts := strings.Split(name, "_")
	if len(parts) < 3 {
		return "", fmt.Errorf("invalid filename format: %s", filename)
	}

	prefix := strings.Join(parts[:len(parts)-2], "_")
	stamp := parts[len(parts)-2] + "_" + parts[len(parts)-1]

	t, err := time.Parse("20060102_150405", stamp)
	if err != nil {
		return "", fmt.Errorf("parse timestamp: %w", err)
	}

	return fmt.Sprintf("%04d/%02d/%02d/%s/%s", t.Year(), t.Month(), t.Day(), prefix, filename), nil
}
