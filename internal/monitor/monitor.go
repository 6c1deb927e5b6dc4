// Package monitor drives the polling loop from a chat source to a sink.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/john/prayerlog/internal/message"
	"github.com/john/prayerlog/internal/processor"
	"github.com/john/prayerlog/internal/sink"
	"github.com/john/prayerlog/internal/source"
)

const (
	DefaultMinInterval = 10 * time.Second
	DefaultRetryDelay  = 5 * time.Second
)

// Stats counts what a run has processed so far
type Stats struct {
	StartedAt    time.Time `json:"started_at"`
	LastBatchAt  time.Time `json:"last_batch_at"`
	Batches      int       `json:"batches"`
	Messages     int       `json:"messages"`
	Detected     int       `json:"detected"`
	Written      int       `json:"written"`
	Failed       int       `json:"failed"`
	FetchErrors  int       `json:"fetch_errors"`
	FormatErrors int       `json:"format_errors"`
}

// Options configures a Monitor
type Options struct {
	// MinInterval is the shortest wait between fetches
	MinInterval time.Duration
	// RetryDelay is the wait after a failed fetch
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// Monitor polls a source, classifies each batch and appends detected
// prayer requests to a sink
type Monitor struct {
	src         source.Source
	proc        *processor.Processor
	sink        sink.Sink
	minInterval time.Duration
	retryDelay  time.Duration
	logger      *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex
	stats Stats
}

// New creates a monitor
func New(src source.Source, proc *processor.Processor, snk sink.Sink, opts Options) *Monitor {
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Monitor{
		src:         src,
		proc:        proc,
		sink:        snk,
		minInterval: opts.MinInterval,
		retryDelay:  opts.RetryDelay,
		logger:      opts.Logger.With("component", "monitor"),
		stop:        make(chan struct{}),
	}
}

// Run polls until ctx is cancelled, Stop is called or the chat closes.
// In-flight fetches and writes are not interrupted by Stop.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	m.stats.StartedAt = time.Now()
	m.mu.Unlock()

	m.logger.Info("monitoring started", "min_interval", m.minInterval)
	defer m.logSummary()

	cursor := ""
	for !m.stopped(ctx) {
		batch, err := m.src.FetchNextBatch(context.WithoutCancel(ctx), cursor)
		if errors.Is(err, source.ErrChatClosed) {
			m.logger.Info("chat closed, stopping")
			return nil
		}
		if err != nil {
			m.mu.Lock()
			m.stats.FetchErrors++
			m.mu.Unlock()

			m.logger.Warn("failed to fetch messages", "error", err, "retry_in", m.retryDelay)
			if !m.wait(ctx, m.retryDelay) {
				break
			}
			continue
		}

		cursor = batch.NextCursor
		m.handleBatch(ctx, batch.Messages)

		if !m.wait(ctx, max(m.minInterval, batch.SuggestedDelay)) {
			break
		}
	}

	m.logger.Info("monitoring stopped")
	return nil
}

func (m *Monitor) handleBatch(ctx context.Context, msgs []message.ChatMessage) {
	requests, err := m.proc.ProcessBatch(msgs)

	formatErrors := 0
	for _, e := range unjoin(err) {
		var fe *processor.FormatError
		if errors.As(e, &fe) {
			formatErrors++
		}
		m.logger.Warn("skipped message", "error", e)
	}

	m.mu.Lock()
	m.stats.Batches++
	m.stats.LastBatchAt = time.Now()
	m.stats.Messages += len(msgs)
	m.stats.Detected += len(requests)
	m.stats.FormatErrors += formatErrors
	m.mu.Unlock()

	if len(msgs) > 0 {
		m.logger.Debug("processed batch", "messages", len(msgs), "detected", len(requests))
	}

	for _, req := range requests {
		m.logger.Info("prayer request detected",
			"author", req.Author, "probability", req.Probability, "content", req.Content)

		ok := m.sink.Append(context.WithoutCancel(ctx), req)

		m.mu.Lock()
		if ok {
			m.stats.Written++
		} else {
			m.stats.Failed++
		}
		m.mu.Unlock()
	}
}

func unjoin(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

// wait sleeps for d and reports whether the loop should continue
func (m *Monitor) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-m.stop:
		return false
	}
}

func (m *Monitor) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-m.stop:
		return true
	default:
		return false
	}
}

// Stop asks Run to return after the current iteration
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Stats returns a snapshot of the counters
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *Monitor) logSummary() {
	s := m.Stats()
	m.logger.Info("run summary",
		"duration", time.Since(s.StartedAt).Round(time.Second),
		"batches", s.Batches,
		"messages", s.Messages,
		"detected", s.Detected,
		"written", s.Written,
		"failed", s.Failed,
		"format_errors", s.FormatErrors,
		"fetch_errors", s.FetchErrors,
	)
}
