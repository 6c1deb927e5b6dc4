// Package processor turns batches of raw chat messages into prayer-request records.
package processor

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/john/prayerlog/internal/detect"
	"github.com/john/prayerlog/internal/message"
)

// TimestampLayout is the record timestamp format. It carries no zone suffix;
// consumers assume the processor's fixed offset.
const TimestampLayout = "2006-01-02 15:04:05"

// DefaultOffset is the fixed shift applied to UTC publish times (UTC-3)
const DefaultOffset = -3 * time.Hour

// FormatError reports a message field that could not be parsed
type FormatError struct {
	Field string
	Value string
	Err   error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// ContentHook transforms the text stored in PrayerRequest.Content.
// The default hook is the identity.
type ContentHook func(text string) string

// Identity returns text unchanged
func Identity(text string) string { return text }

// Processor classifies chat messages and builds prayer-request records.
// It holds no mutable state and is safe for concurrent use.
type Processor struct {
	classifier *detect.Classifier
	offset     time.Duration
	content    ContentHook
}

// Option configures a Processor
type Option func(*Processor)

// WithOffset overrides the fixed offset applied to publish times
func WithOffset(d time.Duration) Option {
	return func(p *Processor) { p.offset = d }
}

// WithContentHook overrides the content transform
func WithContentHook(h ContentHook) Option {
	return func(p *Processor) {
		if h != nil {
			p.content = h
		}
	}
}

// New creates a processor; a nil classifier uses the default lexicon
func New(classifier *detect.Classifier, opts ...Option) *Processor {
	if classifier == nil {
		classifier = detect.NewClassifier(nil)
	}
	p := &Processor{
		classifier: classifier,
		offset:     DefaultOffset,
		content:    Identity,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Classify exposes the underlying classifier
func (p *Processor) Classify(text string) detect.Result {
	return p.classifier.Classify(text)
}

// BuildRequest classifies a single message. ok is false when the message is not
// a text message or is not a prayer request. A FormatError is returned when the
// message qualifies but its timestamp cannot be parsed.
func (p *Processor) BuildRequest(msg message.ChatMessage) (req message.PrayerRequest, ok bool, err error) {
	if msg.Kind != message.KindText {
		return message.PrayerRequest{}, false, nil
	}

	result := p.classifier.Classify(msg.Text)
	if !result.Detected() {
		return message.PrayerRequest{}, false, nil
	}

	ts, err := FormatTimestamp(msg.PublishedAt, p.offset)
	if err != nil {
		return message.PrayerRequest{}, false, err
	}

	return message.PrayerRequest{
		Timestamp:       ts,
		Author:          TitleCase(msg.Author),
		Content:         p.content(msg.Text),
		OriginalContent: msg.Text,
		Probability:     result.Tier.Label(),
	}, true, nil
}

// ProcessBatch returns a record for every prayer request in msgs, in input order.
// Messages with unparseable timestamps are skipped and reported in the returned
// error (an errors.Join of FormatErrors); the rest of the batch is still processed.
func (p *Processor) ProcessBatch(msgs []message.ChatMessage) ([]message.PrayerRequest, error) {
	var (
		requests []message.PrayerRequest
		errs     []error
	)

	for _, msg := range msgs {
		req, ok, err := p.BuildRequest(msg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			requests = append(requests, req)
		}
	}

	return requests, errors.Join(errs...)
}

// FormatTimestamp parses an ISO-8601 instant, shifts it by offset from UTC and
// formats it with TimestampLayout
func FormatTimestamp(publishedAt string, offset time.Duration) (string, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(publishedAt))
	if err != nil {
		return "", &FormatError{Field: "publishedAt", Value: publishedAt, Err: err}
	}
	return t.UTC().Add(offset).Format(TimestampLayout), nil
}

// TitleCase lowercases name and upper-cases the first letter of each
// whitespace-separated token. Whitespace is preserved as-is.
func TitleCase(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	atStart := true
	for _, r := range strings.ToLower(name) {
		if unicode.IsSpace(r) {
			atStart = true
			b.WriteRune(r)
			continue
		}
		if atStart {
			r = unicode.ToTitle(r)
			atStart = false
		}
		b.WriteRune(r)
	}

	return b.String()
}
