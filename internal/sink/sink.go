// Package sink persists prayer-request records.
package sink

import (
	"context"
	"errors"
	"log/slog"

	"github.com/john/prayerlog/internal/message"
)

// Layout is the set of columns a sink persists
type Layout int

const (
	// LayoutFull stores timestamp, author, content, original content and probability
	LayoutFull Layout = iota
	// LayoutBrief stores timestamp, author and content
	LayoutBrief
)

func (l Layout) String() string {
	if l == LayoutBrief {
		return "brief"
	}
	return "full"
}

var fullHeaders = []string{"Data/Hora", "Autor da Mensagem", "Pedido de Oração", "Texto Original", "Probabilidade"}

// Headers returns the column titles for the layout
func (l Layout) Headers() []string {
	if l == LayoutBrief {
		return append([]string(nil), fullHeaders[:3]...)
	}
	return append([]string(nil), fullHeaders...)
}

// Row returns the record's cells for the layout
func (l Layout) Row(rec message.PrayerRequest) []string {
	row := rec.Row()
	if l == LayoutBrief {
		return row[:3]
	}
	return row
}

// Sink is an append-only destination for prayer requests.
// Append reports whether the record was stored; implementations log their own errors.
type Sink interface {
	Append(ctx context.Context, rec message.PrayerRequest) bool
	Layout() Layout
	Close() error
}

// Fanout writes to a primary sink and any number of secondary sinks.
// Only the primary sink decides the result; secondary failures are logged.
type Fanout struct {
	primary   Sink
	secondary []Sink
	logger    *slog.Logger
}

// NewFanout creates a fanout sink
func NewFanout(primary Sink, secondary []Sink, logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{primary: primary, secondary: secondary, logger: logger}
}

// Append writes rec to every sink
func (f *Fanout) Append(ctx context.Context, rec message.PrayerRequest) bool {
	ok := f.primary.Append(ctx, rec)
	for i, s := range f.secondary {
		if !s.Append(ctx, rec) {
			f.logger.Warn("secondary sink rejected record", "sink", i, "author", rec.Author)
		}
	}
	return ok
}

// Layout returns the primary sink's layout
func (f *Fanout) Layout() Layout {
	return f.primary.Layout()
}

// Close closes every sink
func (f *Fanout) Close() error {
	errs := []error{f.primary.Close()}
	for _, s := range f.secondary {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

func toCells(row []string) []interface{} {
	cells := make([]interface{}, len(row))
	for i, v := range row {
		cells[i] = v
	}
	return cells
}
