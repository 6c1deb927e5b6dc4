package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/john/prayerlog/internal/message"
	"github.com/xuri/excelize/v2"
)

// XLSXSheetName is the worksheet created in new workbooks
const XLSXSheetName = "Pedidos de Oração"

// XLSX appends rows to a local Excel workbook. The workbook is reopened on every
// append so it can be inspected (or edited) while the monitor runs.
type XLSX struct {
	path   string
	layout Layout
	logger *slog.Logger
	mu     sync.Mutex
}

// NewXLSX creates the workbook with a header row if it does not exist yet
func NewXLSX(path string, layout Layout, logger *slog.Logger) (*XLSX, error) {
	if logger == nil {
		logger = slog.Default()
	}
	x := &XLSX{path: path, layout: layout, logger: logger.With("sink", "xlsx", "path", path)}

	if _, err := os.Stat(path); err == nil {
		return x, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat workbook: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create workbook dir: %w", err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), XLSXSheetName); err != nil {
		return nil, fmt.Errorf("name worksheet: %w", err)
	}
	headers := toCells(layout.Headers())
	if err := f.SetSheetRow(XLSXSheetName, "A1", &headers); err != nil {
		return nil, fmt.Errorf("write header row: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return nil, fmt.Errorf("save workbook: %w", err)
	}

	x.logger.Info("created workbook")
	return x, nil
}

// Append writes rec below the last used row of the active worksheet
func (x *XLSX) Append(ctx context.Context, rec message.PrayerRequest) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.appendRow(x.layout.Row(rec)); err != nil {
		x.logger.Error("failed to append row", "author", rec.Author, "error", err)
		return false
	}
	return true
}

func (x *XLSX) appendRow(row []string) error {
	f, err := excelize.OpenFile(x.path)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("read rows: %w", err)
	}

	cell, err := excelize.CoordinatesToCellName(1, len(rows)+1)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	cells := toCells(row)
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("write row: %w", err)
	}

	if err := f.Save(); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// Layout returns the configured layout
func (x *XLSX) Layout() Layout { return x.layout }

// Close is a no-op; the workbook is closed after every append
func (x *XLSX) Close() error { return nil }
