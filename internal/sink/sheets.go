package sink

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/john/prayerlog/internal/message"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/sheets/v4"
)

// DefaultWritePause keeps appends under the Sheets API write quota
const DefaultWritePause = 5 * time.Second

var spreadsheetURLPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)

// Sheets appends records to the first worksheet of a Google spreadsheet
type Sheets struct {
	svc        *sheets.Service
	id         string
	url        string
	title      string
	sheetID    int64
	writePause time.Duration
	logger     *slog.Logger
	mu         sync.Mutex
}

// SheetsOptions configures OpenSheets
type SheetsOptions struct {
	// Drive is used to look spreadsheets up by title; optional
	Drive      *drive.Service
	WritePause time.Duration
	Logger     *slog.Logger
}

// OpenSheets opens a spreadsheet by URL, key or title and makes sure the
// header row matches the column contract
func OpenSheets(ctx context.Context, svc *sheets.Service, identifier string, opts SheetsOptions) (*Sheets, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id, err := resolveSpreadsheetID(ctx, opts.Drive, identifier)
	if err != nil {
		return nil, err
	}

	ss, err := svc.Spreadsheets.Get(id).Fields("spreadsheetUrl", "sheets.properties").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet %s: %w", id, err)
	}
	if len(ss.Sheets) == 0 || ss.Sheets[0].Properties == nil {
		return nil, fmt.Errorf("spreadsheet %s has no worksheets", id)
	}

	s := &Sheets{
		svc:        svc,
		id:         id,
		url:        ss.SpreadsheetUrl,
		title:      ss.Sheets[0].Properties.Title,
		sheetID:    ss.Sheets[0].Properties.SheetId,
		writePause: opts.WritePause,
		logger:     logger.With("sink", "sheets", "spreadsheet", id),
	}

	if err := s.ensureHeaders(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// resolveSpreadsheetID accepts a spreadsheet URL, a key, or a title
func resolveSpreadsheetID(ctx context.Context, driveSvc *drive.Service, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	switch {
	case identifier == "":
		return "", fmt.Errorf("spreadsheet identifier is required")
	case strings.HasPrefix(identifier, "http"):
		m := spreadsheetURLPattern.FindStringSubmatch(identifier)
		if m == nil {
			return "", fmt.Errorf("not a spreadsheet URL: %s", identifier)
		}
		return m[1], nil
	case len(identifier) > 30:
		return identifier, nil
	}

	if driveSvc == nil {
		return "", fmt.Errorf("looking up spreadsheet %q by title requires Drive access", identifier)
	}

	q := fmt.Sprintf("name = '%s' and mimeType = 'application/vnd.google-apps.spreadsheet' and trashed = false",
		strings.ReplaceAll(identifier, "'", `\'`))
	list, err := driveSvc.Files.List().Q(q).Fields("files(id, name)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("search spreadsheet %q: %w", identifier, err)
	}
	if len(list.Files) == 0 {
		return "", fmt.Errorf("spreadsheet not found: %s", identifier)
	}
	return list.Files[0].Id, nil
}

func (s *Sheets) a1(cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(s.title, "'", "''"), cells)
}

// ensureHeaders rewrites and formats the first row when it differs from the expected headers
func (s *Sheets) ensureHeaders(ctx context.Context) error {
	headers := LayoutFull.Headers()

	existing, err := s.svc.Spreadsheets.Values.Get(s.id, s.a1("A1:E1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header row: %w", err)
	}
	if len(existing.Values) == 1 && sameRow(existing.Values[0], headers) {
		return nil
	}

	s.logger.Info("writing header row")
	_, err = s.svc.Spreadsheets.Values.Update(s.id, s.a1("A1:E1"), &sheets.ValueRange{
		Values: [][]interface{}{toCells(headers)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header row: %w", err)
	}

	_, err = s.svc.Spreadsheets.BatchUpdate(s.id, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          s.sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   int64(len(headers)),
				},
				Cell: &sheets.CellData{UserEnteredFormat: &sheets.CellFormat{
					TextFormat:          &sheets.TextFormat{Bold: true},
					HorizontalAlignment: "CENTER",
					BackgroundColor:     &sheets.Color{Red: 0.9, Green: 0.9, Blue: 0.9},
				}},
				Fields: "userEnteredFormat(textFormat,horizontalAlignment,backgroundColor)",
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("format header row: %w", err)
	}

	return nil
}

func sameRow(cells []interface{}, want []string) bool {
	if len(cells) != len(want) {
		return false
	}
	for i, c := range cells {
		if fmt.Sprint(c) != want[i] {
			return false
		}
	}
	return true
}

// URL returns the spreadsheet's web address
func (s *Sheets) URL() string {
	return s.url
}

// Append adds one row, then waits out the write pause and resizes the columns
func (s *Sheets) Append(ctx context.Context, rec message.PrayerRequest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.svc.Spreadsheets.Values.Append(s.id, s.a1("A1"), &sheets.ValueRange{
		Values: [][]interface{}{toCells(LayoutFull.Row(rec))},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		s.logger.Error("failed to append row", "author", rec.Author, "error", err)
		return false
	}

	if s.writePause > 0 {
		select {
		case <-time.After(s.writePause):
		case <-ctx.Done():
			return true
		}
	}

	s.autoResize(ctx)
	return true
}

func (s *Sheets) autoResize(ctx context.Context) {
	_, err := s.svc.Spreadsheets.BatchUpdate(s.id, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    s.sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   int64(len(fullHeaders)),
				},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		s.logger.Warn("failed to resize columns", "error", err)
	}
}

// Layout returns LayoutFull
func (s *Sheets) Layout() Layout { return LayoutFull }

// Close is a no-op; the API client holds no resources
func (s *Sheets) Close() error { return nil }
