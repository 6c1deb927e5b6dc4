package sink

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/john/prayerlog/internal/message"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// StoredRequest is a prayer request read back from SQLite
type StoredRequest struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	message.PrayerRequest
}

// SQLite stores records in a local SQLite table
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger

	mu      sync.Mutex
	entropy *rand.Rand
}

// NewSQLite opens or creates the database at path
func NewSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLite{
		db:      db,
		logger:  logger.With("sink", "sqlite", "path", path),
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS prayer_requests (
		id               TEXT PRIMARY KEY,
		timestamp        TEXT NOT NULL,
		author           TEXT NOT NULL,
		content          TEXT NOT NULL,
		original_content TEXT NOT NULL,
		probability      TEXT NOT NULL,
		created_at       TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_prayer_requests_created ON prayer_requests(created_at DESC);
	`)
	return err
}

func (s *SQLite) newID(now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
}

// Append inserts rec
func (s *SQLite) Append(ctx context.Context, rec message.PrayerRequest) bool {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prayer_requests (id, timestamp, author, content, original_content, probability, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.newID(now), rec.Timestamp, rec.Author, rec.Content, rec.OriginalContent, rec.Probability,
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		s.logger.Error("failed to insert record", "author", rec.Author, "error", err)
		return false
	}
	return true
}

// List returns the most recent requests first; limit <= 0 returns all
func (s *SQLite) List(ctx context.Context, limit int) ([]StoredRequest, error) {
	query := `SELECT id, timestamp, author, content, original_content, probability, created_at
		FROM prayer_requests ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	var out []StoredRequest
	for rows.Next() {
		var (
			r         StoredRequest
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Author, &r.Content, &r.OriginalContent, &r.Probability, &createdAt); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Layout returns LayoutFull
func (s *SQLite) Layout() Layout { return LayoutFull }

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}
