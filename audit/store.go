package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"

	"tokensale/core/events"
)

// Store persists engine events in sqlite for operator audit trails. The
// on-chain-style KV ledger stays authoritative; this store only mirrors the
// event stream for querying.
type Store struct {
	db *sql.DB
}

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("audit: store path must be configured")

const schema = `
CREATE TABLE IF NOT EXISTS sale_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_type TEXT NOT NULL,
    attributes TEXT NOT NULL,
    recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sale_events_type ON sale_events(event_type);
CREATE INDEX IF NOT EXISTS idx_sale_events_recorded ON sale_events(recorded_at);
`

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StoredEvent is one audit row.
type StoredEvent struct {
	ID         int64
	Type       string
	Attributes map[string]string
	RecordedAt time.Time
}

// RecordEvent persists one event record.
func (s *Store) RecordEvent(ctx context.Context, record *events.Record, recorded time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("audit: store not configured")
	}
	if record == nil || record.Type == "" {
		return fmt.Errorf("audit: event record required")
	}
	attrs, err := json.Marshal(record.Attributes)
	if err != nil {
		return fmt.Errorf("audit: encode attributes: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO sale_events(event_type, attributes, recorded_at)
        VALUES(?, ?, ?)
    `, record.Type, string(attrs), recorded.UTC().Unix())
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

// EventsByType returns up to limit events of the given type, newest first.
func (s *Store) EventsByType(ctx context.Context, eventType string, limit int) ([]StoredEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("audit: store not configured")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, event_type, attributes, recorded_at
        FROM sale_events
        WHERE event_type = ?
        ORDER BY id DESC
        LIMIT ?
    `, strings.TrimSpace(eventType), limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// RecentEvents returns up to limit events across all types, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]StoredEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("audit: store not configured")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, event_type, attributes, recorded_at
        FROM sale_events
        ORDER BY id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// CountByType returns the number of stored events per type.
func (s *Store) CountByType(ctx context.Context) (map[string]int64, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("audit: store not configured")
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT event_type, COUNT(*)
        FROM sale_events
        GROUP BY event_type
    `)
	if err != nil {
		return nil, fmt.Errorf("audit: count events: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]int64)
	for rows.Next() {
		var eventType string
		var count int64
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("audit: scan count: %w", err)
		}
		counts[eventType] = count
	}
	return counts, rows.Err()
}

func scanEvents(rows *sql.Rows) ([]StoredEvent, error) {
	var out []StoredEvent
	for rows.Next() {
		var (
			evt      StoredEvent
			rawAttrs string
			recorded int64
		)
		if err := rows.Scan(&evt.ID, &evt.Type, &rawAttrs, &recorded); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(rawAttrs), &evt.Attributes); err != nil {
			return nil, fmt.Errorf("audit: decode attributes: %w", err)
		}
		evt.RecordedAt = time.Unix(recorded, 0).UTC()
		out = append(out, evt)
	}
	return out, rows.Err()
}
