// Package library is the local media catalog and event log, backed by
// SQLite. It records what media exists, what was watched, and which
// playback attempts were refused by policy.
package library

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database connection.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens or creates the SQLite database at the specified path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency between the daemon and CLI queries
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{conn: conn, path: path}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close checkpoints the WAL and closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.conn.Close()
	}
	return nil
}

// Flush forces a WAL checkpoint to write pending changes to the main
// database file.
func (s *Store) Flush() error {
	if s.conn != nil {
		_, err := s.conn.Exec("PRAGMA wal_checkpoint(RESTART)")
		return err
	}
	return nil
}

func (s *Store) initSchema() error {
	schema := `
	-- Media catalog
	CREATE TABLE IF NOT EXISTS media_items (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		path TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		added_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Completed or interrupted playback sessions
	CREATE TABLE IF NOT EXISTS watch_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		seconds_watched INTEGER NOT NULL DEFAULT 0
	);

	-- Playback attempts refused by policy
	CREATE TABLE IF NOT EXISTS block_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Guardian connection lifecycle events
	CREATE TABLE IF NOT EXISTS guardian_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_watch_history_item ON watch_history(item_id);
	CREATE INDEX IF NOT EXISTS idx_watch_history_started ON watch_history(started_at);
	CREATE INDEX IF NOT EXISTS idx_block_events_timestamp ON block_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_guardian_events_timestamp ON guardian_events(timestamp);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// Item represents a media item in the catalog.
type Item struct {
	ID      string
	Title   string
	Path    string
	Kind    string // "video" or "audio"
	AddedAt time.Time
}

// UpsertItem inserts an item, or returns the existing ID when the path is
// already cataloged.
func (s *Store) UpsertItem(item Item) (string, error) {
	var existing string
	err := s.conn.QueryRow(`SELECT id FROM media_items WHERE path = ?`, item.Path).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	_, err = s.conn.Exec(
		`INSERT INTO media_items (id, title, path, kind, added_at) VALUES (?, ?, ?, ?, ?)`,
		item.ID, item.Title, item.Path, item.Kind, time.Now(),
	)
	if err != nil {
		return "", err
	}
	return item.ID, nil
}

// GetItem looks up an item by ID.
func (s *Store) GetItem(id string) (Item, error) {
	var item Item
	err := s.conn.QueryRow(
		`SELECT id, title, path, kind, added_at FROM media_items WHERE id = ?`, id,
	).Scan(&item.ID, &item.Title, &item.Path, &item.Kind, &item.AddedAt)
	if err == sql.ErrNoRows {
		return Item{}, fmt.Errorf("no media item with id %q", id)
	}
	return item, err
}

// ListItems returns the full catalog ordered by title.
func (s *Store) ListItems() ([]Item, error) {
	rows, err := s.conn.Query(
		`SELECT id, title, path, kind, added_at FROM media_items ORDER BY title`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.Title, &item.Path, &item.Kind, &item.AddedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// RemoveMissing deletes catalog entries whose file no longer exists and
// returns how many were removed.
func (s *Store) RemoveMissing() (int, error) {
	items, err := s.ListItems()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, item := range items {
		if _, err := os.Stat(item.Path); os.IsNotExist(err) {
			if _, err := s.conn.Exec(`DELETE FROM media_items WHERE id = ?`, item.ID); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// WatchRecord represents one playback session in the history.
type WatchRecord struct {
	ID             int64
	ItemID         string
	SessionID      string
	StartedAt      time.Time
	EndedAt        *time.Time
	SecondsWatched int64
}

// StartWatch records the beginning of a playback session.
func (s *Store) StartWatch(itemID, sessionID string) error {
	_, err := s.conn.Exec(
		`INSERT INTO watch_history (item_id, session_id, started_at) VALUES (?, ?, ?)`,
		itemID, sessionID, time.Now(),
	)
	return err
}

// FinishWatch closes a playback session with the watched duration.
func (s *Store) FinishWatch(sessionID string, watched time.Duration) error {
	_, err := s.conn.Exec(
		`UPDATE watch_history SET ended_at = ?, seconds_watched = ? WHERE session_id = ?`,
		time.Now(), int64(watched.Seconds()), sessionID,
	)
	return err
}

// GetRecentHistory returns the most recent playback sessions.
func (s *Store) GetRecentHistory(limit int) ([]WatchRecord, error) {
	rows, err := s.conn.Query(
		`SELECT id, item_id, session_id, started_at, ended_at, seconds_watched
		 FROM watch_history
		 ORDER BY started_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []WatchRecord
	for rows.Next() {
		var r WatchRecord
		if err := rows.Scan(&r.ID, &r.ItemID, &r.SessionID, &r.StartedAt, &r.EndedAt, &r.SecondsWatched); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// SecondsWatchedSince sums the watched time of sessions started at or
// after the given time. Used for the daily screen-time budget.
func (s *Store) SecondsWatchedSince(since time.Time) (int64, error) {
	var total sql.NullInt64
	err := s.conn.QueryRow(
		`SELECT SUM(seconds_watched) FROM watch_history WHERE started_at >= ?`, since,
	).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Int64, nil
}

// LogBlockEvent records a playback attempt refused by policy. Retries
// briefly when the database is locked - this is best-effort and must not
// stall playback handling.
func (s *Store) LogBlockEvent(itemID, reason string) error {
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		_, err := s.conn.Exec(
			`INSERT INTO block_events (item_id, reason, timestamp) VALUES (?, ?, ?)`,
			itemID, reason, time.Now(),
		)
		if err == nil {
			return nil
		}
		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "SQLITE_BUSY") {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		return err
	}
	return fmt.Errorf("failed to log block event after %d retries: database locked", maxRetries)
}

// GuardianEvent represents a guardian connection lifecycle event.
type GuardianEvent struct {
	ID        int64
	EventType string
	Details   string
	Timestamp time.Time
}

// LogGuardianEvent records a guardian connection lifecycle event.
func (s *Store) LogGuardianEvent(eventType, details string) error {
	_, err := s.conn.Exec(
		`INSERT INTO guardian_events (event_type, details, timestamp) VALUES (?, ?, ?)`,
		eventType, details, time.Now(),
	)
	return err
}

// GetRecentGuardianEvents retrieves recent guardian events.
func (s *Store) GetRecentGuardianEvents(limit int) ([]GuardianEvent, error) {
	rows, err := s.conn.Query(
		`SELECT id, event_type, details, timestamp
		 FROM guardian_events
		 ORDER BY timestamp DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []GuardianEvent
	for rows.Next() {
		var e GuardianEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
