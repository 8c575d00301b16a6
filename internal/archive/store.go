package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

const defaultBusyTimeout = 5000

// Store wraps the SQLite handle holding the local message archive and the
// remembered profile. One database serves all rooms the client has joined.
type Store struct {
	db *sql.DB
}

// ArchivedMessage is one row of a room's archived history.
type ArchivedMessage struct {
	Room      string
	UserID    string
	UserName  string
	Body      string
	Kind      string
	FileURL   string
	FileType  string
	Timestamp int64
}

// NewStore initializes the SQLite database at the provided path. Call Close
// when done.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "roomchat.db"
	}
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=foreign_keys=ON", path, separator, defaultBusyTimeout)
}

// Migrate runs the schema creation statements.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			room TEXT NOT NULL,
			user_id TEXT NOT NULL,
			user_name TEXT NOT NULL,
			body TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'chat',
			file_url TEXT NOT NULL DEFAULT '',
			file_type TEXT NOT NULL DEFAULT '',
			ts INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room, id);`,
		`CREATE TABLE IF NOT EXISTS profile (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AppendMessage archives one live message in arrival order.
func (s *Store) AppendMessage(ctx context.Context, msg ArchivedMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(room, user_id, user_name, body, kind, file_url, file_type, ts)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.Room, msg.UserID, msg.UserName, msg.Body, msg.Kind, msg.FileURL, msg.FileType, msg.Timestamp)
	return err
}

// ReplaceHistory swaps a room's archived rows for the server's history
// snapshot in one transaction, mirroring the wholesale-replace semantics
// of the history event.
func (s *Store) ReplaceHistory(ctx context.Context, room string, msgs []ArchivedMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE room = ?`, room); err != nil {
		return err
	}
	for _, msg := range msgs {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO messages(room, user_id, user_name, body, kind, file_url, file_type, ts)
			 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
			room, msg.UserID, msg.UserName, msg.Body, msg.Kind, msg.FileURL, msg.FileType, msg.Timestamp); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecentMessages returns up to limit archived messages for a room, oldest
// first.
func (s *Store) RecentMessages(ctx context.Context, room string, limit int) ([]ArchivedMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT room, user_id, user_name, body, kind, file_url, file_type, ts
		FROM (
			SELECT id, room, user_id, user_name, body, kind, file_url, file_type, ts
			FROM messages WHERE room = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`, room, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []ArchivedMessage
	for rows.Next() {
		var msg ArchivedMessage
		if err := rows.Scan(&msg.Room, &msg.UserID, &msg.UserName, &msg.Body, &msg.Kind, &msg.FileURL, &msg.FileType, &msg.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return msgs, nil
}

const profileNameKey = "display_name"

// SaveDisplayName remembers the display name for the next session.
func (s *Store) SaveDisplayName(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profile(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		profileNameKey, name)
	return err
}

// LoadDisplayName returns the remembered display name, or "" when none was
// saved yet.
func (s *Store) LoadDisplayName(ctx context.Context) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM profile WHERE key = ?`, profileNameKey)
	var name string
	if err := row.Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return name, nil
}
