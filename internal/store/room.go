package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const roomSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	nickname TEXT NOT NULL,
	email TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS heartbeats (
	client_id TEXT PRIMARY KEY,
	last_seen INTEGER NOT NULL
);`

// RoomStore is the isolated storage unit for a single room: its message
// log and its heartbeat table. One SQLite database file per room.
type RoomStore struct {
	conn *sql.DB
}

// sqliteDSN builds the file: URI for a database path. SQLite
// percent-decodes the path component of a URI, so literal % signs in
// the filename must be re-encoded or the file opened diverges from the
// one on disk.
func sqliteDSN(path string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_loc=UTC", strings.ReplaceAll(path, "%", "%25"))
}

func OpenRoomStore(path string) (*RoomStore, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(roomSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init room schema: %w", err)
	}

	return &RoomStore{conn: db}, nil
}

func (s *RoomStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *RoomStore) AppendMessage(nickname, email, content string, at time.Time) (Message, error) {
	res := s.conn.QueryRow(
		"INSERT INTO messages (nickname, email, content, created_at) "+
			"VALUES (?, ?, ?, ?) RETURNING id, nickname, email, content, created_at",
		nickname,
		email,
		content,
		at.UTC(),
	)

	var m Message
	err := res.Scan(
		&m.Id,
		&m.Nickname,
		&m.Email,
		&m.Content,
		&m.CreatedAt,
	)

	return m, err
}

func (s *RoomStore) GetMessage(id int) (Message, error) {
	row := s.conn.QueryRow(
		"SELECT id, nickname, email, content, created_at FROM messages "+
			"WHERE id = ? LIMIT 1",
		id,
	)

	var m Message
	err := row.Scan(
		&m.Id,
		&m.Nickname,
		&m.Email,
		&m.Content,
		&m.CreatedAt,
	)

	return m, err
}

func (s *RoomStore) DeleteMessage(id int) error {
	_, err := s.conn.Exec("DELETE FROM messages WHERE id = ?", id)
	return err
}

func (s *RoomStore) CountMessages() (int, error) {
	var count int
	err := s.conn.QueryRow("SELECT COUNT(*) FROM messages").Scan(&count)
	return count, err
}

// MessagesPage returns a window of the log, newest first.
func (s *RoomStore) MessagesPage(offset, limit int) ([]Message, error) {
	rows, err := s.conn.Query(
		"SELECT id, nickname, email, content, created_at FROM messages "+
			"ORDER BY id DESC LIMIT ? OFFSET ?",
		limit,
		offset,
	)
	if err != nil {
		return nil, err
	}

	return scanMessages(rows)
}

// MessagesSince returns every message with id greater than sinceId in
// ascending order, uncapped.
func (s *RoomStore) MessagesSince(sinceId int) ([]Message, error) {
	rows, err := s.conn.Query(
		"SELECT id, nickname, email, content, created_at FROM messages "+
			"WHERE id > ? ORDER BY id ASC",
		sinceId,
	)
	if err != nil {
		return nil, err
	}

	return scanMessages(rows)
}

// MessagesBefore returns up to limit messages with id less than
// beforeId, newest of the older slice first.
func (s *RoomStore) MessagesBefore(beforeId, limit int) ([]Message, error) {
	rows, err := s.conn.Query(
		"SELECT id, nickname, email, content, created_at FROM messages "+
			"WHERE id < ? ORDER BY id DESC LIMIT ?",
		beforeId,
		limit,
	)
	if err != nil {
		return nil, err
	}

	return scanMessages(rows)
}

func (s *RoomStore) CountBefore(beforeId int) (int, error) {
	var count int
	err := s.conn.QueryRow("SELECT COUNT(*) FROM messages WHERE id < ?", beforeId).Scan(&count)
	return count, err
}

// HasMessageBelow reports whether any message exists with an id
// strictly less than id.
func (s *RoomStore) HasMessageBelow(id int) (bool, error) {
	var exists bool
	err := s.conn.QueryRow("SELECT EXISTS(SELECT 1 FROM messages WHERE id < ?)", id).Scan(&exists)
	return exists, err
}

// UpsertHeartbeat records a liveness signal for clientId,
// last-writer-wins on concurrent beats for the same client.
func (s *RoomStore) UpsertHeartbeat(clientId string, at time.Time) error {
	_, err := s.conn.Exec(
		"INSERT INTO heartbeats (client_id, last_seen) VALUES (?, ?) "+
			"ON CONFLICT(client_id) DO UPDATE SET last_seen = excluded.last_seen",
		clientId,
		at.Unix(),
	)
	return err
}

func (s *RoomStore) PurgeHeartbeatsBefore(cutoff time.Time) error {
	_, err := s.conn.Exec("DELETE FROM heartbeats WHERE last_seen <= ?", cutoff.Unix())
	return err
}

func (s *RoomStore) CountHeartbeatsSince(cutoff time.Time) (int, error) {
	var count int
	err := s.conn.QueryRow("SELECT COUNT(*) FROM heartbeats WHERE last_seen > ?", cutoff.Unix()).Scan(&count)
	return count, err
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	defer rows.Close()

	var messages = make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Id, &m.Nickname, &m.Email, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}

		messages = append(messages, m)
	}

	return messages, rows.Err()
}
