package store

import (
	"database/sql"
	"fmt"
	"time"
)

const registrySchema = `
CREATE TABLE IF NOT EXISTS pending_rooms (
	name TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	requested_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS verified_devices (
	device_id TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);`

// RegistryStore holds the global state shared across all rooms: the
// pending-room request table and the verified-device table. Concurrent
// writers race on the primary keys; one wins and the other observes the
// existing row.
type RegistryStore struct {
	conn *sql.DB
}

func OpenRegistryStore(path string) (*RegistryStore, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(registrySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init registry schema: %w", err)
	}

	return &RegistryStore{conn: db}, nil
}

func (s *RegistryStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *RegistryStore) Ping() error {
	return s.conn.Ping()
}

func (s *RegistryStore) GetPendingRoom(name string) (PendingRoom, error) {
	row := s.conn.QueryRow(
		"SELECT name, status, requested_at FROM pending_rooms "+
			"WHERE name = ? LIMIT 1",
		name,
	)

	var p PendingRoom
	err := row.Scan(
		&p.Name,
		&p.Status,
		&p.RequestedAt,
	)

	return p, err
}

// CreatePendingRoom inserts a pending request for name if none exists.
// It returns the row that won the insert race and whether this call
// created it.
func (s *RegistryStore) CreatePendingRoom(name string, at time.Time) (PendingRoom, bool, error) {
	res, err := s.conn.Exec(
		"INSERT OR IGNORE INTO pending_rooms (name, status, requested_at) VALUES (?, ?, ?)",
		name,
		StatusPending,
		at.UTC(),
	)
	if err != nil {
		return PendingRoom{}, false, err
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return PendingRoom{}, false, err
	}

	room, err := s.GetPendingRoom(name)
	return room, inserted > 0, err
}

func (s *RegistryStore) SetRoomStatus(name, status string) error {
	_, err := s.conn.Exec(
		"UPDATE pending_rooms SET status = ? WHERE name = ?",
		status,
		name,
	)
	return err
}

func (s *RegistryStore) GetDevice(deviceId string) (VerifiedDevice, error) {
	row := s.conn.QueryRow(
		"SELECT device_id, email, created_at FROM verified_devices "+
			"WHERE device_id = ? LIMIT 1",
		deviceId,
	)

	var d VerifiedDevice
	err := row.Scan(
		&d.DeviceId,
		&d.Email,
		&d.CreatedAt,
	)

	return d, err
}

// CreateDevice records the verified email for a device. The first
// confirmation wins; later calls for the same device leave the original
// binding unchanged.
func (s *RegistryStore) CreateDevice(deviceId, email string, at time.Time) error {
	_, err := s.conn.Exec(
		"INSERT OR IGNORE INTO verified_devices (device_id, email, created_at) VALUES (?, ?, ?)",
		deviceId,
		email,
		at.UTC(),
	)
	return err
}
