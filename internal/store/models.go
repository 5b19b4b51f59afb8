package store

import "time"

// Room approval statuses tracked in the pending_rooms table.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDenied   = "denied"
)

type Message struct {
	Id        int
	Nickname  string
	Email     string
	Content   string
	CreatedAt time.Time
}

type Heartbeat struct {
	ClientId string
	LastSeen time.Time
}

type PendingRoom struct {
	Name        string
	Status      string
	RequestedAt time.Time
}

type VerifiedDevice struct {
	DeviceId  string
	Email     string
	CreatedAt time.Time
}
