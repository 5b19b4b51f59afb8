package types

// TimestampFormat is how message timestamps are rendered to clients.
const TimestampFormat = "2006-01-02 15:04:05"

type Message struct {
	Id        int    `json:"id"`
	Room      string `json:"room"`
	Nickname  string `json:"nickname"`
	Email     string `json:"email"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type History struct {
	Messages []Message `json:"messages"`
	HasNext  bool      `json:"has_next"`
	HasPrev  bool      `json:"has_prev"`
	Total    int       `json:"total"`
}

type RoomStatus struct {
	Status string `json:"status"`
}

type Online struct {
	Online int `json:"online"`
}

type Verified struct {
	Verified bool `json:"verified"`
}

type Verification struct {
	VerificationRequired bool   `json:"verification_required"`
	DeviceId             string `json:"device_id"`
}
