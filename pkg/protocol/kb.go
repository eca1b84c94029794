package protocol

import "time"

// KBEntry is a stored question/answer pair consulted before escalation.
type KBEntry struct {
	ID        int64      `json:"id"`
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
