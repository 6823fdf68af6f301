package store

import "time"

// Chat is a named channel tied to a class. Rooms stop admitting new
// connections once ExpiresAt has passed.
type Chat struct {
	ID        string    `json:"id"`
	ClassID   string    `json:"class_id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"` // "general" or "study-group"
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is the canonical stored record. This exact shape is what gets
// broadcast over the socket and returned from the history endpoint; the ID
// is always server-assigned.
type Message struct {
	ID         int64     `json:"id"`
	ChatID     string    `json:"chat_id"`
	UserID     string    `json:"user_id"`
	Timestamp  time.Time `json:"timestamp"`
	Content    string    `json:"content"`
	SenderName string    `json:"sender_name,omitempty"`
}

type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
}
