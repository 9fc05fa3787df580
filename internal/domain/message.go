package domain

import "time"

// Message is immutable once created except for the seen-by set, which only
// grows. The sender is always the actor that created it.
type Message struct {
	ID       int64     `json:"id"`
	ChatID   int64     `json:"chatID"`
	SenderID int64     `json:"sender"`
	Content  string    `json:"content"`
	CDate    time.Time `json:"cdate"`
	SeenBy   []int64   `json:"seenBy"`
}

// Event is published to the realtime fanout when a message is created.
type Event struct {
	Type    string   `json:"type"`
	ChatID  int64    `json:"chatID"`
	Message *Message `json:"message,omitempty"`
}
