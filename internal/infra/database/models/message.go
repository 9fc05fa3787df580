package models

import (
	"time"
)

type Message struct {
	ID       int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	ChatID   int64     `json:"chatID" gorm:"index;not null"`
	Chat     Chat      `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	SenderID int64     `json:"sender" gorm:"index;not null"`
	Sender   User      `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	Content  string    `json:"content" gorm:"type:text;not null"`
	CDate    time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}

type MessageSeen struct {
	MessageID int64     `json:"messageID" gorm:"primaryKey"`
	Message   Message   `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	UserID    int64     `json:"userID" gorm:"primaryKey;index"`
	User      User      `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	CDate     time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}
