package models

import (
	"time"
)

type Community struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Name       string    `json:"name" gorm:"type:text;not null"`
	PictureURL string    `json:"pictureURL" gorm:"type:text"`
	CDate      time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}

type CommunityMember struct {
	CommunityID int64     `json:"communityID" gorm:"primaryKey"`
	Community   Community `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	UserID      int64     `json:"userID" gorm:"primaryKey;index"`
	User        User      `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	CDate       time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}

type Group struct {
	ID          int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Name        string    `json:"name" gorm:"type:text;not null"`
	PictureURL  string    `json:"pictureURL" gorm:"type:text"`
	CommunityID int64     `json:"communityID" gorm:"index;not null"`
	Community   Community `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	IsActive    bool      `json:"isActive" gorm:"type:boolean;not null;default:false"`
	CDate       time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}

type GroupMember struct {
	GroupID int64     `json:"groupID" gorm:"primaryKey"`
	Group   Group     `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	UserID  int64     `json:"userID" gorm:"primaryKey;index"`
	User    User      `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	CDate   time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}

// Chat with a nil GroupID is a standalone private chat.
type Chat struct {
	ID      int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Name    string    `json:"name" gorm:"type:text;not null"`
	GroupID *int64    `json:"groupID" gorm:"index"`
	Group   *Group    `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	CDate   time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}

type ChatMember struct {
	ChatID int64     `json:"chatID" gorm:"primaryKey"`
	Chat   Chat      `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	UserID int64     `json:"userID" gorm:"primaryKey;index"`
	User   User      `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	CDate  time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}
