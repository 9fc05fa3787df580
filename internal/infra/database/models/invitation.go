package models

import (
	"time"
)

// Invitation references its target by (kind, id) since the target may be a
// group or a chat. There is no FK for the target; cleanup happens in the
// same transaction that garbage-collects the target.
type Invitation struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	TargetKind string    `json:"targetKind" gorm:"type:text;not null;index:idx_invitation_target"`
	TargetID   int64     `json:"targetID" gorm:"not null;index:idx_invitation_target"`
	InviterID  int64     `json:"inviter" gorm:"index;not null"`
	Inviter    User      `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	InviteeID  int64     `json:"invitee" gorm:"index;not null"`
	Invitee    User      `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	Accepted   *bool     `json:"accepted" gorm:"type:boolean"`
	CDate      time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}
