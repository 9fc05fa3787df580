package domain

import "time"

// JoinableKind discriminates the entities a user can join.
type JoinableKind string

const (
	KindCommunity JoinableKind = "community"
	KindGroup     JoinableKind = "group"
	KindChat      JoinableKind = "chat"
)

// Community is the top-level joinable. Empty communities are kept around;
// only groups and chats are garbage-collected when their last member leaves.
type Community struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	PictureURL string    `json:"pictureURL,omitempty"`
	CDate      time.Time `json:"cdate"`
	Members    []int64   `json:"members"`
}

// Group belongs to exactly one community, set at creation. IsActive is
// derived from the member count and recomputed on every membership change,
// never written independently.
type Group struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	PictureURL  string    `json:"pictureURL,omitempty"`
	CommunityID int64     `json:"communityID"`
	IsActive    bool      `json:"isActive"`
	CDate       time.Time `json:"cdate"`
	Members     []int64   `json:"members"`
}

// ChatKind discriminates group chats from standalone private chats.
type ChatKind string

const (
	ChatKindPrivate ChatKind = "private"
	ChatKindGroup   ChatKind = "group"
)

// Chat optionally belongs to a group. GroupID is nil for private chats.
type Chat struct {
	ID      int64     `json:"id"`
	Name    string    `json:"name"`
	GroupID *int64    `json:"groupID,omitempty"`
	CDate   time.Time `json:"cdate"`
	Members []int64   `json:"members"`
}

// Kind reports whether the chat is a group chat or a private one.
func (c Chat) Kind() ChatKind {
	if c.GroupID != nil {
		return ChatKindGroup
	}
	return ChatKindPrivate
}

// GroupActive derives the activity flag from a member count.
func GroupActive(memberCount int64) bool {
	return memberCount >= ActivationThreshold
}

// ShouldCollect reports whether a joinable must be deleted after a membership
// removal left it with the given member count. Communities survive empty.
func ShouldCollect(kind JoinableKind, memberCount int64) bool {
	if kind == KindCommunity {
		return false
	}
	return memberCount == 0
}
