package domain

import "time"

// User is an identity with a unique handle. The password hash never leaves
// the persistence layer.
type User struct {
	ID         int64     `json:"id"`
	Handle     string    `json:"handle"`
	PictureURL string    `json:"pictureURL,omitempty"`
	CDate      time.Time `json:"cdate"`
}
