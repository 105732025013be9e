package model

import "time"

// ChatSession is owned by a username. The session id is a client-visible
// uuid; saving a message against an unknown id recreates the session
// under that id instead of rejecting the request.
type ChatSession struct {
	SessionID string    `gorm:"size:36;primaryKey;column:session_id" json:"session_id"`
	Username  string    `gorm:"size:64;not null;index" json:"username"`
	Title     string    `gorm:"size:256;not null" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
