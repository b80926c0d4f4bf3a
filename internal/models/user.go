package models

import "time"

// User is the identity record messages are addressed to.
type User struct {
	ID         int       `db:"id" json:"id"`
	Username   string    `db:"username" json:"username"`
	KnownAs    string    `db:"known_as" json:"known_as"`
	LastActive time.Time `db:"last_active" json:"last_active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// DisplayName prefers KnownAs and falls back to the username.
func (u User) DisplayName() string {
	if u.KnownAs != "" {
		return u.KnownAs
	}
	return u.Username
}

// Like records that SourceUserID liked TargetUserID.
type Like struct {
	SourceUserID int `db:"source_user_id" json:"source_user_id"`
	TargetUserID int `db:"target_user_id" json:"target_user_id"`
}
