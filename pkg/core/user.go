package core

import "time"

// User is an account that owns memories. PasswordHash is persisted by the
// store backends but must never leave the API; use Public before encoding.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"password_hash,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Public returns a copy safe to serialize in API responses.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}
