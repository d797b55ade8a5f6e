package domain

import "time"

// User is an account of the authentication subsystem.
// PasswordHash never leaves the server.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	DateJoined   time.Time `json:"date_joined"`
}
