package models

import "time"

// User is owned by the auth subsystem; this service only reads it for
// author attribution.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
