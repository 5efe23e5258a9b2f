package models

import "time"

// Group is a chat room with exactly one admin. Membership grows via
// join-by-secret-key and shrinks via admin removal or self-leave.
type Group struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	SecretKey string    `db:"secret_key" json:"-"`
	AdminID   int64     `db:"admin_id" json:"admin_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
