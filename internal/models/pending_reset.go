package models

import "time"

// PendingReset is the ephemeral server-side context for a phone
// recovery attempt. Exactly one exists per identifier; a new
// forgot-password request overwrites the previous one.
type PendingReset struct {
	CodeHash string    `json:"code_hash"`
	Phone    string    `json:"phone"`
	IssuedAt time.Time `json:"issued_at"`
}
