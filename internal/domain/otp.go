package domain

import "time"

// OTPEntry es un ticket de verificacion vivo para un email.
type OTPEntry struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CodeHash  string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the entry is no longer usable at now.
func (e OTPEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
