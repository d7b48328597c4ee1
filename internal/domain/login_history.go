package domain

import "time"

type Device struct {
	Type      string `json:"type"`
	Browser   string `json:"browser,omitempty"`
	Version   string `json:"version,omitempty"`
	OS        string `json:"os,omitempty"`
	UserAgent string `json:"ua"`
}

// LoginHistoryEntry registra cada intento de login, exitoso o no.
type LoginHistoryEntry struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"`
	UserID     string    `json:"user_id,omitempty"`
	IP         string    `json:"ip"`
	Device     Device    `json:"device"`
	Method     string    `json:"method"`
	Success    bool      `json:"success"`
	CreatedAt  time.Time `json:"created_at"`
}
