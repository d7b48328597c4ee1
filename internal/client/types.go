package client

import (
	"fmt"
	"time"
)

// RegistrationForm se guarda del lado del cliente entre pre-register y la
// confirmacion; el servidor no persiste nada hasta entonces.
type RegistrationForm struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Mobile    string `json:"mobile"`
	Aadhaar   string `json:"aadhaar"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	State     string `json:"state"`
	District  string `json:"district"`
	Role      string `json:"role"`
}

type ConfirmRequest struct {
	Email    string           `json:"email,omitempty"`
	OTP      string           `json:"otp"`
	UserData RegistrationForm `json:"userData"`
}

type ResendRequest struct {
	Email string `json:"email"`
}

type PasswordLoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type OTPLoginRequest struct {
	Identifier string `json:"identifier"`
	OTP        string `json:"otp"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type RegisterResponse struct {
	Message   string `json:"message"`
	UserID    string `json:"userId"`
	DisplayID string `json:"displayId"`
}

type LoginResponse struct {
	Message string   `json:"message"`
	UserID  string   `json:"userId"`
	Roles   []string `json:"role"`
}

type Profile struct {
	ID         string    `json:"id"`
	DisplayID  string    `json:"displayId"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Mobile     string    `json:"mobile"`
	Email      string    `json:"email"`
	Roles      []string  `json:"roles"`
	State      string    `json:"state"`
	District   string    `json:"district"`
	IsVerified bool      `json:"isVerified"`
	CreatedAt  time.Time `json:"createdAt"`
}

type CheckAuthResponse struct {
	Message string  `json:"message"`
	User    Profile `json:"user"`
}

type VerificationResponse struct {
	IsVerified bool `json:"isVerified"`
}

// APIError es cualquier respuesta no 2xx; Message viene del campo "message".
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
}
