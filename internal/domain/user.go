package domain

import "time"

type User struct {
	ID           string    `json:"id"`
	DisplayID    string    `json:"displayId"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Mobile       string    `json:"mobile"`
	Aadhaar      string    `json:"-"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles"`
	State        string    `json:"state"`
	District     string    `json:"district"`
	Verified     bool      `json:"isVerified"`
	CreatedAt    time.Time `json:"createdAt"`
}

// PrimaryRole devuelve el rol con el que se registro el usuario.
func (u User) PrimaryRole() string {
	if len(u.Roles) == 0 {
		return ""
	}
	return u.Roles[0]
}
