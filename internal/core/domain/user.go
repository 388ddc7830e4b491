package domain

import "time"

// DefaultAvatar is assigned to every user at registration.
const DefaultAvatar = "default_avatar.jpg"

// User models an account that owns client records.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	Avatar       string    `json:"avatar"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile is the public projection of a User returned by the auth endpoints.
type Profile struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone,omitempty"`
	Avatar string `json:"avatar"`
}

// Profile returns the public projection of u.
func (u *User) Profile() Profile {
	avatar := u.Avatar
	if avatar == "" {
		avatar = DefaultAvatar
	}
	return Profile{Name: u.Name, Email: u.Email, Phone: u.Phone, Avatar: avatar}
}
