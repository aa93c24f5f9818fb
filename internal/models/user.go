package models

import "time"

// User is the single credential record behind the shop's admin login.
type User struct {
	ID              int64      `json:"id"`
	Username        string     `json:"username"`
	Email           *string    `json:"-"`
	PasswordHash    string     `json:"-"`
	Pin             string     `json:"-"`
	RecoveryKeyHash *string    `json:"-"`
	OTPHash         *string    `json:"-"`
	OTPExpiresAt    *time.Time `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
}

// HasEmail reports whether an address is linked for OTP delivery.
func (u User) HasEmail() bool {
	return u.Email != nil && *u.Email != ""
}

// OTPPending reports whether an OTP request is in flight.
func (u User) OTPPending() bool {
	return u.OTPHash != nil && *u.OTPHash != "" && u.OTPExpiresAt != nil
}

// Public is the projection returned to clients.
func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username}
}

// PublicUser carries identity without any credential material.
type PublicUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}
