package models

import "time"

// User mirrors the identity provider's view of an actor. The core treats
// this as read-only context and never mutates it.
type User struct {
	UID            string    `json:"uid"`
	Role           string    `json:"role"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name,omitempty"`
	Email          string    `json:"email,omitempty"`
	TelegramChatID int64     `json:"telegram_chat_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// FullName joins first and last name, tolerating a missing last name.
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Actor is the authenticated identity attached to an operation.
type Actor struct {
	UID       string
	Role      string
	FirstName string
	LastName  string
	Email     string
}
