package db

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered account.
type User struct {
	ID           uuid.UUID
	Email        string
	Username     string
	Name         string
	LastName     string
	PasswordHash string
	CreatedAt    time.Time
	LastLoginAt  *time.Time // nullable
}

// Session is an issued login token.
type Session struct {
	Token     string
	UserID    uuid.UUID
	CreatedAt time.Time
	ExpiresAt time.Time
}
