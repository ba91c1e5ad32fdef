package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("not found")

// User is a registered account as persisted.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// ChatRoom is a persisted chat room. The password hash is empty for
// rooms created without a password.
type ChatRoom struct {
	ID           int64
	RoomName     string
	PasswordHash string
	CreatedAt    time.Time
}

// ChatLine is one persisted chat message.
type ChatLine struct {
	ID        int64
	RoomName  string
	Author    string
	Text      string
	CreatedAt time.Time
}

// UserStore handles account persistence and credential material.
type UserStore interface {
	// GetUserByUsername retrieves a user by username.
	// Returns ErrNotFound if the account does not exist.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// CreateUser creates a new user with a hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)
}

// ChatStore handles chat room durability.
type ChatStore interface {
	// GetChatRoom retrieves a chat room by name.
	// Returns ErrNotFound if the room was never created.
	GetChatRoom(ctx context.Context, roomName string) (*ChatRoom, error)

	// CreateChatRoom creates a chat room with an optional password hash.
	CreateChatRoom(ctx context.Context, roomName, passwordHash string) (*ChatRoom, error)

	// SaveChatLine appends a chat message to a room's durable history.
	SaveChatLine(ctx context.Context, line *ChatLine) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ChatStore

	// Close closes the underlying database connection.
	Close() error
}
