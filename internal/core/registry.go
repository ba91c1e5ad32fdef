package core

import (
	"context"
	"sync"
)

// Registry owns the in-memory users, chat rooms, and game rooms, plus the
// per-key locks guarding room mutation. Logical mutation is funneled
// through the Router's single goroutine; the internal mutex only makes
// concurrent observer reads (status endpoints, tests) safe.
type Registry struct {
	mu    sync.RWMutex
	users map[string]*User
	chats map[string]*ChatRoom
	games map[string]*GameRoom

	chatLocks *KeyLock
	gameLocks *KeyLock
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		users:     make(map[string]*User),
		chats:     make(map[string]*ChatRoom),
		games:     make(map[string]*GameRoom),
		chatLocks: NewKeyLock(),
		gameLocks: NewKeyLock(),
	}
}

// AddUser inserts a user record.
func (r *Registry) AddUser(u *User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.Username] = u
}

// GetUser looks up a user by username.
func (r *Registry) GetUser(username string) (*User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[username]
	return u, ok
}

// AssignUser replaces a user record.
func (r *Registry) AssignUser(username string, u *User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[username] = u
}

// RemoveUser deletes a user record.
func (r *Registry) RemoveUser(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, username)
}

// AddChat inserts a chat room.
func (r *Registry) AddChat(c *ChatRoom) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats[c.RoomName] = c
}

// GetChat looks up a chat room by name.
func (r *Registry) GetChat(roomName string) (*ChatRoom, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chats[roomName]
	return c, ok
}

// AssignChat replaces a chat room.
func (r *Registry) AssignChat(roomName string, c *ChatRoom) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats[roomName] = c
}

// RemoveChat deletes a chat room.
func (r *Registry) RemoveChat(roomName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.chats, roomName)
}

// LockChat acquires the chat room's mutation lock.
func (r *Registry) LockChat(ctx context.Context, roomName string) error {
	return r.chatLocks.Acquire(ctx, roomName)
}

// ReleaseChat releases the chat room's mutation lock.
func (r *Registry) ReleaseChat(roomName string) {
	r.chatLocks.Release(roomName)
}

// AddGame inserts a game room.
func (r *Registry) AddGame(g *GameRoom) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games[g.Title] = g
}

// GetGame looks up a game room by title.
func (r *Registry) GetGame(title string) (*GameRoom, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[title]
	return g, ok
}

// AssignGame replaces a game room.
func (r *Registry) AssignGame(title string, g *GameRoom) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games[title] = g
}

// RemoveGame deletes a game room.
func (r *Registry) RemoveGame(title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.games, title)
}

// LockGame acquires the game room's mutation lock.
func (r *Registry) LockGame(ctx context.Context, title string) error {
	return r.gameLocks.Acquire(ctx, title)
}

// ReleaseGame releases the game room's mutation lock.
func (r *Registry) ReleaseGame(title string) {
	r.gameLocks.Release(title)
}

// Dump builds the user-scoped snapshot: the user's own record plus their
// chat and game rooms, if any.
func (r *Registry) Dump(username string) *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[username]
	if !ok {
		return nil
	}

	snap := &Snapshot{
		User: UserView{
			Username: u.Username,
			ChatRoom: u.ChatRoom,
			GameRoom: u.GameRoom,
		},
	}
	if u.ChatRoom != "" {
		snap.Chat = chatView(r.chats[u.ChatRoom])
	}
	if u.GameRoom != "" {
		snap.Game = gameView(r.games[u.GameRoom])
	}
	return snap
}

// GarbageCollect removes a disconnected user and, if they were a member of
// a chat room that is now empty, removes that room too.
func (r *Registry) GarbageCollect(u *User) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.users, u.Username)

	if u.ChatRoom == "" {
		return
	}
	chat, ok := r.chats[u.ChatRoom]
	if !ok {
		return
	}
	chat.Leave(u.Username)
	if chat.Empty() {
		delete(r.chats, u.ChatRoom)
	}
}

// Counts reports registry sizes for the status endpoint.
func (r *Registry) Counts() (users, chats, games int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users), len(r.chats), len(r.games)
}
