package core

// User is a logged-in account as seen by the coordination layer. It holds
// identity-only references to the rooms the user is currently in; the room
// state itself lives in the Registry.
type User struct {
	Username string
	ChatRoom string // current chat room name, empty if none
	GameRoom string // current game title, empty if none
}

// NewUser constructs a user with no room memberships.
func NewUser(username string) *User {
	return &User{Username: username}
}

// AssignChat points the user at a chat room.
func (u *User) AssignChat(roomName string) {
	u.ChatRoom = roomName
}

// ClearChat drops the user's chat room reference.
func (u *User) ClearChat() {
	u.ChatRoom = ""
}

// AssignGame points the user at a game room.
func (u *User) AssignGame(title string) {
	u.GameRoom = title
}

// ClearGame drops the user's game room reference.
func (u *User) ClearGame() {
	u.GameRoom = ""
}

// Clone returns an independent copy for handing to an executor.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	copied := *u
	return &copied
}
