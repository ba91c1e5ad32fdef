package core

import (
	"sort"
	"time"
)

// ChatMessage is the most recent line spoken in a chat room.
type ChatMessage struct {
	Author string    `json:"author"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// ChatRoom groups users chatting under one name. A room with no members
// is removed from the Registry.
type ChatRoom struct {
	RoomName    string
	Members     map[string]struct{}
	LastMessage *ChatMessage
}

// NewChatRoom constructs a chat room with no members.
func NewChatRoom(roomName string) *ChatRoom {
	return &ChatRoom{
		RoomName: roomName,
		Members:  make(map[string]struct{}),
	}
}

// Join inserts a member. Joining twice is a no-op.
func (c *ChatRoom) Join(username string) {
	c.Members[username] = struct{}{}
}

// Leave removes a member. Returns true if the member was present.
func (c *ChatRoom) Leave(username string) bool {
	if _, ok := c.Members[username]; !ok {
		return false
	}
	delete(c.Members, username)
	return true
}

// Has reports whether username is a member.
func (c *ChatRoom) Has(username string) bool {
	_, ok := c.Members[username]
	return ok
}

// Say records the latest chat line.
func (c *ChatRoom) Say(author, text string) {
	c.LastMessage = &ChatMessage{
		Author: author,
		Text:   text,
		At:     time.Now(),
	}
}

// Empty returns true if the room has no members.
func (c *ChatRoom) Empty() bool {
	return len(c.Members) == 0
}

// MemberList returns members sorted for stable serialization.
func (c *ChatRoom) MemberList() []string {
	members := make([]string, 0, len(c.Members))
	for m := range c.Members {
		members = append(members, m)
	}
	sort.Strings(members)
	return members
}

// Clone returns an independent copy for handing to an executor.
func (c *ChatRoom) Clone() *ChatRoom {
	if c == nil {
		return nil
	}
	copied := &ChatRoom{
		RoomName: c.RoomName,
		Members:  make(map[string]struct{}, len(c.Members)),
	}
	for m := range c.Members {
		copied.Members[m] = struct{}{}
	}
	if c.LastMessage != nil {
		msg := *c.LastMessage
		copied.LastMessage = &msg
	}
	return copied
}
