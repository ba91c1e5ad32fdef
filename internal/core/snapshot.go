package core

// Snapshot is the personalized, serializable view of registry state
// delivered to one user. Fields for rooms the user is not in are omitted.
type Snapshot struct {
	User UserView  `json:"user"`
	Chat *ChatView `json:"chat,omitempty"`
	Game *GameView `json:"game,omitempty"`
}

// UserView is the user's own record.
type UserView struct {
	Username string `json:"username"`
	ChatRoom string `json:"chatRoom,omitempty"`
	GameRoom string `json:"gameRoom,omitempty"`
}

// ChatView is the user-visible state of their chat room.
type ChatView struct {
	RoomName    string       `json:"roomName"`
	Members     []string     `json:"members"`
	LastMessage *ChatMessage `json:"lastMessage,omitempty"`
}

// GameView is the user-visible state of their game room.
type GameView struct {
	Title   string                `json:"title"`
	Hoster  string                `json:"hoster"`
	MapID   string                `json:"mapId,omitempty"`
	Started bool                  `json:"started"`
	RoomID  int                   `json:"roomId"`
	Players map[string]PlayerSeat `json:"players"`
}

// PlayerSeat is one seat as rendered in a snapshot.
type PlayerSeat struct {
	Team int  `json:"team"`
	IsAI bool `json:"isAI"`
}

func chatView(c *ChatRoom) *ChatView {
	if c == nil {
		return nil
	}
	view := &ChatView{
		RoomName: c.RoomName,
		Members:  c.MemberList(),
	}
	if c.LastMessage != nil {
		msg := *c.LastMessage
		view.LastMessage = &msg
	}
	return view
}

func gameView(g *GameRoom) *GameView {
	if g == nil {
		return nil
	}
	view := &GameView{
		Title:   g.Title,
		Hoster:  g.Hoster,
		MapID:   g.MapID,
		Started: g.Started,
		RoomID:  g.RoomID,
		Players: make(map[string]PlayerSeat, len(g.Players)),
	}
	for name, slot := range g.Players {
		view.Players[name] = PlayerSeat{Team: slot.Team, IsAI: slot.IsAI}
	}
	return view
}
