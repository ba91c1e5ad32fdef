package proto

// Command actions accepted from clients.
const (
	ActionGetSeq    = "GETSEQ"
	ActionLogin     = "LOGIN"
	ActionJoinChat  = "JOINCHAT"
	ActionSayChat   = "SAYCHAT"
	ActionLeaveChat = "LEAVECHAT"
	ActionJoinGame  = "JOINGAME"
	ActionSetAI     = "SETAI"
	ActionDelAI     = "DELAI"
	ActionSetTeam   = "SETTEAM"
	ActionSetMap    = "SETMAP"
	ActionStartGame = "STARTGAME"

	// ActionNotify is the catch-all outbound kind for rejections.
	ActionNotify = "NOTIFY"
)

// Incoming is the envelope for commands coming from a client.
type Incoming struct {
	Action     string         `json:"action"`
	Seq        int64          `json:"seq"`
	Parameters map[string]any `json:"parameters"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Outgoing is the envelope for messages sent to a client. State carries
// the personalized snapshot on success; Message carries notification text.
type Outgoing struct {
	Action  string `json:"action"`
	Seq     int64  `json:"seq,omitempty"`
	Message string `json:"message,omitempty"`
	State   any    `json:"state,omitempty"`
}
