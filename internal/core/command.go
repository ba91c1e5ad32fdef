package core

import (
	"context"

	"github.com/plasmarift/lobby-server/internal/proto"
)

// Job is one persistence-bound command handed to an executor. Room and
// user fields are independent copies of registry state, attached by the
// Router after any required lock is held; executors never touch the
// Registry or its locks.
type Job struct {
	ClientID string
	Msg      proto.Incoming

	// Gen identifies this dispatch. Seq values may be reused after a
	// receipt deadline expires; executors echo Gen so the Router can tell
	// a current receipt from a stale one.
	Gen uint64

	Chat *ChatRoom
	User *User
	Game *GameRoom

	// Autohost assignment for a fresh game room.
	Autohost string
	RoomID   int
}

// Receipt is the result an executor emits after handling one Job. Exactly
// one Receipt is produced per dispatched Job.
type Receipt struct {
	ReceiptOf string
	Seq       int64
	Gen       uint64
	Status    bool
	Message   string
	Payload   ReceiptPayload
}

// ReceiptPayload carries the entities a successful receipt applies to the
// Registry.
type ReceiptPayload struct {
	Username string
	Chat     *ChatRoom
	Game     *GameRoom

	// Type distinguishes the CREATE and JOIN outcomes of JOINCHAT and
	// JOINGAME.
	Type string

	// Start is the requested start flag echoed by STARTGAME.
	Start bool
}

// Receipt payload types.
const (
	PayloadTypeCreate = "CREATE"
	PayloadTypeJoin   = "JOIN"
)

// Executor dispatches jobs to the worker pool.
type Executor interface {
	Dispatch(job Job)
}

// Fleet tracks autohost processes and relays match start directives.
type Fleet interface {
	// Pick selects an autohost for a fresh room and allocates a room id
	// from its load counter. ok is false when no autohost is registered.
	Pick() (addr string, roomID int, ok bool)

	// Start relays a start directive to the autohost the room was
	// assigned to.
	Start(ctx context.Context, addr string, cfg StartConfig) error
}
