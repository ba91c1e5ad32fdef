package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/plasmarift/lobby-server/internal/proto"
)

// seqWrap is the bound at which the issued sequence counter wraps.
const seqWrap = 10_000_000_000

type lockKind int

const (
	lockNone lockKind = iota
	lockChat
	lockGame
)

// pendingRequest is the durable record of "who to answer" for one
// outstanding sequence number, plus the lock that must be released once
// the round trip finishes. clientID is blanked when the client
// disconnects, turning the eventual receipt into an orphaned no-op.
type pendingRequest struct {
	clientID string
	msg      proto.Incoming
	lockKind lockKind
	lockKey  string
	lockHeld bool
	timer    *time.Timer

	// gen identifies the dispatch this entry is waiting on. Seq values
	// may be reused after a deadline expires; a receipt whose generation
	// does not match is from an earlier dispatch and must not be applied.
	gen uint64
}

// Connection lifecycle and inbound commands travel through one ordered
// channel: a connection's attach event is always processed before its
// first command, and its detach after its last.
type attachEvent struct {
	client *Client
}

type detachEvent struct {
	clientID string
}

type routedMsg struct {
	clientID string
	msg      proto.Incoming
}

type lockResult struct {
	seq  int64
	kind lockKind
	key  string
	err  error
}

// Router is the coordinator: it validates inbound commands, correlates
// receipts back to the originating client, applies the Registry's locking
// protocol around dispatch, and fans out personalized snapshots.
//
// All registry mutation happens on the Run goroutine; transports and the
// worker pool communicate with it exclusively through channels.
type Router struct {
	registry       *Registry
	exec           Executor
	fleet          Fleet
	receipts       <-chan Receipt
	receiptTimeout time.Duration
	log            *zerolog.Logger

	events  chan any
	locked  chan lockResult
	expired chan int64

	clients      map[string]*Client
	clientToUser map[string]string
	userToClient map[string]string
	pending      map[int64]*pendingRequest

	// seqCounter starts at 1: a zero seq means "missing" on the wire.
	seqCounter int64

	// genCounter stamps each dispatch; see pendingRequest.gen.
	genCounter uint64
}

// NewRouter constructs a router around its collaborators.
func NewRouter(registry *Registry, exec Executor, fleet Fleet, receipts <-chan Receipt, receiptTimeout time.Duration, logger *zerolog.Logger) *Router {
	return &Router{
		registry:       registry,
		exec:           exec,
		fleet:          fleet,
		receipts:       receipts,
		receiptTimeout: receiptTimeout,
		log:            logger,
		events:         make(chan any, 64),
		locked:         make(chan lockResult, 64),
		expired:        make(chan int64, 64),
		clients:        make(map[string]*Client),
		clientToUser:   make(map[string]string),
		userToClient:   make(map[string]string),
		pending:        make(map[int64]*pendingRequest),
		seqCounter:     1,
	}
}

// Attach registers a transport connection with the router.
func (r *Router) Attach(c *Client) {
	r.events <- attachEvent{client: c}
}

// Detach removes a transport connection; bookkeeping for the client is
// swept and their user record garbage collected.
func (r *Router) Detach(clientID string) {
	r.events <- detachEvent{clientID: clientID}
}

// Submit delivers one inbound command from a transport connection.
func (r *Router) Submit(clientID string, msg proto.Incoming) {
	r.events <- routedMsg{clientID: clientID, msg: msg}
}

// Run processes events until ctx is done.
func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case ev := <-r.events:
			switch e := ev.(type) {
			case attachEvent:
				r.clients[e.client.ID] = e.client
			case detachEvent:
				r.handleDisconnect(e.clientID)
			case routedMsg:
				r.handleMessage(ctx, e.clientID, e.msg)
			}
		case lr := <-r.locked:
			r.handleLocked(ctx, lr)
		case rc := <-r.receipts:
			r.handleReceipt(ctx, rc)
		case seq := <-r.expired:
			r.handleExpired(seq)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Router) notify(client *Client, seq int64, message string) {
	if client == nil {
		return
	}
	if !client.send(proto.Outgoing{Action: proto.ActionNotify, Seq: seq, Message: message}) {
		r.log.Warn().Str("client_id", client.ID).Msg("outbound buffer full, cutting client")
	}
}

func (r *Router) sendState(client *Client, action string, seq int64, username string) {
	if client == nil {
		return
	}
	if !client.send(proto.Outgoing{Action: action, Seq: seq, State: r.registry.Dump(username)}) {
		r.log.Warn().Str("client_id", client.ID).Str("action", action).Msg("outbound buffer full, cutting client")
	}
}

func (r *Router) handleMessage(ctx context.Context, clientID string, msg proto.Incoming) {
	client, ok := r.clients[clientID]
	if !ok {
		return
	}

	if msg.Action == proto.ActionGetSeq {
		client.send(proto.Outgoing{Action: proto.ActionGetSeq, Seq: r.seqCounter})
		r.seqCounter++
		if r.seqCounter > seqWrap {
			r.seqCounter = 1
		}
		return
	}

	if !proto.KnownAction(msg.Action) || !proto.FulfillsParameters(msg.Action, msg.Parameters) {
		r.notify(client, msg.Seq, MsgInvalidParameters)
		return
	}
	if msg.Seq == 0 {
		r.notify(client, 0, MsgMissingSeq)
		return
	}
	if _, outstanding := r.pending[msg.Seq]; outstanding {
		r.notify(client, msg.Seq, MsgDuplicateSeq)
		return
	}

	if msg.Action == proto.ActionLogin {
		username := proto.StringParam(msg.Parameters, "username")
		if _, loggedIn := r.userToClient[username]; loggedIn {
			r.notify(client, msg.Seq, MsgAlreadyLoggedIn)
			return
		}
		r.pending[msg.Seq] = &pendingRequest{clientID: clientID, msg: msg}
		r.dispatch(ctx, msg.Seq, Job{ClientID: clientID, Msg: msg})
		return
	}

	username, authed := r.clientToUser[clientID]
	if !authed {
		r.notify(client, msg.Seq, MsgUnauthenticated)
		return
	}
	user, _ := r.registry.GetUser(username)

	p := &pendingRequest{clientID: clientID, msg: msg}
	job := Job{ClientID: clientID, Msg: msg, User: user.Clone()}

	switch msg.Action {
	case proto.ActionJoinChat, proto.ActionSayChat, proto.ActionLeaveChat:
		roomName := proto.StringParam(msg.Parameters, "chatName")
		if _, exists := r.registry.GetChat(roomName); exists {
			p.lockKind = lockChat
			p.lockKey = roomName
			r.pending[msg.Seq] = p
			r.acquireAsync(ctx, msg.Seq, lockChat, roomName)
			return
		}
		// No shared object yet: the first JOINCHAT becomes CREATE,
		// SAYCHAT/LEAVECHAT on an unknown room fail at the executor.
		r.pending[msg.Seq] = p
		r.dispatch(ctx, msg.Seq, job)

	case proto.ActionJoinGame:
		title := proto.StringParam(msg.Parameters, "gameName")
		if _, exists := r.registry.GetGame(title); exists {
			p.lockKind = lockGame
			p.lockKey = title
			r.pending[msg.Seq] = p
			r.acquireAsync(ctx, msg.Seq, lockGame, title)
			return
		}
		addr, roomID, available := r.fleet.Pick()
		if !available {
			r.notify(client, msg.Seq, MsgNoAutohost)
			return
		}
		job.Autohost = addr
		job.RoomID = roomID
		r.pending[msg.Seq] = p
		r.dispatch(ctx, msg.Seq, job)

	case proto.ActionSetAI, proto.ActionDelAI, proto.ActionSetTeam, proto.ActionSetMap:
		title := proto.StringParam(msg.Parameters, "gameName")
		if _, exists := r.registry.GetGame(title); exists {
			p.lockKind = lockGame
			p.lockKey = title
			r.pending[msg.Seq] = p
			r.acquireAsync(ctx, msg.Seq, lockGame, title)
			return
		}
		r.pending[msg.Seq] = p
		r.dispatch(ctx, msg.Seq, job)

	case proto.ActionStartGame:
		title := user.GameRoom
		if title != "" {
			if _, exists := r.registry.GetGame(title); exists {
				p.lockKind = lockGame
				p.lockKey = title
				r.pending[msg.Seq] = p
				r.acquireAsync(ctx, msg.Seq, lockGame, title)
				return
			}
		}
		r.pending[msg.Seq] = p
		r.dispatch(ctx, msg.Seq, job)
	}
}

// acquireAsync waits for the room lock off the coordinator goroutine and
// reports the grant back as an event.
func (r *Router) acquireAsync(ctx context.Context, seq int64, kind lockKind, key string) {
	go func() {
		var err error
		if kind == lockChat {
			err = r.registry.LockChat(ctx, key)
		} else {
			err = r.registry.LockGame(ctx, key)
		}
		select {
		case r.locked <- lockResult{seq: seq, kind: kind, key: key, err: err}:
		case <-ctx.Done():
			if err == nil {
				r.releaseLock(kind, key)
			}
		}
	}()
}

func (r *Router) handleLocked(ctx context.Context, lr lockResult) {
	p, ok := r.pending[lr.seq]
	if !ok {
		if lr.err == nil {
			r.releaseLock(lr.kind, lr.key)
		}
		return
	}
	if lr.err != nil {
		delete(r.pending, lr.seq)
		r.notify(r.clients[p.clientID], lr.seq, MsgPersistenceFailure)
		return
	}
	p.lockHeld = true

	if p.clientID == "" {
		// Client disconnected while waiting for the lock.
		r.clearPending(lr.seq, p)
		return
	}
	client := r.clients[p.clientID]
	username := r.clientToUser[p.clientID]
	user, _ := r.registry.GetUser(username)

	job := Job{ClientID: p.clientID, User: user.Clone()}

	// Re-resolve the resource: it may have vanished between lookup and
	// lock grant.
	switch lr.kind {
	case lockChat:
		chat, exists := r.registry.GetChat(lr.key)
		if !exists {
			r.notify(client, lr.seq, MsgChatDismissed)
			r.clearPending(lr.seq, p)
			return
		}
		job.Chat = chat.Clone()
	case lockGame:
		game, exists := r.registry.GetGame(lr.key)
		if !exists {
			r.notify(client, lr.seq, MsgGameDismissed)
			r.clearPending(lr.seq, p)
			return
		}
		job.Game = game.Clone()
	}

	job.Msg = p.msg
	r.dispatch(ctx, lr.seq, job)
}

// dispatch hands the job to a random executor and arms the receipt
// deadline. A deadline that fires converts to a persistence failure and
// releases any held lock, so a lost receipt cannot starve a room forever.
func (r *Router) dispatch(ctx context.Context, seq int64, job Job) {
	p := r.pending[seq]
	p.msg = job.Msg
	r.genCounter++
	p.gen = r.genCounter
	job.Gen = p.gen
	if r.receiptTimeout > 0 {
		p.timer = time.AfterFunc(r.receiptTimeout, func() {
			select {
			case r.expired <- seq:
			case <-ctx.Done():
			}
		})
	}
	r.exec.Dispatch(job)
}

func (r *Router) releaseLock(kind lockKind, key string) {
	switch kind {
	case lockChat:
		r.registry.ReleaseChat(key)
	case lockGame:
		r.registry.ReleaseGame(key)
	}
}

// clearPending removes the correlation entry, stops its deadline, and
// runs the unconditional lock cleanup.
func (r *Router) clearPending(seq int64, p *pendingRequest) {
	delete(r.pending, seq)
	if p.timer != nil {
		p.timer.Stop()
	}
	if p.lockHeld {
		r.releaseLock(p.lockKind, p.lockKey)
	}
}

func (r *Router) handleExpired(seq int64) {
	p, ok := r.pending[seq]
	if !ok {
		return
	}
	r.log.Warn().Int64("seq", seq).Msg("receipt deadline expired")
	r.notify(r.clients[p.clientID], seq, MsgPersistenceFailure)
	r.clearPending(seq, p)
}

func (r *Router) handleDisconnect(clientID string) {
	delete(r.clients, clientID)

	if username, ok := r.clientToUser[clientID]; ok {
		delete(r.clientToUser, clientID)
		delete(r.userToClient, username)
		if user, exists := r.registry.GetUser(username); exists {
			r.registry.GarbageCollect(user)
		}
	}

	for _, p := range r.pending {
		if p.clientID == clientID {
			p.clientID = ""
		}
	}
}

func (r *Router) handleReceipt(ctx context.Context, rc Receipt) {
	p, ok := r.pending[rc.Seq]
	if !ok {
		// Late receipt after the deadline already cleaned up.
		return
	}
	if rc.Gen != p.gen {
		// The seq was reused after an expiry; this receipt belongs to
		// the earlier dispatch. The current request keeps its lock and
		// waits for its own receipt.
		r.log.Debug().Int64("seq", rc.Seq).Uint64("gen", rc.Gen).Msg("stale receipt for reused seq")
		return
	}
	defer r.clearPending(rc.Seq, p)

	client := r.clients[p.clientID]
	if p.clientID == "" {
		// Orphaned by disconnect: nothing to apply or deliver, only the
		// lock cleanup in clearPending still matters.
		return
	}

	if !rc.Status {
		r.notify(client, rc.Seq, rc.Message)
		return
	}

	switch rc.ReceiptOf {
	case proto.ActionLogin:
		r.applyLogin(client, p, rc)
	case proto.ActionJoinChat:
		r.applyJoinChat(client, p, rc)
	case proto.ActionSayChat:
		r.applySayChat(client, p, rc)
	case proto.ActionLeaveChat:
		r.applyLeaveChat(client, p, rc)
	case proto.ActionJoinGame:
		r.applyJoinGame(client, p, rc)
	case proto.ActionSetAI, proto.ActionDelAI, proto.ActionSetTeam, proto.ActionSetMap:
		r.applyGameUpdate(client, p, rc)
	case proto.ActionStartGame:
		r.applyStartGame(ctx, client, p, rc)
	default:
		r.log.Error().Str("receipt_of", rc.ReceiptOf).Msg("receipt for unknown command")
	}
}

func (r *Router) applyLogin(client *Client, p *pendingRequest, rc Receipt) {
	username := rc.Payload.Username
	if _, taken := r.userToClient[username]; taken {
		// A concurrent login for the same username won the race.
		r.notify(client, rc.Seq, MsgAlreadyLoggedIn)
		return
	}

	user := NewUser(username)
	r.registry.AddUser(user)
	r.clientToUser[p.clientID] = username
	r.userToClient[username] = p.clientID

	r.log.Info().Str("username", username).Str("client_id", p.clientID).Msg("user logged in")
	r.sendState(client, proto.ActionLogin, rc.Seq, username)
}

// resolveUser returns the requesting user's live record, notifying the
// client when it has been garbage collected mid-flight.
func (r *Router) resolveUser(client *Client, p *pendingRequest, seq int64) (*User, bool) {
	username := r.clientToUser[p.clientID]
	user, ok := r.registry.GetUser(username)
	if !ok {
		r.notify(client, seq, MsgUserDismissed)
		return nil, false
	}
	return user, true
}

func (r *Router) applyJoinChat(client *Client, p *pendingRequest, rc Receipt) {
	user, ok := r.resolveUser(client, p, rc.Seq)
	if !ok {
		return
	}

	switch rc.Payload.Type {
	case PayloadTypeCreate:
		room := rc.Payload.Chat
		room.Join(user.Username)
		user.AssignChat(room.RoomName)
		r.registry.AssignUser(user.Username, user)
		r.registry.AddChat(room)
		r.log.Info().Str("room", room.RoomName).Str("username", user.Username).Msg("chat room created")
		r.sendState(client, proto.ActionJoinChat, rc.Seq, user.Username)

	case PayloadTypeJoin:
		room, exists := r.registry.GetChat(rc.Payload.Chat.RoomName)
		if !exists {
			r.notify(client, rc.Seq, MsgChatDismissed)
			return
		}
		room.Join(user.Username)
		user.AssignChat(room.RoomName)
		r.registry.AssignUser(user.Username, user)
		r.registry.AssignChat(room.RoomName, room)
		// Every member sees the updated member set.
		r.fanOutChat(room, proto.ActionJoinChat, rc.Seq)

	default:
		r.notify(client, rc.Seq, "something wrong happened: unknown action type")
	}
}

func (r *Router) applySayChat(client *Client, p *pendingRequest, rc Receipt) {
	user, ok := r.resolveUser(client, p, rc.Seq)
	if !ok {
		return
	}

	chat := rc.Payload.Chat
	r.registry.AssignChat(chat.RoomName, chat)
	user.AssignChat(chat.RoomName)
	r.registry.AssignUser(user.Username, user)

	r.fanOutChat(chat, proto.ActionSayChat, rc.Seq)
}

func (r *Router) applyLeaveChat(client *Client, p *pendingRequest, rc Receipt) {
	user, ok := r.resolveUser(client, p, rc.Seq)
	if !ok {
		return
	}

	chat := rc.Payload.Chat
	r.registry.AssignChat(chat.RoomName, chat)
	if chat.Empty() {
		r.registry.RemoveChat(chat.RoomName)
		r.log.Info().Str("room", chat.RoomName).Msg("empty chat room removed")
	}

	user.ClearChat()
	r.registry.AssignUser(user.Username, user)
	r.sendState(client, proto.ActionLeaveChat, rc.Seq, user.Username)
}

func (r *Router) applyJoinGame(client *Client, p *pendingRequest, rc Receipt) {
	user, ok := r.resolveUser(client, p, rc.Seq)
	if !ok {
		return
	}

	game := rc.Payload.Game
	switch rc.Payload.Type {
	case PayloadTypeCreate:
		r.registry.AddGame(game)
		r.log.Info().Str("title", game.Title).Str("autohost", game.Autohost).Int("room_id", game.RoomID).Msg("game room created")
	case PayloadTypeJoin:
		r.registry.AssignGame(game.Title, game)
	default:
		r.notify(client, rc.Seq, "something wrong happened: unknown action type")
		return
	}

	user.AssignGame(game.Title)
	r.registry.AssignUser(user.Username, user)
	r.sendState(client, proto.ActionJoinGame, rc.Seq, user.Username)
}

func (r *Router) applyGameUpdate(client *Client, p *pendingRequest, rc Receipt) {
	user, ok := r.resolveUser(client, p, rc.Seq)
	if !ok {
		return
	}

	game := rc.Payload.Game
	r.registry.AssignGame(game.Title, game)
	user.AssignGame(game.Title)
	r.registry.AssignUser(user.Username, user)

	r.fanOutGame(game, rc.ReceiptOf, rc.Seq)
}

func (r *Router) applyStartGame(ctx context.Context, client *Client, p *pendingRequest, rc Receipt) {
	user, ok := r.resolveUser(client, p, rc.Seq)
	if !ok {
		return
	}

	game := rc.Payload.Game
	r.registry.AssignGame(game.Title, game)
	user.AssignGame(game.Title)
	r.registry.AssignUser(user.Username, user)

	r.fanOutGame(game, proto.ActionStartGame, rc.Seq)

	if rc.Payload.Start {
		if err := r.fleet.Start(ctx, game.Autohost, game.StartConfig()); err != nil {
			r.log.Error().Err(err).Str("title", game.Title).Str("autohost", game.Autohost).Msg("failed to relay start directive")
			r.notify(client, rc.Seq, "failed to reach autohost")
		}
	}
}

// fanOutChat delivers a personalized snapshot to every room member.
func (r *Router) fanOutChat(chat *ChatRoom, action string, seq int64) {
	for _, member := range chat.MemberList() {
		clientID, online := r.userToClient[member]
		if !online {
			continue
		}
		r.sendState(r.clients[clientID], action, seq, member)
	}
}

// fanOutGame delivers a personalized snapshot to every seated human.
func (r *Router) fanOutGame(game *GameRoom, action string, seq int64) {
	for _, name := range game.PlayerList() {
		if slot := game.Players[name]; slot != nil && slot.IsAI {
			continue
		}
		clientID, online := r.userToClient[name]
		if !online {
			continue
		}
		r.sendState(r.clients[clientID], action, seq, name)
	}
}
