package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/plasmarift/lobby-server/internal/proto"
)

type captureExec struct {
	jobs chan Job
}

func (e *captureExec) Dispatch(job Job) {
	e.jobs <- job
}

type fakeFleet struct {
	mu      sync.Mutex
	addrs   []string
	loads   map[string]int
	started []StartConfig
}

func newFakeFleet(addrs ...string) *fakeFleet {
	return &fakeFleet{addrs: addrs, loads: make(map[string]int)}
}

func (f *fakeFleet) Pick() (string, int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.addrs) == 0 {
		return "", 0, false
	}
	addr := f.addrs[0]
	roomID := f.loads[addr]
	f.loads[addr]++
	return addr, roomID, true
}

func (f *fakeFleet) Start(_ context.Context, addr string, cfg StartConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, cfg)
	return nil
}

func (f *fakeFleet) startedConfigs() []StartConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]StartConfig(nil), f.started...)
}

type harness struct {
	router   *Router
	registry *Registry
	exec     *captureExec
	fleet    *fakeFleet
	receipts chan Receipt
}

func newHarness(t *testing.T, fleet *fakeFleet, receiptTimeout time.Duration) *harness {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if fleet == nil {
		fleet = newFakeFleet()
	}
	logger := zerolog.Nop()
	h := &harness{
		registry: NewRegistry(),
		exec:     &captureExec{jobs: make(chan Job, 16)},
		fleet:    fleet,
		receipts: make(chan Receipt, 16),
	}
	h.router = NewRouter(h.registry, h.exec, fleet, h.receipts, receiptTimeout, &logger)
	go h.router.Run(ctx)
	return h
}

func (h *harness) attach(id string) *Client {
	c := NewClient(id)
	h.router.Attach(c)
	return c
}

func (h *harness) submit(clientID, action string, seq int64, params map[string]any) {
	h.router.Submit(clientID, proto.Incoming{Action: action, Seq: seq, Parameters: params})
}

func mustJob(t *testing.T, jobs <-chan Job) Job {
	t.Helper()
	select {
	case job := <-jobs:
		return job
	case <-time.After(2 * time.Second):
		t.Fatal("expected a dispatched job")
		return Job{}
	}
}

func noJob(t *testing.T, jobs <-chan Job, wait time.Duration) {
	t.Helper()
	select {
	case job := <-jobs:
		t.Fatalf("unexpected dispatch of %s", job.Msg.Action)
	case <-time.After(wait):
	}
}

func mustOut(t *testing.T, c *Client, action string) proto.Outgoing {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case out := <-c.Out:
			if out.Action == action {
				return out
			}
		case <-deadline:
			t.Fatalf("expected outbound %s not received", action)
		}
	}
}

func snapshotOf(t *testing.T, out proto.Outgoing) *Snapshot {
	t.Helper()
	snap, ok := out.State.(*Snapshot)
	require.True(t, ok, "outbound state is not a snapshot")
	return snap
}

// login drives a full LOGIN round trip for the client.
func (h *harness) login(t *testing.T, c *Client, seq int64, username string) {
	t.Helper()
	h.submit(c.ID, proto.ActionLogin, seq, map[string]any{"username": username, "password": "p"})
	job := mustJob(t, h.exec.jobs)
	h.receipts <- Receipt{
		ReceiptOf: proto.ActionLogin,
		Seq:       job.Msg.Seq,
		Gen:       job.Gen,
		Status:    true,
		Message:   "login successfully",
		Payload:   ReceiptPayload{Username: username},
	}
	mustOut(t, c, proto.ActionLogin)
}

// joinChat drives a JOINCHAT round trip, answering the receipt the way an
// executor would.
func (h *harness) joinChat(t *testing.T, c *Client, seq int64, room string) {
	t.Helper()
	h.submit(c.ID, proto.ActionJoinChat, seq, map[string]any{"chatName": room, "password": ""})
	job := mustJob(t, h.exec.jobs)
	payload := ReceiptPayload{Type: PayloadTypeJoin, Chat: job.Chat}
	if job.Chat == nil {
		payload = ReceiptPayload{Type: PayloadTypeCreate, Chat: NewChatRoom(room)}
	}
	h.receipts <- Receipt{ReceiptOf: proto.ActionJoinChat, Seq: seq, Gen: job.Gen, Status: true, Payload: payload}
	mustOut(t, c, proto.ActionJoinChat)
}

func TestGetSeqIssuesMonotonicValues(t *testing.T) {
	h := newHarness(t, nil, time.Second)
	c := h.attach("c1")

	h.submit(c.ID, proto.ActionGetSeq, 0, nil)
	first := mustOut(t, c, proto.ActionGetSeq)
	h.submit(c.ID, proto.ActionGetSeq, 0, nil)
	second := mustOut(t, c, proto.ActionGetSeq)

	require.Equal(t, first.Seq+1, second.Seq)
}

func TestRejectUnknownAction(t *testing.T) {
	h := newHarness(t, nil, time.Second)
	c := h.attach("c1")

	h.submit(c.ID, "BOGUS", 5, map[string]any{})
	out := mustOut(t, c, proto.ActionNotify)
	require.Equal(t, MsgInvalidParameters, out.Message)
}

func TestRejectIncompleteParameters(t *testing.T) {
	h := newHarness(t, nil, time.Second)
	c := h.attach("c1")

	h.submit(c.ID, proto.ActionLogin, 5, map[string]any{"username": "alice"})
	out := mustOut(t, c, proto.ActionNotify)
	require.Equal(t, MsgInvalidParameters, out.Message)
}

func TestRejectMissingSeq(t *testing.T) {
	h := newHarness(t, nil, time.Second)
	c := h.attach("c1")

	h.submit(c.ID, proto.ActionLogin, 0, map[string]any{"username": "alice", "password": "p"})
	out := mustOut(t, c, proto.ActionNotify)
	require.Equal(t, MsgMissingSeq, out.Message)
}

func TestRejectDuplicateSeqWhileOutstanding(t *testing.T) {
	h := newHarness(t, nil, time.Second)
	c := h.attach("c1")

	h.submit(c.ID, proto.ActionLogin, 7, map[string]any{"username": "alice", "password": "p"})
	job := mustJob(t, h.exec.jobs)

	// Same seq again while the first is still outstanding.
	h.submit(c.ID, proto.ActionLogin, 7, map[string]any{"username": "bob", "password": "p"})
	out := mustOut(t, c, proto.ActionNotify)
	require.Equal(t, MsgDuplicateSeq, out.Message)

	// The original request is still pending and completes normally.
	h.receipts <- Receipt{
		ReceiptOf: proto.ActionLogin,
		Seq:       job.Msg.Seq,
		Gen:       job.Gen,
		Status:    true,
		Payload:   ReceiptPayload{Username: "alice"},
	}
	mustOut(t, c, proto.ActionLogin)
}

func TestRejectUnauthenticated(t *testing.T) {
	h := newHarness(t, nil, time.Second)
	c := h.attach("c1")

	h.submit(c.ID, proto.ActionJoinChat, 3, map[string]any{"chatName": "lobby", "password": ""})
	out := mustOut(t, c, proto.ActionNotify)
	require.Equal(t, MsgUnauthenticated, out.Message)
	noJob(t, h.exec.jobs, 50*time.Millisecond)
}

func TestAlreadyLoggedInRejectedLocally(t *testing.T) {
	h := newHarness(t, nil, time.Second)
	c1 := h.attach("c1")
	c2 := h.attach("c2")

	h.login(t, c1, 1, "alice")

	h.submit(c2.ID, proto.ActionLogin, 2, map[string]any{"username": "alice", "password": "p"})
	out := mustOut(t, c2, proto.ActionNotify)
	require.Equal(t, MsgAlreadyLoggedIn, out.Message)
	noJob(t, h.exec.jobs, 50*time.Millisecond)
}

func TestConcurrentLoginSameUsername(t *testing.T) {
	h := newHarness(t, nil, time.Second)
	c1 := h.attach("c1")
	c2 := h.attach("c2")

	h.submit(c1.ID, proto.ActionLogin, 1, map[string]any{"username": "alice", "password": "p"})
	job1 := mustJob(t, h.exec.jobs)
	h.submit(c2.ID, proto.ActionLogin, 2, map[string]any{"username": "alice", "password": "p"})
	job2 := mustJob(t, h.exec.jobs)

	h.receipts <- Receipt{ReceiptOf: proto.ActionLogin, Seq: job1.Msg.Seq, Gen: job1.Gen, Status: true, Payload: ReceiptPayload{Username: "alice"}}
	mustOut(t, c1, proto.ActionLogin)

	h.receipts <- Receipt{ReceiptOf: proto.ActionLogin, Seq: job2.Msg.Seq, Gen: job2.Gen, Status: true, Payload: ReceiptPayload{Username: "alice"}}
	out := mustOut(t, c2, proto.ActionNotify)
	require.Equal(t, MsgAlreadyLoggedIn, out.Message)

	users, _, _ := h.registry.Counts()
	require.Equal(t, 1, users)
}

func TestChatScenario(t *testing.T) {
	h := newHarness(t, nil, time.Second)
	c1 := h.attach("c1")
	c2 := h.attach("c2")

	h.login(t, c1, 1, "a")

	// First JOINCHAT creates the room.
	h.submit(c1.ID, proto.ActionJoinChat, 2, map[string]any{"chatName": "lobby", "password": ""})
	job := mustJob(t, h.exec.jobs)
	require.Nil(t, job.Chat)
	h.receipts <- Receipt{
		ReceiptOf: proto.ActionJoinChat,
		Seq:       2,
		Gen:       job.Gen,
		Status:    true,
		Payload:   ReceiptPayload{Type: PayloadTypeCreate, Chat: NewChatRoom("lobby")},
	}
	out := mustOut(t, c1, proto.ActionJoinChat)
	snap := snapshotOf(t, out)
	require.Equal(t, []string{"a"}, snap.Chat.Members)

	// Second client joins the existing room under its lock.
	h.login(t, c2, 3, "b")
	h.submit(c2.ID, proto.ActionJoinChat, 4, map[string]any{"chatName": "lobby", "password": ""})
	job = mustJob(t, h.exec.jobs)
	require.NotNil(t, job.Chat)
	require.True(t, job.Chat.Has("a"))
	h.receipts <- Receipt{
		ReceiptOf: proto.ActionJoinChat,
		Seq:       4,
		Gen:       job.Gen,
		Status:    true,
		Payload:   ReceiptPayload{Type: PayloadTypeJoin, Chat: job.Chat},
	}

	// Both members see the updated member set.
	aView := snapshotOf(t, mustOut(t, c1, proto.ActionJoinChat))
	bView := snapshotOf(t, mustOut(t, c2, proto.ActionJoinChat))
	require.Equal(t, []string{"a", "b"}, aView.Chat.Members)
	require.Equal(t, []string{"a", "b"}, bView.Chat.Members)
	require.Equal(t, "a", aView.User.Username)
	require.Equal(t, "b", bView.User.Username)

	// A chat line fans out personalized snapshots with the new message.
	h.submit(c1.ID, proto.ActionSayChat, 5, map[string]any{"chatName": "lobby", "message": "hi"})
	job = mustJob(t, h.exec.jobs)
	job.Chat.Say("a", "hi")
	h.receipts <- Receipt{
		ReceiptOf: proto.ActionSayChat,
		Seq:       5,
		Gen:       job.Gen,
		Status:    true,
		Payload:   ReceiptPayload{Chat: job.Chat},
	}
	aSay := snapshotOf(t, mustOut(t, c1, proto.ActionSayChat))
	bSay := snapshotOf(t, mustOut(t, c2, proto.ActionSayChat))
	require.Equal(t, "hi", aSay.Chat.LastMessage.Text)
	require.Equal(t, "hi", bSay.Chat.LastMessage.Text)

	// Disconnecting "a" drops the user but keeps the occupied room.
	h.router.Detach(c1.ID)
	require.Eventually(t, func() bool {
		_, ok := h.registry.GetUser("a")
		return !ok
	}, time.Second, 10*time.Millisecond)
	_, ok := h.registry.GetChat("lobby")
	require.True(t, ok)

	// When "b" leaves, the room empties out and is removed.
	h.submit(c2.ID, proto.ActionLeaveChat, 6, map[string]any{"chatName": "lobby"})
	job = mustJob(t, h.exec.jobs)
	require.True(t, job.Chat.Leave("b"))
	h.receipts <- Receipt{
		ReceiptOf: proto.ActionLeaveChat,
		Seq:       6,
		Gen:       job.Gen,
		Status:    true,
		Payload:   ReceiptPayload{Chat: job.Chat},
	}
	leave := snapshotOf(t, mustOut(t, c2, proto.ActionLeaveChat))
	require.Empty(t, leave.User.ChatRoom)
	require.Eventually(t, func() bool {
		_, ok := h.registry.GetChat("lobby")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestLockSerializesSameRoom(t *testing.T) {
	h := newHarness(t, nil, 5*time.Second)
	c1 := h.attach("c1")
	c2 := h.attach("c2")

	h.login(t, c1, 1, "a")
	h.joinChat(t, c1, 2, "lobby")
	h.login(t, c2, 3, "b")
	h.joinChat(t, c2, 4, "lobby")

	h.submit(c1.ID, proto.ActionSayChat, 5, map[string]any{"chatName": "lobby", "message": "first"})
	job1 := mustJob(t, h.exec.jobs)

	// The second mutation must queue behind the held lock.
	h.submit(c2.ID, proto.ActionSayChat, 6, map[string]any{"chatName": "lobby", "message": "second"})
	noJob(t, h.exec.jobs, 100*time.Millisecond)

	job1.Chat.Say("a", "first")
	h.receipts <- Receipt{ReceiptOf: proto.ActionSayChat, Seq: 5, Gen: job1.Gen, Status: true, Payload: ReceiptPayload{Chat: job1.Chat}}

	job2 := mustJob(t, h.exec.jobs)
	require.Equal(t, "second", proto.StringParam(job2.Msg.Parameters, "message"))
}

func TestReceiptDeadlineReleasesLock(t *testing.T) {
	h := newHarness(t, nil, 200*time.Millisecond)
	c := h.attach("c1")

	h.login(t, c, 1, "a")
	h.joinChat(t, c, 2, "lobby")

	h.submit(c.ID, proto.ActionSayChat, 3, map[string]any{"chatName": "lobby", "message": "lost"})
	job := mustJob(t, h.exec.jobs)

	// No receipt: the deadline fires, the client is notified, and the
	// room lock is released.
	out := mustOut(t, c, proto.ActionNotify)
	require.Equal(t, MsgPersistenceFailure, out.Message)

	h.submit(c.ID, proto.ActionSayChat, 4, map[string]any{"chatName": "lobby", "message": "retry"})
	retry := mustJob(t, h.exec.jobs)
	require.Equal(t, "retry", proto.StringParam(retry.Msg.Parameters, "message"))

	// The late receipt is an orphaned no-op.
	job.Chat.Say("a", "lost")
	h.receipts <- Receipt{ReceiptOf: proto.ActionSayChat, Seq: 3, Gen: job.Gen, Status: true, Payload: ReceiptPayload{Chat: job.Chat}}
	noJob(t, h.exec.jobs, 50*time.Millisecond)
}

func TestFailedReceiptNotifiesOriginatorOnly(t *testing.T) {
	h := newHarness(t, nil, time.Second)
	c := h.attach("c1")

	h.login(t, c, 1, "a")
	h.submit(c.ID, proto.ActionJoinChat, 2, map[string]any{"chatName": "vault", "password": "wrong"})
	job := mustJob(t, h.exec.jobs)
	h.receipts <- Receipt{ReceiptOf: proto.ActionJoinChat, Seq: 2, Gen: job.Gen, Status: false, Message: "wrong password"}

	out := mustOut(t, c, proto.ActionNotify)
	require.Equal(t, "wrong password", out.Message)
}

func TestJoinGameWithoutAutohostRejected(t *testing.T) {
	h := newHarness(t, newFakeFleet(), time.Second)
	c := h.attach("c1")

	h.login(t, c, 1, "a")
	h.submit(c.ID, proto.ActionJoinGame, 2, map[string]any{"gameName": "skirmish"})

	out := mustOut(t, c, proto.ActionNotify)
	require.Equal(t, MsgNoAutohost, out.Message)
	noJob(t, h.exec.jobs, 50*time.Millisecond)
}

func TestJoinGameCreateUpdateAndStart(t *testing.T) {
	fleet := newFakeFleet("10.0.0.5")
	h := newHarness(t, fleet, time.Second)
	c := h.attach("c1")

	h.login(t, c, 1, "a")

	// Create: a fresh autohost slot is attached to the dispatch.
	h.submit(c.ID, proto.ActionJoinGame, 2, map[string]any{"gameName": "skirmish"})
	job := mustJob(t, h.exec.jobs)
	require.Equal(t, "10.0.0.5", job.Autohost)
	require.Equal(t, 0, job.RoomID)
	game := NewGameRoom("skirmish", "a", job.Autohost, job.RoomID)
	h.receipts <- Receipt{ReceiptOf: proto.ActionJoinGame, Seq: 2, Gen: job.Gen, Status: true, Payload: ReceiptPayload{Type: PayloadTypeCreate, Game: game}}
	snap := snapshotOf(t, mustOut(t, c, proto.ActionJoinGame))
	require.Equal(t, "skirmish", snap.Game.Title)

	// Update: the existing room is locked and a copy dispatched.
	h.submit(c.ID, proto.ActionSetMap, 3, map[string]any{"gameName": "skirmish", "mapId": "red_canyon"})
	job = mustJob(t, h.exec.jobs)
	require.NotNil(t, job.Game)
	job.Game.SetMap("red_canyon")
	h.receipts <- Receipt{ReceiptOf: proto.ActionSetMap, Seq: 3, Gen: job.Gen, Status: true, Payload: ReceiptPayload{Game: job.Game}}
	snap = snapshotOf(t, mustOut(t, c, proto.ActionSetMap))
	require.Equal(t, "red_canyon", snap.Game.MapID)

	// Start: the directive is relayed to the assigned autohost.
	h.submit(c.ID, proto.ActionStartGame, 4, map[string]any{"start": true})
	job = mustJob(t, h.exec.jobs)
	job.Game.Started = true
	h.receipts <- Receipt{ReceiptOf: proto.ActionStartGame, Seq: 4, Gen: job.Gen, Status: true, Payload: ReceiptPayload{Game: job.Game, Start: true}}
	snap = snapshotOf(t, mustOut(t, c, proto.ActionStartGame))
	require.True(t, snap.Game.Started)

	require.Eventually(t, func() bool {
		return len(fleet.startedConfigs()) == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, "skirmish", fleet.startedConfigs()[0].Title)
}

func TestCommandRightAfterAttachIsProcessed(t *testing.T) {
	h := newHarness(t, nil, time.Second)

	// Attach and the first command share one ordered event stream, so
	// the command can never overtake the registration.
	for i := 0; i < 50; i++ {
		c := NewClient(fmt.Sprintf("c%d", i))
		h.router.Attach(c)
		h.submit(c.ID, proto.ActionGetSeq, 0, nil)
		mustOut(t, c, proto.ActionGetSeq)
	}
}

func TestStaleReceiptForReusedSeqIgnored(t *testing.T) {
	h := newHarness(t, nil, 400*time.Millisecond)
	c := h.attach("c1")

	h.login(t, c, 1, "a")
	h.joinChat(t, c, 2, "lobby")

	h.submit(c.ID, proto.ActionSayChat, 3, map[string]any{"chatName": "lobby", "message": "lost"})
	lost := mustJob(t, h.exec.jobs)
	out := mustOut(t, c, proto.ActionNotify)
	require.Equal(t, MsgPersistenceFailure, out.Message)

	// The freed seq is reused for a retry, which takes the room lock.
	h.submit(c.ID, proto.ActionSayChat, 3, map[string]any{"chatName": "lobby", "message": "retry"})
	retry := mustJob(t, h.exec.jobs)
	require.NotEqual(t, lost.Gen, retry.Gen)

	// The first executor finally answers under the reused seq. Its
	// receipt must not be applied and must not release the retry's lock.
	lost.Chat.Say("a", "lost")
	h.receipts <- Receipt{ReceiptOf: proto.ActionSayChat, Seq: 3, Gen: lost.Gen, Status: true, Payload: ReceiptPayload{Chat: lost.Chat}}

	h.submit(c.ID, proto.ActionSayChat, 4, map[string]any{"chatName": "lobby", "message": "queued"})
	noJob(t, h.exec.jobs, 80*time.Millisecond)

	// The retry's own receipt answers the client with the right line.
	retry.Chat.Say("a", "retry")
	h.receipts <- Receipt{ReceiptOf: proto.ActionSayChat, Seq: 3, Gen: retry.Gen, Status: true, Payload: ReceiptPayload{Chat: retry.Chat}}
	snap := snapshotOf(t, mustOut(t, c, proto.ActionSayChat))
	require.Equal(t, "retry", snap.Chat.LastMessage.Text)

	// And only then is the lock handed to the queued command.
	queued := mustJob(t, h.exec.jobs)
	require.Equal(t, "queued", proto.StringParam(queued.Msg.Parameters, "message"))
}

func TestSlowClientIsCut(t *testing.T) {
	h := newHarness(t, nil, time.Second)
	c := h.attach("c1")
	sentinel := h.attach("c2")

	// Nothing drains c: its 16-slot buffer overflows.
	for i := 0; i < 20; i++ {
		h.submit(c.ID, proto.ActionGetSeq, 0, nil)
	}

	// The sentinel round trip proves all of c's commands were processed.
	h.submit(sentinel.ID, proto.ActionGetSeq, 0, nil)
	mustOut(t, sentinel, proto.ActionGetSeq)

	// The buffered messages are still readable, then Out is closed so
	// the transport tears the connection down.
	count := 0
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-c.Out:
			if !ok {
				require.Equal(t, 16, count)
				return
			}
			count++
		case <-deadline:
			t.Fatal("stalled client's channel was not closed")
		}
	}
}
