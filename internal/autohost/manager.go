package autohost

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/plasmarift/lobby-server/internal/core"
)

// ErrNoConnection is returned when a start directive targets an autohost
// whose connection has dropped.
var ErrNoConnection = errors.New("autohost has no live connection")

const startWriteTimeout = 5 * time.Second

// StartDirective is the one outbound message relayed to an autohost when
// a match launches.
type StartDirective struct {
	Action string           `json:"action"`
	Game   core.StartConfig `json:"game"`
}

type host struct {
	conn *websocket.Conn
	load int
}

// Manager tracks connected autohost processes and their load counters.
//
// The load counter doubles as a room-id allocator: it is incremented on
// every assignment and never decremented, and an address stays in the
// table after its connection drops (a dropped connection only makes
// Start fail fast). Both quirks are retained deliberately.
type Manager struct {
	mu    sync.Mutex
	hosts map[string]*host
	log   *zerolog.Logger
}

// NewManager creates an empty fleet.
func NewManager(logger *zerolog.Logger) *Manager {
	return &Manager{
		hosts: make(map[string]*host),
		log:   logger,
	}
}

// Register records a connected autohost. A reconnecting address keeps its
// load counter.
func (m *Manager) Register(addr string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.hosts[addr]; ok {
		existing.conn = conn
		m.log.Info().Str("addr", addr).Int("load", existing.load).Msg("autohost reconnected")
		return
	}
	m.hosts[addr] = &host{conn: conn}
	m.log.Info().Str("addr", addr).Msg("autohost connected")
}

// Disconnect clears the live connection for an address. The entry and its
// load counter remain.
func (m *Manager) Disconnect(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.hosts[addr]; ok {
		h.conn = nil
		m.log.Warn().Str("addr", addr).Msg("autohost disconnected")
	}
}

// Pick selects an autohost uniformly at random and allocates a room id
// from its load counter. ok is false when the fleet is empty.
func (m *Manager) Pick() (addr string, roomID int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.hosts) == 0 {
		return "", 0, false
	}

	addrs := make([]string, 0, len(m.hosts))
	for a := range m.hosts {
		addrs = append(addrs, a)
	}
	addr = addrs[rand.Intn(len(addrs))]

	h := m.hosts[addr]
	roomID = h.load
	h.load++
	return addr, roomID, true
}

// Start relays a start directive to the autohost at addr.
func (m *Manager) Start(ctx context.Context, addr string, cfg core.StartConfig) error {
	m.mu.Lock()
	h, ok := m.hosts[addr]
	var conn *websocket.Conn
	if ok {
		conn = h.conn
	}
	m.mu.Unlock()

	if !ok || conn == nil {
		return fmt.Errorf("autohost %s: %w", addr, ErrNoConnection)
	}

	writeCtx, cancel := context.WithTimeout(ctx, startWriteTimeout)
	defer cancel()

	directive := StartDirective{Action: "STARTGAME", Game: cfg}
	if err := wsjson.Write(writeCtx, conn, directive); err != nil {
		return fmt.Errorf("write start directive to %s: %w", addr, err)
	}

	m.log.Info().Str("addr", addr).Str("title", cfg.Title).Int("room_id", cfg.RoomID).Msg("start directive relayed")
	return nil
}

// Loads reports per-address load counters for the status endpoint.
func (m *Manager) Loads() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	loads := make(map[string]int, len(m.hosts))
	for addr, h := range m.hosts {
		loads[addr] = h.load
	}
	return loads
}
