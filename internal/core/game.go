package core

import "sort"

// PlayerSlot describes one seat in a game room.
type PlayerSlot struct {
	Team int
	IsAI bool
}

// GameRoom is a match lobby. Game rooms live only in memory; they end when
// the autohost session running the match ends.
type GameRoom struct {
	Title   string
	Hoster  string
	MapID   string
	Players map[string]*PlayerSlot
	Started bool

	// Autohost assignment, fixed at creation time.
	Autohost string
	RoomID   int
}

// NewGameRoom constructs a game room hosted by hoster, who takes the
// first seat on team 0.
func NewGameRoom(title, hoster, autohost string, roomID int) *GameRoom {
	g := &GameRoom{
		Title:    title,
		Hoster:   hoster,
		Players:  make(map[string]*PlayerSlot),
		Autohost: autohost,
		RoomID:   roomID,
	}
	g.Players[hoster] = &PlayerSlot{Team: 0}
	return g
}

// AddPlayer seats a human player. Re-joining keeps the existing slot.
func (g *GameRoom) AddPlayer(username string, team int) {
	if _, ok := g.Players[username]; ok {
		return
	}
	g.Players[username] = &PlayerSlot{Team: team}
}

// SetAI seats an AI-controlled player.
func (g *GameRoom) SetAI(name string, team int) {
	g.Players[name] = &PlayerSlot{Team: team, IsAI: true}
}

// DelAI removes an AI seat. Human seats are never removed this way.
func (g *GameRoom) DelAI(name string) bool {
	slot, ok := g.Players[name]
	if !ok || !slot.IsAI {
		return false
	}
	delete(g.Players, name)
	return true
}

// SetTeam moves a seated player to another team. Returns false if the
// player is not seated.
func (g *GameRoom) SetTeam(player string, team int) bool {
	slot, ok := g.Players[player]
	if !ok {
		return false
	}
	slot.Team = team
	return true
}

// SetMap selects the map the match will run on.
func (g *GameRoom) SetMap(mapID string) {
	g.MapID = mapID
}

// PlayerList returns seated names sorted for stable iteration.
func (g *GameRoom) PlayerList() []string {
	players := make([]string, 0, len(g.Players))
	for p := range g.Players {
		players = append(players, p)
	}
	sort.Strings(players)
	return players
}

// Clone returns an independent copy for handing to an executor.
func (g *GameRoom) Clone() *GameRoom {
	if g == nil {
		return nil
	}
	copied := *g
	copied.Players = make(map[string]*PlayerSlot, len(g.Players))
	for name, slot := range g.Players {
		s := *slot
		copied.Players[name] = &s
	}
	return &copied
}

// StartPlayer is one entry of a match start directive.
type StartPlayer struct {
	Name string `json:"name"`
	Team int    `json:"team"`
	IsAI bool   `json:"isAI"`
}

// StartConfig is the directive relayed to an autohost to launch a match.
type StartConfig struct {
	Title   string        `json:"title"`
	MapID   string        `json:"mapId"`
	RoomID  int           `json:"roomId"`
	Players []StartPlayer `json:"players"`
}

// StartConfig renders the room into an autohost start directive.
func (g *GameRoom) StartConfig() StartConfig {
	cfg := StartConfig{
		Title:  g.Title,
		MapID:  g.MapID,
		RoomID: g.RoomID,
	}
	for _, name := range g.PlayerList() {
		slot := g.Players[name]
		cfg.Players = append(cfg.Players, StartPlayer{
			Name: name,
			Team: slot.Team,
			IsAI: slot.IsAI,
		})
	}
	return cfg
}
