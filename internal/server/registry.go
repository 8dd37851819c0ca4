// Package server implements the room registry that owns every game room and
// player record. All mutation of room state goes through the Registry's
// methods; the hub and handlers never touch a Room or Player directly.
package server

import (
	"errors"
	"strconv"
	"sync"
)

// Registry operation errors. Handshake failures map onto these sentinels.
var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomFull       = errors.New("room is full")
	ErrPlayerNotFound = errors.New("player not found")
	ErrIdentityTaken  = errors.New("identity already present in room")
)

// Position is a player's location in the game world.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Player is one room member. The identity comes from the connection handshake
// and never leaves the server, so it is excluded from JSON payloads.
type Player struct {
	Identity string   `json:"-"`
	Name     string   `json:"name"`
	Position Position `json:"position"`
}

// RoomSummary is the discovery view of a room: occupancy only, no player details.
type RoomSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MaxPlayers int    `json:"maxPlayers"`
	Players    int    `json:"players"`
}

// JoinResult captures everything a successful join needs to report: the joined
// player, a snapshot of the peers already in the room (taken in the same
// critical section as the join, so it is consistent with it), and the room's
// identity for the serverData payload.
type JoinResult struct {
	Self       Player
	Peers      []Player
	RoomID     string
	RoomName   string
	MaxPlayers int
}

type room struct {
	id         string
	name       string
	maxPlayers int
	players    []Player // insertion order is join order
}

func (r *room) indexOf(identity string) int {
	for i := range r.players {
		if r.players[i].Identity == identity {
			return i
		}
	}
	return -1
}

// Registry is the process-wide set of rooms. Rooms are seeded once at
// construction and live for the process lifetime. The mutex covers every
// read-modify-write on a room's player list so that two joins racing a single
// remaining slot can never both succeed.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room
	order []string
}

// NewRegistry seeds count rooms with the given capacity. Room ids are the
// decimal indexes "0", "1", ... and display names are randomly generated.
func NewRegistry(count, capacity int) *Registry {
	if count <= 0 {
		count = 1
	}
	if capacity <= 0 {
		capacity = 1
	}

	reg := &Registry{
		rooms: make(map[string]*room, count),
		order: make([]string, 0, count),
	}
	for i := 0; i < count; i++ {
		id := strconv.Itoa(i)
		reg.rooms[id] = &room{
			id:         id,
			name:       generateRoomName(),
			maxPlayers: capacity,
			players:    make([]Player, 0, capacity),
		}
		reg.order = append(reg.order, id)
	}
	return reg
}

// ListRooms returns a summary of every room in creation order. Read-only and
// safe to call concurrently with any other registry operation.
func (reg *Registry) ListRooms() []RoomSummary {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	summaries := make([]RoomSummary, 0, len(reg.order))
	for _, id := range reg.order {
		r := reg.rooms[id]
		summaries = append(summaries, RoomSummary{
			ID:         r.id,
			Name:       r.name,
			MaxPlayers: r.maxPlayers,
			Players:    len(r.players),
		})
	}
	return summaries
}

// TryJoin atomically checks capacity and appends a new player to the room.
// The empty display name defaults to "Player" and new players start at the
// origin. A duplicate identity within the same room is rejected.
func (reg *Registry) TryJoin(roomID, identity, name string) (*JoinResult, error) {
	if name == "" {
		name = "Player"
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if len(r.players) >= r.maxPlayers {
		return nil, ErrRoomFull
	}
	if r.indexOf(identity) >= 0 {
		return nil, ErrIdentityTaken
	}

	player := Player{Identity: identity, Name: name}
	peers := make([]Player, len(r.players))
	copy(peers, r.players)
	r.players = append(r.players, player)

	return &JoinResult{
		Self:       player,
		Peers:      peers,
		RoomID:     r.id,
		RoomName:   r.name,
		MaxPlayers: r.maxPlayers,
	}, nil
}

// Leave removes the player with the given identity from the room and returns
// its last-known record, which carries the display name for the leave
// notification. Removal of an absent player reports ErrPlayerNotFound.
func (reg *Registry) Leave(roomID, identity string) (Player, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.rooms[roomID]
	if !ok {
		return Player{}, ErrRoomNotFound
	}
	i := r.indexOf(identity)
	if i < 0 {
		return Player{}, ErrPlayerNotFound
	}

	player := r.players[i]
	r.players = append(r.players[:i], r.players[i+1:]...)
	return player, nil
}

// UpdatePosition overwrites the player's position in place. Last writer wins;
// there is no versioning or conflict detection. Updating a player that already
// left reports ErrPlayerNotFound, which callers treat as a benign no-op.
func (reg *Registry) UpdatePosition(roomID, identity string, pos Position) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	i := r.indexOf(identity)
	if i < 0 {
		return ErrPlayerNotFound
	}

	r.players[i].Position = pos
	return nil
}
