package server

import (
	"strings"
	"sync"

	"github.com/lox/eldorado/internal/metrics"
)

// Registry indexes live rooms by game id and join code.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	byCode  map[string]string
	metrics *metrics.Metrics
}

// NewRegistry builds an empty registry. metrics may be nil.
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		rooms:   make(map[string]*Room),
		byCode:  make(map[string]string),
		metrics: m,
	}
}

// Add registers a room under its game id and join code.
func (reg *Registry) Add(room *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.rooms[room.GameID] = room
	if room.JoinCode != "" {
		reg.byCode[room.JoinCode] = room.GameID
	}
	if reg.metrics != nil {
		reg.metrics.ActiveRooms.Set(float64(len(reg.rooms)))
	}
}

// Get returns the room for a game id, or nil.
func (reg *Registry) Get(gameID string) *Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.rooms[gameID]
}

// ByCode returns the room for a join code, or nil. Codes are matched
// case-insensitively.
func (reg *Registry) ByCode(code string) *Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	gameID, ok := reg.byCode[strings.ToUpper(code)]
	if !ok {
		return nil
	}
	return reg.rooms[gameID]
}

// CodeTaken reports whether a join code is already assigned.
func (reg *Registry) CodeTaken(code string) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	_, ok := reg.byCode[code]
	return ok
}

// Remove drops a room from both indexes.
func (reg *Registry) Remove(gameID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	room, ok := reg.rooms[gameID]
	if !ok {
		return
	}
	delete(reg.rooms, gameID)
	if room.JoinCode != "" {
		delete(reg.byCode, room.JoinCode)
	}
	if reg.metrics != nil {
		reg.metrics.ActiveRooms.Set(float64(len(reg.rooms)))
	}
}

// Len returns the number of registered rooms.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}
