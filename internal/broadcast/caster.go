package broadcast

import (
	"fmt"
	"log"
	"sync"

	"github.com/studyhive/studyroom/internal/stats"
	"github.com/studyhive/studyroom/internal/types"
)

// RoomLookup is the slice of the session directory the broadcaster needs:
// room existence checks, nothing else.
type RoomLookup interface {
	LookupByCode(roomCode string) (types.Session, error)
}

// Caster fans events out to the live connections subscribed to each room
// code. Group membership is process-local and ephemeral; the attendance
// ledger, not the caster, is authoritative for who is in a session.
type Caster struct {
	log       *log.Logger
	directory RoomLookup
	stats     stats.StatsProvider

	mu     sync.RWMutex
	groups map[string]*RoomGroup
}

// RoomGroup is the set of connections currently receiving one room's
// events. Created on first subscribe, discarded when the last connection
// leaves.
type RoomGroup struct {
	code string

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewCaster(logger *log.Logger, directory RoomLookup, sp stats.StatsProvider) *Caster {
	return &Caster{
		log:       logger,
		directory: directory,
		stats:     sp,
		groups:    make(map[string]*RoomGroup),
	}
}

// Subscribe adds the client's connection to its room's group, creating the
// group if this is the first subscriber. Fails when no session has the
// client's room code.
func (cs *Caster) Subscribe(c *Client) error {
	if _, err := cs.directory.LookupByCode(c.roomCode); err != nil {
		return fmt.Errorf("subscribe %q: %w", c.roomCode, err)
	}

	cs.mu.Lock()
	group, ok := cs.groups[c.roomCode]
	if !ok {
		group = &RoomGroup{
			code:    c.roomCode,
			clients: make(map[*Client]struct{}),
		}
		cs.groups[c.roomCode] = group
		cs.stats.Incr(stats.ActiveRoomGroups)
		cs.log.Printf("created room group %q", c.roomCode)
	}
	cs.mu.Unlock()

	group.addClient(c)
	cs.stats.Incr(stats.ActiveConnections)

	return nil
}

// Unsubscribe removes the connection from its group and discards the group
// once empty. Safe to call for a client that was never subscribed.
func (cs *Caster) Unsubscribe(c *Client) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	group, ok := cs.groups[c.roomCode]
	if !ok {
		return
	}

	if !group.removeClient(c) {
		return
	}
	cs.stats.Decr(stats.ActiveConnections)

	if group.empty() {
		delete(cs.groups, c.roomCode)
		cs.stats.Decr(stats.ActiveRoomGroups)
		cs.log.Printf("discarded empty room group %q", c.roomCode)
	}
}

// Broadcast delivers the payload to every connection in the room's group.
// Delivery is fire-and-forget per connection.
func (cs *Caster) Broadcast(roomCode string, payload []byte) {
	cs.BroadcastExcept(roomCode, payload, nil)
}

// BroadcastExcept is Broadcast with a single excluded connection.
func (cs *Caster) BroadcastExcept(roomCode string, payload []byte, skip *Client) {
	cs.mu.RLock()
	group, ok := cs.groups[roomCode]
	cs.mu.RUnlock()
	if !ok {
		return
	}

	group.mu.RLock()
	defer group.mu.RUnlock()

	for client := range group.clients {
		if client == skip {
			continue
		}

		if !client.queueMessage(payload) {
			cs.stats.Incr(stats.EventsDropped)
		}
	}

	cs.stats.Incr(stats.EventsBroadcast)
}

// GroupSize reports the number of live connections in a room's group.
func (cs *Caster) GroupSize(roomCode string) int {
	cs.mu.RLock()
	group, ok := cs.groups[roomCode]
	cs.mu.RUnlock()
	if !ok {
		return 0
	}

	group.mu.RLock()
	defer group.mu.RUnlock()

	return len(group.clients)
}

// Shutdown stops every subscribed client.
func (cs *Caster) Shutdown() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for code, group := range cs.groups {
		group.mu.Lock()
		for client := range group.clients {
			client.Stop()
		}
		group.mu.Unlock()
		delete(cs.groups, code)
	}
}

func (g *RoomGroup) addClient(c *Client) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.clients[c] = struct{}{}
}

func (g *RoomGroup) removeClient(c *Client) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.clients[c]; !ok {
		return false
	}

	delete(g.clients, c)
	return true
}

func (g *RoomGroup) empty() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.clients) == 0
}
