// Package ws provides the real-time fan-out layer. Clients join rooms, and
// events published to a room are pushed to every client in it. A room is
// scoped by channel (appointments, notifications, dm, support) plus a room
// id, so traffic never leaks between hospitals, users, or chat sessions.
package ws

import (
	"encoding/json"
	"hash/fnv"
	"log"
	"sync"
)

// Room identifies a broadcast scope: a channel name plus a room id within it.
type Room struct {
	Channel string
	ID      string
}

func (r Room) key() string { return r.Channel + "/" + r.ID }

// Rooms are spread across a fixed set of shards, each guarded by its own
// RWMutex, so a busy hospital's queue fan-out never contends with an
// unrelated chat session.
const shardCount = 16

type shard struct {
	mu    sync.RWMutex
	rooms map[Room]map[*Client]struct{}
}

// Hub is the connection registry. All operations are safe for concurrent use.
type Hub struct {
	shards [shardCount]shard
}

// NewHub creates a Hub ready to manage clients.
func NewHub() *Hub {
	h := &Hub{}
	for i := range h.shards {
		h.shards[i].rooms = make(map[Room]map[*Client]struct{})
	}
	return h
}

func (h *Hub) shardFor(r Room) *shard {
	f := fnv.New32a()
	f.Write([]byte(r.key()))
	return &h.shards[f.Sum32()%shardCount]
}

// Join adds a client to a room, creating the room on first join.
func (h *Hub) Join(client *Client, r Room) {
	s := h.shardFor(r)
	s.mu.Lock()
	if s.rooms[r] == nil {
		s.rooms[r] = make(map[*Client]struct{})
	}
	s.rooms[r][client] = struct{}{}
	s.mu.Unlock()

	client.addRoom(r)
}

// Leave removes a client from a room. Empty rooms are pruned so the registry
// does not accumulate dead entries.
func (h *Hub) Leave(client *Client, r Room) {
	s := h.shardFor(r)
	s.mu.Lock()
	if members, ok := s.rooms[r]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(s.rooms, r)
		}
	}
	s.mu.Unlock()

	client.removeRoom(r)
}

// Disconnect removes a client from every room it joined and closes its Send
// channel. Safe to call more than once.
func (h *Hub) Disconnect(client *Client) {
	for _, r := range client.takeRooms() {
		s := h.shardFor(r)
		s.mu.Lock()
		if members, ok := s.rooms[r]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(s.rooms, r)
			}
		}
		s.mu.Unlock()
	}
	client.closeSend()
}

// Publish marshals payload once and sends it to every client in the room.
// A client whose buffer is full is skipped; a slow consumer never stalls
// the rest of the room.
func (h *Hub) Publish(r Room, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ws: failed to marshal payload for %s: %v", r.key(), err)
		return err
	}
	h.PublishRaw(r, data)
	return nil
}

// PublishRaw sends pre-encoded bytes to every client in the room.
func (h *Hub) PublishRaw(r Room, data []byte) {
	s := h.shardFor(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.rooms[r] {
		select {
		case client.Send <- data:
		default:
			// Client buffer full; skip to avoid blocking.
		}
	}
}

// RoomCount returns the number of clients currently in a room.
func (h *Hub) RoomCount(r Room) int {
	s := h.shardFor(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[r])
}

// ClientCount returns the number of room memberships across the hub.
func (h *Hub) ClientCount() int {
	total := 0
	for i := range h.shards {
		s := &h.shards[i]
		s.mu.RLock()
		for _, members := range s.rooms {
			total += len(members)
		}
		s.mu.RUnlock()
	}
	return total
}
