package ws

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Heartbeat keeps a user marked online until ctx is cancelled.
type Heartbeat interface {
	Run(ctx context.Context, userID string)
}

type session struct {
	conns  int
	cancel context.CancelFunc
}

// Hub maintains active websocket rooms and the users behind them. The first
// connection of a user starts its presence heartbeat and the last one to
// leave stops it.
type Hub struct {
	heartbeat Heartbeat
	log       *zap.SugaredLogger

	mu       sync.RWMutex
	rooms    map[string]map[*client]bool
	sessions map[string]*session
}

// NewHub creates an empty hub. heartbeat may be nil.
func NewHub(heartbeat Heartbeat, log *zap.SugaredLogger) *Hub {
	return &Hub{
		heartbeat: heartbeat,
		log:       log,
		rooms:     make(map[string]map[*client]bool),
		sessions:  make(map[string]*session),
	}
}

func roomKey(kind, resourceID string) string {
	return kind + ":" + resourceID
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := roomKey(c.info.Kind, c.info.ResourceID)
	if _, ok := h.rooms[key]; !ok {
		h.rooms[key] = make(map[*client]bool)
	}
	h.rooms[key][c] = true

	s, ok := h.sessions[c.info.UserID]
	if !ok {
		s = &session{}
		h.sessions[c.info.UserID] = s
		if h.heartbeat != nil {
			ctx, cancel := context.WithCancel(context.Background())
			s.cancel = cancel
			go h.heartbeat.Run(ctx, c.info.UserID)
		}
	}
	s.conns++
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := roomKey(c.info.Kind, c.info.ResourceID)
	conns, ok := h.rooms[key]
	if !ok || !conns[c] {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.rooms, key)
	}

	if s, ok := h.sessions[c.info.UserID]; ok {
		s.conns--
		if s.conns <= 0 {
			if s.cancel != nil {
				s.cancel()
			}
			delete(h.sessions, c.info.UserID)
		}
	}
}

// RoomSize returns the number of connections watching resourceID.
func (h *Hub) RoomSize(kind, resourceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomKey(kind, resourceID)])
}

// Connected reports whether userID has at least one open connection.
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sessions[userID]
	return ok
}

// DisconnectUser closes every connection of userID and returns how many were
// closed. Used on sign-out.
func (h *Hub) DisconnectUser(userID string) int {
	closed := h.collect(func(c *client) bool { return c.info.UserID == userID })
	for _, c := range closed {
		c.close()
	}
	return len(closed)
}

// Shutdown closes every connection.
func (h *Hub) Shutdown() {
	for _, c := range h.collect(func(*client) bool { return true }) {
		c.close()
	}
}

func (h *Hub) collect(match func(*client) bool) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*client
	for _, conns := range h.rooms {
		for c := range conns {
			if match(c) {
				out = append(out, c)
			}
		}
	}
	return out
}
