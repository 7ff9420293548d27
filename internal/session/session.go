package session

import (
	"errors"
	"slices"
	"sync"

	"github.com/DoyleJ11/hexroom-backend/internal/event"
)

var ErrUnknownSession = errors.New("unknown session")

type session struct {
	outbox event.Outbox
	rooms  map[string]struct{}
}

// Registry tracks which rooms each live connection belongs to, so a
// disconnect only touches the rooms that connection actually joined.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*session)}
}

func (r *Registry) OnConnect(connID string, out event.Outbox) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[connID] = &session{outbox: out, rooms: make(map[string]struct{})}
}

func (r *Registry) OnJoin(connID, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	if !ok {
		return ErrUnknownSession
	}
	s.rooms[code] = struct{}{}
	return nil
}

func (r *Registry) OnLeave(connID, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	if !ok {
		return ErrUnknownSession
	}
	delete(s.rooms, code)
	return nil
}

// OnDisconnect forgets the session and returns the rooms it had joined,
// sorted.
func (r *Registry) OnDisconnect(connID string) []string {
	r.mu.Lock()
	s, ok := r.sessions[connID]
	delete(r.sessions, connID)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return sortedKeys(s.rooms)
}

// joined lists connID's rooms; tests only.
func (r *Registry) joined(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	if !ok {
		return nil
	}
	return sortedKeys(s.rooms)
}

func (r *Registry) Outbox(connID string) (event.Outbox, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	if !ok {
		return nil, false
	}
	return s.outbox, true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
