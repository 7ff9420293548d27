package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/hexroom-backend/internal/cell"
	"github.com/DoyleJ11/hexroom-backend/internal/code"
	"github.com/DoyleJ11/hexroom-backend/internal/event"
	"github.com/DoyleJ11/hexroom-backend/internal/room"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrStoreClosed  = errors.New("room store closed")
)

type Options struct {
	CodeLength      int
	CodeMaxAttempts int
	EmptyRoomGrace  time.Duration
	Now             func() time.Time
}

// Store is the table of live rooms. Its lock only guards the map; it is
// never held while a room is being talked to, so a busy room cannot stall
// lookups of unrelated rooms.
type Store struct {
	mu     sync.RWMutex
	rooms  map[string]*room.Room
	closed bool

	codes *code.Generator
	opts  Options
	log   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type Stats struct {
	Rooms int `json:"rooms"`
}

func New(parent context.Context, log *zap.Logger, opts Options) *Store {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		rooms:  make(map[string]*room.Room),
		codes:  code.NewGenerator(opts.CodeLength, opts.CodeMaxAttempts),
		opts:   opts,
		log:    log.With(zap.String("component", "store")),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Create registers a new room owned by ownerID and returns its code. The
// owner receives room-created on its outbox.
func (s *Store) Create(ownerID string, owner event.Outbox) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrStoreClosed
	}

	c, err := s.codes.Generate(func(c string) bool {
		_, taken := s.rooms[c]
		return taken
	})
	if err != nil {
		return "", err
	}

	s.rooms[c] = room.New(s.ctx, c, ownerID, owner, room.Options{
		Grace:   s.opts.EmptyRoomGrace,
		OnClose: s.remove,
		Now:     s.opts.Now,
		Logger:  s.log,
	})
	s.log.Info("room created", zap.String("room", c), zap.String("conn", ownerID))
	return c, nil
}

// Get returns the live room for c, or nil.
func (s *Store) Get(c string) *room.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[code.Normalize(c)]
}

// Join adds connID to the room and returns a snapshot of its cells.
func (s *Store) Join(c, connID string, out event.Outbox) (cell.Cells, error) {
	r := s.Get(c)
	if r == nil {
		return nil, fmt.Errorf("join %q: %w", c, ErrRoomNotFound)
	}
	snap, err := r.Join(connID, out)
	if errors.Is(err, room.ErrRoomClosed) {
		// lost the race with the last member leaving
		return nil, fmt.Errorf("join %q: %w", c, ErrRoomNotFound)
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// UpdateHexState merges partial into the cell. It reports false when the
// room no longer exists; callers drop such updates.
func (s *Store) UpdateHexState(c, connID, cellID string, partial cell.State) bool {
	r := s.Get(c)
	if r == nil {
		return false
	}
	return r.UpdateCell(connID, cellID, partial) == nil
}

// Chat broadcasts text to every member of the room. False when the room no
// longer exists.
func (s *Store) Chat(c, connID, text string) bool {
	r := s.Get(c)
	if r == nil {
		return false
	}
	return r.Chat(connID, text) == nil
}

// Leave removes connID from one room. It reports whether the connection was
// a member.
func (s *Store) Leave(c, connID string) (bool, error) {
	r := s.Get(c)
	if r == nil {
		return false, fmt.Errorf("leave %q: %w", c, ErrRoomNotFound)
	}
	res, err := r.Leave(connID)
	if errors.Is(err, room.ErrRoomClosed) {
		return false, fmt.Errorf("leave %q: %w", c, ErrRoomNotFound)
	}
	if err != nil {
		return false, err
	}
	if res.Closed {
		s.remove(r)
	}
	return res.Left, nil
}

// RemoveConnection is the disconnect path: connID leaves every room in codes.
// Rooms left empty are destroyed. It returns the codes the connection
// actually left.
func (s *Store) RemoveConnection(connID string, codes []string) []string {
	var left []string
	for _, c := range codes {
		ok, err := s.Leave(c, connID)
		if err != nil {
			s.log.Debug("room already gone on disconnect",
				zap.String("room", c),
				zap.String("conn", connID),
				zap.Error(err),
			)
			continue
		}
		if ok {
			left = append(left, c)
		}
	}
	return left
}

// View returns a point-in-time copy of a room.
func (s *Store) View(c string) (room.View, error) {
	r := s.Get(c)
	if r == nil {
		return room.View{}, ErrRoomNotFound
	}
	v, err := r.View()
	if errors.Is(err, room.ErrRoomClosed) {
		return room.View{}, ErrRoomNotFound
	}
	return v, err
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Rooms: len(s.rooms)}
}

// Valid reports whether c has the shape of a room code.
func (s *Store) Valid(c string) bool {
	return s.codes.Valid(code.Normalize(c))
}

// Shutdown stops every room. Later calls to Create fail with ErrStoreClosed.
func (s *Store) Shutdown() {
	s.mu.Lock()
	s.closed = true
	rooms := make([]*room.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	clear(s.rooms)
	s.mu.Unlock()

	for _, r := range rooms {
		r.Close()
	}
	s.cancel()
	s.log.Info("store shut down", zap.Int("rooms", len(rooms)))
}

// remove deletes r if it is still the room registered under its code. A
// closed room's code may already have been reissued.
func (s *Store) remove(r *room.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.rooms[r.Code()]; ok && cur == r {
		delete(s.rooms, r.Code())
		s.log.Info("room destroyed", zap.String("room", r.Code()))
	}
}
