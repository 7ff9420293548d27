package gateway

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/hexroom-backend/internal/cell"
	"github.com/DoyleJ11/hexroom-backend/internal/code"
	"github.com/DoyleJ11/hexroom-backend/internal/event"
	"github.com/DoyleJ11/hexroom-backend/internal/session"
	"github.com/DoyleJ11/hexroom-backend/internal/store"
)

var ErrBadRequest = errors.New("bad request")

type Command interface{ isCommand() }

type CreateRoom struct{}

func (CreateRoom) isCommand() {}

type JoinRoom struct{ Code string }

func (JoinRoom) isCommand() {}

type MutateCell struct {
	Code    string
	CellID  string
	Partial cell.State
}

func (MutateCell) isCommand() {}

type Chat struct {
	Code string
	Text string
}

func (Chat) isCommand() {}

type LeaveRoom struct{ Code string }

func (LeaveRoom) isCommand() {}

// Gateway turns connection commands into store operations. Room events are
// fanned out by the rooms themselves; the gateway only answers the
// requesting connection directly, and only for errors and leaves.
//
// Calls for one connection must not overlap: Connect, then any number of
// Handle calls in order, then Disconnect.
type Gateway struct {
	store    *store.Store
	sessions *session.Registry
	log      *zap.Logger
}

func New(st *store.Store, sessions *session.Registry, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{
		store:    st,
		sessions: sessions,
		log:      log.With(zap.String("component", "gateway")),
	}
}

func (g *Gateway) Connect(connID string, out event.Outbox) {
	g.sessions.OnConnect(connID, out)
	g.log.Debug("connected", zap.String("conn", connID))
}

// Handle applies one command for connID. The returned error is informational;
// the connection has already been told about anything it needs to know.
func (g *Gateway) Handle(connID string, cmd Command) error {
	out, ok := g.sessions.Outbox(connID)
	if !ok {
		return fmt.Errorf("conn %s: %w", connID, session.ErrUnknownSession)
	}
	log := g.log.With(zap.String("conn", connID))

	switch c := cmd.(type) {
	case CreateRoom:
		return g.create(log, connID, out)

	case JoinRoom:
		return g.join(log, connID, out, code.Normalize(c.Code))

	case MutateCell:
		rc := code.Normalize(c.Code)
		if c.CellID == "" {
			out.Deliver(event.Error(rc, event.CodeBadRequest, "cellId is required"))
			return fmt.Errorf("mutate-cell: %w: empty cell id", ErrBadRequest)
		}
		if !g.store.UpdateHexState(rc, connID, c.CellID, c.Partial) {
			log.Debug("dropped mutation for stale room", zap.String("room", rc), zap.String("cell", c.CellID))
		}
		return nil

	case Chat:
		rc := code.Normalize(c.Code)
		if !g.store.Chat(rc, connID, c.Text) {
			log.Debug("dropped chat for stale room", zap.String("room", rc))
		}
		return nil

	case LeaveRoom:
		return g.leave(log, connID, out, code.Normalize(c.Code))

	default:
		out.Deliver(event.Error("", event.CodeUnknownType, "unknown command"))
		return fmt.Errorf("%w: unknown command %T", ErrBadRequest, cmd)
	}
}

func (g *Gateway) create(log *zap.Logger, connID string, out event.Outbox) error {
	rc, err := g.store.Create(connID, out)
	if err != nil {
		log.Error("create room failed", zap.Error(err))
		if errors.Is(err, code.ErrCodeGenerationExhausted) {
			out.Deliver(event.Error("", event.CodeGenerationExhausted, "could not allocate a room code, try again"))
		} else {
			out.Deliver(event.Error("", event.CodeInternal, "could not create room"))
		}
		return err
	}
	return g.sessions.OnJoin(connID, rc)
}

func (g *Gateway) join(log *zap.Logger, connID string, out event.Outbox, rc string) error {
	if _, err := g.store.Join(rc, connID, out); err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			log.Info("join for unknown room", zap.String("room", rc))
			out.Deliver(event.Error(rc, event.CodeRoomNotFound, "room not found"))
			return err
		}
		log.Error("join failed", zap.String("room", rc), zap.Error(err))
		out.Deliver(event.Error(rc, event.CodeInternal, "could not join room"))
		return err
	}
	if err := g.sessions.OnJoin(connID, rc); err != nil {
		return err
	}
	log.Info("joined room", zap.String("room", rc))
	return nil
}

func (g *Gateway) leave(log *zap.Logger, connID string, out event.Outbox, rc string) error {
	_, err := g.store.Leave(rc, connID)
	if err != nil && !errors.Is(err, store.ErrRoomNotFound) {
		log.Error("leave failed", zap.String("room", rc), zap.Error(err))
	}
	// Leaving is idempotent from the client's point of view.
	if err := g.sessions.OnLeave(connID, rc); err != nil {
		return err
	}
	out.Deliver(event.Event{Type: event.TypeRoomLeft, Room: rc})
	return nil
}

// Disconnect removes connID from every room it joined. Remaining members
// are notified by their rooms.
func (g *Gateway) Disconnect(connID string) {
	codes := g.sessions.OnDisconnect(connID)
	left := g.store.RemoveConnection(connID, codes)
	g.log.Debug("disconnected",
		zap.String("conn", connID),
		zap.Strings("rooms", left),
	)
}

type Stats struct {
	Rooms    int `json:"rooms"`
	Sessions int `json:"sessions"`
}

func (g *Gateway) Stats() Stats {
	return Stats{Rooms: g.store.Stats().Rooms, Sessions: g.sessions.Count()}
}
