package event

import (
	"time"

	"github.com/DoyleJ11/hexroom-backend/internal/cell"
)

type Type string

const (
	TypeWelcome      Type = "welcome"
	TypeRoomCreated  Type = "room-created"
	TypeRoomJoined   Type = "room-joined"
	TypeRoomLeft     Type = "room-left"
	TypeCellUpdated  Type = "cell-updated"
	TypeMemberJoined Type = "member-joined"
	TypeMemberLeft   Type = "member-left"
	TypeChat         Type = "chat"
	TypeRoomError    Type = "room-error"
)

// Error codes carried by TypeRoomError.
const (
	CodeRoomNotFound        = "ROOM_NOT_FOUND"
	CodeGenerationExhausted = "CODE_GENERATION_EXHAUSTED"
	CodeBadRequest          = "BAD_REQUEST"
	CodeUnknownType         = "UNKNOWN_TYPE"
	CodeInternal            = "INTERNAL"
)

// Event is a server→client notification. Payload fields are populated
// according to Type; values are treated as immutable once delivered since
// one Event may be shared by every member of a room.
type Event struct {
	Type      Type
	Room      string
	ConnID    string
	CellID    string
	State     cell.State
	Cells     cell.Cells
	Text      string
	Timestamp time.Time
	ErrCode   string
	Err       string
}

// Outbox is the per-connection delivery point. Deliver must not block; it
// returns false when the event could not be queued.
type Outbox interface {
	Deliver(Event) bool
}

// Chan is an Outbox backed by a buffered channel. It drops events when the
// buffer is full.
type Chan chan Event

func (c Chan) Deliver(e Event) bool {
	select {
	case c <- e:
		return true
	default:
		return false
	}
}

func Error(room, code, msg string) Event {
	return Event{Type: TypeRoomError, Room: room, ErrCode: code, Err: msg}
}
