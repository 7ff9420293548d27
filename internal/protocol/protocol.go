package protocol

import "github.com/DoyleJ11/hexroom-backend/internal/cell"

// Client → server message types.
const (
	TypeCreateRoom = "create-room"
	TypeJoinRoom   = "join-room"
	TypeMutateCell = "mutate-cell"
	TypeChat       = "chat"
	TypeLeaveRoom  = "leave-room"
)

type ClientMessage struct {
	Type         string     `json:"type"`
	RoomCode     string     `json:"roomCode,omitempty"`
	CellID       string     `json:"cellId,omitempty"`
	PartialState cell.State `json:"partialState,omitempty"`
	Text         string     `json:"text,omitempty"`
}

// ServerMessage is one server → client frame. Type is one of the event
// types ("room-joined", "cell-updated", "room-error", ...).
type ServerMessage struct {
	Type         string      `json:"type"`
	RoomCode     string      `json:"roomCode,omitempty"`
	ConnectionID string      `json:"connectionId,omitempty"`
	SenderID     string      `json:"senderId,omitempty"`
	CellID       string      `json:"cellId,omitempty"`
	PartialState *cell.State `json:"partialState,omitempty"` // pointers so empty values still send {}
	Cells        *cell.Cells `json:"cells,omitempty"`
	Text         string      `json:"text,omitempty"`
	Timestamp    int64       `json:"timestamp,omitempty"` // unix millis
	Code         string      `json:"code,omitempty"`
	Error        string      `json:"error,omitempty"`
}
