package ws

import (
	"github.com/DoyleJ11/hexroom-backend/internal/cell"
	"github.com/DoyleJ11/hexroom-backend/internal/event"
	"github.com/DoyleJ11/hexroom-backend/internal/gateway"
	"github.com/DoyleJ11/hexroom-backend/internal/protocol"
)

func toCommand(m protocol.ClientMessage) (gateway.Command, bool) {
	switch m.Type {
	case protocol.TypeCreateRoom:
		return gateway.CreateRoom{}, true
	case protocol.TypeJoinRoom:
		return gateway.JoinRoom{Code: m.RoomCode}, true
	case protocol.TypeMutateCell:
		return gateway.MutateCell{Code: m.RoomCode, CellID: m.CellID, Partial: m.PartialState}, true
	case protocol.TypeChat:
		return gateway.Chat{Code: m.RoomCode, Text: m.Text}, true
	case protocol.TypeLeaveRoom:
		return gateway.LeaveRoom{Code: m.RoomCode}, true
	default:
		return nil, false
	}
}

func toServerMessage(e event.Event) protocol.ServerMessage {
	msg := protocol.ServerMessage{Type: string(e.Type), RoomCode: e.Room}

	switch e.Type {
	case event.TypeWelcome, event.TypeMemberJoined, event.TypeMemberLeft:
		msg.ConnectionID = e.ConnID
	case event.TypeRoomJoined:
		cells := e.Cells
		if cells == nil {
			cells = cell.Cells{}
		}
		msg.Cells = &cells
	case event.TypeCellUpdated:
		msg.SenderID = e.ConnID
		msg.CellID = e.CellID
		partial := e.State
		if partial == nil {
			partial = cell.State{}
		}
		msg.PartialState = &partial
	case event.TypeChat:
		msg.SenderID = e.ConnID
		msg.Text = e.Text
		msg.Timestamp = e.Timestamp.UnixMilli()
	case event.TypeRoomError:
		msg.Code = e.ErrCode
		msg.Error = e.Err
	}
	return msg
}
