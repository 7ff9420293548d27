// Package protocol holds the JSON frames exchanged over /ws. One object per
// text frame, discriminated by "type".
//
// Client -> Server
// create-room: {}
//
// join-room:
//   roomCode: string (case-insensitive, surrounding spaces ignored)
//
// mutate-cell:
//   roomCode: string
//   cellId: string ("q,r" axial coordinates by convention)
//   partialState: object (top-level keys overwrite the stored cell)
//
// chat:
//   roomCode: string
//   text: string
//
// leave-room:
//   roomCode: string
//
// Server -> Client
// welcome:        connectionId
// room-created:   roomCode
// room-joined:    roomCode, cells (full snapshot, {} when empty)
// room-left:      roomCode
// member-joined:  roomCode, connectionId
// member-left:    roomCode, connectionId
// cell-updated:   roomCode, senderId, cellId, partialState
// chat:           roomCode, senderId, text, timestamp (unix ms)
// room-error:     roomCode?, code, error
package protocol
