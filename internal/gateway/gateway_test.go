package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/hexroom-backend/internal/cell"
	"github.com/DoyleJ11/hexroom-backend/internal/event"
	"github.com/DoyleJ11/hexroom-backend/internal/session"
	"github.com/DoyleJ11/hexroom-backend/internal/store"
)

func recvEvent(t *testing.T, ch <-chan event.Event, within time.Duration) event.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(within):
		t.Fatalf("timed out waiting for event")
		return event.Event{}
	}
}

func recvNoEvent(t *testing.T, ch <-chan event.Event, within time.Duration) {
	t.Helper()
	select {
	case e := <-ch:
		t.Fatalf("expected no event within %v, but got: %+v", within, e)
	case <-time.After(within):
	}
}

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	log := zaptest.NewLogger(t)
	st := store.New(context.Background(), log, store.Options{})
	t.Cleanup(st.Shutdown)
	return New(st, session.NewRegistry(), log)
}

func connect(g *Gateway, id string) event.Chan {
	out := make(event.Chan, 32)
	g.Connect(id, out)
	return out
}

func TestGateway_Scenario(t *testing.T) {
	g := newTestGateway(t)
	c1 := connect(g, "c1")
	c2 := connect(g, "c2")
	c3 := connect(g, "c3")

	require.NoError(t, g.Handle("c1", CreateRoom{}))
	created := recvEvent(t, c1, 100*time.Millisecond)
	require.Equal(t, event.TypeRoomCreated, created.Type)
	code := created.Room
	require.Regexp(t, `^[A-Z0-9]{5}$`, code)

	require.NoError(t, g.Handle("c2", JoinRoom{Code: code}))
	joined := recvEvent(t, c2, 100*time.Millisecond)
	assert.Equal(t, event.TypeRoomJoined, joined.Type)
	assert.Equal(t, code, joined.Room)
	assert.Empty(t, joined.Cells)

	note := recvEvent(t, c1, 100*time.Millisecond)
	assert.Equal(t, event.TypeMemberJoined, note.Type)
	assert.Equal(t, "c2", note.ConnID)

	red := cell.State{"color": "#FF0000", "height": 1.0}
	require.NoError(t, g.Handle("c1", MutateCell{Code: code, CellID: "0,0", Partial: red}))
	for _, ch := range []event.Chan{c1, c2} {
		e := recvEvent(t, ch, 100*time.Millisecond)
		assert.Equal(t, event.TypeCellUpdated, e.Type)
		assert.Equal(t, "0,0", e.CellID)
		assert.Equal(t, red, e.State)
	}

	require.NoError(t, g.Handle("c2", MutateCell{Code: code, CellID: "0,0", Partial: cell.State{"height": 2.0}}))
	for _, ch := range []event.Chan{c1, c2} {
		e := recvEvent(t, ch, 100*time.Millisecond)
		assert.Equal(t, cell.State{"height": 2.0}, e.State)
	}

	require.NoError(t, g.Handle("c3", JoinRoom{Code: code}))
	late := recvEvent(t, c3, 100*time.Millisecond)
	assert.Equal(t, cell.Cells{"0,0": {"color": "#FF0000", "height": 2.0}}, late.Cells)
}

func TestGateway_JoinUnknownRoom(t *testing.T) {
	g := newTestGateway(t)
	c1 := connect(g, "c1")
	bystander := connect(g, "c2")
	require.NoError(t, g.Handle("c2", CreateRoom{}))
	recvEvent(t, bystander, 100*time.Millisecond)

	err := g.Handle("c1", JoinRoom{Code: "ZZZZZ"})
	require.ErrorIs(t, err, store.ErrRoomNotFound)

	e := recvEvent(t, c1, 100*time.Millisecond)
	assert.Equal(t, event.TypeRoomError, e.Type)
	assert.Equal(t, event.CodeRoomNotFound, e.ErrCode)
	assert.Equal(t, "ZZZZZ", e.Room)

	recvNoEvent(t, bystander, 50*time.Millisecond)
	assert.Equal(t, Stats{Rooms: 1, Sessions: 2}, g.Stats())
}

func TestGateway_JoinNormalizesCode(t *testing.T) {
	g := newTestGateway(t)
	c1 := connect(g, "c1")
	c2 := connect(g, "c2")
	require.NoError(t, g.Handle("c1", CreateRoom{}))
	code := recvEvent(t, c1, 100*time.Millisecond).Room

	require.NoError(t, g.Handle("c2", JoinRoom{Code: " " + strings.ToLower(code) + " "}))
	e := recvEvent(t, c2, 100*time.Millisecond)
	assert.Equal(t, event.TypeRoomJoined, e.Type)
	v, err := g.store.View(code)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, v.Members)

	// the session recorded the canonical code, so disconnect finds the room
	recvEvent(t, c1, 100*time.Millisecond)
	g.Disconnect("c2")
	left := recvEvent(t, c1, 100*time.Millisecond)
	assert.Equal(t, event.TypeMemberLeft, left.Type)
	assert.Equal(t, code, left.Room)
}

func TestGateway_StaleMutationAndChatAreDropped(t *testing.T) {
	g := newTestGateway(t)
	c1 := connect(g, "c1")

	require.NoError(t, g.Handle("c1", MutateCell{Code: "ZZZZZ", CellID: "0,0", Partial: cell.State{"height": 1.0}}))
	require.NoError(t, g.Handle("c1", Chat{Code: "ZZZZZ", Text: "anyone?"}))
	recvNoEvent(t, c1, 50*time.Millisecond)
}

func TestGateway_MutateWithoutCellID(t *testing.T) {
	g := newTestGateway(t)
	c1 := connect(g, "c1")

	err := g.Handle("c1", MutateCell{Code: "ZZZZZ"})
	require.ErrorIs(t, err, ErrBadRequest)
	e := recvEvent(t, c1, 100*time.Millisecond)
	assert.Equal(t, event.CodeBadRequest, e.ErrCode)
}

func TestGateway_ChatReachesEveryone(t *testing.T) {
	g := newTestGateway(t)
	c1 := connect(g, "c1")
	c2 := connect(g, "c2")
	require.NoError(t, g.Handle("c1", CreateRoom{}))
	code := recvEvent(t, c1, 100*time.Millisecond).Room
	require.NoError(t, g.Handle("c2", JoinRoom{Code: code}))
	recvEvent(t, c2, 100*time.Millisecond)
	recvEvent(t, c1, 100*time.Millisecond)

	require.NoError(t, g.Handle("c2", Chat{Code: code, Text: "first"}))
	require.NoError(t, g.Handle("c2", Chat{Code: code, Text: "second"}))

	for _, ch := range []event.Chan{c1, c2} {
		a := recvEvent(t, ch, 100*time.Millisecond)
		b := recvEvent(t, ch, 100*time.Millisecond)
		assert.Equal(t, "first", a.Text)
		assert.Equal(t, "second", b.Text)
		assert.Equal(t, "c2", a.ConnID)
		assert.False(t, a.Timestamp.IsZero())
	}
}

func TestGateway_Disconnect_LeavesAllRooms(t *testing.T) {
	g := newTestGateway(t)
	x := connect(g, "x")
	y := connect(g, "y")

	// room A: x + y, room B: y alone
	require.NoError(t, g.Handle("x", CreateRoom{}))
	a := recvEvent(t, x, 100*time.Millisecond).Room
	require.NoError(t, g.Handle("y", JoinRoom{Code: a}))
	recvEvent(t, y, 100*time.Millisecond)
	recvEvent(t, x, 100*time.Millisecond)
	require.NoError(t, g.Handle("y", CreateRoom{}))
	b := recvEvent(t, y, 100*time.Millisecond).Room

	g.Disconnect("y")

	left := recvEvent(t, x, 100*time.Millisecond)
	assert.Equal(t, event.TypeMemberLeft, left.Type)
	assert.Equal(t, a, left.Room)
	assert.Equal(t, "y", left.ConnID)

	v, err := g.store.View(a)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, v.Members)

	_, err = g.store.View(b)
	require.ErrorIs(t, err, store.ErrRoomNotFound)

	assert.Equal(t, Stats{Rooms: 1, Sessions: 1}, g.Stats())

	err = g.Handle("y", JoinRoom{Code: a})
	require.True(t, errors.Is(err, session.ErrUnknownSession))
}

func TestGateway_LeaveRoom(t *testing.T) {
	g := newTestGateway(t)
	c1 := connect(g, "c1")
	require.NoError(t, g.Handle("c1", CreateRoom{}))
	code := recvEvent(t, c1, 100*time.Millisecond).Room

	require.NoError(t, g.Handle("c1", LeaveRoom{Code: code}))
	e := recvEvent(t, c1, 100*time.Millisecond)
	assert.Equal(t, event.TypeRoomLeft, e.Type)
	assert.Equal(t, 0, g.Stats().Rooms)

	// last member left: the room is gone
	c2 := connect(g, "c2")
	require.ErrorIs(t, g.Handle("c2", JoinRoom{Code: code}), store.ErrRoomNotFound)
	assert.Equal(t, event.CodeRoomNotFound, recvEvent(t, c2, 100*time.Millisecond).ErrCode)
}

type unknownCommand struct{}

func (unknownCommand) isCommand() {}

func TestGateway_UnknownCommand(t *testing.T) {
	g := newTestGateway(t)
	c1 := connect(g, "c1")

	require.ErrorIs(t, g.Handle("c1", unknownCommand{}), ErrBadRequest)
	assert.Equal(t, event.CodeUnknownType, recvEvent(t, c1, 100*time.Millisecond).ErrCode)
}
