package room

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/hexroom-backend/internal/cell"
	"github.com/DoyleJ11/hexroom-backend/internal/event"
)

// ErrRoomClosed is returned for any command sent to a room whose loop has
// stopped (last member left, grace expired, or shutdown).
var ErrRoomClosed = errors.New("room closed")

type Msg interface{ isRoomMsg() }

type Join struct {
	ConnID string
	Outbox event.Outbox
	Reply  chan cell.Cells
}

func (Join) isRoomMsg() {}

type Leave struct {
	ConnID string
	Reply  chan LeaveResult
}

func (Leave) isRoomMsg() {}

type UpdateCell struct {
	SenderID string
	CellID   string
	Partial  cell.State
	Reply    chan struct{}
}

func (UpdateCell) isRoomMsg() {}

type Chat struct {
	SenderID string
	Text     string
	Reply    chan struct{}
}

func (Chat) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type graceExpired struct{ gen int }

func (graceExpired) isRoomMsg() {}

type LeaveResult struct {
	Left   bool // connection was a member
	Closed bool // room stopped because it became empty
}

type View struct {
	Code    string
	Members []string
	Cells   cell.Cells
}

type Options struct {
	// Grace keeps an empty room alive for this long. Zero destroys it as
	// soon as the last member leaves.
	Grace time.Duration
	// OnClose runs on the room goroutine after the loop stops.
	OnClose func(*Room)
	Now     func() time.Time
	Logger  *zap.Logger
}

type Room struct {
	code    string
	inbox   chan Msg
	members map[string]event.Outbox
	cells   cell.Cells

	grace      time.Duration
	graceGen   int
	graceTimer *time.Timer

	now     func() time.Time
	onClose func(*Room)
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New starts the room loop with owner as its only member. The owner receives
// a room-created event before any other event of this room.
func New(parent context.Context, code, ownerID string, owner event.Outbox, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)

	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	r := &Room{
		code:    code,
		inbox:   make(chan Msg, 64),
		members: map[string]event.Outbox{ownerID: owner},
		cells:   cell.Cells{},
		grace:   opts.Grace,
		now:     opts.Now,
		onClose: opts.OnClose,
		log:     opts.Logger.With(zap.String("room", code)),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go r.loop(ownerID, owner)
	return r
}

func (r *Room) Code() string { return r.code }

// Done is closed once the room stops accepting commands.
func (r *Room) Done() <-chan struct{} { return r.done }

// Inbox exposes the raw command channel.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Close stops the room without waiting for its members to leave.
func (r *Room) Close() { r.cancel() }

func (r *Room) loop(ownerID string, owner event.Outbox) {
	defer r.stop()

	r.deliver(ownerID, owner, event.Event{Type: event.TypeRoomCreated, Room: r.code})

	for {
		select {
		case <-r.ctx.Done():
			return

		case m := <-r.inbox:
			if !r.handle(m) {
				return
			}
		}
	}
}

// handle applies one command. It returns false when the loop must stop.
func (r *Room) handle(m Msg) bool {
	switch msg := m.(type) {
	case Join:
		_, already := r.members[msg.ConnID]
		r.members[msg.ConnID] = msg.Outbox
		r.cancelGrace()

		r.deliver(msg.ConnID, msg.Outbox, event.Event{
			Type:  event.TypeRoomJoined,
			Room:  r.code,
			Cells: r.cells.Clone(),
		})
		if !already {
			r.broadcast(msg.ConnID, event.Event{Type: event.TypeMemberJoined, Room: r.code, ConnID: msg.ConnID})
		}
		msg.Reply <- r.cells.Clone()

	case Leave:
		_, ok := r.members[msg.ConnID]
		if !ok {
			msg.Reply <- LeaveResult{}
			break
		}
		delete(r.members, msg.ConnID)
		r.broadcast("", event.Event{Type: event.TypeMemberLeft, Room: r.code, ConnID: msg.ConnID})

		if len(r.members) > 0 {
			msg.Reply <- LeaveResult{Left: true}
			break
		}
		if r.grace > 0 {
			r.armGrace()
			msg.Reply <- LeaveResult{Left: true}
			break
		}
		r.log.Debug("last member left, closing room")
		msg.Reply <- LeaveResult{Left: true, Closed: true}
		return false

	case UpdateCell:
		r.cells[msg.CellID] = cell.Merge(r.cells[msg.CellID], msg.Partial)
		r.broadcast("", event.Event{
			Type:   event.TypeCellUpdated,
			Room:   r.code,
			ConnID: msg.SenderID,
			CellID: msg.CellID,
			State:  msg.Partial.Clone(),
		})
		msg.Reply <- struct{}{}

	case Chat:
		r.broadcast("", event.Event{
			Type:      event.TypeChat,
			Room:      r.code,
			ConnID:    msg.SenderID,
			Text:      msg.Text,
			Timestamp: r.now(),
		})
		msg.Reply <- struct{}{}

	case GetState:
		members := make([]string, 0, len(r.members))
		for id := range r.members {
			members = append(members, id)
		}
		slices.Sort(members)
		msg.Reply <- View{Code: r.code, Members: members, Cells: r.cells.Clone()}

	case graceExpired:
		if msg.gen != r.graceGen || len(r.members) > 0 {
			// stale timer: someone rejoined after it was armed
			break
		}
		r.log.Debug("grace period expired, closing room")
		return false

	case Shutdown:
		return false
	}
	return true
}

func (r *Room) armGrace() {
	r.graceGen++
	gen := r.graceGen
	r.graceTimer = time.AfterFunc(r.grace, func() {
		select {
		case r.inbox <- graceExpired{gen: gen}:
		case <-r.done:
		}
	})
}

func (r *Room) cancelGrace() {
	if r.graceTimer == nil {
		return
	}
	r.graceTimer.Stop()
	r.graceTimer = nil
	r.graceGen++
}

func (r *Room) stop() {
	if r.graceTimer != nil {
		r.graceTimer.Stop()
	}
	close(r.done)
	r.cancel()
	if r.onClose != nil {
		r.onClose(r)
	}
}

// broadcast delivers e to every member except skip.
func (r *Room) broadcast(skip string, e event.Event) {
	for id, out := range r.members {
		if id == skip {
			continue
		}
		r.deliver(id, out, e)
	}
}

func (r *Room) deliver(id string, out event.Outbox, e event.Event) {
	if !out.Deliver(e) {
		// The transport disconnects slow connections; cleanup runs from there.
		r.log.Warn("dropped event for slow connection",
			zap.String("conn", id),
			zap.String("event", string(e.Type)),
		)
	}
}

func (r *Room) send(m Msg) error {
	select {
	case r.inbox <- m:
		return nil
	case <-r.done:
		return ErrRoomClosed
	}
}

func await[T any](r *Room, reply chan T) (T, error) {
	select {
	case v := <-reply:
		return v, nil
	case <-r.done:
		// the reply may have been written just before the loop stopped
		select {
		case v := <-reply:
			return v, nil
		default:
		}
		var zero T
		return zero, ErrRoomClosed
	}
}

// Join adds connID to the room and returns a snapshot of its cells. The
// joining connection also receives the snapshot as a room-joined event,
// ordered before any later update of this room.
func (r *Room) Join(connID string, out event.Outbox) (cell.Cells, error) {
	reply := make(chan cell.Cells, 1)
	if err := r.send(Join{ConnID: connID, Outbox: out, Reply: reply}); err != nil {
		return nil, err
	}
	return await(r, reply)
}

func (r *Room) Leave(connID string) (LeaveResult, error) {
	reply := make(chan LeaveResult, 1)
	if err := r.send(Leave{ConnID: connID, Reply: reply}); err != nil {
		return LeaveResult{}, err
	}
	return await(r, reply)
}

// UpdateCell merges partial into the cell and broadcasts the partial to all
// members, sender included.
func (r *Room) UpdateCell(senderID, cellID string, partial cell.State) error {
	reply := make(chan struct{}, 1)
	if err := r.send(UpdateCell{SenderID: senderID, CellID: cellID, Partial: partial.Clone(), Reply: reply}); err != nil {
		return err
	}
	_, err := await(r, reply)
	return err
}

func (r *Room) Chat(senderID, text string) error {
	reply := make(chan struct{}, 1)
	if err := r.send(Chat{SenderID: senderID, Text: text, Reply: reply}); err != nil {
		return err
	}
	_, err := await(r, reply)
	return err
}

func (r *Room) View() (View, error) {
	reply := make(chan View, 1)
	if err := r.send(GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	return await(r, reply)
}
