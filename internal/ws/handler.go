package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hexroom-backend/internal/event"
	"github.com/DoyleJ11/hexroom-backend/internal/gateway"
	"github.com/DoyleJ11/hexroom-backend/internal/protocol"
)

const maxMessageBytes = 1 << 16

type Options struct {
	OutboxSize     int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	OriginPatterns []string
	// InsecureSkipVerify disables the origin check. Development only.
	InsecureSkipVerify bool
}

func (o *Options) defaults() {
	if o.OutboxSize <= 0 {
		o.OutboxSize = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
}

// outbox buffers events for one connection. When the buffer overflows the
// connection is marked slow and the writer closes it; the reader then runs
// the normal disconnect path.
type outbox struct {
	ch   event.Chan
	slow chan struct{}
	once sync.Once
}

func newOutbox(size int) *outbox {
	return &outbox{ch: make(event.Chan, size), slow: make(chan struct{})}
}

func (o *outbox) Deliver(e event.Event) bool {
	select {
	case <-o.slow:
		return false
	default:
	}
	if o.ch.Deliver(e) {
		return true
	}
	o.once.Do(func() { close(o.slow) })
	return false
}

// Handler upgrades the request and binds the connection to the gateway for
// its lifetime.
func Handler(g *gateway.Gateway, log *zap.Logger, opts Options) http.HandlerFunc {
	opts.defaults()
	log = log.With(zap.String("component", "ws"))

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns:     opts.OriginPatterns,
			InsecureSkipVerify: opts.InsecureSkipVerify,
		})
		if err != nil {
			log.Warn("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(maxMessageBytes)

		connID := uuid.NewString()
		clog := log.With(zap.String("conn", connID))

		out := newOutbox(opts.OutboxSize)
		g.Connect(connID, out)
		defer g.Disconnect(connID)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine
		go writeLoop(ctx, cancel, conn, out, opts, clog)

		out.Deliver(event.Event{Type: event.TypeWelcome, ConnID: connID})

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					clog.Debug("connection closed by peer")
				default:
					clog.Debug("read failed", zap.Error(err))
				}
				return
			}

			var cm protocol.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				out.Deliver(event.Error("", event.CodeBadRequest, "bad json"))
				continue
			}

			cmd, ok := toCommand(cm)
			if !ok {
				out.Deliver(event.Error(cm.RoomCode, event.CodeUnknownType, "unknown type"))
				continue
			}

			if err := g.Handle(connID, cmd); err != nil {
				clog.Debug("command failed", zap.String("type", cm.Type), zap.Error(err))
			}
		}
	}
}

func writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out *outbox, opts Options, log *zap.Logger) {
	defer cancel()

	var ping <-chan time.Time
	if opts.PingInterval > 0 {
		t := time.NewTicker(opts.PingInterval)
		defer t.Stop()
		ping = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-out.slow:
			log.Warn("closing slow connection")
			_ = conn.Close(websocket.StatusPolicyViolation, "too slow")
			return

		case e := <-out.ch:
			wctx, wcancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err := wsjson.Write(wctx, conn, toServerMessage(e))
			wcancel()
			if err != nil {
				log.Debug("write failed", zap.Error(err))
				return
			}

		case <-ping:
			pctx, pcancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				log.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}
