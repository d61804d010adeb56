// Package dispatch routes a decoded message to the handler registered for
// its mtype (§4.3), preserving the concrete subtype so handlers never see
// the bare message.Message interface they'd have to downcast themselves.
// Registration happens once at wiring time; the handler map is read far
// more often than written, so a single RWMutex is enough (§4.3, §5).
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nexusrpc/corerpc/internal/logging"
	"github.com/nexusrpc/corerpc/internal/telemetry"
	"github.com/nexusrpc/corerpc/internal/workerpool"
	"github.com/nexusrpc/corerpc/message"
	"github.com/nexusrpc/corerpc/transport"
)

// Handler processes one decoded message on a worker-pool goroutine, never
// on the transport's I/O goroutine (§5).
type Handler func(conn transport.Conn, msg message.Message)

// Dispatcher maps mtype to Handler and submits matched messages to the
// shared worker pool so the transport's read loop never blocks on handler
// logic.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[message.MType]Handler
	log      *zerolog.Logger
}

// New returns an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[message.MType]Handler),
		log:      logging.WithComponent("dispatcher"),
	}
}

// Register installs h as the handler for mtype, replacing any previous
// registration. Intended to be called during wiring, before Serve starts.
func (d *Dispatcher) Register(mtype message.MType, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[mtype] = h
}

// RegisterTyped registers a handler expressed in terms of the message's
// concrete subtype T. The returned adapter downcasts the decoded
// message.Message to T before calling h; a mismatch (which should only
// happen if a handler is registered against the wrong mtype) tears the
// connection down rather than risk a silent miscast, per the design
// notes' "fails fast on mismatch" requirement.
func RegisterTyped[T message.Message](d *Dispatcher, mtype message.MType, h func(conn transport.Conn, msg T)) {
	d.Register(mtype, func(conn transport.Conn, msg message.Message) {
		typed, ok := msg.(T)
		if !ok {
			d.log.Error().
				Str("mtype", mtype.String()).
				Str("got", fmt.Sprintf("%T", msg)).
				Msg("decoded message has unexpected concrete type for registered mtype")
			conn.Shutdown()
			return
		}
		h(conn, typed)
	})
}

// Dispatch looks up the handler for msg's mtype and submits it to the
// worker pool. An unregistered mtype tears the connection down (§4.3) -
// the framer already rejects truly unknown wire mtypes, so this only
// fires when a type is recognized by the framer but nothing ever
// registered a handler for it.
func (d *Dispatcher) Dispatch(ctx context.Context, conn transport.Conn, msg message.Message) {
	d.mu.RLock()
	h, ok := d.handlers[msg.Type()]
	d.mu.RUnlock()

	if !ok {
		d.log.Error().Str("mtype", msg.Type().String()).Str("conn", conn.ID()).
			Msg("no handler registered for mtype, dropping connection")
		conn.Shutdown()
		return
	}

	_, span := telemetry.StartSpan(ctx, "dispatch."+msg.Type().String(), msg.Type().String(), msg.ID())
	if err := workerpool.Submit(func() {
		defer telemetry.EndSpan(span, nil)
		h(conn, msg)
	}); err != nil {
		d.log.Error().Err(err).Msg("failed to submit dispatch job to worker pool")
		telemetry.EndSpan(span, err)
		return
	}
}
