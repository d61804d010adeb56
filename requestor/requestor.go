// Package requestor implements the outbound request/response correlation
// engine (§4.4): a mutex-guarded id -> descriptor map, three send modes
// (future, blocking, callback), a single OnResponse dispatcher target for
// every *_RSP mtype, and disconnect draining so a blocking caller never
// hangs past its connection's death.
package requestor

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nexusrpc/corerpc/frame"
	"github.com/nexusrpc/corerpc/internal/logging"
	"github.com/nexusrpc/corerpc/internal/telemetry"
	"github.com/nexusrpc/corerpc/message"
	"github.com/nexusrpc/corerpc/transport"
)

// Mode is how a recorded descriptor delivers its eventual response.
type Mode int

const (
	ModeFuture Mode = iota
	ModeCallback
)

// Result is what a Future resolves to or a callback receives: the response
// message and/or an error. On a clean response err is nil. On disconnect,
// err is ErrDisconnected and Msg is a synthetic response of the
// appropriate variant carrying message.Disconnected, so callers that only
// inspect rcode don't need a separate error-handling path.
type Result struct {
	Msg message.Message
	Err error
}

// ErrDisconnected is delivered to pending descriptors whose connection
// closed before a response arrived (§4.4, §5, §7).
var ErrDisconnected = fmt.Errorf("requestor: connection closed before response arrived")

// Future is a one-shot result slot completed by the delivering goroutine
// (I/O or worker-pool) and awaited by an application goroutine. Completion
// is idempotent: the first of an arriving response or a disconnect-drain
// wins, per the design notes' race-safety requirement.
type Future struct {
	ch   chan Result
	once sync.Once
}

func newFuture() *Future {
	return &Future{ch: make(chan Result, 1)}
}

func (f *Future) complete(r Result) {
	f.once.Do(func() { f.ch <- r })
}

// Wait blocks until the future completes or ctx is done.
func (f *Future) Wait(ctx context.Context) (message.Message, error) {
	select {
	case r := <-f.ch:
		return r.Msg, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type descriptor struct {
	id      string
	connID  string
	reqType message.MType
	mode    Mode

	future   *Future
	callback func(message.Message, error)
}

// Requestor owns the pending-request map and the framer used to put
// outbound requests on the wire.
type Requestor struct {
	mu      sync.Mutex
	pending map[string]*descriptor

	framer *frame.Framer
	log    *zerolog.Logger
}

// New returns an empty Requestor.
func New() *Requestor {
	return &Requestor{
		pending: make(map[string]*descriptor),
		framer:  frame.New(),
		log:     logging.WithComponent("requestor"),
	}
}

// SendFuture records a descriptor for req, writes it to conn, and returns a
// Future the caller can await on its own goroutine. The descriptor is
// inserted into the pending map before the frame is written, so a response
// can never race ahead of its own bookkeeping (§5's ordering guarantee).
func (r *Requestor) SendFuture(ctx context.Context, conn transport.Conn, req message.Message) (*Future, error) {
	fut := newFuture()
	d := &descriptor{id: req.ID(), connID: conn.ID(), reqType: req.Type(), mode: ModeFuture, future: fut}

	r.record(d)
	if err := r.write(ctx, conn, req); err != nil {
		r.forget(d.id)
		fut.complete(Result{Err: err})
		return fut, err
	}
	return fut, nil
}

// SendBlocking is SendFuture followed by an immediate Wait. Per §5 this
// must run on a goroutine other than the one driving the connection's I/O.
func (r *Requestor) SendBlocking(ctx context.Context, conn transport.Conn, req message.Message) (message.Message, error) {
	fut, err := r.SendFuture(ctx, conn, req)
	if err != nil {
		return nil, err
	}
	return fut.Wait(ctx)
}

// SendCallback records a descriptor carrying cb, writes the frame, and
// returns immediately; cb runs synchronously on whatever goroutine
// delivers the response (worker-pool) or drains the descriptor
// (disconnect).
func (r *Requestor) SendCallback(ctx context.Context, conn transport.Conn, req message.Message, cb func(message.Message, error)) error {
	d := &descriptor{id: req.ID(), connID: conn.ID(), reqType: req.Type(), mode: ModeCallback, callback: cb}

	r.record(d)
	if err := r.write(ctx, conn, req); err != nil {
		r.forget(d.id)
		cb(nil, err)
		return err
	}
	return nil
}

func (r *Requestor) record(d *descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[d.id] = d
}

func (r *Requestor) forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
}

func (r *Requestor) write(ctx context.Context, conn transport.Conn, req message.Message) error {
	_, span := telemetry.StartSpan(ctx, "requestor.send", req.Type().String(), req.ID())
	data, err := r.framer.Encode(req)
	if err != nil {
		telemetry.EndSpan(span, err)
		return fmt.Errorf("requestor: encode: %w", err)
	}
	err = conn.Send(data)
	telemetry.EndSpan(span, err)
	if err != nil {
		return fmt.Errorf("requestor: send: %w", err)
	}
	return nil
}

// OnResponse is the dispatcher target registered for RPC_RSP, TOPIC_RSP and
// SERVICE_RSP. It is a dispatch.Handler-shaped func so callers can pass it
// directly to dispatch.Register for each of those three mtypes.
func (r *Requestor) OnResponse(conn transport.Conn, msg message.Message) {
	r.mu.Lock()
	d, ok := r.pending[msg.ID()]
	if ok {
		delete(r.pending, msg.ID())
	}
	r.mu.Unlock()

	if !ok {
		r.log.Warn().Str("id", msg.ID()).Str("mtype", msg.Type().String()).
			Msg("response for unknown or already-completed request, dropping")
		return
	}
	r.deliver(d, Result{Msg: msg})
}

// OnConnClose drains every descriptor recorded against connID, failing
// each with ErrDisconnected (§4.4, §7).
func (r *Requestor) OnConnClose(connID string) {
	r.mu.Lock()
	var drained []*descriptor
	for id, d := range r.pending {
		if d.connID == connID {
			drained = append(drained, d)
			delete(r.pending, id)
		}
	}
	r.mu.Unlock()

	for _, d := range drained {
		r.deliver(d, Result{Err: ErrDisconnected})
	}
}

func (r *Requestor) deliver(d *descriptor, res Result) {
	if res.Err != nil && res.Msg == nil {
		if synth, ok := synthesizeDisconnected(d.reqType, d.id); ok {
			res.Msg = synth
		}
	}
	switch d.mode {
	case ModeFuture:
		d.future.complete(res)
	case ModeCallback:
		d.callback(res.Msg, res.Err)
	}
}

// synthesizeDisconnected builds a zero-value response of the variant that
// corresponds to reqType, with RCode set to Disconnected, so that a caller
// inspecting rcode alone (ignoring the accompanying error) still observes
// §4.4's required disconnected rcode.
func synthesizeDisconnected(reqType message.MType, id string) (message.Message, bool) {
	rspType, ok := message.ResponseTypeFor(reqType)
	if !ok {
		return nil, false
	}
	msg, err := message.NewDefault(rspType)
	if err != nil {
		return nil, false
	}
	msg.SetID(id)
	if responder, ok := msg.(message.Responder); ok {
		responder.SetRCode(message.Disconnected)
	}
	return msg, true
}
