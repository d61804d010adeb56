// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package corerpc

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/nexusrpc/corerpc/dispatch"
	"github.com/nexusrpc/corerpc/frame"
	"github.com/nexusrpc/corerpc/internal/logging"
	"github.com/nexusrpc/corerpc/transport"
)

// maxIngressBuf is the oversized-frame defense cap from §4.1: once the
// cumulative read buffer exceeds this and still can't yield a full frame,
// the connection is nonsense and gets torn down.
const maxIngressBuf = 1 << 16

// ingressHandler adapts a dispatch.Dispatcher and an onClose callback into
// a transport.Handler implementing §4.1's ingress loop: repeatedly
// CanDecode/Decode until the buffer runs dry, dispatch each frame, and
// enforce the oversized-frame cap.
type ingressHandler struct {
	framer  *frame.Framer
	disp    *dispatch.Dispatcher
	onClose func(transport.Conn)
	log     *zerolog.Logger
}

func newIngressHandler(disp *dispatch.Dispatcher, onClose func(transport.Conn)) *ingressHandler {
	return &ingressHandler{
		framer:  frame.New(),
		disp:    disp,
		onClose: onClose,
		log:     logging.WithComponent("wire"),
	}
}

func (h *ingressHandler) OnConnect(c transport.Conn) {
	h.log.Debug().Str("conn", c.ID()).Msg("connected")
}

func (h *ingressHandler) OnClose(c transport.Conn) {
	h.log.Debug().Str("conn", c.ID()).Msg("closed")
	if h.onClose != nil {
		h.onClose(c)
	}
}

func (h *ingressHandler) OnReadable(c transport.Conn, buf transport.ReadBuffer) {
	for h.framer.CanDecode(buf.Bytes()) {
		msg, n, err := h.framer.Decode(buf.Bytes())
		if err != nil {
			h.log.Error().Err(err).Str("conn", c.ID()).Msg("frame decode failed, tearing down connection")
			c.Shutdown()
			return
		}
		buf.Advance(n)

		if err := msg.Check(); err != nil {
			h.log.Error().Err(err).Str("conn", c.ID()).Str("mtype", msg.Type().String()).
				Msg("message failed structural validation, tearing down connection")
			c.Shutdown()
			return
		}
		h.disp.Dispatch(context.Background(), c, msg)
	}
	if buf.Len() > maxIngressBuf {
		h.log.Error().Str("conn", c.ID()).Int("buffered", buf.Len()).
			Msg("read buffer exceeds cap with no decodable frame, tearing down connection")
		c.Shutdown()
	}
}
