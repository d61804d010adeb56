package transport

import (
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/nexusrpc/corerpc/internal/logging"
)

var connSeq atomic.Uint64

// tcpConn is the TCP realization of Conn. It owns the socket and a growing
// read buffer that the ingress loop drains in place, mirroring the
// teacher's zap.go readLoop but without baking frame semantics into the
// transport: raw bytes only.
type tcpConn struct {
	id      string
	nc      net.Conn
	handler Handler
	writeMu sync.Mutex
	closed  atomic.Bool

	bufMu sync.Mutex
	buf   []byte
}

func newTCPConn(nc net.Conn, handler Handler) *tcpConn {
	id := strconv.FormatUint(connSeq.Add(1), 10)
	return &tcpConn{id: id, nc: nc, handler: handler}
}

func (c *tcpConn) ID() string { return c.id }

func (c *tcpConn) Send(data []byte) error {
	if c.closed.Load() {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.nc.Write(data)
	return err
}

func (c *tcpConn) Shutdown() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.nc.Close()
}

func (c *tcpConn) Connected() bool { return !c.closed.Load() }

func (c *tcpConn) RemoteHost() (string, int) {
	addr, ok := c.nc.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return "", 0
	}
	return addr.IP.String(), addr.Port
}

// readBuf adapts tcpConn's internal slice to the ReadBuffer contract.
type readBuf struct{ c *tcpConn }

func (r readBuf) Bytes() []byte {
	r.c.bufMu.Lock()
	defer r.c.bufMu.Unlock()
	return r.c.buf
}

func (r readBuf) Len() int {
	r.c.bufMu.Lock()
	defer r.c.bufMu.Unlock()
	return len(r.c.buf)
}

func (r readBuf) Advance(n int) {
	r.c.bufMu.Lock()
	defer r.c.bufMu.Unlock()
	r.c.buf = r.c.buf[n:]
}

func (c *tcpConn) readLoop() {
	log := logging.WithComponent("transport")
	defer func() {
		c.Shutdown()
		c.handler.OnClose(c)
	}()
	c.handler.OnConnect(c)

	tmp := make([]byte, 64*1024)
	for {
		n, err := c.nc.Read(tmp)
		if n > 0 {
			c.bufMu.Lock()
			c.buf = append(c.buf, tmp[:n]...)
			c.bufMu.Unlock()
			c.handler.OnReadable(c, readBuf{c})
		}
		if err != nil {
			log.Debug().Str("conn", c.id).Err(err).Msg("read loop exiting")
			return
		}
	}
}

// TCPServer accepts TCP connections and drives them through Handler. It is
// the reference realization of the abstract server/listener the core
// expects per §6; applications may substitute any transport satisfying
// Conn/Handler.
type TCPServer struct {
	ln      net.Listener
	handler Handler
	closed  atomic.Bool

	connsMu sync.Mutex
	conns   map[string]*tcpConn
}

// Listen binds addr and returns a server that has not yet started
// accepting; call Serve to begin.
func Listen(addr string, handler Handler) (*TCPServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &TCPServer{ln: ln, handler: handler, conns: make(map[string]*tcpConn)}, nil
}

// Addr returns the bound address.
func (s *TCPServer) Addr() net.Addr { return s.ln.Addr() }

// Serve accepts connections until Close is called.
func (s *TCPServer) Serve() error {
	log := logging.WithComponent("transport")
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			log.Warn().Err(err).Msg("accept failed")
			continue
		}
		c := newTCPConn(nc, s.handler)
		s.connsMu.Lock()
		s.conns[c.id] = c
		s.connsMu.Unlock()
		go c.readLoop()
	}
}

// Close stops accepting and shuts down every live connection.
func (s *TCPServer) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.connsMu.Lock()
	for _, c := range s.conns {
		c.Shutdown()
	}
	s.connsMu.Unlock()
	return s.ln.Close()
}

// Dial connects to addr and begins driving the connection through handler.
// It blocks until the TCP handshake completes (§5's designed blocking
// site (a)); the returned Conn's read loop then runs on its own goroutine.
func Dial(addr string, handler Handler) (Conn, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	c := newTCPConn(nc, handler)
	go c.readLoop()
	return c, nil
}
