package rudp

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/xtaci/rudp/reactor"
)

// Engine owns every Socket opened against it and the single Reactor
// that drives all of them. There is no global state here, only
// whatever Engines the caller constructs.
type Engine struct {
	reactor reactor.Reactor
	sockets map[*Socket]struct{}
}

// New creates an Engine driven by r. The caller is responsible for
// calling r.Run() (typically in its own goroutine) and r.Stop() during
// shutdown; the Engine only registers and unregisters against it.
func New(r reactor.Reactor) *Engine {
	return &Engine{reactor: r, sockets: make(map[*Socket]struct{})}
}

// Open binds a UDP endpoint on port (0 = ephemeral), registers it with
// the reactor, and returns the Socket handle. Open fails if the bind
// fails or the reactor refuses the registration.
func (e *Engine) Open(port int) (*Socket, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, errors.Wrap(err, "rudp: open")
	}

	sock := &Socket{
		engine:   e,
		conn:     conn,
		sessions: make(map[peerKey]*Session),
	}
	if err := e.reactor.OnReadable(conn, sock.onReadable); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "rudp: register reactor")
	}
	e.sockets[sock] = struct{}{}
	return sock, nil
}

// randomSeqno produces the random initial sequence number for a new
// sender, the same way the teacher's kcp-go dependency seeds a fresh
// conversation id in DialWithOptions.
func (e *Engine) randomSeqno() uint32 {
	var b [4]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		return uint32(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint32(b[:])
}
