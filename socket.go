package rudp

import (
	"log"
	"net"
	"time"

	"github.com/xtaci/rudp/reactor"
)

// DataHandler is invoked synchronously inside the dispatcher for every
// accepted DATA payload. data is valid only for the duration of the call.
type DataHandler func(sock *Socket, peer *net.UDPAddr, data []byte)

// EventHandler is invoked for TIMEOUT and CLOSED lifecycle events.
type EventHandler func(sock *Socket, ev Event, peer *net.UDPAddr)

// Socket owns a datagram descriptor, a session table keyed by peer
// address, a close-requested flag, and the two user callbacks. It is
// itself the opaque handle callers get back from Engine.Open and call
// methods on directly.
type Socket struct {
	engine *Engine
	conn   *net.UDPConn

	sessions       map[peerKey]*Session
	closeRequested bool
	closed         bool
	lastPeer       *net.UDPAddr

	dataHandler  DataHandler
	eventHandler EventHandler
	metrics      Metrics
}

// Metrics returns a snapshot of this socket's counters.
func (sock *Socket) Metrics() Metrics { return sock.metrics.Snapshot() }

// LocalAddr returns the bound local address.
func (sock *Socket) LocalAddr() net.Addr { return sock.conn.LocalAddr() }

// SetDataHandler registers the callback invoked for every delivered payload.
func (sock *Socket) SetDataHandler(fn DataHandler) { sock.dataHandler = fn }

// SetEventHandler registers the callback invoked for TIMEOUT and CLOSED events.
func (sock *Socket) SetEventHandler(fn EventHandler) { sock.eventHandler = fn }

// SendTo appends one application datagram for transmission to peer. It
// creates the sender half (and sends SYN) the first time peer is
// addressed.
func (sock *Socket) SendTo(data []byte, peer *net.UDPAddr) error {
	if len(data) > MaxPayload {
		return ErrOversizedPayload
	}
	if sock.closeRequested {
		return ErrClosing
	}
	key, ok := addrKey(peer)
	if !ok {
		return ErrUnsupportedFamily
	}

	sess, exists := sock.sessions[key]
	if !exists {
		sess = newSession(peer, key)
		sock.sessions[key] = sess
		sock.metrics.addSessionsOpened(1)
	}

	if sess.sender == nil {
		sess.sender = newSender(sock, peer, data)
		return nil
	}
	sess.sender.Enqueue(sock, peer, data)
	return nil
}

// Close sets the close-requested flag. Resources are released only once
// every session is finished: the socket finishes draining outstanding
// sends, emits FINs, waits for their ACKs, and only then releases the
// descriptor and delivers CLOSED. A socket with no unfinished session
// is released, and CLOSED delivered, inside Close itself.
func (sock *Socket) Close() {
	if sock.closeRequested {
		return
	}
	sock.closeRequested = true
	for _, sess := range sock.sessions {
		if sess.sender != nil {
			sess.sender.maybeSendFin(sock, sess.addr)
		}
	}
	sock.checkClosed()
}

// onSessionFinished is called by a sender or receiver half the moment
// it transitions to finished. It accounts the session as closed exactly
// once and re-checks whether the whole socket can now tear down.
func (sock *Socket) onSessionFinished(sess *Session) {
	if sess.bothFinished() && !sess.accounted {
		sess.accounted = true
		sock.metrics.addSessionsClosed(1)
	}
	sock.checkClosed()
}

// checkClosed tears the socket down once a close has been requested and
// every session is finished: sessions are detached from the table
// before the descriptor is released (the source frees session state
// mid-traversal while still walking `next`; using a map and detaching
// first avoids that use-after-free hazard entirely).
func (sock *Socket) checkClosed() {
	if !sock.closeRequested || sock.closed {
		return
	}
	for _, sess := range sock.sessions {
		if !sess.bothFinished() {
			return
		}
	}

	sock.closed = true
	sock.engine.reactor.CancelReadable(sock.conn)
	for k := range sock.sessions {
		delete(sock.sessions, k)
	}
	sock.conn.Close()
	delete(sock.engine.sockets, sock)
	sock.emitEvent(EventClosed, sock.lastPeer)
}

func (sock *Socket) sendPacket(peer *net.UDPAddr, pkt *Packet) {
	sock.lastPeer = peer
	buf := Encode(pkt)
	if _, err := sock.conn.WriteToUDP(buf, peer); err != nil {
		// Logged, not fatal: the retransmission timer will retry.
		log.Printf("rudp: write to %v failed: %v", peer, err)
		return
	}
	sock.metrics.addPacketsSent(1)
}

func (sock *Socket) scheduleTimer(d time.Duration, cb func()) reactor.TimerHandle {
	return sock.engine.reactor.ScheduleTimer(time.Now().Add(d), cb)
}

func (sock *Socket) cancelTimer(h reactor.TimerHandle) {
	sock.engine.reactor.CancelTimer(h)
}

func (sock *Socket) emitEvent(ev Event, peer *net.UDPAddr) {
	if sock.eventHandler != nil {
		sock.eventHandler(sock, ev, peer)
	}
}

func (sock *Socket) emitData(peer *net.UDPAddr, data []byte) {
	if sock.dataHandler != nil {
		sock.dataHandler(sock, peer, data)
	}
}
