package rudp

import "net"

// Session is the per-peer protocol state for one local socket: an
// optional sender half and an optional receiver half, keyed by the
// peer's address. Either half may be nil. Sessions are removed from the
// table only when the owning socket tears down: a close has been
// requested and every half of every session is finished (see
// Socket.checkClosed).
type Session struct {
	peer      peerKey
	addr      *net.UDPAddr
	sender    *Sender
	receiver  *Receiver
	accounted bool // guards Metrics.SessionsClosed against double-counting
}

func newSession(addr *net.UDPAddr, key peerKey) *Session {
	return &Session{peer: key, addr: addr}
}

// bothFinished reports whether every half this session has is finished.
// A session with no halves at all (shouldn't normally occur) counts as
// finished so it doesn't wedge socket teardown.
func (s *Session) bothFinished() bool {
	if s.sender != nil && !s.sender.finished {
		return false
	}
	if s.receiver != nil && !s.receiver.finished {
		return false
	}
	return true
}
