package rudp

import "net"

type receiverState int

const (
	receiverOpening receiverState = iota
	receiverOpen
)

// Receiver is the per-peer receiver half of a session.
type Receiver struct {
	state    receiverState
	expected uint32 // next in-order sequence number expected
	finished bool
}

// newReceiver handles the "(none) -> OPENING" transition: a SYN(s) from
// a peer with no existing receiver creates one expecting s+1 and ACKs it.
func newReceiver(sock *Socket, peer *net.UDPAddr, synSeq uint32) *Receiver {
	r := &Receiver{state: receiverOpening, expected: synSeq + 1}
	sock.sendPacket(peer, &Packet{Version: Version, Type: TypeACK, Seqno: r.expected})
	return r
}

// OnSyn handles a SYN arriving for a receiver that already exists.
// While OPENING, a repeated SYN resets `expected` and re-ACKs (protects
// against a dropped initial ACK); once OPEN, a SYN is simply ignored —
// preserved deliberately, not "fixed", even though it means a first
// DATA after such a spurious SYN may arrive at an unexpected seqno.
func (r *Receiver) OnSyn(sock *Socket, peer *net.UDPAddr, synSeq uint32) {
	if r.state == receiverOpen {
		return
	}
	r.expected = synSeq + 1
	sock.sendPacket(peer, &Packet{Version: Version, Type: TypeACK, Seqno: r.expected})
}

// OnData handles an inbound DATA packet for both the OPENING and OPEN states.
func (r *Receiver) OnData(sock *Socket, peer *net.UDPAddr, seq uint32, payload []byte) {
	switch {
	case seq == r.expected:
		r.state = receiverOpen
		r.expected++
		sock.sendPacket(peer, &Packet{Version: Version, Type: TypeACK, Seqno: r.expected})
		sock.emitData(peer, payload)

	case r.state == receiverOpen && inRetrospectiveWindow(seq, r.expected):
		// Duplicate whose ACK was presumably lost: re-ACK, don't redeliver.
		sock.metrics.addDuplicateData(1)
		sock.sendPacket(peer, &Packet{Version: Version, Type: TypeACK, Seqno: seq + 1})

	default:
		sock.metrics.addDropped(1)
	}
}

// inRetrospectiveWindow reports whether seq falls in [expected-Window, expected),
// the range used to re-ACK without redelivering.
func inRetrospectiveWindow(seq, expected uint32) bool {
	return SeqLT(seq, expected) && SeqGEQ(seq, expected-Window)
}

// OnFin handles an inbound FIN: only a FIN at exactly the expected
// seqno is accepted; anything else is ignored.
func (r *Receiver) OnFin(sock *Socket, peer *net.UDPAddr, seq uint32, sess *Session) {
	if seq != r.expected {
		return
	}
	sock.sendPacket(peer, &Packet{Version: Version, Type: TypeACK, Seqno: seq + 1})
	r.finished = true
	sock.onSessionFinished(sess)
}
