package rudp

import (
	"net"

	"github.com/xtaci/rudp/reactor"
)

type senderState int

const (
	senderSynSent senderState = iota
	senderOpen
	senderFinSent
)

// windowSlot is one in-flight, unacknowledged DATA packet plus its
// retransmission bookkeeping.
type windowSlot struct {
	packet  *Packet
	retries uint32
	timer   reactor.TimerHandle
}

// Sender is the per-peer sender half of a session. The window is
// represented as a slice rather than a fixed [Window]Option array: a
// slice can never have an internal gap, so the "left-packed, no holes"
// invariant holds by construction instead of needing to be checked.
type Sender struct {
	state     senderState
	nextSeqno uint32 // seqno last assigned to an outgoing SYN/DATA/FIN

	synSeqno   uint32
	synRetries uint32
	synTimer   reactor.TimerHandle

	finRetries uint32
	finTimer   reactor.TimerHandle

	window []*windowSlot
	queue  [][]byte

	finished bool
}

// newSender picks a random initial sequence number, enqueues the first
// payload, sends SYN, and starts the SYN timer: the "(none) ->
// SYN_SENT" transition — enqueue data, send SYN(S), start the SYN
// timer.
func newSender(sock *Socket, peer *net.UDPAddr, first []byte) *Sender {
	s := &Sender{state: senderSynSent}
	s.synSeqno = sock.engine.randomSeqno()
	s.nextSeqno = s.synSeqno
	s.queue = append(s.queue, append([]byte(nil), first...))

	sock.sendPacket(peer, &Packet{Version: Version, Type: TypeSYN, Seqno: s.synSeqno})
	synSeq := s.synSeqno
	s.synTimer = sock.scheduleTimer(Timeout, func() { s.onSynTimeout(sock, peer, synSeq) })
	return s
}

// Enqueue appends one application datagram for delivery. In the OPEN
// state with room in the window and nothing ahead of it in the queue,
// it is sent immediately; otherwise it waits in the FIFO queue for the
// next window refill.
func (s *Sender) Enqueue(sock *Socket, peer *net.UDPAddr, data []byte) {
	buf := append([]byte(nil), data...)
	if s.state == senderOpen && len(s.window) < Window && len(s.queue) == 0 {
		s.send(sock, peer, buf)
		return
	}
	s.queue = append(s.queue, buf)
}

// send assigns the next sequence number to buf, places it in the
// trailing window slot, transmits it, and arms its retransmission
// timer. Caller guarantees there is a free trailing slot.
func (s *Sender) send(sock *Socket, peer *net.UDPAddr, buf []byte) {
	s.nextSeqno++
	seq := s.nextSeqno
	pkt := &Packet{Version: Version, Type: TypeData, Seqno: seq, Payload: buf}
	sock.sendPacket(peer, pkt)
	slot := &windowSlot{packet: pkt}
	slot.timer = sock.scheduleTimer(Timeout, func() { s.onDataTimeout(sock, peer, seq) })
	s.window = append(s.window, slot)
}

// fillWindow greedily drains the outbound queue into free trailing
// window slots, then, if the window and queue have both drained and a
// close was requested, sends FIN.
func (s *Sender) fillWindow(sock *Socket, peer *net.UDPAddr) {
	for len(s.window) < Window && len(s.queue) > 0 {
		buf := s.queue[0]
		s.queue = s.queue[1:]
		s.send(sock, peer, buf)
	}

	if s.state == senderOpen && len(s.window) == 0 && len(s.queue) == 0 && sock.closeRequested {
		s.sendFin(sock, peer)
	}
}

func (s *Sender) sendFin(sock *Socket, peer *net.UDPAddr) {
	s.nextSeqno++
	fin := s.nextSeqno
	sock.sendPacket(peer, &Packet{Version: Version, Type: TypeFIN, Seqno: fin})
	s.state = senderFinSent
	s.finRetries = 0
	s.finTimer = sock.scheduleTimer(Timeout, func() { s.onFinTimeout(sock, peer, fin) })
}

// OnAck handles an inbound ACK: only the ACK whose seqno equals the
// head-of-window's seqno+1 (or the SYN/FIN equivalent) ever advances
// anything.
func (s *Sender) OnAck(sock *Socket, peer *net.UDPAddr, ack uint32, sess *Session) {
	switch s.state {
	case senderSynSent:
		if ack != s.synSeqno+1 {
			return
		}
		sock.cancelTimer(s.synTimer)
		s.state = senderOpen
		s.fillWindow(sock, peer)

	case senderOpen:
		if len(s.window) == 0 {
			return
		}
		head := s.window[0]
		if ack != head.packet.Seqno+1 {
			return
		}
		sock.cancelTimer(head.timer)
		s.window = s.window[1:]
		s.fillWindow(sock, peer)

	case senderFinSent:
		if ack != s.nextSeqno+1 {
			return
		}
		sock.cancelTimer(s.finTimer)
		s.finished = true
		sock.onSessionFinished(sess)
	}
}

func (s *Sender) onSynTimeout(sock *Socket, peer *net.UDPAddr, synSeq uint32) {
	if s.state != senderSynSent || s.synSeqno != synSeq {
		return // stale: already advanced past this phase
	}
	if s.synRetries >= MaxRetrans {
		sock.metrics.addTimeouts(1)
		sock.emitEvent(EventTimeout, peer)
		return
	}
	s.synRetries++
	sock.metrics.addRetransmits(1)
	sock.sendPacket(peer, &Packet{Version: Version, Type: TypeSYN, Seqno: s.synSeqno})
	s.synTimer = sock.scheduleTimer(Timeout, func() { s.onSynTimeout(sock, peer, synSeq) })
}

func (s *Sender) onDataTimeout(sock *Socket, peer *net.UDPAddr, seq uint32) {
	if s.state != senderOpen {
		return
	}
	idx := -1
	for i, slot := range s.window {
		if slot.packet.Seqno == seq {
			idx = i
			break
		}
	}
	if idx == -1 {
		return // stale: already acked and shifted out
	}
	slot := s.window[idx]
	if slot.retries >= MaxRetrans {
		sock.metrics.addTimeouts(1)
		sock.emitEvent(EventTimeout, peer)
		return
	}
	slot.retries++
	sock.metrics.addRetransmits(1)
	sock.sendPacket(peer, slot.packet)
	slot.timer = sock.scheduleTimer(Timeout, func() { s.onDataTimeout(sock, peer, seq) })
}

func (s *Sender) onFinTimeout(sock *Socket, peer *net.UDPAddr, finSeq uint32) {
	if s.state != senderFinSent || s.nextSeqno != finSeq {
		return
	}
	if s.finRetries >= MaxRetrans {
		sock.metrics.addTimeouts(1)
		sock.emitEvent(EventTimeout, peer)
		return
	}
	s.finRetries++
	sock.metrics.addRetransmits(1)
	sock.sendPacket(peer, &Packet{Version: Version, Type: TypeFIN, Seqno: finSeq})
	s.finTimer = sock.scheduleTimer(Timeout, func() { s.onFinTimeout(sock, peer, finSeq) })
}

// maybeSendFin is invoked after Socket.Close sets closeRequested, so a
// sender already idle (OPEN, empty window and queue) tears down without
// waiting for an unrelated ACK to trigger fillWindow.
func (s *Sender) maybeSendFin(sock *Socket, peer *net.UDPAddr) {
	if s.state == senderOpen && len(s.window) == 0 && len(s.queue) == 0 {
		s.sendFin(sock, peer)
	}
}
