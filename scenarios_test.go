package rudp

import (
	"net"
	"testing"
	"time"
)

// pair is two engines, each with its own fake reactor and a real
// loopback-bound socket, wired so datagrams travel over the kernel's
// real loopback path but every retransmission timer is fired by hand.
type pair struct {
	t          *testing.T
	engA, engB *Engine
	frA, frB   *fakeReactor
	sockA      *Socket
	sockB      *Socket
	addrA      *net.UDPAddr
	addrB      *net.UDPAddr
}

func newPair(t *testing.T) *pair {
	t.Helper()
	frA, frB := newFakeReactor(), newFakeReactor()
	engA, engB := New(frA), New(frB)

	sockA, err := engA.Open(0)
	if err != nil {
		t.Fatalf("open A: %v", err)
	}
	sockB, err := engB.Open(0)
	if err != nil {
		t.Fatalf("open B: %v", err)
	}

	addrA := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: sockA.LocalAddr().(*net.UDPAddr).Port}
	addrB := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: sockB.LocalAddr().(*net.UDPAddr).Port}

	return &pair{t: t, engA: engA, engB: engB, frA: frA, frB: frB, sockA: sockA, sockB: sockB, addrA: addrA, addrB: addrB}
}

// deliver reads exactly one datagram that has already arrived on to's
// underlying conn (put there by the kernel after the other side sent
// it) and injects it into to's fake reactor, exercising the real
// dispatcher.
func (p *pair) deliver(to *Socket, fr *fakeReactor) {
	p.t.Helper()
	to.conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 2048)
	n, addr, err := to.conn.ReadFromUDP(buf)
	if err != nil {
		p.t.Fatalf("deliver: no datagram arrived: %v", err)
	}
	fr.Inject(to.conn, buf[:n], addr)
}

func sessionFor(sock *Socket, addr *net.UDPAddr) *Session {
	key, _ := addrKey(addr)
	return sock.sessions[key]
}

// Handshake followed by delivery of a single datagram.
func TestScenarioHandshakeAndSingleDatagram(t *testing.T) {
	p := newPair(t)

	var received [][]byte
	p.sockB.SetDataHandler(func(sock *Socket, peer *net.UDPAddr, data []byte) {
		received = append(received, append([]byte(nil), data...))
	})

	if err := p.sockA.SendTo([]byte("hello"), p.addrB); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	p.deliver(p.sockB, p.frB) // SYN(s) -> B
	p.deliver(p.sockA, p.frA) // ACK(s+1) -> A, A opens and sends DATA
	p.deliver(p.sockB, p.frB) // DATA(s+1,"hello") -> B, B delivers and ACKs
	p.deliver(p.sockA, p.frA) // ACK(s+2) -> A, window empties

	if len(received) != 1 {
		t.Fatalf("data handler invoked %d times, want 1", len(received))
	}
	if string(received[0]) != "hello" {
		t.Fatalf("delivered payload = %q, want %q", received[0], "hello")
	}

	sessA := sessionFor(p.sockA, p.addrB)
	if len(sessA.sender.window) != 0 || len(sessA.sender.queue) != 0 {
		t.Fatalf("A's sender should be idle after the final ACK: window=%v queue=%v",
			sessA.sender.window, sessA.sender.queue)
	}
}

// Windowed burst: four payloads queued before any ACK arrives.
func TestScenarioWindowedBurst(t *testing.T) {
	p := newPair(t)

	p1, p2, p3, p4 := make([]byte, 100), make([]byte, 100), make([]byte, 100), make([]byte, 100)
	for i := range p1 {
		p1[i], p2[i], p3[i], p4[i] = 1, 2, 3, 4
	}

	if err := p.sockA.SendTo(p1, p.addrB); err != nil {
		t.Fatalf("SendTo P1: %v", err)
	}
	sessA := sessionFor(p.sockA, p.addrB)
	sessA.sender.Enqueue(p.sockA, p.addrB, p2)
	sessA.sender.Enqueue(p.sockA, p.addrB, p3)
	sessA.sender.Enqueue(p.sockA, p.addrB, p4)
	if len(sessA.sender.queue) != 4 {
		t.Fatalf("queue depth before handshake completes = %d, want 4 (P1..P4 all queued until SYN is ACKed)", len(sessA.sender.queue))
	}

	p.deliver(p.sockB, p.frB) // SYN -> B
	p.deliver(p.sockA, p.frA) // ACK -> A: opens, fillWindow sends P1,P2,P3

	if len(sessA.sender.window) != Window {
		t.Fatalf("window depth = %d, want %d", len(sessA.sender.window), Window)
	}
	if len(sessA.sender.queue) != 1 {
		t.Fatalf("remaining queue depth = %d, want 1 (P4)", len(sessA.sender.queue))
	}
	synSeq := sessA.sender.window[0].packet.Seqno - 1 // s
	wantSeqs := []uint32{synSeq + 1, synSeq + 2, synSeq + 3}
	for i, slot := range sessA.sender.window {
		if slot.packet.Seqno != wantSeqs[i] {
			t.Fatalf("window[%d].Seqno = %d, want %d", i, slot.packet.Seqno, wantSeqs[i])
		}
	}

	// B hasn't been delivered any DATA yet in this test; simulate its ACK
	// of P1 directly.
	ackP1 := &Packet{Version: Version, Type: TypeACK, Seqno: synSeq + 2}
	p.frA.Inject(p.sockA.conn, Encode(ackP1), p.addrB)

	if len(sessA.sender.window) != Window {
		t.Fatalf("window depth after ACK(s+2) = %d, want %d (P2,P3,P4)", len(sessA.sender.window), Window)
	}
	if len(sessA.sender.queue) != 0 {
		t.Fatalf("queue should be drained once P4 is sent, got %d", len(sessA.sender.queue))
	}
	if sessA.sender.window[len(sessA.sender.window)-1].packet.Seqno != synSeq+4 {
		t.Fatalf("P4 sent with seqno %d, want %d", sessA.sender.window[len(sessA.sender.window)-1].packet.Seqno, synSeq+4)
	}
}

// Lost DATA retransmit: the first transmission of P2 is dropped; its
// timer fires and A retransmits it; B ends up delivering in order.
func TestScenarioLostDataRetransmit(t *testing.T) {
	p := newPair(t)

	var received [][]byte
	p.sockB.SetDataHandler(func(sock *Socket, peer *net.UDPAddr, data []byte) {
		received = append(received, append([]byte(nil), data...))
	})

	p1, p2, p3 := []byte("P1"), []byte("P2"), []byte("P3")
	if err := p.sockA.SendTo(p1, p.addrB); err != nil {
		t.Fatalf("SendTo: %v", err)
	}
	sessA := sessionFor(p.sockA, p.addrB)
	sessA.sender.Enqueue(p.sockA, p.addrB, p2)
	sessA.sender.Enqueue(p.sockA, p.addrB, p3)

	p.deliver(p.sockB, p.frB) // SYN -> B
	p.deliver(p.sockA, p.frA) // ACK -> A opens, sends DATA(P1),DATA(P2),DATA(P3)

	// Drain and discard the three real datagrams A just sent: P2's will be
	// "lost" (never delivered to B), P1 and P3 are delivered directly.
	discard := func(sock *Socket) ([]byte, *net.UDPAddr) {
		sock.conn.SetReadDeadline(time.Now().Add(time.Second))
		buf := make([]byte, 2048)
		n, addr, err := sock.conn.ReadFromUDP(buf)
		if err != nil {
			t.Fatalf("expected datagram: %v", err)
		}
		return buf[:n], addr
	}
	d1, a1 := discard(p.sockB)
	_, _ = discard(p.sockB) // P2, dropped on the wire
	d3, a3 := discard(p.sockB)

	p.frB.Inject(p.sockB.conn, d1, a1)

	slotP2Timer := sessA.sender.window[1].timer
	if !p.frA.Fire(slotP2Timer) {
		t.Fatalf("P2's retransmission timer was not pending")
	}
	if sessA.sender.window[1].retries != 1 {
		t.Fatalf("P2 retries = %d, want 1", sessA.sender.window[1].retries)
	}
	if got := p.sockA.Metrics().Retransmits; got != 1 {
		t.Fatalf("Retransmits = %d, want 1", got)
	}

	p.deliver(p.sockB, p.frB) // the retransmitted DATA(P2)
	p.frB.Inject(p.sockB.conn, d3, a3)

	if len(received) != 3 {
		t.Fatalf("B delivered %d payloads, want 3", len(received))
	}
	for i, want := range [][]byte{p1, p2, p3} {
		if string(received[i]) != string(want) {
			t.Fatalf("received[%d] = %q, want %q (out of order delivery)", i, received[i], want)
		}
	}
}

// Lost ACK dedup: B's ACK is dropped, A retransmits, B must re-ACK
// without redelivering to the application.
func TestScenarioLostAckDedup(t *testing.T) {
	p := newPair(t)

	deliveries := 0
	p.sockB.SetDataHandler(func(sock *Socket, peer *net.UDPAddr, data []byte) { deliveries++ })

	if err := p.sockA.SendTo([]byte("hello"), p.addrB); err != nil {
		t.Fatalf("SendTo: %v", err)
	}
	p.deliver(p.sockB, p.frB) // SYN -> B
	p.deliver(p.sockA, p.frA) // ACK -> A opens, sends DATA(s+1)
	p.deliver(p.sockB, p.frB) // DATA(s+1) -> B, delivers once, sends ACK(s+2)

	// B's ACK(s+2) is lost: drain it from A's socket without injecting it.
	p.sockA.conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 2048)
	if _, _, err := p.sockA.conn.ReadFromUDP(buf); err != nil {
		t.Fatalf("expected the dropped ACK datagram: %v", err)
	}

	sessA := sessionFor(p.sockA, p.addrB)
	dataTimer := sessA.sender.window[0].timer
	if !p.frA.Fire(dataTimer) {
		t.Fatalf("DATA(s+1)'s retransmission timer was not pending")
	}

	p.deliver(p.sockB, p.frB) // retransmitted DATA(s+1) -> B dedups, re-ACKs
	p.deliver(p.sockA, p.frA) // ACK(s+2) -> A, window empties

	if deliveries != 1 {
		t.Fatalf("data handler invoked %d times, want exactly 1", deliveries)
	}
	if got := p.sockB.Metrics().DuplicateData; got != 1 {
		t.Fatalf("DuplicateData = %d, want 1", got)
	}
	if len(sessA.sender.window) != 0 {
		t.Fatalf("A's window should be empty after the re-ACK, got %d entries", len(sessA.sender.window))
	}
}

// SYN retry ceiling: B never responds; A retries MaxRetrans times then
// emits TIMEOUT and delivers no payload.
func TestScenarioSynRetryCeiling(t *testing.T) {
	p := newPair(t)

	var timeoutEvents int
	var timeoutPeer *net.UDPAddr
	p.sockA.SetEventHandler(func(sock *Socket, ev Event, peer *net.UDPAddr) {
		if ev == EventTimeout {
			timeoutEvents++
			timeoutPeer = peer
		}
	})

	if err := p.sockA.SendTo([]byte("hello"), p.addrB); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	// Drain the real SYN datagrams A sends on each retry so the kernel
	// socket buffer never backs up; B never looks at them.
	drainOne := func() {
		p.sockB.conn.SetReadDeadline(time.Now().Add(time.Second))
		buf := make([]byte, 2048)
		if _, _, err := p.sockB.conn.ReadFromUDP(buf); err != nil {
			t.Fatalf("expected a SYN retry datagram: %v", err)
		}
	}
	drainOne() // initial SYN

	for i := 0; i < MaxRetrans; i++ {
		if !p.frA.FireEarliest() {
			t.Fatalf("expected a pending SYN timer on retry %d", i)
		}
		drainOne()
	}

	if !p.frA.FireEarliest() {
		t.Fatalf("expected the final SYN timer to still be pending")
	}

	if timeoutEvents != 1 {
		t.Fatalf("TIMEOUT events = %d, want 1", timeoutEvents)
	}
	if timeoutPeer == nil || !timeoutPeer.IP.Equal(p.addrB.IP) || timeoutPeer.Port != p.addrB.Port {
		t.Fatalf("TIMEOUT peer = %v, want %v", timeoutPeer, p.addrB)
	}
	if got := p.sockA.Metrics().Timeouts; got != 1 {
		t.Fatalf("Timeouts metric = %d, want 1", got)
	}
}

// Orderly close after a completed exchange.
func TestScenarioOrderlyClose(t *testing.T) {
	p := newPair(t)

	var closedEvents int
	p.sockA.SetEventHandler(func(sock *Socket, ev Event, peer *net.UDPAddr) {
		if ev == EventClosed {
			closedEvents++
		}
	})

	if err := p.sockA.SendTo([]byte("hello"), p.addrB); err != nil {
		t.Fatalf("SendTo: %v", err)
	}
	p.deliver(p.sockB, p.frB)
	p.deliver(p.sockA, p.frA)
	p.deliver(p.sockB, p.frB)
	p.deliver(p.sockA, p.frA)

	p.sockA.Close()

	sessA := sessionFor(p.sockA, p.addrB)
	if sessA.sender.state != senderFinSent {
		t.Fatalf("sender state = %v, want FIN_SENT after Close with an idle window", sessA.sender.state)
	}

	p.deliver(p.sockB, p.frB) // FIN -> B, B ACKs and finishes its receiver half
	p.deliver(p.sockA, p.frA) // ACK -> A, sender finishes

	if closedEvents != 1 {
		t.Fatalf("CLOSED events on A = %d, want 1", closedEvents)
	}
	if _, ok := p.sockA.engine.sockets[p.sockA]; ok {
		t.Fatalf("A's socket should have been torn down from its engine")
	}
}

// Universal invariant: a socket's SendTo never exceeds MaxPayload.
func TestInvariantOversizedPayloadRejected(t *testing.T) {
	p := newPair(t)
	err := p.sockA.SendTo(make([]byte, MaxPayload+1), p.addrB)
	if err != ErrOversizedPayload {
		t.Fatalf("err = %v, want ErrOversizedPayload", err)
	}
}

// Universal invariant: SendTo after Close is rejected, not silently queued.
func TestInvariantSendAfterCloseRejected(t *testing.T) {
	p := newPair(t)
	p.sockA.Close()
	err := p.sockA.SendTo([]byte("x"), p.addrB)
	if err != ErrClosing {
		t.Fatalf("err = %v, want ErrClosing", err)
	}
}

// Universal invariant: a repeated SYN while OPEN is ignored (preserved
// deliberately, not "fixed").
func TestInvariantRepeatedSynWhileOpenIsIgnored(t *testing.T) {
	p := newPair(t)

	if err := p.sockA.SendTo([]byte("hello"), p.addrB); err != nil {
		t.Fatalf("SendTo: %v", err)
	}
	p.deliver(p.sockB, p.frB) // SYN -> B
	p.deliver(p.sockA, p.frA) // ACK -> A opens, sends DATA
	p.deliver(p.sockB, p.frB) // DATA -> B's receiver becomes OPEN

	sessB := sessionFor(p.sockB, p.addrA)
	if sessB.receiver.state != receiverOpen {
		t.Fatalf("receiver state = %v, want OPEN before the spurious SYN", sessB.receiver.state)
	}
	expectedBefore := sessB.receiver.expected

	dup := &Packet{Version: Version, Type: TypeSYN, Seqno: 999}
	p.frB.Inject(p.sockB.conn, Encode(dup), p.addrA)

	if sessB.receiver.expected != expectedBefore {
		t.Fatalf("expected seqno changed after a spurious SYN while OPEN: %d -> %d", expectedBefore, sessB.receiver.expected)
	}
}
