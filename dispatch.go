package rudp

import "net"

// onReadable is the dispatcher entry point registered with the
// reactor: decode one datagram and route it by type. It always runs on
// the reactor's single callback goroutine, so nothing here needs
// locking against the rest of the engine.
func (sock *Socket) onReadable(conn net.PacketConn, data []byte, addr net.Addr) {
	sock.metrics.addPacketsRecv(1)

	pkt, err := Decode(data)
	if err != nil {
		sock.metrics.addMalformedPackets(1)
		return
	}

	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		sock.metrics.addDropped(1)
		return
	}
	key, ok := addrKey(udpAddr)
	if !ok {
		sock.metrics.addDropped(1)
		return
	}
	sock.lastPeer = udpAddr

	sess, exists := sock.sessions[key]

	switch pkt.Type {
	case TypeSYN:
		sock.dispatchSyn(sess, exists, key, udpAddr, pkt)
	case TypeACK:
		sock.dispatchAck(sess, exists, udpAddr, pkt)
	case TypeData:
		sock.dispatchData(sess, exists, udpAddr, pkt)
	case TypeFIN:
		sock.dispatchFin(sess, exists, udpAddr, pkt)
	default:
		// Unknown types are ignored silently.
		sock.metrics.addDropped(1)
	}
}

func (sock *Socket) dispatchSyn(sess *Session, exists bool, key peerKey, peer *net.UDPAddr, pkt *Packet) {
	if !exists {
		sess = newSession(peer, key)
		sock.sessions[key] = sess
		sock.metrics.addSessionsOpened(1)
	}
	if sess.receiver == nil {
		sess.receiver = newReceiver(sock, peer, pkt.Seqno)
		return
	}
	sess.receiver.OnSyn(sock, peer, pkt.Seqno)
}

func (sock *Socket) dispatchAck(sess *Session, exists bool, peer *net.UDPAddr, pkt *Packet) {
	if !exists || sess.sender == nil {
		sock.metrics.addDropped(1)
		return
	}
	sess.sender.OnAck(sock, peer, pkt.Seqno, sess)
}

func (sock *Socket) dispatchData(sess *Session, exists bool, peer *net.UDPAddr, pkt *Packet) {
	if !exists || sess.receiver == nil {
		sock.metrics.addDropped(1)
		return
	}
	sess.receiver.OnData(sock, peer, pkt.Seqno, pkt.Payload)
}

func (sock *Socket) dispatchFin(sess *Session, exists bool, peer *net.UDPAddr, pkt *Packet) {
	if !exists || sess.receiver == nil {
		sock.metrics.addDropped(1)
		return
	}
	sess.receiver.OnFin(sock, peer, pkt.Seqno, sess)
}
