package rudp

import "time"

// Wire-visible protocol constants. Changing any of these breaks
// interoperability with existing peers.
const (
	// Version is the only header version this engine emits or accepts.
	Version uint16 = 1

	// MaxPayload is the largest DATA payload carried by a single packet.
	MaxPayload = 1000

	// MaxRetrans is the retry ceiling: a slot that has been retransmitted
	// this many times without an ACK causes a TIMEOUT event.
	MaxRetrans = 5

	// Timeout is the fixed retransmission interval; there is no backoff.
	Timeout = 2000 * time.Millisecond

	// Window is the number of in-flight DATA packets a sender may have
	// outstanding, and the size of the receiver's retrospective
	// duplicate-detection window.
	Window = 3
)

// PacketType identifies the four RUDP packet kinds.
type PacketType uint16

const (
	// TypeData carries an application payload.
	TypeData PacketType = 1
	// TypeACK acknowledges the packet whose seqno is ack.Seqno-1.
	TypeACK PacketType = 2
	// TypeSYN opens a session.
	TypeSYN PacketType = 4
	// TypeFIN closes a session.
	TypeFIN PacketType = 5
)

func (t PacketType) String() string {
	switch t {
	case TypeData:
		return "DATA"
	case TypeACK:
		return "ACK"
	case TypeSYN:
		return "SYN"
	case TypeFIN:
		return "FIN"
	default:
		return "UNKNOWN"
	}
}

// Event is a lifecycle notification delivered to the application's event
// callback.
type Event int

const (
	// EventTimeout fires when a packet exceeded MaxRetrans retransmissions.
	EventTimeout Event = iota
	// EventClosed fires once per socket when close has been satisfied.
	EventClosed
)

func (e Event) String() string {
	switch e {
	case EventTimeout:
		return "TIMEOUT"
	case EventClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
