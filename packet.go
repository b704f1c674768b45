package rudp

import "encoding/binary"

// HeaderSize is the fixed on-wire header length: version(2) + type(2) + seqno(4).
const HeaderSize = 8

// Packet is one RUDP datagram: a fixed header plus an opaque payload of
// 0..MaxPayload bytes. Payload length is never carried in the header; it
// is implicitly the UDP datagram length minus HeaderSize.
type Packet struct {
	Version uint16
	Type    PacketType
	Seqno   uint32
	Payload []byte
}

// Encode writes the packet's wire representation (header + payload, all
// multi-byte fields in network byte order) into a freshly allocated
// slice sized to fit exactly.
func Encode(p *Packet) []byte {
	buf := make([]byte, HeaderSize+len(p.Payload))
	binary.BigEndian.PutUint16(buf[0:2], p.Version)
	binary.BigEndian.PutUint16(buf[2:4], uint16(p.Type))
	binary.BigEndian.PutUint32(buf[4:8], p.Seqno)
	copy(buf[HeaderSize:], p.Payload)
	return buf
}

// Decode parses a raw datagram into a Packet. It rejects datagrams
// shorter than HeaderSize and datagrams whose version field doesn't
// match Version. Unknown packet types are not rejected here — the
// dispatcher ignores them silently instead. The returned Packet's
// Payload aliases buf; callers that retain the Packet beyond the
// lifetime of buf must copy it first.
func Decode(buf []byte) (*Packet, error) {
	if len(buf) < HeaderSize {
		return nil, ErrShortPacket
	}
	version := binary.BigEndian.Uint16(buf[0:2])
	if version != Version {
		return nil, ErrBadVersion
	}
	p := &Packet{
		Version: version,
		Type:    PacketType(binary.BigEndian.Uint16(buf[2:4])),
		Seqno:   binary.BigEndian.Uint32(buf[4:8]),
	}
	if len(buf) > HeaderSize {
		p.Payload = buf[HeaderSize:]
	}
	return p, nil
}
