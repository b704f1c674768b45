package rudp

import "net"

// peerKey is a session's identity: family, IPv4 address bytes, and
// port only. Other address families are unsupported — a documented
// limitation, not an oversight.
type peerKey struct {
	ip   [4]byte
	port int
}

// addrKey derives a peerKey from a net.Addr. It returns ok=false for
// anything that isn't an IPv4 UDP address.
func addrKey(addr net.Addr) (peerKey, bool) {
	ua, ok := addr.(*net.UDPAddr)
	if !ok {
		return peerKey{}, false
	}
	ip4 := ua.IP.To4()
	if ip4 == nil {
		return peerKey{}, false
	}
	var k peerKey
	copy(k.ip[:], ip4)
	k.port = ua.Port
	return k, true
}

func (k peerKey) Addr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(k.ip[0], k.ip[1], k.ip[2], k.ip[3]), Port: k.port}
}
