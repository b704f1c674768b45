package rudp

import "github.com/pkg/errors"

// Synchronous API errors, returned immediately from Open/SendTo/etc.
// No event is emitted for these.
var (
	// ErrOversizedPayload is returned by SendTo when bytes exceeds MaxPayload.
	ErrOversizedPayload = errors.New("rudp: payload exceeds MaxPayload")
	// ErrUnknownHandle is the error for a handle that does not name a live
	// socket. Sockets are handed out as *Socket values, and no function in
	// this package returns it; SendTo on a closed socket returns ErrClosing.
	ErrUnknownHandle = errors.New("rudp: unknown socket handle")
	// ErrClosing is returned by SendTo once the socket has a close requested.
	ErrClosing = errors.New("rudp: socket is closing")
	// ErrShortPacket is returned by Decode for a datagram smaller than the header.
	ErrShortPacket = errors.New("rudp: packet shorter than header")
	// ErrBadVersion is returned by Decode when the header version doesn't match Version.
	ErrBadVersion = errors.New("rudp: unexpected protocol version")
	// ErrUnsupportedFamily is returned by SendTo for a non-IPv4 peer address.
	ErrUnsupportedFamily = errors.New("rudp: only IPv4 peer addresses are supported")
)
