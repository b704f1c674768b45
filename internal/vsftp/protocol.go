// Package vsftp implements the tiny file-transfer protocol the vsftp
// client and server demos speak over an RUDP socket: one control frame
// naming the file and its size, followed by the file body chunked into
// DATA-sized pieces.
package vsftp

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Op identifies a control frame's purpose.
type Op byte

const (
	// OpPut announces an upload: the sender is about to push Size bytes
	// named Name.
	OpPut Op = 1
	// OpGet requests a download of the file named Name.
	OpGet Op = 2
	// OpOk acknowledges a request at the application level (distinct
	// from the transport's own ACK).
	OpOk Op = 3
	// OpErr reports that the peer could not satisfy the request; Name
	// carries a short human-readable reason instead of a file name.
	OpErr Op = 4
)

// maxNameLen is NAMELEN's range: a single byte.
const maxNameLen = 255

// Control is one control frame: OP(1) | NAMELEN(1) | name | SIZE(8, BE).
// Size is the number of body bytes that follow the frame: zero for
// OpGet, OpErr and an OpOk acknowledging a PUT; an OpOk answering a GET
// carries the size of the file body sent after it.
type Control struct {
	Op   Op
	Name string
	Size uint64
}

// ErrNameTooLong is returned by Encode when Name exceeds 255 bytes.
var ErrNameTooLong = errors.New("vsftp: file name exceeds 255 bytes")

// Encode writes c's wire representation. It never allocates more than
// the frame needs and is always small enough to fit in a single RUDP
// DATA payload.
func Encode(c Control) ([]byte, error) {
	if len(c.Name) > maxNameLen {
		return nil, ErrNameTooLong
	}
	buf := make([]byte, 2+len(c.Name)+8)
	buf[0] = byte(c.Op)
	buf[1] = byte(len(c.Name))
	copy(buf[2:], c.Name)
	binary.BigEndian.PutUint64(buf[2+len(c.Name):], c.Size)
	return buf, nil
}

// Decode parses a control frame produced by Encode.
func Decode(buf []byte) (Control, error) {
	if len(buf) < 2 {
		return Control{}, errors.New("vsftp: control frame shorter than OP+NAMELEN")
	}
	nameLen := int(buf[1])
	want := 2 + nameLen + 8
	if len(buf) < want {
		return Control{}, errors.Errorf("vsftp: control frame is %d bytes, want %d", len(buf), want)
	}
	return Control{
		Op:   Op(buf[0]),
		Name: string(buf[2 : 2+nameLen]),
		Size: binary.BigEndian.Uint64(buf[2+nameLen : want]),
	}, nil
}

func (o Op) String() string {
	switch o {
	case OpPut:
		return "PUT"
	case OpGet:
		return "GET"
	case OpOk:
		return "OK"
	case OpErr:
		return "ERR"
	default:
		return "UNKNOWN"
	}
}
