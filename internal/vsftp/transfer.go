package vsftp

import (
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/xtaci/rudp"
)

// SendFile pushes one control frame followed by body chunked into
// pieces no larger than rudp.MaxPayload. Each SendTo enqueues onto the
// session's sender; the transport's own window and retransmission
// handle delivery from here.
func SendFile(sock *rudp.Socket, peer *net.UDPAddr, ctrl Control, body []byte) error {
	frame, err := Encode(ctrl)
	if err != nil {
		return errors.Wrap(err, "vsftp: encode control frame")
	}
	if err := sock.SendTo(frame, peer); err != nil {
		return errors.Wrap(err, "vsftp: send control frame")
	}
	for len(body) > 0 {
		n := len(body)
		if n > rudp.MaxPayload {
			n = rudp.MaxPayload
		}
		if err := sock.SendTo(body[:n], peer); err != nil {
			return errors.Wrap(err, "vsftp: send body chunk")
		}
		body = body[n:]
	}
	return nil
}

// transferState tracks one in-progress inbound transfer: the control
// frame (once seen) and the body bytes accumulated so far.
type transferState struct {
	ctrl     Control
	haveCtrl bool
	body     []byte
}

// CompleteFunc is invoked once a transfer's body has reached the size
// announced in its control frame.
type CompleteFunc func(peer *net.UDPAddr, ctrl Control, body []byte)

// Receiver reassembles one or more concurrent inbound transfers, keyed
// by peer, from the flat stream of DATA payloads an rudp.Socket
// delivers. It has no notion of its own of "connections" beyond what
// the underlying Socket's session table already tracks; it only needs
// to tell a transfer's first payload (the control frame) apart from
// the chunks that follow.
type Receiver struct {
	mu       sync.Mutex
	inFlight map[string]*transferState
	onDone   CompleteFunc
}

// NewReceiver creates a Receiver that calls onDone once per completed transfer.
func NewReceiver(onDone CompleteFunc) *Receiver {
	return &Receiver{inFlight: make(map[string]*transferState), onDone: onDone}
}

// HandleData is an rudp.DataHandler: register it with
// Socket.SetDataHandler to drive this Receiver.
func (r *Receiver) HandleData(sock *rudp.Socket, peer *net.UDPAddr, data []byte) {
	key := peer.String()

	r.mu.Lock()
	st, ok := r.inFlight[key]
	if !ok {
		st = &transferState{}
		r.inFlight[key] = st
	}

	if !st.haveCtrl {
		ctrl, err := Decode(data)
		if err != nil {
			delete(r.inFlight, key)
			r.mu.Unlock()
			return
		}
		st.ctrl = ctrl
		st.haveCtrl = true
		if ctrl.Size == 0 {
			delete(r.inFlight, key)
			r.mu.Unlock()
			r.onDone(peer, ctrl, nil)
			return
		}
		st.body = make([]byte, 0, ctrl.Size)
		r.mu.Unlock()
		return
	}

	st.body = append(st.body, data...)
	done := uint64(len(st.body)) >= st.ctrl.Size
	var ctrl Control
	var body []byte
	if done {
		ctrl, body = st.ctrl, st.body
		delete(r.inFlight, key)
	}
	r.mu.Unlock()

	if done {
		r.onDone(peer, ctrl, body)
	}
}
