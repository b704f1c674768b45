package rudp

import (
	"net"
	"sort"
	"time"

	"github.com/xtaci/rudp/reactor"
)

// fakeTimer is one pending timer registered against a fakeReactor.
type fakeTimer struct {
	handle    reactor.TimerHandle
	deadline  time.Time
	cb        reactor.TimerCallback
	cancelled bool
}

// fakeReactor is a deterministic, manually-driven stand-in for
// reactor.Reactor: nothing fires on its own. Tests inject datagrams and
// fire timers explicitly, so scenarios that would otherwise depend on
// wall-clock timeouts and goroutine scheduling become single-threaded
// and repeatable.
type fakeReactor struct {
	conns  map[net.PacketConn]reactor.ReadCallback
	timers []*fakeTimer
	nextID uint64
}

func newFakeReactor() *fakeReactor {
	return &fakeReactor{conns: make(map[net.PacketConn]reactor.ReadCallback)}
}

func (fr *fakeReactor) OnReadable(conn net.PacketConn, cb reactor.ReadCallback) error {
	fr.conns[conn] = cb
	return nil
}

func (fr *fakeReactor) CancelReadable(conn net.PacketConn) error {
	delete(fr.conns, conn)
	return nil
}

func (fr *fakeReactor) ScheduleTimer(deadline time.Time, cb reactor.TimerCallback) reactor.TimerHandle {
	fr.nextID++
	h := reactor.TimerHandle(fr.nextID)
	fr.timers = append(fr.timers, &fakeTimer{handle: h, deadline: deadline, cb: cb})
	return h
}

func (fr *fakeReactor) CancelTimer(h reactor.TimerHandle) {
	for _, t := range fr.timers {
		if t.handle == h {
			t.cancelled = true
			return
		}
	}
}

// Run and Stop are unused by tests that drive the fake reactor directly;
// they exist only to satisfy reactor.Reactor.
func (fr *fakeReactor) Run() error { return nil }
func (fr *fakeReactor) Stop()      {}

// Inject delivers one datagram to the callback registered for conn, as
// if it had just arrived from addr. It is a no-op if conn isn't registered.
func (fr *fakeReactor) Inject(conn net.PacketConn, data []byte, addr net.Addr) {
	if cb, ok := fr.conns[conn]; ok {
		cb(conn, data, addr)
	}
}

// pending returns the non-cancelled, not-yet-fired timers in deadline order.
func (fr *fakeReactor) pending() []*fakeTimer {
	var live []*fakeTimer
	for _, t := range fr.timers {
		if !t.cancelled {
			live = append(live, t)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].deadline.Before(live[j].deadline) })
	return live
}

// FireEarliest fires the earliest still-pending timer and reports
// whether there was one to fire.
func (fr *fakeReactor) FireEarliest() bool {
	live := fr.pending()
	if len(live) == 0 {
		return false
	}
	t := live[0]
	t.cancelled = true // consumed; a real timer never fires twice either
	t.cb()
	return true
}

// Count reports how many timers are currently pending.
func (fr *fakeReactor) Count() int { return len(fr.pending()) }

// Fire fires a specific still-pending timer by handle, regardless of its
// position in deadline order, and reports whether it was pending.
func (fr *fakeReactor) Fire(h reactor.TimerHandle) bool {
	for _, t := range fr.timers {
		if t.handle == h && !t.cancelled {
			t.cancelled = true
			t.cb()
			return true
		}
	}
	return false
}
