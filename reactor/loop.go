package reactor

import (
	"container/heap"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// maxDatagram is sized for header + MaxPayload plus headroom; the
// reactor package doesn't import the rudp package to avoid a cycle, so
// the limit is kept a little generous rather than wire-exact.
const maxDatagram = 2048

// pollInterval bounds how quickly CancelReadable takes effect: the
// reader goroutine for each connection re-arms a short read deadline so
// it can notice a cancellation without needing to close the socket.
// This is the portable stand-in for "unregister a readable fd" in a
// runtime without direct epoll access.
const pollInterval = 200 * time.Millisecond

type readEvent struct {
	conn net.PacketConn
	data []byte
	addr net.Addr
}

type timerEntry struct {
	handle    TimerHandle
	deadline  time.Time
	cb        TimerCallback
	cancelled bool
}

// timerHeap is a min-heap by deadline, the same container/heap shape the
// teacher's TimedSched uses for its parallel timer wheel, collapsed here
// to a single heap serviced by the one loop goroutine.
type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

type reader struct {
	conn    net.PacketConn
	cb      ReadCallback
	stop    chan struct{}
	stopped chan struct{}
}

// Loop is the default Reactor: one reader goroutine per registered
// connection feeding a single channel, and a min-heap of pending timers,
// both drained exclusively by the goroutine that calls Run. No engine
// callback ever runs concurrently with another.
type Loop struct {
	mu      sync.Mutex
	readers map[net.PacketConn]*reader
	heap    timerHeap
	nextID  uint64

	chRead chan readEvent
	chErr  chan error
	die    chan struct{}
	stopped sync.Once
}

// NewLoop creates a Loop ready to accept registrations before Run is called.
func NewLoop() *Loop {
	return &Loop{
		readers: make(map[net.PacketConn]*reader),
		chRead:  make(chan readEvent, 64),
		chErr:   make(chan error, 1),
		die:     make(chan struct{}),
	}
}

// OnReadable implements Reactor.
func (l *Loop) OnReadable(conn net.PacketConn, cb ReadCallback) error {
	l.mu.Lock()
	if existing, ok := l.readers[conn]; ok {
		close(existing.stop)
		delete(l.readers, conn)
		l.mu.Unlock()
		<-existing.stopped
		l.mu.Lock()
	}
	r := &reader{conn: conn, cb: cb, stop: make(chan struct{}), stopped: make(chan struct{})}
	l.readers[conn] = r
	l.mu.Unlock()

	go l.readLoop(r)
	return nil
}

// CancelReadable implements Reactor.
func (l *Loop) CancelReadable(conn net.PacketConn) error {
	l.mu.Lock()
	r, ok := l.readers[conn]
	if ok {
		delete(l.readers, conn)
	}
	l.mu.Unlock()
	if !ok {
		return nil
	}
	close(r.stop)
	<-r.stopped
	return nil
}

// readLoop polls conn for datagrams until stop is closed. Read errors
// other than the polling deadline are forwarded as fatal: an I/O error
// from receive is fatal to the reactor loop.
func (l *Loop) readLoop(r *reader) {
	defer close(r.stopped)
	buf := make([]byte, maxDatagram)
	for {
		select {
		case <-r.stop:
			return
		default:
		}

		r.conn.SetReadDeadline(time.Now().Add(pollInterval))
		n, addr, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-r.stop:
			case l.chErr <- errors.WithStack(err):
			}
			return
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case l.chRead <- readEvent{conn: r.conn, data: data, addr: addr}:
		case <-r.stop:
			return
		}
	}
}

// ScheduleTimer implements Reactor.
func (l *Loop) ScheduleTimer(deadline time.Time, cb TimerCallback) TimerHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := atomic.AddUint64(&l.nextID, 1)
	e := &timerEntry{handle: TimerHandle(id), deadline: deadline, cb: cb}
	heap.Push(&l.heap, e)
	return e.handle
}

// CancelTimer implements Reactor. Cancellation is lazy: the entry is
// found by a linear scan of the heap, marked, and skipped when it would
// otherwise fire. A handle whose timer has already left the heap is not
// found, and cancelling it is a no-op.
func (l *Loop) CancelTimer(h TimerHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.heap {
		if e.handle == h {
			e.cancelled = true
			return
		}
	}
}

// Run implements Reactor.
func (l *Loop) Run() error {
	for {
		due, wait, hasNext := l.popDue()
		for _, e := range due {
			e.cb()
		}
		if len(due) > 0 {
			continue
		}

		var timerC <-chan time.Time
		var t *time.Timer
		if hasNext {
			t = time.NewTimer(wait)
			timerC = t.C
		}

		select {
		case ev := <-l.chRead:
			if t != nil {
				t.Stop()
			}
			l.mu.Lock()
			r, ok := l.readers[ev.conn]
			l.mu.Unlock()
			if ok {
				r.cb(ev.conn, ev.data, ev.addr)
			}
		case <-timerC:
			// loop again; popDue will pick up whatever is now due
		case err := <-l.chErr:
			if t != nil {
				t.Stop()
			}
			return err
		case <-l.die:
			if t != nil {
				t.Stop()
			}
			return nil
		}
	}
}

// popDue removes and returns the earliest non-cancelled timer whose
// deadline has passed (discarding cancelled ones on the way), along
// with the wait duration until the next pending timer (if any remain).
// Only one timer is popped per call, so a callback that cancels another
// due timer is honoured: that timer is still in the heap when cancelled.
func (l *Loop) popDue() (due []*timerEntry, wait time.Duration, hasNext bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	for len(l.heap) > 0 && !l.heap[0].deadline.After(now) {
		e := heap.Pop(&l.heap).(*timerEntry)
		if !e.cancelled {
			due = append(due, e)
			break
		}
	}
	if len(l.heap) > 0 {
		wait = l.heap[0].deadline.Sub(now)
		if wait < 0 {
			wait = 0
		}
		hasNext = true
	}
	return due, wait, hasNext
}

// Stop implements Reactor.
func (l *Loop) Stop() {
	l.stopped.Do(func() { close(l.die) })
}
