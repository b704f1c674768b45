// Package reactor defines the abstract single-threaded event loop the
// RUDP engine depends on, plus one concrete, default implementation.
//
// The engine itself performs no locking and assumes every callback it
// registers runs to completion, one at a time, on whichever goroutine
// calls Run. Nothing about the interface requires that goroutine to be
// the only goroutine in the process — only that callbacks never run
// concurrently with each other.
package reactor

import (
	"net"
	"time"
)

// TimerHandle is an opaque token returned by ScheduleTimer. Cancelling a
// handle must be safe to call even if the timer has already fired but
// its callback has not yet run; the implementation must guard against
// invoking a callback whose handle was since cancelled.
type TimerHandle uint64

// ReadCallback is invoked once per datagram read from a registered
// connection. addr is the datagram's source address; data is valid only
// for the duration of the call.
type ReadCallback func(conn net.PacketConn, data []byte, addr net.Addr)

// TimerCallback is invoked once when its deadline elapses and the timer
// has not been cancelled in the meantime.
type TimerCallback func()

// Reactor is the abstract runtime the engine is built against:
// register/unregister a readable connection, schedule/cancel a one-shot
// timer, and run the cooperative loop that drives both. Callbacks run
// one at a time, never re-entrantly, and never concurrently with each
// other.
type Reactor interface {
	// OnReadable registers cb to be invoked once per datagram arriving on
	// conn. Registering the same conn twice replaces the previous callback.
	OnReadable(conn net.PacketConn, cb ReadCallback) error

	// CancelReadable stops delivering read events for conn. It is a no-op
	// if conn is not registered.
	CancelReadable(conn net.PacketConn) error

	// ScheduleTimer arranges for cb to run at or after deadline, returning
	// a handle that CancelTimer can later use to suppress it.
	ScheduleTimer(deadline time.Time, cb TimerCallback) TimerHandle

	// CancelTimer suppresses a previously scheduled timer. Idempotent;
	// safe to call after the timer has already fired.
	CancelTimer(h TimerHandle)

	// Run blocks, driving registered callbacks, until Stop is called or
	// a fatal I/O error occurs on a registered connection (a receive
	// error is fatal to the reactor loop).
	Run() error

	// Stop unblocks a concurrent Run call. Safe to call from any goroutine.
	Stop()
}
