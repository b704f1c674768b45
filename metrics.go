package rudp

import (
	"fmt"
	"sync/atomic"
)

// Metrics holds one socket's lock-free counters for conditions an
// implementation may optionally expose (malformed packets, packets for
// unknown peers, unexpected-state packets, and so on are all "counted
// and dropped" rather than surfaced as events).
type Metrics struct {
	PacketsSent      uint64
	PacketsRecv      uint64
	Retransmits      uint64
	Timeouts         uint64
	Dropped          uint64
	MalformedPackets uint64
	DuplicateData    uint64
	SessionsOpened   uint64
	SessionsClosed   uint64
}

// snapshot fields, in the order Header/Row emit them.
var metricsFields = []string{
	"PacketsSent", "PacketsRecv", "Retransmits", "Timeouts",
	"Dropped", "MalformedPackets", "DuplicateData",
	"SessionsOpened", "SessionsClosed",
}

func (m *Metrics) addPacketsSent(n uint64)      { atomic.AddUint64(&m.PacketsSent, n) }
func (m *Metrics) addPacketsRecv(n uint64)      { atomic.AddUint64(&m.PacketsRecv, n) }
func (m *Metrics) addRetransmits(n uint64)      { atomic.AddUint64(&m.Retransmits, n) }
func (m *Metrics) addTimeouts(n uint64)         { atomic.AddUint64(&m.Timeouts, n) }
func (m *Metrics) addDropped(n uint64)          { atomic.AddUint64(&m.Dropped, n) }
func (m *Metrics) addMalformedPackets(n uint64) { atomic.AddUint64(&m.MalformedPackets, n) }
func (m *Metrics) addDuplicateData(n uint64)    { atomic.AddUint64(&m.DuplicateData, n) }
func (m *Metrics) addSessionsOpened(n uint64)   { atomic.AddUint64(&m.SessionsOpened, n) }
func (m *Metrics) addSessionsClosed(n uint64)   { atomic.AddUint64(&m.SessionsClosed, n) }

// Snapshot returns a consistent-enough point-in-time copy of the counters.
// Individual fields are read atomically but not as a single transaction,
// matching the teacher's DefaultSnmp.Copy() semantics.
func (m *Metrics) Snapshot() Metrics {
	return Metrics{
		PacketsSent:      atomic.LoadUint64(&m.PacketsSent),
		PacketsRecv:      atomic.LoadUint64(&m.PacketsRecv),
		Retransmits:      atomic.LoadUint64(&m.Retransmits),
		Timeouts:         atomic.LoadUint64(&m.Timeouts),
		Dropped:          atomic.LoadUint64(&m.Dropped),
		MalformedPackets: atomic.LoadUint64(&m.MalformedPackets),
		DuplicateData:    atomic.LoadUint64(&m.DuplicateData),
		SessionsOpened:   atomic.LoadUint64(&m.SessionsOpened),
		SessionsClosed:   atomic.LoadUint64(&m.SessionsClosed),
	}
}

// Header returns the CSV column names, matching Row's field order.
func (m *Metrics) Header() []string { return metricsFields }

// Row returns the counters as strings, suitable for a CSV writer the way
// std.SnmpLogger drives kcp.DefaultSnmp.ToSlice().
func (m *Metrics) Row() []string {
	s := m.Snapshot()
	return []string{
		fmt.Sprint(s.PacketsSent), fmt.Sprint(s.PacketsRecv),
		fmt.Sprint(s.Retransmits), fmt.Sprint(s.Timeouts),
		fmt.Sprint(s.Dropped), fmt.Sprint(s.MalformedPackets),
		fmt.Sprint(s.DuplicateData),
		fmt.Sprint(s.SessionsOpened), fmt.Sprint(s.SessionsClosed),
	}
}
