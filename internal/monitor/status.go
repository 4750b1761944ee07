package monitor

import "time"

// DisconnectInfo records the circumstances of a connection's end.
type DisconnectInfo struct {
	At     time.Time
	Status string
	Error  string
}

// ConnectionStatus is the payload the monitor reports through its
// [StatusSink] every time its connection state changes.
type ConnectionStatus struct {
	AccountID      string
	Connected      bool
	ConnID         string
	LastError      string
	LastConnectAt  time.Time
	LastDisconnect *DisconnectInfo
	Running        bool
	LastStopAt     time.Time
}

// StatusSink receives [ConnectionStatus] updates. It is write-only from the
// monitor's perspective: the monitor never reads state back from it.
type StatusSink interface {
	Update(status ConnectionStatus)
}

// NopSink discards every update. Useful as a default when a caller does not
// care about connection status.
type NopSink struct{}

// Update implements [StatusSink].
func (NopSink) Update(ConnectionStatus) {}
