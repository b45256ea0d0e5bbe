package connectors

import "time"

// ConnectionState describes a link lifecycle state.
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateScanning     ConnectionState = "scanning"
)

type Link string

const (
	LinkWireless Link = "wireless"
	LinkRadio    Link = "radio"
)

// LinkStatus is a bus event snapshot of one link.
type LinkStatus struct {
	Link      Link            `json:"link"`
	State     ConnectionState `json:"state"`
	Target    string          `json:"target,omitempty"`
	Err       string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// RawFrame carries relay diagnostics. In is wireless to radio.
type RawFrame struct {
	Hex string `json:"hex"`
	Len int    `json:"len"`
}

// AdapterState is published on every supervisory state change.
type AdapterState struct {
	State     string    `json:"state"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CommandEvent records one dispatched extended hardware command.
type CommandEvent struct {
	Opcode    string    `json:"opcode"`
	Skipped   string    `json:"skipped,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
