package transport

import (
	"errors"
	"time"

	"github.com/skobkin/bblink/internal/kiss"
)

// Radio connector types.
const (
	ConnectorRFCOMM = "rfcomm"
	ConnectorSerial = "serial"
	ConnectorTCP    = "tcp"
)

// DefaultPollTimeout bounds a single radio read. Reads that time out return
// zero bytes and no error.
const DefaultPollTimeout = 20 * time.Millisecond

var errNotConnected = errors.New("radio link is not connected")

// ClassicDevice is a Bluetooth Classic device seen during discovery.
type ClassicDevice struct {
	Address kiss.Address
	Name    string
	Class   uint32
}
