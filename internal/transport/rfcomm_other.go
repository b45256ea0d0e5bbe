//go:build !linux

package transport

import (
	"context"
	"errors"
	"log/slog"

	"github.com/skobkin/bblink/internal/kiss"
)

const DefaultRFCOMMChannel = 1

var errRFCOMMUnsupported = errors.New("rfcomm sockets are only supported on linux")

type RFCOMMRadio struct{}

func NewRFCOMMRadio(_ uint8, _ *slog.Logger) *RFCOMMRadio {
	return &RFCOMMRadio{}
}

func (t *RFCOMMRadio) Name() string                                { return ConnectorRFCOMM }
func (t *RFCOMMRadio) Connected() bool                             { return false }
func (t *RFCOMMRadio) Connect(context.Context, kiss.Address) error { return errRFCOMMUnsupported }
func (t *RFCOMMRadio) Disconnect() error                           { return nil }
func (t *RFCOMMRadio) Read([]byte) (int, error)                    { return 0, errRFCOMMUnsupported }
func (t *RFCOMMRadio) Write([]byte) (int, error)                   { return 0, errRFCOMMUnsupported }
func (t *RFCOMMRadio) Drain() error                                { return errRFCOMMUnsupported }
