package app

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/skobkin/bblink/internal/bridge"
	"github.com/skobkin/bblink/internal/config"
	"github.com/skobkin/bblink/internal/transport"
)

// RadioLink is a bridge radio link that can name its connector for logs
// and status output.
type RadioLink interface {
	bridge.RadioLink
	Name() string
}

func NewRadioLink(cfg config.RadioConfig, logger *slog.Logger) (RadioLink, error) {
	switch cfg.Connector {
	case config.ConnectorRFCOMM:
		if cfg.RFCOMMChannel < 1 || cfg.RFCOMMChannel > 30 {
			return nil, fmt.Errorf("rfcomm channel out of range: %d", cfg.RFCOMMChannel)
		}
		return transport.NewRFCOMMRadio(uint8(cfg.RFCOMMChannel), logger), nil
	case config.ConnectorSerial:
		return transport.NewSerialRadio(cfg.SerialPort, cfg.SerialBaud, logger), nil
	case config.ConnectorTCP:
		return transport.NewTCPRadio(cfg.Host, cfg.Port, logger), nil
	default:
		return nil, fmt.Errorf("unknown connector: %q", cfg.Connector)
	}
}

// RadioTarget describes where the configured connector reaches the radio.
// RFCOMM targets are chosen by pairing, so only the adapter and channel
// are known up front.
func RadioTarget(cfg config.RadioConfig) string {
	switch cfg.Connector {
	case config.ConnectorRFCOMM:
		return strings.TrimSpace(cfg.AdapterID) + " ch " + strconv.Itoa(cfg.RFCOMMChannel)
	case config.ConnectorSerial:
		return strings.TrimSpace(cfg.SerialPort)
	case config.ConnectorTCP:
		host := strings.TrimSpace(cfg.Host)
		if host == "" {
			return ""
		}
		return host + ":" + strconv.Itoa(cfg.Port)
	default:
		return ""
	}
}
