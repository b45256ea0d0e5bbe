package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConnectorType identifies which transport reaches the radio.
type ConnectorType string

// IndicatorType selects the status light backend.
type IndicatorType string

// ButtonType selects the touch button backend.
type ButtonType string

const (
	ConnectorRFCOMM ConnectorType = "rfcomm"
	ConnectorSerial ConnectorType = "serial"
	ConnectorTCP    ConnectorType = "tcp"

	IndicatorNone  IndicatorType = "none"
	IndicatorLog   IndicatorType = "log"
	IndicatorSysfs IndicatorType = "sysfs"

	ButtonNone ButtonType = "none"
	ButtonGPIO ButtonType = "gpio"

	DefaultDeviceName        = "B.B. Link"
	DefaultMTU               = 512
	DefaultRFCOMMChannel     = 1
	DefaultSerialBaud        = 9600
	DefaultTCPPort           = 2000
	DefaultResponseTimeoutMS = 1000
	DefaultReconnectSeconds  = 15
	DefaultRadioAdapter      = "hci0"
	DefaultSystemdUnit       = "bblink.service"
)

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `json:"level"`
	LogToFile bool   `json:"log_to_file"`
}

// DeviceConfig describes the board for the identity record and advertising.
type DeviceConfig struct {
	Name          string `json:"name"`
	Board         uint8  `json:"board"`
	HardwareMajor uint8  `json:"hardware_major"`
	HardwareMinor uint8  `json:"hardware_minor"`
	// SystemdUnit is restarted after a factory reset. Empty reboots the host.
	SystemdUnit string `json:"systemd_unit"`
}

// WirelessConfig is the BLE side facing the phone or computer.
type WirelessConfig struct {
	AdapterID string `json:"adapter_id"`
	MTU       int    `json:"mtu"`
}

// RadioConfig contains connector-specific radio link parameters.
type RadioConfig struct {
	Connector         ConnectorType `json:"connector"`
	AdapterID         string        `json:"adapter_id"`
	RFCOMMChannel     int           `json:"rfcomm_channel"`
	SerialPort        string        `json:"serial_port"`
	SerialBaud        int           `json:"serial_baud"`
	Host              string        `json:"host"`
	Port              int           `json:"port"`
	ResponseTimeoutMS int           `json:"response_timeout_ms"`
	ReconnectSeconds  int           `json:"reconnect_seconds"`
}

// HardwareConfig points at the board peripherals. Empty paths mean the
// peripheral is absent.
type HardwareConfig struct {
	Indicator       IndicatorType `json:"indicator"`
	LEDPath         string        `json:"led_path"`
	Button          ButtonType    `json:"button"`
	ButtonGPIOPath  string        `json:"button_gpio_path"`
	TouchActiveLow  bool          `json:"touch_active_low"`
	PowerSupplyPath string        `json:"power_supply_path"`
}

// DiagConfig enables the HTTP diagnostics API when Listen is set.
type DiagConfig struct {
	Listen string `json:"listen"`
}

// AppConfig is the root persisted application configuration.
type AppConfig struct {
	Device   DeviceConfig   `json:"device"`
	Wireless WirelessConfig `json:"wireless"`
	Radio    RadioConfig    `json:"radio"`
	Hardware HardwareConfig `json:"hardware"`
	Diag     DiagConfig     `json:"diag"`
	Logging  LoggingConfig  `json:"logging"`
}

func Default() AppConfig {
	return AppConfig{
		Device: DeviceConfig{
			Name:          DefaultDeviceName,
			Board:         1,
			HardwareMajor: 3,
			HardwareMinor: 0,
			SystemdUnit:   DefaultSystemdUnit,
		},
		Wireless: WirelessConfig{
			AdapterID: "",
			MTU:       DefaultMTU,
		},
		Radio: RadioConfig{
			Connector:         ConnectorRFCOMM,
			AdapterID:         DefaultRadioAdapter,
			RFCOMMChannel:     DefaultRFCOMMChannel,
			SerialPort:        "",
			SerialBaud:        DefaultSerialBaud,
			Host:              "",
			Port:              DefaultTCPPort,
			ResponseTimeoutMS: DefaultResponseTimeoutMS,
			ReconnectSeconds:  DefaultReconnectSeconds,
		},
		Hardware: HardwareConfig{
			Indicator:      IndicatorLog,
			Button:         ButtonNone,
			TouchActiveLow: true,
		},
		Diag: DiagConfig{
			Listen: "",
		},
		Logging: LoggingConfig{
			Level:     "info",
			LogToFile: false,
		},
	}
}

func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path comes from the -config flag or the user config dir.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	if strings.TrimSpace(c.Device.Name) == "" {
		c.Device.Name = DefaultDeviceName
	}
	if c.Wireless.MTU <= 0 {
		c.Wireless.MTU = DefaultMTU
	}
	if c.Radio.Connector == "" {
		c.Radio.Connector = ConnectorRFCOMM
	}
	if c.Radio.AdapterID == "" {
		c.Radio.AdapterID = DefaultRadioAdapter
	}
	if c.Radio.RFCOMMChannel <= 0 {
		c.Radio.RFCOMMChannel = DefaultRFCOMMChannel
	}
	if c.Radio.SerialBaud <= 0 {
		c.Radio.SerialBaud = DefaultSerialBaud
	}
	if c.Radio.Port <= 0 {
		c.Radio.Port = DefaultTCPPort
	}
	if c.Radio.ResponseTimeoutMS <= 0 {
		c.Radio.ResponseTimeoutMS = DefaultResponseTimeoutMS
	}
	if c.Radio.ReconnectSeconds <= 0 {
		c.Radio.ReconnectSeconds = DefaultReconnectSeconds
	}
	c.Hardware.Indicator = normalizeIndicator(c.Hardware.Indicator)
	c.Hardware.Button = normalizeButton(c.Hardware.Button)
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func normalizeIndicator(v IndicatorType) IndicatorType {
	switch v {
	case IndicatorNone, IndicatorSysfs:
		return v
	default:
		return IndicatorLog
	}
}

func normalizeButton(v ButtonType) ButtonType {
	if v == ButtonGPIO {
		return ButtonGPIO
	}
	return ButtonNone
}

func (c AppConfig) Validate() error {
	switch c.Radio.Connector {
	case ConnectorRFCOMM:
		if c.Radio.RFCOMMChannel < 1 || c.Radio.RFCOMMChannel > 30 {
			return fmt.Errorf("rfcomm channel must be 1-30, got %d", c.Radio.RFCOMMChannel)
		}
	case ConnectorSerial:
		if strings.TrimSpace(c.Radio.SerialPort) == "" {
			return errors.New("serial port is required")
		}
		if c.Radio.SerialBaud <= 0 {
			return errors.New("serial baud must be positive")
		}
	case ConnectorTCP:
		if strings.TrimSpace(c.Radio.Host) == "" {
			return errors.New("tcp host is required")
		}
		if c.Radio.Port <= 0 || c.Radio.Port > 65535 {
			return fmt.Errorf("tcp port out of range: %d", c.Radio.Port)
		}
	default:
		return fmt.Errorf("unknown connector: %s", c.Radio.Connector)
	}

	if c.Wireless.MTU != 0 && c.Wireless.MTU < 23 {
		return fmt.Errorf("mtu must be at least 23, got %d", c.Wireless.MTU)
	}
	if c.Hardware.Indicator == IndicatorSysfs && strings.TrimSpace(c.Hardware.LEDPath) == "" {
		return errors.New("led path is required for the sysfs indicator")
	}
	if c.Hardware.Button == ButtonGPIO && strings.TrimSpace(c.Hardware.ButtonGPIOPath) == "" {
		return errors.New("button gpio path is required for the gpio button")
	}

	return nil
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}
