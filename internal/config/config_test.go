package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAppConfigFillMissingDefaults(t *testing.T) {
	cfg := AppConfig{}
	cfg.FillMissingDefaults()

	if cfg.Radio.Connector != ConnectorRFCOMM {
		t.Fatalf("expected default connector %q, got %q", ConnectorRFCOMM, cfg.Radio.Connector)
	}
	if cfg.Radio.SerialBaud != DefaultSerialBaud {
		t.Fatalf("expected default serial baud %d, got %d", DefaultSerialBaud, cfg.Radio.SerialBaud)
	}
	if cfg.Radio.RFCOMMChannel != DefaultRFCOMMChannel {
		t.Fatalf("expected default rfcomm channel %d, got %d", DefaultRFCOMMChannel, cfg.Radio.RFCOMMChannel)
	}
	if cfg.Radio.ResponseTimeoutMS != DefaultResponseTimeoutMS {
		t.Fatalf("expected default response timeout, got %d", cfg.Radio.ResponseTimeoutMS)
	}
	if cfg.Wireless.MTU != DefaultMTU {
		t.Fatalf("expected default mtu %d, got %d", DefaultMTU, cfg.Wireless.MTU)
	}
	if cfg.Device.Name != DefaultDeviceName {
		t.Fatalf("expected default device name, got %q", cfg.Device.Name)
	}
	if cfg.Hardware.Indicator != IndicatorLog || cfg.Hardware.Button != ButtonNone {
		t.Fatalf("expected log indicator and no button, got %q and %q", cfg.Hardware.Indicator, cfg.Hardware.Button)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.Logging.Level)
	}
}

func TestFillMissingDefaultsNormalizesHardware(t *testing.T) {
	cfg := Default()
	cfg.Hardware.Indicator = "neon"
	cfg.Hardware.Button = "lever"
	cfg.FillMissingDefaults()

	if cfg.Hardware.Indicator != IndicatorLog {
		t.Fatalf("expected unknown indicator to fall back to log, got %q", cfg.Hardware.Indicator)
	}
	if cfg.Hardware.Button != ButtonNone {
		t.Fatalf("expected unknown button to fall back to none, got %q", cfg.Hardware.Button)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadKeepsDefaultsForOmittedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
  "radio": {
    "connector": "tcp",
    "host": "192.168.0.20"
  },
  "hardware": {
    "button": "gpio",
    "button_gpio_path": "/sys/class/gpio/gpio17"
  }
}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Radio.Connector != ConnectorTCP || cfg.Radio.Host != "192.168.0.20" {
		t.Fatalf("expected tcp radio, got %+v", cfg.Radio)
	}
	if cfg.Radio.Port != DefaultTCPPort {
		t.Fatalf("expected default tcp port, got %d", cfg.Radio.Port)
	}
	if !cfg.Hardware.TouchActiveLow {
		t.Fatalf("expected touch_active_low to default to true")
	}
	if cfg.Device.Board != 1 || cfg.Device.HardwareMajor != 3 {
		t.Fatalf("expected default device identity, got %+v", cfg.Device)
	}
}

func TestLoadPreservesExplicitFalse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{"hardware": {"touch_active_low": false}, "logging": {"log_to_file": true}}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Hardware.TouchActiveLow {
		t.Fatalf("expected touch_active_low=false to be preserved")
	}
	if !cfg.Logging.LogToFile {
		t.Fatalf("expected log_to_file=true to be preserved")
	}
}

func TestLoadRejectsInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Radio.Connector = ConnectorSerial
	cfg.Radio.SerialPort = "/dev/rfcomm0"
	cfg.Diag.Listen = "127.0.0.1:8073"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected temp file renamed away, got %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if loaded != cfg {
		t.Fatalf("expected %+v, got %+v", cfg, loaded)
	}

	cfg.Radio.SerialPort = ""
	if err := Save(path, cfg); err == nil {
		t.Fatalf("expected save to validate")
	}
}

func TestAppConfigValidate(t *testing.T) {
	valid := Default()

	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr bool
	}{
		{name: "default rfcomm", mutate: func(*AppConfig) {}},
		{name: "rfcomm channel out of range", mutate: func(c *AppConfig) { c.Radio.RFCOMMChannel = 31 }, wantErr: true},
		{
			name: "valid serial",
			mutate: func(c *AppConfig) {
				c.Radio.Connector = ConnectorSerial
				c.Radio.SerialPort = "/dev/ttyACM0"
			},
		},
		{
			name:    "serial without port",
			mutate:  func(c *AppConfig) { c.Radio.Connector = ConnectorSerial },
			wantErr: true,
		},
		{
			name: "serial with non-positive baud",
			mutate: func(c *AppConfig) {
				c.Radio.Connector = ConnectorSerial
				c.Radio.SerialPort = "/dev/ttyACM0"
				c.Radio.SerialBaud = 0
			},
			wantErr: true,
		},
		{
			name: "valid tcp",
			mutate: func(c *AppConfig) {
				c.Radio.Connector = ConnectorTCP
				c.Radio.Host = "radio.local"
			},
		},
		{
			name:    "tcp without host",
			mutate:  func(c *AppConfig) { c.Radio.Connector = ConnectorTCP },
			wantErr: true,
		},
		{
			name: "tcp port out of range",
			mutate: func(c *AppConfig) {
				c.Radio.Connector = ConnectorTCP
				c.Radio.Host = "radio.local"
				c.Radio.Port = 70000
			},
			wantErr: true,
		},
		{name: "unknown connector", mutate: func(c *AppConfig) { c.Radio.Connector = "usb" }, wantErr: true},
		{name: "tiny mtu", mutate: func(c *AppConfig) { c.Wireless.MTU = 20 }, wantErr: true},
		{name: "sysfs led without path", mutate: func(c *AppConfig) { c.Hardware.Indicator = IndicatorSysfs }, wantErr: true},
		{name: "gpio button without path", mutate: func(c *AppConfig) { c.Hardware.Button = ButtonGPIO }, wantErr: true},
	}

	for _, tc := range tests {
		cfg := valid
		tc.mutate(&cfg)
		err := cfg.Validate()
		if tc.wantErr && err == nil {
			t.Fatalf("%s: expected error, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: expected no error, got %v", tc.name, err)
		}
	}
}
