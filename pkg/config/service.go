package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/NotCoffee418/pulse_bridge/pkg/bridge"
	"github.com/NotCoffee418/pulse_bridge/pkg/pathing"
)

var ActiveBridgeAPIConfig *BridgeAPIConfig

var (
	ErrMissingHost = errors.New("host is required")
	ErrInvalidPort = errors.New("port must be between 1 and 65535")
)

func DefaultBridgeAPIConfig() *BridgeAPIConfig {
	return &BridgeAPIConfig{
		Host:                "tibber-host",
		NodeNumber:          1,
		Mode:                int(bridge.ModeUnknown),
		UsePolling:          false,
		ScanIntervalSeconds: 60,
		ListenAddress:       "0.0.0.0",
		ListenPort:          9039,
		SerialDevice:        "/dev/ttyUSB0",
		Baudrate:            9600,
		DatabasePath:        pathing.GetReadingsDbPath(),
		MQTT: MQTTConfig{
			Broker:      "localhost",
			Port:        1883,
			ClientID:    "pulse-bridge",
			TopicPrefix: "pulse",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Datadog: DatadogConfig{
			AgentHost:   "localhost",
			AgentPort:   8126,
			ServiceName: "pulse-bridge",
			Environment: "production",
		},
	}
}

// LoadBridgeAPIConfig reads the config at path, or the default location when
// path is empty. A missing file is created with defaults.
func LoadBridgeAPIConfig(path string) error {
	if path == "" {
		path = pathing.GetBridgeAPIConfigPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultBridgeAPIConfig()
		if err := writeConfig(path, cfg); err != nil {
			return err
		}
		ActiveBridgeAPIConfig = cfg
		return nil
	}

	// Defaults fill whatever keys the file leaves out
	cfg := DefaultBridgeAPIConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	ActiveBridgeAPIConfig = cfg
	return nil
}

func writeConfig(path string, cfg *BridgeAPIConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	cfgFile, err := os.Create(path)
	if err != nil {
		return err
	}
	defer cfgFile.Close()
	return toml.NewEncoder(cfgFile).Encode(cfg)
}

func (c *BridgeAPIConfig) Validate() error {
	var errs []error
	if c.Host == "" {
		errs = append(errs, ErrMissingHost)
	}
	if c.NodeNumber < 0 {
		errs = append(errs, fmt.Errorf("node_number must not be negative, got %d", c.NodeNumber))
	}
	if !bridge.ValidMode(c.Mode) {
		errs = append(errs, fmt.Errorf("mode %d is not a known communication mode", c.Mode))
	}
	if c.UsePolling && c.ScanIntervalSeconds < 1 {
		errs = append(errs, fmt.Errorf("scan_interval_seconds must be at least 1"))
	}
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		errs = append(errs, fmt.Errorf("listen_port: %w", ErrInvalidPort))
	}
	if c.MQTT.Enabled && (c.MQTT.Port < 1 || c.MQTT.Port > 65535) {
		errs = append(errs, fmt.Errorf("mqtt.port: %w", ErrInvalidPort))
	}
	if c.Datadog.Enabled && (c.Datadog.AgentPort < 1 || c.Datadog.AgentPort > 65535) {
		errs = append(errs, fmt.Errorf("datadog.agent_port: %w", ErrInvalidPort))
	}
	return errors.Join(errs...)
}

func (c *BridgeAPIConfig) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSeconds) * time.Second
}

func (c *BridgeAPIConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenAddress, c.ListenPort)
}

// BridgeOptions maps the file settings onto the bridge client options.
func (c *BridgeAPIConfig) BridgeOptions() bridge.Options {
	return bridge.Options{
		Host:              c.Host,
		Password:          c.Password,
		NodeNumber:        c.NodeNumber,
		Mode:              bridge.CommunicationMode(c.Mode),
		IgnoreParseErrors: c.IgnoreParseErrors,
	}
}
