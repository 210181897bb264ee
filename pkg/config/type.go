package config

type BridgeAPIConfig struct {
	// Bridge address and the password printed on its label.
	Host       string `toml:"host"`
	Password   string `toml:"password"`
	NodeNumber int    `toml:"node_number"`
	// -1 detects the mode from node_params.json on startup.
	Mode                int  `toml:"mode"`
	UsePolling          bool `toml:"use_polling"`
	ScanIntervalSeconds int  `toml:"scan_interval_seconds"`
	IgnoreParseErrors   bool `toml:"ignore_parse_errors"`

	ListenAddress string `toml:"listen_address"`
	ListenPort    int    `toml:"listen_port"`

	// Optional local reading head, used by the serial command.
	SerialDevice string `toml:"serial_device"`
	Baudrate     uint   `toml:"baudrate"`

	RecordReadings bool   `toml:"record_readings"`
	DatabasePath   string `toml:"database_path"`

	MQTT    MQTTConfig    `toml:"mqtt"`
	Logging LoggingConfig `toml:"logging"`
	Datadog DatadogConfig `toml:"datadog"`
}

type MQTTConfig struct {
	Enabled     bool   `toml:"enabled"`
	Broker      string `toml:"broker"`
	Port        int    `toml:"port"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	ClientID    string `toml:"client_id"`
	TopicPrefix string `toml:"topic_prefix"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // console or json
	File   string `toml:"file"`
}

type DatadogConfig struct {
	Enabled     bool   `toml:"enabled"`
	AgentHost   string `toml:"agent_host"`
	AgentPort   int    `toml:"agent_port"`
	ServiceName string `toml:"service_name"`
	Environment string `toml:"environment"`
}
