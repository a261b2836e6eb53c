// internal/config/config.go
package config

type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	History  HistoryConfig  `yaml:"history"`

	StatusMemory StatusMemoryConfig `yaml:"status_memory"`

	Devices []DeviceConfig `yaml:"devices"`
}

// ---- AMBIENT ----

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | console
	Output string `yaml:"output"` // stdout | stderr
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// ---- SINKS ----

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // tcp://host:1883
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

type InfluxDBConfig struct {
	Enabled        bool   `yaml:"enabled"`
	URL            string `yaml:"url"`
	Token          string `yaml:"token"`
	Org            string `yaml:"org"`
	Bucket         string `yaml:"bucket"`
	BatchSize      uint   `yaml:"batch_size"`
	FlushIntervalS int    `yaml:"flush_interval_s"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// StatusMemoryConfig mirrors each device's status block into an external
// Modbus memory at the device's status_slot.
type StatusMemoryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"` // host:port
	UnitID    uint8  `yaml:"unit_id"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	ID        string          `yaml:"id"`
	Name      string          `yaml:"name"`
	Source    SourceConfig    `yaml:"source"`
	Poll      PollConfig      `yaml:"poll"`
	Registers RegistersConfig `yaml:"registers"`
	Limits    LimitsConfig    `yaml:"limits"`

	// nil means true
	AdditionalSensors *bool `yaml:"additional_sensors"`

	// Base address of the status block. nil means not mirrored.
	StatusSlot *uint16 `yaml:"status_slot"`
}

// SensorsEnabled reports whether optional sensors are polled.
func (d DeviceConfig) SensorsEnabled() bool {
	return d.AdditionalSensors == nil || *d.AdditionalSensors
}

type SourceConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	UnitID    uint8  `yaml:"unit_id"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type PollConfig struct {
	ScanIntervalS int `yaml:"scan_interval_s"`
}

// ---- REGISTERS ----

type RegistersConfig struct {
	Power       *RegisterConfig           `yaml:"power"`
	Mode        *ModeRegisterConfig       `yaml:"mode"`
	CurrentTemp *RegisterConfig           `yaml:"current_temp"`
	TargetTemp  *RegisterConfig           `yaml:"target_temp"`
	Sensors     map[string]RegisterConfig `yaml:"sensors"`
}

// RegisterConfig is one holding register. Unset fields take defaults.
type RegisterConfig struct {
	Address *uint16  `yaml:"address"`
	Kind    string   `yaml:"kind"`
	Scale   *float64 `yaml:"scale"`
	Offset  *float64 `yaml:"offset"`
}

type ModeRegisterConfig struct {
	Address *uint16           `yaml:"address"`
	Modes   map[uint16]string `yaml:"modes"`
	Default string            `yaml:"default"`
}

// ---- LIMITS ----

type LimitsConfig struct {
	MinTemp *float64               `yaml:"min_temp"`
	MaxTemp *float64               `yaml:"max_temp"`
	Modes   map[string]RangeConfig `yaml:"modes"`
}

type RangeConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}
