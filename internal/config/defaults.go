// internal/config/defaults.go
package config

// Defaults for a heat pump with the factory register layout.
const (
	DefaultPort         = 502
	DefaultUnitID       = 1
	DefaultTimeoutMs    = 5000
	DefaultScanInterval = 60

	DefaultMetricsListen = ":9108"
	DefaultTopicPrefix   = "hws"
	DefaultHistoryPath   = "hws-history.db"
	DefaultInfluxBatch   = 100
	DefaultInfluxFlushS  = 10

	DefaultStatusTimeoutMs = 2000

	DefaultMinTemp = 40.0
	DefaultMaxTemp = 75.0

	ModeEco         = "eco"
	ModePerformance = "performance"
	ModeElectric    = "electric"
)

// RequiredModes must be present in every mode table.
var RequiredModes = []string{ModeEco, ModePerformance, ModeElectric}

// Register kinds as written in YAML.
const (
	KindRaw         = "raw_integer"
	KindBoolean     = "boolean"
	KindTemperature = "scaled_temperature"
)

func defaultRegister(addr uint16, scale, offset float64) RegisterConfig {
	return RegisterConfig{Address: ptr(addr), Kind: KindTemperature, Scale: ptr(scale), Offset: ptr(offset)}
}

// defaultRegisters is the factory layout.
func defaultRegisters() RegistersConfig {
	return RegistersConfig{
		Power: &RegisterConfig{Address: ptr(uint16(0)), Kind: KindBoolean},
		Mode: &ModeRegisterConfig{
			Address: ptr(uint16(1)),
			Modes:   map[uint16]string{1: ModeEco, 2: ModePerformance, 4: ModeElectric},
			Default: ModeEco,
		},
		CurrentTemp: ptr(defaultRegister(102, 0.5, -15)),
		TargetTemp:  ptr(defaultRegister(2, 1, 0)),
		Sensors:     defaultSensors(),
	}
}

// defaultSensors are read-only extras. Exhaust temperature is reported
// unscaled by the unit.
func defaultSensors() map[string]RegisterConfig {
	return map[string]RegisterConfig{
		"tank_top_temp":    defaultRegister(101, 0.5, -15),
		"tank_bottom_temp": defaultRegister(102, 0.5, -15),
		"condensor_temp":   defaultRegister(103, 0.5, -15),
		"outdoor_temp":     defaultRegister(104, 0.5, -15),
		"exhaust_temp":     {Address: ptr(uint16(105)), Kind: KindRaw, Scale: ptr(float64(1)), Offset: ptr(float64(0))},
		"suction_temp":     defaultRegister(106, 0.5, -15),
	}
}

func ptr[T any](v T) *T { return &v }
