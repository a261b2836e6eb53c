// internal/config/validate.go
package config

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tamzrod/hws-coordinator/internal/registers"
	"github.com/tamzrod/hws-coordinator/internal/status"
)

// reservedNames may not be used as sensor names: they are core register
// fields or snapshot document keys.
var reservedNames = map[string]struct{}{
	registers.FieldPower:         {},
	registers.FieldMode:          {},
	registers.FieldCurrentTemp:   {},
	registers.FieldTargetTemp:    {},
	registers.FieldOperationMode: {},
	status.KeyDeviceID:           {},
	status.KeyAt:                 {},
	status.KeyCycle:              {},
	status.KeyAvailable:          {},
	status.KeyOperation:          {},
	status.KeyHealth:             {},
	status.KeyLastErrorCode:      {},
	status.KeyLastError:          {},
}

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}

	if err := validateAmbient(cfg); err != nil {
		return err
	}

	if len(cfg.Devices) == 0 {
		return fmt.Errorf("config: at least one device required")
	}

	seen := make(map[string]struct{}, len(cfg.Devices))
	for _, d := range cfg.Devices {
		if d.ID == "" {
			return fmt.Errorf("config: device id required")
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("config: duplicate device id %q", d.ID)
		}
		seen[d.ID] = struct{}{}

		if err := validateDevice(d); err != nil {
			return fmt.Errorf("device %q: %w", d.ID, err)
		}
	}

	return validateStatusSlots(cfg)
}

// validateStatusSlots rejects status blocks that overlap in the status memory.
func validateStatusSlots(cfg *Config) error {
	type span struct {
		device     string
		start, end uint32
	}

	var spans []span
	for _, d := range cfg.Devices {
		if d.StatusSlot == nil {
			continue
		}
		if !cfg.StatusMemory.Enabled {
			return fmt.Errorf("device %q: status_slot set but status_memory disabled", d.ID)
		}

		start := uint32(*d.StatusSlot)
		end := start + uint32(status.SlotsPerDevice) - 1
		if end > 0xFFFF {
			return fmt.Errorf("device %q: status_slot %d exceeds address space", d.ID, start)
		}

		// overlap check (inclusive)
		for _, s := range spans {
			if !(end < s.start || start > s.end) {
				return fmt.Errorf(
					"status memory overlap: device=%s range=%d-%d overlaps with device=%s range=%d-%d",
					d.ID,
					start,
					end,
					s.device,
					s.start,
					s.end,
				)
			}
		}

		spans = append(spans, span{device: d.ID, start: start, end: end})
	}
	return nil
}

func validateAmbient(cfg *Config) error {
	if cfg.Logging.Level != "" {
		if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
			return fmt.Errorf("logging: invalid level %q", cfg.Logging.Level)
		}
	}
	switch cfg.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging: format must be json or console, got %q", cfg.Logging.Format)
	}
	switch cfg.Logging.Output {
	case "", "stdout", "stderr":
	default:
		return fmt.Errorf("logging: output must be stdout or stderr, got %q", cfg.Logging.Output)
	}

	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt: broker required when enabled")
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt: qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS)
		}
	}

	if cfg.InfluxDB.Enabled {
		if cfg.InfluxDB.URL == "" || cfg.InfluxDB.Org == "" || cfg.InfluxDB.Bucket == "" {
			return fmt.Errorf("influxdb: url, org and bucket required when enabled")
		}
		if cfg.InfluxDB.FlushIntervalS < 0 {
			return fmt.Errorf("influxdb: flush_interval_s must be >= 0")
		}
	}

	if cfg.StatusMemory.Enabled {
		if cfg.StatusMemory.Endpoint == "" {
			return fmt.Errorf("status_memory: endpoint required when enabled")
		}
		if cfg.StatusMemory.TimeoutMs < 0 {
			return fmt.Errorf("status_memory: timeout_ms must be >= 0")
		}
	}

	return nil
}

func validateDevice(d DeviceConfig) error {
	// ---- source ----
	if d.Source.Host == "" {
		return fmt.Errorf("source.host required")
	}
	if d.Source.Port < 0 || d.Source.Port > 65535 {
		return fmt.Errorf("source.port %d out of range", d.Source.Port)
	}
	if d.Source.TimeoutMs < 0 {
		return fmt.Errorf("source.timeout_ms must be >= 0")
	}
	if d.Poll.ScanIntervalS < 0 {
		return fmt.Errorf("poll.scan_interval_s must be >= 0")
	}

	// ---- core registers ----
	r := d.Registers
	if r.Power != nil {
		if err := validateRegister("power", *r.Power, false); err != nil {
			return err
		}
		if r.Power.Kind != "" {
			if k, _ := registers.ParseKind(r.Power.Kind); k != registers.KindBoolean {
				return fmt.Errorf("registers.power: kind must be %s", KindBoolean)
			}
		}
	}
	if r.CurrentTemp != nil {
		if err := validateRegister("current_temp", *r.CurrentTemp, false); err != nil {
			return err
		}
	}
	if r.TargetTemp != nil {
		if err := validateRegister("target_temp", *r.TargetTemp, false); err != nil {
			return err
		}
	}

	modes := defaultRegisters().Mode.Modes
	if r.Mode != nil {
		if err := validateModes(*r.Mode); err != nil {
			return err
		}
		if r.Mode.Modes != nil {
			modes = r.Mode.Modes
		}
	}

	// ---- sensors ----
	known := defaultSensors()
	for name, s := range r.Sensors {
		if name == "" {
			return fmt.Errorf("registers.sensors: empty sensor name")
		}
		if _, reserved := reservedNames[name]; reserved {
			return fmt.Errorf("registers.sensors: name %q is reserved", name)
		}
		_, hasDefault := known[name]
		if err := validateRegister("sensors."+name, s, !hasDefault); err != nil {
			return err
		}
	}

	// ---- limits ----
	return validateLimits(d.Limits, modes)
}

func validateRegister(name string, r RegisterConfig, needAddress bool) error {
	if needAddress && r.Address == nil {
		return fmt.Errorf("registers.%s: address required", name)
	}
	if r.Scale != nil && *r.Scale == 0 {
		return fmt.Errorf("registers.%s: scale must not be zero", name)
	}
	if r.Kind != "" {
		k, err := registers.ParseKind(r.Kind)
		if err != nil {
			return fmt.Errorf("registers.%s: %w", name, err)
		}
		if k == registers.KindEnumeratedMode {
			return fmt.Errorf("registers.%s: kind %s is reserved for the mode register", name, r.Kind)
		}
	}
	return nil
}

func validateModes(m ModeRegisterConfig) error {
	if m.Modes != nil {
		if len(m.Modes) == 0 {
			return fmt.Errorf("registers.mode: mode table is empty")
		}

		names := make(map[string]uint16, len(m.Modes))
		for raw, name := range m.Modes {
			if name == "" {
				return fmt.Errorf("registers.mode: empty name for raw value %d", raw)
			}
			if name == status.OperationOff {
				return fmt.Errorf("registers.mode: %q is reserved", name)
			}
			if prev, dup := names[name]; dup {
				return fmt.Errorf("registers.mode: %q mapped by raw values %d and %d", name, prev, raw)
			}
			names[name] = raw
		}

		for _, req := range RequiredModes {
			if _, ok := names[req]; !ok {
				return fmt.Errorf("registers.mode: mode %q missing from table", req)
			}
		}

		if m.Default != "" {
			if _, ok := names[m.Default]; !ok {
				return fmt.Errorf("registers.mode: default %q not in mode table", m.Default)
			}
		}
		return nil
	}

	if m.Default != "" {
		for _, name := range defaultRegisters().Mode.Modes {
			if name == m.Default {
				return nil
			}
		}
		return fmt.Errorf("registers.mode: default %q not in mode table", m.Default)
	}
	return nil
}

func validateLimits(l LimitsConfig, modes map[uint16]string) error {
	lo, hi := DefaultMinTemp, DefaultMaxTemp
	if l.MinTemp != nil {
		lo = *l.MinTemp
	}
	if l.MaxTemp != nil {
		hi = *l.MaxTemp
	}
	if lo >= hi {
		return fmt.Errorf("limits: min_temp %.1f must be below max_temp %.1f", lo, hi)
	}

	names := make(map[string]struct{}, len(modes))
	for _, n := range modes {
		names[n] = struct{}{}
	}

	for mode, r := range l.Modes {
		if _, ok := names[mode]; !ok {
			return fmt.Errorf("limits.modes: unknown mode %q", mode)
		}
		if r.Min > r.Max {
			return fmt.Errorf("limits.modes.%s: min %.1f above max %.1f", mode, r.Min, r.Max)
		}
	}

	return nil
}
