// internal/config/normalize.go
package config

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// ------------------------------------------------------------
	// AMBIENT
	// ------------------------------------------------------------

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = DefaultMetricsListen
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.InfluxDB.BatchSize == 0 {
		cfg.InfluxDB.BatchSize = DefaultInfluxBatch
	}
	if cfg.InfluxDB.FlushIntervalS == 0 {
		cfg.InfluxDB.FlushIntervalS = DefaultInfluxFlushS
	}
	if cfg.History.Path == "" {
		cfg.History.Path = DefaultHistoryPath
	}
	if cfg.StatusMemory.UnitID == 0 {
		cfg.StatusMemory.UnitID = DefaultUnitID
	}
	if cfg.StatusMemory.TimeoutMs == 0 {
		cfg.StatusMemory.TimeoutMs = DefaultStatusTimeoutMs
	}

	// ------------------------------------------------------------
	// DEVICES
	// ------------------------------------------------------------

	for di := range cfg.Devices {
		normalizeDevice(&cfg.Devices[di])
	}
}

func normalizeDevice(d *DeviceConfig) {
	if d.Name == "" {
		d.Name = d.ID
	}
	if d.Source.Port == 0 {
		d.Source.Port = DefaultPort
	}
	if d.Source.UnitID == 0 {
		d.Source.UnitID = DefaultUnitID
	}
	if d.Source.TimeoutMs == 0 {
		d.Source.TimeoutMs = DefaultTimeoutMs
	}
	if d.Poll.ScanIntervalS == 0 {
		d.Poll.ScanIntervalS = DefaultScanInterval
	}

	def := defaultRegisters()
	r := &d.Registers

	r.Power = mergeRegister(r.Power, *def.Power)
	r.CurrentTemp = mergeRegister(r.CurrentTemp, *def.CurrentTemp)
	r.TargetTemp = mergeRegister(r.TargetTemp, *def.TargetTemp)

	if r.Mode == nil {
		r.Mode = def.Mode
	} else {
		if r.Mode.Address == nil {
			r.Mode.Address = def.Mode.Address
		}
		if r.Mode.Modes == nil {
			r.Mode.Modes = def.Mode.Modes
		}
		if r.Mode.Default == "" {
			r.Mode.Default = def.Mode.Default
		}
	}

	// Optional sensors: disabled drops them all, absent means factory set,
	// listed entries fill unset fields from the factory entry of the same name.
	switch {
	case !d.SensorsEnabled():
		r.Sensors = nil
	case r.Sensors == nil:
		r.Sensors = defaultSensors()
	default:
		known := defaultSensors()
		for name, s := range r.Sensors {
			base, ok := known[name]
			if !ok {
				base = RegisterConfig{Kind: KindTemperature}
			}
			r.Sensors[name] = *mergeRegister(&s, base)
		}
	}

	// Limits
	if d.Limits.MinTemp == nil {
		d.Limits.MinTemp = ptr(DefaultMinTemp)
	}
	if d.Limits.MaxTemp == nil {
		d.Limits.MaxTemp = ptr(DefaultMaxTemp)
	}
	// Per-mode ranges are opt-in; unlisted modes use the global range.
	if d.Limits.Modes == nil {
		d.Limits.Modes = make(map[string]RangeConfig)
	}
}

// mergeRegister fills unset fields of r from def. Scale defaults to 1.
func mergeRegister(r *RegisterConfig, def RegisterConfig) *RegisterConfig {
	if r == nil {
		out := def
		r = &out
	}
	if r.Address == nil {
		r.Address = def.Address
	}
	if r.Kind == "" {
		r.Kind = def.Kind
	}
	if r.Scale == nil {
		r.Scale = def.Scale
	}
	if r.Scale == nil {
		r.Scale = ptr(1.0)
	}
	if r.Offset == nil {
		r.Offset = def.Offset
	}
	if r.Offset == nil {
		r.Offset = ptr(0.0)
	}
	return r
}
