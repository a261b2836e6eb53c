// internal/coordinator/builder.go
package coordinator

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	cfg "github.com/tamzrod/hws-coordinator/internal/config"
	cmodbus "github.com/tamzrod/hws-coordinator/internal/coordinator/modbus"
	"github.com/tamzrod/hws-coordinator/internal/registers"
)

// Build constructs a Coordinator and its transport from a normalized device config.
// The connection is opened lazily by the first cycle.
func Build(d cfg.DeviceConfig, metrics Metrics, log zerolog.Logger) (*Coordinator, error) {
	m, err := BuildMap(d)
	if err != nil {
		return nil, fmt.Errorf("device %q: %w", d.ID, err)
	}

	client, err := cmodbus.New(cmodbus.Config{
		Endpoint: cmodbus.Endpoint(d.Source.Host, d.Source.Port),
		UnitID:   d.Source.UnitID,
		Timeout:  time.Duration(d.Source.TimeoutMs) * time.Millisecond,
	}, log.With().Str("device_id", d.ID).Logger())
	if err != nil {
		return nil, fmt.Errorf("device %q: %w", d.ID, err)
	}

	return New(
		Config{
			DeviceID:     d.ID,
			ScanInterval: time.Duration(d.Poll.ScanIntervalS) * time.Second,
			Map:          m,
			DefaultMode:  d.Registers.Mode.Default,
			Metrics:      metrics,
		},
		client,
		log,
	)
}

// BuildMap turns the register section into a register map.
// Read order: power, mode, current, target, then sensors by name.
func BuildMap(d cfg.DeviceConfig) (*registers.Map, error) {
	r := d.Registers
	if r.Power == nil || r.Mode == nil || r.CurrentTemp == nil || r.TargetTemp == nil {
		return nil, fmt.Errorf("%w: core registers missing (config not normalized)", registers.ErrConfiguration)
	}

	specs := make([]registers.Spec, 0, 4+len(r.Sensors))

	power, err := spec(registers.FieldPower, *r.Power, true)
	if err != nil {
		return nil, err
	}
	specs = append(specs, power)

	specs = append(specs, registers.Spec{
		Field:    registers.FieldMode,
		Address:  deref(r.Mode.Address),
		Kind:     registers.KindEnumeratedMode,
		Modes:    r.Mode.Modes,
		Fallback: r.Mode.Default,
		Writable: true,
	})

	current, err := spec(registers.FieldCurrentTemp, *r.CurrentTemp, false)
	if err != nil {
		return nil, err
	}
	specs = append(specs, current)

	target, err := spec(registers.FieldTargetTemp, *r.TargetTemp, true)
	if err != nil {
		return nil, err
	}
	specs = append(specs, target)

	if d.SensorsEnabled() {
		names := make([]string, 0, len(r.Sensors))
		for name := range r.Sensors {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			s, err := spec(name, r.Sensors[name], false)
			if err != nil {
				return nil, err
			}
			specs = append(specs, s)
		}
	}

	return registers.NewMap(specs...)
}

func spec(field string, rc cfg.RegisterConfig, writable bool) (registers.Spec, error) {
	if rc.Address == nil {
		return registers.Spec{}, fmt.Errorf("%w: field %q has no address", registers.ErrConfiguration, field)
	}

	kind := registers.KindScaledTemperature
	if rc.Kind != "" {
		k, err := registers.ParseKind(rc.Kind)
		if err != nil {
			return registers.Spec{}, err
		}
		kind = k
	}

	s := registers.Spec{
		Field:    field,
		Address:  *rc.Address,
		Kind:     kind,
		Scale:    1,
		Writable: writable,
	}
	if rc.Scale != nil {
		s.Scale = *rc.Scale
	}
	if rc.Offset != nil {
		s.Offset = *rc.Offset
	}
	return s, nil
}

func deref(p *uint16) uint16 {
	if p == nil {
		return 0
	}
	return *p
}
