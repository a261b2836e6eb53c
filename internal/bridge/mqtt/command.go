// internal/bridge/mqtt/command.go
package mqtt

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tamzrod/hws-coordinator/internal/registers"
)

// handleCommand routes one command message to the device entities.
// It blocks until the write has been applied and read back.
func (b *Bridge) handleCommand(ctx context.Context, topic string, payload []byte) error {
	id, field, ok := b.topics.ParseCommand(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}

	b.mu.RLock()
	set, ok := b.devices[id]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}

	value := strings.TrimSpace(string(payload))

	switch field {
	case registers.FieldPower:
		on, err := parseSwitch(value)
		if err != nil {
			return err
		}
		if on {
			return set.Power.TurnOn(ctx)
		}
		return set.Power.TurnOff(ctx)

	case registers.FieldMode:
		return set.Mode.Select(ctx, strings.ToLower(value))

	case registers.FieldOperationMode:
		return set.Heater.SetOperationMode(ctx, strings.ToLower(value))

	case registers.FieldTargetTemp:
		t, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: target %q", ErrInvalidPayload, value)
		}
		return set.Heater.SetTemperature(ctx, t)
	}

	return fmt.Errorf("%w: %s", ErrUnknownCommand, field)
}

func parseSwitch(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: switch %q", ErrInvalidPayload, v)
}
