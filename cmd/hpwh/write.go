// cmd/hpwh/write.go
package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tamzrod/hws-coordinator/internal/config"
	"github.com/tamzrod/hws-coordinator/internal/coordinator"
	"github.com/tamzrod/hws-coordinator/internal/logging"
	"github.com/tamzrod/hws-coordinator/internal/registers"
)

var writeOpts struct {
	config string
	device string
}

var writeCmd = &cobra.Command{
	Use:   "write <field> <value>",
	Short: "Write one field of a configured device and print the read-back",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(writeOpts.config)
		if err != nil {
			return err
		}

		d, err := pickDevice(cfg, writeOpts.device)
		if err != nil {
			return err
		}

		log, err := logging.New(cfg.Logging)
		if err != nil {
			return err
		}

		c, err := coordinator.Build(d, nil, log)
		if err != nil {
			return err
		}
		defer c.Shutdown()

		field := args[0]
		value, err := parseFieldValue(c.Map(), field, args[1])
		if err != nil {
			return err
		}

		if _, err := c.SubmitWrite(cmd.Context(), field, value); err != nil {
			return err
		}

		snap := c.Snapshot()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ok: device=%s operation=%s\n", snap.DeviceID, snap.Operation)
		for _, f := range snap.Fields() {
			v, _ := snap.Value(f)
			fmt.Fprintf(out, "  %s = %v\n", f, v)
		}
		return nil
	},
}

func init() {
	writeCmd.Flags().StringVarP(&writeOpts.config, "config", "c", "config.yaml", "configuration file")
	writeCmd.Flags().StringVar(&writeOpts.device, "device", "", "device id (default: the only device)")
}

func pickDevice(cfg *config.Config, id string) (config.DeviceConfig, error) {
	if id == "" {
		if len(cfg.Devices) != 1 {
			return config.DeviceConfig{}, fmt.Errorf("--device required with %d devices configured", len(cfg.Devices))
		}
		return cfg.Devices[0], nil
	}
	for _, d := range cfg.Devices {
		if d.ID == id {
			return d, nil
		}
	}
	return config.DeviceConfig{}, fmt.Errorf("unknown device %q", id)
}

// parseFieldValue turns a command line argument into the value type the
// field's codec accepts.
func parseFieldValue(m *registers.Map, field, arg string) (any, error) {
	if field == registers.FieldOperationMode {
		return strings.ToLower(arg), nil
	}

	spec, ok := m.Lookup(field)
	if !ok {
		return nil, fmt.Errorf("%w: %s", registers.ErrUnknownField, field)
	}

	switch spec.Kind {
	case registers.KindBoolean:
		b, err := strconv.ParseBool(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %s expects true or false", registers.ErrInvalidValue, field)
		}
		return b, nil
	case registers.KindEnumeratedMode:
		return strings.ToLower(arg), nil
	}

	f, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s expects a number", registers.ErrInvalidValue, field)
	}
	return f, nil
}
