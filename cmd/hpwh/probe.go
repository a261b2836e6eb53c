// cmd/hpwh/probe.go
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tamzrod/hws-coordinator/internal/config"
	cmodbus "github.com/tamzrod/hws-coordinator/internal/coordinator/modbus"
)

var probeOpts struct {
	host      string
	port      int
	unit      uint8
	register  uint16
	timeoutMs int
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Connect to a device and read one holding register",
	RunE: func(cmd *cobra.Command, _ []string) error {
		timeout := time.Duration(probeOpts.timeoutMs) * time.Millisecond

		cli, err := cmodbus.New(cmodbus.Config{
			Endpoint: cmodbus.Endpoint(probeOpts.host, probeOpts.port),
			UnitID:   probeOpts.unit,
			Timeout:  timeout,
		}, zerolog.Nop())
		if err != nil {
			return err
		}
		defer cli.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		if err := cli.Connect(ctx); err != nil {
			return err
		}

		regs, err := cli.ReadHoldingRegisters(probeOpts.register, 1)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "ok: %s unit=%d register=%d value=%d\n",
			cmodbus.Endpoint(probeOpts.host, probeOpts.port), probeOpts.unit, probeOpts.register, regs[0])
		return nil
	},
}

func init() {
	f := probeCmd.Flags()
	f.StringVar(&probeOpts.host, "host", "", "device host")
	f.IntVar(&probeOpts.port, "port", config.DefaultPort, "device port")
	f.Uint8Var(&probeOpts.unit, "unit", config.DefaultUnitID, "modbus unit id")
	f.Uint16Var(&probeOpts.register, "register", 0, "holding register to read (power)")
	f.IntVar(&probeOpts.timeoutMs, "timeout-ms", config.DefaultTimeoutMs, "connect and request timeout")
	_ = probeCmd.MarkFlagRequired("host")
}
