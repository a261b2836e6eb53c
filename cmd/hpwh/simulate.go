// cmd/hpwh/simulate.go
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tamzrod/hws-coordinator/internal/config"
	"github.com/tamzrod/hws-coordinator/internal/logging"
	"github.com/tamzrod/hws-coordinator/internal/sim"
)

var simOpts struct {
	listen string
	step   time.Duration
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Serve a simulated heat pump with the factory register layout",
	RunE: func(cmd *cobra.Command, _ []string) error {
		log, err := logging.New(config.LoggingConfig{Format: "console", Output: "stderr"})
		if err != nil {
			return err
		}

		dev := sim.New()
		if err := dev.Listen(simOpts.listen); err != nil {
			return err
		}
		defer dev.Close()

		log.Info().Str("listen", simOpts.listen).Msg("simulator listening")

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sig)

		ticker := time.NewTicker(simOpts.step)
		defer ticker.Stop()

		seen := 0
		for {
			select {
			case <-sig:
				log.Info().Msg("simulator stopped")
				return nil
			case <-cmd.Context().Done():
				return nil
			case <-ticker.C:
				dev.Step()

				writes := dev.Writes()
				for _, w := range writes[seen:] {
					log.Info().Uint16("address", w.Address).Uint16("value", w.Value).Msg("register written")
				}
				seen = len(writes)
			}
		}
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simOpts.listen, "listen", "127.0.0.1:1502", "listen address")
	simulateCmd.Flags().DurationVar(&simOpts.step, "step", 5*time.Second, "temperature step interval")
}
