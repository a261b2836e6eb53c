// cmd/hpwh/run.go
package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	mqttbridge "github.com/tamzrod/hws-coordinator/internal/bridge/mqtt"
	"github.com/tamzrod/hws-coordinator/internal/config"
	"github.com/tamzrod/hws-coordinator/internal/coordinator"
	"github.com/tamzrod/hws-coordinator/internal/entity"
	"github.com/tamzrod/hws-coordinator/internal/logging"
	"github.com/tamzrod/hws-coordinator/internal/metrics"
	"github.com/tamzrod/hws-coordinator/internal/writer"
)

var runConfig string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll every configured device and feed all enabled sinks",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(runConfig)
		if err != nil {
			return err
		}

		log, err := logging.New(cfg.Logging)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return run(ctx, cfg, log)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runConfig, "config", "c", "config.yaml", "configuration file")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// --------------------
	// Sinks
	// --------------------

	var (
		extra []writer.Sink
		cm    coordinator.Metrics
		prom  *metrics.Metrics
	)

	if cfg.Metrics.Enabled {
		prom = metrics.New()
		cm = prom
		extra = append(extra, writer.Sink{Name: "metrics", Writer: prom})

		go func() {
			if err := prom.Serve(ctx, cfg.Metrics.Listen, logging.Component(log, "metrics")); err != nil {
				log.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
	}

	var bridge *mqttbridge.Bridge
	if cfg.MQTT.Enabled {
		b, err := mqttbridge.Connect(cfg.MQTT, logging.Component(log, "mqtt"))
		if err != nil {
			return err
		}
		bridge = b
		extra = append(extra,
			writer.Sink{Name: "mqtt", Writer: bridge},
			writer.Sink{Name: "mqtt-availability", Writer: writer.NewStatusWriter("mqtt", bridge)},
		)
	}

	out, closeSinks, err := writer.Build(*cfg, logging.Component(log, "writer"), extra...)
	if err != nil {
		if bridge != nil {
			_ = bridge.Close()
		}
		return err
	}

	// --------------------
	// Per-device pipelines
	// --------------------

	var (
		coords  []*coordinator.Coordinator
		writers sync.WaitGroup
	)

	shutdown := func() {
		for _, c := range coords {
			c.Shutdown()
		}
		// subscriptions are closed by Shutdown; writers flush the final snapshot
		writers.Wait()

		if bridge != nil {
			if err := bridge.Close(); err != nil {
				log.Error().Err(err).Msg("mqtt close")
			}
		}
		if err := closeSinks(); err != nil {
			log.Error().Err(err).Msg("sink close")
		}
	}

	for _, d := range cfg.Devices {
		c, err := coordinator.Build(d, cm, log)
		if err != nil {
			shutdown()
			return err
		}
		coords = append(coords, c)

		if bridge != nil {
			set := entity.NewSet(c, c.Map(), entity.LimitsFromConfig(d.Limits))
			if err := bridge.AddDevice(d.ID, set); err != nil {
				shutdown()
				return fmt.Errorf("device %q: %w", d.ID, err)
			}
		}

		sub, _ := c.Subscribe()
		writers.Add(1)
		go func() {
			defer writers.Done()
			writer.Run(context.Background(), sub, out, log)
		}()
	}

	var runners sync.WaitGroup
	for _, c := range coords {
		runners.Add(1)
		go func(c *coordinator.Coordinator) {
			defer runners.Done()
			if err := c.Run(ctx); err != nil {
				log.Error().Err(err).Str("device_id", c.DeviceID()).Msg("coordinator run")
			}
		}(c)
	}

	log.Info().Int("devices", len(coords)).Msg("hpwh running")

	<-ctx.Done()
	log.Info().Msg("shutting down")

	runners.Wait()
	shutdown()
	return nil
}
