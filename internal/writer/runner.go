// internal/writer/runner.go
package writer

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tamzrod/hws-coordinator/internal/status"
)

// Run delivers snapshots from in until the channel is closed or ctx is done.
// One goroutine per subscription. Errors are logged, never retried.
func Run(ctx context.Context, in <-chan status.Snapshot, w Writer, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-in:
			if !ok {
				return
			}
			if err := w.Write(snap); err != nil {
				log.Error().Err(err).Str("device_id", snap.DeviceID).Uint64("cycle", snap.Cycle).Msg("writer error")
			}
		}
	}
}
