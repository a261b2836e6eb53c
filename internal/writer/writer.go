// internal/writer/writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/hws-coordinator/internal/status"
)

type fanout struct {
	sinks []Sink
}

// New returns a Writer delivering every snapshot to all sinks in order.
// A failing sink does not stop delivery to the others.
func New(sinks ...Sink) Writer {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s.Writer != nil {
			out = append(out, s)
		}
	}
	return &fanout{sinks: out}
}

func (f *fanout) Write(s status.Snapshot) error {
	var errs []string

	for _, sink := range f.sinks {
		if err := sink.Writer.Write(s); err != nil {
			errs = append(errs, fmt.Sprintf(
				"writer: sink=%s device=%s cycle=%d err=%v",
				sink.Name, s.DeviceID, s.Cycle, err,
			))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, " | "))
	}

	return nil
}
