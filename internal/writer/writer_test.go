// internal/writer/writer_test.go
package writer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tamzrod/hws-coordinator/internal/status"
)

// ---- fake sinks ----

type fakeWriter struct {
	got  []status.Snapshot
	fail error
}

func (f *fakeWriter) Write(s status.Snapshot) error {
	f.got = append(f.got, s)
	return f.fail
}

type fakeStatusWriter struct {
	got  []status.Snapshot
	fail error
}

func (f *fakeStatusWriter) WriteStatus(s status.Snapshot) error {
	if f.fail != nil {
		return f.fail
	}
	f.got = append(f.got, s)
	return nil
}

func snap(cycle uint64, available bool) status.Snapshot {
	s := status.Snapshot{DeviceID: "hws-1", Cycle: cycle, Available: available, Health: status.HealthOK}
	if !available {
		s.Health = status.HealthError
		s.LastErrorCode = 1
	}
	return s
}

// ---- fan-out ----

func TestWriter_FanOut(t *testing.T) {
	a, b := &fakeWriter{}, &fakeWriter{}
	w := New(Sink{Name: "a", Writer: a}, Sink{Name: "nil"}, Sink{Name: "b", Writer: b})

	if err := w.Write(snap(1, true)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("expected one delivery per sink, got a=%d b=%d", len(a.got), len(b.got))
	}
}

func TestWriter_ErrorsJoinedAndDeliveryContinues(t *testing.T) {
	a := &fakeWriter{fail: errors.New("disk full")}
	b := &fakeWriter{fail: errors.New("timeout")}
	c := &fakeWriter{}
	w := New(Sink{Name: "a", Writer: a}, Sink{Name: "b", Writer: b}, Sink{Name: "c", Writer: c})

	err := w.Write(snap(7, true))
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	msg := err.Error()
	if !strings.Contains(msg, "sink=a") || !strings.Contains(msg, "sink=b") || !strings.Contains(msg, " | ") {
		t.Fatalf("unexpected error text: %s", msg)
	}
	if len(c.got) != 1 {
		t.Fatalf("sink c not written after earlier failures")
	}
}

// ---- status change filter ----

func TestStatusWriter_OnlyOnChange(t *testing.T) {
	sw := &fakeStatusWriter{}
	w := NewStatusWriter("test", sw)

	for _, s := range []status.Snapshot{snap(1, true), snap(2, true), snap(3, false), snap(4, false), snap(5, true)} {
		if err := w.Write(s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if len(sw.got) != 3 {
		t.Fatalf("expected 3 status writes, got %d", len(sw.got))
	}
	if sw.got[1].Cycle != 3 || sw.got[2].Cycle != 5 {
		t.Fatalf("unexpected cycles: %d, %d", sw.got[1].Cycle, sw.got[2].Cycle)
	}
}

func TestStatusWriter_ReassertAfterFailure(t *testing.T) {
	sw := &fakeStatusWriter{}
	w := NewStatusWriter("test", sw)

	_ = w.Write(snap(1, true))

	sw.fail = errors.New("broker down")
	if err := w.Write(snap(2, false)); err == nil {
		t.Fatalf("expected error, got nil")
	}

	sw.fail = nil
	// unchanged relative to the failed one, but delivery state is unknown
	_ = w.Write(snap(3, false))
	_ = w.Write(snap(4, false))

	if len(sw.got) != 2 {
		t.Fatalf("expected 2 delivered, got %d", len(sw.got))
	}
	if sw.got[1].Cycle != 3 {
		t.Fatalf("expected re-assert with cycle 3, got %d", sw.got[1].Cycle)
	}
}

func TestStatusWriter_PerDevice(t *testing.T) {
	sw := &fakeStatusWriter{}
	w := NewStatusWriter("test", sw)

	a := snap(1, true)
	b := snap(1, true)
	b.DeviceID = "hws-2"

	_ = w.Write(a)
	_ = w.Write(b)

	if len(sw.got) != 2 {
		t.Fatalf("first snapshot of each device must be delivered, got %d", len(sw.got))
	}
}

// ---- runner ----

func TestRun_DrainsUntilClosed(t *testing.T) {
	in := make(chan status.Snapshot, 3)
	in <- snap(1, true)
	in <- snap(2, true)
	close(in)

	fw := &fakeWriter{fail: errors.New("logged only")}
	Run(context.Background(), in, fw, zerolog.Nop())

	if len(fw.got) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(fw.got))
	}
}

func TestRun_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	Run(ctx, make(chan status.Snapshot), &fakeWriter{}, zerolog.Nop())
}
