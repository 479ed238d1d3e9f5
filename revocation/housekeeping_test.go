package revocation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type countingPurger struct {
	calls  atomic.Int32
	cutoff atomic.Int64
	err    error
}

func (p *countingPurger) Purge(_ context.Context, before time.Time) (int64, error) {
	p.calls.Add(1)
	p.cutoff.Store(before.Unix())
	return 3, p.err
}

func TestHousekeeperRunOnceUsesRetention(t *testing.T) {
	p := &countingPurger{}
	h := NewHousekeeper(p, nil, time.Hour, 24*time.Hour)
	now := time.Unix(1_700_000_000, 0)
	h.now = func() time.Time { return now }

	if got := h.RunOnce(context.Background()); got != 3 {
		t.Fatalf("expected 3 purged, got %d", got)
	}
	if want := now.Add(-24 * time.Hour).Unix(); p.cutoff.Load() != want {
		t.Fatalf("expected cutoff %d, got %d", want, p.cutoff.Load())
	}
}

func TestHousekeeperLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	p := &countingPurger{err: errors.New("disk full")}
	h := NewHousekeeper(p, zap.New(core), time.Hour, time.Hour)

	if got := h.RunOnce(context.Background()); got != 0 {
		t.Fatalf("expected 0 on failure, got %d", got)
	}
	if logs.FilterMessage("failed to purge revocation ledger").Len() != 1 {
		t.Fatalf("expected purge failure to be logged")
	}
}

func TestHousekeeperStartStop(t *testing.T) {
	p := &countingPurger{}
	h := NewHousekeeper(p, zap.NewNop(), 10*time.Millisecond, time.Hour)

	h.Start()
	deadline := time.Now().Add(2 * time.Second)
	for p.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	h.Stop()

	if p.calls.Load() < 2 {
		t.Fatalf("expected at least two purge passes, got %d", p.calls.Load())
	}

	after := p.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if p.calls.Load() != after {
		t.Fatalf("housekeeper kept running after Stop")
	}
}

func waitReturns(t *testing.T, name string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("%s did not return", name)
	}
}

func TestHousekeeperStopWithoutStart(t *testing.T) {
	p := &countingPurger{}
	h := NewHousekeeper(p, zap.NewNop(), 10*time.Millisecond, time.Hour)

	waitReturns(t, "Stop before Start", h.Stop)
	waitReturns(t, "second Stop", h.Stop)

	h.Start()
	time.Sleep(30 * time.Millisecond)
	if p.calls.Load() != 0 {
		t.Fatalf("Start after Stop must not run purges, got %d", p.calls.Load())
	}
}

func TestHousekeeperRepeatedStartStop(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := NewHousekeeper(&countingPurger{}, zap.New(core), time.Hour, time.Hour)

	h.Start()
	h.Start()
	waitReturns(t, "Stop", h.Stop)
	waitReturns(t, "second Stop", h.Stop)

	if n := logs.FilterMessage("revocation housekeeping started").Len(); n != 1 {
		t.Fatalf("expected one worker, got %d start logs", n)
	}
	if n := logs.FilterMessage("revocation housekeeping stopped").Len(); n != 1 {
		t.Fatalf("expected one stop log, got %d", n)
	}
}
