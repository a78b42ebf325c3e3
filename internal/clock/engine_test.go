package clock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kapu/chess-arena/internal/session"
)

func blitz() session.ClockConfig {
	return session.ClockConfig{InitialTimeSeconds: 60}
}

func TestStartIsIdempotent(t *testing.T) {
	fc := clockwork.NewFakeClock()
	e := New(fc)
	e.Start(1, blitz(), session.White, nil, nil)
	e.Start(1, blitz(), session.White, nil, nil)
	if !e.Running(1) {
		t.Fatal("clock not running after Start")
	}
	e.Stop(1)
	if e.Running(1) {
		t.Fatal("clock running after Stop")
	}
	e.Stop(1) // no panic
}

func TestSwitchActiveLagCompensation(t *testing.T) {
	fc := clockwork.NewFakeClock()
	e := New(fc)
	e.Start(1, blitz(), session.White, nil, nil)
	defer e.Stop(1)

	fc.Advance(2 * time.Second)
	st := e.SwitchActive(1, session.White, 400)
	if st == nil {
		t.Fatal("SwitchActive returned nil for a running clock")
	}
	// 2000ms elapsed minus 200ms credited lag.
	if st.WhiteRemainingMs != 58200 {
		t.Fatalf("white = %d, want 58200", st.WhiteRemainingMs)
	}
	if st.BlackRemainingMs != 60000 {
		t.Fatalf("black = %d, want 60000", st.BlackRemainingMs)
	}
	if st.ActiveColor != session.Black {
		t.Fatalf("active = %s, want black", st.ActiveColor)
	}
}

func TestSwitchActiveMinimumDeduction(t *testing.T) {
	fc := clockwork.NewFakeClock()
	e := New(fc)
	e.Start(1, blitz(), session.White, nil, nil)
	defer e.Stop(1)

	fc.Advance(50 * time.Millisecond)
	// Claimed round trip longer than the elapsed time; the floor
	// still charges 100ms.
	st := e.SwitchActive(1, session.White, 1000)
	if st.WhiteRemainingMs != 59900 {
		t.Fatalf("white = %d, want 59900", st.WhiteRemainingMs)
	}
}

func TestSwitchActiveAddsIncrement(t *testing.T) {
	fc := clockwork.NewFakeClock()
	e := New(fc)
	cfg := session.ClockConfig{InitialTimeSeconds: 60, IncrementSeconds: 2}
	e.Start(1, cfg, session.White, nil, nil)
	defer e.Stop(1)

	fc.Advance(100 * time.Millisecond)
	st := e.SwitchActive(1, session.White, 0)
	if st.WhiteRemainingMs != 61900 {
		t.Fatalf("white = %d, want 61900", st.WhiteRemainingMs)
	}
}

func TestSwitchActiveNegativeRTTClamped(t *testing.T) {
	fc := clockwork.NewFakeClock()
	e := New(fc)
	e.Start(1, blitz(), session.White, nil, nil)
	defer e.Stop(1)

	fc.Advance(500 * time.Millisecond)
	st := e.SwitchActive(1, session.White, -100)
	if st.WhiteRemainingMs != 59500 {
		t.Fatalf("white = %d, want 59500", st.WhiteRemainingMs)
	}
}

func TestSwitchActiveUnknownGame(t *testing.T) {
	e := New(clockwork.NewFakeClock())
	if st := e.SwitchActive(99, session.White, 0); st != nil {
		t.Fatalf("SwitchActive for unknown game = %+v, want nil", st)
	}
}

func TestSnapshotProjectsElapsed(t *testing.T) {
	fc := clockwork.NewFakeClock()
	e := New(fc)
	e.Start(1, blitz(), session.White, nil, nil)
	defer e.Stop(1)

	fc.Advance(1500 * time.Millisecond)
	st := e.Snapshot(1)
	if st == nil {
		t.Fatal("Snapshot returned nil for a running clock")
	}
	if st.WhiteRemainingMs != 58500 {
		t.Fatalf("white = %d, want 58500", st.WhiteRemainingMs)
	}
	if st.BlackRemainingMs != 60000 {
		t.Fatalf("black = %d, want 60000", st.BlackRemainingMs)
	}

	// Snapshot does not settle anything: a later read projects from
	// the same turn start.
	fc.Advance(500 * time.Millisecond)
	st2 := e.Snapshot(1)
	if st2.WhiteRemainingMs != 58000 {
		t.Fatalf("white = %d, want 58000", st2.WhiteRemainingMs)
	}
}

func TestSnapshotAfterStop(t *testing.T) {
	e := New(clockwork.NewFakeClock())
	e.Start(1, blitz(), session.White, nil, nil)
	e.Stop(1)
	if st := e.Snapshot(1); st != nil {
		t.Fatalf("Snapshot after Stop = %+v, want nil", st)
	}
}

func TestTimeoutFiresExactlyOnce(t *testing.T) {
	fc := clockwork.NewFakeClock()
	e := New(fc)

	var fired atomic.Int32
	flaggedCh := make(chan session.Color, 4)
	cfg := session.ClockConfig{InitialTimeSeconds: 1}
	e.Start(1, cfg, session.White, nil, func(gameID int64, flagged session.Color, final session.ClockState) {
		fired.Add(1)
		if final.WhiteRemainingMs != 0 {
			t.Errorf("final white = %d, want 0", final.WhiteRemainingMs)
		}
		flaggedCh <- flagged
	})

	fc.BlockUntil(1)
	fc.Advance(1200 * time.Millisecond)

	select {
	case flagged := <-flaggedCh:
		if flagged != session.White {
			t.Fatalf("flagged = %s, want white", flagged)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout callback never fired")
	}

	// The entry is gone; nothing further can fire.
	if e.Running(1) {
		t.Fatal("clock still running after flag")
	}
	fc.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if n := fired.Load(); n != 1 {
		t.Fatalf("timeout fired %d times, want 1", n)
	}
}

func TestPeriodicTickCallback(t *testing.T) {
	fc := clockwork.NewFakeClock()
	e := New(fc)

	var ticks atomic.Int32
	e.Start(1, blitz(), session.White, func(gameID int64, st session.ClockState) {
		ticks.Add(1)
	}, nil)
	defer e.Stop(1)

	fc.BlockUntil(1)
	for i := 0; i < 20; i++ {
		fc.Advance(tickInterval)
		// Let the ticker goroutine consume each tick before the next.
		time.Sleep(2 * time.Millisecond)
	}

	deadline := time.After(time.Second)
	for ticks.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("no periodic update after 20 ticks")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestSwitchActiveResetsTickCadence(t *testing.T) {
	fc := clockwork.NewFakeClock()
	e := New(fc)
	e.Start(1, blitz(), session.White, nil, nil)
	defer e.Stop(1)

	fc.Advance(300 * time.Millisecond)
	st := e.SwitchActive(1, session.White, 0)
	if st.ActiveColor != session.Black {
		t.Fatalf("active = %s, want black", st.ActiveColor)
	}

	// Black's think time starts from the switch, not from game start.
	fc.Advance(400 * time.Millisecond)
	st2 := e.SwitchActive(1, session.Black, 0)
	if st2.BlackRemainingMs != 59600 {
		t.Fatalf("black = %d, want 59600", st2.BlackRemainingMs)
	}
	if st2.ActiveColor != session.White {
		t.Fatalf("active = %s, want white", st2.ActiveColor)
	}
}
