package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kapu/chess-arena/internal/obslog"
	"github.com/kapu/chess-arena/internal/session"
)

const (
	// tickInterval bounds worst-case timeout detection latency.
	tickInterval = 100 * time.Millisecond
	// ticksPerUpdate decouples the ~1 Hz notification cadence from
	// timing precision.
	ticksPerUpdate = 10
	// minDeduction is the floor charged per move regardless of the
	// reported round trip, so no move is ever free.
	minDeduction = 100 * time.Millisecond
)

// TickFunc receives the ~1 Hz clock updates for a running game.
type TickFunc func(gameID int64, state session.ClockState)

// TimeoutFunc is invoked exactly once when a side runs out of time.
type TimeoutFunc func(gameID int64, flagged session.Color, final session.ClockState)

type entry struct {
	gameID    int64
	cfg       session.ClockConfig
	white     time.Duration // settled remaining, as of turnStart
	black     time.Duration
	active    session.Color
	turnStart time.Time
	tickCount int
	ticker    clockwork.Ticker
	stopCh    chan struct{}
	onTick    TickFunc
	onTimeout TimeoutFunc
}

func (en *entry) remaining(c session.Color) time.Duration {
	if c == session.White {
		return en.white
	}
	return en.black
}

func (en *entry) setRemaining(c session.Color, d time.Duration) {
	if c == session.White {
		en.white = d
	} else {
		en.black = d
	}
}

// state projects elapsed time since turnStart onto the active color
// without mutating the settled values.
func (en *entry) state(now time.Time) session.ClockState {
	w, b := en.white, en.black
	elapsed := now.Sub(en.turnStart)
	if en.active == session.White {
		w -= elapsed
	} else {
		b -= elapsed
	}
	if w < 0 {
		w = 0
	}
	if b < 0 {
		b = 0
	}
	return session.ClockState{
		WhiteRemainingMs:  w.Milliseconds(),
		BlackRemainingMs:  b.Milliseconds(),
		ActiveColor:       en.active,
		LastUpdateEpochMs: en.turnStart.UnixMilli(),
	}
}

// Engine owns every running game clock. One ticker goroutine per clock;
// all clock state is guarded by the engine mutex and callbacks run
// outside it. Absence of a clock is an expected condition, never an
// error: Stop is idempotent and SwitchActive/Snapshot return nil.
type Engine struct {
	clock clockwork.Clock

	mu     sync.Mutex
	clocks map[int64]*entry
}

// New builds an engine on the given time source. Pass nil for the real
// clock.
func New(clk clockwork.Clock) *Engine {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Engine{clock: clk, clocks: make(map[int64]*entry)}
}

// Start installs a clock for the game. No-op if one already runs; a
// destroyed clock is never recreated by callers because terminal
// transitions are absorbing.
func (e *Engine) Start(gameID int64, cfg session.ClockConfig, starting session.Color, onTick TickFunc, onTimeout TimeoutFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.clocks[gameID]; exists {
		return
	}
	initial := time.Duration(cfg.InitialTimeSeconds) * time.Second
	en := &entry{
		gameID:    gameID,
		cfg:       cfg,
		white:     initial,
		black:     initial,
		active:    starting,
		turnStart: e.clock.Now(),
		ticker:    e.clock.NewTicker(tickInterval),
		stopCh:    make(chan struct{}),
		onTick:    onTick,
		onTimeout: onTimeout,
	}
	e.clocks[gameID] = en
	go e.run(en)
	obslog.L().Debug("clock_start",
		zap.Int64("game_id", gameID),
		zap.Int("initial_sec", cfg.InitialTimeSeconds),
		zap.Int("increment_sec", cfg.IncrementSeconds),
	)
}

// Stop cancels the clock. Idempotent; no-op when absent.
func (e *Engine) Stop(gameID int64) {
	e.mu.Lock()
	en, ok := e.clocks[gameID]
	if ok {
		delete(e.clocks, gameID)
		close(en.stopCh)
	}
	e.mu.Unlock()
	if ok {
		obslog.L().Debug("clock_stop", zap.Int64("game_id", gameID))
	}
}

// SwitchActive settles the mover's elapsed time with lag compensation,
// adds the increment and hands the clock to the opponent. Returns nil
// when no clock runs for the game; callers treat that as "ignore".
// This call never declares timeout: an already-flagged mover is caught
// by the next regular tick.
func (e *Engine) SwitchActive(gameID int64, moving session.Color, roundTripMs int64) *session.ClockState {
	e.mu.Lock()
	defer e.mu.Unlock()
	en, ok := e.clocks[gameID]
	if !ok {
		return nil
	}

	now := e.clock.Now()
	elapsed := now.Sub(en.turnStart)
	if roundTripMs < 0 {
		roundTripMs = 0
	}
	lag := time.Duration(roundTripMs/2) * time.Millisecond
	deduction := elapsed - lag
	if deduction < minDeduction {
		deduction = minDeduction
	}

	rem := en.remaining(moving) - deduction
	if rem < 0 {
		rem = 0
	}
	rem += time.Duration(en.cfg.IncrementSeconds) * time.Second
	en.setRemaining(moving, rem)

	en.active = moving.Opponent()
	en.turnStart = now
	en.tickCount = 0

	st := en.state(now)
	return &st
}

// Snapshot returns a freshly projected reading, or nil when no clock
// runs for the game. Safe at any frequency.
func (e *Engine) Snapshot(gameID int64) *session.ClockState {
	e.mu.Lock()
	defer e.mu.Unlock()
	en, ok := e.clocks[gameID]
	if !ok {
		return nil
	}
	st := en.state(e.clock.Now())
	return &st
}

// Running reports whether a clock exists for the game.
func (e *Engine) Running(gameID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.clocks[gameID]
	return ok
}

func (e *Engine) run(en *entry) {
	defer en.ticker.Stop()
	for {
		select {
		case <-en.stopCh:
			return
		case <-en.ticker.Chan():
			if !e.tick(en) {
				return
			}
		}
	}
}

// tick reports whether the clock is still running.
func (e *Engine) tick(en *entry) bool {
	e.mu.Lock()
	if e.clocks[en.gameID] != en {
		// Stopped or replaced between the tick firing and now.
		e.mu.Unlock()
		return false
	}

	now := e.clock.Now()
	if en.remaining(en.active)-now.Sub(en.turnStart) <= 0 {
		en.setRemaining(en.active, 0)
		flagged := en.active
		final := en.state(now)
		delete(e.clocks, en.gameID)
		cb := en.onTimeout
		e.mu.Unlock()

		obslog.L().Info("clock_flag",
			zap.Int64("game_id", en.gameID),
			zap.String("color", string(flagged)),
		)
		if cb != nil {
			cb(en.gameID, flagged, final)
		}
		return false
	}

	en.tickCount++
	var cb TickFunc
	var st session.ClockState
	if en.tickCount%ticksPerUpdate == 0 {
		cb = en.onTick
		st = en.state(now)
	}
	e.mu.Unlock()

	if cb != nil {
		cb(en.gameID, st)
	}
	return true
}
