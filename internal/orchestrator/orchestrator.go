package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/chess-arena/internal/archive"
	"github.com/kapu/chess-arena/internal/clock"
	"github.com/kapu/chess-arena/internal/invite"
	"github.com/kapu/chess-arena/internal/obslog"
	"github.com/kapu/chess-arena/internal/presence"
	"github.com/kapu/chess-arena/internal/room"
	"github.com/kapu/chess-arena/internal/rules"
	"github.com/kapu/chess-arena/internal/session"
	"github.com/kapu/chess-arena/pkg/gamedto"
)

var (
	ErrUnknownGame    = errors.New("unknown game")
	ErrNotSeated      = errors.New("not a player in this game")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrIllegalMove    = rules.ErrIllegalMove
	ErrGameFinished   = errors.New("game already finished")
	ErrGameNotActive  = errors.New("game not active")
	ErrGameStarted    = errors.New("game already started")
	ErrGameFull       = errors.New("game already has two players")
	ErrAlreadySeated  = errors.New("already seated in this game")
	ErrDrawNotOffered = errors.New("no draw offer pending")
	ErrNotCreator     = errors.New("only the creator may abort")
	ErrInviteInvalid  = errors.New("invite token invalid or expired")
	ErrTooManyGames   = errors.New("too many concurrent games")
)

// Reason maps an operation error to a stable machine-readable code for
// the wire. Unknown errors map to "internal".
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownGame):
		return "unknown_game"
	case errors.Is(err, ErrNotSeated):
		return "not_seated"
	case errors.Is(err, ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, ErrIllegalMove):
		return "illegal_move"
	case errors.Is(err, ErrGameFinished):
		return "game_finished"
	case errors.Is(err, ErrGameNotActive):
		return "game_not_active"
	case errors.Is(err, ErrGameStarted):
		return "game_started"
	case errors.Is(err, ErrGameFull):
		return "game_full"
	case errors.Is(err, ErrAlreadySeated):
		return "already_seated"
	case errors.Is(err, ErrDrawNotOffered):
		return "draw_not_offered"
	case errors.Is(err, ErrNotCreator):
		return "not_creator"
	case errors.Is(err, ErrInviteInvalid):
		return "invite_invalid"
	case errors.Is(err, ErrTooManyGames):
		return "too_many_games"
	}
	return "internal"
}

// Options tune game creation. Zero values fall back to blitz 5+0 with
// no concurrency cap.
type Options struct {
	DefaultClock session.ClockConfig
	MaxGames     int
}

// Orchestrator coordinates sessions, clocks, rooms and presence. It is
// the single writer of session state: every transition happens under
// the session mutex, and the clock engine is only ever touched after
// the session lock is held (or with no session lock at all).
type Orchestrator struct {
	store    *session.Store
	clocks   *clock.Engine
	rooms    *room.Router
	presence *presence.Registry
	invites  *invite.Store       // optional
	archive  *archive.Repository // optional
	opts     Options
}

func New(store *session.Store, clocks *clock.Engine, rooms *room.Router, pres *presence.Registry, inv *invite.Store, arch *archive.Repository, opts Options) *Orchestrator {
	if opts.DefaultClock.InitialTimeSeconds <= 0 {
		opts.DefaultClock = session.ClockConfig{InitialTimeSeconds: 300}
	}
	return &Orchestrator{
		store:    store,
		clocks:   clocks,
		rooms:    rooms,
		presence: pres,
		invites:  inv,
		archive:  arch,
		opts:     opts,
	}
}

// Connect registers a fresh transport connection.
func (o *Orchestrator) Connect(c room.Conn) {
	o.presence.Add(c.UserID(), c.ID())
	obslog.L().Info("conn_open",
		zap.String("conn_id", c.ID()),
		zap.String("user_id", c.UserID()),
	)
}

// Disconnect tears a connection down. For each room the connection was
// in, the opponent is told the player left only when this was the
// player's last connection in that room.
func (o *Orchestrator) Disconnect(c room.Conn) {
	type note struct {
		gameID int64
		userID string
	}
	var notes []note

	for _, gameID := range o.rooms.LeaveAll(c) {
		s := o.store.Get(gameID)
		if s == nil {
			continue
		}
		s.Lock()
		seated := s.Seat(c.UserID()) != ""
		active := s.Status == session.StatusActive
		s.Unlock()
		if seated && active && o.rooms.UserConnsInRoom(c.UserID(), gameID) == 0 {
			notes = append(notes, note{gameID: gameID, userID: c.UserID()})
		}
	}
	o.presence.Remove(c.UserID(), c.ID())

	for _, n := range notes {
		o.rooms.Broadcast(n.gameID, gamedto.EventOpponentDisconnected, gamedto.PresenceChange{
			GameID: n.gameID,
			UserID: n.userID,
		})
	}
	obslog.L().Info("conn_close",
		zap.String("conn_id", c.ID()),
		zap.String("user_id", c.UserID()),
	)
}

// Create opens a new waiting game with the caller seated as white and
// returns it. The creator's connection is joined to the room and sent
// the initial snapshot with the invite token.
func (o *Orchestrator) Create(ctx context.Context, c room.Conn, cfg session.ClockConfig) (*session.Session, error) {
	if o.opts.MaxGames > 0 && o.store.ActiveCount() >= o.opts.MaxGames {
		return nil, ErrTooManyGames
	}
	cfg = o.sanitizeClock(cfg)

	token, err := o.allocateToken(ctx)
	if err != nil {
		obslog.L().Warn("invite_allocate_failed", zap.Error(err))
		return nil, err
	}

	s := o.store.Create(c.UserID(), cfg, token)
	if o.invites != nil {
		// The token was reserved before the id existed; point it at
		// the real game now.
		if err := o.invites.Bind(ctx, token, s.ID); err != nil {
			obslog.L().Warn("invite_bind_failed", zap.Error(err))
		}
	}

	o.rooms.Join(c, s.ID)

	s.Lock()
	snap := o.snapshotLocked(s, true)
	s.Unlock()
	c.Send(gamedto.EventGameState, snap)

	obslog.L().Info("game_create",
		zap.Int64("game_id", s.ID),
		zap.String("white_id", c.UserID()),
		zap.Int("initial_sec", cfg.InitialTimeSeconds),
		zap.Int("increment_sec", cfg.IncrementSeconds),
	)
	return s, nil
}

// Join seats the caller as black via an invite token and starts the
// game. The joiner's connection enters the room; everyone gets
// opponentJoined followed by the active snapshot.
func (o *Orchestrator) Join(ctx context.Context, c room.Conn, token string) (*session.Session, error) {
	s := o.resolveToken(ctx, token)
	if s == nil {
		return nil, ErrInviteInvalid
	}

	s.Lock()
	if s.Seat(c.UserID()) != "" {
		s.Unlock()
		return nil, ErrAlreadySeated
	}
	if s.Status != session.StatusWaiting {
		s.Unlock()
		if s.Status.Terminal() {
			return nil, ErrGameFinished
		}
		return nil, ErrGameFull
	}
	s.BlackID = c.UserID()
	s.Status = session.StatusActive
	s.UpdatedAt = time.Now()
	cfg := s.Clock
	gameID := s.ID
	usedToken := s.InviteToken
	s.InviteToken = ""
	s.Unlock()

	o.store.ReleaseToken(usedToken)
	if o.invites != nil {
		_ = o.invites.Release(ctx, usedToken)
	}

	o.clocks.Start(gameID, cfg, session.White, o.onTick, o.onTimeout)
	o.rooms.Join(c, gameID)

	o.rooms.Broadcast(gameID, gamedto.EventOpponentJoined, gamedto.PresenceChange{
		GameID: gameID,
		UserID: c.UserID(),
	})
	s.Lock()
	snap := o.snapshotLocked(s, false)
	s.Unlock()
	o.rooms.Broadcast(gameID, gamedto.EventGameState, snap)

	obslog.L().Info("game_start",
		zap.Int64("game_id", gameID),
		zap.String("black_id", c.UserID()),
	)
	return s, nil
}

// Move validates and applies one move for the calling player.
func (o *Orchestrator) Move(c room.Conn, req gamedto.MoveRequest) error {
	s := o.store.Get(req.GameID)
	if s == nil {
		return ErrUnknownGame
	}

	s.Lock()
	seat := s.Seat(c.UserID())
	if seat == "" {
		s.Unlock()
		return ErrNotSeated
	}
	if s.Status.Terminal() {
		s.Unlock()
		return ErrGameFinished
	}
	if s.Status != session.StatusActive {
		s.Unlock()
		return ErrGameNotActive
	}
	if s.Turn != seat {
		s.Unlock()
		return ErrNotYourTurn
	}

	res, err := rules.Apply(s.MovesUCI, rules.Move{From: req.From, To: req.To, Promotion: req.Promotion})
	if err != nil {
		s.Unlock()
		return err
	}

	s.MovesUCI = append(s.MovesUCI, res.UCI)
	s.MovesSAN = append(s.MovesSAN, res.SAN)
	s.FEN = res.FEN
	s.Turn = res.Turn
	s.UpdatedAt = time.Now()

	// Any move answers a pending offer from the opponent with a decline.
	declined := s.DrawOffer != "" && s.DrawOffer != seat
	s.DrawOffer = ""

	if res.Terminal != nil {
		final := o.clocks.Snapshot(s.ID)
		o.clocks.Stop(s.ID)
		o.finishLocked(s, session.Result{Winner: res.Terminal.Winner, Reason: res.Terminal.Status}, final)
		made := o.moveMadeLocked(s, res, final)
		over := o.gameOverLocked(s)
		s.Unlock()

		if declined {
			o.rooms.Broadcast(req.GameID, gamedto.EventDrawDeclined, gamedto.DrawOffer{GameID: req.GameID, By: string(seat)})
		}
		o.rooms.Broadcast(req.GameID, gamedto.EventMoveMade, made)
		o.rooms.Broadcast(req.GameID, gamedto.EventGameOver, over)
		o.archiveAsync(s)
		return nil
	}

	cs := o.clocks.SwitchActive(s.ID, seat, req.RTTMs)
	made := o.moveMadeLocked(s, res, cs)
	s.Unlock()

	if declined {
		o.rooms.Broadcast(req.GameID, gamedto.EventDrawDeclined, gamedto.DrawOffer{GameID: req.GameID, By: string(seat)})
	}
	o.rooms.Broadcast(req.GameID, gamedto.EventMoveMade, made)
	return nil
}

// Resign ends an active game in favor of the opponent.
func (o *Orchestrator) Resign(c room.Conn, gameID int64) error {
	return o.terminate(c, gameID, func(seat session.Color) session.Result {
		return session.Result{Winner: seat.Opponent(), Reason: session.StatusResigned}
	})
}

// OfferDraw records a pending draw offer. Offering while the opponent's
// own offer is pending accepts it.
func (o *Orchestrator) OfferDraw(c room.Conn, gameID int64) error {
	s := o.store.Get(gameID)
	if s == nil {
		return ErrUnknownGame
	}

	s.Lock()
	seat := s.Seat(c.UserID())
	if seat == "" {
		s.Unlock()
		return ErrNotSeated
	}
	if s.Status.Terminal() {
		s.Unlock()
		return ErrGameFinished
	}
	if s.Status != session.StatusActive {
		s.Unlock()
		return ErrGameNotActive
	}
	if s.DrawOffer == seat {
		// Repeat offer, nothing new to announce.
		s.Unlock()
		return nil
	}
	if s.DrawOffer == seat.Opponent() {
		s.Unlock()
		return o.AcceptDraw(c, gameID)
	}
	s.DrawOffer = seat
	s.UpdatedAt = time.Now()
	s.Unlock()

	o.rooms.Broadcast(gameID, gamedto.EventDrawOffered, gamedto.DrawOffer{GameID: gameID, By: string(seat)})
	return nil
}

// AcceptDraw ends the game as a draw; requires a pending opponent offer.
func (o *Orchestrator) AcceptDraw(c room.Conn, gameID int64) error {
	s := o.store.Get(gameID)
	if s == nil {
		return ErrUnknownGame
	}

	s.Lock()
	seat := s.Seat(c.UserID())
	if seat == "" {
		s.Unlock()
		return ErrNotSeated
	}
	if s.Status.Terminal() {
		s.Unlock()
		return ErrGameFinished
	}
	if s.Status != session.StatusActive {
		s.Unlock()
		return ErrGameNotActive
	}
	if s.DrawOffer != seat.Opponent() {
		s.Unlock()
		return ErrDrawNotOffered
	}

	final := o.clocks.Snapshot(gameID)
	o.clocks.Stop(gameID)
	o.finishLocked(s, session.Result{Reason: session.StatusDraw}, final)
	over := o.gameOverLocked(s)
	s.Unlock()

	o.rooms.Broadcast(gameID, gamedto.EventGameOver, over)
	o.archiveAsync(s)
	return nil
}

// Abort cancels a game that never started. Creator only.
func (o *Orchestrator) Abort(ctx context.Context, c room.Conn, gameID int64) error {
	s := o.store.Get(gameID)
	if s == nil {
		return ErrUnknownGame
	}

	s.Lock()
	if s.Status.Terminal() {
		s.Unlock()
		return ErrGameFinished
	}
	if s.Status != session.StatusWaiting {
		s.Unlock()
		return ErrGameStarted
	}
	if s.WhiteID != c.UserID() {
		s.Unlock()
		return ErrNotCreator
	}
	usedToken := s.InviteToken
	s.InviteToken = ""
	o.finishLocked(s, session.Result{Reason: session.StatusAborted}, nil)
	over := o.gameOverLocked(s)
	s.Unlock()

	o.store.ReleaseToken(usedToken)
	if o.invites != nil {
		_ = o.invites.Release(ctx, usedToken)
	}
	o.rooms.Broadcast(gameID, gamedto.EventGameOver, over)
	return nil
}

// JoinRoom subscribes a connection to a game's event stream and replies
// with the full snapshot. A seated player coming back from zero
// connections announces opponentReconnected to the rest of the room.
func (o *Orchestrator) JoinRoom(c room.Conn, gameID int64) error {
	s := o.store.Get(gameID)
	if s == nil {
		return ErrUnknownGame
	}

	o.rooms.Join(c, gameID)

	s.Lock()
	seated := s.Seat(c.UserID()) != ""
	active := s.Status == session.StatusActive
	snap := o.snapshotLocked(s, s.Status == session.StatusWaiting && s.WhiteID == c.UserID())
	s.Unlock()

	c.Send(gamedto.EventGameState, snap)

	if seated && active && o.rooms.UserConnsInRoom(c.UserID(), gameID) == 1 {
		o.rooms.BroadcastExcept(gameID, c.ID(), gamedto.EventOpponentReconnected, gamedto.PresenceChange{
			GameID: gameID,
			UserID: c.UserID(),
		})
	}
	return nil
}

// LeaveRoom unsubscribes one connection. The opponent is notified only
// when this was the player's last connection in the room of an active
// game.
func (o *Orchestrator) LeaveRoom(c room.Conn, gameID int64) error {
	s := o.store.Get(gameID)
	if s == nil {
		return ErrUnknownGame
	}
	if !o.rooms.InRoom(c.ID(), gameID) {
		return nil
	}
	last := o.rooms.IsLastConnectionInRoom(c.UserID(), gameID, c.ID())
	o.rooms.Leave(c, gameID)

	s.Lock()
	seated := s.Seat(c.UserID()) != ""
	active := s.Status == session.StatusActive
	s.Unlock()

	if seated && active && last {
		o.rooms.Broadcast(gameID, gamedto.EventOpponentDisconnected, gamedto.PresenceChange{
			GameID: gameID,
			UserID: c.UserID(),
		})
	}
	return nil
}

func (o *Orchestrator) terminate(c room.Conn, gameID int64, resultFor func(seat session.Color) session.Result) error {
	s := o.store.Get(gameID)
	if s == nil {
		return ErrUnknownGame
	}

	s.Lock()
	seat := s.Seat(c.UserID())
	if seat == "" {
		s.Unlock()
		return ErrNotSeated
	}
	if s.Status.Terminal() {
		s.Unlock()
		return ErrGameFinished
	}
	if s.Status != session.StatusActive {
		s.Unlock()
		return ErrGameNotActive
	}

	final := o.clocks.Snapshot(gameID)
	o.clocks.Stop(gameID)
	o.finishLocked(s, resultFor(seat), final)
	over := o.gameOverLocked(s)
	s.Unlock()

	o.rooms.Broadcast(gameID, gamedto.EventGameOver, over)
	o.archiveAsync(s)
	return nil
}

// onTimeout runs on the clock goroutine after the engine released its
// own lock. A terminal status set by a racing action wins; the stale
// flag is dropped.
func (o *Orchestrator) onTimeout(gameID int64, flagged session.Color, final session.ClockState) {
	s := o.store.Get(gameID)
	if s == nil {
		return
	}

	s.Lock()
	if s.Status != session.StatusActive {
		s.Unlock()
		return
	}
	o.finishLocked(s, session.Result{Winner: flagged.Opponent(), Reason: session.StatusTimeout}, &final)
	over := o.gameOverLocked(s)
	s.Unlock()

	o.rooms.Broadcast(gameID, gamedto.EventGameOver, over)
	o.archiveAsync(s)
}

// onTick fans the periodic reading out without touching session state.
func (o *Orchestrator) onTick(gameID int64, state session.ClockState) {
	o.rooms.Broadcast(gameID, gamedto.EventClockUpdate, gamedto.ClockUpdate{
		GameID: gameID,
		Clock:  clockDTO(state),
	})
}

// finishLocked applies a terminal transition. Caller holds the session
// lock and has already stopped the clock.
func (o *Orchestrator) finishLocked(s *session.Session, result session.Result, final *session.ClockState) {
	s.Status = result.Reason
	s.Result = &result
	s.FinalClock = final
	s.DrawOffer = ""
	s.UpdatedAt = time.Now()

	obslog.L().Info("game_over",
		zap.Int64("game_id", s.ID),
		zap.String("status", string(s.Status)),
		zap.String("winner", string(result.Winner)),
		zap.Int("moves", len(s.MovesUCI)),
	)
}

func (o *Orchestrator) archiveAsync(s *session.Session) {
	if o.archive == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.Lock()
		defer s.Unlock()
		if err := o.archive.SaveResult(ctx, s); err != nil {
			obslog.L().Warn("archive_save_failed",
				zap.Int64("game_id", s.ID),
				zap.Error(err),
			)
		}
	}()
}

func (o *Orchestrator) sanitizeClock(cfg session.ClockConfig) session.ClockConfig {
	if cfg.InitialTimeSeconds <= 0 {
		cfg = o.opts.DefaultClock
	}
	if cfg.InitialTimeSeconds < 10 {
		cfg.InitialTimeSeconds = 10
	}
	if cfg.InitialTimeSeconds > 24*3600 {
		cfg.InitialTimeSeconds = 24 * 3600
	}
	if cfg.IncrementSeconds < 0 {
		cfg.IncrementSeconds = 0
	}
	if cfg.IncrementSeconds > 60 {
		cfg.IncrementSeconds = 60
	}
	return cfg
}

func (o *Orchestrator) allocateToken(ctx context.Context) (string, error) {
	if o.invites != nil {
		return o.invites.Allocate(ctx, 0)
	}
	return invite.TokenGen()
}

func (o *Orchestrator) resolveToken(ctx context.Context, token string) *session.Session {
	if s := o.store.ByToken(token); s != nil {
		return s
	}
	if o.invites != nil {
		if id, ok, err := o.invites.Resolve(ctx, token); err == nil && ok {
			return o.store.Get(id)
		}
	}
	return nil
}

// snapshotLocked builds the wire snapshot; caller holds the session
// lock. includeToken exposes the invite link to the creator only.
func (o *Orchestrator) snapshotLocked(s *session.Session, includeToken bool) gamedto.GameState {
	snap := gamedto.GameState{
		GameID:   s.ID,
		Status:   string(s.Status),
		WhiteID:  s.WhiteID,
		BlackID:  s.BlackID,
		FEN:      s.FEN,
		MovesSAN: append([]string(nil), s.MovesSAN...),
		Turn:     string(s.Turn),
	}
	if s.DrawOffer != "" {
		snap.DrawOffer = string(s.DrawOffer)
	}
	if includeToken {
		snap.InviteToken = s.InviteToken
	}
	if s.Result != nil {
		snap.Result = &gamedto.Result{Winner: string(s.Result.Winner), Reason: string(s.Result.Reason)}
		snap.PGN = archive.BuildPGN(s)
	} else {
		snap.PGN = archive.MoveText(s.MovesSAN)
	}
	if s.FinalClock != nil {
		cs := clockDTO(*s.FinalClock)
		snap.Clock = &cs
	} else if cs := o.clocks.Snapshot(s.ID); cs != nil {
		dto := clockDTO(*cs)
		snap.Clock = &dto
	}
	return snap
}

func (o *Orchestrator) moveMadeLocked(s *session.Session, res *rules.Result, cs *session.ClockState) gamedto.MoveMade {
	made := gamedto.MoveMade{
		GameID: s.ID,
		UCI:    res.UCI,
		SAN:    res.SAN,
		FEN:    res.FEN,
		PGN:    archive.MoveText(s.MovesSAN),
		Status: string(s.Status),
		Turn:   string(res.Turn),
	}
	if cs != nil {
		dto := clockDTO(*cs)
		made.Clock = &dto
	}
	return made
}

func (o *Orchestrator) gameOverLocked(s *session.Session) gamedto.GameOver {
	over := gamedto.GameOver{
		GameID: s.ID,
		Status: string(s.Status),
	}
	if s.Result != nil {
		over.Result = &gamedto.Result{Winner: string(s.Result.Winner), Reason: string(s.Result.Reason)}
	}
	if s.FinalClock != nil {
		dto := clockDTO(*s.FinalClock)
		over.Clock = &dto
	}
	return over
}

func clockDTO(cs session.ClockState) gamedto.ClockState {
	return gamedto.ClockState{
		WhiteRemainingMs:  cs.WhiteRemainingMs,
		BlackRemainingMs:  cs.BlackRemainingMs,
		ActiveColor:       string(cs.ActiveColor),
		LastUpdateEpochMs: cs.LastUpdateEpochMs,
	}
}
