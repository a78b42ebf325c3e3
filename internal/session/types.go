package session

import (
	"sync"
	"time"
)

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Status represents a game lifecycle state.
type Status string

const (
	StatusWaiting   Status = "WAITING"
	StatusActive    Status = "ACTIVE"
	StatusCheckmate Status = "CHECKMATE"
	StatusStalemate Status = "STALEMATE"
	StatusResigned  Status = "RESIGNED"
	StatusDraw      Status = "DRAW"
	StatusTimeout   Status = "TIMEOUT"
	StatusAborted   Status = "ABORTED"
)

// Terminal reports whether the status is an absorbing end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCheckmate, StatusStalemate, StatusResigned, StatusDraw, StatusTimeout, StatusAborted:
		return true
	}
	return false
}

// ClockConfig is the time control a game was created with.
type ClockConfig struct {
	InitialTimeSeconds int `json:"initial_time_seconds"`
	IncrementSeconds   int `json:"increment_seconds"`
}

// ClockState is a point-in-time reading of a game clock. Values are
// projected to the instant of the read; both remaining fields are >= 0.
type ClockState struct {
	WhiteRemainingMs  int64 `json:"white_remaining_ms"`
	BlackRemainingMs  int64 `json:"black_remaining_ms"`
	ActiveColor       Color `json:"active_color"`
	LastUpdateEpochMs int64 `json:"last_update_epoch_ms"`
}

// Result records how a finished game ended. Winner is empty for draws,
// stalemate and aborts.
type Result struct {
	Winner Color  `json:"winner,omitempty"`
	Reason Status `json:"reason"`
}

// Session is the authoritative in-memory state of one game.
// All mutations for a game are serialized through its mutex; the
// orchestrator is the only writer.
type Session struct {
	mu sync.Mutex

	ID          int64       `json:"id"`
	Status      Status      `json:"status"`
	WhiteID     string      `json:"white_id"`
	BlackID     string      `json:"black_id,omitempty"`
	FEN         string      `json:"fen"`
	MovesUCI    []string    `json:"moves_uci"`
	MovesSAN    []string    `json:"moves_san"`
	Turn        Color       `json:"turn"`
	Clock       ClockConfig `json:"clock"`
	DrawOffer   Color       `json:"draw_offer,omitempty"`
	Result      *Result     `json:"result,omitempty"`
	FinalClock  *ClockState `json:"final_clock,omitempty"`
	InviteToken string      `json:"invite_token,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// Seat returns the color the user occupies, or "" if not seated.
func (s *Session) Seat(userID string) Color {
	if userID != "" && s.WhiteID == userID {
		return White
	}
	if userID != "" && s.BlackID == userID {
		return Black
	}
	return ""
}
