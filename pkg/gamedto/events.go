package gamedto

// Outbound event types, room-scoped unless noted.
const (
	EventGameState            = "gameState"
	EventMoveMade             = "moveMade"
	EventGameOver             = "gameOver"
	EventOpponentJoined       = "opponentJoined"
	EventOpponentDisconnected = "opponentDisconnected"
	EventOpponentReconnected  = "opponentReconnected"
	EventDrawOffered          = "drawOffered"
	EventDrawDeclined         = "drawDeclined"
	EventClockUpdate          = "clockUpdate"
	// EventError is sent only to the originating connection.
	EventError = "error"
)

// ClockState mirrors the engine snapshot on the wire.
type ClockState struct {
	WhiteRemainingMs  int64  `json:"white_remaining_ms"`
	BlackRemainingMs  int64  `json:"black_remaining_ms"`
	ActiveColor       string `json:"active_color"`
	LastUpdateEpochMs int64  `json:"last_update_epoch_ms"`
}

// Result describes how a finished game ended.
type Result struct {
	Winner string `json:"winner,omitempty"`
	Reason string `json:"reason"`
}

// GameState is the full snapshot sent on room join and on seating.
type GameState struct {
	GameID      int64       `json:"game_id"`
	Status      string      `json:"status"`
	WhiteID     string      `json:"white_id"`
	BlackID     string      `json:"black_id,omitempty"`
	FEN         string      `json:"fen"`
	MovesSAN    []string    `json:"moves_san"`
	PGN         string      `json:"pgn,omitempty"`
	Turn        string      `json:"turn"`
	DrawOffer   string      `json:"draw_offer,omitempty"`
	Result      *Result     `json:"result,omitempty"`
	Clock       *ClockState `json:"clock,omitempty"`
	InviteToken string      `json:"invite_token,omitempty"`
}

// MoveMade announces one applied move.
type MoveMade struct {
	GameID int64       `json:"game_id"`
	UCI    string      `json:"uci"`
	SAN    string      `json:"san"`
	FEN    string      `json:"fen"`
	PGN    string      `json:"pgn,omitempty"`
	Status string      `json:"status"`
	Turn   string      `json:"turn"`
	Clock  *ClockState `json:"clock,omitempty"`
}

// GameOver announces a terminal transition with the frozen clock.
type GameOver struct {
	GameID int64       `json:"game_id"`
	Status string      `json:"status"`
	Result *Result     `json:"result,omitempty"`
	Clock  *ClockState `json:"clock,omitempty"`
}

// PresenceChange carries opponent joined/disconnected/reconnected.
type PresenceChange struct {
	GameID int64  `json:"game_id"`
	UserID string `json:"user_id"`
}

// DrawOffer carries drawOffered/drawDeclined.
type DrawOffer struct {
	GameID int64  `json:"game_id"`
	By     string `json:"by"`
}

// ClockUpdate is the periodic ~1 Hz clock broadcast.
type ClockUpdate struct {
	GameID int64      `json:"game_id"`
	Clock  ClockState `json:"clock"`
}

// Error is a per-event rejection, local to the acting connection.
type Error struct {
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}
