package gamedto

import "encoding/json"

// Inbound action types.
const (
	ActionCreateGame = "createGame"
	ActionJoinGame   = "joinGame"
	ActionJoinRoom   = "joinRoom"
	ActionLeaveRoom  = "leaveRoom"
	ActionMove       = "move"
	ActionResign     = "resign"
	ActionOfferDraw  = "offerDraw"
	ActionAcceptDraw = "acceptDraw"
	ActionAbort      = "abort"
)

// Envelope wraps every inbound client message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound wraps every server-to-client message.
type Outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type CreateGame struct {
	InitialTimeSeconds int `json:"initial_time_seconds"`
	IncrementSeconds   int `json:"increment_seconds"`
}

type JoinGame struct {
	Token string `json:"token"`
}

type RoomRef struct {
	GameID int64 `json:"game_id"`
}

type MoveRequest struct {
	GameID    int64  `json:"game_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	// RTTMs is the client-measured round trip used for lag
	// compensation; half of it is credited back to the mover.
	RTTMs int64 `json:"rtt_ms,omitempty"`
}
