package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/kapu/chess-arena/internal/session"
)

// ErrIllegalMove is returned for any move the rules library rejects in
// the current position, including well-formed moves by the wrong piece.
var ErrIllegalMove = errors.New("illegal move")

// Move is a requested move in coordinate form ("e2" -> "e4", optional
// promotion piece letter).
type Move struct {
	From      string
	To        string
	Promotion string
}

// UCI returns the move in UCI notation.
func (m Move) UCI() string {
	return strings.ToLower(strings.TrimSpace(m.From) + strings.TrimSpace(m.To) + strings.TrimSpace(m.Promotion))
}

// Outcome describes a game-ending position reported by the library.
type Outcome struct {
	Status session.Status // StatusCheckmate, StatusStalemate or StatusDraw
	Winner session.Color  // empty for stalemate and draws
}

// Result of a successfully applied move.
type Result struct {
	FEN      string
	UCI      string
	SAN      string
	Turn     session.Color // side to move after the move
	Terminal *Outcome      // nil while the game continues
}

// Apply replays the stored UCI history from the start position and
// applies mv on top. History is replayed rather than loading a FEN so
// repetition and fifty-move state stay accurate.
func Apply(history []string, mv Move) (*Result, error) {
	game := reconstruct(history)
	if game == nil {
		return nil, fmt.Errorf("corrupt move history")
	}
	pos := game.Position()

	uci := mv.UCI()
	if uci == "" {
		return nil, ErrIllegalMove
	}
	decoded, err := nchess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return nil, ErrIllegalMove
	}
	if err := game.Move(decoded, nil); err != nil {
		return nil, ErrIllegalMove
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, decoded)

	res := &Result{
		FEN:      game.FEN(),
		UCI:      uci,
		SAN:      san,
		Turn:     colorFrom(game.Position().Turn()),
		Terminal: terminalFrom(game),
	}
	return res, nil
}

// LegalDestinations maps each origin square with at least one legal
// move to its reachable squares, for the position after history.
func LegalDestinations(history []string) map[string][]string {
	game := reconstruct(history)
	if game == nil {
		return nil
	}
	out := make(map[string][]string)
	for _, mv := range game.ValidMoves() {
		from := mv.S1().String()
		out[from] = append(out[from], mv.S2().String())
	}
	return out
}

func reconstruct(moves []string) *nchess.Game {
	game := nchess.NewGame()
	for _, mv := range moves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil
		}
	}
	return game
}

func terminalFrom(game *nchess.Game) *Outcome {
	switch game.Outcome() {
	case nchess.WhiteWon:
		return &Outcome{Status: session.StatusCheckmate, Winner: session.White}
	case nchess.BlackWon:
		return &Outcome{Status: session.StatusCheckmate, Winner: session.Black}
	case nchess.Draw:
		if game.Method() == nchess.Stalemate {
			return &Outcome{Status: session.StatusStalemate}
		}
		return &Outcome{Status: session.StatusDraw}
	}
	return nil
}

func colorFrom(c nchess.Color) session.Color {
	if c == nchess.White {
		return session.White
	}
	return session.Black
}
