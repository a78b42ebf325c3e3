package archive

import (
	"fmt"
	"strings"
	"time"

	"github.com/kapu/chess-arena/internal/session"
)

// ResultToken maps a session outcome to the PGN result token.
func ResultToken(s *session.Session) string {
	if s == nil || s.Result == nil {
		return "*"
	}
	switch s.Result.Winner {
	case session.White:
		return "1-0"
	case session.Black:
		return "0-1"
	}
	if s.Status.Terminal() && s.Status != session.StatusAborted {
		return "1/2-1/2"
	}
	return "*"
}

// MoveText renders the numbered SAN movetext without headers.
func MoveText(sans []string) string {
	var b strings.Builder
	for i := 0; i < len(sans); i += 2 {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%d. %s", i/2+1, strings.TrimSpace(sans[i]))
		if i+1 < len(sans) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(sans[i+1]))
		}
	}
	return b.String()
}

// BuildPGN renders the full PGN text for a finished game.
func BuildPGN(s *session.Session) string {
	if s == nil {
		return ""
	}
	token := ResultToken(s)
	date := s.UpdatedAt
	if date.IsZero() {
		date = time.Now()
	}

	var b strings.Builder
	b.WriteString("[Event \"Arena PvP\"]\n")
	b.WriteString("[Site \"chess-arena\"]\n")
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitizeTag(s.WhiteID))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitizeTag(s.BlackID))
	fmt.Fprintf(&b, "[TimeControl \"%d+%d\"]\n", s.Clock.InitialTimeSeconds, s.Clock.IncrementSeconds)
	if s.Result != nil {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizeTag(strings.ToLower(string(s.Result.Reason))))
	}
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", token)

	if mt := MoveText(s.MovesSAN); mt != "" {
		b.WriteString(mt)
		b.WriteString(" ")
	}
	b.WriteString(token)
	return b.String()
}

func sanitizeTag(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
