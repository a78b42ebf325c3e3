package archive

import (
	"strings"
	"testing"
	"time"

	"github.com/kapu/chess-arena/internal/session"
)

func finishedSession() *session.Session {
	return &session.Session{
		ID:       7,
		Status:   session.StatusCheckmate,
		WhiteID:  "alice",
		BlackID:  "bob",
		MovesSAN: []string{"f3", "e5", "g4", "Qh4#"},
		MovesUCI: []string{"f2f3", "e7e5", "g2g4", "d8h4"},
		Clock:    session.ClockConfig{InitialTimeSeconds: 300, IncrementSeconds: 2},
		Result:   &session.Result{Winner: session.Black, Reason: session.StatusCheckmate},
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC),
	}
}

func TestResultToken(t *testing.T) {
	s := finishedSession()
	if got := ResultToken(s); got != "0-1" {
		t.Fatalf("token = %q, want 0-1", got)
	}
	s.Result = &session.Result{Winner: session.White, Reason: session.StatusResigned}
	s.Status = session.StatusResigned
	if got := ResultToken(s); got != "1-0" {
		t.Fatalf("token = %q, want 1-0", got)
	}
	s.Result = &session.Result{Reason: session.StatusDraw}
	s.Status = session.StatusDraw
	if got := ResultToken(s); got != "1/2-1/2" {
		t.Fatalf("token = %q, want 1/2-1/2", got)
	}
	s.Result = &session.Result{Reason: session.StatusAborted}
	s.Status = session.StatusAborted
	if got := ResultToken(s); got != "*" {
		t.Fatalf("token = %q, want *", got)
	}
	if got := ResultToken(&session.Session{Status: session.StatusActive}); got != "*" {
		t.Fatalf("token = %q, want *", got)
	}
}

func TestMoveText(t *testing.T) {
	if got := MoveText(nil); got != "" {
		t.Fatalf("empty movetext = %q", got)
	}
	got := MoveText([]string{"e4", "e5", "Nf3"})
	want := "1. e4 e5 2. Nf3"
	if got != want {
		t.Fatalf("movetext = %q, want %q", got, want)
	}
}

func TestBuildPGN(t *testing.T) {
	pgn := BuildPGN(finishedSession())

	for _, want := range []string{
		`[White "alice"]`,
		`[Black "bob"]`,
		`[Date "2026.03.01"]`,
		`[TimeControl "300+2"]`,
		`[Termination "checkmate"]`,
		`[Result "0-1"]`,
		"1. f3 e5 2. g4 Qh4# 0-1",
	} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("pgn missing %q:\n%s", want, pgn)
		}
	}
}

func TestBuildPGNSanitizesTags(t *testing.T) {
	s := finishedSession()
	s.WhiteID = `al"ice`
	pgn := BuildPGN(s)
	if strings.Contains(pgn, `al"ice`) {
		t.Fatalf("quote survived sanitization:\n%s", pgn)
	}
	if !strings.Contains(pgn, "al'ice") {
		t.Fatalf("sanitized name missing:\n%s", pgn)
	}
}
