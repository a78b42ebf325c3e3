package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/kapu/chess-arena/internal/session"
)

// Repository persists finished games to postgres. The live session
// store stays authoritative; a nil repository disables archiving.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts the final state of a terminal game.
func (r *Repository) SaveResult(ctx context.Context, s *session.Session) error {
	if r == nil || r.db == nil || s == nil {
		return nil
	}
	if !s.Status.Terminal() {
		return nil
	}

	winner := ""
	reason := ""
	if s.Result != nil {
		winner = string(s.Result.Winner)
		reason = strings.ToLower(string(s.Result.Reason))
	}
	movesUCIRaw, _ := json.Marshal(s.MovesUCI)
	movesSANRaw, _ := json.Marshal(s.MovesSAN)
	duration := s.UpdatedAt.Sub(s.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}
	var whiteMs, blackMs int64
	if s.FinalClock != nil {
		whiteMs = s.FinalClock.WhiteRemainingMs
		blackMs = s.FinalClock.BlackRemainingMs
	}

	q := `INSERT INTO arena_games (
	    game_id, white_id, black_id,
	    initial_time_sec, increment_sec,
	    result, result_reason, moves_uci, moves_san, pgn,
	    white_remaining_ms, black_remaining_ms,
	    started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
	  ) ON CONFLICT (game_id) DO UPDATE SET
	    result=EXCLUDED.result,
	    result_reason=EXCLUDED.result_reason,
	    moves_uci=EXCLUDED.moves_uci,
	    moves_san=EXCLUDED.moves_san,
	    pgn=EXCLUDED.pgn,
	    white_remaining_ms=EXCLUDED.white_remaining_ms,
	    black_remaining_ms=EXCLUDED.black_remaining_ms,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		s.ID, s.WhiteID, s.BlackID,
		s.Clock.InitialTimeSeconds, s.Clock.IncrementSeconds,
		winner, reason, string(movesUCIRaw), string(movesSANRaw), BuildPGN(s),
		whiteMs, blackMs,
		s.CreatedAt, s.UpdatedAt, duration,
	)
	return err
}
