package invite

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 24 * time.Hour

// Store allocates opaque invite tokens in redis so invites survive a
// process restart and can be shared across instances. Tokens map to a
// game id and expire on their own.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func key(token string) string { return "invite:" + strings.TrimSpace(token) }

// Allocate reserves a fresh unique token for the game. SetNX guards
// against collisions; a handful of retries is plenty for a 6-char
// alnum space.
func (s *Store) Allocate(ctx context.Context, gameID int64) (string, error) {
	if s == nil || s.rdb == nil {
		return "", fmt.Errorf("invite store not configured")
	}
	for i := 0; i < 5; i++ {
		token, err := TokenGen()
		if err != nil {
			return "", err
		}
		ok, err := s.rdb.SetNX(ctx, key(token), gameID, s.ttl).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
	}
	return "", fmt.Errorf("failed to allocate invite token")
}

// Bind points an already-reserved token at its game id, refreshing the
// TTL. Used right after Allocate once the session id is known.
func (s *Store) Bind(ctx context.Context, token string, gameID int64) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Set(ctx, key(token), gameID, s.ttl).Err()
}

// Resolve returns the game id behind the token, or ok=false when the
// token is unknown or expired.
func (s *Store) Resolve(ctx context.Context, token string) (gameID int64, ok bool, err error) {
	if s == nil || s.rdb == nil {
		return 0, false, nil
	}
	id, err := s.rdb.Get(ctx, key(token)).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// Release drops a consumed token. Idempotent.
func (s *Store) Release(ctx context.Context, token string) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, key(token)).Err()
}

// TokenGen returns `GM-` + 6 upper alnum.
func TokenGen() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return fmt.Sprintf("GM-%s", string(b)), nil
}
