package session

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// keepFinished bounds how many terminal sessions stay readable after
// they leave the active set. Older ones are evicted on the next Create.
const keepFinished = 256

// Store is the in-memory table of game sessions. Finished games stay
// readable by id until removed, but leave the active indexes so stale
// invite tokens cannot resolve and per-user lookups only see live games.
type Store struct {
	mu sync.RWMutex

	nextID int64

	byID    map[int64]*Session
	byToken map[string]*Session
}

func NewStore() *Store {
	return &Store{
		byID:    make(map[int64]*Session),
		byToken: make(map[string]*Session),
	}
}

// Create registers a new waiting session with one seat filled.
func (st *Store) Create(whiteID string, cfg ClockConfig, inviteToken string) *Session {
	now := time.Now()

	st.mu.Lock()
	defer st.mu.Unlock()

	st.pruneFinishedLocked()

	st.nextID++
	s := &Session{
		ID:          st.nextID,
		Status:      StatusWaiting,
		WhiteID:     strings.TrimSpace(whiteID),
		FEN:         StartFEN,
		MovesUCI:    []string{},
		MovesSAN:    []string{},
		Turn:        White,
		Clock:       cfg,
		InviteToken: strings.TrimSpace(inviteToken),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	st.byID[s.ID] = s
	if s.InviteToken != "" {
		st.byToken[s.InviteToken] = s
	}
	return s
}

func (st *Store) Get(id int64) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.byID[id]
}

func (st *Store) ByToken(token string) *Session {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.byToken[token]
}

// ReleaseToken drops the invite index entry once a game is seated or
// aborted; the session itself stays.
func (st *Store) ReleaseToken(token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	st.mu.Lock()
	delete(st.byToken, token)
	st.mu.Unlock()
}

// Remove deletes a session entirely.
func (st *Store) Remove(id int64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.byID[id]; ok {
		delete(st.byID, id)
		if s.InviteToken != "" {
			delete(st.byToken, s.InviteToken)
		}
	}
}

// Count returns the number of stored sessions, finished ones included.
func (st *Store) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.byID)
}

// ActiveCount returns the number of sessions that have not reached a
// terminal status. Concurrency caps consult this, so a finished game
// frees its slot the moment it ends.
func (st *Store) ActiveCount() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	n := 0
	for _, s := range st.byID {
		s.Lock()
		terminal := s.Status.Terminal()
		s.Unlock()
		if !terminal {
			n++
		}
	}
	return n
}

// pruneFinishedLocked evicts the oldest terminal sessions beyond
// keepFinished. Caller holds st.mu.
func (st *Store) pruneFinishedLocked() {
	type finished struct {
		id    int64
		token string
		ended time.Time
	}
	var done []finished
	for _, s := range st.byID {
		s.Lock()
		if s.Status.Terminal() {
			done = append(done, finished{id: s.ID, token: s.InviteToken, ended: s.UpdatedAt})
		}
		s.Unlock()
	}
	if len(done) <= keepFinished {
		return
	}
	sort.Slice(done, func(i, j int) bool { return done[i].ended.Before(done[j].ended) })
	for _, f := range done[:len(done)-keepFinished] {
		delete(st.byID, f.id)
		if f.token != "" {
			delete(st.byToken, f.token)
		}
	}
}
