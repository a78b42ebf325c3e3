package session

import "testing"

func TestCreateDefaults(t *testing.T) {
	st := NewStore()
	s := st.Create("alice", ClockConfig{InitialTimeSeconds: 300, IncrementSeconds: 2}, "GM-ABC123")

	if s.ID == 0 {
		t.Fatal("id not assigned")
	}
	if s.Status != StatusWaiting {
		t.Fatalf("status = %s, want %s", s.Status, StatusWaiting)
	}
	if s.WhiteID != "alice" || s.BlackID != "" {
		t.Fatalf("seats = (%q, %q)", s.WhiteID, s.BlackID)
	}
	if s.FEN != StartFEN {
		t.Fatalf("fen = %q", s.FEN)
	}
	if s.Turn != White {
		t.Fatalf("turn = %s, want white", s.Turn)
	}
	if len(s.MovesUCI) != 0 || len(s.MovesSAN) != 0 {
		t.Fatal("fresh game has moves")
	}
}

func TestGetAndByToken(t *testing.T) {
	st := NewStore()
	s := st.Create("alice", ClockConfig{InitialTimeSeconds: 60}, "GM-TOK001")

	if got := st.Get(s.ID); got != s {
		t.Fatal("Get did not return the session")
	}
	if got := st.ByToken("GM-TOK001"); got != s {
		t.Fatal("ByToken did not return the session")
	}
	if got := st.ByToken("GM-NOPE00"); got != nil {
		t.Fatal("unknown token resolved")
	}

	st.ReleaseToken("GM-TOK001")
	if got := st.ByToken("GM-TOK001"); got != nil {
		t.Fatal("token resolved after release")
	}
	if got := st.Get(s.ID); got != s {
		t.Fatal("session gone after token release")
	}
}

func TestRemove(t *testing.T) {
	st := NewStore()
	s := st.Create("alice", ClockConfig{InitialTimeSeconds: 60}, "GM-TOK002")
	st.Remove(s.ID)
	if st.Get(s.ID) != nil {
		t.Fatal("session readable after Remove")
	}
	if st.ByToken("GM-TOK002") != nil {
		t.Fatal("token readable after Remove")
	}
	if st.Count() != 0 {
		t.Fatalf("Count = %d, want 0", st.Count())
	}
}

func TestActiveCountSkipsFinished(t *testing.T) {
	st := NewStore()
	a := st.Create("a", ClockConfig{InitialTimeSeconds: 60}, "")
	b := st.Create("b", ClockConfig{InitialTimeSeconds: 60}, "")
	st.Create("c", ClockConfig{InitialTimeSeconds: 60}, "")

	for _, s := range []*Session{a, b} {
		s.Lock()
		s.Status = StatusAborted
		s.Unlock()
	}

	if st.Count() != 3 {
		t.Fatalf("Count = %d, want 3", st.Count())
	}
	if st.ActiveCount() != 1 {
		t.Fatalf("ActiveCount = %d, want 1", st.ActiveCount())
	}
}

func TestCreateEvictsOldestFinished(t *testing.T) {
	st := NewStore()
	extra := 10
	var finished []*Session
	for i := 0; i < keepFinished+extra; i++ {
		s := st.Create("a", ClockConfig{InitialTimeSeconds: 60}, "")
		s.Lock()
		s.Status = StatusDraw
		s.Unlock()
		finished = append(finished, s)
	}

	live := st.Create("b", ClockConfig{InitialTimeSeconds: 60}, "")

	if st.Count() != keepFinished+1 {
		t.Fatalf("Count = %d, want %d", st.Count(), keepFinished+1)
	}
	for _, s := range finished[:extra] {
		if st.Get(s.ID) != nil {
			t.Fatalf("game %d not evicted", s.ID)
		}
	}
	if st.Get(finished[len(finished)-1].ID) == nil {
		t.Fatal("recent finished game evicted")
	}
	if st.Get(live.ID) == nil {
		t.Fatal("live game evicted")
	}
}

func TestIDsIncrease(t *testing.T) {
	st := NewStore()
	a := st.Create("a", ClockConfig{InitialTimeSeconds: 60}, "")
	b := st.Create("b", ClockConfig{InitialTimeSeconds: 60}, "")
	if b.ID <= a.ID {
		t.Fatalf("ids not increasing: %d then %d", a.ID, b.ID)
	}
}

func TestSeat(t *testing.T) {
	s := &Session{WhiteID: "alice", BlackID: "bob"}
	if s.Seat("alice") != White {
		t.Fatal("alice should be white")
	}
	if s.Seat("bob") != Black {
		t.Fatal("bob should be black")
	}
	if s.Seat("carol") != "" {
		t.Fatal("carol should not be seated")
	}
	if s.Seat("") != "" {
		t.Fatal("empty user should not be seated")
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, st := range []Status{StatusCheckmate, StatusStalemate, StatusResigned, StatusDraw, StatusTimeout, StatusAborted} {
		if !st.Terminal() {
			t.Fatalf("%s not terminal", st)
		}
	}
	for _, st := range []Status{StatusWaiting, StatusActive} {
		if st.Terminal() {
			t.Fatalf("%s terminal", st)
		}
	}
}
