package presence

import "testing"

func TestAddRemoveLifecycle(t *testing.T) {
	r := NewRegistry()

	if r.IsOnline("u1") {
		t.Fatal("u1 online before any Add")
	}

	r.Add("u1", "c1")
	r.Add("u1", "c2")
	if !r.IsOnline("u1") {
		t.Fatal("u1 not online after Add")
	}
	if got := len(r.ConnectionsOf("u1")); got != 2 {
		t.Fatalf("ConnectionsOf = %d, want 2", got)
	}

	r.Remove("u1", "c1")
	if !r.IsOnline("u1") {
		t.Fatal("u1 dropped while one connection remains")
	}
	r.Remove("u1", "c2")
	if r.IsOnline("u1") {
		t.Fatal("u1 still online after last Remove")
	}
	if conns := r.ConnectionsOf("u1"); conns != nil {
		t.Fatalf("ConnectionsOf = %v, want nil", conns)
	}
}

func TestAddIsIdempotentPerConnection(t *testing.T) {
	r := NewRegistry()
	r.Add("u1", "c1")
	r.Add("u1", "c1")
	if got := len(r.ConnectionsOf("u1")); got != 1 {
		t.Fatalf("ConnectionsOf = %d, want 1", got)
	}
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Remove("ghost", "c1")
	r.Add("u1", "c1")
	r.Remove("u1", "other")
	if !r.IsOnline("u1") {
		t.Fatal("removing an unknown conn id evicted the user")
	}
}

func TestBlankArgumentsIgnored(t *testing.T) {
	r := NewRegistry()
	r.Add("", "c1")
	r.Add("u1", "")
	if r.IsOnline("") || r.IsOnline("u1") {
		t.Fatal("blank identities must not register")
	}
}
