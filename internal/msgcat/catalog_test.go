package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedDefaultsLoad(t *testing.T) {
	cat, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, key := range []string{
		"error.unknown_game",
		"error.illegal_move",
		"error.too_many_games",
		"game.over.aborted",
	} {
		out, err := cat.Render(key, nil)
		if err != nil {
			t.Fatalf("Render(%s): %v", key, err)
		}
		if strings.TrimSpace(out) == "" {
			t.Fatalf("Render(%s) empty", key)
		}
	}
}

func TestRenderTemplateData(t *testing.T) {
	cat, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := cat.Render("game.over.timeout", map[string]string{"Winner": "black", "Loser": "white"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "white ran out of time. black wins." {
		t.Fatalf("out = %q", out)
	}
	if _, err := cat.Render("game.over.timeout", map[string]string{"Winner": "black"}); err == nil {
		t.Fatal("missing template key did not error")
	}
}

func TestMessageFallsBackToKey(t *testing.T) {
	cat, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := cat.Message("error.not_your_turn"); got != "It is not your turn." {
		t.Fatalf("got = %q", got)
	}
	if got := cat.Message("error.no_such_key"); got != "error.no_such_key" {
		t.Fatalf("fallback = %q", got)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	override := "error:\n  unknown_game: \"No such game here.\"\n"
	if err := os.WriteFile(filepath.Join(dir, "local.yaml"), []byte(override), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	cat, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := cat.Message("error.unknown_game"); got != "No such game here." {
		t.Fatalf("got = %q", got)
	}
	// Untouched keys keep their defaults.
	if got := cat.Message("error.game_full"); got != "Both seats are already taken." {
		t.Fatalf("got = %q", got)
	}
}

func TestDuplicateOverrideKeyRejected(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("error:\n  internal: \"dup\"\n"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if _, err := New(dir); err == nil {
		t.Fatal("duplicate override key accepted")
	}
}
