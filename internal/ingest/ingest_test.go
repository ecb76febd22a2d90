package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"crowdedhouse/internal/store"
	"crowdedhouse/internal/store/sqlite"
)

func openStore(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.New(ctx, "sqlite://"+filepath.Join(t.TempDir(), "seed.db"))
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(ctx) })
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return db
}

func writeSheet(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func sheetDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeSheet(t, dir, "ana.md", "---\ntitle: Ana\ntype: character\ntraits: [brave, quiet]\n---\nA sailor from the north.\n")
	writeSheet(t, dir, "npcs/mira.md", "---\ntitle: Mira\ntype: npc\nrelationships:\n  Ana: rival\nmood: restless\n---\nKeeps the lighthouse.\n")
	writeSheet(t, dir, "setting.md", "---\ntype: directive\n---\nThe sea is always cold.\n")
	writeSheet(t, dir, "opening.md", "---\ntype: opening\n---\nA storm rolls in over the bay.\n")
	writeSheet(t, dir, "README.md", "# Sheets\n")
	writeSheet(t, dir, "notes.txt", "ignored")
	return dir
}

func TestRun_SeedsChannel(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	dir := sheetDir(t)

	result, err := Run(ctx, db, Options{ChannelID: "c1", Paths: []string{dir}}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if result.CharactersCreated != 2 || result.DirectivesAdded != 1 || result.OpeningsAdded != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.FilesSkipped != 1 {
		t.Fatalf("expected README to be skipped, got %d skipped", result.FilesSkipped)
	}

	ana, err := db.GetCharacterByName(ctx, "ana", "c1")
	if err != nil {
		t.Fatalf("get Ana: %v", err)
	}
	if ana.IsNPC {
		t.Fatalf("Ana should be a player character")
	}
	if ana.State.Traits != "brave, quiet" || ana.State.Backstory != "A sailor from the north." {
		t.Fatalf("unexpected Ana state: %+v", ana.State)
	}

	mira, err := db.GetCharacterByName(ctx, "Mira", "c1")
	if err != nil {
		t.Fatalf("get Mira: %v", err)
	}
	if !mira.IsNPC || mira.State.Relationships["Ana"] != "rival" {
		t.Fatalf("unexpected Mira: %+v", mira)
	}
	if string(mira.State.Extra["mood"]) != `"restless"` {
		t.Fatalf("expected mood in state, got %s", mira.State.Extra["mood"])
	}

	directive, err := db.GetDirective(ctx, "c1")
	if err != nil {
		t.Fatalf("get directive: %v", err)
	}
	if directive != "The sea is always cold." {
		t.Fatalf("unexpected directive %q", directive)
	}

	memories, err := db.ListMemories(ctx, store.MemoryFilter{ChannelIDs: []string{"c1"}})
	if err != nil {
		t.Fatalf("list memories: %v", err)
	}
	if len(memories) != 1 || memories[0].Text != "A storm rolls in over the bay." {
		t.Fatalf("unexpected memories: %+v", memories)
	}
}

func TestRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	dir := sheetDir(t)
	opts := Options{ChannelID: "c1", Paths: []string{dir}}

	if _, err := Run(ctx, db, opts, nil); err != nil {
		t.Fatalf("first run: %v", err)
	}
	result, err := Run(ctx, db, opts, nil)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.CharactersCreated != 0 || result.CharactersUpdated != 2 {
		t.Fatalf("unexpected character counts: %+v", result)
	}
	if result.DirectivesAdded != 0 || result.OpeningsAdded != 0 {
		t.Fatalf("second run should add no directives or openings: %+v", result)
	}

	characters, err := db.ListCharacters(ctx, []string{"c1"})
	if err != nil {
		t.Fatalf("list characters: %v", err)
	}
	if len(characters) != 2 {
		t.Fatalf("expected 2 characters, got %d", len(characters))
	}
	directive, err := db.GetDirective(ctx, "c1")
	if err != nil {
		t.Fatalf("get directive: %v", err)
	}
	if directive != "The sea is always cold." {
		t.Fatalf("directive duplicated: %q", directive)
	}
}

func TestRun_UpdateKeepsUnmentionedState(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)

	c, err := db.CreateCharacter(ctx, store.CharacterInput{Name: "Ana", ChannelID: "c1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.AppendCharacterState(ctx, c.ID, "mood", "cheerful"); err != nil {
		t.Fatalf("append: %v", err)
	}

	dir := t.TempDir()
	writeSheet(t, dir, "ana.md", "---\ntitle: ANA\ntype: character\ntraits: bold\n---\n")
	result, err := Run(ctx, db, Options{ChannelID: "c1", Paths: []string{dir}}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.CharactersUpdated != 1 {
		t.Fatalf("expected 1 update, got %+v", result)
	}

	updated, err := db.GetCharacter(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if updated.State.Traits != "bold" {
		t.Fatalf("expected traits updated, got %q", updated.State.Traits)
	}
	if string(updated.State.Extra["mood"]) != `"cheerful"` {
		t.Fatalf("expected mood kept, got %s", updated.State.Extra["mood"])
	}
}

func TestRun_ReportsBadSheets(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)

	dir := t.TempDir()
	writeSheet(t, dir, "bad.md", "---\ntitle: Bad\ntype: character\ntraits: {a: b}\n---\n")
	writeSheet(t, dir, "unknown.md", "---\ntitle: Westport\ntype: settlement\n---\n")
	writeSheet(t, dir, "good.md", "---\ntitle: Good\ntype: npc\n---\n")

	result, err := Run(ctx, db, Options{ChannelID: "c1", Paths: []string{dir}}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %v", result.Errors)
	}
	if result.CharactersCreated != 1 {
		t.Fatalf("expected the good sheet to be seeded, got %+v", result)
	}
	if _, err := db.GetCharacterByName(ctx, "Bad", "c1"); err == nil {
		t.Fatalf("bad sheet should not create a character")
	}
}

func TestRun_OpeningSkippedWhenStoryStarted(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	if _, err := db.CreateMemory(ctx, store.MemoryInput{ChannelID: "c1", Text: "Already underway."}); err != nil {
		t.Fatalf("create memory: %v", err)
	}

	dir := t.TempDir()
	writeSheet(t, dir, "opening.md", "---\ntype: opening\n---\nA storm rolls in.\n")
	result, err := Run(ctx, db, Options{ChannelID: "c1", Paths: []string{dir}}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.OpeningsAdded != 0 || result.FilesSkipped != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRun_RequiresChannel(t *testing.T) {
	if _, err := Run(context.Background(), openStore(t), Options{Paths: []string{t.TempDir()}}, nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestWalkMarkdownFiles_Exclude(t *testing.T) {
	dir := t.TempDir()
	writeSheet(t, dir, "keep.md", "x")
	writeSheet(t, dir, "drafts/skip.md", "x")
	writeSheet(t, dir, "drafts/nested/skip.md", "x")

	files, err := walkMarkdownFiles([]string{dir}, []string{filepath.Join(dir, "drafts")})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(files) != 1 || filepath.Base(files[0]) != "keep.md" {
		t.Fatalf("unexpected files: %v", files)
	}
}

func TestContainsLine(t *testing.T) {
	tests := []struct {
		directive string
		part      string
		want      bool
	}{
		{"", "a", false},
		{"a", "a", true},
		{"a\nb", "a", true},
		{"a\nb", "b", true},
		{"a\nb\nc", "b", true},
		{"ab", "a", false},
		{"x\nab", "a", false},
	}
	for _, tt := range tests {
		if got := containsLine(tt.directive, tt.part); got != tt.want {
			t.Errorf("containsLine(%q, %q) = %v, want %v", tt.directive, tt.part, got, tt.want)
		}
	}
}
