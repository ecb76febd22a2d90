// Package storetest holds the behavioural checks every store.Store
// backend must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"crowdedhouse/internal/store"
)

// Run executes the suite. open must return an empty store with its schema
// in place; each subtest gets its own.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"EnsureSchemaIdempotent", testEnsureSchemaIdempotent},
		{"CreateAndGetCharacter", testCreateAndGetCharacter},
		{"CharacterNameConflict", testCharacterNameConflict},
		{"EnsureCharacter", testEnsureCharacter},
		{"EnsureCharacterConcurrent", testEnsureCharacterConcurrent},
		{"ListCharactersScopedToChannels", testListCharactersScoped},
		{"AppendCharacterState", testAppendCharacterState},
		{"MemoriesChronological", testMemoriesChronological},
		{"MemoryFilters", testMemoryFilters},
		{"MemoryLimitKeepsNewest", testMemoryLimit},
		{"DanglingMemories", testDanglingMemories},
		{"Directives", testDirectives},
		{"Timelines", testTimelines},
		{"TransactionRollback", testTransactionRollback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

func testEnsureSchemaIdempotent(t *testing.T, s store.Store) {
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
}

func testCreateAndGetCharacter(t *testing.T, s store.Store) {
	ctx := context.Background()

	created, err := s.CreateCharacter(ctx, store.CharacterInput{
		Name:      "  Mira ",
		ChannelID: "c1",
		State:     store.CharacterState{Traits: "curious", Backstory: "a lighthouse keeper"},
	})
	if err != nil {
		t.Fatalf("create character: %v", err)
	}
	if created.ID == 0 {
		t.Fatalf("expected generated id")
	}
	if created.Name != "Mira" {
		t.Fatalf("expected trimmed name, got %q", created.Name)
	}
	if created.CreatedAt.IsZero() {
		t.Fatalf("expected created_at")
	}

	byID, err := s.GetCharacter(ctx, created.ID)
	if err != nil {
		t.Fatalf("get character: %v", err)
	}
	if byID.State.Traits != "curious" || byID.State.Backstory != "a lighthouse keeper" {
		t.Fatalf("unexpected state: %+v", byID.State)
	}

	byName, err := s.GetCharacterByName(ctx, "MIRA", "c1")
	if err != nil {
		t.Fatalf("get character by name: %v", err)
	}
	if byName.ID != created.ID {
		t.Fatalf("expected id %d, got %d", created.ID, byName.ID)
	}

	if _, err := s.GetCharacterByName(ctx, "Mira", "c2"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound in other channel, got %v", err)
	}
	if _, err := s.GetCharacter(ctx, created.ID+1000); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing id, got %v", err)
	}
}

func testCharacterNameConflict(t *testing.T, s store.Store) {
	ctx := context.Background()

	if _, err := s.CreateCharacter(ctx, store.CharacterInput{Name: "Oren", ChannelID: "c1"}); err != nil {
		t.Fatalf("create character: %v", err)
	}
	_, err := s.CreateCharacter(ctx, store.CharacterInput{Name: "oren", ChannelID: "c1"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := s.CreateCharacter(ctx, store.CharacterInput{Name: "Oren", ChannelID: "c2"}); err != nil {
		t.Fatalf("same name in another channel should succeed: %v", err)
	}
}

func testEnsureCharacter(t *testing.T, s store.Store) {
	ctx := context.Background()

	first, created, err := s.EnsureCharacter(ctx, store.CharacterInput{Name: "Tamsin", ChannelID: "c1", IsNPC: true})
	if err != nil {
		t.Fatalf("ensure character: %v", err)
	}
	if !created {
		t.Fatalf("expected first ensure to create")
	}
	if !first.IsNPC {
		t.Fatalf("expected npc flag to persist")
	}

	second, created, err := s.EnsureCharacter(ctx, store.CharacterInput{Name: "tamsin", ChannelID: "c1"})
	if err != nil {
		t.Fatalf("ensure character again: %v", err)
	}
	if created {
		t.Fatalf("expected second ensure to reuse the row")
	}
	if second.ID != first.ID {
		t.Fatalf("expected id %d, got %d", first.ID, second.ID)
	}
}

func testEnsureCharacterConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	const workers = 8

	var wg sync.WaitGroup
	ids := make([]int64, workers)
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, _, err := s.EnsureCharacter(ctx, store.CharacterInput{Name: "Quill", ChannelID: "c1"})
			ids[i] = c.ID
			errs[i] = err
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
		if ids[i] != ids[0] {
			t.Fatalf("worker %d got id %d, want %d", i, ids[i], ids[0])
		}
	}

	characters, err := s.ListCharacters(ctx, []string{"c1"})
	if err != nil {
		t.Fatalf("list characters: %v", err)
	}
	if len(characters) != 1 {
		t.Fatalf("expected exactly one character, got %d", len(characters))
	}
}

func testListCharactersScoped(t *testing.T, s store.Store) {
	ctx := context.Background()

	for _, in := range []store.CharacterInput{
		{Name: "A", ChannelID: "parent"},
		{Name: "B", ChannelID: "child"},
		{Name: "C", ChannelID: "elsewhere"},
	} {
		if _, err := s.CreateCharacter(ctx, in); err != nil {
			t.Fatalf("create %s: %v", in.Name, err)
		}
	}

	characters, err := s.ListCharacters(ctx, []string{"child", "parent"})
	if err != nil {
		t.Fatalf("list characters: %v", err)
	}
	if got := names(characters); fmt.Sprint(got) != "[A B]" {
		t.Fatalf("expected [A B] in creation order, got %v", got)
	}

	empty, err := s.ListCharacters(ctx, nil)
	if err != nil {
		t.Fatalf("list with no channels: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no characters, got %d", len(empty))
	}
}

func testAppendCharacterState(t *testing.T, s store.Store) {
	ctx := context.Background()

	c, err := s.CreateCharacter(ctx, store.CharacterInput{Name: "Ash", ChannelID: "c1", State: store.CharacterState{Traits: "stubborn"}})
	if err != nil {
		t.Fatalf("create character: %v", err)
	}

	if err := s.AppendCharacterState(ctx, c.ID, "mood", "wistful"); err != nil {
		t.Fatalf("append mood: %v", err)
	}
	if err := s.AppendCharacterState(ctx, c.ID, store.StateKeyRelationships, map[string]string{"Mira": "sister"}); err != nil {
		t.Fatalf("append relationships: %v", err)
	}

	got, err := s.GetCharacter(ctx, c.ID)
	if err != nil {
		t.Fatalf("get character: %v", err)
	}
	if got.State.Traits != "stubborn" {
		t.Fatalf("existing keys must survive, got %+v", got.State)
	}
	if got.State.Relationships["Mira"] != "sister" {
		t.Fatalf("expected relationship, got %+v", got.State.Relationships)
	}
	if string(got.State.Extra["mood"]) != `"wistful"` {
		t.Fatalf("expected mood in extra state, got %s", got.State.Extra["mood"])
	}

	if err := s.AppendCharacterState(ctx, c.ID+1000, "mood", "x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.AppendCharacterState(ctx, c.ID, "", "x"); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func testMemoriesChronological(t *testing.T, s store.Store) {
	ctx := context.Background()

	texts := []string{"first", "second", "third", "fourth"}
	for _, text := range texts {
		if _, err := s.CreateMemory(ctx, store.MemoryInput{ChannelID: "c1", Text: text}); err != nil {
			t.Fatalf("create memory: %v", err)
		}
	}
	if _, err := s.CreateMemory(ctx, store.MemoryInput{ChannelID: "c2", Text: "elsewhere"}); err != nil {
		t.Fatalf("create memory: %v", err)
	}

	memories, err := s.ListMemories(ctx, store.MemoryFilter{ChannelIDs: []string{"c1"}})
	if err != nil {
		t.Fatalf("list memories: %v", err)
	}
	if got := memoryTexts(store.Chronological(memories)); fmt.Sprint(got) != fmt.Sprint(texts) {
		t.Fatalf("expected %v, got %v", texts, got)
	}
}

func testMemoryFilters(t *testing.T, s store.Store) {
	ctx := context.Background()

	mira, err := s.CreateCharacter(ctx, store.CharacterInput{Name: "Mira", ChannelID: "c1"})
	if err != nil {
		t.Fatalf("create character: %v", err)
	}
	oren, err := s.CreateCharacter(ctx, store.CharacterInput{Name: "Oren", ChannelID: "c1"})
	if err != nil {
		t.Fatalf("create character: %v", err)
	}

	inputs := []store.MemoryInput{
		{ChannelID: "c1", Text: "general"},
		{ChannelID: "c1", Text: "about mira", RelatedCharacterID: &mira.ID},
		{ChannelID: "c1", Text: "oren asks mira", RelatedCharacterID: &mira.ID, SpokenByCharacterID: &oren.ID},
		{ChannelID: "c1", Text: "about oren", RelatedCharacterID: &oren.ID},
	}
	for _, in := range inputs {
		if _, err := s.CreateMemory(ctx, in); err != nil {
			t.Fatalf("create memory: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter store.MemoryFilter
		want   string
	}{
		{
			name:   "related only",
			filter: store.MemoryFilter{ChannelIDs: []string{"c1"}, RelatedCharacterID: &mira.ID},
			want:   "[about mira oren asks mira]",
		},
		{
			name:   "related with general",
			filter: store.MemoryFilter{ChannelIDs: []string{"c1"}, RelatedCharacterID: &mira.ID, IncludeGeneral: true},
			want:   "[general about mira oren asks mira]",
		},
		{
			name:   "spoken by",
			filter: store.MemoryFilter{ChannelIDs: []string{"c1"}, SpokenByCharacterID: &oren.ID},
			want:   "[oren asks mira]",
		},
		{
			name:   "no channels",
			filter: store.MemoryFilter{},
			want:   "[]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			memories, err := s.ListMemories(ctx, tt.filter)
			if err != nil {
				t.Fatalf("list memories: %v", err)
			}
			if got := fmt.Sprint(memoryTexts(store.Chronological(memories))); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}

	memories, err := s.ListMemories(ctx, store.MemoryFilter{ChannelIDs: []string{"c1"}, SpokenByCharacterID: &oren.ID})
	if err != nil {
		t.Fatalf("list memories: %v", err)
	}
	if len(memories) != 1 || memories[0].RelatedCharacterID == nil || *memories[0].RelatedCharacterID != mira.ID {
		t.Fatalf("expected attribution to round-trip, got %+v", memories)
	}
}

func testMemoryLimit(t *testing.T, s store.Store) {
	ctx := context.Background()

	for i := range 5 {
		if _, err := s.CreateMemory(ctx, store.MemoryInput{ChannelID: "c1", Text: fmt.Sprintf("m%d", i)}); err != nil {
			t.Fatalf("create memory: %v", err)
		}
	}

	memories, err := s.ListMemories(ctx, store.MemoryFilter{ChannelIDs: []string{"c1"}, Limit: 2})
	if err != nil {
		t.Fatalf("list memories: %v", err)
	}
	if got := fmt.Sprint(memoryTexts(store.Chronological(memories))); got != "[m3 m4]" {
		t.Fatalf("expected the two newest, got %s", got)
	}
}

func testDanglingMemories(t *testing.T, s store.Store) {
	ctx := context.Background()

	c, err := s.CreateCharacter(ctx, store.CharacterInput{Name: "Mira", ChannelID: "c1"})
	if err != nil {
		t.Fatalf("create character: %v", err)
	}
	missing := c.ID + 1000

	if _, err := s.CreateMemory(ctx, store.MemoryInput{ChannelID: "c1", Text: "fine", RelatedCharacterID: &c.ID}); err != nil {
		t.Fatalf("create memory: %v", err)
	}
	if _, err := s.CreateMemory(ctx, store.MemoryInput{ChannelID: "c1", Text: "orphan", SpokenByCharacterID: &missing}); err != nil {
		t.Fatalf("create memory: %v", err)
	}

	dangling, err := s.ListDanglingMemories(ctx)
	if err != nil {
		t.Fatalf("list dangling memories: %v", err)
	}
	if got := fmt.Sprint(memoryTexts(dangling)); got != "[orphan]" {
		t.Fatalf("expected [orphan], got %s", got)
	}
}

func testDirectives(t *testing.T, s store.Store) {
	ctx := context.Background()

	if _, err := s.GetDirective(ctx, "c1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.CreateDirective(ctx, "c1", "write in verse"); err != nil {
		t.Fatalf("create directive: %v", err)
	}
	if err := s.CreateDirective(ctx, "c1", "keep it short"); err != nil {
		t.Fatalf("create directive: %v", err)
	}

	directive, err := s.GetDirective(ctx, "c1")
	if err != nil {
		t.Fatalf("get directive: %v", err)
	}
	if directive != "write in verse\nkeep it short" {
		t.Fatalf("unexpected directive %q", directive)
	}
}

func testTimelines(t *testing.T, s store.Store) {
	ctx := context.Background()

	if _, err := s.GetParentChannel(ctx, "child"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.CreateTimeline(ctx, "child", "root"); err != nil {
		t.Fatalf("create timeline: %v", err)
	}
	if err := s.CreateTimeline(ctx, "child", "other"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for second parent, got %v", err)
	}

	parent, err := s.GetParentChannel(ctx, "child")
	if err != nil {
		t.Fatalf("get parent channel: %v", err)
	}
	if parent != "root" {
		t.Fatalf("expected root, got %q", parent)
	}

	timelines, err := s.ListTimelines(ctx)
	if err != nil {
		t.Fatalf("list timelines: %v", err)
	}
	if len(timelines) != 1 || timelines[0].ChannelID != "child" || timelines[0].ParentChannelID != "root" {
		t.Fatalf("unexpected timelines %+v", timelines)
	}
}

func testTransactionRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(q store.Queries) error {
		if _, err := q.CreateCharacter(ctx, store.CharacterInput{Name: "Ghost", ChannelID: "c1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if _, err := s.GetCharacterByName(ctx, "Ghost", "c1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected rollback, got %v", err)
	}

	err = s.WithTx(ctx, func(q store.Queries) error {
		_, err := q.CreateCharacter(ctx, store.CharacterInput{Name: "Kept", ChannelID: "c1"})
		return err
	})
	if err != nil {
		t.Fatalf("commit transaction: %v", err)
	}
	if _, err := s.GetCharacterByName(ctx, "Kept", "c1"); err != nil {
		t.Fatalf("expected committed character: %v", err)
	}
}

func names(characters []store.Character) []string {
	out := make([]string, len(characters))
	for i, c := range characters {
		out[i] = c.Name
	}
	return out
}

func memoryTexts(memories []store.Memory) []string {
	out := make([]string, len(memories))
	for i, m := range memories {
		out[i] = m.Text
	}
	return out
}
