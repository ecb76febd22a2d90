package narrative

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdedhouse/internal/completion"
	"crowdedhouse/internal/store"
)

func TestPromptSegmentOrder(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	llm := &fakeLLM{fallback: "Oren knocked twice."}
	sender := &recordingSender{}
	engine := newTestEngine(t, s, llm, sender)

	_, err := s.CreateCharacter(ctx, store.CharacterInput{Name: "Mira", ChannelID: "c1", State: store.CharacterState{Traits: "curious"}})
	require.NoError(t, err)
	_, err = s.CreateMemory(ctx, store.MemoryInput{ChannelID: "c1", Text: "The lighthouse stood."})
	require.NoError(t, err)

	res, err := engine.Prompt(ctx, PromptInput{ChannelID: "c1", Author: "Oren.K", Text: "I knock"})
	require.NoError(t, err)

	want := []completion.Segment{
		{Role: completion.RoleSystem, Content: "RULES"},
		{Role: completion.RoleSystem, Content: "DEFAULT"},
		{Role: completion.RoleSystem, Content: "NOTE"},
		{Role: completion.RoleAssistant, Content: rosterPrefix + `[{"name":"Mira","npc":false,"state":{"traits":"curious"}}]`},
		{Role: completion.RoleAssistant, Content: storyPrefix + "The lighthouse stood."},
		{Role: completion.RoleSystem, Content: introductionNote("Oren.K")},
		{Role: completion.RoleUser, Content: "I knock", Name: "OrenK"},
	}
	req := llm.last()
	if diff := cmp.Diff(want, req.Segments); diff != "" {
		t.Fatalf("segments mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "test-model", req.Model)
	assert.Equal(t, "Oren.K", req.User)

	require.NotNil(t, res.Introduced)
	assert.Equal(t, "Oren.K", res.Introduced.Name)
	assert.NotZero(t, res.MemoryID)
	assert.Equal(t, []string{"Oren knocked twice."}, sender.contents())
	assert.Equal(t, "c1", sender.messages[0].Target)

	// A second turn by the same author is not an introduction.
	res, err = engine.Prompt(ctx, PromptInput{ChannelID: "c1", Target: "token-1", Author: "oren.k", Text: "I wait"})
	require.NoError(t, err)
	assert.Nil(t, res.Introduced)
	assert.Len(t, llm.last().Segments, 6)
	assert.Equal(t, "token-1", sender.messages[1].Target)
}

func TestChronologicalReplay(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	llm := &fakeLLM{responses: []string{"one", "two", "three"}, fallback: "four"}
	engine := newTestEngine(t, s, llm, &recordingSender{})

	for i := range 4 {
		_, err := engine.Prompt(ctx, PromptInput{ChannelID: "c1", Author: "Mira", Text: fmt.Sprintf("turn %d", i)})
		require.NoError(t, err)
	}

	assert.Equal(t, "one two three", segmentByPrefix(llm.last().Segments, storyPrefix))

	history, err := engine.History(ctx, "c1", 0)
	require.NoError(t, err)
	texts := make([]string, len(history))
	for i, m := range history {
		texts[i] = m.Text
	}
	assert.Equal(t, []string{"one", "two", "three", "four"}, texts)
}

func TestHistoryLimitKeepsRecentStory(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	llm := &fakeLLM{fallback: "next"}
	settings := testSettings
	settings.HistoryLimit = 2
	engine := New(s, llm, &recordingSender{}, settings, nil)

	for _, text := range []string{"a", "b", "c"} {
		_, err := s.CreateMemory(ctx, store.MemoryInput{ChannelID: "c1", Text: text})
		require.NoError(t, err)
	}

	_, err := engine.Continue(ctx, "c1", "", "")
	require.NoError(t, err)
	assert.Equal(t, "b c", segmentByPrefix(llm.last().Segments, storyPrefix))
}

func TestTimelineScoping(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	llm := &fakeLLM{}
	engine := newTestEngine(t, s, llm, &recordingSender{})

	_, err := s.CreateCharacter(ctx, store.CharacterInput{Name: "Mira", ChannelID: "parent"})
	require.NoError(t, err)
	_, err = s.CreateMemory(ctx, store.MemoryInput{ChannelID: "parent", Text: "parent event"})
	require.NoError(t, err)

	require.NoError(t, engine.Fork(ctx, "child", "parent"))
	require.NoError(t, engine.Fork(ctx, "sibling", "parent"))

	llm.fallback = "child event"
	_, err = engine.Prompt(ctx, PromptInput{ChannelID: "child", Author: "Oren", Text: "I arrive"})
	require.NoError(t, err)
	assert.Equal(t, "parent event", segmentByPrefix(llm.last().Segments, storyPrefix))

	llm.fallback = "more"
	_, err = engine.Prompt(ctx, PromptInput{ChannelID: "child", Author: "Mira", Text: "I greet Oren"})
	require.NoError(t, err)
	assert.Equal(t, "parent event child event", segmentByPrefix(llm.last().Segments, storyPrefix))
	assert.Len(t, llm.last().Segments, 6, "parent characters are known in the child")

	_, err = engine.Prompt(ctx, PromptInput{ChannelID: "parent", Author: "Mira", Text: "Meanwhile"})
	require.NoError(t, err)
	assert.Equal(t, "parent event", segmentByPrefix(llm.last().Segments, storyPrefix))
	assert.NotContains(t, segmentByPrefix(llm.last().Segments, rosterPrefix), "Oren")

	_, err = engine.Continue(ctx, "sibling", "", "")
	require.NoError(t, err)
	assert.Equal(t, "parent event more", segmentByPrefix(llm.last().Segments, storyPrefix))

	childRoster, err := engine.Characters(ctx, "child")
	require.NoError(t, err)
	assert.Len(t, childRoster, 2)
	parentRoster, err := engine.Characters(ctx, "parent")
	require.NoError(t, err)
	assert.Len(t, parentRoster, 1)
}

func TestIntroduceOnce(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	engine := newTestEngine(t, s, &fakeLLM{fallback: "ok"}, &recordingSender{})

	first, err := engine.Prompt(ctx, PromptInput{ChannelID: "c1", Author: "Quill", Text: "hello"})
	require.NoError(t, err)
	require.NotNil(t, first.Introduced)

	second, err := engine.Prompt(ctx, PromptInput{ChannelID: "c1", Author: "QUILL", Text: "hello again"})
	require.NoError(t, err)
	assert.Nil(t, second.Introduced)

	characters, err := s.ListCharacters(ctx, []string{"c1"})
	require.NoError(t, err)
	assert.Len(t, characters, 1)
}

func TestIntroduceOnceConcurrent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	engine := newTestEngine(t, s, &fakeLLM{fallback: "ok"}, &recordingSender{})

	const workers = 6
	var wg sync.WaitGroup
	results := make([]*Result, workers)
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = engine.Prompt(ctx, PromptInput{ChannelID: "c1", Author: "Quill", Text: "me too"})
		}()
	}
	wg.Wait()

	introduced := 0
	for i := range workers {
		require.NoError(t, errs[i])
		if results[i].Introduced != nil {
			introduced++
		}
	}
	assert.Equal(t, 1, introduced)

	characters, err := s.ListCharacters(ctx, []string{"c1"})
	require.NoError(t, err)
	assert.Len(t, characters, 1)

	memories, err := s.ListMemories(ctx, store.MemoryFilter{ChannelIDs: []string{"c1"}})
	require.NoError(t, err)
	assert.Len(t, memories, workers)
	assert.Zero(t, engine.locks.len())
}

// storyLLM numbers its replies and records the story each request was given.
type storyLLM struct {
	mu      sync.Mutex
	stories []string
}

func (l *storyLLM) Complete(ctx context.Context, req completion.Request) (string, error) {
	l.mu.Lock()
	l.stories = append(l.stories, segmentByPrefix(req.Segments, storyPrefix))
	n := len(l.stories)
	l.mu.Unlock()

	// hold the generation open so overlapping requests would read a stale story
	time.Sleep(5 * time.Millisecond)
	return fmt.Sprintf("event-%d.", n), nil
}

func TestSameChannelPromptsSeeEveryEarlierMemory(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	llm := &storyLLM{}
	engine := newTestEngine(t, s, llm, &recordingSender{})

	const workers = 6
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = engine.Prompt(ctx, PromptInput{ChannelID: "c1", Author: fmt.Sprintf("player%d", i), Text: "act"})
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	require.Len(t, llm.stories, workers)
	for n, story := range llm.stories {
		want := make([]string, n)
		for k := range n {
			want[k] = fmt.Sprintf("event-%d.", k+1)
		}
		assert.Equal(t, strings.Join(want, " "), story, "request %d", n+1)
	}
}

func TestGenerationFailurePersistsNothing(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	sender := &recordingSender{}
	engine := newTestEngine(t, s, &fakeLLM{err: fmt.Errorf("openai: %w", completion.ErrTimeout)}, sender)

	res, err := engine.Prompt(ctx, PromptInput{ChannelID: "c1", Author: "Mira", Text: "hello"})
	require.ErrorIs(t, err, completion.ErrTimeout)
	assert.Nil(t, res)

	memories, err := s.ListMemories(ctx, store.MemoryFilter{ChannelIDs: []string{"c1"}})
	require.NoError(t, err)
	assert.Empty(t, memories)
	characters, err := s.ListCharacters(ctx, []string{"c1"})
	require.NoError(t, err)
	assert.Empty(t, characters)
	assert.Empty(t, sender.contents())
}

func TestDeliveryFailureKeepsMemory(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	sender := &recordingSender{failFrom: 1}
	settings := testSettings
	settings.MessageLimit = 10
	engine := New(s, &fakeLLM{fallback: "aaaa bbbb cccc dddd"}, sender, settings, nil)

	res, err := engine.Prompt(ctx, PromptInput{ChannelID: "c1", Author: "Mira", Text: "go"})
	require.ErrorIs(t, err, ErrDelivery)
	require.NotNil(t, res)
	assert.Equal(t, []string{"aaaa bbbb", "cccc dddd"}, res.Fragments)
	assert.Equal(t, 1, res.Delivered)

	memories, err := s.ListMemories(ctx, store.MemoryFilter{ChannelIDs: []string{"c1"}})
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, res.MemoryID, memories[0].ID)
}

func TestContinue(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	llm := &fakeLLM{fallback: "The fog lifted."}
	engine := newTestEngine(t, s, llm, &recordingSender{})

	res, err := engine.Continue(ctx, "c1", "", "Stranger")
	require.NoError(t, err)
	assert.Nil(t, res.Introduced)

	segments := llm.last().Segments
	assert.Equal(t, completion.Segment{Role: completion.RoleUser, Content: "continue"}, segments[len(segments)-1])

	characters, err := s.ListCharacters(ctx, []string{"c1"})
	require.NoError(t, err)
	assert.Empty(t, characters)
}

func TestPromptValidation(t *testing.T) {
	engine := newTestEngine(t, openStore(t), &fakeLLM{}, &recordingSender{})

	_, err := engine.Prompt(context.Background(), PromptInput{ChannelID: "c1", Author: "Mira", Text: "  "})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = engine.Prompt(context.Background(), PromptInput{ChannelID: "c1", Text: "hi"})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = engine.Prompt(context.Background(), PromptInput{Author: "Mira", Text: "hi"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestSetDirective(t *testing.T) {
	ctx := context.Background()
	llm := &fakeLLM{fallback: "ok"}
	engine := newTestEngine(t, openStore(t), llm, &recordingSender{})

	require.NoError(t, engine.SetDirective(ctx, "c1", "write in verse"))
	require.ErrorIs(t, engine.SetDirective(ctx, "c1", " "), ErrInvalidInput)

	_, err := engine.Prompt(ctx, PromptInput{ChannelID: "c1", Author: "Mira", Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "write in verse", llm.last().Segments[1].Content)

	_, err = engine.Prompt(ctx, PromptInput{ChannelID: "c2", Author: "Mira", Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "DEFAULT", llm.last().Segments[1].Content)
}
