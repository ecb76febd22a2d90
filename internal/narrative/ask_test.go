package narrative

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdedhouse/internal/completion"
	"crowdedhouse/internal/store"
)

func TestAsk(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	llm := &fakeLLM{fallback: "The light was never meant for ships."}
	sender := &recordingSender{}
	engine := newTestEngine(t, s, llm, sender)

	mira, err := s.CreateCharacter(ctx, store.CharacterInput{
		Name: "Mira", ChannelID: "parent", IsNPC: true,
		State: store.CharacterState{Traits: "secretive"},
	})
	require.NoError(t, err)
	tamsin, err := s.CreateCharacter(ctx, store.CharacterInput{Name: "Tamsin", ChannelID: "parent", IsNPC: true})
	require.NoError(t, err)
	for _, in := range []store.MemoryInput{
		{ChannelID: "parent", Text: "A storm rolled in."},
		{ChannelID: "parent", Text: "Mira lit the lamp.", RelatedCharacterID: &mira.ID},
		{ChannelID: "parent", Text: "Tamsin sharpened a blade.", RelatedCharacterID: &tamsin.ID},
	} {
		_, err := s.CreateMemory(ctx, in)
		require.NoError(t, err)
	}
	require.NoError(t, engine.Fork(ctx, "child", "parent"))

	res, err := engine.Ask(ctx, AskInput{ChannelID: "child", Asker: "Oren", Character: "mira", Question: "Why keep the light?"})
	require.NoError(t, err)

	want := []completion.Segment{
		{Role: completion.RoleSystem, Content: characterVoice("Mira", `{"traits":"secretive"}`)},
		{Role: completion.RoleSystem, Content: "DEFAULT"},
		{Role: completion.RoleSystem, Content: "NOTE"},
		{Role: completion.RoleAssistant, Content: rosterPrefix + `[{"name":"Tamsin","npc":true,"state":{}}]`},
		{Role: completion.RoleAssistant, Content: storyPrefix + "A storm rolled in. Mira lit the lamp."},
		{Role: completion.RoleUser, Content: "Why keep the light?", Name: "Oren"},
	}
	if diff := cmp.Diff(want, llm.last().Segments); diff != "" {
		t.Fatalf("segments mismatch (-want +got):\n%s", diff)
	}

	require.NotNil(t, res.Introduced)
	assert.Equal(t, "child", res.Introduced.ChannelID)
	assert.Equal(t, []string{"The light was never meant for ships."}, sender.contents())

	memories, err := s.ListMemories(ctx, store.MemoryFilter{ChannelIDs: []string{"child"}})
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, askMemory("Oren", "Mira", "Why keep the light?"), memories[0].Text)
	require.NotNil(t, memories[0].RelatedCharacterID)
	assert.Equal(t, mira.ID, *memories[0].RelatedCharacterID)
	require.NotNil(t, memories[0].SpokenByCharacterID)
	assert.Equal(t, res.Introduced.ID, *memories[0].SpokenByCharacterID)

	// Asking again reuses the asker's character.
	res, err = engine.Ask(ctx, AskInput{ChannelID: "child", Asker: "oren", Character: "Mira", Question: "And now?"})
	require.NoError(t, err)
	assert.Nil(t, res.Introduced)
	characters, err := s.ListCharacters(ctx, []string{"child"})
	require.NoError(t, err)
	assert.Len(t, characters, 1)
}

func TestAskUnknownCharacter(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	llm := &fakeLLM{fallback: "unused"}
	engine := newTestEngine(t, s, llm, &recordingSender{})

	_, err := engine.Ask(ctx, AskInput{ChannelID: "c1", Asker: "Oren", Character: "Nobody", Question: "Hello?"})
	require.ErrorIs(t, err, ErrCharacterNotFound)
	assert.Zero(t, llm.calls())

	require.NoError(t, engine.Fork(ctx, "c2", "c1"))
	_, err = engine.Ask(ctx, AskInput{ChannelID: "c2", Asker: "Oren", Character: "Nobody", Question: "Hello?"})
	require.ErrorIs(t, err, ErrCharacterNotFound)

	_, err = engine.Ask(ctx, AskInput{ChannelID: "c1", Asker: "Oren", Character: "Nobody"})
	require.ErrorIs(t, err, ErrInvalidInput)
}
