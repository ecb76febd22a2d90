package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"crowdedhouse/internal/narrative"
	"crowdedhouse/internal/store"
)

type PromptInput struct {
	Channel string `json:"channel" jsonschema:"channel the story is told in"`
	Author  string `json:"author" jsonschema:"player taking the turn"`
	Text    string `json:"text" jsonschema:"what the player does or says"`
}

type ContinueInput struct {
	Channel string `json:"channel" jsonschema:"channel the story is told in"`
	Author  string `json:"author,omitempty" jsonschema:"player asking the story to go on"`
}

type AskInput struct {
	Channel   string `json:"channel" jsonschema:"channel the story is told in"`
	Asker     string `json:"asker" jsonschema:"player asking the question"`
	Character string `json:"character" jsonschema:"character who answers"`
	Question  string `json:"question" jsonschema:"the question"`
}

type AutoGenerateInput struct {
	Channel string `json:"channel" jsonschema:"channel the story is told in"`
	Author  string `json:"author,omitempty" jsonschema:"player requesting new characters"`
}

type ListCharactersInput struct {
	Channel string `json:"channel" jsonschema:"channel the story is told in"`
}

type StorySoFarInput struct {
	Channel string `json:"channel" jsonschema:"channel the story is told in"`
	Limit   int    `json:"limit,omitempty" jsonschema:"keep only the most recent memories"`
}

type SpawnInput struct {
	Channel   string `json:"channel" jsonschema:"channel the story is told in"`
	Name      string `json:"name" jsonschema:"character name"`
	Traits    string `json:"traits,omitempty" jsonschema:"personality traits"`
	Backstory string `json:"backstory,omitempty" jsonschema:"character backstory"`
}

type NarrationOutput struct {
	Text       string           `json:"text"`
	MemoryID   int64            `json:"memory_id,omitempty"`
	Introduced *CharacterOutput `json:"introduced,omitempty"`
	Fragments  []string         `json:"fragments"`
}

type CharacterOutput struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Channel   string         `json:"channel"`
	NPC       bool           `json:"npc"`
	CreatedAt string         `json:"created_at"`
	State     map[string]any `json:"state"`
}

type CharactersOutput struct {
	Text       string            `json:"text,omitempty"`
	Characters []CharacterOutput `json:"characters"`
	Skipped    []string          `json:"skipped,omitempty"`
}

type MemoryOutput struct {
	ID        int64  `json:"id"`
	Channel   string `json:"channel"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
	Related   *int64 `json:"related_character_id,omitempty"`
	SpokenBy  *int64 `json:"spoken_by_character_id,omitempty"`
}

type StorySoFarOutput struct {
	Memories []MemoryOutput `json:"memories"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "prompt",
		Description: "Take a player's turn and narrate what happens next",
	}, s.handlePrompt)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "continue_story",
		Description: "Advance the story without a player turn",
	}, s.handleContinue)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "ask_character",
		Description: "Have a character answer a question in their own voice",
	}, s.handleAsk)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "autogenerate_characters",
		Description: "Invent new non-player characters that fit the story",
	}, s.handleAutoGenerate)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_characters",
		Description: "List the characters visible in a channel",
	}, s.handleListCharacters)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "story_so_far",
		Description: "Read the story visible in a channel, oldest first",
	}, s.handleStorySoFar)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "spawn_character",
		Description: "Add a named non-player character to a channel",
	}, s.handleSpawn)
}

func (s *Server) handlePrompt(ctx context.Context, req *sdk.CallToolRequest, input PromptInput) (*sdk.CallToolResult, NarrationOutput, error) {
	if input.Channel == "" {
		return nil, NarrationOutput{}, fmt.Errorf("channel is required")
	}
	res, err := s.narrator.Prompt(ctx, narrative.PromptInput{
		ChannelID: input.Channel,
		Author:    input.Author,
		Text:      input.Text,
	})
	if err != nil {
		return nil, NarrationOutput{}, s.toolError("prompt", err)
	}
	out, err := narrationOutput(res)
	return nil, out, err
}

func (s *Server) handleContinue(ctx context.Context, req *sdk.CallToolRequest, input ContinueInput) (*sdk.CallToolResult, NarrationOutput, error) {
	if input.Channel == "" {
		return nil, NarrationOutput{}, fmt.Errorf("channel is required")
	}
	res, err := s.narrator.Continue(ctx, input.Channel, "", input.Author)
	if err != nil {
		return nil, NarrationOutput{}, s.toolError("continue_story", err)
	}
	out, err := narrationOutput(res)
	return nil, out, err
}

func (s *Server) handleAsk(ctx context.Context, req *sdk.CallToolRequest, input AskInput) (*sdk.CallToolResult, NarrationOutput, error) {
	if input.Channel == "" {
		return nil, NarrationOutput{}, fmt.Errorf("channel is required")
	}
	if input.Character == "" {
		return nil, NarrationOutput{}, fmt.Errorf("character is required")
	}
	res, err := s.narrator.Ask(ctx, narrative.AskInput{
		ChannelID: input.Channel,
		Asker:     input.Asker,
		Character: input.Character,
		Question:  input.Question,
	})
	if err != nil {
		return nil, NarrationOutput{}, s.toolError("ask_character", err)
	}
	out, err := narrationOutput(res)
	return nil, out, err
}

func (s *Server) handleAutoGenerate(ctx context.Context, req *sdk.CallToolRequest, input AutoGenerateInput) (*sdk.CallToolResult, CharactersOutput, error) {
	if input.Channel == "" {
		return nil, CharactersOutput{}, fmt.Errorf("channel is required")
	}
	res, err := s.narrator.AutoGenerate(ctx, input.Channel, "", input.Author)
	if err != nil {
		return nil, CharactersOutput{}, s.toolError("autogenerate_characters", err)
	}
	out, err := charactersOutput(res.Text, res.Characters)
	out.Skipped = res.Skipped
	return nil, out, err
}

func (s *Server) handleListCharacters(ctx context.Context, req *sdk.CallToolRequest, input ListCharactersInput) (*sdk.CallToolResult, CharactersOutput, error) {
	if input.Channel == "" {
		return nil, CharactersOutput{}, fmt.Errorf("channel is required")
	}
	characters, err := s.narrator.Characters(ctx, input.Channel)
	if err != nil {
		return nil, CharactersOutput{}, s.toolError("list_characters", err)
	}
	out, err := charactersOutput("", characters)
	return nil, out, err
}

func (s *Server) handleStorySoFar(ctx context.Context, req *sdk.CallToolRequest, input StorySoFarInput) (*sdk.CallToolResult, StorySoFarOutput, error) {
	if input.Channel == "" {
		return nil, StorySoFarOutput{}, fmt.Errorf("channel is required")
	}
	if input.Limit < 0 {
		return nil, StorySoFarOutput{}, fmt.Errorf("limit must not be negative")
	}
	memories, err := s.narrator.History(ctx, input.Channel, input.Limit)
	if err != nil {
		return nil, StorySoFarOutput{}, s.toolError("story_so_far", err)
	}

	output := make([]MemoryOutput, 0, len(memories))
	for _, m := range memories {
		output = append(output, memoryOutputFromStore(m))
	}
	return nil, StorySoFarOutput{Memories: output}, nil
}

func (s *Server) handleSpawn(ctx context.Context, req *sdk.CallToolRequest, input SpawnInput) (*sdk.CallToolResult, CharactersOutput, error) {
	if input.Channel == "" {
		return nil, CharactersOutput{}, fmt.Errorf("channel is required")
	}
	if input.Name == "" {
		return nil, CharactersOutput{}, fmt.Errorf("name is required")
	}
	res, err := s.narrator.Spawn(ctx, narrative.SpawnInput{
		ChannelID: input.Channel,
		Name:      input.Name,
		Traits:    input.Traits,
		Backstory: input.Backstory,
	})
	if err != nil {
		return nil, CharactersOutput{}, s.toolError("spawn_character", err)
	}
	out, err := charactersOutput(res.Text, res.Characters)
	return nil, out, err
}

// toolError keeps internal detail in the log and hands the caller the same
// wording players would see.
func (s *Server) toolError(tool string, err error) error {
	s.logger.Warn("tool call failed", zap.String("tool", tool), zap.Error(err))
	return errors.New(narrative.Describe(err))
}

func narrationOutput(res *narrative.Result) (NarrationOutput, error) {
	out := NarrationOutput{
		Text:      res.Text,
		MemoryID:  res.MemoryID,
		Fragments: append([]string{}, res.Fragments...),
	}
	if res.Introduced != nil {
		c, err := characterOutputFromStore(*res.Introduced)
		if err != nil {
			return NarrationOutput{}, err
		}
		out.Introduced = &c
	}
	return out, nil
}

func charactersOutput(text string, characters []store.Character) (CharactersOutput, error) {
	out := CharactersOutput{
		Text:       text,
		Characters: make([]CharacterOutput, 0, len(characters)),
	}
	for _, c := range characters {
		co, err := characterOutputFromStore(c)
		if err != nil {
			return CharactersOutput{}, err
		}
		out.Characters = append(out.Characters, co)
	}
	return out, nil
}

func characterOutputFromStore(c store.Character) (CharacterOutput, error) {
	raw, err := json.Marshal(c.State)
	if err != nil {
		return CharacterOutput{}, fmt.Errorf("encoding state of %q: %w", c.Name, err)
	}
	state := map[string]any{}
	if err := json.Unmarshal(raw, &state); err != nil {
		return CharacterOutput{}, fmt.Errorf("decoding state of %q: %w", c.Name, err)
	}
	return CharacterOutput{
		ID:        c.ID,
		Name:      c.Name,
		Channel:   c.ChannelID,
		NPC:       c.IsNPC,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
		State:     state,
	}, nil
}

func memoryOutputFromStore(m store.Memory) MemoryOutput {
	return MemoryOutput{
		ID:        m.ID,
		Channel:   m.ChannelID,
		Text:      m.Text,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
		Related:   m.RelatedCharacterID,
		SpokenBy:  m.SpokenByCharacterID,
	}
}
