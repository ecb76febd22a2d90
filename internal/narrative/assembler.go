package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crowdedhouse/internal/completion"
	"crowdedhouse/internal/store"
)

const maxNameRunes = 64

// StoryContext is everything read from the store for one turn.
type StoryContext struct {
	ChannelID string
	// ParentID is empty when the channel is not a fork.
	ParentID   string
	Directive  string
	Memories   []store.Memory
	Characters []store.Character
}

// ChannelIDs is the active channel set: the channel and its parent.
func (c StoryContext) ChannelIDs() []string {
	return activeChannels(c.ChannelID, c.ParentID)
}

// Story joins the memories, oldest first.
func (c StoryContext) Story() string {
	texts := make([]string, len(c.Memories))
	for i, m := range c.Memories {
		texts[i] = m.Text
	}
	return strings.Join(texts, " ")
}

// Find looks a character up by case-folded name.
func (c StoryContext) Find(name string) (store.Character, bool) {
	key := store.NormalizeName(name)
	for _, ch := range c.Characters {
		if store.NormalizeName(ch.Name) == key {
			return ch, true
		}
	}
	return store.Character{}, false
}

func activeChannels(channelID, parentID string) []string {
	if parentID == "" || parentID == channelID {
		return []string{channelID}
	}
	return []string{channelID, parentID}
}

type Assembler struct {
	store    store.Queries
	settings Settings
	logger   *zap.Logger
}

func NewAssembler(q store.Queries, settings Settings, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{store: q, settings: settings.withDefaults(), logger: logger}
}

// Gather reads the directive, parent, memories and roster for channelID.
// A non-nil relatedTo narrows memories to those about that character plus
// unattributed ones.
func (a *Assembler) Gather(ctx context.Context, channelID string, relatedTo *int64) (StoryContext, error) {
	sc := StoryContext{ChannelID: channelID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		directive, err := a.directive(gctx, channelID)
		sc.Directive = directive
		return err
	})
	g.Go(func() error {
		sc.ParentID = a.parent(gctx, channelID)
		ids := sc.ChannelIDs()

		inner, ictx := errgroup.WithContext(gctx)
		inner.Go(func() error {
			filter := store.MemoryFilter{ChannelIDs: ids, Limit: a.settings.HistoryLimit}
			if relatedTo != nil {
				filter.RelatedCharacterID = relatedTo
				filter.IncludeGeneral = true
			}
			memories, err := a.store.ListMemories(ictx, filter)
			if err != nil {
				return fmt.Errorf("reading story so far: %w", err)
			}
			sc.Memories = store.Chronological(memories)
			return nil
		})
		inner.Go(func() error {
			characters, err := a.store.ListCharacters(ictx, ids)
			if err != nil {
				return fmt.Errorf("reading characters: %w", err)
			}
			sc.Characters = characters
			return nil
		})
		return inner.Wait()
	})

	if err := g.Wait(); err != nil {
		return StoryContext{}, err
	}
	return sc, nil
}

func (a *Assembler) directive(ctx context.Context, channelID string) (string, error) {
	directive, err := a.store.GetDirective(ctx, channelID)
	if errors.Is(err, store.ErrNotFound) {
		return a.settings.DefaultDirective, nil
	}
	if err != nil {
		return "", fmt.Errorf("reading directive: %w", err)
	}
	return directive, nil
}

func (a *Assembler) parent(ctx context.Context, channelID string) string {
	parent, err := a.store.GetParentChannel(ctx, channelID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			a.logger.Warn("parent channel lookup failed, continuing without parent",
				zap.String("channel", channelID), zap.Error(err))
		}
		return ""
	}
	return parent
}

// Turn describes the final user message and what surrounds it.
type Turn struct {
	// Instruction replaces the narration rules when set.
	Instruction string
	// Roster overrides the context's characters when non-nil.
	Roster []store.Character
	// Introduce names an author joining the story with this turn.
	Introduce string
	Prompt    string
	// Speaker is attached to the prompt after sanitizing.
	Speaker string
}

// Segments orders the context as rules, directive, turn note, roster,
// story, optional introduction, prompt.
func (a *Assembler) Segments(sc StoryContext, turn Turn) ([]completion.Segment, error) {
	roster := sc.Characters
	if turn.Roster != nil {
		roster = turn.Roster
	}
	rosterJSON, err := renderRoster(roster)
	if err != nil {
		return nil, err
	}

	instruction := a.settings.Rules
	if turn.Instruction != "" {
		instruction = turn.Instruction
	}

	var segments []completion.Segment
	if instruction != "" {
		segments = append(segments, completion.Segment{Role: completion.RoleSystem, Content: instruction})
	}
	segments = append(segments, completion.Segment{Role: completion.RoleSystem, Content: sc.Directive})
	if a.settings.TurnNote != "" {
		segments = append(segments, completion.Segment{Role: completion.RoleSystem, Content: a.settings.TurnNote})
	}
	segments = append(segments,
		completion.Segment{Role: completion.RoleAssistant, Content: rosterPrefix + rosterJSON},
		completion.Segment{Role: completion.RoleAssistant, Content: storyPrefix + sc.Story()},
	)
	if turn.Introduce != "" {
		segments = append(segments, completion.Segment{Role: completion.RoleSystem, Content: introductionNote(turn.Introduce)})
	}
	segments = append(segments, completion.Segment{
		Role:    completion.RoleUser,
		Content: turn.Prompt,
		Name:    SanitizeName(turn.Speaker),
	})
	return segments, nil
}

type rosterEntry struct {
	Name  string               `json:"name"`
	NPC   bool                 `json:"npc"`
	State store.CharacterState `json:"state"`
}

func renderRoster(characters []store.Character) (string, error) {
	entries := make([]rosterEntry, len(characters))
	for i, c := range characters {
		entries[i] = rosterEntry{Name: c.Name, NPC: c.IsNPC, State: c.State}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("rendering roster: %w", err)
	}
	return string(data), nil
}

// SanitizeName turns a display name into a message author name: spaces
// become underscores, anything outside [A-Za-z0-9_-] is dropped and the
// result is capped at 64 characters.
func SanitizeName(name string) string {
	var b strings.Builder
	n := 0
	for _, r := range strings.TrimSpace(name) {
		if n == maxNameRunes {
			break
		}
		switch {
		case r == ' ':
			r = '_'
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			continue
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}
