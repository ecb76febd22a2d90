package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"crowdedhouse/internal/store"
)

type SpawnInput struct {
	ChannelID string
	Target    string
	Name      string
	Traits    string
	Backstory string
}

// Spawn adds a named NPC to the channel and announces it.
func (e *Engine) Spawn(ctx context.Context, in SpawnInput) (*CharactersResult, error) {
	if strings.TrimSpace(in.ChannelID) == "" {
		return nil, fmt.Errorf("%w: channel is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: character name is required", ErrInvalidInput)
	}
	log := e.flowLogger("spawn", in.ChannelID, "").With(zap.String("character", in.Name))

	release, err := e.locks.acquire(ctx, in.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("waiting for channel: %w", err)
	}
	defer release()

	c, err := e.store.CreateCharacter(ctx, store.CharacterInput{
		Name:      in.Name,
		ChannelID: in.ChannelID,
		State:     store.CharacterState{Traits: in.Traits, Backstory: in.Backstory},
		IsNPC:     true,
	})
	if errors.Is(err, store.ErrConflict) {
		return nil, fmt.Errorf("%w: %q", ErrCharacterExists, in.Name)
	}
	if err != nil {
		log.Error("creating character failed", zap.Error(err))
		return nil, fmt.Errorf("spawning character: %w", err)
	}

	res := &CharactersResult{Characters: []store.Character{c}}
	res.Text = spawnSummary(c.Name)
	err = e.deliver(ctx, log, deliveryTarget(in.Target, in.ChannelID), res.Text, &res.Result)
	log.Info("character spawned", zap.Int64("character_id", c.ID), zap.Bool("complete", err == nil))
	return res, err
}

// Mold sets one attribute of a character's state, replacing any previous
// value under key.
func (e *Engine) Mold(ctx context.Context, channelID, name, key string, value any) (store.Character, error) {
	if strings.TrimSpace(channelID) == "" || strings.TrimSpace(name) == "" {
		return store.Character{}, fmt.Errorf("%w: channel and character are required", ErrInvalidInput)
	}
	if err := store.ValidateStateKey(key); err != nil {
		return store.Character{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	release, err := e.locks.acquire(ctx, channelID)
	if err != nil {
		return store.Character{}, fmt.Errorf("waiting for channel: %w", err)
	}
	defer release()

	c, err := e.findCharacter(ctx, channelID, name)
	if err != nil {
		return store.Character{}, err
	}
	if err := e.store.AppendCharacterState(ctx, c.ID, key, value); err != nil {
		return store.Character{}, fmt.Errorf("molding %q: %w", c.Name, err)
	}
	updated, err := e.store.GetCharacter(ctx, c.ID)
	if err != nil {
		return store.Character{}, fmt.Errorf("molding %q: %w", c.Name, err)
	}

	e.logger.Info("character molded",
		zap.String("channel", channelID), zap.Int64("character_id", c.ID), zap.String("key", key))
	return updated, nil
}

// Fork makes channelID a timeline branching from parentID. The child sees
// the parent's characters and memories; the parent never sees the child's.
func (e *Engine) Fork(ctx context.Context, channelID, parentID string) error {
	channelID = strings.TrimSpace(channelID)
	parentID = strings.TrimSpace(parentID)
	if channelID == "" || parentID == "" {
		return fmt.Errorf("%w: channel and parent are required", ErrInvalidInput)
	}
	if channelID == parentID {
		return fmt.Errorf("%w: a channel cannot fork from itself", ErrInvalidTimeline)
	}

	release, err := e.locks.acquire(ctx, channelID)
	if err != nil {
		return fmt.Errorf("waiting for channel: %w", err)
	}
	defer release()

	grandparent, err := e.store.GetParentChannel(ctx, parentID)
	switch {
	case err == nil && grandparent == channelID:
		return fmt.Errorf("%w: %s already forks from %s", ErrInvalidTimeline, parentID, channelID)
	case err == nil:
		e.logger.Warn("forking from a fork, only one level of history is inherited",
			zap.String("channel", channelID), zap.String("parent", parentID), zap.String("grandparent", grandparent))
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("checking parent timeline: %w", err)
	}

	if err := e.store.CreateTimeline(ctx, channelID, parentID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("%w: %s is already a fork", ErrInvalidTimeline, channelID)
		}
		return fmt.Errorf("forking timeline: %w", err)
	}

	e.logger.Info("timeline forked", zap.String("channel", channelID), zap.String("parent", parentID))
	return nil
}

// SetDirective appends text to the channel's directive.
func (e *Engine) SetDirective(ctx context.Context, channelID, text string) error {
	if strings.TrimSpace(channelID) == "" || strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: channel and directive text are required", ErrInvalidInput)
	}

	release, err := e.locks.acquire(ctx, channelID)
	if err != nil {
		return fmt.Errorf("waiting for channel: %w", err)
	}
	defer release()

	if err := e.store.CreateDirective(ctx, channelID, text); err != nil {
		return fmt.Errorf("setting directive: %w", err)
	}
	return nil
}

// Characters lists the characters visible from channelID.
func (e *Engine) Characters(ctx context.Context, channelID string) ([]store.Character, error) {
	ids := activeChannels(channelID, e.assembler.parent(ctx, channelID))
	characters, err := e.store.ListCharacters(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	return characters, nil
}

// History returns the story visible from channelID, oldest first. A
// positive limit keeps only the most recent memories.
func (e *Engine) History(ctx context.Context, channelID string, limit int) ([]store.Memory, error) {
	ids := activeChannels(channelID, e.assembler.parent(ctx, channelID))
	memories, err := e.store.ListMemories(ctx, store.MemoryFilter{ChannelIDs: ids, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return store.Chronological(memories), nil
}
