package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"crowdedhouse/internal/store"
)

type AskInput struct {
	ChannelID string
	Target    string
	// Asker is the player asking; they get a character if they have none.
	Asker     string
	Character string
	Question  string
}

// Ask has a character answer a question in their own voice. The question,
// not the answer, becomes a memory about that character.
func (e *Engine) Ask(ctx context.Context, in AskInput) (*Result, error) {
	switch {
	case strings.TrimSpace(in.ChannelID) == "":
		return nil, fmt.Errorf("%w: channel is required", ErrInvalidInput)
	case strings.TrimSpace(in.Asker) == "":
		return nil, fmt.Errorf("%w: asker is required", ErrInvalidInput)
	case strings.TrimSpace(in.Character) == "":
		return nil, fmt.Errorf("%w: character is required", ErrInvalidInput)
	case strings.TrimSpace(in.Question) == "":
		return nil, fmt.Errorf("%w: question is required", ErrInvalidInput)
	}

	log := e.flowLogger("ask", in.ChannelID, in.Asker).With(zap.String("character", in.Character))
	started := time.Now()

	release, err := e.locks.acquire(ctx, in.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("waiting for channel: %w", err)
	}
	defer release()

	asked, err := e.findCharacter(ctx, in.ChannelID, in.Character)
	if err != nil {
		log.Info("character lookup failed", zap.Error(err))
		return nil, err
	}

	sc, err := e.assembler.Gather(ctx, in.ChannelID, &asked.ID)
	if err != nil {
		log.Error("assembling context failed", zap.Error(err))
		return nil, err
	}

	stateJSON, err := store.EncodeState(asked.State)
	if err != nil {
		return nil, err
	}
	others := make([]store.Character, 0, len(sc.Characters))
	for _, c := range sc.Characters {
		if c.ID != asked.ID {
			others = append(others, c)
		}
	}
	asker, askerKnown := sc.Find(in.Asker)

	answer, err := e.generate(ctx, sc, Turn{
		Instruction: characterVoice(asked.Name, string(stateJSON)),
		Roster:      others,
		Prompt:      in.Question,
		Speaker:     in.Asker,
	}, in.Asker)
	if err != nil {
		log.Warn("generation failed", zap.Error(err))
		return nil, err
	}

	res := &Result{Text: answer}
	err = e.store.WithTx(ctx, func(q store.Queries) error {
		if !askerKnown {
			c, created, err := q.EnsureCharacter(ctx, store.CharacterInput{Name: in.Asker, ChannelID: in.ChannelID})
			if err != nil {
				return fmt.Errorf("recording asker %q: %w", in.Asker, err)
			}
			if created {
				res.Introduced = &c
			}
			asker = c
		}

		id, err := q.CreateMemory(ctx, store.MemoryInput{
			ChannelID:           in.ChannelID,
			Text:                askMemory(asker.Name, asked.Name, in.Question),
			RelatedCharacterID:  &asked.ID,
			SpokenByCharacterID: &asker.ID,
		})
		if err != nil {
			return err
		}
		res.MemoryID = id
		return nil
	})
	if err != nil {
		log.Error("persisting question failed", zap.Error(err))
		return nil, fmt.Errorf("saving question: %w", err)
	}

	err = e.deliver(ctx, log, deliveryTarget(in.Target, in.ChannelID), answer, res)
	log.Info("flow finished",
		zap.Int64("memory_id", res.MemoryID),
		zap.Int("fragments", len(res.Fragments)),
		zap.Int("delivered", res.Delivered),
		zap.Duration("elapsed", time.Since(started)),
		zap.Bool("complete", err == nil),
	)
	return res, err
}

// findCharacter looks in the channel first, then in its parent timeline.
func (e *Engine) findCharacter(ctx context.Context, channelID, name string) (store.Character, error) {
	c, err := e.store.GetCharacterByName(ctx, name, channelID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Character{}, err
	}

	parent := e.assembler.parent(ctx, channelID)
	if parent == "" {
		return store.Character{}, fmt.Errorf("%w: %q", ErrCharacterNotFound, name)
	}
	c, err = e.store.GetCharacterByName(ctx, name, parent)
	if errors.Is(err, store.ErrNotFound) {
		return store.Character{}, fmt.Errorf("%w: %q", ErrCharacterNotFound, name)
	}
	return c, err
}
