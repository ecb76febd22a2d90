package narrative

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"crowdedhouse/internal/store"
)

// CharactersResult is a Result for flows that create characters.
type CharactersResult struct {
	Result
	Characters []store.Character
	// Skipped lists generated names that were already known or repeated.
	Skipped []string
}

// AutoGenerate asks the narrator to invent NPCs for the story and adds the
// ones not already in it. Either every new character is saved or none is.
func (e *Engine) AutoGenerate(ctx context.Context, channelID, target, author string) (*CharactersResult, error) {
	if strings.TrimSpace(channelID) == "" {
		return nil, fmt.Errorf("%w: channel is required", ErrInvalidInput)
	}
	log := e.flowLogger("autogen", channelID, author)
	started := time.Now()

	release, err := e.locks.acquire(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("waiting for channel: %w", err)
	}
	defer release()

	sc, err := e.assembler.Gather(ctx, channelID, nil)
	if err != nil {
		log.Error("assembling context failed", zap.Error(err))
		return nil, err
	}

	known := make([]string, len(sc.Characters))
	for i, c := range sc.Characters {
		known[i] = c.Name
	}

	text, err := e.generate(ctx, sc, Turn{Prompt: autogenInstruction(known), Speaker: author}, author)
	if err != nil {
		log.Warn("generation failed", zap.Error(err))
		return nil, err
	}

	generated, err := ExtractCharacters(text)
	if err != nil {
		log.Warn("extracting characters failed", zap.Error(err), zap.Int("response_length", len(text)))
		return nil, err
	}

	res := &CharactersResult{}
	err = e.store.WithTx(ctx, func(q store.Queries) error {
		res.Characters = nil
		res.Skipped = nil

		seen := make(map[string]struct{}, len(generated))
		for _, c := range sc.Characters {
			seen[store.NormalizeName(c.Name)] = struct{}{}
		}
		for _, g := range generated {
			name := strings.TrimSpace(g.Name)
			if name == "" {
				continue
			}
			key := store.NormalizeName(name)
			if _, dup := seen[key]; dup {
				res.Skipped = append(res.Skipped, name)
				continue
			}
			seen[key] = struct{}{}

			c, created, err := q.EnsureCharacter(ctx, store.CharacterInput{
				Name:      name,
				ChannelID: channelID,
				State:     g.State(),
				IsNPC:     true,
			})
			if err != nil {
				return fmt.Errorf("creating %q: %w", name, err)
			}
			if !created {
				res.Skipped = append(res.Skipped, name)
				continue
			}
			res.Characters = append(res.Characters, c)
		}
		return nil
	})
	if err != nil {
		log.Error("persisting characters failed", zap.Error(err))
		return nil, fmt.Errorf("saving characters: %w", err)
	}

	names := make([]string, len(res.Characters))
	for i, c := range res.Characters {
		names[i] = c.Name
	}
	res.Text = autogenSummary(names)

	err = e.deliver(ctx, log, deliveryTarget(target, channelID), res.Text, &res.Result)
	log.Info("flow finished",
		zap.Int("created", len(res.Characters)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Duration("elapsed", time.Since(started)),
		zap.Bool("complete", err == nil),
	)
	return res, err
}
