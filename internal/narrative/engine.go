// Package narrative runs the story flows: it reads a channel's story from
// the store, asks the completion service to continue it, saves the result
// and delivers it in transport-sized fragments.
package narrative

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crowdedhouse/internal/completion"
	"crowdedhouse/internal/fragment"
	"crowdedhouse/internal/store"
	"crowdedhouse/internal/transport"
)

type Engine struct {
	store     store.Store
	llm       completion.Client
	sender    transport.Sender
	settings  Settings
	assembler *Assembler
	locks     *channelLocks
	logger    *zap.Logger
}

func New(s store.Store, llm completion.Client, sender transport.Sender, settings Settings, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = transport.Discard
	}
	settings = settings.withDefaults()
	return &Engine{
		store:     s,
		llm:       llm,
		sender:    sender,
		settings:  settings,
		assembler: NewAssembler(s, settings, logger),
		locks:     newChannelLocks(),
		logger:    logger,
	}
}

// Result reports what a generating flow produced. Delivered counts the
// fragments sent before the first failure.
type Result struct {
	Text       string
	MemoryID   int64
	Introduced *store.Character
	Fragments  []string
	Delivered  int
}

type PromptInput struct {
	ChannelID string
	// Target is where fragments are sent; defaults to ChannelID.
	Target string
	Author string
	Text   string
}

// Prompt narrates the author's turn. An author with no character in the
// story is introduced and gets one.
func (e *Engine) Prompt(ctx context.Context, in PromptInput) (*Result, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, fmt.Errorf("%w: prompt text is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Author) == "" {
		return nil, fmt.Errorf("%w: author is required", ErrInvalidInput)
	}
	return e.narrate(ctx, "prompt", in, true)
}

// Continue advances the story without a player turn.
func (e *Engine) Continue(ctx context.Context, channelID, target, author string) (*Result, error) {
	in := PromptInput{ChannelID: channelID, Target: target, Author: author, Text: e.settings.ContinuePrompt}
	return e.narrate(ctx, "continue", in, false)
}

func (e *Engine) narrate(ctx context.Context, flow string, in PromptInput, playerTurn bool) (*Result, error) {
	if strings.TrimSpace(in.ChannelID) == "" {
		return nil, fmt.Errorf("%w: channel is required", ErrInvalidInput)
	}
	log := e.flowLogger(flow, in.ChannelID, in.Author)
	started := time.Now()

	release, err := e.locks.acquire(ctx, in.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("waiting for channel: %w", err)
	}
	defer release()

	sc, err := e.assembler.Gather(ctx, in.ChannelID, nil)
	if err != nil {
		log.Error("assembling context failed", zap.Error(err))
		return nil, err
	}

	turn := Turn{Prompt: in.Text}
	introduce := false
	if playerTurn {
		turn.Speaker = in.Author
		if _, known := sc.Find(in.Author); !known {
			introduce = true
			turn.Introduce = in.Author
		}
	}

	text, err := e.generate(ctx, sc, turn, in.Author)
	if err != nil {
		log.Warn("generation failed", zap.Error(err))
		return nil, err
	}

	res := &Result{Text: text}
	err = e.store.WithTx(ctx, func(q store.Queries) error {
		id, err := q.CreateMemory(ctx, store.MemoryInput{ChannelID: in.ChannelID, Text: text})
		if err != nil {
			return err
		}
		res.MemoryID = id

		if introduce {
			c, created, err := q.EnsureCharacter(ctx, store.CharacterInput{Name: in.Author, ChannelID: in.ChannelID})
			if err != nil {
				return fmt.Errorf("introducing %q: %w", in.Author, err)
			}
			if created {
				res.Introduced = &c
			}
		}
		return nil
	})
	if err != nil {
		log.Error("persisting story failed", zap.Error(err))
		return nil, fmt.Errorf("saving story: %w", err)
	}
	if res.Introduced != nil {
		log.Info("introduced character", zap.Int64("character_id", res.Introduced.ID))
	}

	err = e.deliver(ctx, log, deliveryTarget(in.Target, in.ChannelID), text, res)
	log.Info("flow finished",
		zap.Int64("memory_id", res.MemoryID),
		zap.Int("fragments", len(res.Fragments)),
		zap.Int("delivered", res.Delivered),
		zap.Duration("elapsed", time.Since(started)),
		zap.Bool("complete", err == nil),
	)
	return res, err
}

func (e *Engine) generate(ctx context.Context, sc StoryContext, turn Turn, user string) (string, error) {
	segments, err := e.assembler.Segments(sc, turn)
	if err != nil {
		return "", err
	}
	text, err := e.llm.Complete(ctx, completion.Request{
		Model:       e.settings.Model,
		Temperature: e.settings.Temperature,
		MaxTokens:   e.settings.MaxTokens,
		User:        user,
		Segments:    segments,
	})
	if err != nil {
		return "", fmt.Errorf("generating: %w", err)
	}
	return text, nil
}

// deliver sends text in order and stops at the first failed fragment.
func (e *Engine) deliver(ctx context.Context, log *zap.Logger, to, text string, res *Result) error {
	res.Fragments = fragment.Split(text, e.settings.MessageLimit)
	for i, f := range res.Fragments {
		if _, err := e.sender.Send(ctx, to, f); err != nil {
			log.Warn("delivering fragment failed",
				zap.Int("fragment", i),
				zap.Int("length", len([]rune(f))),
				zap.Error(err))
			return fmt.Errorf("%w: fragment %d of %d: %w", ErrDelivery, i+1, len(res.Fragments), err)
		}
		res.Delivered++
	}
	return nil
}

func (e *Engine) flowLogger(flow, channelID, author string) *zap.Logger {
	return e.logger.With(
		zap.String("request_id", uuid.NewString()),
		zap.String("flow", flow),
		zap.String("channel", channelID),
		zap.String("author", author),
	)
}

func deliveryTarget(to, channelID string) string {
	if to != "" {
		return to
	}
	return channelID
}
