package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrAmbiguous = errors.New("ambiguous result")
	ErrConflict  = errors.New("conflict")
)

// Queries is the set of story operations available both on a Store and
// inside a transaction scoped by Store.WithTx.
type Queries interface {
	CreateCharacter(ctx context.Context, in CharacterInput) (Character, error)
	EnsureCharacter(ctx context.Context, in CharacterInput) (Character, bool, error)
	GetCharacter(ctx context.Context, id int64) (Character, error)
	GetCharacterByName(ctx context.Context, name, channelID string) (Character, error)
	ListCharacters(ctx context.Context, channelIDs []string) ([]Character, error)
	AppendCharacterState(ctx context.Context, id int64, key string, value any) error

	CreateMemory(ctx context.Context, in MemoryInput) (int64, error)
	ListMemories(ctx context.Context, filter MemoryFilter) ([]Memory, error)
	ListDanglingMemories(ctx context.Context) ([]Memory, error)

	CreateDirective(ctx context.Context, channelID, text string) error
	GetDirective(ctx context.Context, channelID string) (string, error)

	CreateTimeline(ctx context.Context, channelID, parentChannelID string) error
	GetParentChannel(ctx context.Context, channelID string) (string, error)
	ListTimelines(ctx context.Context) ([]Timeline, error)
}

type Store interface {
	Queries

	Close(ctx context.Context) error
	EnsureSchema(ctx context.Context) error

	// WithTx runs fn inside a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(q Queries) error) error
}
