package store

import (
	"time"
)

type CharacterInput struct {
	Name      string
	ChannelID string
	State     CharacterState
	IsNPC     bool
}

type Character struct {
	ID        int64
	Name      string
	ChannelID string
	CreatedAt time.Time
	State     CharacterState
	IsNPC     bool
}

type MemoryInput struct {
	ChannelID           string
	Text                string
	RelatedCharacterID  *int64
	SpokenByCharacterID *int64
}

type Memory struct {
	ID                  int64
	ChannelID           string
	Text                string
	CreatedAt           time.Time
	RelatedCharacterID  *int64
	SpokenByCharacterID *int64
}

// MemoryFilter selects memories across a set of channels. A nil
// RelatedCharacterID or SpokenByCharacterID disables that filter.
// IncludeGeneral widens the related filter to unattributed memories.
// Limit keeps only the most recent N rows when positive.
type MemoryFilter struct {
	ChannelIDs          []string
	RelatedCharacterID  *int64
	SpokenByCharacterID *int64
	IncludeGeneral      bool
	Limit               int
}

type Timeline struct {
	ChannelID       string
	ParentChannelID string
	CreatedAt       time.Time
}

// Chronological returns memories oldest-first. List operations return
// newest-first; the input slice is not modified.
func Chronological(memories []Memory) []Memory {
	out := make([]Memory, len(memories))
	for i, m := range memories {
		out[len(memories)-1-i] = m
	}
	return out
}
