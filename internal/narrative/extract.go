package narrative

import (
	"encoding/json"
	"fmt"
	"strings"

	"crowdedhouse/internal/store"
)

// GeneratedCharacter is one entry of an AutoGenerate response. Every key
// other than name is kept as character state.
type GeneratedCharacter struct {
	Name       string
	Attributes store.CharacterState
}

func (g GeneratedCharacter) State() store.CharacterState {
	return g.Attributes
}

// ExtractCharacters decodes the JSON array spanning the first '[' to the
// last ']' of text. Each entry must be an object with a string name; any
// attribute shape is accepted.
func ExtractCharacters(text string) ([]GeneratedCharacter, error) {
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON array in response", ErrParse)
	}

	var entries []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text[start:end+1]), &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	characters := make([]GeneratedCharacter, 0, len(entries))
	for i, entry := range entries {
		c, err := decodeGenerated(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrParse, i, err)
		}
		characters = append(characters, c)
	}
	return characters, nil
}

func decodeGenerated(entry map[string]json.RawMessage) (GeneratedCharacter, error) {
	if entry == nil {
		return GeneratedCharacter{}, fmt.Errorf("entry is not an object")
	}
	rawName, ok := entry["name"]
	if !ok {
		return GeneratedCharacter{}, fmt.Errorf("missing name")
	}
	var name string
	if err := json.Unmarshal(rawName, &name); err != nil {
		return GeneratedCharacter{}, fmt.Errorf("name must be a string, got %s", rawName)
	}

	attrs := make(map[string]json.RawMessage, len(entry))
	for key, value := range entry {
		if key == "name" {
			continue
		}
		attrs[key] = value
	}
	// models often list traits; the state keeps them as one line
	for _, key := range []string{store.StateKeyTraits, store.StateKeyBackstory} {
		if joined, ok := joinedList(attrs[key]); ok {
			attrs[key] = joined
		}
	}

	data, err := json.Marshal(attrs)
	if err != nil {
		return GeneratedCharacter{}, err
	}
	state, err := store.DecodeState(data)
	if err != nil {
		return GeneratedCharacter{}, err
	}
	return GeneratedCharacter{Name: name, Attributes: state}, nil
}

func joinedList(raw json.RawMessage) (json.RawMessage, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false
	}
	joined, err := json.Marshal(strings.Join(list, ", "))
	if err != nil {
		return nil, false
	}
	return joined, true
}
