package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

const (
	StateKeyTraits        = "traits"
	StateKeyBackstory     = "backstory"
	StateKeyRelationships = "relationships"
)

// CharacterState holds the well-known character attributes plus any other
// attribute written by a mold or generated by the model. Extra keys never
// shadow the typed fields.
type CharacterState struct {
	Traits        string
	Backstory     string
	Relationships map[string]string
	Extra         map[string]json.RawMessage
}

func (s CharacterState) IsZero() bool {
	return s.Traits == "" && s.Backstory == "" && len(s.Relationships) == 0 && len(s.Extra) == 0
}

// Keys returns every attribute name present in the state, sorted.
func (s CharacterState) Keys() []string {
	keys := make([]string, 0, len(s.Extra)+3)
	if s.Traits != "" {
		keys = append(keys, StateKeyTraits)
	}
	if s.Backstory != "" {
		keys = append(keys, StateKeyBackstory)
	}
	if len(s.Relationships) > 0 {
		keys = append(keys, StateKeyRelationships)
	}
	for key := range s.Extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s CharacterState) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+3)
	for key, raw := range s.Extra {
		out[key] = raw
	}
	if s.Traits != "" {
		out[StateKeyTraits] = s.Traits
	}
	if s.Backstory != "" {
		out[StateKeyBackstory] = s.Backstory
	}
	if len(s.Relationships) > 0 {
		out[StateKeyRelationships] = s.Relationships
	}
	return json.Marshal(out)
}

func (s *CharacterState) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding character state: %w", err)
	}
	*s = CharacterState{}
	for key, value := range raw {
		switch key {
		case StateKeyTraits:
			if json.Unmarshal(value, &s.Traits) == nil {
				continue
			}
		case StateKeyBackstory:
			if json.Unmarshal(value, &s.Backstory) == nil {
				continue
			}
		case StateKeyRelationships:
			if json.Unmarshal(value, &s.Relationships) == nil {
				continue
			}
		}
		// unexpected shapes for known keys are kept verbatim
		if s.Extra == nil {
			s.Extra = make(map[string]json.RawMessage)
		}
		s.Extra[key] = value
	}
	return nil
}

// EncodeState always yields a JSON object, "{}" for an empty state.
func EncodeState(s CharacterState) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling state: %w", err)
	}
	return data, nil
}

func DecodeState(data []byte) (CharacterState, error) {
	var s CharacterState
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return CharacterState{}, fmt.Errorf("unmarshaling state: %w", err)
	}
	return s, nil
}

// NormalizeName is the key character names are unique on within a channel.
// Casers are stateful, so one is built per call.
func NormalizeName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// ValidateStateKey rejects attribute names that cannot be addressed as a
// single top-level JSON path element.
func ValidateStateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("state key is required")
	}
	if strings.ContainsAny(key, "\"\\") {
		return fmt.Errorf("state key %q contains quote or backslash", key)
	}
	return nil
}
