// Package parser reads story sheets: markdown files whose YAML frontmatter
// names a character, directive or opening scene for a channel.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	KindCharacter = "character"
	KindNPC       = "npc"
	KindDirective = "directive"
	KindOpening   = "opening"
)

type Sheet struct {
	Frontmatter map[string]any
	Title       string
	Kind        string
	Body        string
	SourceFile  string
}

var (
	ErrNoFrontmatter = errors.New("no frontmatter found")
	ErrInvalidYAML   = errors.New("invalid YAML in frontmatter")
	ErrMissingTitle  = errors.New("frontmatter missing required 'title' field")
	ErrMissingType   = errors.New("frontmatter missing required 'type' field")
	ErrUnknownType   = errors.New("frontmatter 'type' is not a known sheet kind")
)

func ParseFile(path string) (*Sheet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	sheet, err := Parse(data)
	if err != nil {
		return nil, err
	}
	sheet.SourceFile = path
	return sheet, nil
}

func Parse(content []byte) (*Sheet, error) {
	trimmed := bytes.TrimLeft(content, "\ufeff\n\r\t ")
	trimmed = bytes.ReplaceAll(trimmed, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(trimmed, []byte("---\n")) {
		return nil, ErrNoFrontmatter
	}

	rest := trimmed[len("---\n"):]
	end := bytes.Index(rest, []byte("---\n"))
	if end == -1 {
		return nil, ErrNoFrontmatter
	}

	yamlBytes := rest[:end]
	body := strings.TrimSpace(string(rest[end+len("---\n"):]))

	var frontmatter map[string]any
	if err := yaml.Unmarshal(yamlBytes, &frontmatter); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	kind, ok := frontmatter["type"].(string)
	if !ok || strings.TrimSpace(kind) == "" {
		return nil, ErrMissingType
	}
	kind = strings.ToLower(strings.TrimSpace(kind))
	switch kind {
	case KindCharacter, KindNPC, KindDirective, KindOpening:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}

	title, _ := frontmatter["title"].(string)
	if IsCharacter(kind) && strings.TrimSpace(title) == "" {
		return nil, ErrMissingTitle
	}

	return &Sheet{
		Frontmatter: frontmatter,
		Title:       strings.TrimSpace(title),
		Kind:        kind,
		Body:        body,
	}, nil
}

func IsCharacter(kind string) bool {
	return kind == KindCharacter || kind == KindNPC
}

// Text reads a frontmatter field that may be written as one string or a
// list of strings.
func Text(value any) (string, error) {
	if value == nil {
		return "", nil
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return "", fmt.Errorf("list items must be strings")
			}
			if strings.TrimSpace(s) == "" {
				continue
			}
			parts = append(parts, strings.TrimSpace(s))
		}
		return strings.Join(parts, ", "), nil
	default:
		return "", fmt.Errorf("must be string or list of strings")
	}
}

// Relationships reads a name to description map.
func Relationships(value any) (map[string]string, error) {
	if value == nil {
		return nil, nil
	}
	m, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("relationships must be a map of name to description")
	}
	out := make(map[string]string, len(m))
	for name, desc := range m {
		s, ok := desc.(string)
		if !ok {
			return nil, fmt.Errorf("relationship %q must be a string", name)
		}
		out[name] = s
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
