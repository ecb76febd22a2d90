// Package ingest seeds a channel from a directory of story sheets.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"crowdedhouse/internal/parser"
	"crowdedhouse/internal/store"
)

type Result struct {
	CharactersCreated int
	CharactersUpdated int
	DirectivesAdded   int
	OpeningsAdded     int
	FilesSkipped      int
	Errors            []error
}

type Options struct {
	ChannelID string
	Paths     []string
	Exclude   []string
}

// reserved frontmatter keys never land in a character's free-form state.
var reserved = map[string]bool{
	"title":                     true,
	"type":                      true,
	store.StateKeyTraits:        true,
	store.StateKeyBackstory:     true,
	store.StateKeyRelationships: true,
}

// Run applies every sheet under opts.Paths to the channel. Each sheet is
// written in its own transaction; a bad sheet is reported in Result.Errors
// and does not stop the run. Running twice over the same sheets leaves the
// channel as after the first run.
func Run(ctx context.Context, db store.Store, opts Options, logger *zap.Logger) (*Result, error) {
	if strings.TrimSpace(opts.ChannelID) == "" {
		return nil, fmt.Errorf("channel is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	files, err := walkMarkdownFiles(opts.Paths, opts.Exclude)
	if err != nil {
		return nil, fmt.Errorf("walking sheets: %w", err)
	}

	result := &Result{}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		sheet, err := parser.ParseFile(path)
		if err != nil {
			if errors.Is(err, parser.ErrNoFrontmatter) {
				result.FilesSkipped++
				continue
			}
			result.Errors = append(result.Errors, fmt.Errorf("parsing %s: %w", path, err))
			continue
		}

		err = db.WithTx(ctx, func(q store.Queries) error {
			return apply(ctx, q, opts.ChannelID, sheet, result)
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("seeding %s: %w", path, err))
			continue
		}
		logger.Debug("sheet applied", zap.String("file", path), zap.String("kind", sheet.Kind))
	}

	logger.Info("seed finished",
		zap.String("channel", opts.ChannelID),
		zap.Int("created", result.CharactersCreated),
		zap.Int("updated", result.CharactersUpdated),
		zap.Int("directives", result.DirectivesAdded),
		zap.Int("openings", result.OpeningsAdded),
		zap.Int("skipped", result.FilesSkipped),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

func apply(ctx context.Context, q store.Queries, channelID string, sheet *parser.Sheet, result *Result) error {
	switch sheet.Kind {
	case parser.KindCharacter, parser.KindNPC:
		return applyCharacter(ctx, q, channelID, sheet, result)
	case parser.KindDirective:
		return applyDirective(ctx, q, channelID, sheet, result)
	case parser.KindOpening:
		return applyOpening(ctx, q, channelID, sheet, result)
	default:
		return fmt.Errorf("unhandled sheet kind %q", sheet.Kind)
	}
}

func applyCharacter(ctx context.Context, q store.Queries, channelID string, sheet *parser.Sheet, result *Result) error {
	state, err := characterState(sheet)
	if err != nil {
		return err
	}

	c, created, err := q.EnsureCharacter(ctx, store.CharacterInput{
		Name:      sheet.Title,
		ChannelID: channelID,
		State:     state,
		IsNPC:     sheet.Kind == parser.KindNPC,
	})
	if err != nil {
		return err
	}
	if created {
		result.CharactersCreated++
		return nil
	}

	// existing characters keep attributes the sheet does not mention
	encoded, err := store.EncodeState(state)
	if err != nil {
		return err
	}
	var values map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &values); err != nil {
		return fmt.Errorf("splitting state: %w", err)
	}
	for _, key := range state.Keys() {
		if err := q.AppendCharacterState(ctx, c.ID, key, values[key]); err != nil {
			return err
		}
	}
	result.CharactersUpdated++
	return nil
}

func characterState(sheet *parser.Sheet) (store.CharacterState, error) {
	var state store.CharacterState
	var err error

	if state.Traits, err = parser.Text(sheet.Frontmatter[store.StateKeyTraits]); err != nil {
		return state, fmt.Errorf("traits %w", err)
	}
	if state.Backstory, err = parser.Text(sheet.Frontmatter[store.StateKeyBackstory]); err != nil {
		return state, fmt.Errorf("backstory %w", err)
	}
	if state.Backstory == "" {
		state.Backstory = sheet.Body
	}
	if state.Relationships, err = parser.Relationships(sheet.Frontmatter[store.StateKeyRelationships]); err != nil {
		return state, err
	}

	keys := make([]string, 0, len(sheet.Frontmatter))
	for key := range sheet.Frontmatter {
		if !reserved[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := store.ValidateStateKey(key); err != nil {
			return state, err
		}
		raw, err := json.Marshal(sheet.Frontmatter[key])
		if err != nil {
			return state, fmt.Errorf("encoding %q: %w", key, err)
		}
		if state.Extra == nil {
			state.Extra = make(map[string]json.RawMessage)
		}
		state.Extra[key] = raw
	}
	return state, nil
}

func applyDirective(ctx context.Context, q store.Queries, channelID string, sheet *parser.Sheet, result *Result) error {
	if sheet.Body == "" {
		result.FilesSkipped++
		return nil
	}
	existing, err := q.GetDirective(ctx, channelID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if containsLine(existing, sheet.Body) {
		result.FilesSkipped++
		return nil
	}
	if err := q.CreateDirective(ctx, channelID, sheet.Body); err != nil {
		return err
	}
	result.DirectivesAdded++
	return nil
}

// applyOpening only writes into a channel with no story yet.
func applyOpening(ctx context.Context, q store.Queries, channelID string, sheet *parser.Sheet, result *Result) error {
	if sheet.Body == "" {
		result.FilesSkipped++
		return nil
	}
	memories, err := q.ListMemories(ctx, store.MemoryFilter{ChannelIDs: []string{channelID}, Limit: 1})
	if err != nil {
		return err
	}
	if len(memories) > 0 {
		result.FilesSkipped++
		return nil
	}
	if _, err := q.CreateMemory(ctx, store.MemoryInput{ChannelID: channelID, Text: sheet.Body}); err != nil {
		return err
	}
	result.OpeningsAdded++
	return nil
}

// containsLine reports whether directive, as stored with one part per
// line, already holds part.
func containsLine(directive, part string) bool {
	if directive == "" {
		return false
	}
	return directive == part ||
		strings.HasPrefix(directive, part+"\n") ||
		strings.HasSuffix(directive, "\n"+part) ||
		strings.Contains(directive, "\n"+part+"\n")
}

func walkMarkdownFiles(roots []string, excludes []string) ([]string, error) {
	excluded := make([]string, 0, len(excludes))
	for _, path := range excludes {
		if path == "" {
			continue
		}
		excluded = append(excluded, filepath.Clean(path))
	}

	var files []string
	for _, root := range roots {
		if root == "" {
			continue
		}
		root = filepath.Clean(root)
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() && isExcluded(path, excluded) {
				return filepath.SkipDir
			}
			if d.IsDir() {
				return nil
			}
			if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
				return nil
			}
			if isExcluded(path, excluded) {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func isExcluded(path string, excludes []string) bool {
	clean := filepath.Clean(path)
	for _, exclude := range excludes {
		if exclude == clean || strings.HasPrefix(clean, exclude+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}
