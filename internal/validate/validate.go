package validate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"crowdedhouse/internal/store"
)

type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warning"
)

const (
	codeSelfParent        = "timeline_self_parent"
	codeTimelineCycle     = "timeline_cycle"
	codeNestedTimeline    = "nested_timeline"
	codeDanglingReference = "dangling_memory_reference"
)

type Issue struct {
	Severity Severity
	Code     string
	Message  string
	Channel  string
	MemoryID int64
}

type Report struct {
	Issues []Issue
}

func (r *Report) HasErrors() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

func Run(ctx context.Context, source Source) (*Report, error) {
	if source == nil {
		return nil, fmt.Errorf("store is required")
	}

	issues := make([]Issue, 0)

	timelines, err := source.ListTimelines(ctx)
	if err != nil {
		return nil, fmt.Errorf("list timelines: %w", err)
	}
	issues = append(issues, validateTimelines(timelines)...)

	dangling, err := source.ListDanglingMemories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dangling memories: %w", err)
	}
	for _, m := range dangling {
		issues = append(issues, Issue{
			Severity: SeverityWarn,
			Code:     codeDanglingReference,
			Message:  danglingMessage(m),
			Channel:  m.ChannelID,
			MemoryID: m.ID,
		})
	}

	return &Report{Issues: issues}, nil
}

func validateTimelines(timelines []store.Timeline) []Issue {
	parents := make(map[string]string, len(timelines))
	for _, t := range timelines {
		parents[t.ChannelID] = t.ParentChannelID
	}

	var issues []Issue
	inCycle := make(map[string]bool)
	for _, t := range timelines {
		if t.ChannelID == t.ParentChannelID {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     codeSelfParent,
				Message:  "timeline is its own parent",
				Channel:  t.ChannelID,
			})
			continue
		}

		if cycle := findCycle(parents, t.ChannelID); len(cycle) > 0 {
			if inCycle[t.ChannelID] {
				continue
			}
			for _, id := range cycle {
				inCycle[id] = true
			}
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     codeTimelineCycle,
				Message:  fmt.Sprintf("timeline cycle: %s", strings.Join(cycle, " -> ")),
				Channel:  t.ChannelID,
			})
			continue
		}

		if grandparent, ok := parents[t.ParentChannelID]; ok {
			issues = append(issues, Issue{
				Severity: SeverityWarn,
				Code:     codeNestedTimeline,
				Message: fmt.Sprintf("parent %s is itself forked from %s; only %s is inherited",
					t.ParentChannelID, grandparent, t.ParentChannelID),
				Channel: t.ChannelID,
			})
		}
	}
	return issues
}

// findCycle returns the channels of the cycle start lies on, in order,
// or nil when following parents from start terminates.
func findCycle(parents map[string]string, start string) []string {
	var path []string
	index := make(map[string]int)
	current := start
	for {
		if i, seen := index[current]; seen {
			if i != 0 {
				return nil
			}
			return append(path, current)
		}
		index[current] = len(path)
		path = append(path, current)

		next, ok := parents[current]
		if !ok || next == current {
			return nil
		}
		current = next
	}
}

func danglingMessage(m store.Memory) string {
	var refs []string
	if m.RelatedCharacterID != nil {
		refs = append(refs, fmt.Sprintf("related character %d", *m.RelatedCharacterID))
	}
	if m.SpokenByCharacterID != nil {
		refs = append(refs, fmt.Sprintf("speaker %d", *m.SpokenByCharacterID))
	}
	sort.Strings(refs)
	return fmt.Sprintf("memory %d references a missing character (%s)", m.ID, strings.Join(refs, ", "))
}
