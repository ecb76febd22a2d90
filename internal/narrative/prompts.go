package narrative

import (
	"fmt"
	"strings"
)

const (
	rosterPrefix = "the characters in the story are:"
	storyPrefix  = "what has happened so far: "
)

func introductionNote(author string) string {
	return fmt.Sprintf("%s is joining the story for the first time. Introduce their character before narrating their turn.", author)
}

func characterVoice(name, stateJSON string) string {
	return fmt.Sprintf("You are now the character %s.\nHere are some details about them in JSON format: %s\n"+
		"Answer the question in their voice, using only what they could plausibly know.", name, stateJSON)
}

func autogenInstruction(known []string) string {
	var b strings.Builder
	b.WriteString("Invent new characters who would fit naturally into this story. ")
	b.WriteString(`Respond with only a JSON array of objects with the keys "name", "traits", "backstory" and optionally "relationships" (an object mapping other character names to a short description).`)
	if len(known) > 0 {
		b.WriteString(" Do not include any of these existing characters: ")
		b.WriteString(strings.Join(known, ", "))
		b.WriteString(".")
	}
	return b.String()
}

func spawnSummary(name string) string {
	return fmt.Sprintf("you have brought the character %s into the world", name)
}

func autogenSummary(names []string) string {
	switch len(names) {
	case 0:
		return "no new characters joined the world"
	case 1:
		return spawnSummary(names[0])
	default:
		return fmt.Sprintf("you have brought the characters %s into the world", strings.Join(names, ", "))
	}
}

func askMemory(asker, character, question string) string {
	return fmt.Sprintf("%s asked %s: %s", asker, character, question)
}
