package usecase

import (
	"fmt"
	"strings"
)

const personaInstructions = `You must respond as %[1]s would in the Oshi no Ko universe. Stay in character at all times, using appropriate personality traits, speaking style, and mannerisms. Reference your relationships and backstory naturally when relevant.

When users ask about other characters or relationships, use the knowledge provided above to give accurate information. For example:
- If asked "Who's your boyfriend/girlfriend?", reference your actual relationships
- If asked about your past, reference your backstory
- If asked about other characters, provide accurate information from the series`

// PromptBuilder composes the persona prompt sent with every user turn.
type PromptBuilder struct {
	knowledge *KnowledgeStore
}

func NewPromptBuilder(knowledge *KnowledgeStore) *PromptBuilder {
	return &PromptBuilder{knowledge: knowledge}
}

// Build returns the full prompt for one utterance. Earlier turns are never
// included, each request carries the persona from scratch.
func (p *PromptBuilder) Build(character, utterance string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s from the anime Oshi no Ko. Here is your complete information:\n\n", character)
	if p.knowledge.Known(character) {
		b.WriteString(p.knowledge.Info(character, FacetAll))
	} else {
		fmt.Fprintf(&b, "INFORMATION:\n%s", UnknownCharacterInfo)
	}
	b.WriteString("\n\n")
	fmt.Fprintf(&b, personaInstructions, character)
	fmt.Fprintf(&b, "\n\nCurrent conversation context: The user is asking: \"%s\"", strings.TrimSpace(utterance))

	return strings.TrimSpace(b.String())
}
