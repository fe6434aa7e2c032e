package usecase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nanooro/dagnerai/domain"
)

// UnknownCharacterInfo is answered for every facet of a name that is not in
// the roster.
const UnknownCharacterInfo = "I don't have information about that character."

const fallbackGreeting = "Hello! I'm %s from Oshi no Ko. I'm excited to chat with you! What would you like to talk about?"

var ErrUnknownFacet = errors.New("unknown knowledge facet")

type Facet string

const (
	FacetRelationships Facet = "relationships"
	FacetBackstory     Facet = "backstory"
	FacetPersonality   Facet = "personality"
	FacetKeyFacts      Facet = "keyFacts"
	FacetAll           Facet = "all"
)

// Facets lists every facet in display order.
var Facets = []Facet{FacetRelationships, FacetBackstory, FacetPersonality, FacetKeyFacts, FacetAll}

// ParseFacet accepts the facet names in camel, kebab or snake case.
func ParseFacet(s string) (Facet, error) {
	switch strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(s)) {
	case "relationships":
		return FacetRelationships, nil
	case "backstory":
		return FacetBackstory, nil
	case "personality":
		return FacetPersonality, nil
	case "keyfacts":
		return FacetKeyFacts, nil
	case "all":
		return FacetAll, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFacet, s)
}

// FlatProfile is a CharacterProfile with every field rendered as text.
type FlatProfile struct {
	FullName      string `json:"full_name"`
	Age           string `json:"age"`
	Occupation    string `json:"occupation"`
	Personality   string `json:"personality"`
	Relationships string `json:"relationships"`
	Backstory     string `json:"backstory"`
	KeyFacts      string `json:"key_facts"`
}

// KnowledgeStore is the read-only character lookup built from the roster.
type KnowledgeStore struct {
	roster domain.Roster
}

func NewKnowledgeStore(roster domain.Roster) *KnowledgeStore {
	return &KnowledgeStore{roster: roster}
}

func (s *KnowledgeStore) DefaultCharacter() string {
	return s.roster.DefaultCharacter
}

func (s *KnowledgeStore) Carousel() []domain.CarouselEntry {
	return append([]domain.CarouselEntry(nil), s.roster.Carousel...)
}

func (s *KnowledgeStore) Profile(name string) (domain.CharacterProfile, bool) {
	p, ok := s.roster.Profiles[name]
	return p, ok
}

// Known reports whether name is in the roster.
func (s *KnowledgeStore) Known(name string) bool {
	_, ok := s.roster.Profiles[name]
	return ok
}

// Greeting returns the opening line of a conversation with name.
func (s *KnowledgeStore) Greeting(name string) string {
	if g, ok := s.roster.Greetings[name]; ok {
		return g
	}
	return fmt.Sprintf(fallbackGreeting, name)
}

// Voice returns the voice name speaks with. Characters default to a female
// voice.
func (s *KnowledgeStore) Voice(name string) domain.Voice {
	if v, ok := s.roster.Voices[name]; ok {
		return v
	}
	return domain.VoiceFemale
}

// Flatten renders every field of the profile as display text.
func (s *KnowledgeStore) Flatten(name string) (FlatProfile, bool) {
	p, ok := s.roster.Profiles[name]
	if !ok {
		return FlatProfile{}, false
	}
	return FlatProfile{
		FullName:      p.FullName,
		Age:           p.Age,
		Occupation:    p.Occupation,
		Personality:   p.Personality,
		Relationships: relationshipLines(p.Relationships),
		Backstory:     p.Backstory,
		KeyFacts:      bulleted(p.KeyFacts),
	}, true
}

// Info returns one facet of a character as text.
func (s *KnowledgeStore) Info(name string, facet Facet) string {
	flat, ok := s.Flatten(name)
	if !ok {
		return UnknownCharacterInfo
	}

	switch facet {
	case FacetRelationships:
		return flat.Relationships
	case FacetBackstory:
		return flat.Backstory
	case FacetPersonality:
		return flat.Personality
	case FacetKeyFacts:
		return flat.KeyFacts
	default:
		return flat.render()
	}
}

func (f FlatProfile) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "FULL NAME: %s\n", f.FullName)
	fmt.Fprintf(&b, "AGE: %s\n", f.Age)
	fmt.Fprintf(&b, "OCCUPATION: %s\n", f.Occupation)
	fmt.Fprintf(&b, "PERSONALITY: %s\n\n", f.Personality)
	fmt.Fprintf(&b, "RELATIONSHIPS:\n%s\n\n", f.Relationships)
	fmt.Fprintf(&b, "BACKSTORY:\n%s\n\n", f.Backstory)
	fmt.Fprintf(&b, "KEY FACTS:\n%s", f.KeyFacts)
	return b.String()
}

func relationshipLines(rels []domain.Relationship) string {
	lines := make([]string, len(rels))
	for i, r := range rels {
		lines[i] = r.Name + ": " + r.Relation
	}
	return strings.Join(lines, "\n")
}

func bulleted(facts []string) string {
	lines := make([]string, len(facts))
	for i, f := range facts {
		lines[i] = "• " + f
	}
	return strings.Join(lines, "\n")
}
