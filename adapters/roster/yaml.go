package roster

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/nanooro/dagnerai/domain"
)

//go:embed characters.yaml
var builtin []byte

type document struct {
	DefaultCharacter string                 `yaml:"default_character"`
	Carousel         []domain.CarouselEntry `yaml:"carousel"`
	Characters       map[string]struct {
		Greeting string                  `yaml:"greeting"`
		Voice    domain.Voice            `yaml:"voice"`
		Profile  domain.CharacterProfile `yaml:"profile"`
	} `yaml:"characters"`
}

// Builtin returns the roster compiled into the binary.
func Builtin() (domain.Roster, error) {
	return Parse(builtin)
}

// Parse decodes and validates a roster document.
func Parse(data []byte) (domain.Roster, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return domain.Roster{}, fmt.Errorf("decoding roster: %w", err)
	}

	r := domain.Roster{
		DefaultCharacter: doc.DefaultCharacter,
		Profiles:         make(map[string]domain.CharacterProfile, len(doc.Characters)),
		Greetings:        make(map[string]string, len(doc.Characters)),
		Voices:           make(map[string]domain.Voice, len(doc.Characters)),
		Carousel:         doc.Carousel,
	}
	for name, c := range doc.Characters {
		if c.Profile.FullName == "" {
			return domain.Roster{}, fmt.Errorf("character %q has no full name", name)
		}
		r.Profiles[name] = c.Profile
		if c.Greeting != "" {
			r.Greetings[name] = c.Greeting
		}
		switch c.Voice {
		case "":
		case domain.VoiceFemale, domain.VoiceMale, domain.VoiceNeutral:
			r.Voices[name] = c.Voice
		default:
			return domain.Roster{}, fmt.Errorf("character %q has unknown voice %q", name, c.Voice)
		}
	}

	if len(r.Carousel) == 0 {
		return domain.Roster{}, fmt.Errorf("roster has no carousel entries")
	}
	for _, e := range r.Carousel {
		if _, ok := r.Profiles[e.Name]; !ok {
			return domain.Roster{}, fmt.Errorf("carousel entry %d references unknown character %q", e.ID, e.Name)
		}
	}
	if r.DefaultCharacter == "" {
		r.DefaultCharacter = r.Carousel[0].Name
	}

	return r, nil
}
