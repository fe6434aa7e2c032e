package domain

// Relationship links a character to another one.
type Relationship struct {
	Name     string `yaml:"name" json:"name"`
	Relation string `yaml:"relation" json:"relation"`
}

// CharacterProfile is the static knowledge record of one character.
type CharacterProfile struct {
	FullName      string         `yaml:"full_name" json:"full_name"`
	Age           string         `yaml:"age" json:"age"`
	Occupation    string         `yaml:"occupation" json:"occupation"`
	Personality   string         `yaml:"personality" json:"personality"`
	Relationships []Relationship `yaml:"relationships" json:"relationships"`
	Backstory     string         `yaml:"backstory" json:"backstory"`
	KeyFacts      []string       `yaml:"key_facts" json:"key_facts"`
}

// CarouselEntry is one card of the landing carousel.
type CarouselEntry struct {
	ID          int    `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Theme       string `yaml:"theme" json:"theme"`
}

// Roster is the immutable character table the service is started with.
type Roster struct {
	DefaultCharacter string
	Profiles         map[string]CharacterProfile
	Greetings        map[string]string
	Voices           map[string]Voice
	Carousel         []CarouselEntry
}
