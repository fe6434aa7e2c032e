package domain

import "context"

// Voice is the speaking voice a character is rendered with.
type Voice string

const (
	VoiceFemale  Voice = "female"
	VoiceMale    Voice = "male"
	VoiceNeutral Voice = "neutral"
)

// Synthesizer turns a reply into speech audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, voice Voice, text string) ([]byte, error)
}

// Transcriber turns recorded speech into an utterance.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}
