package domain

import (
	"context"
	"errors"
	"time"
)

var ErrSessionNotFound = errors.New("chat session not found")

type Role string

const (
	UserRole      Role = "user"
	CharacterRole Role = "character"
)

// Turn is one entry of a conversation.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type ConversationState string

const (
	StateIdle             ConversationState = "idle"
	StateAwaitingResponse ConversationState = "awaiting_response"
	StateErrorDisplayed   ConversationState = "error_displayed"
)

// TurnEvent is published on the message broker whenever a turn is appended
// or a conversation is reseeded.
type TurnEvent struct {
	SessionID string    `json:"session_id"`
	Character string    `json:"character"`
	Reset     bool      `json:"reset,omitempty"`
	Turn      Turn      `json:"turn"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript is a conversation snapshot kept after it was discarded.
type Transcript struct {
	SessionID  string    `json:"session_id"`
	Owner      string    `json:"owner,omitempty"`
	Character  string    `json:"character"`
	Turns      []Turn    `json:"turns"`
	ArchivedAt time.Time `json:"archived_at"`
}

// TranscriptArchive stores conversations that were reset or closed.
type TranscriptArchive interface {
	Save(ctx context.Context, transcript Transcript) error
	Load(ctx context.Context, sessionID string) ([]Transcript, error)
}
