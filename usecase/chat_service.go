package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nanooro/dagnerai/domain"
	"github.com/nanooro/dagnerai/utils/log"
)

type ChatService struct {
	llm       domain.Llm
	knowledge *KnowledgeStore
	broker    domain.MessageBroker
	archive   domain.TranscriptArchive
	hasher    domain.Hasher
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Conversation
}

type ChatServiceOption func(*ChatService)

// WithBroker publishes every turn event on domain.TurnTopic.
func WithBroker(b domain.MessageBroker) ChatServiceOption {
	return func(s *ChatService) { s.broker = b }
}

// WithArchive keeps conversations that are reset or closed.
func WithArchive(a domain.TranscriptArchive) ChatServiceOption {
	return func(s *ChatService) { s.archive = a }
}

func WithHasher(h domain.Hasher) ChatServiceOption {
	return func(s *ChatService) { s.hasher = h }
}

func WithClock(now func() time.Time) ChatServiceOption {
	return func(s *ChatService) { s.now = now }
}

func NewChatService(gen domain.Llm, knowledge *KnowledgeStore, opts ...ChatServiceOption) *ChatService {
	s := &ChatService{
		llm:       gen,
		knowledge: knowledge,
		now:       time.Now,
		sessions:  make(map[string]*Conversation),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ChatService) Knowledge() *KnowledgeStore {
	return s.knowledge
}

// Open starts a conversation for owner with character, or with the default
// character when the name is blank.
func (s *ChatService) Open(ctx context.Context, owner, character string) *Conversation {
	character = strings.TrimSpace(character)
	if character == "" {
		character = s.knowledge.DefaultCharacter()
	}

	id := uuid.NewString()
	ctx = log.WithValue(ctx, log.SessionIDKey, id)
	ctx = log.WithValue(ctx, log.CharacterKey, character)
	c := newConversation(ctx, id, character, s.llm, s.knowledge, conversationDeps{
		owner:    owner,
		hasher:   s.hasher,
		now:      s.now,
		listener: s.publish,
	})

	s.mu.Lock()
	s.sessions[id] = c
	s.mu.Unlock()

	log.WithCtx(ctx).Info("Chat session opened")
	return c
}

func (s *ChatService) Get(id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	return c, nil
}

// GetOwned is Get restricted to the sessions opened for owner. Sessions of
// other clients are reported as not found.
func (s *ChatService) GetOwned(id, owner string) (*Conversation, error) {
	c, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if c.Owner() != owner {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	return c, nil
}

func (s *ChatService) Submit(ctx context.Context, id, text string) (domain.Turn, error) {
	c, err := s.Get(id)
	if err != nil {
		return domain.Turn{}, err
	}
	return c.Submit(ctx, text)
}

// SwitchCharacter archives the current conversation and reseeds it for
// character.
func (s *ChatService) SwitchCharacter(ctx context.Context, id, character string) (*Conversation, error) {
	c, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	character = strings.TrimSpace(character)
	if character == "" {
		character = s.knowledge.DefaultCharacter()
	}

	s.archiveSnapshot(ctx, c)
	c.Reset(ctx, character)
	return c, nil
}

// Close archives and forgets a session.
func (s *ChatService) Close(ctx context.Context, id string) error {
	s.mu.Lock()
	c, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	ctx = log.WithValue(ctx, log.SessionIDKey, id)
	s.archiveSnapshot(ctx, c)
	log.WithCtx(ctx).Info("Chat session closed")
	return nil
}

// EvictIdle closes the sessions that saw no turn for maxIdle and are not
// attached to a connection. It returns how many were evicted.
func (s *ChatService) EvictIdle(ctx context.Context, maxIdle time.Duration) int {
	now := s.now()

	var evicted []*Conversation
	s.mu.Lock()
	for id, c := range s.sessions {
		if c.idle(now, maxIdle) {
			evicted = append(evicted, c)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, c := range evicted {
		cctx := log.WithValue(ctx, log.SessionIDKey, c.ID())
		s.archiveSnapshot(cctx, c)
		log.WithCtx(cctx).Info("Idle chat session evicted")
	}
	return len(evicted)
}

// Sweep runs EvictIdle every interval until ctx is done.
func (s *ChatService) Sweep(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictIdle(ctx, maxIdle); n > 0 {
				log.WithCtx(ctx).Debug("Evicted idle sessions", zap.Int("evicted", n), zap.Int("sessions", s.SessionCount()))
			}
		}
	}
}

// Archived lists the transcripts kept for a session opened by owner.
func (s *ChatService) Archived(ctx context.Context, id, owner string) ([]domain.Transcript, error) {
	out := []domain.Transcript{}
	if s.archive == nil {
		return out, nil
	}
	transcripts, err := s.archive.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, t := range transcripts {
		if t.Owner == owner {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *ChatService) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *ChatService) archiveSnapshot(ctx context.Context, c *Conversation) {
	snap := c.Snapshot()
	if s.archive == nil || !hasUserTurn(snap.Turns) {
		return
	}
	err := s.archive.Save(ctx, domain.Transcript{
		SessionID:  snap.ID,
		Owner:      c.Owner(),
		Character:  snap.Character,
		Turns:      snap.Turns,
		ArchivedAt: s.now(),
	})
	if err != nil {
		log.WithCtx(log.WithValue(ctx, log.SessionIDKey, snap.ID)).Error("Error archiving transcript", zap.Error(err))
	}
}

func (s *ChatService) publish(ctx context.Context, event domain.TurnEvent) {
	if s.broker == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.WithCtx(ctx).Error("Error marshaling turn event", zap.Error(err))
		return
	}
	if err := s.broker.Publish(context.WithoutCancel(ctx), domain.TurnTopic, event.SessionID, payload); err != nil {
		log.WithCtx(ctx).Error("Error publishing turn event", zap.Error(err))
	}
}

func hasUserTurn(turns []domain.Turn) bool {
	for _, t := range turns {
		if t.Role == domain.UserRole {
			return true
		}
	}
	return false
}
