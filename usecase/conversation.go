package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nanooro/dagnerai/domain"
	"github.com/nanooro/dagnerai/utils/log"
)

// FailureMessage replaces the character reply whenever generation fails.
const FailureMessage = "Sorry, I encountered an error. Please try again!"

var (
	ErrEmptyInput = errors.New("input is empty")
	ErrBusy       = errors.New("a reply is still pending")
	// ErrConversationReset is returned to a submitter whose conversation was
	// reseeded while its reply was in flight. The reply is dropped.
	ErrConversationReset = errors.New("conversation was reset")
)

// TurnListener is notified after every append or reset.
type TurnListener func(ctx context.Context, event domain.TurnEvent)

// Snapshot is a consistent copy of a conversation.
type Snapshot struct {
	ID        string                   `json:"id"`
	Character string                   `json:"character"`
	State     domain.ConversationState `json:"state"`
	Turns     []domain.Turn            `json:"turns"`
}

// Conversation is the per-session controller. It allows a single outstanding
// request: submissions made while a reply is pending are rejected.
type Conversation struct {
	id        string
	owner     string
	llm       domain.Llm
	knowledge *KnowledgeStore
	prompts   *PromptBuilder
	hasher    domain.Hasher
	now       func() time.Time
	listener  TurnListener

	mu        sync.Mutex
	character string
	turns     []domain.Turn
	state     domain.ConversationState
	epoch     uint64
	active    time.Time
	attached  int
}

type conversationDeps struct {
	owner    string
	hasher   domain.Hasher
	now      func() time.Time
	listener TurnListener
}

func newConversation(ctx context.Context, id, character string, gen domain.Llm, knowledge *KnowledgeStore, deps conversationDeps) *Conversation {
	c := &Conversation{
		id:        id,
		owner:     deps.owner,
		llm:       gen,
		knowledge: knowledge,
		prompts:   NewPromptBuilder(knowledge),
		hasher:    deps.hasher,
		now:       deps.now,
		listener:  deps.listener,
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.Reset(ctx, character)
	return c
}

func (c *Conversation) ID() string { return c.id }

// Owner is the client the conversation was opened for.
func (c *Conversation) Owner() string { return c.owner }

// Attach marks the conversation as held by a live connection until the
// returned func is called. Held conversations are never idle.
func (c *Conversation) Attach() (release func()) {
	c.mu.Lock()
	c.attached++
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.attached--
			c.mu.Unlock()
		})
	}
}

// idle reports whether nothing happened for maxIdle and nobody waits on it.
func (c *Conversation) idle(now time.Time, maxIdle time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attached == 0 && c.state != domain.StateAwaitingResponse && now.Sub(c.active) >= maxIdle
}

func (c *Conversation) Character() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.character
}

func (c *Conversation) State() domain.ConversationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		ID:        c.id,
		Character: c.character,
		State:     c.state,
		Turns:     append([]domain.Turn(nil), c.turns...),
	}
}

// Reset clears the conversation and seeds it with the character greeting.
func (c *Conversation) Reset(ctx context.Context, character string) {
	c.mu.Lock()
	c.character = character
	c.turns = nil
	c.state = domain.StateIdle
	c.epoch++
	greeting := c.appendLocked(domain.CharacterRole, c.knowledge.Greeting(character))
	c.mu.Unlock()

	c.notify(ctx, character, true, greeting)
}

// Submit records the user turn, asks the model for the character reply and
// records it. A failed or malformed reply is replaced with FailureMessage and
// is not returned as an error.
func (c *Conversation) Submit(ctx context.Context, input string) (domain.Turn, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return domain.Turn{}, ErrEmptyInput
	}

	c.mu.Lock()
	if c.state == domain.StateAwaitingResponse {
		c.mu.Unlock()
		return domain.Turn{}, ErrBusy
	}
	user := c.appendLocked(domain.UserRole, text)
	c.state = domain.StateAwaitingResponse
	character, epoch := c.character, c.epoch
	c.mu.Unlock()

	ctx = log.WithValue(ctx, log.SessionIDKey, c.id)
	ctx = log.WithValue(ctx, log.CharacterKey, character)
	c.notify(ctx, character, false, user)

	prompt := c.prompts.Build(character, text)
	fields := []zap.Field{zap.Int("prompt_length", len(prompt))}
	if c.hasher != nil {
		fields = append(fields, zap.String("prompt_digest", c.hasher.Hash([]byte(prompt))))
	}
	log.WithCtx(ctx).Debug("Requesting character reply", fields...)

	// The request is never cancelled once issued.
	reply, err := c.llm.Generate(context.WithoutCancel(ctx), prompt)
	next := domain.StateIdle
	if err != nil {
		log.WithCtx(ctx).Error("Character reply failed", zap.Error(err))
		reply = FailureMessage
		next = domain.StateErrorDisplayed
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		log.WithCtx(ctx).Info("Dropping reply for a reset conversation")
		return domain.Turn{}, ErrConversationReset
	}
	turn := c.appendLocked(domain.CharacterRole, reply)
	c.state = next
	c.mu.Unlock()

	c.notify(ctx, character, false, turn)
	return turn, nil
}

func (c *Conversation) appendLocked(role domain.Role, content string) domain.Turn {
	turn := domain.Turn{Role: role, Content: content, CreatedAt: c.now()}
	c.turns = append(c.turns, turn)
	c.active = turn.CreatedAt
	return turn
}

func (c *Conversation) notify(ctx context.Context, character string, reset bool, turn domain.Turn) {
	if c.listener == nil {
		return
	}
	c.listener(ctx, domain.TurnEvent{
		SessionID: c.id,
		Character: character,
		Reset:     reset,
		Turn:      turn,
		Timestamp: turn.CreatedAt,
	})
}
