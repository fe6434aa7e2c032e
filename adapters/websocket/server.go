package websocket

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nanooro/dagnerai/domain"
	"github.com/nanooro/dagnerai/usecase"
	"github.com/nanooro/dagnerai/utils/log"
)

// Server message types.
const (
	TypeSession  = "session"
	TypeTurn     = "turn"
	TypeRejected = "rejected"
)

// Client message types.
const (
	TypeMessage   = "message"
	TypeCharacter = "character"
)

// ServerMessage is every frame the server writes.
type ServerMessage struct {
	Type      string            `json:"type"`
	SessionID string            `json:"session_id"`
	Character string            `json:"character,omitempty"`
	Reset     bool              `json:"reset,omitempty"`
	Turn      *domain.Turn      `json:"turn,omitempty"`
	Session   *usecase.Snapshot `json:"session,omitempty"`
	Reason    string            `json:"reason,omitempty"`
}

// ClientMessage is every frame the server accepts.
type ClientMessage struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Character string `json:"character,omitempty"`
}

type Server struct {
	upgrader      websocket.Upgrader
	svc           *usecase.ChatService
	messageBroker domain.MessageBroker
	hub           *Hub
}

func NewServer(svc *usecase.ChatService, messageBroker domain.MessageBroker) *Server {
	return &Server{
		upgrader:      websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		svc:           svc,
		messageBroker: messageBroker,
		hub:           NewHub(),
	}
}

// Listen subscribes to every turn event and forwards each one to the clients
// of its session until ctx is done.
func (s *Server) Listen(ctx context.Context) error {
	messageChan, err := s.messageBroker.Subscribe(ctx, domain.TurnTopic, "")
	if err != nil {
		return err
	}

	log.WithCtx(ctx).Info("WebSocket server listening to turn events")
	go s.forward(ctx, messageChan)
	return nil
}

func (s *Server) forward(ctx context.Context, messageChan <-chan domain.Message) {
	for {
		select {
		case msg, ok := <-messageChan:
			if !ok {
				log.WithCtx(ctx).Info("Turn subscription closed")
				return
			}

			var event domain.TurnEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				log.WithCtx(ctx).Error("Failed to unmarshal turn event", zap.Error(err))
				continue
			}

			turn := event.Turn
			s.sendToSession(event.SessionID, ServerMessage{
				Type:      TypeTurn,
				SessionID: event.SessionID,
				Character: event.Character,
				Reset:     event.Reset,
				Turn:      &turn,
			})

		case <-ctx.Done():
			log.WithCtx(ctx).Info("Turn listener stopped")
			return
		}
	}
}

func (s *Server) sendToSession(sessionID string, msg ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.WithCtx(context.Background()).Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}
	if err := s.hub.SendToSession(sessionID, payload); err != nil {
		log.WithCtx(context.Background()).Debug("Turn event not delivered", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *Server) send(client *Client, msg ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.WithCtx(client.ctx).Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}
	if err := client.SendMessage(payload); err != nil {
		log.WithCtx(client.ctx).Debug("Message not delivered", zap.Error(err))
	}
}
