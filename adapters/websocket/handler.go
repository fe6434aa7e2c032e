package websocket

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/nanooro/dagnerai/usecase"
	"github.com/nanooro/dagnerai/utils/log"
)

// Handler serves "/ws?character=<name>". Each connection owns one chat
// session, which is closed with the connection.
func (s *Server) Handler(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	clientID, _ := c.Get("client_id").(string)
	conv := s.svc.Open(c.Request().Context(), clientID, c.QueryParam("character"))
	release := conv.Attach()

	client := NewClient(conn, conv.ID(), clientID, s.handleMessage)

	// Queued before registering so the snapshot is always the first frame.
	snap := conv.Snapshot()
	s.send(client, ServerMessage{Type: TypeSession, SessionID: snap.ID, Character: snap.Character, Session: &snap})

	s.hub.Register(client)
	defer func() {
		release()
		s.hub.Unregister(client)
		if err := s.svc.Close(context.WithoutCancel(client.ctx), conv.ID()); err != nil {
			log.WithCtx(client.ctx).Debug("Session already closed", zap.Error(err))
		}
	}()

	client.Run()

	// Wait for the client context to be done (connection closed)
	<-client.Context().Done()

	return nil
}

func (s *Server) handleMessage(client *Client, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.reject(client, "invalid_json")
		return
	}

	switch msg.Type {
	case TypeMessage:
		// Resolved before the read pump moves on, so a message followed by a
		// close frame is still answered.
		conv, err := s.svc.Get(client.SessionID())
		if err != nil {
			log.WithCtx(client.ctx).Error("Submit failed", zap.Error(err))
			s.reject(client, "error")
			return
		}
		// Replies arrive as turn events; the read pump keeps going meanwhile.
		go func() {
			_, err := conv.Submit(client.ctx, msg.Text)
			switch {
			case errors.Is(err, usecase.ErrEmptyInput):
				s.reject(client, "empty")
			case errors.Is(err, usecase.ErrBusy):
				s.reject(client, "busy")
			case errors.Is(err, usecase.ErrConversationReset):
				s.reject(client, "reset")
			case err != nil:
				log.WithCtx(client.ctx).Error("Submit failed", zap.Error(err))
				s.reject(client, "error")
			}
		}()

	case TypeCharacter:
		conv, err := s.svc.SwitchCharacter(client.ctx, client.SessionID(), msg.Character)
		if err != nil {
			log.WithCtx(client.ctx).Error("Switch character failed", zap.Error(err))
			s.reject(client, "error")
			return
		}
		snap := conv.Snapshot()
		s.send(client, ServerMessage{Type: TypeSession, SessionID: snap.ID, Character: snap.Character, Session: &snap})

	default:
		s.reject(client, "unknown_type")
	}
}

func (s *Server) reject(client *Client, reason string) {
	s.send(client, ServerMessage{Type: TypeRejected, SessionID: client.SessionID(), Reason: reason})
}
